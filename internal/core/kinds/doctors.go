package kinds

import "github.com/JonMunkholm/pharmaimport/internal/core"

func init() {
	core.Register(doctorsDefinition())
}

// Doctor is the payload of one row of a doctors import.
type Doctor struct {
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	LicenseNumber string   `json:"licenseNumber"`
	Specialty     string   `json:"specialty,omitempty"`
	SpecialtyID   string   `json:"specialtyId,omitempty"`
	Address       string   `json:"address"`
	City          string   `json:"city"`
	CountryID     string   `json:"countryId"`
	CategoryIDs   []string `json:"categoryIds"`
}

var doctorAliases = core.AliasTable{
	{Field: "firstName", Headers: []string{"First Name", "Nombre", "Nombres"}},
	{Field: "lastName", Headers: []string{"Last Name", "Apellido", "Apellidos"}},
	{Field: "email", Headers: []string{"Email", "Correo", "Correo Electrónico", "E-mail"}},
	{Field: "phone", Headers: []string{"Phone", "Teléfono", "Celular"}},
	{Field: "licenseNumber", Headers: []string{"License Number", "Matrícula", "License"}},
	{Field: "specialty", Headers: []string{"Specialty", "Especialidad"}},
	{Field: "address", Headers: []string{"Address", "Dirección"}},
	{Field: "city", Headers: []string{"City", "Ciudad"}},
}

func doctorsDefinition() core.Definition {
	return core.Definition{
		Key:            "doctors",
		Label:          "Doctors",
		Path:           "/doctors/bulk",
		Aliases:        doctorAliases,
		RequiredParams: []string{core.ParamCountry},
		Map:            mapDoctor,
		Examples: [][]string{
			{"Ana", "García", "ana.garcia@example.com", "+54 11 5555 0101", "MN-12345", "Cardiología", "Av. Corrientes 1234", "Buenos Aires"},
			{"Luis", "Pérez", "luis.perez@example.com", "+54 351 555 0199", "MP-67890", "Pediatría", "Bv. San Juan 456", "Córdoba"},
		},
	}
}

// mapDoctor never fails: missing columns map to empty fields and the
// endpoint decides what is valid.
func mapDoctor(row core.RawRow, p core.SharedParams) any {
	get := func(field string) string { return doctorAliases.Resolve(row, field) }

	d := Doctor{
		FirstName:     Text(get("firstName")),
		LastName:      Text(get("lastName")),
		Email:         NormalizeEmail(get("email")),
		Phone:         NormalizePhone(get("phone")),
		LicenseNumber: core.StripSpaces(get("licenseNumber")),
		Specialty:     Text(get("specialty")),
		Address:       Text(get("address")),
		City:          Text(get("city")),
		CountryID:     p.CountryID,
		CategoryIDs:   categories(p.CategoryIDs),
	}
	if d.Specialty == "" {
		d.SpecialtyID = p.SpecialtyID
	}
	return d
}
