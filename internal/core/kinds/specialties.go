package kinds

import "github.com/JonMunkholm/pharmaimport/internal/core"

func init() {
	core.Register(specialtiesDefinition())
}

// Specialty is the payload of one row of a specialties import.
type Specialty struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	CountryID   string `json:"countryId"`
}

var specialtyAliases = core.AliasTable{
	{Field: "name", Headers: []string{"Name", "Nombre"}},
	{Field: "description", Headers: []string{"Description", "Descripción"}},
	{Field: "code", Headers: []string{"Code", "Código"}},
}

func specialtiesDefinition() core.Definition {
	return core.Definition{
		Key:            "specialties",
		Label:          "Specialties",
		Path:           "/specialties/bulk",
		Aliases:        specialtyAliases,
		RequiredParams: []string{core.ParamCountry},
		Map:            mapSpecialty,
		Examples: [][]string{
			{"Cardiología", "Enfermedades del corazón y del sistema circulatorio", "CARD"},
			{"Pediatría", "Atención médica de niños y adolescentes", "PED"},
		},
	}
}

func mapSpecialty(row core.RawRow, p core.SharedParams) any {
	return Specialty{
		Name:        Text(specialtyAliases.Resolve(row, "name")),
		Description: Text(specialtyAliases.Resolve(row, "description")),
		Code:        NormalizeCode(specialtyAliases.Resolve(row, "code")),
		CountryID:   p.CountryID,
	}
}
