package kinds

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

func parseRows(t *testing.T, csv string) []core.RawRow {
	t.Helper()
	rows, err := core.Ingest(context.Background(), "test.csv", []byte(csv))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return rows
}

func TestRegistered(t *testing.T) {
	for _, key := range []string{"doctors", "specialties"} {
		def, err := core.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", key, err)
		}
		if def.Path == "" || def.Map == nil || len(def.Examples) == 0 {
			t.Errorf("%s definition incomplete: %+v", key, def)
		}
		for i, ex := range def.Examples {
			if len(ex) != len(def.Aliases) {
				t.Errorf("%s example %d has %d cells, want %d", key, i, len(ex), len(def.Aliases))
			}
		}
	}
}

func TestMapDoctor_SpanishHeaders(t *testing.T) {
	rows := parseRows(t, "Nombres,Apellidos,Correo Electrónico,Celular,Matrícula,Especialidad,Dirección,Ciudad\n"+
		"  Ana  María , García, ANA@Example.com ,+54 11 5555 0101,MN 123,,Av. Siempre Viva 742,Rosario\n")

	params := core.SharedParams{CountryID: "ar", CategoryIDs: []string{"c1"}, SpecialtyID: "sp-9"}
	recs := core.MapRecords(doctorsDefinition(), rows, params)
	d := recs[0].Payload.(Doctor)

	want := Doctor{
		FirstName:     "Ana María",
		LastName:      "García",
		Email:         "ana@example.com",
		Phone:         "+541155550101",
		LicenseNumber: "MN123",
		SpecialtyID:   "sp-9",
		Address:       "Av. Siempre Viva 742",
		City:          "Rosario",
		CountryID:     "ar",
		CategoryIDs:   []string{"c1"},
	}
	if d.FirstName != want.FirstName || d.LastName != want.LastName || d.Email != want.Email ||
		d.Phone != want.Phone || d.LicenseNumber != want.LicenseNumber || d.SpecialtyID != want.SpecialtyID ||
		d.Address != want.Address || d.City != want.City || d.CountryID != want.CountryID ||
		!slices.Equal(d.CategoryIDs, want.CategoryIDs) {
		t.Errorf("mapDoctor() = %+v, want %+v", d, want)
	}
}

func TestMapDoctor_SpecialtyCellWins(t *testing.T) {
	rows := parseRows(t, "First Name,Specialty\nLuis,Pediatría\n")
	d := mapDoctor(rows[0], core.SharedParams{CountryID: "ar", SpecialtyID: "sp-9"}).(Doctor)
	if d.Specialty != "Pediatría" || d.SpecialtyID != "" {
		t.Errorf("specialty = %q / %q", d.Specialty, d.SpecialtyID)
	}
}

func TestMapDoctor_MissingColumnsAreEmpty(t *testing.T) {
	rows := parseRows(t, "Unrelated\nx\n")
	d := mapDoctor(rows[0], core.SharedParams{CountryID: "ar"}).(Doctor)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["firstName"] != "" || got["countryId"] != "ar" {
		t.Errorf("payload = %s", data)
	}
	if cats, ok := got["categoryIds"].([]any); !ok || len(cats) != 0 {
		t.Errorf("categoryIds = %v, want []", got["categoryIds"])
	}
}

func TestMapSpecialty(t *testing.T) {
	rows := parseRows(t, "Nombre;Descripción;Código\nCardiología;Corazón;card \n")
	s := mapSpecialty(rows[0], core.SharedParams{CountryID: "cl"}).(Specialty)
	if s.Name != "Cardiología" || s.Description != "Corazón" || s.CountryID != "cl" {
		t.Errorf("mapSpecialty() = %+v", s)
	}
}

func TestTemplatesIngestCleanly(t *testing.T) {
	for _, def := range core.All() {
		data, err := core.ExportTemplate(def, core.TemplateXLSX)
		if err != nil {
			t.Fatalf("%s: %v", def.Key, err)
		}
		rows, err := core.Ingest(context.Background(), "t.xlsx", data)
		if err != nil {
			t.Fatalf("%s: %v", def.Key, err)
		}
		if len(rows) != len(def.Examples) {
			t.Errorf("%s: got %d rows, want %d", def.Key, len(rows), len(def.Examples))
		}
		if extra := def.Aliases.Unmatched(core.HeaderOf(rows)); len(extra) > 0 {
			t.Errorf("%s: unmatched template columns %v", def.Key, extra)
		}
	}
}

func TestNormalizers(t *testing.T) {
	if got := NormalizeCode(" ca rd "); got != "CARD" {
		t.Errorf("NormalizeCode() = %q", got)
	}
	if got := NormalizeEmail(" A@B.COM "); got != "a@b.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
