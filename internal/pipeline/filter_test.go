package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

func TestCountryFilter(t *testing.T) {
	filter := CountryFilter(" CA ")

	tests := []struct {
		name   string
		kind   openalex.EntityKind
		record string
		want   bool
	}{
		{"InstitutionMatch", openalex.Institutions, `{"country_code":"CA"}`, true},
		{"InstitutionGeoFallback", openalex.Institutions, `{"geo":{"country_code":"ca"}}`, true},
		{"InstitutionOther", openalex.Institutions, `{"country_code":"US"}`, false},
		{"AuthorMatch", openalex.Authors, `{"last_known_institution":{"country_code":"CA"}}`, true},
		{"AuthorOther", openalex.Authors, `{"last_known_institution":{"country_code":"DE"}}`, false},
		{"AuthorWithoutInstitution", openalex.Authors, `{"last_known_institution":null}`, false},
		{"ConceptsPass", openalex.Concepts, `{}`, true},
		{"WorksPass", openalex.Works, `{"id":"https://openalex.org/W1"}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := filter(tc.kind, json.RawMessage(tc.record))
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if got != tc.want {
				t.Fatalf("filter(%s) = %v, want %v", tc.record, got, tc.want)
			}
		})
	}

	if _, err := filter(openalex.Authors, json.RawMessage(`{"last_known_institution":7}`)); err == nil {
		t.Fatal("expected an error for a malformed institution")
	}
}
