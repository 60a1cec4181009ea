package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// Filter decides whether a record is imported. Records it rejects are
// counted as processed but produce no edits.
type Filter func(kind openalex.EntityKind, raw json.RawMessage) (bool, error)

// CountryFilter keeps institutions located in country and authors whose last
// known institution is located there. Other kinds pass unfiltered.
func CountryFilter(country string) Filter {
	country = strings.ToUpper(strings.TrimSpace(country))
	return func(kind openalex.EntityKind, raw json.RawMessage) (bool, error) {
		switch kind {
		case openalex.Institutions:
			var inst struct {
				CountryCode string `json:"country_code"`
				Geo         struct {
					CountryCode string `json:"country_code"`
				} `json:"geo"`
			}
			if err := json.Unmarshal(raw, &inst); err != nil {
				return false, err
			}
			code := inst.CountryCode
			if code == "" {
				code = inst.Geo.CountryCode
			}
			return strings.EqualFold(code, country), nil
		case openalex.Authors:
			var author struct {
				LastKnownInstitution *struct {
					CountryCode string `json:"country_code"`
				} `json:"last_known_institution"`
			}
			if err := json.Unmarshal(raw, &author); err != nil {
				return false, err
			}
			inst := author.LastKnownInstitution
			return inst != nil && strings.EqualFold(inst.CountryCode, country), nil
		}
		return true, nil
	}
}
