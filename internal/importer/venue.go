package importer

import (
	"context"
	"encoding/json"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

type VenueImporter struct{}

func (VenueImporter) Kind() openalex.EntityKind { return openalex.Venues }

func (VenueImporter) MapToEdits(_ context.Context, raw json.RawMessage) ([]edit.Edit, error) {
	var v openalex.Venue
	if err := decode(openalex.Venues, raw, &v); err != nil {
		return nil, err
	}
	key, err := keyFromID(v.ID, "id")
	if err != nil {
		return nil, err
	}
	mag, err := magID(v.IDs.MAG)
	if err != nil {
		return nil, err
	}

	issn := v.ISSN
	if len(issn) == 0 {
		issn = v.IDs.ISSN
	}
	return []edit.Edit{
		upsert(TypeVenue, key, v.DisplayName, ""),
		facts(key,
			edit.StringProperty(PropWikidata, util.IDFromURLIfSet(v.IDs.Wikidata)),
			edit.StringProperty(PropFatcat, util.IDFromURLIfSet(v.IDs.Fatcat)),
			edit.StringProperty(PropAbbreviatedTitle, v.AbbreviatedTitle),
			edit.StringListProperty(PropAlternateTitles, v.AlternateTitles),
			edit.StringProperty(PropHomepageURL, v.HomepageURL),
			edit.StringProperty(PropISSNL, nonEmpty(v.ISSNL, v.IDs.ISSNL)),
			edit.StringListProperty(PropISSN, issn),
			edit.IntegerProperty(PropWorksCount, v.WorksCount),
			edit.IntegerProperty(PropCitedByCount, v.CitedByCount),
			edit.OptionalIntegerProperty(PropMAG, mag),
			edit.StringProperty(PropWorksAPIURL, v.WorksAPIURL),
			edit.BooleanProperty(PropIsOpenAccess, v.IsOA),
			edit.BooleanProperty(PropIsInDOAJ, v.IsInDOAJ),
			edit.DateProperty(PropUpdatedDate, v.UpdatedDate),
		),
	}, nil
}
