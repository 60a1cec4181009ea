package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

type AuthorImporter struct{}

func (AuthorImporter) Kind() openalex.EntityKind { return openalex.Authors }

func (AuthorImporter) MapToEdits(_ context.Context, raw json.RawMessage) ([]edit.Edit, error) {
	var a openalex.Author
	if err := decode(openalex.Authors, raw, &a); err != nil {
		return nil, err
	}
	key, err := keyFromID(a.ID, "id")
	if err != nil {
		return nil, err
	}
	mag, err := magID(a.IDs.MAG)
	if err != nil {
		return nil, err
	}
	scopus, err := util.ScopusAuthorID(a.IDs.Scopus)
	if err != nil {
		return nil, fmt.Errorf("ids.scopus: %w", err)
	}

	edits := []edit.Edit{
		upsert(TypeAuthor, key, a.DisplayName, ""),
		facts(key,
			edit.StringProperty(PropORCID, util.IDFromURLIfSet(nonEmpty(a.IDs.ORCID, a.ORCID))),
			edit.IntegerProperty(PropWorksCount, a.WorksCount),
			edit.IntegerProperty(PropCitedByCount, a.CitedByCount),
			edit.OptionalIntegerProperty(PropMAG, mag),
			edit.StringProperty(PropWikipedia, util.WikipediaIDFromURL(a.IDs.Wikipedia)),
			edit.StringProperty(PropScopus, scopus),
			edit.StringProperty(PropTwitter, a.IDs.Twitter),
			edit.StringListProperty(PropDisplayNameAlternatives, a.DisplayNameAlternatives),
			edit.DateProperty(PropUpdatedDate, a.UpdatedDate),
		),
	}

	var institution []edit.EntryKey
	if lki := a.LastKnownInstitution; lki != nil {
		instKey, err := keyFromID(lki.ID, "last_known_institution.id")
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeInstitution, instKey, lki.DisplayName))
		institution = append(institution, instKey)
	}
	edits = append(edits, edit.Relationships(key, RelLastKnownInstitution, institution))
	return edits, nil
}
