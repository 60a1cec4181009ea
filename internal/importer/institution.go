package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

type InstitutionImporter struct{}

func (InstitutionImporter) Kind() openalex.EntityKind { return openalex.Institutions }

func (InstitutionImporter) MapToEdits(_ context.Context, raw json.RawMessage) ([]edit.Edit, error) {
	var inst openalex.Institution
	if err := decode(openalex.Institutions, raw, &inst); err != nil {
		return nil, err
	}
	key, err := keyFromID(inst.ID, "id")
	if err != nil {
		return nil, err
	}
	mag, err := magID(inst.IDs.MAG)
	if err != nil {
		return nil, err
	}

	edits := []edit.Edit{
		upsert(TypeInstitution, key, inst.DisplayName, ""),
		facts(key,
			edit.StringProperty(PropWikidata, util.IDFromURLIfSet(inst.IDs.Wikidata)),
			edit.OptionalIntegerProperty(PropMAG, mag),
			edit.StringProperty(PropROR, util.IDFromURLIfSet(nonEmpty(inst.IDs.ROR, inst.ROR))),
			edit.StringProperty(PropCountryCode, nonEmpty(inst.Geo.CountryCode, inst.CountryCode)),
			edit.StringProperty(PropInstitutionType, inst.Type),
			edit.IntegerProperty(PropWorksCount, inst.WorksCount),
			edit.IntegerProperty(PropCitedByCount, inst.CitedByCount),
			edit.StringProperty(PropWikipedia, util.WikipediaIDFromURL(inst.IDs.Wikipedia)),
			edit.StringProperty(PropHomepageURL, inst.HomepageURL),
			edit.StringListProperty(PropDisplayNameAlternatives, inst.DisplayNameAlternatives),
			edit.DateProperty(PropUpdatedDate, inst.UpdatedDate),
		),
	}

	var parents, related []edit.EntryKey
	for i, assoc := range inst.AssociatedInstitutions {
		switch assoc.Relationship {
		case openalex.RelationshipChild:
			// Inverse of the child's parent relationship.
			continue
		case openalex.RelationshipParent, openalex.RelationshipRelated:
		default:
			return nil, fmt.Errorf("%w: associated_institutions[%d].relationship %q", ErrInvalidRelationshipKind, i, assoc.Relationship)
		}

		assocKey, err := keyFromID(assoc.ID, fmt.Sprintf("associated_institutions[%d].id", i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeInstitution, assocKey, assoc.DisplayName))
		if assoc.Relationship == openalex.RelationshipParent {
			parents = append(parents, assocKey)
		} else {
			related = append(related, assocKey)
		}
	}

	edits = append(edits,
		edit.Relationships(key, RelParentInstitutions, parents),
		edit.Relationships(key, RelRelatedInstitutions, related),
	)
	return edits, nil
}
