package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/internal/reconcile"
	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

type ConceptImporter struct {
	reconciler *reconcile.Reconciler
}

func (*ConceptImporter) Kind() openalex.EntityKind { return openalex.Concepts }

func (im *ConceptImporter) MapToEdits(ctx context.Context, raw json.RawMessage) ([]edit.Edit, error) {
	var c openalex.Concept
	if err := decode(openalex.Concepts, raw, &c); err != nil {
		return nil, err
	}
	key, err := keyFromID(c.ID, "id")
	if err != nil {
		return nil, err
	}
	mag, err := magID(c.IDs.MAG)
	if err != nil {
		return nil, err
	}

	// The probe has to happen before this record's upsert reaches the store.
	isNew := false
	if im.reconciler != nil {
		if isNew, err = im.reconciler.IsNew(ctx, key); err != nil {
			return nil, err
		}
	}

	description := ""
	if c.Description != nil {
		description = *c.Description
	}
	edits := []edit.Edit{
		upsert(TypeConcept, key, c.DisplayName, description),
		facts(key,
			edit.StringProperty(PropWikidata, util.IDFromURLIfSet(nonEmpty(c.IDs.Wikidata, c.Wikidata))),
			edit.IntegerProperty(PropLevel, int64(c.Level)),
			edit.IntegerProperty(PropWorksCount, c.WorksCount),
			edit.IntegerProperty(PropCitedByCount, c.CitedByCount),
			edit.OptionalIntegerProperty(PropMAG, mag),
			edit.StringProperty(PropWikipedia, util.WikipediaIDFromURL(c.IDs.Wikipedia)),
			edit.StringListProperty(PropUMLSAUI, c.IDs.UMLSAUI),
			edit.StringListProperty(PropUMLSCUI, c.IDs.UMLSCUI),
			edit.DateProperty(PropUpdatedDate, c.UpdatedDate),
		),
	}

	// Parents are the ancestors exactly one level up.
	var parents []edit.EntryKey
	for i, a := range c.Ancestors {
		if a.Level != c.Level-1 {
			continue
		}
		parentKey, err := keyFromID(a.ID, fmt.Sprintf("ancestors[%d].id", i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeConcept, parentKey, a.DisplayName))
		parents = append(parents, parentKey)
	}
	edits = append(edits, edit.Relationships(key, RelParentConcept, parents))

	var related []edit.EntryKey
	for i, rc := range c.RelatedConcepts {
		relatedKey, err := keyFromID(rc.ID, fmt.Sprintf("related_concepts[%d].id", i))
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit.Stub(TypeConcept, relatedKey, rc.DisplayName))
		related = append(related, relatedKey)
	}

	if im.reconciler == nil {
		return append(edits, edit.Relationships(key, RelRelatedConcepts, related)), nil
	}
	_, adds, err := im.reconciler.Reconcile(ctx, RelRelatedConcepts, key, related, isNew)
	if err != nil {
		return nil, err
	}
	return append(edits, adds...), nil
}
