package importer

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/openalex-import/internal/reconcile"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

const conceptRecord = `{
  "id": "https://openalex.org/C121332964",
  "wikidata": "https://www.wikidata.org/wiki/Q413",
  "display_name": "Quantum electrodynamics",
  "level": 3,
  "description": "relativistic quantum field theory of electrodynamics",
  "works_count": 1200,
  "cited_by_count": 99000,
  "ids": {
    "openalex": "https://openalex.org/C121332964",
    "wikidata": "https://www.wikidata.org/wiki/Q413",
    "wikipedia": "https://en.wikipedia.org/wiki/Quantum%20electrodynamics",
    "umls_cui": ["C0034380"],
    "mag": "121332964"
  },
  "ancestors": [
    {"id": "https://openalex.org/C0", "display_name": "Physics", "level": 0},
    {"id": "https://openalex.org/C1", "display_name": "Quantum mechanics", "level": 1},
    {"id": "https://openalex.org/C2", "display_name": "Quantum field theory", "level": 2},
    {"id": "https://openalex.org/C4", "display_name": "Deeper", "level": 4}
  ],
  "related_concepts": [
    {"id": "https://openalex.org/C10", "display_name": "Photon", "level": 2, "score": 3.2}
  ],
  "updated_date": "2022-10-09T09:37:13.298106"
}`

func mapRecord(t *testing.T, im Importer, record string) []edit.Edit {
	t.Helper()
	edits, err := im.MapToEdits(context.Background(), json.RawMessage(record))
	if err != nil {
		t.Fatalf("MapToEdits: %v", err)
	}
	return edits
}

func relationshipsOf(edits []edit.Edit, source edit.EntryKey, propertyKey string) ([]edit.EntryKey, bool) {
	for _, e := range edits {
		rel, ok := e.(edit.SetRelationships)
		if !ok || rel.Target() != source {
			continue
		}
		for _, set := range rel.Set {
			if set.PropertyKey != propertyKey {
				continue
			}
			keys := make([]edit.EntryKey, 0, len(set.ToEntries))
			for _, to := range set.ToEntries {
				keys = append(keys, to.EntryWith.EntryKey)
			}
			return keys, true
		}
	}
	return nil, false
}

func factsOf(edits []edit.Edit, source edit.EntryKey, propertyKey string) []edit.Fact {
	for _, e := range edits {
		pf, ok := e.(edit.SetPropertyFacts)
		if !ok || pf.Target() != source {
			continue
		}
		for _, set := range pf.Set {
			if set.PropertyKey == propertyKey {
				return set.Facts
			}
		}
	}
	return nil
}

func pushAll(t *testing.T, store *neolace.MemoryStore, edits []edit.Edit) {
	t.Helper()
	if err := store.PushBulkEdits(context.Background(), edits, neolace.BulkOptions{ConnectionID: "openalex"}); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestConcept_ParentsAreOneLevelUp(t *testing.T) {
	edits := mapRecord(t, &ConceptImporter{}, conceptRecord)

	parents, ok := relationshipsOf(edits, "C121332964", RelParentConcept)
	if !ok {
		t.Fatal("no parent-concept relationship edit")
	}
	if !slices.Equal(parents, []edit.EntryKey{"C2"}) {
		t.Fatalf("parents = %v, want [C2]", parents)
	}

	for _, e := range edits {
		up, ok := e.(edit.UpsertEntryByKey)
		if !ok || up.Target() != "C2" {
			continue
		}
		if up.Set != nil || up.SetOnCreate == nil || up.SetOnCreate.Name != "Quantum field theory" {
			t.Fatalf("parent must be upserted with a name on create only: %+v", up)
		}
	}
}

func TestConcept_PropertyMapping(t *testing.T) {
	edits := mapRecord(t, &ConceptImporter{}, conceptRecord)
	key := edit.EntryKey("C121332964")

	tests := []struct {
		property string
		want     []string
	}{
		{PropWikidata, []string{`"Q413"`}},
		{PropLevel, []string{"3"}},
		{PropMAG, []string{"121332964"}},
		{PropWikipedia, []string{`"Quantum_electrodynamics"`}},
		{PropUMLSCUI, []string{`"C0034380"`}},
		{PropUMLSAUI, []string{}},
		{PropUpdatedDate, []string{`date("2022-10-09")`}},
	}
	for _, tc := range tests {
		t.Run(tc.property, func(t *testing.T) {
			got := []string{}
			for _, f := range factsOf(edits, key, tc.property) {
				got = append(got, f.ValueExpression)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("%s = %v, want %v", tc.property, got, tc.want)
			}
		})
	}

	related, ok := relationshipsOf(edits, key, RelRelatedConcepts)
	if !ok || !slices.Equal(related, []edit.EntryKey{"C10"}) {
		t.Fatalf("related = %v", related)
	}
}

func TestConcept_IdempotentReimport(t *testing.T) {
	store := neolace.NewMemoryStore()
	im := &ConceptImporter{}

	pushAll(t, store, mapRecord(t, im, conceptRecord))
	pushAll(t, store, mapRecord(t, im, conceptRecord))
	first := store.Entry("C121332964")

	var changed map[string]any
	if err := json.Unmarshal([]byte(conceptRecord), &changed); err != nil {
		t.Fatal(err)
	}
	changed["works_count"] = 1300
	raw, _ := json.Marshal(changed)
	pushAll(t, store, mapRecord(t, im, string(raw)))

	got := store.Entry("C121332964")
	for prop, values := range got.Properties {
		if len(values) != len(first.Properties[prop]) {
			t.Fatalf("%s accumulated facts: %v", prop, values)
		}
	}
	if v := got.Properties[PropWorksCount]; len(v) != 1 || v[0] != "1300" {
		t.Fatalf("works-count = %v, want [1300]", v)
	}
	if v := got.Relationships[RelParentConcept]; !slices.Equal(v, []edit.EntryKey{"C2"}) {
		t.Fatalf("parent-concept = %v", v)
	}
	if store.Entry("C2").Name != "Quantum field theory" {
		t.Fatal("parent stub not created")
	}
}

func TestConcept_StubDoesNotOverwriteFullRecord(t *testing.T) {
	store := neolace.NewMemoryStore()
	im := &ConceptImporter{}
	pushAll(t, store, mapRecord(t, im, `{"id":"https://openalex.org/C2","display_name":"Quantum field theory (full)","level":2}`))
	pushAll(t, store, mapRecord(t, im, conceptRecord))

	if got := store.Entry("C2").Name; got != "Quantum field theory (full)" {
		t.Fatalf("stub overwrote name: %q", got)
	}
}

func TestConcept_OnlineRelatedConcepts(t *testing.T) {
	store := neolace.NewMemoryStore()
	im := &ConceptImporter{reconciler: reconcile.New(store)}

	edits := mapRecord(t, im, conceptRecord)
	if _, ok := relationshipsOf(edits, "C121332964", RelRelatedConcepts); ok {
		t.Fatal("online mode must not set related concepts declaratively")
	}
	pushAll(t, store, edits)

	// Second pass sees the existing entry and adds nothing new.
	edits = mapRecord(t, im, conceptRecord)
	for _, e := range edits {
		if _, ok := e.(edit.AddPropertyValue); ok {
			t.Fatalf("unexpected add on re-import: %+v", e)
		}
	}
	if got := store.Entry("C121332964").Relationships[RelRelatedConcepts]; !slices.Equal(got, []edit.EntryKey{"C10"}) {
		t.Fatalf("related-concepts = %v", got)
	}
}

func TestMissingIdentifier(t *testing.T) {
	tests := []struct {
		name   string
		kind   openalex.EntityKind
		record string
	}{
		{"Concept", openalex.Concepts, `{"display_name":"x","level":0}`},
		{"ConceptAncestor", openalex.Concepts, `{"id":"https://openalex.org/C1","level":1,"ancestors":[{"level":0}]}`},
		{"Institution", openalex.Institutions, `{"display_name":"x"}`},
		{"Author", openalex.Authors, `{"id":""}`},
		{"AuthorInstitution", openalex.Authors, `{"id":"https://openalex.org/A1","last_known_institution":{"display_name":"x"}}`},
		{"Venue", openalex.Venues, `{}`},
		{"Work", openalex.Works, `{"title":"x"}`},
		{"WorkAuthor", openalex.Works, `{"id":"https://openalex.org/W1","authorships":[{"author":{"display_name":"x"}}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			im, err := ForKind(tc.kind, Options{})
			if err != nil {
				t.Fatalf("ForKind: %v", err)
			}
			_, err = im.MapToEdits(context.Background(), json.RawMessage(tc.record))
			if !errors.Is(err, ErrMissingIdentifier) {
				t.Fatalf("expected ErrMissingIdentifier, got %v", err)
			}
		})
	}
}

func TestForKind(t *testing.T) {
	for _, kind := range openalex.AllKinds {
		im, err := ForKind(kind, Options{})
		if err != nil {
			t.Fatalf("ForKind(%s): %v", kind, err)
		}
		if im.Kind() != kind {
			t.Fatalf("ForKind(%s).Kind() = %s", kind, im.Kind())
		}
	}
	if _, err := ForKind("funders", Options{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestMalformedField(t *testing.T) {
	_, err := (&ConceptImporter{}).MapToEdits(context.Background(), json.RawMessage(`{"id":"https://openalex.org/C1","level":"three"}`))
	if err == nil {
		t.Fatal("expected error for a level of the wrong type")
	}
	_, err = AuthorImporter{}.MapToEdits(context.Background(), json.RawMessage(`{"id":"https://openalex.org/A1","ids":{"mag":"12x"}}`))
	if err == nil {
		t.Fatal("expected error for a non-numeric mag id")
	}
}
