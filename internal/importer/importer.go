// Package importer maps snapshot records to bulk edits. Every importer is a
// pure transform unless it is given a reconciler, in which case the concept
// importer reads the store to add related concepts incrementally.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/internal/reconcile"
	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

var (
	// ErrMissingIdentifier is returned for a record or a referenced record
	// without an id.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrInvalidRelationshipKind is returned for an associated institution
	// whose relationship is not parent, child or related.
	ErrInvalidRelationshipKind = errors.New("invalid relationship kind")
)

// Importer maps one record of its kind to edits.
type Importer interface {
	Kind() openalex.EntityKind
	MapToEdits(ctx context.Context, raw json.RawMessage) ([]edit.Edit, error)
}

// Options configure the importers returned by ForKind.
type Options struct {
	// Reconciler switches relationships that may already exist in the store
	// to incremental adds. Without it relationships are set declaratively.
	Reconciler *reconcile.Reconciler
}

func ForKind(kind openalex.EntityKind, opts Options) (Importer, error) {
	switch kind {
	case openalex.Concepts:
		return &ConceptImporter{reconciler: opts.Reconciler}, nil
	case openalex.Institutions:
		return InstitutionImporter{}, nil
	case openalex.Authors:
		return AuthorImporter{}, nil
	case openalex.Venues:
		return VenueImporter{}, nil
	case openalex.Works:
		return WorkImporter{}, nil
	}
	return nil, fmt.Errorf("no importer for entity kind %q", kind)
}

// keyFromID derives the entry key from a URL shaped id. field names the
// record field for the error.
func keyFromID(id, field string) (edit.EntryKey, error) {
	local := util.IDFromURL(id)
	if local == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingIdentifier, field)
	}
	key, err := edit.NewEntryKey(local)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return key, nil
}

func decode(kind openalex.EntityKind, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", kind, err)
	}
	return nil
}

func upsert(entryType string, key edit.EntryKey, name, description string) edit.UpsertEntryByKey {
	return edit.UpsertEntryByKey{
		Where: edit.UpsertWhere{EntryTypeKey: entryType, EntryKey: key},
		Set:   &edit.EntryFields{Name: name, Description: description},
	}
}

func facts(key edit.EntryKey, set ...edit.PropertyFacts) edit.SetPropertyFacts {
	return edit.SetPropertyFacts{EntryWith: edit.With(key), Set: set}
}

func magID(id openalex.NumericID) (*int64, error) {
	n, err := util.ParseNumericID(string(id))
	if err != nil {
		return nil, fmt.Errorf("ids.mag: %w", err)
	}
	return n, nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
