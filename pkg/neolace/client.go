// Package neolace is the client side of the graph content store the importer
// writes to. Client is the capability set the pipeline depends on; HTTPClient
// talks to a real store and MemoryStore applies edits in process.
package neolace

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
)

var (
	// ErrNotFound is returned by HTTP calls that address a missing resource.
	// GetEntry reports missing entries through Lookup instead.
	ErrNotFound = errors.New("not found")
	// ErrUnexpectedResultShape is returned when a lookup result contains an
	// item tag the client does not understand.
	ErrUnexpectedResultShape = errors.New("unexpected lookup result shape")
	// ErrRejected is returned when the store refuses a batch of edits.
	ErrRejected = errors.New("edits rejected")
)

// Entry is the store side representation of an entity.
type Entry struct {
	Key           edit.EntryKey              `json:"key"`
	EntryType     string                     `json:"entryType"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	Properties    map[string][]string        `json:"properties,omitempty"`
	Relationships map[string][]edit.EntryKey `json:"relationships,omitempty"`
}

// Lookup is the result of an entry probe: either Found with the entry or
// missing.
type Lookup struct {
	Entry *Entry
	Found bool
}

// Found wraps an existing entry.
func Found(e *Entry) Lookup { return Lookup{Entry: e, Found: true} }

// Missing is the lookup result for an absent key.
func Missing() Lookup { return Lookup{} }

// BulkOptions scope a bulk push to a named import connection so the store can
// track provenance.
type BulkOptions struct {
	ConnectionID     string
	CreateConnection bool
}

// Draft is a two-phase batch: created first, then explicitly accepted.
type Draft struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Edits       []edit.Edit `json:"edits"`
}

// EntryGetter probes for an entry.
type EntryGetter interface {
	GetEntry(ctx context.Context, key edit.EntryKey) (Lookup, error)
}

// BulkPusher submits a batch of bulk edits that is applied as a whole or not
// at all.
type BulkPusher interface {
	PushBulkEdits(ctx context.Context, edits []edit.Edit, opts BulkOptions) error
}

// LookupEvaluator evaluates a lookup expression in the context of an entry.
type LookupEvaluator interface {
	EvaluateLookupExpression(ctx context.Context, expression string, entryKey edit.EntryKey) (*LookupResult, error)
}

// Client is the full set of store operations used by the importer.
type Client interface {
	EntryGetter
	BulkPusher
	LookupEvaluator
	CreateDraft(ctx context.Context, draft Draft) (string, error)
	AcceptDraft(ctx context.Context, draftID string) error
}
