package neolace

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
)

// MemoryStore is an in-process Client. Every bulk push is applied to a copy
// of the current state and only committed when all edits succeed.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[edit.EntryKey]*Entry
	drafts  map[string][]edit.Edit
	nextID  int
	pushes  int
	edits   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[edit.EntryKey]*Entry),
		drafts:  make(map[string][]edit.Edit),
	}
}

func (m *MemoryStore) GetEntry(ctx context.Context, key edit.EntryKey) (Lookup, error) {
	if err := ctx.Err(); err != nil {
		return Lookup{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Missing(), nil
	}
	return Found(cloneEntry(e)), nil
}

func (m *MemoryStore) PushBulkEdits(ctx context.Context, edits []edit.Edit, opts BulkOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.ConnectionID == "" {
		return fmt.Errorf("push bulk edits: connection id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyLocked(edits); err != nil {
		return err
	}
	m.pushes++
	m.edits += len(edits)
	return nil
}

func (m *MemoryStore) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "draft-" + strconv.Itoa(m.nextID)
	m.drafts[id] = slices.Clone(draft.Edits)
	return id, nil
}

func (m *MemoryStore) AcceptDraft(ctx context.Context, draftID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	edits, ok := m.drafts[draftID]
	if !ok {
		return fmt.Errorf("accept draft %s: %w", draftID, ErrNotFound)
	}
	if err := m.applyLocked(edits); err != nil {
		return err
	}
	delete(m.drafts, draftID)
	m.edits += len(edits)
	return nil
}

var reRelationshipExpression = regexp.MustCompile(`^this\.get\(prop=prop\(("(?:[^"\\]|\\.)*")\)\)$`)

// EvaluateLookupExpression understands the expression built by
// RelationshipExpression only.
func (m *MemoryStore) EvaluateLookupExpression(ctx context.Context, expression string, entryKey edit.EntryKey) (*LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match := reRelationshipExpression.FindStringSubmatch(expression)
	if match == nil {
		return nil, fmt.Errorf("evaluate %s: unsupported expression", expression)
	}
	var propertyKey string
	if err := json.Unmarshal([]byte(match[1]), &propertyKey); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", expression, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey]
	if !ok {
		return nil, fmt.Errorf("evaluate %s on %s: %w", expression, entryKey, ErrNotFound)
	}
	targets := e.Relationships[propertyKey]
	values := make([]LookupValue, 0, len(targets))
	for _, t := range targets {
		values = append(values, LookupValue{Type: ValueEntry, Key: t})
	}
	return &LookupResult{ResultValue: LookupValue{Type: ValueList, Values: values}}, nil
}

// Entry returns a copy of the stored entry, or nil.
func (m *MemoryStore) Entry(key edit.EntryKey) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return cloneEntry(e)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns the number of committed pushes and applied edits.
func (m *MemoryStore) Stats() (pushes, edits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes, m.edits
}

func (m *MemoryStore) applyLocked(edits []edit.Edit) error {
	next := make(map[edit.EntryKey]*Entry, len(m.entries))
	for k, e := range m.entries {
		next[k] = cloneEntry(e)
	}

	var referenced []edit.EntryKey
	for i, ed := range edits {
		refs, err := applyEdit(next, ed)
		if err != nil {
			return fmt.Errorf("%w: edit %d (%s on %s): %w", ErrRejected, i, ed.Code(), ed.Target(), err)
		}
		referenced = append(referenced, refs...)
	}
	for _, k := range referenced {
		if _, ok := next[k]; !ok {
			return fmt.Errorf("%w: relationship target %s does not exist", ErrRejected, k)
		}
	}

	m.entries = next
	return nil
}

func applyEdit(entries map[edit.EntryKey]*Entry, ed edit.Edit) ([]edit.EntryKey, error) {
	switch e := ed.(type) {
	case edit.UpsertEntryByKey:
		cur, ok := entries[e.Where.EntryKey]
		if !ok {
			cur = &Entry{Key: e.Where.EntryKey, EntryType: e.Where.EntryTypeKey}
			entries[e.Where.EntryKey] = cur
			applyFields(cur, e.SetOnCreate)
		} else if cur.EntryType != e.Where.EntryTypeKey {
			return nil, fmt.Errorf("entry type is %s, not %s", cur.EntryType, e.Where.EntryTypeKey)
		}
		applyFields(cur, e.Set)
		return nil, nil

	case edit.CreateEntry:
		if _, ok := entries[e.EntryKey]; ok {
			return nil, fmt.Errorf("entry already exists")
		}
		entries[e.EntryKey] = &Entry{
			Key:         e.EntryKey,
			EntryType:   e.EntryTypeKey,
			Name:        e.Name,
			Description: e.Description,
		}
		return nil, nil

	case edit.SetPropertyFacts:
		cur, ok := entries[e.EntryWith.EntryKey]
		if !ok {
			return nil, ErrNotFound
		}
		for _, p := range e.Set {
			if len(p.Facts) == 0 {
				delete(cur.Properties, p.PropertyKey)
				continue
			}
			if cur.Properties == nil {
				cur.Properties = make(map[string][]string)
			}
			values := make([]string, 0, len(p.Facts))
			for _, f := range p.Facts {
				values = append(values, f.ValueExpression)
			}
			cur.Properties[p.PropertyKey] = values
		}
		return nil, nil

	case edit.SetRelationships:
		cur, ok := entries[e.EntryWith.EntryKey]
		if !ok {
			return nil, ErrNotFound
		}
		var refs []edit.EntryKey
		for _, r := range e.Set {
			if len(r.ToEntries) == 0 {
				delete(cur.Relationships, r.PropertyKey)
				continue
			}
			if cur.Relationships == nil {
				cur.Relationships = make(map[string][]edit.EntryKey)
			}
			targets := make([]edit.EntryKey, 0, len(r.ToEntries))
			for _, t := range r.ToEntries {
				targets = append(targets, t.EntryWith.EntryKey)
			}
			cur.Relationships[r.PropertyKey] = targets
			refs = append(refs, targets...)
		}
		return refs, nil

	case edit.AddPropertyValue:
		cur, ok := entries[e.EntryWith.EntryKey]
		if !ok {
			return nil, ErrNotFound
		}
		if target, isRef := edit.ParseEntryReference(e.ValueExpression); isRef {
			if cur.Relationships == nil {
				cur.Relationships = make(map[string][]edit.EntryKey)
			}
			if !slices.Contains(cur.Relationships[e.PropertyKey], target) {
				cur.Relationships[e.PropertyKey] = append(cur.Relationships[e.PropertyKey], target)
			}
			return []edit.EntryKey{target}, nil
		}
		if cur.Properties == nil {
			cur.Properties = make(map[string][]string)
		}
		cur.Properties[e.PropertyKey] = append(cur.Properties[e.PropertyKey], e.ValueExpression)
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported edit %s", ed.Code())
}

func applyFields(e *Entry, f *edit.EntryFields) {
	if f == nil {
		return
	}
	if f.Name != "" {
		e.Name = f.Name
	}
	if f.Description != "" {
		e.Description = f.Description
	}
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	if e.Properties != nil {
		c.Properties = make(map[string][]string, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = slices.Clone(v)
		}
	}
	if e.Relationships != nil {
		c.Relationships = maps.Clone(e.Relationships)
		for k, v := range c.Relationships {
			c.Relationships[k] = slices.Clone(v)
		}
	}
	return &c
}
