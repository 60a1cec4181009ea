// Package edit models the self-describing edit operations submitted to the
// content store. Every edit targets exactly one entry by key and serializes
// as {"code": "...", "data": {...}}.
//
// The bulk edits (UpsertEntryByKey, SetPropertyFacts, SetRelationships) are
// declarative and idempotent under replay. CreateEntry and AddPropertyValue
// are the lower-level variants used by drafts and by relationship
// reconciliation.
package edit

import (
	"encoding/json"
	"fmt"
)

// Code identifies the kind of an edit on the wire.
type Code string

const (
	CodeUpsertEntryByKey Code = "UpsertEntryByKey"
	CodeSetPropertyFacts Code = "SetPropertyFacts"
	CodeSetRelationships Code = "SetRelationships"
	CodeCreateEntry      Code = "CreateEntry"
	CodeAddPropertyValue Code = "AddPropertyValue"
)

// Edit is one instruction targeting one entry.
type Edit interface {
	Code() Code
	Target() EntryKey
}

// The *Data types share the field layout of the exported edits without their
// MarshalJSON methods.
type (
	upsertData           UpsertEntryByKey
	setPropertyFactsData SetPropertyFacts
	setRelationshipsData SetRelationships
	createEntryData      CreateEntry
	addPropertyValueData AddPropertyValue
)

type envelope struct {
	Code Code            `json:"code"`
	Data json.RawMessage `json:"data"`
}

func encode(code Code, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", code, err)
	}
	return json.Marshal(envelope{Code: code, Data: raw})
}

// EntryFields are the scalar fields of an entry that an upsert may set.
type EntryFields struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpsertWhere identifies the entry an upsert applies to.
type UpsertWhere struct {
	EntryTypeKey string   `json:"entryTypeKey"`
	EntryKey     EntryKey `json:"entryKey"`
}

// UpsertEntryByKey creates the entry if it does not exist yet. Set is applied
// in both cases, SetOnCreate only when the entry is created.
type UpsertEntryByKey struct {
	Where       UpsertWhere  `json:"where"`
	Set         *EntryFields `json:"set,omitempty"`
	SetOnCreate *EntryFields `json:"setOnCreate,omitempty"`
}

func (e UpsertEntryByKey) Code() Code       { return CodeUpsertEntryByKey }
func (e UpsertEntryByKey) Target() EntryKey { return e.Where.EntryKey }

func (e UpsertEntryByKey) MarshalJSON() ([]byte, error) {
	return encode(e.Code(), upsertData(e))
}

// Fact is one stored value of a property, expressed in the store's lookup
// expression language.
type Fact struct {
	ValueExpression string `json:"valueExpression"`
	Note            string `json:"note,omitempty"`
}

// PropertyFacts replaces the full fact list of one property. An empty Facts
// list clears the property.
type PropertyFacts struct {
	PropertyKey string `json:"propertyKey"`
	Facts       []Fact `json:"facts"`
}

// SetPropertyFacts replaces the facts of each listed property on one entry.
type SetPropertyFacts struct {
	EntryWith EntryWith       `json:"entryWith"`
	Set       []PropertyFacts `json:"set"`
}

func (e SetPropertyFacts) Code() Code       { return CodeSetPropertyFacts }
func (e SetPropertyFacts) Target() EntryKey { return e.EntryWith.EntryKey }

func (e SetPropertyFacts) MarshalJSON() ([]byte, error) {
	return encode(e.Code(), setPropertyFactsData(e))
}

// RelationshipTarget points a relationship at another entry.
type RelationshipTarget struct {
	EntryWith EntryWith `json:"entryWith"`
}

// RelationshipSet replaces all outgoing relationships of one kind.
type RelationshipSet struct {
	PropertyKey string               `json:"propertyKey"`
	ToEntries   []RelationshipTarget `json:"toEntries"`
}

// SetRelationships replaces the listed outgoing relationships of one entry.
type SetRelationships struct {
	EntryWith EntryWith         `json:"entryWith"`
	Set       []RelationshipSet `json:"set"`
}

func (e SetRelationships) Code() Code       { return CodeSetRelationships }
func (e SetRelationships) Target() EntryKey { return e.EntryWith.EntryKey }

func (e SetRelationships) MarshalJSON() ([]byte, error) {
	return encode(e.Code(), setRelationshipsData(e))
}

// CreateEntry creates a new entry. It fails in the store if the key is
// already taken.
type CreateEntry struct {
	EntryKey     EntryKey `json:"key"`
	EntryTypeKey string   `json:"entryTypeKey"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
}

func (e CreateEntry) Code() Code       { return CodeCreateEntry }
func (e CreateEntry) Target() EntryKey { return e.EntryKey }

func (e CreateEntry) MarshalJSON() ([]byte, error) {
	return encode(e.Code(), createEntryData(e))
}

// AddPropertyValue appends a single fact to a property. Relationship facts
// use an entry reference as value expression, see EntryReference.
type AddPropertyValue struct {
	EntryWith       EntryWith `json:"entryWith"`
	PropertyKey     string    `json:"propertyKey"`
	ValueExpression string    `json:"valueExpression"`
	Note            string    `json:"note,omitempty"`
}

func (e AddPropertyValue) Code() Code       { return CodeAddPropertyValue }
func (e AddPropertyValue) Target() EntryKey { return e.EntryWith.EntryKey }

func (e AddPropertyValue) MarshalJSON() ([]byte, error) {
	return encode(e.Code(), addPropertyValueData(e))
}

// Decode parses one encoded edit. It is the inverse of json.Marshal on any
// edit in this package and is used to read recovery files back.
func Decode(data []byte) (Edit, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode edit: %w", err)
	}
	var (
		out Edit
		err error
	)
	switch env.Code {
	case CodeUpsertEntryByKey:
		var e UpsertEntryByKey
		err = json.Unmarshal(env.Data, (*upsertData)(&e))
		out = e
	case CodeSetPropertyFacts:
		var e SetPropertyFacts
		err = json.Unmarshal(env.Data, (*setPropertyFactsData)(&e))
		out = e
	case CodeSetRelationships:
		var e SetRelationships
		err = json.Unmarshal(env.Data, (*setRelationshipsData)(&e))
		out = e
	case CodeCreateEntry:
		var e CreateEntry
		err = json.Unmarshal(env.Data, (*createEntryData)(&e))
		out = e
	case CodeAddPropertyValue:
		var e AddPropertyValue
		err = json.Unmarshal(env.Data, (*addPropertyValueData)(&e))
		out = e
	default:
		return nil, fmt.Errorf("decode edit: unknown code %q", env.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Code, err)
	}
	return out, nil
}

// DecodeList parses a JSON array of encoded edits.
func DecodeList(data []byte) ([]Edit, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode edit list: %w", err)
	}
	out := make([]Edit, 0, len(raws))
	for i, raw := range raws {
		e, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("edit %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
