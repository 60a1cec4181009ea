package neolace

import (
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
)

// Lookup value tags returned by the store.
const (
	ValueEntry     = "Entry"
	ValueAnnotated = "Annotated"
	ValuePage      = "Page"
	ValueList      = "List"
	ValueNull      = "Null"
)

// LookupValue is one node of a structured lookup result.
type LookupValue struct {
	Type        string                     `json:"type"`
	Key         edit.EntryKey              `json:"key,omitempty"`
	Value       *LookupValue               `json:"value,omitempty"`
	Values      []LookupValue              `json:"values,omitempty"`
	Annotations map[string]json.RawMessage `json:"annotations,omitempty"`
}

// LookupResult is the response to a lookup expression evaluation.
type LookupResult struct {
	ResultValue LookupValue `json:"resultValue"`
}

// RelationshipExpression returns the lookup expression that lists the targets
// of the outgoing relationship propertyKey of the context entry.
func RelationshipExpression(propertyKey string) string {
	return "this.get(prop=prop(" + edit.Quote(propertyKey) + "))"
}

// EntryKeys flattens a lookup result into the keys of the entries it
// contains. Items must be Entry or Annotated(Entry); anything else yields
// ErrUnexpectedResultShape.
func (r *LookupResult) EntryKeys() ([]edit.EntryKey, error) {
	if r == nil {
		return nil, nil
	}
	top := r.ResultValue
	switch top.Type {
	case ValueNull, "":
		return nil, nil
	case ValuePage, ValueList:
		keys := make([]edit.EntryKey, 0, len(top.Values))
		for i := range top.Values {
			k, err := entryKeyOf(&top.Values[i])
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			keys = append(keys, k)
		}
		return keys, nil
	default:
		k, err := entryKeyOf(&top)
		if err != nil {
			return nil, err
		}
		return []edit.EntryKey{k}, nil
	}
}

func entryKeyOf(v *LookupValue) (edit.EntryKey, error) {
	switch v.Type {
	case ValueEntry:
		if v.Key == "" {
			return "", fmt.Errorf("%w: entry without key", ErrUnexpectedResultShape)
		}
		return v.Key, nil
	case ValueAnnotated:
		if v.Value == nil || v.Value.Type != ValueEntry {
			return "", fmt.Errorf("%w: annotated value is not an entry", ErrUnexpectedResultShape)
		}
		return entryKeyOf(v.Value)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnexpectedResultShape, v.Type)
	}
}
