package edit

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
)

// Quote renders s as a string literal of the lookup expression language.
func Quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// EntryReference renders a value expression that points at another entry.
func EntryReference(k EntryKey) string {
	return "entry(" + Quote(string(k)) + ")"
}

var reEntryReference = regexp.MustCompile(`^entry\(("(?:[^"\\]|\\.)*")\)$`)

// ParseEntryReference is the inverse of EntryReference.
func ParseEntryReference(expr string) (EntryKey, bool) {
	m := reEntryReference.FindStringSubmatch(expr)
	if m == nil {
		return "", false
	}
	var key string
	if err := json.Unmarshal([]byte(m[1]), &key); err != nil {
		return "", false
	}
	return EntryKey(key), true
}

// StringProperty sets a single string fact. An empty value clears the property.
func StringProperty(propertyKey, value string) PropertyFacts {
	if value == "" {
		return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{}}
	}
	return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{{ValueExpression: Quote(value)}}}
}

// StringListProperty sets one fact per non-empty value.
func StringListProperty(propertyKey string, values []string) PropertyFacts {
	facts := make([]Fact, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		facts = append(facts, Fact{ValueExpression: Quote(v)})
	}
	return PropertyFacts{PropertyKey: propertyKey, Facts: facts}
}

// IntegerProperty sets a single integer fact.
func IntegerProperty(propertyKey string, value int64) PropertyFacts {
	return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{{ValueExpression: strconv.FormatInt(value, 10)}}}
}

// OptionalIntegerProperty sets a single integer fact, or clears the property
// when value is nil.
func OptionalIntegerProperty(propertyKey string, value *int64) PropertyFacts {
	if value == nil {
		return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{}}
	}
	return IntegerProperty(propertyKey, *value)
}

// BooleanProperty sets a single boolean fact, or clears the property when
// value is nil.
func BooleanProperty(propertyKey string, value *bool) PropertyFacts {
	if value == nil {
		return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{}}
	}
	return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{{ValueExpression: strconv.FormatBool(*value)}}}
}

// DateProperty sets a single date fact. The store's date values have no time
// component, so date-times are cut to their first 10 characters.
func DateProperty(propertyKey, value string) PropertyFacts {
	if value == "" {
		return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{}}
	}
	if len(value) > 10 {
		value = value[:10]
	}
	return PropertyFacts{PropertyKey: propertyKey, Facts: []Fact{{ValueExpression: "date(" + Quote(value) + ")"}}}
}

// Relationships builds a single-kind SetRelationships edit. Duplicate targets
// are collapsed, order is preserved.
func Relationships(source EntryKey, propertyKey string, targets []EntryKey) SetRelationships {
	seen := make(map[EntryKey]struct{}, len(targets))
	to := make([]RelationshipTarget, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		to = append(to, RelationshipTarget{EntryWith: With(t)})
	}
	return SetRelationships{
		EntryWith: With(source),
		Set:       []RelationshipSet{{PropertyKey: propertyKey, ToEntries: to}},
	}
}

// Stub upserts an entry that is referenced by another one. Only the name is
// set, and only if the entry does not exist yet.
func Stub(entryTypeKey string, key EntryKey, name string) UpsertEntryByKey {
	return UpsertEntryByKey{
		Where:       UpsertWhere{EntryTypeKey: entryTypeKey, EntryKey: key},
		SetOnCreate: &EntryFields{Name: name},
	}
}
