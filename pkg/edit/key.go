package edit

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidEntryKey is returned when a string cannot be used as an entry key.
var ErrInvalidEntryKey = errors.New("invalid entry key")

// EntryKey is the stable key of an entry in the content store. It is the
// local (stripped) provider identifier, e.g. "C2778407487".
//
// Use NewEntryKey to construct one from untrusted input.
type EntryKey string

// NewEntryKey validates s and returns it as an EntryKey. Keys must be
// non-empty and must not contain whitespace or path separators.
func NewEntryKey(s string) (EntryKey, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryKey)
	}
	if strings.ContainsAny(s, "/\\") {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidEntryKey, s)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidEntryKey, s)
		}
	}
	return EntryKey(s), nil
}

func (k EntryKey) String() string {
	return string(k)
}

// EntryWith selects an entry by key.
type EntryWith struct {
	EntryKey EntryKey `json:"entryKey"`
}

// With is shorthand for EntryWith{EntryKey: k}.
func With(k EntryKey) EntryWith {
	return EntryWith{EntryKey: k}
}
