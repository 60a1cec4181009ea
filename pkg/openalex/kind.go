package openalex

import (
	"fmt"
	"slices"
	"strings"
)

// EntityKind is one of the provider's entity types. Its value is the name of
// the snapshot directory, e.g. "data/concepts/".
type EntityKind string

const (
	Concepts     EntityKind = "concepts"
	Institutions EntityKind = "institutions"
	Venues       EntityKind = "venues"
	Authors      EntityKind = "authors"
	Works        EntityKind = "works"
)

// AllKinds lists every kind in import order. Referenced kinds come before
// the kinds that reference them so that names set by a full record win over
// stub names.
var AllKinds = []EntityKind{Concepts, Institutions, Venues, Authors, Works}

// ParseEntityKinds parses a comma separated list of kinds. "all" expands to
// AllKinds. The result keeps import order and contains no duplicates.
func ParseEntityKinds(s string) ([]EntityKind, error) {
	requested := make(map[EntityKind]struct{})
	for part := range strings.SplitSeq(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			return slices.Clone(AllKinds), nil
		}
		kind := EntityKind(part)
		if !slices.Contains(AllKinds, kind) {
			return nil, fmt.Errorf("unknown entity kind %q", part)
		}
		requested[kind] = struct{}{}
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("no entity kinds given")
	}

	out := make([]EntityKind, 0, len(requested))
	for _, kind := range AllKinds {
		if _, ok := requested[kind]; ok {
			out = append(out, kind)
		}
	}
	return out, nil
}

// Prefix returns the object storage prefix that holds the kind's snapshot.
func (k EntityKind) Prefix() string {
	return "data/" + string(k) + "/"
}

// ManifestKey returns the object key of the kind's manifest.
func (k EntityKind) ManifestKey() string {
	return k.Prefix() + "manifest"
}
