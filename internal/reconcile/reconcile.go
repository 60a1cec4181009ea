// Package reconcile compares the outgoing relationships an entry has in the
// store with the ones a fresh import wants it to have.
package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
)

// Delta is the difference between the stored and the desired targets of one
// relationship kind. Both lists are sorted.
type Delta struct {
	ToAdd    []edit.EntryKey
	ToRemove []edit.EntryKey
}

// RemovalUnsupported reports whether the store holds targets the import no
// longer wants. There is no edit to remove a single relationship, so these are
// only reported.
func (d Delta) RemovalUnsupported() bool {
	return len(d.ToRemove) > 0
}

// Diff computes desired − current and current − desired.
func Diff(current, desired []edit.EntryKey) Delta {
	have := make(map[edit.EntryKey]struct{}, len(current))
	for _, k := range current {
		have[k] = struct{}{}
	}
	want := make(map[edit.EntryKey]struct{}, len(desired))
	for _, k := range desired {
		want[k] = struct{}{}
	}

	var d Delta
	for k := range want {
		if _, ok := have[k]; !ok {
			d.ToAdd = append(d.ToAdd, k)
		}
	}
	for k := range have {
		if _, ok := want[k]; !ok {
			d.ToRemove = append(d.ToRemove, k)
		}
	}
	slices.Sort(d.ToAdd)
	slices.Sort(d.ToRemove)
	return d
}

// Store is the part of the content store the reconciler reads.
type Store interface {
	neolace.EntryGetter
	neolace.LookupEvaluator
}

type Reconciler struct {
	store Store
}

func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// IsNew probes the store for key.
func (r *Reconciler) IsNew(ctx context.Context, key edit.EntryKey) (bool, error) {
	lookup, err := r.store.GetEntry(ctx, key)
	if err != nil {
		return false, err
	}
	return !lookup.Found, nil
}

// Reconcile returns the edits that add every desired target of relationship
// kind that source does not have yet. A new entry has no relationships, so
// the store is not queried for it.
func (r *Reconciler) Reconcile(ctx context.Context, kind string, source edit.EntryKey, desired []edit.EntryKey, isNew bool) (Delta, []edit.Edit, error) {
	var current []edit.EntryKey
	if !isNew {
		result, err := r.store.EvaluateLookupExpression(ctx, neolace.RelationshipExpression(kind), source)
		if err != nil {
			return Delta{}, nil, fmt.Errorf("failed to fetch %s of %s: %w", kind, source, err)
		}
		current, err = result.EntryKeys()
		if err != nil {
			return Delta{}, nil, fmt.Errorf("failed to read %s of %s: %w", kind, source, err)
		}
	}

	delta := Diff(current, desired)
	if delta.RemovalUnsupported() {
		logger.Warn("Relationship removal not supported", "entry", source, "relationship", kind, "stale", delta.ToRemove)
	}
	return delta, AddEdits(source, kind, delta.ToAdd), nil
}

// AddEdits appends one relationship fact per target.
func AddEdits(source edit.EntryKey, kind string, targets []edit.EntryKey) []edit.Edit {
	edits := make([]edit.Edit, 0, len(targets))
	for _, t := range targets {
		edits = append(edits, edit.AddPropertyValue{
			EntryWith:       edit.With(source),
			PropertyKey:     kind,
			ValueExpression: edit.EntryReference(t),
		})
	}
	return edits
}
