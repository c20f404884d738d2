package mib

import (
	"fmt"
	"slices"
)

// Space is the fixed, totally ordered set of registered identifiers.
//
// INVARIANTS:
//   - identifiers are pairwise distinct
//   - order is established once in NewSpace and never changes
//
// Space is immutable and safe for concurrent use.
type Space struct {
	oids []OID
}

// NewSpace sorts the identifiers and rejects duplicates.
// The input slice is copied.
func NewSpace(oids []OID) (*Space, error) {
	sorted := make([]OID, len(oids))
	for i, o := range oids {
		sorted[i] = o.Clone()
	}
	slices.SortFunc(sorted, OID.Compare)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Equal(sorted[i]) {
			return nil, fmt.Errorf("duplicate identifier %s", sorted[i])
		}
	}
	return &Space{oids: sorted}, nil
}

// Exact returns the registered identifier equal to cursor, if any.
func (s *Space) Exact(cursor OID) (OID, bool) {
	i, found := slices.BinarySearchFunc(s.oids, cursor, OID.Compare)
	if !found {
		return nil, false
	}
	return s.oids[i].Clone(), true
}

// Next returns the smallest registered identifier strictly greater than
// cursor. A cursor that is a strict prefix of a registered identifier
// resolves to that identifier.
func (s *Space) Next(cursor OID) (OID, bool) {
	i, found := slices.BinarySearchFunc(s.oids, cursor, OID.Compare)
	if found {
		i++
	}
	if i >= len(s.oids) {
		return nil, false
	}
	return s.oids[i].Clone(), true
}

// All returns every identifier in order.
func (s *Space) All() []OID {
	out := make([]OID, len(s.oids))
	for i, o := range s.oids {
		out[i] = o.Clone()
	}
	return out
}

// Len returns the number of registered identifiers.
func (s *Space) Len() int {
	return len(s.oids)
}
