// Package mib provides the foundational types for the minimib agent.
//
// This package contains the object identifier model, typed attribute values,
// the protocol status taxonomy, attribute definitions and the ordered
// identifier space. All other internal packages import mib; mib imports
// nothing internal.
//
// Key design constraints:
//   - OIDs are immutable once constructed; every method returning an OID
//     returns a fresh slice
//   - Ordering is lexicographic by component, shorter prefix first
//   - The identifier space is fixed at construction and never re-sorted
package mib
