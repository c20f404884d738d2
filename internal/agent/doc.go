// Package agent implements the three protocol verbs against the registry.
//
// A decoded request carries a verb, the principal the transport
// authenticated, and an ordered list of bindings. Handle returns the
// response to encode; it never returns an error; every failure is folded
// into the response status or a per-binding exception.
//
// Two invariants matter most:
//   - SET is all-or-nothing: authorization covers the whole batch before
//     any validation, and a failing pair or failed save leaves every value
//     unchanged
//   - GETNEXT never reveals identifiers outside the principal's readable
//     subtrees; it skips them and keeps walking
package agent
