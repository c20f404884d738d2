package mib

import (
	"fmt"
	"strconv"
	"strings"
)

// OID is an object identifier: an ordered sequence of non-negative integers.
type OID []uint32

// ParseOID parses a dotted identifier such as "1.3.6.1" or ".1.3.6.1".
// The leading dot used by the wire codec is accepted and ignored.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, fmt.Errorf("parse oid: empty identifier")
	}
	parts := strings.Split(s, ".")
	oid := make(OID, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse oid %q: component %d: %w", s, i, err)
		}
		oid[i] = uint32(n)
	}
	return oid, nil
}

// MustParseOID is ParseOID for identifiers known at compile time.
// Panics on malformed input.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the identifier in dotted form without a leading dot.
func (o OID) String() string {
	var b strings.Builder
	for i, c := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return b.String()
}

// Dotted renders the identifier with the leading dot the wire codec expects.
func (o OID) Dotted() string {
	return "." + o.String()
}

// Compare orders identifiers component by component; a strict prefix sorts
// before any of its extensions. Returns -1, 0 or 1.
func (o OID) Compare(other OID) int {
	n := min(len(o), len(other))
	for i := 0; i < n; i++ {
		switch {
		case o[i] < other[i]:
			return -1
		case o[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	}
	return 0
}

// Equal reports whether both identifiers have identical components.
func (o OID) Equal(other OID) bool {
	return o.Compare(other) == 0
}

// HasPrefix reports whether prefix is an ancestor-or-equal of o.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i, c := range prefix {
		if o[i] != c {
			return false
		}
	}
	return true
}

// Append returns a new identifier with the suffix components appended.
func (o OID) Append(suffix ...uint32) OID {
	out := make(OID, 0, len(o)+len(suffix))
	out = append(out, o...)
	return append(out, suffix...)
}

// Clone returns a copy that shares no storage with o.
func (o OID) Clone() OID {
	if o == nil {
		return nil
	}
	out := make(OID, len(o))
	copy(out, o)
	return out
}
