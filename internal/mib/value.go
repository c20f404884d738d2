package mib

import (
	"fmt"
	"strconv"
)

// Kind identifies the declared type of an attribute or value.
type Kind int

const (
	// KindString is an octet string attribute.
	KindString Kind = iota + 1
	// KindInteger is a signed integer attribute.
	KindInteger
	// KindTimeTicks is an elapsed time in hundredths of a second.
	KindTimeTicks
)

// String returns the schema spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindTimeTicks:
		return "timeticks"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts the schema spelling back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "integer":
		return KindInteger, nil
	case "timeticks":
		return KindTimeTicks, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// Value is a sealed interface over the typed attribute values.
// Only String, Integer and TimeTicks implement it.
type Value interface {
	Kind() Kind
	String() string
	mibValue()
}

// String is an octet string value.
type String string

func (String) mibValue() {}
func (String) Kind() Kind { return KindString }
func (s String) String() string { return string(s) }

// Integer is a signed integer value.
type Integer int64

func (Integer) mibValue() {}
func (Integer) Kind() Kind { return KindInteger }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

// TimeTicks is an elapsed time in hundredths of a second.
type TimeTicks uint32

func (TimeTicks) mibValue() {}
func (TimeTicks) Kind() Kind { return KindTimeTicks }
func (t TimeTicks) String() string { return strconv.FormatUint(uint64(t), 10) }

// ParseValue converts the textual form of a value of the given kind.
// Used by the persistence layer and the CLI.
func ParseValue(kind Kind, s string) (Value, error) {
	switch kind {
	case KindString:
		return String(s), nil
	case KindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", s, err)
		}
		return Integer(n), nil
	case KindTimeTicks:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse timeticks %q: %w", s, err)
		}
		return TimeTicks(n), nil
	}
	return nil, fmt.Errorf("parse value: unknown kind %d", int(kind))
}
