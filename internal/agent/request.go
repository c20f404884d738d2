package agent

import (
	"fmt"

	"github.com/roach88/minimib/internal/mib"
)

// Verb selects the protocol operation.
type Verb int

const (
	// VerbGet fetches each identifier exactly.
	VerbGet Verb = iota + 1
	// VerbGetNext fetches the next readable identifier after each cursor.
	VerbGetNext
	// VerbSet validates and writes every binding as one batch.
	VerbSet
)

func (v Verb) String() string {
	switch v {
	case VerbGet:
		return "get"
	case VerbGetNext:
		return "getnext"
	case VerbSet:
		return "set"
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// ParseVerb converts a verb name back into a Verb.
func ParseVerb(s string) (Verb, error) {
	switch s {
	case "get":
		return VerbGet, nil
	case "getnext":
		return VerbGetNext, nil
	case "set":
		return VerbSet, nil
	}
	return 0, fmt.Errorf("unknown verb %q", s)
}

// Binding is one identifier with its value or exception.
//
// In requests, Value is the value to write (SET only). In responses,
// Exception is StatusSuccess when Value holds the result, or one of
// StatusNoSuchObject, StatusNoAccess, StatusEndOfSpace.
type Binding struct {
	OID       mib.OID
	Value     mib.Value
	Exception mib.Status
}

// Request is a decoded protocol request.
type Request struct {
	Verb      Verb
	Principal string
	Bindings  []Binding
}

// Response is the result to encode.
//
// FailingIndex is the one-based position of the binding that caused a
// request-level error, or zero when no single binding is to blame.
type Response struct {
	Status       mib.Status
	FailingIndex int
	Bindings     []Binding
}
