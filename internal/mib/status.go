package mib

import (
	"errors"
	"fmt"
)

// Status is the protocol-level outcome of a request or of a single binding.
type Status int

const (
	// StatusSuccess means the request completed without error.
	StatusSuccess Status = iota
	// StatusNoSuchObject means the identifier is not registered.
	StatusNoSuchObject
	// StatusNotWritable means the target is read-only or computed.
	StatusNotWritable
	// StatusWrongType means the value's type does not match the attribute kind.
	StatusWrongType
	// StatusWrongValue means the value fails length or range validation.
	StatusWrongValue
	// StatusNoAccess means the principal is not authorized for the identifier.
	StatusNoAccess
	// StatusGenError is an unexpected internal failure.
	StatusGenError
	// StatusEndOfSpace means a next-walk exhausted the identifier space.
	StatusEndOfSpace
)

var statusNames = map[Status]string{
	StatusSuccess:      "success",
	StatusNoSuchObject: "noSuchObject",
	StatusNotWritable:  "notWritable",
	StatusWrongType:    "wrongType",
	StatusWrongValue:   "wrongValue",
	StatusNoAccess:     "noAccess",
	StatusGenError:     "genError",
	StatusEndOfSpace:   "endOfSpace",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error carries a Status through ordinary Go error returns.
type Error struct {
	Status  Status
	OID     OID
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.OID != nil {
		return fmt.Sprintf("%s: %s (oid=%s)", e.Status, e.Message, e.OID)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(status Status, oid OID, format string, args ...any) *Error {
	return &Error{Status: status, OID: oid, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the Status from err.
// Returns StatusSuccess for nil and StatusGenError for errors that carry none.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Status
	}
	return StatusGenError
}
