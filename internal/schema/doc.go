// Package schema compiles CUE attribute schemas into mib definitions.
//
// A schema document has a dotted base identifier and an attribute struct
// keyed by attribute name:
//
//	base: "1.3.6.1.3.28308"
//	attribute: manager: {
//		oid:       "1.1.0"
//		kind:      "string"
//		access:    "read-write"
//		maxLength: 255
//	}
//
// Uses the CUE SDK's Go API directly. The compiled default schema is
// embedded in the binary; an operator may replace it with their own file.
// Any compile error is fatal at startup.
package schema
