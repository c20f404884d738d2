// Package access decides which principals may read or write which
// identifier subtrees.
//
// Principals are opaque labels assigned by the transport (for example a
// community name mapped to "reader"). The controller is default-deny: a
// principal without rules, or an identifier outside every granted subtree,
// is refused.
package access

import (
	"fmt"
	"strings"

	"github.com/roach88/minimib/internal/mib"
)

// Mode is a set of access modes.
type Mode uint8

const (
	// Read permits GET and GETNEXT.
	Read Mode = 1 << iota
	// Write permits SET.
	Write
)

// String renders the mode set, e.g. "read+write".
func (m Mode) String() string {
	var parts []string
	if m&Read != 0 {
		parts = append(parts, "read")
	}
	if m&Write != 0 {
		parts = append(parts, "write")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ParseMode converts "read" or "write" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	}
	return 0, fmt.Errorf("unknown access mode %q", s)
}

// Rule grants modes on every identifier at or below Subtree.
type Rule struct {
	Subtree mib.OID
	Modes   Mode
}

// Controller authorizes principals against subtree rules.
// Immutable after construction and safe for concurrent use.
type Controller struct {
	rules map[string][]Rule
}

// New builds a controller from a principal -> rules policy.
// The policy is copied.
func New(policy map[string][]Rule) *Controller {
	rules := make(map[string][]Rule, len(policy))
	for principal, rs := range policy {
		cp := make([]Rule, len(rs))
		for i, r := range rs {
			cp[i] = Rule{Subtree: r.Subtree.Clone(), Modes: r.Modes}
		}
		rules[principal] = cp
	}
	return &Controller{rules: rules}
}

// Authorize reports whether principal holds mode on oid: some rule's
// subtree must be an ancestor-or-equal of oid and grant mode.
func (c *Controller) Authorize(principal string, oid mib.OID, mode Mode) bool {
	for _, r := range c.rules[principal] {
		if r.Modes&mode == mode && oid.HasPrefix(r.Subtree) {
			return true
		}
	}
	return false
}

// AuthorizeAll reports whether principal holds mode on every identifier.
// Returns the index of the first denied identifier, or -1.
func (c *Controller) AuthorizeAll(principal string, oids []mib.OID, mode Mode) int {
	for i, oid := range oids {
		if !c.Authorize(principal, oid, mode) {
			return i
		}
	}
	return -1
}

// Known reports whether the principal has any rules at all.
func (c *Controller) Known(principal string) bool {
	return len(c.rules[principal]) > 0
}
