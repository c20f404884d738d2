package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/minimib/internal/mib"
)

// Event is the snapshot taken at the moment a threshold is crossed.
type Event struct {
	ID           string
	Attribute    string
	Value        int64
	Threshold    int64
	Timestamp    time.Time
	Uptime       mib.TimeTicks
	Manager      string
	ManagerEmail string
	// Agent identifies the reporting host.
	Agent string
}

// IDGenerator produces alert ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 alert ids, so history
// rows sort by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
