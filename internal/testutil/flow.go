package testutil

// FixedIDGenerator returns the same alert id every time.
//
// This enables golden comparison of rendered alerts, which otherwise carry
// a time-sortable random id.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
// If id is empty, Generate() returns "alert-test-0001".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "alert-test-0001"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
