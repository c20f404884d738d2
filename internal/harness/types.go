package harness

// Trace event types.
const (
	EventRequest = "request"
	EventTick    = "tick"
	EventAlert   = "alert"
)

// TraceEvent is one recorded step outcome.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Request fields.
	Verb         string         `json:"verb,omitempty"`
	Principal    string         `json:"principal,omitempty"`
	Status       string         `json:"status,omitempty"`
	FailingIndex int            `json:"failing_index,omitempty"`
	Bindings     []TraceBinding `json:"bindings,omitempty"`

	// Tick and alert fields.
	Value     *int64 `json:"value,omitempty"`
	Threshold *int64 `json:"threshold,omitempty"`
	State     string `json:"state,omitempty"`
	AlertID   string `json:"alert_id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// TraceBinding is a response binding in its textual form.
type TraceBinding struct {
	OID       string `json:"oid"`
	Type      string `json:"type,omitempty"`
	Value     string `json:"value,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every request, tick and alert in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final value of every attribute, by name.
	State map[string]string `json:"state,omitempty"`

	// Persisted is the saved value of every persistent attribute.
	Persisted map[string]string `json:"persisted,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		State:     make(map[string]string),
		Persisted: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns the number of trace events of the given type.
func (r *Result) Count(eventType string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}
