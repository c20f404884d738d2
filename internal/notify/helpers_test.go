package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roach88/minimib/internal/testutil"
)

func testEvent() Event {
	return Event{
		ID:           testutil.NewFixedIDGenerator("").Generate(),
		Attribute:    "cpuUsage",
		Value:        90,
		Threshold:    80,
		Timestamp:    testutil.Epoch.Add(5 * time.Second),
		Uptime:       500,
		Manager:      "NetworkAdmin",
		ManagerEmail: "admin@example.com",
		Agent:        "agent-01",
	}
}

// funcSink adapts a function to Sink.
type funcSink struct {
	name string
	fn   func(ctx context.Context, ev Event) error
}

func (s funcSink) Name() string { return s.name }
func (s funcSink) Send(ctx context.Context, ev Event) error { return s.fn(ctx, ev) }

type memRecorder struct {
	mu       sync.Mutex
	events   []Event
	outcomes []Outcome
}

func (r *memRecorder) RecordAlert(ctx context.Context, ev Event, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.outcomes = append(r.outcomes, out)
	return nil
}

type statusObserver struct {
	mu   sync.Mutex
	seen map[string]string
}

func (o *statusObserver) ObserveDelivery(sink, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]string{}
	}
	o.seen[sink] = status
}

// resultFor returns the named sink's result from out.
func resultFor(t *testing.T, out Outcome, sink string) Result {
	t.Helper()
	for _, r := range out.Results {
		if r.Sink == sink {
			return r
		}
	}
	t.Fatalf("no result for sink %q", sink)
	return Result{}
}
