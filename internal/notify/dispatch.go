package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single sink's delivery attempt.
const DefaultTimeout = 10 * time.Second

// Sink delivers an event over one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Result statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Result is one sink's delivery attempt.
type Result struct {
	Sink    string
	Status  string
	Err     error
	Elapsed time.Duration
}

// Outcome lists results in sink order.
type Outcome struct {
	EventID string
	Results []Result
}

// Delivered counts successful sinks.
func (o Outcome) Delivered() int {
	n := 0
	for _, r := range o.Results {
		if r.Status == StatusDelivered {
			n++
		}
	}
	return n
}

// Recorder persists dispatched alerts.
type Recorder interface {
	RecordAlert(ctx context.Context, ev Event, out Outcome) error
}

// Observer is told about every sink result.
type Observer interface {
	ObserveDelivery(sink, status string, elapsed time.Duration)
}

// Dispatcher fans events out to sinks.
type Dispatcher struct {
	sinks    []Sink
	timeout  time.Duration
	recorder Recorder
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-sink delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithRecorder stores every outcome.
func WithRecorder(r Recorder) Option {
	return func(x *Dispatcher) {
		x.recorder = r
	}
}

// WithObserver reports per-sink results.
func WithObserver(o Observer) Option {
	return func(x *Dispatcher) {
		x.observer = o
	}
}

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type indexedResult struct {
	idx int
	res Result
}

// Dispatch sends ev to every sink and waits for each to finish, time out,
// or be abandoned because ctx ended.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	out := Outcome{EventID: ev.ID, Results: make([]Result, len(d.sinks))}
	if len(d.sinks) == 0 {
		d.record(ctx, ev, out)
		return out
	}

	// Buffered so late sinks never block after we stop listening.
	ch := make(chan indexedResult, len(d.sinks))
	for i, s := range d.sinks {
		out.Results[i] = Result{Sink: s.Name(), Status: StatusAbandoned}
		go func() {
			ch <- indexedResult{idx: i, res: d.send(ctx, s, ev)}
		}()
	}

	started := time.Now()
	for pending := len(d.sinks); pending > 0; {
		select {
		case r := <-ch:
			out.Results[r.idx] = r.res
			pending--
		case <-ctx.Done():
			for i := range out.Results {
				if out.Results[i].Status == StatusAbandoned {
					out.Results[i].Err = ctx.Err()
					out.Results[i].Elapsed = time.Since(started)
				}
			}
			pending = 0
		}
	}

	for _, r := range out.Results {
		switch r.Status {
		case StatusDelivered:
			slog.Info("alert delivered", "alert", ev.ID, "sink", r.Sink, "elapsed", r.Elapsed)
		case StatusAbandoned:
			slog.Warn("alert delivery abandoned", "alert", ev.ID, "sink", r.Sink)
		default:
			slog.Error("alert delivery failed", "alert", ev.ID, "sink", r.Sink, "error", r.Err)
		}
		if d.observer != nil {
			d.observer.ObserveDelivery(r.Sink, r.Status, r.Elapsed)
		}
	}

	d.record(ctx, ev, out)
	return out
}

func (d *Dispatcher) send(ctx context.Context, s Sink, ev Event) (res Result) {
	res.Sink = s.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("sink %s panicked: %v", res.Sink, p)
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			res.Status = StatusFailed
		} else {
			res.Status = StatusDelivered
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	res.Err = s.Send(sctx, ev)
	return res
}

func (d *Dispatcher) record(ctx context.Context, ev Event, out Outcome) {
	if d.recorder == nil {
		return
	}
	// History is written even when the dispatch context was cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.recorder.RecordAlert(rctx, ev, out); err != nil {
		slog.Error("failed to record alert", "alert", ev.ID, "error", err)
	}
}
