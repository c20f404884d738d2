package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/notify"
	"github.com/roach88/minimib/internal/registry"
)

// State is the monitor's alarm state.
type State int

const (
	// Normal: no alert is outstanding. The monitor starts here and returns
	// once a sample is at or below the threshold.
	Normal State = iota
	// Alarmed: an alert was raised and no sample has dropped back to the
	// threshold since. Further samples above it raise nothing.
	Alarmed
)

func (s State) String() string {
	if s == Alarmed {
		return "alarmed"
	}
	return "normal"
}

// Dispatcher is the part of notify.Dispatcher the monitor needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Outcome
}

// Observer is told about every tick.
type Observer interface {
	ObserveSample(value, threshold int64)
	ObserveSampleFailure()
	ObserveAlert()
}

// Config names the attributes the monitor reads and writes.
type Config struct {
	Interval time.Duration
	// Sampled receives each reading. Must be a stored read-only integer.
	Sampled string
	// Threshold is compared against each reading. Must be an integer.
	Threshold string

	// Optional attributes copied into the alert.
	Manager      string
	ManagerEmail string
	Uptime       string

	// Agent identifies this host in alerts.
	Agent string
}

// DefaultInterval is the sampling period used when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

// Monitor runs the sample, compare, alert loop.
type Monitor struct {
	reg      *registry.Registry
	sampler  Sampler
	dispatch Dispatcher
	cfg      Config
	ids      notify.IDGenerator
	clock    registry.Clock
	observer Observer

	mu    sync.Mutex
	state State
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithIDGenerator sets the alert id source.
func WithIDGenerator(g notify.IDGenerator) Option {
	return func(m *Monitor) { m.ids = g }
}

// WithClock sets the clock used to timestamp alerts.
func WithClock(c registry.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithObserver reports ticks to o.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// New creates a monitor. The sampled and threshold attributes must exist
// and hold integers.
func New(reg *registry.Registry, sampler Sampler, dispatch Dispatcher, cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	for _, name := range []string{cfg.Sampled, cfg.Threshold} {
		def, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("monitor attribute %q not registered", name)
		}
		if def.Kind != mib.KindInteger {
			return nil, fmt.Errorf("monitor attribute %q is %s, want integer", name, def.Kind)
		}
	}
	for _, name := range []string{cfg.Manager, cfg.ManagerEmail, cfg.Uptime} {
		if _, ok := reg.Lookup(name); name != "" && !ok {
			return nil, fmt.Errorf("monitor attribute %q not registered", name)
		}
	}

	m := &Monitor{
		reg:      reg,
		sampler:  sampler,
		dispatch: dispatch,
		cfg:      cfg,
		ids:      notify.UUIDv7Generator{},
		clock:    registry.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current alarm state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run ticks every interval until ctx is cancelled. The first sample is
// taken immediately.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting", "interval", m.cfg.Interval, "sampled", m.cfg.Sampled, "threshold", m.cfg.Threshold)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.Tick(ctx)

		select {
		case <-ctx.Done():
			slog.Info("monitor stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick takes one sample and evaluates the transition. It reports whether
// an alert was dispatched. Failures are logged and leave the state as is.
func (m *Monitor) Tick(ctx context.Context) bool {
	value, err := m.sampler.Sample(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("sample failed", "error", err)
		}
		if m.observer != nil {
			m.observer.ObserveSampleFailure()
		}
		return false
	}

	m.mu.Lock()
	var (
		ev        notify.Event
		raised    bool
		recovered bool
		threshold int64
	)
	err = m.reg.Update(func(tx *registry.Tx) error {
		if err := tx.Set(m.cfg.Sampled, mib.Integer(value)); err != nil {
			return err
		}
		t, err := integerOf(tx, m.cfg.Threshold)
		if err != nil {
			return err
		}
		threshold = t

		switch {
		case m.state == Normal && value > threshold:
			m.state = Alarmed
			raised = true
			ev = m.event(tx, value, threshold)
		case m.state == Alarmed && value <= threshold:
			m.state = Normal
			recovered = true
		}
		return nil
	})
	state := m.state
	m.mu.Unlock()

	if err != nil {
		slog.Error("failed to record sample", "value", value, "error", err)
		if m.observer != nil {
			m.observer.ObserveSampleFailure()
		}
		return false
	}
	if m.observer != nil {
		m.observer.ObserveSample(value, threshold)
	}
	slog.Debug("sample", "value", value, "threshold", threshold, "state", state)

	if recovered {
		slog.Info("back below threshold", "value", value, "threshold", threshold)
	}
	if !raised {
		return false
	}

	slog.Info("threshold crossed", "alert", ev.ID, "value", value, "threshold", threshold)
	if m.observer != nil {
		m.observer.ObserveAlert()
	}
	m.dispatch.Dispatch(ctx, ev)
	return true
}

func (m *Monitor) event(tx *registry.Tx, value, threshold int64) notify.Event {
	ev := notify.Event{
		ID:        m.ids.Generate(),
		Attribute: m.cfg.Sampled,
		Value:     value,
		Threshold: threshold,
		Timestamp: m.clock.Now(),
		Agent:     m.cfg.Agent,
	}
	ev.Manager = stringOf(tx, m.cfg.Manager)
	ev.ManagerEmail = stringOf(tx, m.cfg.ManagerEmail)
	if m.cfg.Uptime != "" {
		if v, err := tx.Get(m.cfg.Uptime); err == nil {
			if ticks, ok := v.(mib.TimeTicks); ok {
				ev.Uptime = ticks
			}
		}
	}
	return ev
}

func integerOf(tx *registry.Tx, name string) (int64, error) {
	v, err := tx.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(mib.Integer)
	if !ok {
		return 0, fmt.Errorf("%s holds %s, want integer", name, v.Kind())
	}
	return int64(n), nil
}

func stringOf(tx *registry.Tx, name string) string {
	if name == "" {
		return ""
	}
	v, err := tx.Get(name)
	if err != nil {
		return ""
	}
	return v.String()
}
