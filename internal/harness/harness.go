package harness

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/config"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/monitor"
	"github.com/roach88/minimib/internal/notify"
	"github.com/roach88/minimib/internal/registry"
	"github.com/roach88/minimib/internal/schema"
	"github.com/roach88/minimib/internal/store"
	"github.com/roach88/minimib/internal/testutil"
)

// Agent identifies the harness host in alerts.
const Agent = "harness"

// defaultAccess is used when a scenario declares no access policy.
var defaultAccess = map[string][]config.AccessRule{
	"reader": {{Subtree: config.DefaultSubtree, Modes: []string{"read"}}},
	"writer": {{Subtree: config.DefaultSubtree, Modes: []string{"read", "write"}}},
}

// env is the wired agent a scenario runs against.
type env struct {
	clock   *testutil.FakeClock
	reg     *registry.Registry
	handler *agent.Handler
	monitor *monitor.Monitor
	store   *store.SQLite
	sampler *queueSampler
	alerts  *captureSink

	threshold string
}

// Run executes a scenario and returns its trace and verdict.
//
// Errors are returned only for setup failures (schema, policy, store).
// Expectation and assertion failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := setup(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer e.store.Close()

	result := NewResult()
	var seq int64
	next := func() int64 {
		seq++
		return seq
	}

	for i, step := range scenario.Flow {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if step.Advance > 0 {
			e.clock.Advance(step.Advance)
		}

		if step.Sample != nil {
			e.tick(ctx, i, step, result, next)
			continue
		}
		if err := e.request(ctx, i, step, result, next); err != nil {
			return nil, err
		}
	}

	if err := e.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, err := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(err.Error())
	}
	return result, nil
}

func setup(ctx context.Context, scenario *Scenario) (*env, error) {
	defs, err := loadDefinitions(scenario.Schema)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewFakeClock()
	reg, err := registry.New(defs, registry.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	policy, err := buildPolicy(scenario.Access)
	if err != nil {
		return nil, err
	}

	db, err := store.OpenSQLite(":memory:", defs)
	if err != nil {
		return nil, err
	}
	if err := store.LoadInto(ctx, db, reg); err != nil {
		db.Close()
		return nil, err
	}

	sampler := &queueSampler{}
	sink := &captureSink{}
	dispatcher := notify.NewDispatcher([]notify.Sink{sink}, notify.WithRecorder(db))

	mcfg := monitorConfig(reg)
	mon, err := monitor.New(reg, sampler, dispatcher, mcfg,
		monitor.WithClock(clock),
		monitor.WithIDGenerator(testutil.NewFixedIDGenerator("")),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &env{
		clock:   clock,
		reg:     reg,
		handler: agent.New(reg, access.New(policy), db),
		monitor: mon,
		store:   db,
		sampler: sampler,
		alerts:  sink,

		threshold: mcfg.Threshold,
	}, nil
}

func loadDefinitions(path string) ([]mib.Definition, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}

func buildPolicy(rules map[string][]config.AccessRule) (map[string][]access.Rule, error) {
	if len(rules) == 0 {
		rules = defaultAccess
	}
	return (&config.Config{Access: rules}).Policy()
}

// monitorConfig binds the monitor to the default attribute names, dropping
// the optional ones a custom schema does not define.
func monitorConfig(reg *registry.Registry) monitor.Config {
	d := config.Default().Monitor
	optional := func(name string) string {
		if _, ok := reg.Lookup(name); ok {
			return name
		}
		return ""
	}
	return monitor.Config{
		Sampled:      d.Sampled,
		Threshold:    d.Threshold,
		Manager:      optional(d.Manager),
		ManagerEmail: optional(d.ManagerEmail),
		Uptime:       optional(d.Uptime),
		Agent:        Agent,
	}
}

func (e *env) request(ctx context.Context, i int, step Step, result *Result, next func() int64) error {
	verb, err := agent.ParseVerb(step.Request)
	if err != nil {
		return fmt.Errorf("flow[%d]: %w", i, err)
	}
	req := agent.Request{Verb: verb, Principal: step.Principal}
	for _, b := range step.Bindings {
		oid, err := mib.ParseOID(b.OID)
		if err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		binding := agent.Binding{OID: oid}
		if verb == agent.VerbSet {
			if binding.Value, err = bindingValue(b); err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
		}
		req.Bindings = append(req.Bindings, binding)
	}

	resp := e.handler.Handle(ctx, req)
	ev := TraceEvent{
		Seq:          next(),
		Type:         EventRequest,
		Verb:         verb.String(),
		Principal:    step.Principal,
		Status:       resp.Status.String(),
		FailingIndex: resp.FailingIndex,
		Bindings:     traceBindings(resp.Bindings),
	}
	result.Trace = append(result.Trace, ev)

	if step.Expect != nil {
		for _, msg := range checkRequest(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d]: %s", i, msg))
		}
	}
	return nil
}

func (e *env) tick(ctx context.Context, i int, step Step, result *Result, next func() int64) {
	e.sampler.push(*step.Sample)
	before := len(e.alerts.events())
	raised := e.monitor.Tick(ctx)

	ev := TraceEvent{
		Seq:   next(),
		Type:  EventTick,
		Value: step.Sample,
		State: e.monitor.State().String(),
	}
	if t, err := e.reg.Get(e.threshold); err == nil {
		if n, ok := t.(mib.Integer); ok {
			v := int64(n)
			ev.Threshold = &v
		}
	}
	result.Trace = append(result.Trace, ev)

	for _, alert := range e.alerts.events()[before:] {
		value, threshold := alert.Value, alert.Threshold
		result.Trace = append(result.Trace, TraceEvent{
			Seq:       next(),
			Type:      EventAlert,
			Value:     &value,
			Threshold: &threshold,
			AlertID:   alert.ID,
			Recipient: alert.ManagerEmail,
		})
	}

	if step.Expect != nil && step.Expect.Alert != nil && *step.Expect.Alert != raised {
		result.AddError(fmt.Sprintf("flow[%d]: expected alert=%t, got %t", i, *step.Expect.Alert, raised))
	}
}

func (e *env) collectState(ctx context.Context, result *Result) error {
	for _, def := range e.reg.Definitions() {
		v, err := e.reg.Get(def.Name)
		if err != nil {
			return fmt.Errorf("read %s: %w", def.Name, err)
		}
		result.State[def.Name] = v.String()
	}

	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	for name, v := range snap {
		result.Persisted[name] = v.String()
	}
	return nil
}

func traceBindings(in []agent.Binding) []TraceBinding {
	out := make([]TraceBinding, len(in))
	for i, b := range in {
		tb := TraceBinding{OID: b.OID.String()}
		if b.Exception != mib.StatusSuccess {
			tb.Exception = b.Exception.String()
		} else if b.Value != nil {
			tb.Type = b.Value.Kind().String()
			tb.Value = b.Value.String()
		}
		out[i] = tb
	}
	return out
}

func checkRequest(want *Expect, got TraceEvent) []string {
	var errs []string
	if want.Status != "" && want.Status != got.Status {
		errs = append(errs, fmt.Sprintf("expected status %s, got %s", want.Status, got.Status))
	}
	if want.FailingIndex != 0 && want.FailingIndex != got.FailingIndex {
		errs = append(errs, fmt.Sprintf("expected failing index %d, got %d", want.FailingIndex, got.FailingIndex))
	}
	if len(want.Bindings) > 0 && len(want.Bindings) != len(got.Bindings) {
		errs = append(errs, fmt.Sprintf("expected %d bindings, got %d", len(want.Bindings), len(got.Bindings)))
		return errs
	}
	for j, w := range want.Bindings {
		g := got.Bindings[j]
		if w.OID != "" && w.OID != g.OID {
			errs = append(errs, fmt.Sprintf("binding %d: expected oid %s, got %s", j+1, w.OID, g.OID))
		}
		if w.Type != "" && w.Type != g.Type {
			errs = append(errs, fmt.Sprintf("binding %d: expected type %s, got %s", j+1, w.Type, g.Type))
		}
		if w.Value != "" && w.Value != g.Value {
			errs = append(errs, fmt.Sprintf("binding %d: expected value %q, got %q", j+1, w.Value, g.Value))
		}
		if w.Exception != "" && w.Exception != g.Exception {
			errs = append(errs, fmt.Sprintf("binding %d: expected exception %s, got %q", j+1, w.Exception, g.Exception))
		}
	}
	return errs
}

// queueSampler returns the most recently pushed reading.
type queueSampler struct {
	mu    sync.Mutex
	value int64
}

func (s *queueSampler) push(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *queueSampler) Sample(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// captureSink records dispatched alerts.
type captureSink struct {
	mu   sync.Mutex
	sent []notify.Event
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ev)
	return nil
}

func (s *captureSink) events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}
