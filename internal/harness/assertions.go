package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describe(event))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch ev.Type {
	case EventRequest:
		return fmt.Sprintf("%s by %s -> %s", ev.Verb, ev.Principal, ev.Status)
	case EventTick:
		return fmt.Sprintf("tick %s -> %s", deref(ev.Value), ev.State)
	case EventAlert:
		return fmt.Sprintf("alert %s %s > %s", ev.AlertID, deref(ev.Value), deref(ev.Threshold))
	}
	return ev.Type
}

func deref(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

// EvaluateAssertions checks every assertion against the result and returns
// one error per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []error {
	var errs []error
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalState:
		return assertValue(a, result.State, "registry")
	case AssertPersisted:
		return assertValue(a, result.Persisted, "store")
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertTraceContains looks for a request matching verb and, when given,
// principal and status.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type != EventRequest || ev.Verb != a.Verb {
			continue
		}
		if a.Principal != "" && ev.Principal != a.Principal {
			continue
		}
		if a.Status != "" && ev.Status != a.Status {
			continue
		}
		return nil
	}

	want := a.Verb
	if a.Principal != "" {
		want += " by " + a.Principal
	}
	if a.Status != "" {
		want += " -> " + a.Status
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: want,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks the number of events of one type.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.Event {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
		Actual:   fmt.Sprintf("%d %s events", count, a.Event),
		Trace:    trace,
	}
}

func assertValue(a Assertion, values map[string]string, where string) error {
	got, ok := values[a.Attribute]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %q in %s", a.Attribute, a.Expect, where),
			Actual:   "attribute not present",
		}
	}
	if got != a.Expect {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %q", a.Attribute, a.Expect),
			Actual:   fmt.Sprintf("%s = %q", a.Attribute, got),
		}
	}
	return nil
}
