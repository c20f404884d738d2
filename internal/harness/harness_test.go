package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/config"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			result := loadAndRun(t, file)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ThresholdAlertTrace(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/threshold_alert.yaml")

	assert.Equal(t, 1, result.Count(EventAlert))
	assert.Equal(t, 3, result.Count(EventTick))
	assert.Equal(t, 2, result.Count(EventRequest))
	assert.Equal(t, "90", result.State["cpuUsage"])
	assert.Equal(t, "1500", result.State["upTime"])
	assert.NotContains(t, result.Persisted, "cpuUsage")
}

func TestRun_ExpectationFailuresAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "mismatch",
		Description: "every expectation is wrong",
		Flow: []Step{
			{
				Request:   "get",
				Principal: "reader",
				Bindings:  []Binding{{OID: "1.3.6.1.3.28308.1.4.0"}},
				Expect: &Expect{
					Status:   "noAccess",
					Bindings: []Binding{{Type: "string", Value: "81"}},
				},
			},
			{Sample: ptr(int64(10)), Expect: &Expect{Alert: ptr(true)}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Event: EventAlert, Count: 1},
			{Type: AssertFinalState, Attribute: "cpuThreshold", Expect: "81"},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "expected status noAccess, got success")
	assert.Contains(t, result.Errors[1], "expected type string, got integer")
	assert.Contains(t, result.Errors[2], `expected value "81", got "80"`)
	assert.Contains(t, result.Errors[3], "expected alert=true, got false")
	assert.Contains(t, result.Errors[4], "trace_count")
	assert.Contains(t, result.Errors[5], "final_state")
}

func TestRun_CustomSchemaWithoutOptionalAttributes(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, `name: minimal
description: monitor works on a schema with just the two integers
flow:
  - sample: 95
    expect:
      alert: true
assertions:
  - type: trace_count
    event: alert
    count: 1
`))
	require.NoError(t, err)
	s.Schema = "testdata/minimal.cue"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var alert TraceEvent
	for _, ev := range result.Trace {
		if ev.Type == EventAlert {
			alert = ev
		}
	}
	assert.Empty(t, alert.Recipient)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("bad policy subtree", func(t *testing.T) {
		s := &Scenario{
			Name:   "bad",
			Access: map[string][]config.AccessRule{"p": {{Subtree: "x.y", Modes: []string{"read"}}}},
			Flow:   []Step{{Sample: ptr(int64(1))}},
		}
		_, err := Run(context.Background(), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access.p[0]")
	})

	t.Run("bad policy mode", func(t *testing.T) {
		s := &Scenario{
			Name:   "bad",
			Access: map[string][]config.AccessRule{"p": {{Subtree: "1.3", Modes: []string{"admin"}}}},
			Flow:   []Step{{Sample: ptr(int64(1))}},
		}
		_, err := Run(context.Background(), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown access mode")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := &Scenario{Name: "c", Flow: []Step{{Sample: ptr(int64(1))}}}
		_, err := Run(ctx, s)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func ptr[T any](v T) *T { return &v }
