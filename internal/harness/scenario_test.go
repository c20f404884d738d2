package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/threshold_alert.yaml")
	require.NoError(t, err)

	assert.Equal(t, "threshold_alert", s.Name)
	require.Len(t, s.Flow, 5)
	assert.Equal(t, "set", s.Flow[0].Request)
	require.NotNil(t, s.Flow[2].Sample)
	assert.Equal(t, int64(70), *s.Flow[2].Sample)
	assert.Equal(t, "5s", s.Flow[2].Advance.String())
	require.Len(t, s.Assertions, 4)
}

func TestLoadScenario_ResolvesSchemaRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.cue"), []byte("base: \"1.3.6.1.3.1\"\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: s
description: d
schema: custom.cue
flow:
  - sample: 1
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom.cue"), s.Schema)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing name", "description: d\nflow: [{sample: 1}]\n", "name is required"},
		{"missing description", "name: n\nflow: [{sample: 1}]\n", "description is required"},
		{"empty flow", "name: n\ndescription: d\n", "flow list is required"},
		{"unknown field", "name: n\ndescription: d\nbogus: 1\nflow: [{sample: 1}]\n", "failed to parse YAML"},
		{"empty step", "name: n\ndescription: d\nflow: [{principal: reader}]\n", "request or sample is required"},
		{"both kinds", "name: n\ndescription: d\nflow: [{request: get, sample: 1}]\n", "exclusive"},
		{"bad verb", "name: n\ndescription: d\nflow: [{request: walk, principal: p, bindings: [{oid: 1.3}]}]\n", "unknown verb"},
		{"no principal", "name: n\ndescription: d\nflow: [{request: get, bindings: [{oid: 1.3}]}]\n", "principal is required"},
		{"no bindings", "name: n\ndescription: d\nflow: [{request: get, principal: p}]\n", "bindings are required"},
		{"bad oid", "name: n\ndescription: d\nflow: [{request: get, principal: p, bindings: [{oid: a.b}]}]\n", "flow[0].bindings[0]"},
		{"bad set type", "name: n\ndescription: d\nflow: [{request: set, principal: p, bindings: [{oid: 1.3, type: float, value: '1'}]}]\n", "unknown kind"},
		{"bad set value", "name: n\ndescription: d\nflow: [{request: set, principal: p, bindings: [{oid: 1.3, type: integer, value: x}]}]\n", "parse integer"},
		{"missing schema", "name: n\ndescription: d\nschema: nope.cue\nflow: [{sample: 1}]\n", "schema file not found"},
		{"assertion type", "name: n\ndescription: d\nflow: [{sample: 1}]\nassertions: [{verb: get}]\n", "type is required"},
		{"unknown assertion", "name: n\ndescription: d\nflow: [{sample: 1}]\nassertions: [{type: magic}]\n", "unknown assertion type"},
		{"contains without verb", "name: n\ndescription: d\nflow: [{sample: 1}]\nassertions: [{type: trace_contains}]\n", "verb is required"},
		{"count without event", "name: n\ndescription: d\nflow: [{sample: 1}]\nassertions: [{type: trace_count}]\n", "event is required"},
		{"state without attribute", "name: n\ndescription: d\nflow: [{sample: 1}]\nassertions: [{type: persisted}]\n", "attribute is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
