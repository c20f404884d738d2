package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/config"
	"github.com/roach88/minimib/internal/mib"
)

// Scenario defines one end-to-end agent scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE schema path, relative to the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Access maps principals to rules. Defaults to reader/writer on the
	// default subtree.
	Access map[string][]config.AccessRule `yaml:"access,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is either a request or a monitor sample.
type Step struct {
	// Request is the verb: get, getnext or set.
	Request   string    `yaml:"request,omitempty"`
	Principal string    `yaml:"principal,omitempty"`
	Bindings  []Binding `yaml:"bindings,omitempty"`

	// Sample feeds one reading to the monitor.
	Sample *int64 `yaml:"sample,omitempty"`

	// Advance moves the clock before the step runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Binding is one identifier with an optional typed value.
type Binding struct {
	OID       string `yaml:"oid"`
	Type      string `yaml:"type,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Exception string `yaml:"exception,omitempty"`
}

// Expect validates one step.
type Expect struct {
	// Status is the expected request status name (e.g. "success", "noAccess").
	Status string `yaml:"status,omitempty"`

	// FailingIndex is the expected one-based failing binding.
	FailingIndex int `yaml:"failing_index,omitempty"`

	// Bindings are compared position by position. Only the fields given
	// are checked.
	Bindings []Binding `yaml:"bindings,omitempty"`

	// Alert is whether a sample step must raise an alert.
	Alert *bool `yaml:"alert,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Verb, Principal and Status filter requests (trace_contains).
	Verb      string `yaml:"verb,omitempty"`
	Principal string `yaml:"principal,omitempty"`
	Status    string `yaml:"status,omitempty"`

	// Event is the trace event type counted by trace_count.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Attribute and Expect are used by final_state and persisted.
	Attribute string `yaml:"attribute,omitempty"`
	Expect    string `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertPersisted     = "persisted"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected; a relative schema path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); err != nil {
			return fmt.Errorf("schema file not found: %s", s.Schema)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch {
	case step.Request != "" && step.Sample != nil:
		return fmt.Errorf("flow[%d]: request and sample are exclusive", i)
	case step.Sample != nil:
		return nil
	case step.Request == "":
		return fmt.Errorf("flow[%d]: request or sample is required", i)
	}

	verb, err := agent.ParseVerb(step.Request)
	if err != nil {
		return fmt.Errorf("flow[%d]: %w", i, err)
	}
	if step.Principal == "" {
		return fmt.Errorf("flow[%d]: principal is required", i)
	}
	if len(step.Bindings) == 0 {
		return fmt.Errorf("flow[%d]: bindings are required", i)
	}
	for j, b := range step.Bindings {
		if _, err := mib.ParseOID(b.OID); err != nil {
			return fmt.Errorf("flow[%d].bindings[%d]: %w", i, j, err)
		}
		if verb == agent.VerbSet {
			if _, err := bindingValue(b); err != nil {
				return fmt.Errorf("flow[%d].bindings[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Verb == "" {
			return fmt.Errorf("assertions[%d]: verb is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState, AssertPersisted:
		if a.Attribute == "" {
			return fmt.Errorf("assertions[%d]: attribute is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func bindingValue(b Binding) (mib.Value, error) {
	kind, err := mib.ParseKind(b.Type)
	if err != nil {
		return nil, err
	}
	return mib.ParseValue(kind, b.Value)
}
