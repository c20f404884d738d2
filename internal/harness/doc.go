// Package harness runs YAML scenarios against a fully wired agent.
//
// Each scenario gets a fresh registry, access policy, request handler,
// threshold monitor and in-memory SQLite store. Steps issue requests or
// feed the monitor a sample; the harness records a trace of what happened
// and evaluates assertions against the trace, the live registry and the
// persisted store.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: optional/override.cue      # default schema when omitted
//	access:                            # default reader/writer when omitted
//	  narrow:
//	    - subtree: 1.3.6.1.3.28308.1.4
//	      modes: [read]
//	flow:
//	  - request: set
//	    principal: writer
//	    bindings:
//	      - { oid: 1.3.6.1.3.28308.1.1.0, type: string, value: Ops }
//	    expect:
//	      status: success
//	  - sample: 90
//	    expect:
//	      alert: true
//	assertions:
//	  - type: trace_count
//	    event: alert
//	    count: 1
//	  - type: final_state
//	    attribute: contact
//	    expect: Ops
//	  - type: persisted
//	    attribute: manager
//	    expect: Ops
//
// # Assertion Types
//
//   - trace_contains: a request with the given verb, principal and status
//   - trace_count: number of events of one type (request, tick, alert)
//   - final_state: the registry's current value of an attribute
//   - persisted: the value saved in the store for an attribute
//
// # Deterministic Testing
//
// The clock is fixed at testutil.Epoch and advanced only by steps, and
// alert ids come from a fixed generator, so traces compare byte for byte
// against golden files.
package harness
