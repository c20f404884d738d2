// Package monitor samples a host metric on a fixed period and raises an
// alert when it crosses the configured threshold.
//
// The monitor is edge-triggered. It is either Normal or Alarmed; only the
// Normal to Alarmed transition dispatches an alert, so a value that stays
// high across many samples produces one notification. Falling back to or
// below the threshold returns to Normal and is logged only.
//
// Each tick writes the sample and reads the threshold inside one registry
// update, so a client SET on the threshold applies from the next tick and
// never interleaves with the comparison.
package monitor
