// Package notify delivers threshold alerts to independent sinks.
//
// A Dispatcher fans one Event out to every configured Sink concurrently.
// Sinks are isolated from each other: a sink that fails, hangs past its
// timeout, or panics is recorded in the Outcome and never prevents the
// others from running. Dispatch has no error return; the Outcome exists
// for logging, metrics and the alert history only.
//
// Two sinks ship with the package:
//   - TrapSink sends an SNMPv2c trap carrying the value, threshold and
//     contact address
//   - MailSink sends a plain-text message to the manager's address
//
// When the caller's context ends first, sinks still in flight are marked
// abandoned and left to finish on their own.
package notify
