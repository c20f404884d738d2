// Package store provides durable storage for persistent attribute values.
//
// Two gateways implement the same load/save contract:
//   - File: a JSON document replaced atomically (temp file, fsync, rename)
//   - SQLite: a single table rewritten inside one transaction
//
// Either way a crash mid-save leaves the previous state readable; a reader
// never sees a half-written set of values.
//
// # Contract
//
//   - Only stored, read-write attributes are ever written; anything else in
//     a snapshot is dropped before it reaches disk
//   - Load returns ErrNotFound when nothing has been saved yet
//   - A malformed document is logged and treated as empty, never fatal
//   - Saves are serialized per gateway
//
// The SQLite database also keeps the alert history (see alerts.go).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
