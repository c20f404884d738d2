// Package registry holds the agent's attributes and their current values.
//
// The registry is built once from schema definitions and never gains or
// loses attributes afterwards. Stored attributes keep a value in memory;
// computed attributes derive theirs on every read.
//
// # Concurrency
//
// Two locks give the registry a single-writer discipline:
//   - writeMu serializes client write batches end to end (validate,
//     persist, commit), so batches never interleave their commits
//   - mu guards the value map and is only held for bounded map reads and
//     writes, never across I/O
//
// The sampler updates non-persistent attributes through Update, which
// holds mu for one read-modify-write step.
package registry
