// Package metrics provides lock-free counters for aegis observability.
//
// # Design
//
// Counters are stored in cache-line-padded slots and incremented atomically.
// The write path is allocation-free; Snapshot deep-copies every slot.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import aegis or any sibling package.
//   - Expose global metric registries.
package metrics
