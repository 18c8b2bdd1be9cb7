// Package store provides the SQLite-backed run ledger.
//
// Protocol outcomes are authoritative in each protocol's log directory. The
// ledger keeps history on top of that: one row per script execution,
// including executions whose records were later overwritten by a forced
// run, and failed launches that left no record at all.
//
// # Ordering
//
// All queries order by started_at ASC, id ASC COLLATE BINARY so listings are
// stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
