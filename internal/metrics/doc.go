// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Relay membership, fan-out counts and slow member evictions
//   - Connection state and reconnect attempts
//   - Reconciler polls, deltas and gate discards
//   - Durable write failures from drag sessions
package metrics
