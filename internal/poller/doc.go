// Package poller implements the full-poll loop.
//
// The Poller:
//   - Polls once on start, then every Interval
//   - Polls early whenever a trigger arrives (delta misses, new orders)
//   - Never runs two polls at once; triggers during a poll coalesce
//   - Stops for good on a fatal error (bad credentials) and reports it
package poller
