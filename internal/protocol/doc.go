// Package protocol defines the relay wire format.
//
// Two closed message families are decoded here, before anything reaches
// the board:
//   - Relay frames: join/leave requests from displays and the relay's acks
//   - Push messages: new_order, stage_changed (kds_update) and
//     order_mutated (order_update) notifications fanned out by the relay
//
// Anything outside the known set is rejected with an *Error.
package protocol
