// Package reconciler merges the three sources of board changes into the
// Store: full polls of the collaborator, push deltas from the relay, and the
// optimistic moves made by a local drag session.
//
// A drag session closes the gate. While it is closed every poll result and
// every delta is discarded, never queued. A poll that started before the gate
// closed is discarded as well, even if the gate has reopened by the time the
// response arrives. Deltas that reference an order or stage the Store does not
// know request a full poll on Refreshes instead of failing.
package reconciler
