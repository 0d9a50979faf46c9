// Package drag moves orders between and within stage lists on behalf of a
// display operator.
//
// A drag session begins with BeginDrag, which closes the reconciler gate so
// polls and deltas cannot overwrite the board mid-gesture, and always ends
// with EndDrag, which reopens it. Drop applies the move to the board first
// and then writes it to the order backend:
//
//	same stage:   splice, renumber, write {row_pos}
//	cross stage:  splice, renumber, write {stage, row_pos},
//	              then transition to done or cancel for the terminal or
//	              cancellation stage
//
// A failed write is logged and journaled. The board is never rolled back;
// the next full poll brings it back in line with the backend.
package drag
