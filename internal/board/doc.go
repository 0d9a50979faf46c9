// Package board implements the Order State Store.
//
// The Store holds the board grouping (stage key to ordered orders) and is
// the only place the grouping is mutated. Callers receive deep copies.
package board
