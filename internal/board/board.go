package board

import (
	"cmp"
	"slices"
	"time"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// UnknownStage collects orders whose stage is not a defined stage.
const UnknownStage = "unknown"

// Board maps a stage key to its orders in display order.
type Board map[string][]model.OrderRecord

// Clone returns a deep copy.
func (b Board) Clone() Board {
	if b == nil {
		return nil
	}
	out := make(Board, len(b))
	for stage, orders := range b {
		list := make([]model.OrderRecord, len(orders))
		for i, o := range orders {
			list[i] = o.Clone()
		}
		out[stage] = list
	}
	return out
}

// Equal reports whether two boards hold the same stages with the same
// orders in the same order.
func (b Board) Equal(other Board) bool {
	if len(b) != len(other) {
		return false
	}
	for stage, orders := range b {
		theirs, ok := other[stage]
		if !ok {
			return false
		}
		if !slices.EqualFunc(orders, theirs, model.OrderRecord.Equal) {
			return false
		}
	}
	return true
}

// IDs returns the board entry ids in stage, in display order.
func (b Board) IDs(stage string) []model.ID {
	orders := b[stage]
	ids := make([]model.ID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// Len returns the number of orders on the board.
func (b Board) Len() int {
	n := 0
	for _, orders := range b {
		n += len(orders)
	}
	return n
}

// Day decides whether an order belongs to the current operational day.
type Day struct {
	Location *time.Location
}

// Contains reports whether t falls on the same calendar date as now.
func (d Day) Contains(t, now time.Time) bool {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ty == ny && tm == nm && td == nd
}

// Group builds a board from a full order list: orders outside the current
// operational day are dropped, every defined stage gets a (possibly empty)
// list, and each list is stably sorted by SequencePosition.
func Group(orders []model.OrderRecord, stages model.StageSet, day Day, now time.Time) Board {
	b := make(Board, stages.Len())
	for _, key := range stages.Keys() {
		b[key] = []model.OrderRecord{}
	}

	for _, o := range orders {
		if !day.Contains(o.OrderedAt, now) {
			continue
		}
		o = o.Clone()
		o.Stage = model.StageKey(o.Stage)
		if !stages.Has(o.Stage) {
			b[UnknownStage] = append(b[UnknownStage], o)
			continue
		}
		b[o.Stage] = append(b[o.Stage], o)
	}

	for stage := range b {
		sortStage(b[stage])
	}
	return b
}

// sortStage orders a stage list by SequencePosition, keeping arrival order for ties.
func sortStage(orders []model.OrderRecord) {
	slices.SortStableFunc(orders, func(a, b model.OrderRecord) int {
		return cmp.Compare(a.SequencePosition, b.SequencePosition)
	})
}
