package board

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// Errors
var (
	ErrNotFound     = errors.New("order not on board")
	ErrUnknownStage = errors.New("stage not on board")
)

// Patch is a partial update of domain fields. Nil fields are left untouched.
type Patch struct {
	State     *model.DomainState
	Cancelled *bool
	Ticket    *string
	At        time.Time // Applied to LastMutated when non-zero
}

// Store is the in-memory board. All mutation goes through its methods.
type Store struct {
	logger *slog.Logger

	mu      sync.RWMutex
	board   Board
	version uint64
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		board:  make(Board),
	}
}

// Replace swaps in a freshly grouped board. The new grouping is always kept;
// changed reports whether it differs from the previous one, and only a real
// change bumps the version.
func (s *Store) Replace(b Board) (changed bool) {
	b = b.Clone()
	if b == nil {
		b = make(Board)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed = !s.board.Equal(b)
	s.board = b
	if changed {
		s.version++
	}
	return changed
}

// Snapshot returns a deep copy of the board.
func (s *Store) Snapshot() Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board.Clone()
}

// Version increases every time the board content changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// HasStage reports whether the board has a list for stage.
func (s *Store) HasStage(stage string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.board[model.StageKey(stage)]
	return ok
}

// Get returns a copy of the order with the given board entry id.
func (s *Store) Get(id model.ID) (model.OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stage, i, ok := s.locate(id)
	if !ok {
		return model.OrderRecord{}, false
	}
	return s.board[stage][i].Clone(), true
}

// Locate returns the stage and index holding id.
func (s *Store) Locate(id model.ID) (stage string, index int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locate(id)
}

// MoveToStage removes the order from its list, appends it to stage and
// re-sorts that list. Applying the same move twice leaves the board as it
// was after the first.
func (s *Store) MoveToStage(id model.ID, stage string, at time.Time) (from string, err error) {
	stage = model.StageKey(stage)

	s.mu.Lock()
	defer s.mu.Unlock()

	from, i, ok := s.locate(id)
	if !ok {
		return "", ErrNotFound
	}
	if _, ok := s.board[stage]; !ok {
		return from, ErrUnknownStage
	}

	before := s.board.Clone()

	order := s.board[from][i]
	s.board[from] = slices.Delete(s.board[from], i, i+1)

	order.Stage = stage
	if !at.IsZero() {
		order.LastMutated = at
	}
	s.board[stage] = append(s.board[stage], order)
	sortStage(s.board[stage])

	if !before.Equal(s.board) {
		s.version++
	}

	s.logger.Debug("order moved", "id", id, "from", from, "to", stage)
	return from, nil
}

// Merge applies patch to every order carrying orderID.
func (s *Store) Merge(orderID model.ID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	changed := false
	for stage, orders := range s.board {
		for i := range orders {
			if orders[i].OrderID != orderID {
				continue
			}
			found = true

			updated := orders[i]
			if patch.State != nil {
				updated.State = *patch.State
			}
			if patch.Cancelled != nil {
				updated.Cancelled = *patch.Cancelled
			}
			if patch.Ticket != nil {
				updated.Ticket = *patch.Ticket
			}
			if !patch.At.IsZero() {
				updated.LastMutated = patch.At
			}

			if !updated.Equal(orders[i]) {
				s.board[stage][i] = updated
				changed = true
			}
		}
	}

	if !found {
		return ErrNotFound
	}
	if changed {
		s.version++
	}
	return nil
}

// Place moves an order so that it ends up at index within stage and
// renumbers that stage's positions 0..n-1. index is the position of the
// element the order was dropped on; a negative or out of range index
// appends. The moved record is returned.
func (s *Store) Place(id model.ID, stage string, index int) (model.OrderRecord, error) {
	stage = model.StageKey(stage)

	s.mu.Lock()
	defer s.mu.Unlock()

	from, i, ok := s.locate(id)
	if !ok {
		return model.OrderRecord{}, ErrNotFound
	}
	if _, ok := s.board[stage]; !ok {
		return model.OrderRecord{}, ErrUnknownStage
	}

	before := s.board.Clone()

	order := s.board[from][i]
	s.board[from] = slices.Delete(s.board[from], i, i+1)

	dest := s.board[stage]
	if index < 0 || index > len(dest) {
		index = len(dest)
	}

	order.Stage = stage
	dest = slices.Insert(dest, index, order)
	for pos := range dest {
		dest[pos].SequencePosition = pos
	}
	s.board[stage] = dest

	if !before.Equal(s.board) {
		s.version++
	}
	return dest[index].Clone(), nil
}

// locate must be called with mu held.
func (s *Store) locate(id model.ID) (string, int, bool) {
	for stage, orders := range s.board {
		for i, o := range orders {
			if o.ID == id {
				return stage, i, true
			}
		}
	}
	return "", 0, false
}
