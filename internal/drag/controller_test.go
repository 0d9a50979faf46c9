package drag

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greysana/kitchen-display-system/internal/api"
	"github.com/greysana/kitchen-display-system/internal/board"
	"github.com/greysana/kitchen-display-system/internal/journal"
	"github.com/greysana/kitchen-display-system/internal/model"
)

type fakeGate struct {
	mu        sync.Mutex
	suspended bool
	suspends  int
	resumes   int
}

func (g *fakeGate) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended = true
	g.suspends++
}

func (g *fakeGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended = false
	g.resumes++
}

func (g *fakeGate) isSuspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

type call struct {
	op         string
	id         model.ID
	patch      api.OrderPatch
	transition api.Transition
}

type fakeWriter struct {
	mu         sync.Mutex
	calls      []call
	updateErr  error
	transErr   error
	blockWrite chan struct{} // When set, UpdateOrder waits on it
	entered    chan struct{}
}

func (w *fakeWriter) UpdateOrder(ctx context.Context, id model.ID, patch api.OrderPatch) error {
	if w.entered != nil {
		w.entered <- struct{}{}
	}
	if w.blockWrite != nil {
		<-w.blockWrite
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call{op: "update", id: id, patch: patch})
	return w.updateErr
}

func (w *fakeWriter) TransitionOrder(ctx context.Context, orderID model.ID, to api.Transition) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call{op: "transition", id: orderID, transition: to})
	return w.transErr
}

func (w *fakeWriter) recorded() []call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]call(nil), w.calls...)
}

type fakeStages struct{ set model.StageSet }

func (s fakeStages) Stages() model.StageSet { return s.set }

type fakeRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *fakeRecorder) Record(e journal.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func testStages(t *testing.T) model.StageSet {
	t.Helper()
	set, err := model.NewStageSet([]model.StageDef{
		{Name: "New"},
		{Name: "Preparing"},
		{Name: "Ready", IsTerminal: true},
		{Name: "Cancelled", IsCancellation: true},
	})
	require.NoError(t, err)
	return set
}

func order(id, stage string, pos int) model.OrderRecord {
	return model.OrderRecord{
		ID:               model.ID(id),
		OrderID:          model.ID("o-" + id),
		Ticket:           "T" + id,
		Stage:            stage,
		SequencePosition: pos,
		State:            model.StateActive,
	}
}

type harness struct {
	store    *board.Store
	gate     *fakeGate
	writer   *fakeWriter
	recorder *fakeRecorder
	ctrl     *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := board.NewStore(nil)
	store.Replace(board.Board{
		"new":       {order("A", "new", 0), order("B", "new", 1), order("C", "new", 2)},
		"preparing": {order("P", "preparing", 0)},
		"ready":     {},
		"cancelled": {},
	})
	h := &harness{
		store:    store,
		gate:     &fakeGate{},
		writer:   &fakeWriter{},
		recorder: &fakeRecorder{},
	}
	h.ctrl = NewController(store, h.gate, h.writer, fakeStages{testStages(t)}, WithRecorder(h.recorder))
	return h
}

func (h *harness) ids(stage string) []model.ID {
	return h.store.Snapshot().IDs(stage)
}

func TestBeginDrag(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.BeginDrag("A"))
	assert.True(t, h.gate.isSuspended())

	id, ok := h.ctrl.Active()
	assert.True(t, ok)
	assert.Equal(t, model.ID("A"), id)

	assert.ErrorIs(t, h.ctrl.BeginDrag("B"), ErrSessionActive)

	h.ctrl.EndDrag()
	assert.False(t, h.gate.isSuspended())
	assert.ErrorIs(t, h.ctrl.BeginDrag("missing"), ErrNotFound)
	assert.False(t, h.gate.isSuspended(), "failed begin must not close the gate")
}

func TestEndDrag_AlwaysReopens(t *testing.T) {
	h := newHarness(t)

	h.ctrl.EndDrag()
	h.ctrl.EndDrag()
	assert.Equal(t, 2, h.gate.resumes)
	assert.False(t, h.gate.isSuspended())

	_, ok := h.ctrl.Active()
	assert.False(t, ok)
}

func TestDrop_SameStage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.BeginDrag("A"))

	res, err := h.ctrl.Drop(context.Background(), "New", "new", 2)
	require.NoError(t, err)

	assert.Equal(t, KindReorder, res.Kind)
	assert.Equal(t, 2, res.Position)
	assert.Equal(t, []model.ID{"B", "C", "A"}, h.ids("new"))

	calls := h.writer.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "update", calls[0].op)
	assert.Equal(t, model.ID("A"), calls[0].id)
	assert.Nil(t, calls[0].patch.Stage, "reorder writes only row_pos")
	require.NotNil(t, calls[0].patch.RowPos)
	assert.Equal(t, 2, *calls[0].patch.RowPos)
}

func TestDrop_CrossStage(t *testing.T) {
	tests := []struct {
		name       string
		dest       string
		index      int
		wantIDs    []model.ID
		transition api.Transition
	}{
		{"to working stage", "preparing", 0, []model.ID{"B", "P"}, ""},
		{"append to working stage", "preparing", -1, []model.ID{"P", "B"}, ""},
		{"to terminal stage", "ready", -1, []model.ID{"B"}, api.TransitionDone},
		{"to cancellation stage", "Cancelled", 0, []model.ID{"B"}, api.TransitionCancel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.ctrl.BeginDrag("B"))
		
			res, err := h.ctrl.Drop(context.Background(), "new", tt.dest, tt.index)
			require.NoError(t, err)

			dest := model.StageKey(tt.dest)
			assert.Equal(t, KindMove, res.Kind)
			assert.Equal(t, "new", res.From)
			assert.Equal(t, tt.transition, res.Transition)
			assert.Equal(t, tt.wantIDs, h.ids(dest))
			assert.Equal(t, []model.ID{"A", "C"}, h.ids("new"))

			calls := h.writer.recorded()
			require.NotEmpty(t, calls)
			assert.Equal(t, "update", calls[0].op)
			require.NotNil(t, calls[0].patch.Stage)
			assert.Equal(t, dest, *calls[0].patch.Stage)
			assert.Equal(t, res.Position, *calls[0].patch.RowPos)

			if tt.transition == "" {
				assert.Len(t, calls, 1)
				return
			}
			require.Len(t, calls, 2)
			assert.Equal(t, call{op: "transition", id: "o-B", transition: tt.transition}, calls[1])
		})
	}
}

func TestDrop_Guards(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, h *harness)
		source string
		dest   string
	}{
		{
			name:   "no session",
			setup:  func(t *testing.T, h *harness) {},
			source: "new",
			dest:   "preparing",
		},
		{
			name: "done order",
			setup: func(t *testing.T, h *harness) {
				done := model.StateDone
				require.NoError(t, h.store.Merge("o-A", board.Patch{State: &done}))
				require.NoError(t, h.ctrl.BeginDrag("A"))
			},
			source: "new",
			dest:   "preparing",
		},
		{
			name: "cancelled order",
			setup: func(t *testing.T, h *harness) {
				yes := true
				require.NoError(t, h.store.Merge("o-A", board.Patch{Cancelled: &yes}))
				require.NoError(t, h.ctrl.BeginDrag("A"))
			},
			source: "new",
			dest:   "preparing",
		},
		{
			name:   "unknown destination",
			setup:  func(t *testing.T, h *harness) { require.NoError(t, h.ctrl.BeginDrag("A")) },
			source: "new",
			dest:   "plating",
		},
		{
			name:   "wrong source",
			setup:  func(t *testing.T, h *harness) { require.NoError(t, h.ctrl.BeginDrag("A")) },
			source: "preparing",
			dest:   "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)
			before := h.store.Snapshot()

			res, err := h.ctrl.Drop(context.Background(), tt.source, tt.dest, 0)
			require.NoError(t, err)

			assert.Equal(t, KindIgnored, res.Kind)
			assert.True(t, before.Equal(h.store.Snapshot()), "guarded drop changed the board")
			assert.Empty(t, h.writer.recorded())
		})
	}
}

func TestDrop_DroppedInPlace(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.BeginDrag("B"))

	res, err := h.ctrl.Drop(context.Background(), "new", "new", 1)
	require.NoError(t, err)
	assert.Equal(t, KindIgnored, res.Kind)
	assert.Empty(t, h.writer.recorded())
}

func TestDrop_OptimisticBeforeWrite(t *testing.T) {
	h := newHarness(t)
	h.writer.blockWrite = make(chan struct{})
	h.writer.entered = make(chan struct{}, 1)
	h.writer.updateErr = errors.New("kds api error 500: down")

	require.NoError(t, h.ctrl.BeginDrag("A"))

	done := make(chan Result, 1)
	go func() {
		res, _ := h.ctrl.Drop(context.Background(), "new", "preparing", 0)
		done <- res
	}()

	select {
	case <-h.writer.entered:
	case <-time.After(time.Second):
		t.Fatal("write never started")
	}

	// The board already shows the move while the write is in flight, and
	// the gate stays closed until the write returns.
	assert.Equal(t, []model.ID{"A", "P"}, h.ids("preparing"))
	assert.Equal(t, []model.ID{"B", "C"}, h.ids("new"))
	assert.True(t, h.gate.isSuspended())

	close(h.writer.blockWrite)
	res := <-done

	require.Error(t, res.WriteErr)
	// No rollback after the failure.
	assert.Equal(t, []model.ID{"A", "P"}, h.ids("preparing"))

	require.Len(t, h.recorder.entries, 1)
	entry := h.recorder.entries[0]
	assert.Equal(t, "update", entry.Operation)
	assert.Equal(t, "A", entry.ID)
	assert.Equal(t, "o-A", entry.OrderID)
}

func TestDrop_TransitionSkippedWhenUpdateFails(t *testing.T) {
	h := newHarness(t)
	h.writer.updateErr = errors.New("connection reset")

	require.NoError(t, h.ctrl.BeginDrag("A"))

	res, err := h.ctrl.Drop(context.Background(), "new", "ready", 0)
	require.NoError(t, err)
	assert.Error(t, res.WriteErr)
	assert.Empty(t, res.Transition)

	calls := h.writer.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "update", calls[0].op)
}

func TestDrop_TransitionFailureJournaled(t *testing.T) {
	h := newHarness(t)
	h.writer.transErr = errors.New("kds api error 502: bad gateway")

	require.NoError(t, h.ctrl.BeginDrag("A"))

	res, err := h.ctrl.Drop(context.Background(), "new", "ready", 0)
	require.NoError(t, err)
	assert.Equal(t, api.TransitionDone, res.Transition)
	assert.Error(t, res.WriteErr)

	require.Len(t, h.recorder.entries, 1)
	assert.Equal(t, "transition", h.recorder.entries[0].Operation)
	assert.Equal(t, []model.ID{"A"}, h.ids("ready"))
}

func TestDrop_AuthErrorReturned(t *testing.T) {
	h := newHarness(t)
	h.writer.updateErr = fmt.Errorf("update order A: %w", &api.APIError{StatusCode: 401, Message: "Unauthorized"})

	require.NoError(t, h.ctrl.BeginDrag("A"))

	_, err := h.ctrl.Drop(context.Background(), "new", "preparing", 0)
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
}

func TestDrop_EndsSession(t *testing.T) {
	authErr := &api.APIError{StatusCode: 403, Message: "Forbidden"}

	tests := []struct {
		name      string
		updateErr error
		source    string
		dest      string
		index     int
		wantKind  Kind
		wantErr   bool
	}{
		{"reorder", nil, "new", "new", 2, KindReorder, false},
		{"move", nil, "new", "ready", -1, KindMove, false},
		{"write failure", errors.New("kds api error 500: down"), "new", "preparing", 0, KindMove, false},
		{"auth failure", authErr, "new", "preparing", 0, KindMove, true},
		{"unknown destination", nil, "new", "nosuch", 0, KindIgnored, false},
		{"wrong source", nil, "preparing", "ready", 0, KindIgnored, false},
		{"dropped in place", nil, "new", "new", 0, KindIgnored, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.writer.updateErr = tt.updateErr
			require.NoError(t, h.ctrl.BeginDrag("A"))

			res, err := h.ctrl.Drop(context.Background(), tt.source, tt.dest, tt.index)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)

			assert.False(t, h.gate.isSuspended(), "gate still closed after drop")
			_, active := h.ctrl.Active()
			assert.False(t, active, "session still active after drop")

			// A follow-up end from the shell is harmless, and a new drag can start.
			h.ctrl.EndDrag()
			assert.NoError(t, h.ctrl.BeginDrag("C"))
		})
	}
}

func TestDrop_LeavesNewerSessionAlone(t *testing.T) {
	h := newHarness(t)
	h.writer.blockWrite = make(chan struct{})
	h.writer.entered = make(chan struct{}, 1)

	require.NoError(t, h.ctrl.BeginDrag("A"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.ctrl.Drop(context.Background(), "new", "preparing", 0)
	}()
	<-h.writer.entered

	// The shell ends the drag and starts another while the write is pending.
	h.ctrl.EndDrag()
	require.NoError(t, h.ctrl.BeginDrag("B"))

	close(h.writer.blockWrite)
	<-done

	id, ok := h.ctrl.Active()
	assert.True(t, ok)
	assert.Equal(t, model.ID("B"), id)
	assert.True(t, h.gate.isSuspended())
}

func TestDrop_ReorderPreservesOrders(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		store := board.NewStore(nil)
		var list []model.OrderRecord
		n := 2 + rng.Intn(6)
		for i := 0; i < n; i++ {
			list = append(list, order(fmt.Sprintf("%d", i), "new", i))
		}
		store.Replace(board.Board{"new": list})
		ctrl := NewController(store, &fakeGate{}, &fakeWriter{}, nil)

		dragged := model.ID(fmt.Sprintf("%d", rng.Intn(n)))
		require.NoError(t, ctrl.BeginDrag(dragged))
		_, err := ctrl.Drop(context.Background(), "new", "new", rng.Intn(n+1)-1)
		require.NoError(t, err)

		after := store.Snapshot()["new"]
		require.Len(t, after, n)

		var got []string
		for pos, o := range after {
			assert.Equal(t, pos, o.SequencePosition, "positions must be 0..n-1")
			got = append(got, o.ID.String())
		}
		sort.Strings(got)
		for i := range got {
			assert.Equal(t, fmt.Sprintf("%d", i), got[i])
		}
	}
}
