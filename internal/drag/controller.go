package drag

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/greysana/kitchen-display-system/internal/api"
	"github.com/greysana/kitchen-display-system/internal/board"
	"github.com/greysana/kitchen-display-system/internal/journal"
	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/model"
)

// Errors
var (
	ErrSessionActive = errors.New("drag session already active")
	ErrNotFound      = board.ErrNotFound
)

// Gate suspends reconciliation while a drag is in flight.
type Gate interface {
	Suspend()
	Resume()
}

// Writer is the write side of the order backend.
type Writer interface {
	UpdateOrder(ctx context.Context, id model.ID, patch api.OrderPatch) error
	TransitionOrder(ctx context.Context, orderID model.ID, to api.Transition) error
}

// StageSource provides the current stage definitions.
type StageSource interface {
	Stages() model.StageSet
}

// Recorder keeps failed writes for follow-up. *journal.Journal implements it.
type Recorder interface {
	Record(e journal.Entry)
}

// Kind classifies a drop.
type Kind string

const (
	KindReorder Kind = "reorder"
	KindMove    Kind = "move"
	KindIgnored Kind = "ignored"
)

// Result describes what a drop did.
type Result struct {
	Kind       Kind
	Order      model.OrderRecord // Moved order as placed on the board
	From       string
	Position   int
	Transition api.Transition // Empty when no transition was requested
	WriteErr   error          // First durable write failure, if any
}

type session struct {
	id      model.ID
	from    string
	started time.Time
}

// Controller runs drag sessions against a Store.
type Controller struct {
	store    *board.Store
	gate     Gate
	writer   Writer
	stages   StageSource
	recorder Recorder
	clock    clockwork.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	active *session
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder journals failed writes.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithClock sets the clock used for session and journal timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a Controller.
func NewController(store *board.Store, gate Gate, writer Writer, stages StageSource, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		gate:   gate,
		writer: writer,
		stages: stages,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginDrag starts a session for the board entry id and closes the gate.
func (c *Controller) BeginDrag(id model.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrSessionActive
	}
	stage, _, ok := c.store.Locate(id)
	if !ok {
		return ErrNotFound
	}

	c.gate.Suspend()
	c.active = &session{id: id, from: stage, started: c.clock.Now()}
	c.logger.Debug("drag started", "id", id, "stage", stage)
	return nil
}

// Active returns the id being dragged, if any.
func (c *Controller) Active() (model.ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.id, true
}

// EndDrag clears the session and reopens the gate. Safe to call at any time.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	c.gate.Resume()
	if s != nil {
		c.logger.Debug("drag ended", "id", s.id, "duration", c.clock.Since(s.started))
	}
}

// finish ends s if it is still the active session. A session that was
// already ended and replaced is left alone.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	c.gate.Resume()
	c.logger.Debug("drag ended", "id", s.id, "duration", c.clock.Since(s.started))
}

// Drop places the dragged order in destStage before the element at
// destIndex (negative or past the end appends) and persists the move.
// Drops that cannot apply are ignored without error. Only an auth failure
// from the backend is returned; other write failures are reported in
// Result.WriteErr. The session ends and the gate reopens when Drop
// returns, whatever the outcome.
func (c *Controller) Drop(ctx context.Context, sourceStage, destStage string, destIndex int) (Result, error) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return c.ignore("no session"), nil
	}
	defer c.finish(s)

	sourceStage = model.StageKey(sourceStage)
	destStage = model.StageKey(destStage)

	current, ok := c.store.Get(s.id)
	if !ok {
		return c.ignore("order left the board", "id", s.id), nil
	}
	if current.Closed() {
		return c.ignore("order closed", "id", s.id, "state", current.State), nil
	}
	if !c.store.HasStage(destStage) {
		return c.ignore("unknown destination", "id", s.id, "stage", destStage), nil
	}
	from, index, ok := c.store.Locate(s.id)
	if !ok || from != sourceStage {
		return c.ignore("order no longer in source stage", "id", s.id, "source", sourceStage, "actual", from), nil
	}
	if from == destStage && index == destIndex {
		return c.ignore("dropped in place", "id", s.id), nil
	}

	placed, err := c.store.Place(s.id, destStage, destIndex)
	if err != nil {
		return c.ignore("place failed", "id", s.id, "error", err), nil
	}

	res := Result{
		Order:    placed,
		From:     from,
		Position: placed.SequencePosition,
	}

	pos := placed.SequencePosition
	patch := api.OrderPatch{RowPos: &pos}
	if from == destStage {
		res.Kind = KindReorder
	} else {
		res.Kind = KindMove
		stage := destStage
		patch.Stage = &stage
	}
	metrics.DragDropsTotal.WithLabelValues(string(res.Kind)).Inc()

	c.logger.Info("order dropped",
		"id", placed.ID,
		"from", from,
		"to", destStage,
		"position", pos,
	)

	if err := c.writer.UpdateOrder(ctx, placed.ID, patch); err != nil {
		res.WriteErr = err
		c.writeFailed("update", placed, patch, err)
		if api.IsAuthError(err) {
			return res, err
		}
		// The transition only follows a successful stage write.
		return res, nil
	}

	if res.Kind != KindMove {
		return res, nil
	}

	res.Transition = c.transitionFor(destStage)
	if res.Transition == "" {
		return res, nil
	}
	if err := c.writer.TransitionOrder(ctx, placed.OrderID, res.Transition); err != nil {
		res.WriteErr = err
		c.writeFailed("transition", placed, map[string]string{"state": string(res.Transition)}, err)
		if api.IsAuthError(err) {
			return res, err
		}
	}
	return res, nil
}

func (c *Controller) transitionFor(stage string) api.Transition {
	if c.stages == nil {
		return ""
	}
	set := c.stages.Stages()
	if key, ok := set.Terminal(); ok && key == stage {
		return api.TransitionDone
	}
	if key, ok := set.Cancellation(); ok && key == stage {
		return api.TransitionCancel
	}
	return ""
}

func (c *Controller) ignore(reason string, args ...any) Result {
	metrics.DragDropsTotal.WithLabelValues(string(KindIgnored)).Inc()
	c.logger.Debug("drop ignored: "+reason, args...)
	return Result{Kind: KindIgnored}
}

func (c *Controller) writeFailed(op string, o model.OrderRecord, payload any, err error) {
	metrics.WriteFailuresTotal.WithLabelValues(op).Inc()
	c.logger.Error("order write failed",
		"operation", op,
		"id", o.ID,
		"order_id", o.OrderID,
		"error", err,
	)
	if c.recorder == nil {
		return
	}
	c.recorder.Record(journal.Entry{
		Operation: op,
		ID:        o.ID.String(),
		OrderID:   o.OrderID.String(),
		Payload:   payload,
		Err:       err,
		At:        c.clock.Now(),
	})
}
