package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/greysana/kitchen-display-system/internal/board"
	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/model"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

// DefaultReadyStage is the stage whose entry raises a ready notice.
const DefaultReadyStage = "ready"

// Source is the read side of the collaborator.
type Source interface {
	GetOrders(ctx context.Context) ([]model.OrderRecord, error)
	GetStages(ctx context.Context) ([]model.StageDef, error)
}

// Outcome describes what happened to a poll result or a delta.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeMiss      Outcome = "miss"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeError     Outcome = "error"
)

// Config holds reconciler configuration.
type Config struct {
	ReadyStage string         // Default: "ready"
	Location   *time.Location // Operational day timezone (default: Local)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadyStage: DefaultReadyStage,
		Location:   time.Local,
	}
}

// Reconciler applies polls and deltas to a Store under the drag gate.
type Reconciler struct {
	cfg      Config
	store    *board.Store
	source   Source
	notifier *board.ReadyNotifier
	clock    clockwork.Clock
	logger   *slog.Logger

	// gateMu is held while a result is checked against the gate and applied,
	// so Suspend never interleaves with a half-applied result.
	gateMu    sync.Mutex
	suspended bool
	epoch     uint64

	stagesMu sync.RWMutex
	stages   model.StageSet

	refresh chan struct{}
}

// New creates a Reconciler. notifier may be nil to disable ready notices.
func New(cfg Config, store *board.Store, source Source, notifier *board.ReadyNotifier, clock clockwork.Clock, logger *slog.Logger) *Reconciler {
	if cfg.ReadyStage == "" {
		cfg.ReadyStage = DefaultReadyStage
	}
	cfg.ReadyStage = model.StageKey(cfg.ReadyStage)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cfg:      cfg,
		store:    store,
		source:   source,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
	}
}

// Suspend closes the gate. Results arriving while it is closed are dropped.
func (r *Reconciler) Suspend() {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	r.suspended = true
	r.epoch++
	r.logger.Debug("reconciler suspended", "epoch", r.epoch)
}

// Resume reopens the gate. Calling it while open is harmless.
func (r *Reconciler) Resume() {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	if r.suspended {
		r.logger.Debug("reconciler resumed", "epoch", r.epoch)
	}
	r.suspended = false
}

// Suspended reports whether the gate is closed.
func (r *Reconciler) Suspended() bool {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	return r.suspended
}

// Stages returns the stage set from the most recent successful poll.
func (r *Reconciler) Stages() model.StageSet {
	r.stagesMu.RLock()
	defer r.stagesMu.RUnlock()
	return r.stages
}

// Refreshes delivers a signal whenever a delta could not be applied and a
// full poll should follow. Signals coalesce.
func (r *Reconciler) Refreshes() <-chan struct{} {
	return r.refresh
}

// RequestRefresh asks for a full poll without blocking.
func (r *Reconciler) RequestRefresh() {
	select {
	case r.refresh <- struct{}{}:
	default:
	}
}

// Poll fetches stages and orders, groups them into a board and replaces the
// Store with it unless the gate closed at any point since the poll began.
//
// That is stricter than checking the gate only when results arrive: a poll
// started before a drag and finishing after it ended is discarded too, since
// its snapshot predates the drag's writes. The next poll, started with the
// gate open, applies normally.
func (r *Reconciler) Poll(ctx context.Context) (Outcome, error) {
	start := r.clock.Now()
	defer func() {
		metrics.PollDuration.Observe(r.clock.Since(start).Seconds())
	}()

	r.gateMu.Lock()
	suspended, epoch := r.suspended, r.epoch
	r.gateMu.Unlock()
	if suspended {
		return r.pollOutcome(OutcomeDiscarded), nil
	}

	var (
		orders []model.OrderRecord
		defs   []model.StageDef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = r.source.GetOrders(gctx)
		if err != nil {
			return fmt.Errorf("get orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		defs, err = r.source.GetStages(gctx)
		if err != nil {
			return fmt.Errorf("get stages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		r.pollOutcome(OutcomeError)
		return OutcomeError, err
	}

	stages, err := r.updateStages(defs)
	if err != nil {
		r.pollOutcome(OutcomeError)
		return OutcomeError, err
	}

	grouped := board.Group(orders, stages, board.Day{Location: r.cfg.Location}, r.clock.Now())

	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	if r.suspended || r.epoch != epoch {
		r.logger.Debug("discarding stale poll", "started_epoch", epoch, "epoch", r.epoch)
		return r.pollOutcome(OutcomeDiscarded), nil
	}
	if !r.store.Replace(grouped) {
		return r.pollOutcome(OutcomeUnchanged), nil
	}

	r.logger.Debug("board replaced", "orders", grouped.Len(), "stages", len(grouped))
	return r.pollOutcome(OutcomeApplied), nil
}

// updateStages swaps in a new stage set. An invalid set keeps the previous
// one when there is one.
func (r *Reconciler) updateStages(defs []model.StageDef) (model.StageSet, error) {
	r.stagesMu.Lock()
	defer r.stagesMu.Unlock()

	stages, err := model.NewStageSet(defs)
	if err != nil {
		if r.stages.Len() == 0 {
			return model.StageSet{}, fmt.Errorf("stage definitions: %w", err)
		}
		r.logger.Error("invalid stage definitions, keeping previous set", "error", err)
		return r.stages, nil
	}
	r.stages = stages
	return stages, nil
}

// HandleMessage applies a decoded push message. It only fails when ctx is
// already done; misses and discards are not errors.
func (r *Reconciler) HandleMessage(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Apply(msg)
	return nil
}

// Apply applies a push message to the Store and reports the outcome.
func (r *Reconciler) Apply(msg protocol.Message) Outcome {
	switch m := msg.(type) {
	case protocol.NewOrder:
		return r.deltaOutcome(m.Kind(), r.applyNewOrder(m))
	case protocol.StageChanged:
		return r.deltaOutcome(m.Kind(), r.applyStageChanged(m))
	case protocol.OrderMutated:
		return r.deltaOutcome(m.Kind(), r.applyOrderMutated(m))
	case protocol.Ack:
		r.logger.Debug("relay acknowledged", "type", m.Type, "channel", m.Channel)
		return OutcomeIgnored
	}
	r.logger.Warn("unhandled message", "type", fmt.Sprintf("%T", msg))
	return OutcomeIgnored
}

func (r *Reconciler) applyNewOrder(m protocol.NewOrder) Outcome {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	if r.suspended {
		return OutcomeDiscarded
	}
	r.logger.Info("new order announced", "order_id", m.OrderID)
	r.RequestRefresh()
	return OutcomeMiss
}

func (r *Reconciler) applyStageChanged(m protocol.StageChanged) Outcome {
	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	if r.suspended {
		return OutcomeDiscarded
	}

	from, err := r.store.MoveToStage(m.SubjectID, m.NewStage, m.Timestamp)
	if errors.Is(err, board.ErrNotFound) || errors.Is(err, board.ErrUnknownStage) {
		r.logger.Info("stage change missed, requesting full poll",
			"id", m.SubjectID,
			"stage", m.NewStage,
			"reason", err,
		)
		r.RequestRefresh()
		return OutcomeMiss
	}
	if err != nil {
		r.logger.Error("stage change failed", "id", m.SubjectID, "error", err)
		return OutcomeError
	}

	if r.notifier != nil && m.NewStage == r.cfg.ReadyStage && from != r.cfg.ReadyStage {
		if order, ok := r.store.Get(m.SubjectID); ok {
			r.notifier.Fire(order)
		}
	}
	return OutcomeApplied
}

func (r *Reconciler) applyOrderMutated(m protocol.OrderMutated) Outcome {
	patch := board.Patch{
		Cancelled: m.Cancelled,
		Ticket:    m.Ticket,
		At:        m.Timestamp,
	}
	if m.State != nil {
		state := model.ParseDomainState(*m.State)
		patch.State = &state
	}

	r.gateMu.Lock()
	defer r.gateMu.Unlock()
	if r.suspended {
		return OutcomeDiscarded
	}

	if err := r.store.Merge(m.OrderID, patch); err != nil {
		if errors.Is(err, board.ErrNotFound) {
			r.logger.Info("mutated order not on board, requesting full poll", "order_id", m.OrderID)
			r.RequestRefresh()
			return OutcomeMiss
		}
		r.logger.Error("order merge failed", "order_id", m.OrderID, "error", err)
		return OutcomeError
	}
	return OutcomeApplied
}

func (r *Reconciler) pollOutcome(o Outcome) Outcome {
	metrics.PollsTotal.WithLabelValues(string(o)).Inc()
	return o
}

func (r *Reconciler) deltaOutcome(kind protocol.MessageType, o Outcome) Outcome {
	metrics.DeltasTotal.WithLabelValues(string(kind), string(o)).Inc()
	return o
}
