package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/greysana/kitchen-display-system/internal/connection"
	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

// Router decodes raw relay payloads and hands them to Handlers in arrival
// order.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg      RouterConfig
	logger   *slog.Logger
	handlers []Handler

	// Input from Connection Manager
	input <-chan connection.RawMessage

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	handlerErrors   int64
}

// NewRouter creates a new Message Router. Every decoded message is passed to
// each handler in turn.
func NewRouter(cfg RouterConfig, input <-chan connection.RawMessage, logger *slog.Logger, handlers ...Handler) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = DefaultRouterConfig().HandleTimeout
	}

	return &router{
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		input:    input,
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started", "handlers", len(r.handlers))
	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		HandlerErrors:    r.handlerErrors,
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(raw)
		}
	}
}

// route decodes and dispatches a single message.
func (r *router) route(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	msg, err := protocol.Decode(raw.Data)
	if err != nil {
		metrics.ProtocolErrorsTotal.Inc()
		r.mu.Lock()
		if errors.Is(err, protocol.ErrUnknownType) {
			r.unknownMessages++
		} else {
			r.parseErrors++
		}
		r.mu.Unlock()
		r.logger.Warn("dropping message", "error", err)
		return
	}

	for _, h := range r.handlers {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.HandleTimeout)
		err := h.HandleMessage(ctx, msg)
		cancel()
		if err != nil {
			r.mu.Lock()
			r.handlerErrors++
			r.mu.Unlock()
			r.logger.Warn("handler failed", "type", msg.Kind(), "error", err)
		}
	}

	r.mu.Lock()
	r.routed++
	r.mu.Unlock()
}
