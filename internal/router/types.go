package router

import (
	"context"
	"time"

	"github.com/greysana/kitchen-display-system/internal/protocol"
)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	HandleTimeout time.Duration // Per-message handler deadline. Default: 5s
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		HandleTimeout: 5 * time.Second,
	}
}

// Handler consumes decoded push messages.
type Handler interface {
	HandleMessage(ctx context.Context, msg protocol.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg protocol.Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg protocol.Message) error {
	return f(ctx, msg)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	HandlerErrors    int64
}
