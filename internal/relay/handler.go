package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

// Handler upgrades display connections and processes their membership
// frames.
type Handler struct {
	relay    *Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a websocket handler. An empty allowedOrigins accepts
// any origin.
func NewHandler(r *Relay, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		relay:  r,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, req.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS handles one member connection until it closes.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return nil
	}

	id, err := h.relay.Attach(conn)
	if err != nil {
		h.logger.Warn("failed to attach member", "error", err)
		_ = conn.Close()
		return nil
	}
	defer h.relay.Detach(id)

	h.logger.Info("member connected", "member", id, "remote", c.RealIP())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("member read error", "member", id, "error", err)
			}
			h.logger.Info("member disconnected", "member", id)
			return nil
		}
		h.handleFrame(id, data)
	}
}

func (h *Handler) handleFrame(id uuid.UUID, data []byte) {
	frame, err := protocol.DecodeClientFrame(data)
	if err != nil {
		metrics.RelayMalformedFramesTotal.Inc()
		h.logger.Warn("ignoring malformed frame", "member", id, "error", err)
		return
	}

	switch frame.Type {
	case protocol.FrameJoin:
		h.relay.Join(id, frame.ChannelID)
	case protocol.FrameLeave:
		h.relay.Leave(id, frame.ChannelID)
	}

	ack, err := json.Marshal(protocol.NewAck(frame.Type, frame.ChannelID))
	if err != nil {
		h.logger.Error("failed to marshal ack", "error", err)
		return
	}
	h.relay.Send(id, ack)
}
