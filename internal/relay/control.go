package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/greysana/kitchen-display-system/internal/auth"
	"github.com/greysana/kitchen-display-system/internal/metrics"
)

// MaxBroadcastBody caps a POST /broadcast request body.
const MaxBroadcastBody = "1M"

// Publish sources, used as the metric label.
const (
	SourceHTTP  = "http"
	SourceRedis = "redis"
)

var (
	errMissingChannel = errors.New("channel is required")
	errMissingMessage = errors.New("message is required")
)

// Broadcast is a payload addressed to a channel, as accepted by the control
// plane and the Redis ingest.
type Broadcast struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

// decodeBroadcast parses and validates a broadcast, returning the message
// in compact form so it is serialized once for every member.
func decodeBroadcast(data []byte) (Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return Broadcast{}, err
	}
	b.Channel = strings.TrimSpace(b.Channel)
	if b.Channel == "" {
		return Broadcast{}, errMissingChannel
	}
	if len(b.Message) == 0 || string(b.Message) == "null" {
		return Broadcast{}, errMissingMessage
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, b.Message); err != nil {
		return Broadcast{}, err
	}
	b.Message = buf.Bytes()
	return b, nil
}

type broadcastResponse struct {
	Success         bool `json:"success"`
	ClientsNotified int  `json:"clients_notified"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type channelResponse struct {
	Channel          string `json:"channel"`
	ConnectedClients int    `json:"connected_clients"`
}

// Control serves the publisher-facing HTTP API.
type Control struct {
	relay  *Relay
	token  string
	logger *slog.Logger
}

// NewControl creates the control plane. An empty token leaves it open.
func NewControl(r *Relay, token string, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{relay: r, token: token, logger: logger}
}

// Register mounts the control routes on e.
func (ctl *Control) Register(e *echo.Echo) {
	e.POST("/broadcast", ctl.handleBroadcast, ctl.requireToken, middleware.BodyLimit(MaxBroadcastBody))
	e.GET("/channel/:name", ctl.handleChannel)
}

func (ctl *Control) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.CheckBearer(c.Request().Header.Get(echo.HeaderAuthorization), ctl.token) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		}
		return next(c)
	}
}

func (ctl *Control) handleBroadcast(c echo.Context) error {
	var body bytes.Buffer
	if _, err := body.ReadFrom(c.Request().Body); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.JSON(he.Code, errorResponse{Error: http.StatusText(he.Code)})
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	b, err := decodeBroadcast(body.Bytes())
	if err != nil {
		ctl.logger.Warn("rejected broadcast", "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	metrics.RelayPublishTotal.WithLabelValues(SourceHTTP).Inc()
	n := ctl.relay.Publish(b.Channel, b.Message)
	ctl.logger.Info("broadcast", "channel", b.Channel, "clients_notified", n)

	return c.JSON(http.StatusOK, broadcastResponse{Success: true, ClientsNotified: n})
}

func (ctl *Control) handleChannel(c echo.Context) error {
	name := c.Param("name")
	return c.JSON(http.StatusOK, channelResponse{
		Channel:          name,
		ConnectedClients: ctl.relay.ChannelCount(name),
	})
}
