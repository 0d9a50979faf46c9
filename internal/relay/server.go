package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/greysana/kitchen-display-system/internal/config"
)

// Server runs the two relay listeners: websocket members on one address
// and the publisher control plane on another.
type Server struct {
	cfg     config.RelayServerConfig
	relay   *Relay
	ws      *echo.Echo
	control *echo.Echo
	logger  *slog.Logger
	started time.Time
}

// NewServer wires the websocket handler and control plane around r.
func NewServer(cfg *config.RelayConfig, r *Relay, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg.Server,
		relay:   r,
		ws:      newEcho(cfg.Relay.AllowedOrigins),
		control: newEcho(cfg.Relay.AllowedOrigins),
		logger:  logger,
		started: time.Now(),
	}

	h := NewHandler(r, cfg.Relay.AllowedOrigins, logger)
	s.ws.GET("/", h.ServeWS)
	s.ws.GET("/ws", h.ServeWS)
	s.ws.GET("/health", s.handleHealth)

	NewControl(r, cfg.Relay.ControlToken, logger).Register(s.control)
	s.control.GET("/health", s.handleHealth)
	s.control.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

func newEcho(origins []string) *echo.Echo {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	return e
}

// WSHandler exposes the member listener, mainly for tests.
func (s *Server) WSHandler() http.Handler { return s.ws }

// ControlHandler exposes the control plane listener, mainly for tests.
func (s *Server) ControlHandler() http.Handler { return s.control }

// Run serves both listeners until ctx is done, then shuts them down and
// stops the relay.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("websocket listener starting", "addr", s.cfg.WSAddr)
		return serve(s.ws, s.cfg.WSAddr)
	})
	g.Go(func() error {
		s.logger.Info("control listener starting", "addr", s.cfg.ControlAddr)
		return serve(s.control, s.cfg.ControlAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func serve(e *echo.Echo, addr string) error {
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("relay shutting down")

	// Members get a close frame before the listeners go away.
	s.relay.Stop()

	return errors.Join(s.ws.Shutdown(ctx), s.control.Shutdown(ctx))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	})
}
