package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/greysana/kitchen-display-system/internal/api"
	"github.com/greysana/kitchen-display-system/internal/auth"
	"github.com/greysana/kitchen-display-system/internal/board"
	"github.com/greysana/kitchen-display-system/internal/config"
	"github.com/greysana/kitchen-display-system/internal/connection"
	"github.com/greysana/kitchen-display-system/internal/database"
	"github.com/greysana/kitchen-display-system/internal/drag"
	"github.com/greysana/kitchen-display-system/internal/journal"
	"github.com/greysana/kitchen-display-system/internal/logging"
	"github.com/greysana/kitchen-display-system/internal/poller"
	"github.com/greysana/kitchen-display-system/internal/reconciler"
	"github.com/greysana/kitchen-display-system/internal/router"
	"github.com/greysana/kitchen-display-system/internal/version"
)

const shutdownTimeout = 10 * time.Second

func boardCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Run a display's board sync",
		Long: `Run the sync core for one kitchen display: full polls of the order API,
push deltas from the relay, drag-and-drop writes, and a local HTTP server
exposing the board, ready notices, health and metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBoardAndValidate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runBoard(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/board.yaml", "path to board config file")
	return cmd
}

func runBoard(ctx context.Context, cfg *config.BoardConfig) error {
	logger := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting board",
		"version", version.Version,
		"commit", version.Commit,
		"api_url", cfg.API.BaseURL,
		"relay_url", cfg.Relay.URL,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Display.Location()
	if err != nil {
		return err
	}

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	client := api.NewClient(cfg.API.BaseURL, creds,
		api.WithLogger(logging.WithComponent("api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithStagesTTL(cfg.API.StagesTTL),
		api.WithLocation(loc),
	)

	store := board.NewStore(logging.WithComponent("store"))
	notifier := board.NewReadyNotifier(nil, cfg.Display.NoticeTTL, nil, logging.WithComponent("notices"))
	defer notifier.Stop()

	rec := reconciler.New(reconciler.Config{
		ReadyStage: cfg.Display.ReadyStage,
		Location:   loc,
	}, store, client, notifier, nil, logging.WithComponent("reconciler"))

	// Write journal, only when a database is configured.
	var recorder drag.Recorder
	var jrnl *journal.Journal
	if cfg.Database.Enabled() {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		jrnl = journal.New(journal.DefaultConfig(), pool, nil, logging.WithComponent("journal"))
		if err := jrnl.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		if err := jrnl.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		defer stopWithTimeout(logger, "journal", jrnl.Stop)
		recorder = jrnl
	}

	dragOpts := []drag.Option{drag.WithLogger(logging.WithComponent("drag"))}
	if recorder != nil {
		dragOpts = append(dragOpts, drag.WithRecorder(recorder))
	}
	controller := drag.NewController(store, rec, client, rec, dragOpts...)

	poll := poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Timeout:  cfg.Poller.Timeout,
		IsFatal:  api.IsAuthError,
	}, poller.TargetFunc(func(ctx context.Context) error {
		_, err := rec.Poll(ctx)
		return err
	}), rec.Refreshes(), nil, logging.WithComponent("poller"))

	header := http.Header{}
	for k, v := range creds.Headers() {
		header.Set(k, v)
	}
	conn := connection.NewManager(connection.ManagerConfig{
		URL:            cfg.Relay.URL,
		Channel:        cfg.Relay.Channel,
		Header:         header,
		ReconnectDelay: cfg.Relay.ReconnectDelay,
		PingInterval:   cfg.Relay.PingInterval,
		BufferSize:     cfg.Relay.BufferSize,
	}, logging.WithComponent("connection"))

	rt := router.NewRouter(router.DefaultRouterConfig(), conn.Messages(), logging.WithComponent("router"), rec)

	// Start order: consumers before producers.
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	defer stopWithTimeout(logger, "router", rt.Stop)

	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	defer stopWithTimeout(logger, "connection", conn.Stop)

	if err := poll.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer stopWithTimeout(logger, "poller", poll.Stop)

	status := newStatusServer(statusDeps{
		store:      store,
		stages:     rec,
		notifier:   notifier,
		controller: controller,
		conn:       conn,
		poller:     poll,
		journal:    jrnl,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("status server starting", "addr", cfg.Server.Addr)
		if err := status.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case err := <-poll.Errors():
			return fmt.Errorf("poller halted: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return status.Shutdown(shutdownCtx)
	})

	logger.Info("board running", "status_addr", cfg.Server.Addr)
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func stopWithTimeout(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("stop failed", "component", name, "error", err)
	}
}
