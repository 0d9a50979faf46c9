package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/greysana/kitchen-display-system/internal/config"
	"github.com/greysana/kitchen-display-system/internal/logging"
	"github.com/greysana/kitchen-display-system/internal/relay"
	"github.com/greysana/kitchen-display-system/internal/version"
)

func relayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the broadcast relay",
		Long: `Run the relay displays connect to. Members join channels over websocket;
publishers push to a channel with POST /broadcast on the control listener
or, when redis.addr is set, through a Redis pub/sub channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultRelay()
			if configPath != "" {
				loaded, err := config.LoadRelayAndValidate(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			return runRelay(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to relay config file")
	return cmd
}

func runRelay(ctx context.Context, cfg *config.RelayConfig) error {
	logger := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"ws_addr", cfg.Server.WSAddr,
		"control_addr", cfg.Server.ControlAddr,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := relay.New(relay.Config{
		SendBuffer:     cfg.Relay.SendBuffer,
		CommandTimeout: cfg.Relay.CommandTimeout,
	}, logging.WithComponent("relay"))
	server := relay.NewServer(cfg, r, logging.WithComponent("relay-server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if cfg.Redis.Enabled() {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()

		g.Go(func() error {
			return relay.SubscribeBroadcasts(gctx, rc, cfg.Redis.Channel, r, logging.WithComponent("redis-ingest"))
		})
	}

	err := g.Wait()
	logger.Info("relay stopped")
	return err
}
