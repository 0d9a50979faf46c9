package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/greysana/kitchen-display-system/internal/metrics"
)

// Publisher is what the ingest feeds. *Relay satisfies it.
type Publisher interface {
	Publish(channel string, payload []byte) int
}

// SubscribeBroadcasts consumes {channel, message} payloads from a Redis
// pub/sub channel and publishes each one. It blocks until ctx is done.
// Malformed payloads are logged and skipped.
func SubscribeBroadcasts(ctx context.Context, rc *redis.Client, redisChannel string, pub Publisher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sub := rc.Subscribe(ctx, redisChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", redisChannel, err)
	}
	logger.Info("redis ingest subscribed", "channel", redisChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b, err := decodeBroadcast([]byte(msg.Payload))
			if err != nil {
				logger.Warn("skipping malformed redis broadcast", "channel", redisChannel, "error", err)
				continue
			}
			metrics.RelayPublishTotal.WithLabelValues(SourceRedis).Inc()
			n := pub.Publish(b.Channel, b.Message)
			logger.Debug("redis broadcast", "channel", b.Channel, "clients_notified", n)
		}
	}
}
