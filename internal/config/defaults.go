package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSAddr          = ":3002"
	DefaultControlAddr     = ":3003"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSendBuffer      = 16
	DefaultCommandTimeout  = 5 * time.Second
	DefaultRedisChannel    = "kds:broadcast"
	DefaultTimezone        = "Local"
	DefaultReadyStage      = "ready"
	DefaultNoticeTTL       = 5 * time.Second
	DefaultAPITimeout      = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultStagesTTL       = 30 * time.Second
	DefaultRelayURL        = "ws://localhost:3002"
	DefaultChannel         = "kds_update"
	DefaultReconnectDelay  = 3 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultConnBufferSize  = 256
	DefaultPollInterval    = 10 * time.Second
	DefaultPollTimeout     = 10 * time.Second
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultStatusAddr      = ":8080"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *RelayConfig) applyDefaults() {
	if c.Server.WSAddr == "" {
		c.Server.WSAddr = DefaultWSAddr
	}
	if c.Server.ControlAddr == "" {
		c.Server.ControlAddr = DefaultControlAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = DefaultSendBuffer
	}
	if c.Relay.CommandTimeout == 0 {
		c.Relay.CommandTimeout = DefaultCommandTimeout
	}

	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}

	applyLoggingDefaults(&c.Logging)
}

func (c *BoardConfig) applyDefaults() {
	// Display defaults
	if c.Display.Timezone == "" {
		c.Display.Timezone = DefaultTimezone
	}
	if c.Display.ReadyStage == "" {
		c.Display.ReadyStage = DefaultReadyStage
	}
	if c.Display.NoticeTTL == 0 {
		c.Display.NoticeTTL = DefaultNoticeTTL
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.StagesTTL == 0 {
		c.API.StagesTTL = DefaultStagesTTL
	}

	// Relay connection defaults
	if c.Relay.URL == "" {
		c.Relay.URL = DefaultRelayURL
	}
	if c.Relay.Channel == "" {
		c.Relay.Channel = DefaultChannel
	}
	if c.Relay.ReconnectDelay == 0 {
		c.Relay.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Relay.PingInterval == 0 {
		c.Relay.PingInterval = DefaultPingInterval
	}
	if c.Relay.BufferSize == 0 {
		c.Relay.BufferSize = DefaultConnBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Journal database defaults, only when one is configured
	if c.Database.Enabled() {
		applyDBDefaults(&c.Database)
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultStatusAddr
	}

	applyLoggingDefaults(&c.Logging)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	if l.Format == "" {
		l.Format = DefaultLogFormat
	}
}
