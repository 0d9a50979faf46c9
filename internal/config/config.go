package config

import "time"

// RelayConfig is the root configuration for the broadcast relay.
type RelayConfig struct {
	Server  RelayServerConfig `yaml:"server"`
	Relay   RelaySettings     `yaml:"relay"`
	Redis   RedisConfig       `yaml:"redis"`
	Logging LoggingConfig     `yaml:"logging"`
}

// RelayServerConfig holds listener addresses. Displays connect to WSAddr;
// backend publishers call ControlAddr.
type RelayServerConfig struct {
	WSAddr          string        `yaml:"ws_addr"`
	ControlAddr     string        `yaml:"control_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RelaySettings tunes membership and fan-out.
type RelaySettings struct {
	SendBuffer     int           `yaml:"send_buffer"`     // Per-member queued messages
	CommandTimeout time.Duration `yaml:"command_timeout"` // Actor round-trip limit
	ControlToken   string        `yaml:"control_token"`   // Bearer token for the control plane; empty disables
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS origins; empty allows all
}

// RedisConfig enables the optional Redis pub/sub ingest.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // Empty disables ingest
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether Redis ingest is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// BoardConfig is the root configuration for a display's sync core.
type BoardConfig struct {
	Display  DisplayConfig    `yaml:"display"`
	API      APIConfig        `yaml:"api"`
	Relay    ConnectionConfig `yaml:"relay"`
	Poller   PollerConfig     `yaml:"poller"`
	Database DBConfig         `yaml:"database"`
	Server   StatusConfig     `yaml:"server"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// DisplayConfig holds board behavior settings.
type DisplayConfig struct {
	Timezone   string        `yaml:"timezone"`    // IANA name for the operational day
	ReadyStage string        `yaml:"ready_stage"` // Entering it raises a notice
	NoticeTTL  time.Duration `yaml:"notice_ttl"`
}

// APIConfig holds order backend settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	TokenFile  string        `yaml:"token_file"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	StagesTTL  time.Duration `yaml:"stages_ttl"`
}

// ConnectionConfig holds the display's relay connection settings.
type ConnectionConfig struct {
	URL            string        `yaml:"url"`
	Channel        string        `yaml:"channel"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	BufferSize     int           `yaml:"buffer_size"`
}

// PollerConfig holds full poll settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DBConfig holds the write journal database. An empty Host disables it.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a journal database is configured.
func (db DBConfig) Enabled() bool { return db.Host != "" }

// StatusConfig holds the display's local HTTP server (board view, drag
// endpoints, health, metrics).
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
