package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Server.WSAddr == "" {
		return errors.New("server.ws_addr is required")
	}
	if c.Server.ControlAddr == "" {
		return errors.New("server.control_addr is required")
	}
	if c.Server.WSAddr == c.Server.ControlAddr {
		return errors.New("server.ws_addr and server.control_addr must differ")
	}

	if c.Relay.SendBuffer < 1 {
		return errors.New("relay.send_buffer must be >= 1")
	}
	if c.Relay.CommandTimeout <= 0 {
		return errors.New("relay.command_timeout must be > 0")
	}

	if c.Redis.Enabled() && c.Redis.Channel == "" {
		return errors.New("redis.channel is required when redis.addr is set")
	}

	return c.Logging.validate()
}

// Validate checks that all required fields are set and values are valid.
func (c *BoardConfig) Validate() error {
	if _, err := c.Display.Location(); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.API.Token == "" && c.API.TokenFile == "" {
		return errors.New("api.token or api.token_file is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := validateURL("relay.url", c.Relay.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Relay.Channel == "" {
		return errors.New("relay.channel is required")
	}
	if c.Relay.ReconnectDelay <= 0 {
		return errors.New("relay.reconnect_delay must be > 0")
	}
	if c.Relay.BufferSize < 1 {
		return errors.New("relay.buffer_size must be >= 1")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	return c.Logging.validate()
}

// Location resolves the operational day timezone.
func (d DisplayConfig) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %v URL, got %q", field, schemes, raw)
}

func (l LoggingConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", l.Format)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
