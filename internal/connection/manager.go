package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/greysana/kitchen-display-system/internal/metrics"
)

// Manager keeps one relay connection alive and forwards what it receives.
type Manager struct {
	cfg       ManagerConfig
	clock     clockwork.Clock
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	// Output channel to Message Router
	messages chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	state  State
	client Client
	timer  clockwork.Timer
	stats  ManagerStats

	stopOnce sync.Once
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	defaults := DefaultManagerConfig()
	if cfg.Channel == "" {
		cfg.Channel = defaults.Channel
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    logger,
		newClient: NewClient,
		messages:  make(chan RawMessage, cfg.BufferSize),
		state:     StateConnecting,
	}
}

// Start begins connecting in the background. It returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started",
		"url", m.cfg.URL,
		"channel", m.cfg.Channel,
		"reconnect_delay", m.cfg.ReconnectDelay,
	)
	return nil
}

// Stop cancels any pending reconnect and closes the connection. Messages()
// is closed by the connection loop once it has exited, so it may still be
// open when ctx expires first. Safe to call more than once.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.logger.Info("stopping connection manager")

		if m.cancel == nil {
			// Never started: no loop owns the channel.
			m.setState(StateStopped)
			close(m.messages)
			return
		}
		m.cancel()

		m.mu.Lock()
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		client := m.client
		m.mu.Unlock()
		if client != nil {
			client.Close()
		}

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Info("connection manager stopped")
		case <-ctx.Done():
			m.logger.Warn("shutdown timeout, connection loop still exiting")
		}
		m.setState(StateStopped)
	})
	return nil
}

// Messages returns the output channel for the Message Router.
func (m *Manager) Messages() <-chan RawMessage {
	return m.messages
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the connection is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.State = m.state
	return s
}

// Send writes data on the open connection. When the connection is not open
// nothing is written and ErrNotConnected is returned.
func (m *Manager) Send(data []byte) error {
	m.mu.RLock()
	state, client := m.state, m.client
	m.mu.RUnlock()

	err := ErrNotConnected
	if state == StateOpen && client != nil {
		err = client.Send(data)
	}
	if errors.Is(err, ErrNotConnected) {
		m.logger.Warn("send while not connected", "state", state, "bytes", len(data))
	}
	return err
}

// run is the single connection loop: dial, serve, wait, repeat.
func (m *Manager) run() {
	defer m.wg.Done()
	defer close(m.messages)

	for {
		if m.ctx.Err() != nil {
			return
		}
		m.setState(StateConnecting)

		client := m.newClient(ClientConfig{
			URL:          m.cfg.URL,
			Channel:      m.cfg.Channel,
			Header:       m.cfg.Header,
			PingInterval: m.cfg.PingInterval,
			BufferSize:   m.cfg.BufferSize,
			OnDrop:       m.countDrop,
		}, m.logger)

		if err := client.Connect(m.ctx); err != nil {
			m.logger.Warn("relay connection failed", "url", m.cfg.URL, "error", err)
		} else {
			m.serve(client)
		}
		client.Close()

		if m.ctx.Err() != nil {
			return
		}
		m.setState(StateClosedRetrying)
		if !m.wait() {
			return
		}

		m.mu.Lock()
		m.stats.Reconnects++
		m.mu.Unlock()
		metrics.ConnectionReconnectsTotal.Inc()
		m.logger.Info("attempting reconnection", "url", m.cfg.URL)
	}
}

// serve forwards messages from a joined connection until it ends.
func (m *Manager) serve(client Client) {
	m.mu.Lock()
	m.client = client
	m.state = StateOpen
	m.stats.Connects++
	m.mu.Unlock()
	metrics.ConnectionState.Set(1)
	m.logger.Info("relay connected", "url", m.cfg.URL, "channel", m.cfg.Channel)

	defer func() {
		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()
		metrics.ConnectionState.Set(0)
	}()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-client.Errors():
			m.logger.Warn("relay connection lost", "error", err)
			return

		case msg := <-client.Messages():
			m.mu.Lock()
			m.stats.Received++
			m.mu.Unlock()

			select {
			case m.messages <- msg:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *Manager) countDrop([]byte) {
	m.mu.Lock()
	m.stats.Dropped++
	m.mu.Unlock()
}

// wait sleeps ReconnectDelay on the clock. It returns false if Stop ran.
func (m *Manager) wait() bool {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	timer := m.clock.NewTimer(m.cfg.ReconnectDelay)
	m.timer = timer
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.timer == timer {
			m.timer = nil
		}
		m.mu.Unlock()
	}()

	select {
	case <-m.ctx.Done():
		timer.Stop()
		return false
	case <-timer.Chan():
		return true
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStopped {
		return
	}
	m.state = s
}
