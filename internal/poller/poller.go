package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Target performs one full poll.
type Target interface {
	Poll(ctx context.Context) error
}

// TargetFunc is a function adapter for Target.
type TargetFunc func(ctx context.Context) error

func (f TargetFunc) Poll(ctx context.Context) error {
	return f(ctx)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 10s)
	Timeout  time.Duration // Per-poll timeout (default: 10s)

	// IsFatal reports errors that should stop polling altogether.
	IsFatal func(error) bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Stats counts poll activity.
type Stats struct {
	Polls       int64
	Failures    int64
	Triggered   int64
	LastSuccess time.Time
	Halted      bool
}

// Poller runs a Target on a timer and on demand.
type Poller struct {
	cfg      Config
	target   Target
	triggers <-chan struct{}
	clock    clockwork.Clock
	logger   *slog.Logger

	errs chan error

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. triggers and clock may be nil.
func New(cfg Config, target Target, triggers <-chan struct{}, clock clockwork.Clock, logger *slog.Logger) *Poller {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		target:   target,
		triggers: triggers,
		clock:    clock,
		logger:   logger,
		errs:     make(chan error, 1),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("order poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("order poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errors delivers the fatal error that halted the poller, if any.
func (p *Poller) Errors() <-chan error {
	return p.errs
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	if !p.pollOnce() {
		return
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
		case <-p.triggers:
			p.mu.Lock()
			p.stats.Triggered++
			p.mu.Unlock()
		}
		if !p.pollOnce() {
			return
		}
	}
}

// pollOnce runs the target and reports whether polling should continue.
func (p *Poller) pollOnce() bool {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := p.clock.Now()
	err := p.target.Poll(ctx)

	p.mu.Lock()
	p.stats.Polls++
	if err != nil {
		p.stats.Failures++
	} else {
		p.stats.LastSuccess = p.clock.Now()
	}
	p.mu.Unlock()

	if err == nil {
		p.logger.Debug("poll complete", "duration", p.clock.Since(start))
		return true
	}
	if p.ctx.Err() != nil {
		return false
	}

	if p.cfg.IsFatal != nil && p.cfg.IsFatal(err) {
		p.mu.Lock()
		p.stats.Halted = true
		p.mu.Unlock()
		p.logger.Error("poller halted", "error", err)
		select {
		case p.errs <- err:
		default:
		}
		return false
	}

	p.logger.Warn("poll failed", "error", err)
	return true
}
