package board

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/greysana/kitchen-display-system/internal/metrics"
	"github.com/greysana/kitchen-display-system/internal/model"
)

// DefaultNoticeTTL is how long a ready notice stays visible.
const DefaultNoticeTTL = 5 * time.Second

// Notice announces that an order just became ready for pickup.
type Notice struct {
	ID      model.ID
	Ticket  string
	FiredAt time.Time
}

// ReadyNotifier keeps one-shot "order ready" notices that expire on their own.
type ReadyNotifier struct {
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger
	onFire func(Notice)

	mu      sync.Mutex
	active  map[model.ID]Notice
	timers  map[model.ID]clockwork.Timer
	stopped bool
}

// NewReadyNotifier creates a notifier. onFire may be nil.
func NewReadyNotifier(clock clockwork.Clock, ttl time.Duration, onFire func(Notice), logger *slog.Logger) *ReadyNotifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadyNotifier{
		clock:  clock,
		ttl:    ttl,
		logger: logger,
		onFire: onFire,
		active: make(map[model.ID]Notice),
		timers: make(map[model.ID]clockwork.Timer),
	}
}

// Fire raises a notice for order unless one is already showing.
// It returns false when nothing was raised.
func (n *ReadyNotifier) Fire(order model.OrderRecord) bool {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return false
	}
	if _, ok := n.active[order.ID]; ok {
		n.mu.Unlock()
		return false
	}

	notice := Notice{ID: order.ID, Ticket: order.Ticket, FiredAt: n.clock.Now()}
	n.active[order.ID] = notice
	id := order.ID
	n.timers[id] = n.clock.AfterFunc(n.ttl, func() { n.expire(id) })
	n.mu.Unlock()

	metrics.ReadyNoticesTotal.Inc()
	n.logger.Info("order ready", "id", order.ID, "ticket", order.Ticket)
	if n.onFire != nil {
		n.onFire(notice)
	}
	return true
}

// Active returns the notices currently showing, oldest first.
func (n *ReadyNotifier) Active() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Notice, 0, len(n.active))
	for _, notice := range n.active {
		out = append(out, notice)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FiredAt.Before(out[j].FiredAt)
	})
	return out
}

// Stop cancels every pending expiry.
func (n *ReadyNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	clear(n.active)
}

func (n *ReadyNotifier) expire(id model.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.active, id)
	delete(n.timers, id)
}
