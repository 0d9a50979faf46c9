package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/greysana/kitchen-display-system/internal/metrics"
)

// ErrStopped is returned for commands sent after Stop.
var ErrStopped = errors.New("relay stopped")

const (
	defaultSendBuffer     = 16
	defaultCommandTimeout = 5 * time.Second
	defaultStopTimeout    = 10 * time.Second
	commandBuffer         = 256
)

// Config tunes the relay actor.
type Config struct {
	SendBuffer     int           // Queued messages per member before eviction
	CommandTimeout time.Duration // How long callers wait for the actor
	StopTimeout    time.Duration
	Clock          clockwork.Clock
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     defaultSendBuffer,
		CommandTimeout: defaultCommandTimeout,
		StopTimeout:    defaultStopTimeout,
	}
}

type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type attachCmd struct {
	baseRelayCmd
	conn  *websocket.Conn
	reply chan uuid.UUID
}

type detachCmd struct {
	baseRelayCmd
	id uuid.UUID
}

type joinCmd struct {
	baseRelayCmd
	id      uuid.UUID
	channel string
	reply   chan bool
}

type leaveCmd struct {
	baseRelayCmd
	id      uuid.UUID
	channel string
	reply   chan bool
}

type sendCmd struct {
	baseRelayCmd
	id    uuid.UUID
	data  []byte
	reply chan bool
}

type publishCmd struct {
	baseRelayCmd
	channel string
	data    []byte
	reply   chan int
}

type countCmd struct {
	baseRelayCmd
	channel string
	reply   chan int
}

type stopCmd struct {
	baseRelayCmd
}

type member struct {
	writer   *memberWriter
	channels map[string]struct{}
}

// Relay fans published payloads out to the members of a channel.
type Relay struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	cmdCh    chan relayCmd
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the run goroutine.
	members  map[uuid.UUID]*member
	channels map[string]map[uuid.UUID]struct{}
}

// New starts a relay actor.
func New(cfg Config, logger *slog.Logger) *Relay {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Relay{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   logger,
		cmdCh:    make(chan relayCmd, commandBuffer),
		done:     make(chan struct{}),
		members:  make(map[uuid.UUID]*member),
		channels: make(map[string]map[uuid.UUID]struct{}),
	}
	go r.run()
	return r
}

// Attach registers a connection as a member with no channels and starts its
// writer. The relay owns conn from here on.
func (r *Relay) Attach(conn *websocket.Conn) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	if !r.submit(attachCmd{conn: conn, reply: reply}) {
		return uuid.Nil, ErrStopped
	}
	id, ok := await(r, "attach", reply)
	if !ok {
		return uuid.Nil, fmt.Errorf("attach timed out after %v", r.cfg.CommandTimeout)
	}
	return id, nil
}

// Detach removes a member from every channel and closes its socket.
func (r *Relay) Detach(id uuid.UUID) {
	r.submit(detachCmd{id: id})
}

// Join adds a member to channel. It reports whether the member was newly
// added; joining twice is not an error.
func (r *Relay) Join(id uuid.UUID, channel string) bool {
	reply := make(chan bool, 1)
	if !r.submit(joinCmd{id: id, channel: channel, reply: reply}) {
		return false
	}
	added, _ := await(r, "join", reply)
	return added
}

// Leave removes a member from channel. It reports whether the member was
// there.
func (r *Relay) Leave(id uuid.UUID, channel string) bool {
	reply := make(chan bool, 1)
	if !r.submit(leaveCmd{id: id, channel: channel, reply: reply}) {
		return false
	}
	removed, _ := await(r, "leave", reply)
	return removed
}

// Send queues data for a single member.
func (r *Relay) Send(id uuid.UUID, data []byte) bool {
	reply := make(chan bool, 1)
	if !r.submit(sendCmd{id: id, data: data, reply: reply}) {
		return false
	}
	sent, _ := await(r, "send", reply)
	return sent
}

// Publish queues payload for every member of channel and returns how many
// members accepted it. It never waits on a member's socket.
func (r *Relay) Publish(channel string, payload []byte) int {
	reply := make(chan int, 1)
	if !r.submit(publishCmd{channel: channel, data: payload, reply: reply}) {
		return 0
	}
	n, _ := await(r, "publish", reply)
	return n
}

// ChannelCount returns the number of members in channel, or -1 if the
// relay did not answer in time.
func (r *Relay) ChannelCount(channel string) int {
	reply := make(chan int, 1)
	if !r.submit(countCmd{channel: channel, reply: reply}) {
		return 0
	}
	n, ok := await(r, "count", reply)
	if !ok {
		return -1
	}
	return n
}

// Stop closes every member with a close frame and ends the actor. It blocks
// until the actor exits or StopTimeout passes.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if !r.submit(stopCmd{}) {
			return
		}

		timeout := r.clock.NewTimer(r.cfg.StopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			r.logger.Info("relay stopped")
		case <-timeout.Chan():
			r.logger.Warn("relay stop timed out", "timeout", r.cfg.StopTimeout)
		}
	})
}

func (r *Relay) submit(cmd relayCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// await waits for the actor's reply, giving up after CommandTimeout.
func await[T any](r *Relay, op string, reply <-chan T) (T, bool) {
	timer := r.clock.NewTimer(r.cfg.CommandTimeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-reply:
		return v, true
	case <-r.done:
		return zero, false
	case <-timer.Chan():
		r.logger.Warn("relay command timed out", "command", op, "timeout", r.cfg.CommandTimeout)
		return zero, false
	}
}

func (r *Relay) run() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("relay panic recovered", "panic", p)
			metrics.RelayPanicsTotal.Inc()
			r.closeAll("relay failure")
		}
	}()
	defer close(r.done)

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case attachCmd:
			c.reply <- r.handleAttach(c.conn)
		case detachCmd:
			r.handleDetach(c.id)
		case joinCmd:
			c.reply <- r.handleJoin(c.id, c.channel)
		case leaveCmd:
			c.reply <- r.handleLeave(c.id, c.channel)
		case sendCmd:
			c.reply <- r.handleSend(c.id, c.data)
		case publishCmd:
			c.reply <- r.handlePublish(c.channel, c.data)
		case countCmd:
			c.reply <- len(r.channels[c.channel])
		case stopCmd:
			r.logger.Info("relay shutting down", "members", len(r.members), "channels", len(r.channels))
			r.closeAll("server shutting down")
			return
		default:
			r.logger.Warn("relay received unknown command", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (r *Relay) handleAttach(conn *websocket.Conn) uuid.UUID {
	id := uuid.New()
	r.members[id] = &member{
		writer:   newMemberWriter(conn, r.clock, r.cfg.SendBuffer),
		channels: make(map[string]struct{}),
	}
	metrics.RelayMembersCurrent.Set(float64(len(r.members)))
	r.logger.Debug("member attached", "member", id, "members", len(r.members))
	return id
}

func (r *Relay) handleDetach(id uuid.UUID) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	for channel := range m.channels {
		r.removeFromChannel(id, channel)
	}
	m.writer.stop()
	delete(r.members, id)

	metrics.RelayMembersCurrent.Set(float64(len(r.members)))
	metrics.RelayChannelsCurrent.Set(float64(len(r.channels)))
	r.logger.Debug("member detached", "member", id, "members", len(r.members))
}

func (r *Relay) handleJoin(id uuid.UUID, channel string) bool {
	m, ok := r.members[id]
	if !ok {
		return false
	}
	if _, ok := m.channels[channel]; ok {
		return false
	}

	m.channels[channel] = struct{}{}
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.channels[channel] = set
	}
	set[id] = struct{}{}

	metrics.RelayChannelsCurrent.Set(float64(len(r.channels)))
	r.logger.Info("member joined channel", "member", id, "channel", channel, "total", len(set))
	return true
}

func (r *Relay) handleLeave(id uuid.UUID, channel string) bool {
	m, ok := r.members[id]
	if !ok {
		return false
	}
	if _, ok := m.channels[channel]; !ok {
		return false
	}

	delete(m.channels, channel)
	r.removeFromChannel(id, channel)

	metrics.RelayChannelsCurrent.Set(float64(len(r.channels)))
	r.logger.Info("member left channel", "member", id, "channel", channel)
	return true
}

func (r *Relay) removeFromChannel(id uuid.UUID, channel string) {
	set := r.channels[channel]
	delete(set, id)
	if len(set) == 0 {
		delete(r.channels, channel)
	}
}

func (r *Relay) handleSend(id uuid.UUID, data []byte) bool {
	m, ok := r.members[id]
	if !ok {
		return false
	}
	return m.writer.enqueue(data)
}

func (r *Relay) handlePublish(channel string, data []byte) int {
	var slow []uuid.UUID
	delivered := 0
	for id := range r.channels[channel] {
		if r.members[id].writer.enqueue(data) {
			delivered++
			continue
		}
		slow = append(slow, id)
	}

	for _, id := range slow {
		r.logger.Warn("evicting slow member", "member", id, "channel", channel)
		metrics.RelaySlowMembersEvicted.Inc()
		r.handleDetach(id)
	}

	metrics.RelayDeliveredTotal.Add(float64(delivered))
	r.logger.Debug("published", "channel", channel, "delivered", delivered)
	return delivered
}

// closeAll sends every member a close frame with reason.
func (r *Relay) closeAll(reason string) {
	for id, m := range r.members {
		m.writer.stopGraceful(reason)
		delete(r.members, id)
	}
	clear(r.channels)
	metrics.RelayMembersCurrent.Set(0)
	metrics.RelayChannelsCurrent.Set(0)
}
