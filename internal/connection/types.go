package connection

import (
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// State is the connection lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedRetrying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "closed_retrying"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RawMessage is a well-formed JSON payload handed to the Message Router.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time // When the frame was read off the socket
}

// ClientConfig configures a relay client.
type ClientConfig struct {
	URL          string        // Relay URL (e.g., ws://localhost:3002)
	Channel      string        // Joined on connect; empty skips the join
	Header       http.Header   // Extra handshake headers
	PingInterval time.Duration // How often we ping the relay
	PingTimeout  time.Duration // Silence after which the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size

	// OnDrop, if set, sees each payload discarded as unparsable.
	OnDrop func(data []byte)

	Clock clockwork.Clock // Heartbeat and receive stamps (default: real clock)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL            string
	Channel        string // Joined once per open connection
	Header         http.Header
	ReconnectDelay time.Duration // Fixed wait between attempts
	PingInterval   time.Duration
	BufferSize     int             // Buffer size for the output message channel
	Clock          clockwork.Clock // Drives reconnect waits (default: real clock)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Channel:        "kds_update",
		ReconnectDelay: 3 * time.Second,
		PingInterval:   30 * time.Second,
		BufferSize:     256,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State      State
	Connects   int64
	Reconnects int64
	Received   int64
	Dropped    int64 // Unparsable payloads
}
