package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// memberWriter owns every write to one member's socket.
type memberWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newMemberWriter(conn *websocket.Conn, clock clockwork.Clock, buffer int) *memberWriter {
	w := &memberWriter{
		conn:  conn,
		clock: clock,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

// enqueue never blocks. It returns false when the buffer is full or the
// writer has stopped.
func (w *memberWriter) enqueue(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.send <- data:
		return true
	default:
		return false
	}
}

func (w *memberWriter) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.send:
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *memberWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

// stopGraceful writes a close frame with reason before closing the socket.
func (w *memberWriter) stopGraceful(reason string) {
	w.stopOnce.Do(func() {
		close(w.done)
		// The close frame must not race a write from run.
		w.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		w.updateWriteDeadline()
		_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = w.conn.Close()
	})
}

func (w *memberWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

func (w *memberWriter) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *memberWriter) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}
