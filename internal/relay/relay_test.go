package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greysana/kitchen-display-system/internal/protocol"
)

// testRelay starts a relay behind an httptest websocket server.
func testRelay(t *testing.T, cfg Config) (*Relay, func() *ws.Conn) {
	t.Helper()

	r := New(cfg, nil)
	t.Cleanup(r.Stop)

	e := echo.New()
	e.GET("/ws", NewHandler(r, nil, nil).ServeWS)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	dial := func() *ws.Conn {
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	return r, dial
}

func sendFrame(t *testing.T, conn *ws.Conn, typ protocol.FrameType, channel string) protocol.Ack {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{Type: typ, ChannelID: channel}))
	return readAck(t, conn)
}

func readAck(t *testing.T, conn *ws.Conn) protocol.Ack {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack protocol.Ack
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

func readText(t *testing.T, conn *ws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestRelay_PublishAfterJoin(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())

	assert.Equal(t, 0, r.Publish("kds_update", []byte(`{"type":"new_order"}`)))

	conn := dial()
	ack := sendFrame(t, conn, protocol.FrameJoin, "kds_update")
	assert.Equal(t, protocol.FrameJoinSuccess, ack.Type)
	assert.Equal(t, "kds_update", ack.Channel)
	assert.Equal(t, "Joined channel: kds_update", ack.Message)

	assert.Equal(t, 1, r.Publish("kds_update", []byte(`{"type":"new_order"}`)))
	assert.Equal(t, `{"type":"new_order"}`, readText(t, conn))
}

func TestRelay_JoinIsIdempotent(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())
	conn := dial()

	for range 2 {
		ack := sendFrame(t, conn, protocol.FrameJoin, "kds_update")
		assert.Equal(t, protocol.FrameJoinSuccess, ack.Type)
	}

	assert.Equal(t, 1, r.ChannelCount("kds_update"))
	assert.Equal(t, 1, r.Publish("kds_update", []byte(`{}`)))
}

func TestRelay_Leave(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())
	conn := dial()

	sendFrame(t, conn, protocol.FrameJoin, "kds_update")
	sendFrame(t, conn, protocol.FrameJoin, "expo")

	ack := sendFrame(t, conn, protocol.FrameLeave, "kds_update")
	assert.Equal(t, protocol.FrameLeaveSuccess, ack.Type)
	assert.Equal(t, "Left channel: kds_update", ack.Message)

	// Leaving a channel the member is not in is still acknowledged.
	ack = sendFrame(t, conn, protocol.FrameLeave, "kds_update")
	assert.Equal(t, protocol.FrameLeaveSuccess, ack.Type)

	assert.Equal(t, 0, r.ChannelCount("kds_update"))
	assert.Equal(t, 1, r.ChannelCount("expo"))
}

func TestRelay_FanOutOnlyToChannel(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())

	kitchen := dial()
	sendFrame(t, kitchen, protocol.FrameJoin, "kds_update")
	other := dial()
	sendFrame(t, other, protocol.FrameJoin, "expo")
	both := dial()
	sendFrame(t, both, protocol.FrameJoin, "kds_update")
	sendFrame(t, both, protocol.FrameJoin, "expo")

	assert.Equal(t, 2, r.Publish("kds_update", []byte(`"k"`)))
	assert.Equal(t, `"k"`, readText(t, kitchen))
	assert.Equal(t, `"k"`, readText(t, both))

	assert.Equal(t, 2, r.Publish("expo", []byte(`"e"`)))
	assert.Equal(t, `"e"`, readText(t, other))
	assert.Equal(t, `"e"`, readText(t, both))
}

func TestRelay_MalformedFrameIgnored(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())
	conn := dial()

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "shout", "channelId": "kds_update"}))

	// The connection survives and the next valid frame is processed.
	ack := sendFrame(t, conn, protocol.FrameJoin, "kds_update")
	assert.Equal(t, protocol.FrameJoinSuccess, ack.Type)
	assert.Equal(t, 1, r.ChannelCount("kds_update"))
}

func TestRelay_DetachOnDisconnect(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())
	conn := dial()
	sendFrame(t, conn, protocol.FrameJoin, "kds_update")

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return r.ChannelCount("kds_update") == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.Publish("kds_update", []byte(`{}`)))
}

func TestRelay_SlowMemberEvicted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	r, dial := testRelay(t, cfg)

	conn := dial()
	sendFrame(t, conn, protocol.FrameJoin, "kds_update")

	// A large payload keeps the writer busy while the buffer fills. The
	// test connection never reads, so the member eventually falls behind.
	big := []byte(`"` + strings.Repeat("x", 1<<20) + `"`)
	require.Eventually(t, func() bool {
		r.Publish("kds_update", big)
		return r.ChannelCount("kds_update") == 0
	}, 5*time.Second, time.Millisecond)
}

func TestRelay_StopSendsCloseFrame(t *testing.T) {
	r, dial := testRelay(t, DefaultConfig())
	conn := dial()
	sendFrame(t, conn, protocol.FrameJoin, "kds_update")

	r.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *ws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "server shutting down", closeErr.Text)

	assert.Equal(t, 0, r.Publish("kds_update", []byte(`{}`)))
	r.Stop()
}

func TestRelay_AcksAreJSON(t *testing.T) {
	_, dial := testRelay(t, DefaultConfig())
	conn := dial()

	require.NoError(t, conn.WriteJSON(protocol.JoinFrame("kds_update")))
	raw := readText(t, conn)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, map[string]string{
		"type":    "join_success",
		"channel": "kds_update",
		"message": "Joined channel: kds_update",
	}, got)
}
