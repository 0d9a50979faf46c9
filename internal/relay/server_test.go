package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greysana/kitchen-display-system/internal/config"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

func TestServer_Routes(t *testing.T) {
	cfg := config.DefaultRelay()
	cfg.Relay.ControlToken = "s3cret"

	r := New(DefaultConfig(), nil)
	t.Cleanup(r.Stop)
	s := NewServer(cfg, r, nil)

	wsServer := httptest.NewServer(s.WSHandler())
	t.Cleanup(wsServer.Close)
	control := httptest.NewServer(s.ControlHandler())
	t.Cleanup(control.Close)

	// Both "/" and "/ws" accept members.
	base := "ws" + strings.TrimPrefix(wsServer.URL, "http")
	for _, path := range []string{"/", "/ws"} {
		conn, _, err := ws.DefaultDialer.Dial(base+path, nil)
		require.NoError(t, err, path)
		sendFrame(t, conn, protocol.FrameJoin, "kds_update")
		t.Cleanup(func() { _ = conn.Close() })
	}
	assert.Equal(t, 2, r.ChannelCount("kds_update"))

	for _, url := range []string{wsServer.URL + "/health", control.URL + "/health", control.URL + "/metrics"} {
		resp, err := http.Get(url)
		require.NoError(t, err, url)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, url)
	}

	req, err := http.NewRequest(http.MethodPost, control.URL+"/broadcast", strings.NewReader(`{"channel":"kds_update","message":{}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	cfg := config.DefaultRelay()
	r := New(DefaultConfig(), nil)
	t.Cleanup(r.Stop)
	s := NewServer(cfg, r, nil)

	req := httptest.NewRequest(http.MethodOptions, "/broadcast", nil)
	req.Header.Set("Origin", "http://kitchen.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ControlHandler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	cfg := config.DefaultRelay()
	cfg.Relay.AllowedOrigins = []string{"http://kitchen.local"}

	r := New(DefaultConfig(), nil)
	t.Cleanup(r.Stop)
	server := httptest.NewServer(NewServer(cfg, r, nil).WSHandler())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	dialer := ws.Dialer{HandshakeTimeout: time.Second}

	_, _, err := dialer.Dial(url, http.Header{"Origin": {"http://evil.local"}})
	assert.Error(t, err)

	conn, _, err := dialer.Dial(url, http.Header{"Origin": {"http://kitchen.local"}})
	require.NoError(t, err)
	_ = conn.Close()
}
