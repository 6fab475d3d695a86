package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/hub"
	"tradeflow/internal/model"
	"tradeflow/pkg/clock"
)

func newServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.New(hub.DefaultConfig(), clock.New())
	g := NewStreamGateway(h, DefaultConfig())
	r := gin.New()
	r.GET("/ws", g.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?client_id=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestServeWSRequiresClientID(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscribeAndReceive(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "c1")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "alerts"}))
	ack := readJSON(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, 1, h.SubscriberCount(model.ChannelAlerts))

	require.NoError(t, h.Broadcast(model.TradeFailed{Symbol: "AAPL", Status: "rejected", Reason: "unknown symbol"}))
	env := readJSON(t, conn)
	assert.Equal(t, "alerts", env["channel"])
	assert.Equal(t, "trade_failed", env["type"])
}

func TestPingAndBadCommands(t *testing.T) {
	_, srv := newServer(t)
	conn := dial(t, srv, "c2")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, "pong", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "nope"}))
	assert.Equal(t, "error", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "error", readJSON(t, conn)["type"])
}

func TestCloseReleasesObserver(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "c3")
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "trades"}))
	readJSON(t, conn)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	assert.Eventually(t, func() bool { return h.ObserverCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	h, srv := newServer(t)
	dial(t, srv, "dup")
	require.Eventually(t, func() bool { return h.ObserverCount() == 1 }, time.Second, 5*time.Millisecond)

	second := dial(t, srv, "dup")
	require.NoError(t, second.WriteJSON(map[string]string{"action": "subscribe", "channel": "debates"}))
	assert.Equal(t, "subscribed", readJSON(t, second)["type"])
	// 旧连接被关闭后新连接的订阅仍在
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.ObserverCount())
	assert.Equal(t, 1, h.SubscriberCount(model.ChannelDebates))
}
