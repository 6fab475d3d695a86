package stream

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"tradeflow/internal/hub"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

const (
	writeWait     = 10 * time.Second
	maxMessageLen = 64 * 1024
)

// 客户端指令
type clientMessage struct {
	Action  string        `json:"action"` // subscribe / unsubscribe / ping
	Channel model.Channel `json:"channel"`
}

// 指令应答
type ackMessage struct {
	Type     string          `json:"type"` // subscribed / unsubscribed / pong / error
	Channel  model.Channel   `json:"channel,omitempty"`
	Channels []model.Channel `json:"channels,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type Config struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	SendBuffer int
}

func DefaultConfig() Config {
	return Config{PingPeriod: 30 * time.Second, PongWait: 60 * time.Second, SendBuffer: 256}
}

// StreamGateway 把 websocket 连接注册为广播中心的观察者
type StreamGateway struct {
	hub      *hub.Hub
	cfg      Config
	upgrader websocket.Upgrader
}

func NewStreamGateway(h *hub.Hub, cfg Config) *StreamGateway {
	def := DefaultConfig()
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = def.PingPeriod
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = 2 * cfg.PingPeriod
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &StreamGateway{
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS 建立 websocket 连接，同一个 client_id 的旧连接会被替换
func (g *StreamGateway) ServeWS(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("stream upgrade failed", logger.Pair("client", clientID), logger.ErrorField(err))
		return
	}

	client := newClientConn(clientID, conn, g.cfg.SendBuffer)
	if err := g.hub.Register(client); err != nil {
		logger.Warn("stream register failed", logger.Pair("client", clientID), logger.ErrorField(err))
		client.Close()
		return
	}
	logger.Info("observer connected", logger.Pair("observer", clientID), logger.Pair("remote", c.ClientIP()))

	go client.writePump(g.cfg.PingPeriod)

	// 阻塞直到连接断开
	reason := g.readPump(client)
	g.hub.Release(client, reason)
}

// readPump 读取客户端指令，返回断开原因
func (g *StreamGateway) readPump(c *clientConn) string {
	c.conn.SetReadLimit(maxMessageLen)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		g.hub.Touch(c.id)
		return c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "client closed"
			}
			return "read error: " + err.Error()
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		g.hub.Touch(c.id)
		g.reply(c, g.handle(c.id, raw))
	}
}

func (g *StreamGateway) handle(id string, raw []byte) ackMessage {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ackMessage{Type: "error", Message: "malformed message"}
	}
	switch msg.Action {
	case "subscribe":
		if err := g.hub.Subscribe(id, msg.Channel); err != nil {
			return ackMessage{Type: "error", Channel: msg.Channel, Message: err.Error()}
		}
		return ackMessage{Type: "subscribed", Channel: msg.Channel, Channels: g.hub.Subscriptions(id)}
	case "unsubscribe":
		if err := g.hub.Unsubscribe(id, msg.Channel); err != nil {
			return ackMessage{Type: "error", Channel: msg.Channel, Message: err.Error()}
		}
		return ackMessage{Type: "unsubscribed", Channel: msg.Channel, Channels: g.hub.Subscriptions(id)}
	case "ping":
		return ackMessage{Type: "pong"}
	}
	return ackMessage{Type: "error", Message: "unknown action: " + msg.Action}
}

func (g *StreamGateway) reply(c *clientConn, ack ackMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	c.Send(data)
}
