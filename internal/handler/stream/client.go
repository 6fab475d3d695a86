package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradeflow/pkg/logger"
)

// 连续丢弃超过该数量则视为慢消费者并断开
const maxDropped = 200

// clientConn 一个 websocket 观察者，实现 hub.Observer
type clientConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int32
}

func newClientConn(id string, conn *websocket.Conn, buf int) *clientConn {
	return &clientConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, buf),
		done: make(chan struct{}),
	}
}

func (c *clientConn) ID() string { return c.id }

// Send 非阻塞，缓冲满或已关闭时返回 false
func (c *clientConn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		c.dropped.Store(0)
		return true
	default:
		if n := c.dropped.Add(1); n > maxDropped {
			logger.Warn("slow observer, closing", logger.Pair("observer", c.id), logger.Pair("dropped", n))
			go c.Close()
		}
		return false
	}
}

// send 通道不关闭，writePump 通过 done 退出
func (c *clientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump 负责写入到 websocket （包括 ping）
func (c *clientConn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("observer write failed", logger.Pair("observer", c.id), logger.ErrorField(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("observer ping failed", logger.Pair("observer", c.id), logger.ErrorField(err))
				return
			}
		}
	}
}
