package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dm-relay/domain"

	"github.com/gorilla/websocket"
)

// conn wraps one websocket connection: identity-agnostic, it only knows
// its transport id, its outgoing queue and its liveness timestamps. The
// user identity behind it lives in the registry, never here.
type conn struct {
	id  domain.ConnID
	ws  *websocket.Conn
	log *slog.Logger

	outgoing  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	lastPong  atomic.Int64
}

func newConn(id domain.ConnID, ws *websocket.Conn, log *slog.Logger, queueSize int) *conn {
	c := &conn{
		id:       id,
		ws:       ws,
		log:      log,
		outgoing: make(chan []byte, queueSize),
		closed:   make(chan struct{}),
	}
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// enqueue offers a frame to the write pump without blocking the caller.
// A full queue means the peer is too slow: the frame is dropped and the
// caller counts it.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	case c.outgoing <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writePump drains the outgoing queue and keeps the connection alive with
// periodic pings. It exits when the queue source closes or a write fails,
// closing the socket either way so the read loop unblocks.
func (c *conn) writePump(pingPeriod, writeWait time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.outgoing:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "conn", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "conn", c.id, "error", err)
				return
			}
		}
	}
}
