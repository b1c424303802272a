package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dm-relay/domain"
	apperrors "dm-relay/errors"
	"dm-relay/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PresenceHandler consumes connection lifecycle events.
type PresenceHandler interface {
	HandleConnect(user domain.UserID, conn domain.ConnID)
	HandleDisconnect(conn domain.ConnID)
}

// EventHandler consumes the named events of an established connection.
type EventHandler interface {
	HandleSend(payload domain.SendPayload) domain.AckResult
	HandleTyping(payload domain.TypingPayload)
	HandleMarkRead(payload domain.MarkReadPayload)
}

type GatewayConfig struct {
	QueueSize  int
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Gateway upgrades HTTP requests to websocket connections and bridges
// them to the routing core. It keeps its own map of live socket writers;
// the user registry in runtime tracks identities, not sockets.
type Gateway struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	config   GatewayConfig
	upgrader websocket.Upgrader

	presence PresenceHandler
	events   EventHandler

	mu    sync.RWMutex
	conns map[domain.ConnID]*conn
}

func NewGateway(log *slog.Logger, metrics *observability.Metrics, config GatewayConfig) *Gateway {
	return &Gateway{
		log:     log,
		metrics: metrics,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[domain.ConnID]*conn),
	}
}

// Bind attaches the routing core. Must be called before serving: the
// gateway is constructed first because the core needs it as Transport.
func (g *Gateway) Bind(presence PresenceHandler, events EventHandler) {
	g.presence = presence
	g.events = events
}

// ServeHTTP upgrades the request and runs the connection until it dies.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(domain.ConnID(uuid.NewString()), ws, g.log, g.config.QueueSize)
	g.addConn(c)
	g.log.Debug("Connection opened", "conn", c.id, "remote", r.RemoteAddr)

	go c.writePump(g.config.PingPeriod, g.config.WriteWait)
	g.readLoop(c)

	g.removeConn(c)
	g.presence.HandleDisconnect(c.id)
	g.log.Debug("Connection closed", "conn", c.id)
}

// readLoop processes inbound frames sequentially: each event runs to
// completion before the next one on the same connection, which is what
// preserves per-sender delivery order downstream.
func (g *Gateway) readLoop(c *conn) {
	defer c.close()

	_ = c.ws.SetReadDeadline(time.Now().Add(g.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return c.ws.SetReadDeadline(time.Now().Add(g.config.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("Read failed", "conn", c.id, "error", err)
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			g.log.Debug("Discarding malformed frame", "conn", c.id, "error", err)
			continue
		}
		g.dispatch(c, envelope)
	}
}

// dispatch routes one inbound envelope. A panicking handler is recovered
// here so one poisoned event cannot take down unrelated connections.
func (g *Gateway) dispatch(c *conn, envelope Envelope) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("Event handler panicked", "conn", c.id, "event", envelope.Event, "panic", r)
		}
	}()

	switch envelope.Event {
	case domain.EventJoin:
		var payload domain.JoinPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.UserID == "" {
			g.log.Debug("Ignoring join without identity", "conn", c.id)
			return
		}
		g.presence.HandleConnect(domain.UserID(payload.UserID), c.id)

	case domain.EventSendMessage:
		var payload domain.SendPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			g.ack(c, envelope.AckID, domain.AckResult{Ok: false, Error: apperrors.ErrInvalidPayload.Error()})
			return
		}
		g.ack(c, envelope.AckID, g.events.HandleSend(payload))

	case domain.EventTyping:
		var payload domain.TypingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		g.events.HandleTyping(payload)

	case domain.EventMarkRead:
		var payload domain.MarkReadPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		g.events.HandleMarkRead(payload)

	default:
		g.log.Debug("Unknown event", "conn", c.id, "event", envelope.Event)
	}
}

// ack replies to an acknowledged request. Requests sent without an ackId
// get no reply; the result is computed either way.
func (g *Gateway) ack(c *conn, ackID *uint64, result domain.AckResult) {
	if ackID == nil {
		return
	}
	frame, err := encodeEnvelope(EventAck, result, ackID)
	if err != nil {
		g.log.Warn("Failed to encode ack", "conn", c.id, "error", err)
		return
	}
	if !c.enqueue(frame) {
		g.metrics.EventsDropped.Inc()
	}
}

// SendToConn delivers a named event to one connection. Unknown or dead
// connections are skipped silently: the in-flight operation that resolved
// this target simply finds fewer live recipients.
func (g *Gateway) SendToConn(id domain.ConnID, event string, payload any) {
	g.mu.RLock()
	c, ok := g.conns[id]
	g.mu.RUnlock()
	if !ok {
		return
	}

	frame, err := encodeEnvelope(event, payload, nil)
	if err != nil {
		g.log.Warn("Failed to encode event", "event", event, "error", err)
		return
	}
	if !c.enqueue(frame) {
		g.metrics.EventsDropped.Inc()
		g.log.Debug("Queue full, dropping event", "conn", id, "event", event)
	}
}

// BroadcastExcept delivers a named event to every connection but one.
// Used only for presence change notices.
func (g *Gateway) BroadcastExcept(except domain.ConnID, event string, payload any) {
	frame, err := encodeEnvelope(event, payload, nil)
	if err != nil {
		g.log.Warn("Failed to encode broadcast", "event", event, "error", err)
		return
	}

	g.mu.RLock()
	targets := make([]*conn, 0, len(g.conns))
	for id, c := range g.conns {
		if id != except {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(frame) {
			g.metrics.EventsDropped.Inc()
		}
	}
}

// StaleConns returns connections whose last pong is older than the window.
func (g *Gateway) StaleConns(window time.Duration) []domain.ConnID {
	cutoff := time.Now().Add(-window).UnixNano()

	g.mu.RLock()
	defer g.mu.RUnlock()
	var stale []domain.ConnID
	for id, c := range g.conns {
		if c.lastPong.Load() < cutoff {
			stale = append(stale, id)
		}
	}
	return stale
}

// CloseConn force-closes a connection; the read loop then funnels it
// through the normal disconnect path.
func (g *Gateway) CloseConn(id domain.ConnID) {
	g.mu.RLock()
	c, ok := g.conns[id]
	g.mu.RUnlock()
	if ok {
		c.close()
	}
}

// Len reports how many socket connections are currently open.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

func (g *Gateway) addConn(c *conn) {
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	g.metrics.ActiveConnections.Inc()
}

func (g *Gateway) removeConn(c *conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	g.metrics.ActiveConnections.Dec()
}
