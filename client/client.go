// Package client is a small websocket client for the relay, used by the
// probe CLI and the e2e scenarios. It speaks the same event envelope as
// the transport gateway, including acknowledgment correlation.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"dm-relay/domain"
	apperrors "dm-relay/errors"
	"dm-relay/transport"

	"github.com/gorilla/websocket"
)

type Handler func(data json.RawMessage)

type Client struct {
	log *slog.Logger
	ws  *websocket.Conn

	writeMu sync.Mutex
	nextAck atomic.Uint64

	mu       sync.Mutex
	pending  map[uint64]chan domain.AckResult
	handlers map[string]Handler

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay's websocket endpoint and starts the read
// loop. The caller must Close the client when done.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		log:      log,
		ws:       ws,
		pending:  make(map[uint64]chan domain.AckResult),
		handlers: make(map[string]Handler),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// On registers a handler for an inbound event name. One handler per
// event; registering again replaces the previous one.
func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Join announces the authenticated identity behind this connection.
func (c *Client) Join(userID string) error {
	return c.emit(domain.EventJoin, domain.JoinPayload{UserID: userID}, nil)
}

// SendMessage emits a send-message event and waits for its acknowledgment
// or context expiry.
func (c *Client) SendMessage(ctx context.Context, payload domain.SendPayload) (domain.AckResult, error) {
	ackID := c.nextAck.Add(1)
	wait := make(chan domain.AckResult, 1)

	c.mu.Lock()
	c.pending[ackID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ackID)
		c.mu.Unlock()
	}()

	if err := c.emit(domain.EventSendMessage, payload, &ackID); err != nil {
		return domain.AckResult{}, err
	}

	select {
	case result := <-wait:
		return result, nil
	case <-ctx.Done():
		return domain.AckResult{}, apperrors.ErrAckTimeout
	case <-c.closed:
		return domain.AckResult{}, apperrors.ErrConnClosed
	}
}

// Typing emits a fire-and-forget typing signal.
func (c *Client) Typing(payload domain.TypingPayload) error {
	return c.emit(domain.EventTyping, payload, nil)
}

// MarkRead emits a fire-and-forget mark-read signal.
func (c *Client) MarkRead(payload domain.MarkReadPayload) error {
	return c.emit(domain.EventMarkRead, payload, nil)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *Client) emit(event string, payload any, ackID *uint64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(transport.Envelope{Event: event, Data: data, AckID: ackID})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var envelope transport.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			c.log.Debug("Discarding malformed frame", "error", err)
			continue
		}

		if envelope.Event == transport.EventAck && envelope.AckID != nil {
			var result domain.AckResult
			if err := json.Unmarshal(envelope.Data, &result); err != nil {
				c.log.Debug("Discarding malformed ack", "error", err)
				continue
			}
			c.mu.Lock()
			wait, ok := c.pending[*envelope.AckID]
			c.mu.Unlock()
			if ok {
				wait <- result
			}
			continue
		}

		c.mu.Lock()
		handler, ok := c.handlers[envelope.Event]
		c.mu.Unlock()
		if ok {
			handler(envelope.Data)
		}
	}
}
