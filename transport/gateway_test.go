package transport

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dm-relay/domain"
	apperrors "dm-relay/errors"
	"dm-relay/observability"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type fakePresence struct {
	connects    chan domain.ConnID
	disconnects chan domain.ConnID
}

func (f *fakePresence) HandleConnect(_ domain.UserID, conn domain.ConnID) {
	f.connects <- conn
}

func (f *fakePresence) HandleDisconnect(conn domain.ConnID) {
	f.disconnects <- conn
}

type fakeEvents struct {
	sends     chan domain.SendPayload
	typings   chan domain.TypingPayload
	markReads chan domain.MarkReadPayload
	result    domain.AckResult
}

func (f *fakeEvents) HandleSend(payload domain.SendPayload) domain.AckResult {
	f.sends <- payload
	return f.result
}

func (f *fakeEvents) HandleTyping(payload domain.TypingPayload) {
	f.typings <- payload
}

func (f *fakeEvents) HandleMarkRead(payload domain.MarkReadPayload) {
	f.markReads <- payload
}

type gatewayFixture struct {
	gateway  *Gateway
	presence *fakePresence
	events   *fakeEvents
	server   *httptest.Server
}

func newGatewayFixture(t *testing.T) gatewayFixture {
	t.Helper()
	gateway := NewGateway(slog.Default(),
		observability.NewWith(prometheus.NewRegistry()),
		GatewayConfig{
			QueueSize:  16,
			PongWait:   5 * time.Second,
			PingPeriod: 1 * time.Second,
			WriteWait:  1 * time.Second,
		})
	presence := &fakePresence{
		connects:    make(chan domain.ConnID, 4),
		disconnects: make(chan domain.ConnID, 4),
	}
	events := &fakeEvents{
		sends:     make(chan domain.SendPayload, 4),
		typings:   make(chan domain.TypingPayload, 4),
		markReads: make(chan domain.MarkReadPayload, 4),
		result:    domain.AckResult{Ok: true},
	}
	gateway.Bind(presence, events)

	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)
	return gatewayFixture{gateway: gateway, presence: presence, events: events, server: server}
}

func (f gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, event string, payload any, ackID *uint64) {
	t.Helper()
	frame, err := encodeEnvelope(event, payload, ackID)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(frame, &envelope))
	return envelope
}

func waitConn(t *testing.T, ch chan domain.ConnID) domain.ConnID {
	t.Helper()
	select {
	case conn := <-ch:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
		return ""
	}
}

func TestGateway_Join_Reaches_Presence_With_Connection_Id(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)

	conn := waitConn(t, f.presence.connects)
	req.NotEmpty(conn)
	req.Equal(1, f.gateway.Len())
}

func TestGateway_Send_With_AckId_Gets_One_Ack_Back(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	payload := domain.SendPayload{
		SenderID:       "alice",
		ReceiverID:     "bob",
		Content:        "hello",
		ConversationID: "conv-1",
	}
	writeFrame(t, ws, domain.EventSendMessage, payload, lo.ToPtr(uint64(7)))

	// The handler received the decoded payload
	select {
	case got := <-f.events.sends:
		req.Equal(payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the send event")
	}

	// And the socket received exactly the matching ack
	envelope := readEnvelope(t, ws)
	req.Equal(EventAck, envelope.Event)
	req.NotNil(envelope.AckID)
	req.Equal(uint64(7), *envelope.AckID)

	var result domain.AckResult
	req.NoError(json.Unmarshal(envelope.Data, &result))
	req.True(result.Ok)
}

func TestGateway_Send_Failure_Is_Reported_In_Ack(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	f.events.result = domain.AckResult{Ok: false, Error: "sender not found"}
	ws := f.dial(t)

	writeFrame(t, ws, domain.EventSendMessage, domain.SendPayload{
		SenderID: "ghost", ReceiverID: "bob", Content: "x", ConversationID: "conv-1",
	}, lo.ToPtr(uint64(1)))
	<-f.events.sends

	envelope := readEnvelope(t, ws)
	var result domain.AckResult
	req.NoError(json.Unmarshal(envelope.Data, &result))
	req.False(result.Ok)
	req.Equal("sender not found", result.Error)
}

func TestGateway_Undecodable_Send_Acks_Invalid_Payload(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	// Given a send whose data is not an object at all
	writeFrame(t, ws, domain.EventSendMessage, "garbage", lo.ToPtr(uint64(3)))

	envelope := readEnvelope(t, ws)
	req.Equal(EventAck, envelope.Event)

	var result domain.AckResult
	req.NoError(json.Unmarshal(envelope.Data, &result))
	req.False(result.Ok)
	req.Equal(apperrors.ErrInvalidPayload.Error(), result.Error)
}

func TestGateway_Malformed_Frame_Keeps_Connection_Alive(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	// Given garbage on the wire
	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// Then the next well-formed event still goes through
	writeFrame(t, ws, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)
	waitConn(t, f.presence.connects)
}

func TestGateway_SendToConn_Delivers_Named_Event(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)
	conn := waitConn(t, f.presence.connects)

	f.gateway.SendToConn(conn, domain.EventUserTyping, domain.UserTyping{UserID: "bob", IsTyping: true})

	envelope := readEnvelope(t, ws)
	req.Equal(domain.EventUserTyping, envelope.Event)

	var typing domain.UserTyping
	req.NoError(json.Unmarshal(envelope.Data, &typing))
	req.Equal(domain.UserID("bob"), typing.UserID)
	req.True(typing.IsTyping)
}

func TestGateway_BroadcastExcept_Skips_The_Origin(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)

	origin := f.dial(t)
	other := f.dial(t)

	writeFrame(t, origin, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)
	originConn := waitConn(t, f.presence.connects)
	writeFrame(t, other, domain.EventJoin, domain.JoinPayload{UserID: "bob"}, nil)
	waitConn(t, f.presence.connects)

	change := domain.StatusChange{UserID: "alice", Status: domain.StatusOnline}
	f.gateway.BroadcastExcept(originConn, domain.EventUserStatusChange, change)

	// The other socket gets the notice
	envelope := readEnvelope(t, other)
	req.Equal(domain.EventUserStatusChange, envelope.Event)

	// The origin socket gets nothing
	req.NoError(origin.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err := origin.ReadMessage()
	req.Error(err)
}

func TestGateway_Disconnect_Reaches_Presence(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)
	waitConn(t, f.presence.connects)

	req.NoError(ws.Close())

	conn := waitConn(t, f.presence.disconnects)
	req.NotEmpty(conn)
}

func TestGateway_CloseConn_Funnels_Through_Disconnect_Path(t *testing.T) {
	req := require.New(t)
	f := newGatewayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, domain.EventJoin, domain.JoinPayload{UserID: "alice"}, nil)
	conn := waitConn(t, f.presence.connects)

	f.gateway.CloseConn(conn)

	got := waitConn(t, f.presence.disconnects)
	req.Equal(conn, got)
}
