package runtime

import (
	stderrors "errors"
	"log/slog"
	"time"

	"dm-relay/contract"
	"dm-relay/domain"
	apperrors "dm-relay/errors"
	"dm-relay/moderation"
	"dm-relay/observability"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Router handles the inbound event kinds of an established connection.
// Send has an acknowledgment channel and returns exactly one result per
// request; typing and mark-read are fire-and-forget.
type Router struct {
	log       *slog.Logger
	registry  contract.IRegistry
	users     contract.IUserRepository
	messages  contract.IMessageRepository
	transport contract.Transport
	receipts  *Receipts
	moderator *moderation.Moderator
	metrics   *observability.Metrics
	validate  *validator.Validate
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	users contract.IUserRepository, messages contract.IMessageRepository,
	transport contract.Transport, receipts *Receipts,
	moderator *moderation.Moderator, metrics *observability.Metrics) *Router {
	return &Router{
		log:       log,
		registry:  registry,
		users:     users,
		messages:  messages,
		transport: transport,
		receipts:  receipts,
		moderator: moderator,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// HandleSend validates the payload, attaches the sender profile, and
// delivers the envelope to every live connection of the receiver and the
// sender, so the sender's other open devices see the echo. A user with
// zero connections simply yields no live recipients.
func (r *Router) HandleSend(payload domain.SendPayload) domain.AckResult {
	if err := r.validate.Struct(payload); err != nil {
		r.metrics.SendFailures.WithLabelValues("invalid_payload").Inc()
		r.log.Debug("Rejected send-message", "error", err)
		return domain.AckResult{Ok: false, Error: apperrors.ErrInvalidPayload.Error()}
	}

	sender := domain.UserID(payload.SenderID)
	receiver := domain.UserID(payload.ReceiverID)

	profile, err := r.users.GetProfile(sender)
	if err != nil {
		if stderrors.Is(err, apperrors.ErrUserNotFound) {
			r.metrics.SendFailures.WithLabelValues("sender_not_found").Inc()
			return domain.AckResult{Ok: false, Error: apperrors.ErrSenderNotFound.Error()}
		}
		r.metrics.SendFailures.WithLabelValues("storage").Inc()
		r.log.Warn("Sender profile lookup failed", "sender", sender, "error", err)
		return domain.AckResult{Ok: false, Error: apperrors.ErrStorageUnavailable.Error()}
	}

	message := domain.Message{
		ID:             uuid.New(),
		SenderID:       sender,
		SenderProfile:  profile,
		ReceiverID:     receiver,
		Content:        r.moderator.Mask(payload.Content),
		ConversationID: payload.ConversationID,
		CreatedAt:      time.Now().UTC(),
		Read:           false,
	}

	// Delivery does not depend on the write: a storage hiccup costs
	// history, not the live conversation.
	if err := r.messages.StoreMessage(message); err != nil {
		r.log.Warn("Failed to persist message", "id", message.ID, "error", err)
	}

	targets := r.registry.ConnectionsOf(receiver)
	if sender != receiver {
		targets = append(targets, r.registry.ConnectionsOf(sender)...)
	}
	for _, conn := range targets {
		r.transport.SendToConn(conn, domain.EventReceiveMessage, message)
	}

	r.metrics.EventsDelivered.WithLabelValues(domain.EventReceiveMessage).
		Add(float64(len(targets)))
	r.log.Debug("Routed message", "id", message.ID, "sender", sender,
		"receiver", receiver, "connections", len(targets))
	return domain.AckResult{Ok: true}
}

// HandleTyping relays the signal to all of the receiver's connections.
// Best-effort: no acknowledgment, no persistence, no failure path.
func (r *Router) HandleTyping(payload domain.TypingPayload) {
	signal := domain.UserTyping{
		UserID:   domain.UserID(payload.SenderID),
		IsTyping: payload.IsTyping,
	}
	conns := r.registry.ConnectionsOf(domain.UserID(payload.ReceiverID))
	for _, conn := range conns {
		r.transport.SendToConn(conn, domain.EventUserTyping, signal)
	}
	r.metrics.EventsDelivered.WithLabelValues(domain.EventUserTyping).
		Add(float64(len(conns)))
}

// HandleMarkRead hands the event to the read-receipt aggregator.
func (r *Router) HandleMarkRead(payload domain.MarkReadPayload) {
	r.receipts.HandleMarkRead(payload)
}
