package runtime

import (
	stderrors "errors"
	"log/slog"

	"dm-relay/contract"
	"dm-relay/domain"
	apperrors "dm-relay/errors"
	"dm-relay/observability"
)

// Receipts aggregates mark-read events: it flags the reader's pending
// messages as read, zeroes the reader's unread counter, and notifies the
// remaining participants. The event has no acknowledgment channel, so
// every failure is logged and swallowed.
type Receipts struct {
	log           *slog.Logger
	registry      contract.IRegistry
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	transport     contract.Transport
	metrics       *observability.Metrics
}

func NewReceipts(log *slog.Logger, registry contract.IRegistry,
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository, transport contract.Transport,
	metrics *observability.Metrics) *Receipts {
	return &Receipts{
		log:           log,
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		transport:     transport,
		metrics:       metrics,
	}
}

// HandleMarkRead processes one mark-read event. A missing conversation is
// a silent no-op; any storage failure aborts the remaining steps of this
// invocation without retry.
func (a *Receipts) HandleMarkRead(payload domain.MarkReadPayload) {
	reader := domain.UserID(payload.SenderID)

	conversation, err := a.conversations.GetConversation(payload.ConversationID)
	if err != nil {
		if stderrors.Is(err, apperrors.ErrConversationNotFound) {
			a.log.Debug("Mark-read for unknown conversation",
				"conversation", payload.ConversationID, "reader", reader)
			return
		}
		a.log.Warn("Conversation lookup failed",
			"conversation", payload.ConversationID, "error", err)
		return
	}

	count, err := a.messages.MarkMessagesRead(payload.ConversationID, reader)
	if err != nil {
		a.log.Warn("Failed to mark messages read",
			"conversation", payload.ConversationID, "reader", reader, "error", err)
		return
	}

	conversation.Normalize()
	conversation.UnreadCount[reader] = 0
	if err := a.conversations.SaveConversation(conversation); err != nil {
		a.log.Warn("Failed to save conversation summary",
			"conversation", conversation.ID, "error", err)
		return
	}

	note := domain.MessagesRead{
		ConversationID: payload.ConversationID,
		ReaderID:       reader,
	}
	delivered := 0
	for _, participant := range conversation.OtherParticipants(reader) {
		for _, conn := range a.registry.ConnectionsOf(participant) {
			a.transport.SendToConn(conn, domain.EventMessagesRead, note)
			delivered++
		}
	}
	a.metrics.EventsDelivered.WithLabelValues(domain.EventMessagesRead).
		Add(float64(delivered))
	a.log.Debug("Conversation marked read", "conversation", conversation.ID,
		"reader", reader, "updated", count, "notified", delivered)
}
