package domain

// Wire event names. Changing any of these breaks deployed clients.
const (
	EventJoin        = "join"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventMarkRead    = "mark-read"

	EventUserStatusChange = "user-status-change"
	EventReceiveMessage   = "receive-message"
	EventUserTyping       = "user-typing"
	EventMessagesRead     = "messages-read"
)

// SendPayload is the inbound body of a send-message event.
// ClientMessageID is optional; everything else is mandatory.
type SendPayload struct {
	SenderID        string `json:"senderId" validate:"required"`
	ReceiverID      string `json:"receiverId" validate:"required"`
	Content         string `json:"content" validate:"required"`
	ConversationID  string `json:"conversationId" validate:"required"`
	ClientMessageID string `json:"messageId"`
}

// TypingPayload is relayed as-is to the receiver's connections.
type TypingPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// MarkReadPayload asks the relay to flag a whole conversation as read
// for the sender.
type MarkReadPayload struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

// JoinPayload announces the authenticated identity behind a fresh socket.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// UserTyping is the outbound counterpart of TypingPayload.
type UserTyping struct {
	UserID   UserID `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessagesRead notifies the remaining participants that a reader caught up.
type MessagesRead struct {
	ConversationID string `json:"conversationId"`
	ReaderID       UserID `json:"readerId"`
}

// AckResult is returned exactly once per send-message request.
type AckResult struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
