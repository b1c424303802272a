package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the sender snippet attached to an outgoing envelope,
// read from storage at routing time.
type Profile struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ProfilePicture string `json:"profilePicture"`
	Status         Status `json:"status"`
}

// Message is the envelope fanned out to every live connection of the
// receiver and the sender. Immutable after construction.
type Message struct {
	ID             uuid.UUID `json:"id"`
	SenderID       UserID    `json:"senderId"`
	SenderProfile  Profile   `json:"senderProfile"`
	ReceiverID     UserID    `json:"receiverId"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
}
