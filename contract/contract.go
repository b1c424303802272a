//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-relay/domain"
	"reflect"
)

// IRegistry is the single source of truth for "is this user reachable,
// and through which connections".
type IRegistry interface {
	// Register adds conn to user's connection set. first is true if this
	// was the user's first connection. When the conn was previously held
	// by another user it is moved: displaced names that user and
	// displacedLast reports whether the move emptied their set.
	Register(user domain.UserID, conn domain.ConnID) (first bool, displaced domain.UserID, displacedLast bool)
	// Deregister removes conn from whichever user currently holds it.
	// Returns the owner, whether the removal emptied the owner's set,
	// and whether the connection was registered at all.
	Deregister(conn domain.ConnID) (domain.UserID, bool, bool)
	ConnectionsOf(user domain.UserID) []domain.ConnID
	IsOnline(user domain.UserID) bool
	OnlineUsers() []domain.UserID
}

// Transport is what the routing core needs from the socket layer.
// Both operations are best-effort: a dead connection is skipped, never
// surfaced as an error to the caller.
type Transport interface {
	SendToConn(conn domain.ConnID, event string, payload any)
	BroadcastExcept(conn domain.ConnID, event string, payload any)
}

type IUserRepository interface {
	CreateUser(userID domain.UserID, profile domain.Profile) error
	GetProfile(userID domain.UserID) (domain.Profile, error)
	SetStatus(userID domain.UserID, status domain.Status) error
}

type IConversationRepository interface {
	GetConversation(id string) (domain.Conversation, error)
	SaveConversation(conversation domain.Conversation) error
}

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	// MarkMessagesRead flags every unread message addressed to receiverID
	// in the conversation and returns how many were updated.
	MarkMessagesRead(conversationID string, receiverID domain.UserID) (int, error)
	GetMessages(conversationID string, cursor *string) ([]domain.Message, *string, error)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
}

type WorkerName string

// Worker doesn't protect itself. The supervisor recovers its panics.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
