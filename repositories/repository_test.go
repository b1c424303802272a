package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"dm-relay/domain"
	apperrors "dm-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(conversationID string, sender, receiver domain.UserID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		ConversationID: conversationID,
		CreatedAt:      at,
	}
}

func TestUserRepository_Create_Then_Get(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewUserRepository(db)

	// Given a freshly created user
	err := repo.CreateUser("alice", domain.Profile{
		FirstName:      "Alice",
		LastName:       "Liddell",
		ProfilePicture: "https://cdn.example/alice.png",
	})
	req.NoError(err)

	// When reading the profile back
	profile, err := repo.GetProfile("alice")

	// Then the record round-trips and starts offline
	req.NoError(err)
	req.Equal("Alice", profile.FirstName)
	req.Equal("Liddell", profile.LastName)
	req.Equal(domain.StatusOffline, profile.Status)
}

func TestUserRepository_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetProfile("ghost")

	req.ErrorIs(err, apperrors.ErrUserNotFound)
}

func TestUserRepository_SetStatus_Rewrites_Record(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewUserRepository(db)

	req.NoError(repo.CreateUser("alice", domain.Profile{FirstName: "Alice"}))

	// When flipping the status twice
	req.NoError(repo.SetStatus("alice", domain.StatusOnline))

	profile, err := repo.GetProfile("alice")
	req.NoError(err)
	req.Equal(domain.StatusOnline, profile.Status)

	req.NoError(repo.SetStatus("alice", domain.StatusOffline))

	profile, err = repo.GetProfile("alice")
	req.NoError(err)
	req.Equal(domain.StatusOffline, profile.Status)
	// Other fields survive the rewrite
	req.Equal("Alice", profile.FirstName)
}

func TestUserRepository_SetStatus_Unknown_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewUserRepository(db)

	err := repo.SetStatus("ghost", domain.StatusOnline)

	req.ErrorIs(err, apperrors.ErrUserNotFound)
}

func TestConversationRepository_Save_Then_Get(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	conversation := domain.Conversation{
		ID:           "conv-1",
		Participants: []domain.UserID{"alice", "bob"},
		UnreadCount:  map[domain.UserID]int{"alice": 2, "bob": 0},
	}
	req.NoError(repo.SaveConversation(conversation))

	stored, err := repo.GetConversation("conv-1")
	req.NoError(err)
	req.Equal(conversation.Participants, stored.Participants)
	req.Equal(2, stored.UnreadCount["alice"])
}

func TestConversationRepository_Save_Prunes_Foreign_Counters(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	// Given an unread counter for a user who is not a participant
	conversation := domain.Conversation{
		ID:           "conv-1",
		Participants: []domain.UserID{"alice", "bob"},
		UnreadCount:  map[domain.UserID]int{"alice": 1, "mallory": 9},
	}
	req.NoError(repo.SaveConversation(conversation))

	stored, err := repo.GetConversation("conv-1")
	req.NoError(err)
	req.NotContains(stored.UnreadCount, domain.UserID("mallory"))
	req.Equal(1, stored.UnreadCount["alice"])
}

func TestConversationRepository_Get_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewConversationRepository(db)

	_, err := repo.GetConversation("ghost")

	req.ErrorIs(err, apperrors.ErrConversationNotFound)
}

func TestMessageRepository_GetMessages_Newest_First(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default(), lo.ToPtr(50))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		message := testMessage("conv-1", "alice", "bob",
			fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Millisecond))
		req.NoError(repo.StoreMessage(message))
	}

	messages, _, err := repo.GetMessages("conv-1", nil)
	req.NoError(err)
	req.Len(messages, 5)

	// Newest first thanks to the padded timestamp in the key
	req.Equal("message 4", messages[0].Content)
	req.Equal("message 0", messages[4].Content)
}

func TestMessageRepository_GetMessages_Pagination(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default(), lo.ToPtr(3))

	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		message := testMessage("conv-1", "alice", "bob",
			fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Millisecond))
		req.NoError(repo.StoreMessage(message))
	}

	// First page: the 3 newest messages
	page1, cursor, err := repo.GetMessages("conv-1", nil)
	req.NoError(err)
	req.Len(page1, 3)
	req.NotNil(cursor)
	req.Equal("message 6", page1[0].Content)
	req.Equal("message 4", page1[2].Content)

	// Second page resumes exactly where the first one stopped
	page2, cursor, err := repo.GetMessages("conv-1", cursor)
	req.NoError(err)
	req.Len(page2, 3)
	req.Equal("message 3", page2[0].Content)
	req.Equal("message 1", page2[2].Content)

	// Last page holds the single remaining message
	page3, _, err := repo.GetMessages("conv-1", cursor)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal("message 0", page3[0].Content)
}

func TestMessageRepository_GetMessages_Empty_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default(), lo.ToPtr(50))

	messages, cursor, err := repo.GetMessages("empty", nil)

	req.NoError(err)
	req.Empty(messages)
	req.Nil(cursor)
}

func TestMessageRepository_GetMessages_Isolated_By_Conversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default(), lo.ToPtr(50))

	now := time.Now().UTC()
	req.NoError(repo.StoreMessage(testMessage("conv-1", "alice", "bob", "for conv-1", now)))
	req.NoError(repo.StoreMessage(testMessage("conv-2", "alice", "carol", "for conv-2", now)))

	messages, _, err := repo.GetMessages("conv-1", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for conv-1", messages[0].Content)
}

func TestMessageRepository_MarkMessagesRead_Counts_Only_Receiver_Unread(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := NewMessageRepository(db, slog.Default(), lo.ToPtr(50))

	base := time.Now().UTC()

	// Given 3 unread messages for bob, 1 already read, and 1 addressed
	// to alice in the same conversation
	for i := 0; i < 3; i++ {
		req.NoError(repo.StoreMessage(testMessage("conv-1", "alice", "bob",
			fmt.Sprintf("unread %d", i), base.Add(time.Duration(i)*time.Millisecond))))
	}
	read := testMessage("conv-1", "alice", "bob", "already read", base.Add(10*time.Millisecond))
	read.Read = true
	req.NoError(repo.StoreMessage(read))
	req.NoError(repo.StoreMessage(testMessage("conv-1", "bob", "alice", "for alice", base.Add(20*time.Millisecond))))

	// When bob marks the conversation read
	count, err := repo.MarkMessagesRead("conv-1", "bob")

	// Then exactly the 3 unread messages were rewritten
	req.NoError(err)
	req.Equal(3, count)

	// And every message addressed to bob is now read
	messages, _, err := repo.GetMessages("conv-1", nil)
	req.NoError(err)
	for _, message := range messages {
		if message.ReceiverID == "bob" {
			req.True(message.Read, "message %q should be read", message.Content)
		}
	}

	// Second pass is a no-op
	count, err = repo.MarkMessagesRead("conv-1", "bob")
	req.NoError(err)
	req.Equal(0, count)
}
