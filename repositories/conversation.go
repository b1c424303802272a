package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"dm-relay/domain"
	apperrors "dm-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

func conversationKey(id string) []byte {
	return []byte("conv:" + id)
}

// GetConversation returns the stored summary, or ErrConversationNotFound.
func (c ConversationRepository) GetConversation(id string) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &conversation)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.Conversation{}, apperrors.ErrConversationNotFound
		}
		return domain.Conversation{}, err
	}
	return conversation, nil
}

// SaveConversation writes the summary back, normalizing the unread
// counters so they stay a subset of the participants.
func (c ConversationRepository) SaveConversation(conversation domain.Conversation) error {
	conversation.Normalize()
	data, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversation.ID), data)
	})
}
