package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"dm-relay/domain"
	apperrors "dm-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

// UserRecord is the on-disk representation of a user, stored as a JSON
// document under "user:{id}".
type UserRecord struct {
	ID             string        `json:"id"`
	FirstName      string        `json:"firstName"`
	LastName       string        `json:"lastName"`
	ProfilePicture string        `json:"profilePicture"`
	Status         domain.Status `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

func userKey(userID domain.UserID) []byte {
	return []byte("user:" + string(userID))
}

// CreateUser persists a fresh user record with status=offline.
func (u UserRepository) CreateUser(userID domain.UserID, profile domain.Profile) error {
	record := UserRecord{
		ID:             string(userID),
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		ProfilePicture: profile.ProfilePicture,
		Status:         domain.StatusOffline,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), data)
	})
}

// GetProfile returns the status fields of a user, or ErrUserNotFound.
func (u UserRepository) GetProfile(userID domain.UserID) (domain.Profile, error) {
	var record UserRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.Profile{}, apperrors.ErrUserNotFound
		}
		return domain.Profile{}, err
	}
	return domain.Profile{
		FirstName:      record.FirstName,
		LastName:       record.LastName,
		ProfilePicture: record.ProfilePicture,
		Status:         record.Status,
	}, nil
}

// SetStatus rewrites the stored status of an existing user.
func (u UserRepository) SetStatus(userID domain.UserID, status domain.Status) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		var record UserRecord
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		}); err != nil {
			return err
		}
		record.Status = status
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(userKey(userID), data)
	})
}
