package repositories

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"parley/domain"
)

type IConversationRepository interface {
	Create(conversation domain.Conversation) error
	Get(id domain.ConversationID) (domain.Conversation, error)
	SetName(id domain.ConversationID, name string) error
	SetMode(id domain.ConversationID, disappearing bool) error
	SetPicture(id domain.ConversationID, picture string) error
	Touch(id domain.ConversationID, at time.Time) error
	// List scans every conversation, used by the periodic reaper sweep
	// and the inspection tooling.
	List() ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) IConversationRepository {
	return &ConversationRepository{db: db}
}

func convKey(id domain.ConversationID) []byte { return []byte("conv:" + string(id)) }

func (c ConversationRepository) Create(conversation domain.Conversation) error {
	data, err := json.Marshal(conversation)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(convKey(conversation.ID), data)
	})
}

func (c ConversationRepository) Get(id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, convKey(id), &conversation)
	})
	return conversation, err
}

func (c ConversationRepository) SetName(id domain.ConversationID, name string) error {
	return c.mutate(id, func(conv *domain.Conversation) {
		conv.Name = &name
	})
}

func (c ConversationRepository) SetMode(id domain.ConversationID, disappearing bool) error {
	return c.mutate(id, func(conv *domain.Conversation) {
		conv.DisappearingMode = disappearing
	})
}

func (c ConversationRepository) SetPicture(id domain.ConversationID, picture string) error {
	return c.mutate(id, func(conv *domain.Conversation) {
		conv.Picture = &picture
	})
}

// Touch bumps the last-activity timestamp, used to sort conversation lists.
func (c ConversationRepository) Touch(id domain.ConversationID, at time.Time) error {
	return c.mutate(id, func(conv *domain.Conversation) {
		if at.After(conv.LastActivity) {
			conv.LastActivity = at
		}
	})
}

func (c ConversationRepository) List() ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	prefix := []byte("conv:")
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var conversation domain.Conversation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &conversation)
			}); err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	return conversations, err
}

func (c ConversationRepository) mutate(id domain.ConversationID, fn func(*domain.Conversation)) error {
	return c.db.Update(func(txn *badger.Txn) error {
		var conversation domain.Conversation
		if err := getJSON(txn, convKey(id), &conversation); err != nil {
			return err
		}
		fn(&conversation)
		data, err := json.Marshal(conversation)
		if err != nil {
			return err
		}
		return txn.Set(convKey(id), data)
	})
}
