package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"parley/domain"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	// List returns a conversation's messages in creation order. When the
	// repository was built with a limit, only the most recent messages up
	// to that limit are returned.
	List(conversation domain.ConversationID) ([]domain.Message, error)
	Delete(id uuid.UUID) error
	// DeleteExpired purges disappearing messages created at or before the
	// cutoff and returns the ids it removed. Destructive, irreversible,
	// idempotent.
	DeleteExpired(conversation domain.ConversationID, cutoff time.Time) ([]uuid.UUID, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// messageKey is "msg:{conversation}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero padding makes lexicographic order chronological.
//  2. The UUID disambiguates two messages stored in the same nanosecond.
func messageKey(cid domain.ConversationID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", cid, at.UnixNano(), id))
}

// messageIDKey maps a message id to its primary key so point lookups and
// deletes do not need the timestamp.
func messageIDKey(id uuid.UUID) []byte {
	return []byte("idx:msg:" + id.String())
}

func (m MessageRepository) Store(message domain.Message) error {
	key := messageKey(message.ConversationID, message.CreatedAt, message.ID)
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
}

func (m MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &message)
	})
	return message, err
}

func (m MessageRepository) List(conversation domain.ConversationID) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		// Walk newest first so a limit keeps the most recent messages.
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			var message domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Restore ascending creation order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (m MessageRepository) Delete(id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		key, err := resolveMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIDKey(id))
	})
}

func (m MessageRepository) DeleteExpired(conversation domain.ConversationID, cutoff time.Time) ([]uuid.UUID, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
	var purged []uuid.UUID
	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var doomedKeys [][]byte
		var doomedIDs []uuid.UUID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			if message.Disappearing && !message.CreatedAt.After(cutoff) {
				doomedKeys = append(doomedKeys, it.Item().KeyCopy(nil))
				doomedIDs = append(doomedIDs, message.ID)
			}
		}
		for i, key := range doomedKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(messageIDKey(doomedIDs[i])); err != nil {
				return err
			}
			purged = append(purged, doomedIDs[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

func resolveMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
