package repositories

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"parley/domain"
)

type IMembershipRepository interface {
	// Upsert creates the membership if absent, or revives a soft-removed
	// row. On revival only the status flips back to active; the stored
	// admin flag is preserved so a re-invite does not lose admin state.
	Upsert(userID string, conversation domain.ConversationID, admin bool) (domain.Membership, error)
	Get(conversation domain.ConversationID, userID string) (domain.Membership, error)
	SetStatus(conversation domain.ConversationID, userID string, status domain.MemberStatus) error
	SetAdmin(conversation domain.ConversationID, userID string, admin bool) error
	// StampSeen updates the user's last-seen timestamp across all listed
	// conversations in one transaction.
	StampSeen(userID string, conversations []domain.ConversationID, at time.Time) error
	// ActiveMembers is the fan-out source of truth: memberships of a
	// conversation with status active.
	ActiveMembers(conversation domain.ConversationID) ([]domain.Membership, error)
	// ActiveConversations lists the conversations a user actively belongs
	// to, used for the bulk subscribe at connection registration.
	ActiveConversations(userID string) ([]domain.ConversationID, error)
}

type MembershipRepository struct {
	db *badger.DB
}

func NewMembershipRepository(db *badger.DB) IMembershipRepository {
	return &MembershipRepository{db: db}
}

// Memberships are stored twice, under both key orders, so that the member
// set of a conversation and the conversation set of a user are each one
// prefix scan. Both keys are written in the same transaction.
func memberKey(cid domain.ConversationID, uid string) []byte {
	return []byte("member:" + string(cid) + ":" + uid)
}

func memberOfKey(uid string, cid domain.ConversationID) []byte {
	return []byte("memberof:" + uid + ":" + string(cid))
}

func (m MembershipRepository) Upsert(userID string, conversation domain.ConversationID, admin bool) (domain.Membership, error) {
	var membership domain.Membership
	err := m.db.Update(func(txn *badger.Txn) error {
		err := getJSON(txn, memberKey(conversation, userID), &membership)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			membership = domain.Membership{
				UserID:         userID,
				ConversationID: conversation,
				Admin:          admin,
				Status:         domain.StatusActive,
				LastSeen:       time.Unix(0, 0).UTC(),
			}
		case err != nil:
			return err
		default:
			membership.Status = domain.StatusActive
		}
		return putMembership(txn, membership)
	})
	return membership, err
}

func (m MembershipRepository) Get(conversation domain.ConversationID, userID string) (domain.Membership, error) {
	var membership domain.Membership
	err := m.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, memberKey(conversation, userID), &membership)
	})
	return membership, err
}

func (m MembershipRepository) SetStatus(conversation domain.ConversationID, userID string, status domain.MemberStatus) error {
	return m.mutate(conversation, userID, func(membership *domain.Membership) {
		membership.Status = status
	})
}

func (m MembershipRepository) SetAdmin(conversation domain.ConversationID, userID string, admin bool) error {
	return m.mutate(conversation, userID, func(membership *domain.Membership) {
		membership.Admin = admin
	})
}

func (m MembershipRepository) StampSeen(userID string, conversations []domain.ConversationID, at time.Time) error {
	return m.db.Update(func(txn *badger.Txn) error {
		for _, conversation := range conversations {
			var membership domain.Membership
			if err := getJSON(txn, memberKey(conversation, userID), &membership); err != nil {
				return err
			}
			membership.LastSeen = at
			if err := putMembership(txn, membership); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m MembershipRepository) ActiveMembers(conversation domain.ConversationID) ([]domain.Membership, error) {
	var members []domain.Membership
	prefix := []byte("member:" + string(conversation) + ":")
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var membership domain.Membership
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &membership)
			}); err != nil {
				return err
			}
			if membership.Active() {
				members = append(members, membership)
			}
		}
		return nil
	})
	return members, err
}

func (m MembershipRepository) ActiveConversations(userID string) ([]domain.ConversationID, error) {
	var conversations []domain.ConversationID
	prefix := []byte("memberof:" + userID + ":")
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var membership domain.Membership
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &membership)
			}); err != nil {
				return err
			}
			if membership.Active() {
				conversations = append(conversations, membership.ConversationID)
			}
		}
		return nil
	})
	return conversations, err
}

func (m MembershipRepository) mutate(conversation domain.ConversationID, userID string, fn func(*domain.Membership)) error {
	return m.db.Update(func(txn *badger.Txn) error {
		var membership domain.Membership
		if err := getJSON(txn, memberKey(conversation, userID), &membership); err != nil {
			return err
		}
		fn(&membership)
		return putMembership(txn, membership)
	})
}

func putMembership(txn *badger.Txn, membership domain.Membership) error {
	data, err := json.Marshal(membership)
	if err != nil {
		return err
	}
	if err := txn.Set(memberKey(membership.ConversationID, membership.UserID), data); err != nil {
		return err
	}
	return txn.Set(memberOfKey(membership.UserID, membership.ConversationID), data)
}
