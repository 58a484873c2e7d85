package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"parley/domain"
	"parley/errors"
)

type IUserRepository interface {
	CreateUser(user domain.User) error
	GetUser(id string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	SetPresence(id string, online bool, devices int, lastOnline *time.Time) error
	SetPicture(id string, picture string) error
	SetDark(id string, dark bool) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte       { return []byte("user:" + id) }
func usernameKey(name string) []byte { return []byte("idx:username:" + name) }
func emailKey(email string) []byte   { return []byte("idx:email:" + email) }

// CreateUser persists the user and its username/email lookup indexes in one
// transaction. Uniqueness of both handles is enforced here.
func (u UserRepository) CreateUser(user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userKey(user.ID), data); err != nil {
			return err
		}
		if err := txn.Set(usernameKey(user.Username), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(emailKey(user.Email), []byte(user.ID))
	})
}

func (u UserRepository) GetUser(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	return user, err
}

func (u UserRepository) GetUserByUsername(username string) (domain.User, error) {
	return u.getByIndex(usernameKey(username))
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	return u.getByIndex(emailKey(email))
}

func (u UserRepository) getByIndex(indexKey []byte) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey)
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &user)
	})
	return user, err
}

// SetPresence records a presence snapshot computed by the registry. The
// online flag and device counter are written together so the "online iff
// devices > 0" invariant holds in the durable row as well.
func (u UserRepository) SetPresence(id string, online bool, devices int, lastOnline *time.Time) error {
	return u.mutate(id, func(user *domain.User) {
		user.Online = online
		user.DevicesOnline = devices
		if lastOnline != nil {
			user.LastOnline = *lastOnline
		}
	})
}

func (u UserRepository) SetPicture(id string, picture string) error {
	return u.mutate(id, func(user *domain.User) {
		user.Picture = &picture
	})
}

func (u UserRepository) SetDark(id string, dark bool) error {
	return u.mutate(id, func(user *domain.User) {
		user.Dark = dark
	})
}

// mutate applies fn to the stored record inside a single read-modify-write
// transaction scoped to that one user.
func (u UserRepository) mutate(id string, fn func(*domain.User)) error {
	return u.db.Update(func(txn *badger.Txn) error {
		var user domain.User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			return err
		}
		fn(&user)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
