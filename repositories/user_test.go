package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parley/domain"
	"parley/errors"
)

func testUser(id, username, email string) domain.User {
	return domain.User{
		ID:        id,
		Username:  username,
		Name:      username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
}

func TestUser_CreateAndLookups(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	req.NoError(repo.CreateUser(testUser("u1", "alice", "alice@example.com")))

	byID, err := repo.GetUser("u1")
	req.NoError(err)
	req.Equal("alice", byID.Username)

	byUsername, err := repo.GetUserByUsername("alice")
	req.NoError(err)
	req.Equal("u1", byUsername.ID)

	byEmail, err := repo.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal("u1", byEmail.ID)
}

func TestUser_UniquenessOfHandles(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	req.NoError(repo.CreateUser(testUser("u1", "alice", "alice@example.com")))

	// Same username, different email
	err := repo.CreateUser(testUser("u2", "alice", "other@example.com"))
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// Same email, different username
	err = repo.CreateUser(testUser("u3", "bob", "alice@example.com"))
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// The failed attempts left no partial state behind
	_, err = repo.GetUser("u2")
	req.Error(err)
}

func TestUser_SetPresence(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t))

	req.NoError(repo.CreateUser(testUser("u1", "alice", "alice@example.com")))

	req.NoError(repo.SetPresence("u1", true, 2, nil))
	user, err := repo.GetUser("u1")
	req.NoError(err)
	req.True(user.Online)
	req.Equal(2, user.DevicesOnline)

	stamp := time.Now().UTC().Truncate(time.Second)
	req.NoError(repo.SetPresence("u1", false, 0, &stamp))
	user, err = repo.GetUser("u1")
	req.NoError(err)
	req.False(user.Online)
	req.Equal(0, user.DevicesOnline)
	req.Equal(stamp, user.LastOnline)
}
