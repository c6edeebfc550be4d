package repository

import (
	"context"
	"testing"

	"whisper/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newUser(name, email string) *models.User {
	return &models.User{
		ID:            uuid.New(),
		Name:          name,
		Email:         email,
		Password_Hash: "hash-" + name,
		ProfilePic:    models.DefaultProfilePic,
	}
}

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	repo := NewBadgerUserRepo(openTestBadger(t))
	ctx := context.Background()
	alice := newUser("alice", "alice@example.com")

	req.NoError(repo.CreateUser(ctx, alice))

	byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
	req.NoError(err)
	req.Equal(alice.ID, byEmail.ID)
	req.Equal("hash-alice", byEmail.Password_Hash)

	byID, err := repo.GetUserByID(ctx, alice.ID)
	req.NoError(err)
	req.Equal("alice", byID.Name)
	req.False(byID.CreatedAt.IsZero())
}

func Test_Create_User_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	repo := NewBadgerUserRepo(openTestBadger(t))
	ctx := context.Background()

	req.NoError(repo.CreateUser(ctx, newUser("alice", "same@example.com")))
	err := repo.CreateUser(ctx, newUser("bob", "same@example.com"))

	req.ErrorIs(err, ErrUserAlreadyExists)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	repo := NewBadgerUserRepo(openTestBadger(t))

	_, err := repo.GetUserByID(context.Background(), uuid.New())
	req.ErrorIs(err, ErrNotFound)

	_, err = repo.GetUserByEmail(context.Background(), "ghost@example.com")
	req.ErrorIs(err, ErrNotFound)
}

func Test_List_Users_Excludes_Caller_Sorted_By_Name(t *testing.T) {
	req := require.New(t)
	repo := NewBadgerUserRepo(openTestBadger(t))
	ctx := context.Background()
	carol := newUser("carol", "carol@example.com")
	alice := newUser("alice", "alice@example.com")
	bob := newUser("bob", "bob@example.com")
	for _, u := range []*models.User{carol, alice, bob} {
		req.NoError(repo.CreateUser(ctx, u))
	}

	users, err := repo.ListUsers(ctx, bob.ID)

	req.NoError(err)
	req.Len(users, 2)
	req.Equal("alice", users[0].Name)
	req.Equal("carol", users[1].Name)
}

func Test_Update_Profile_Moves_Email_Index(t *testing.T) {
	req := require.New(t)
	repo := NewBadgerUserRepo(openTestBadger(t))
	ctx := context.Background()
	alice := newUser("alice", "alice@example.com")
	bob := newUser("bob", "bob@example.com")
	req.NoError(repo.CreateUser(ctx, alice))
	req.NoError(repo.CreateUser(ctx, bob))

	// When alice tries to take bob's email
	_, err := repo.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Email: "bob@example.com"})
	req.ErrorIs(err, ErrUserAlreadyExists)

	// When alice changes to a free email and a new picture
	updated, err := repo.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{
		Email:      "a@example.com",
		ProfilePic: "http://cdn/a.png",
	})

	// Then the name is untouched and the old email is released
	req.NoError(err)
	req.Equal("alice", updated.Name)
	req.Equal("http://cdn/a.png", updated.ProfilePic)
	_, err = repo.GetUserByEmail(ctx, "alice@example.com")
	req.ErrorIs(err, ErrNotFound)
	found, err := repo.GetUserByEmail(ctx, "a@example.com")
	req.NoError(err)
	req.Equal(alice.ID, found.ID)
	req.Equal("hash-alice", found.Password_Hash)
}
