package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"whisper/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerUserRepo keys users by id and keeps a unique email index:
//
//	user:id:{uuid}      -> JSON userRecord
//	user:email:{email}  -> uuid
type BadgerUserRepo struct {
	db *badger.DB
}

func NewBadgerUserRepo(db *badger.DB) *BadgerUserRepo {
	return &BadgerUserRepo{db: db}
}

var _ UserRepository = (*BadgerUserRepo)(nil)

// userRecord exists because models.User hides the password hash from JSON.
type userRecord struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	ProfilePic   string    `json:"profile_pic"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *BadgerUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(user.Email)); err == nil {
			return ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(userKey(user.ID)); err == nil {
			return ErrUserAlreadyExists
		}
		return writeUser(txn, user)
	})
}

func (r *BadgerUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var u *models.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		var id uuid.UUID
		if err := item.Value(func(val []byte) error {
			id, err = uuid.ParseBytes(val)
			return err
		}); err != nil {
			return err
		}
		u, err = readUser(txn, id)
		return err
	})
	return u, err
}

func (r *BadgerUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var u *models.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = readUser(txn, id)
		return err
	})
	return u, err
}

func (r *BadgerUserRepo) ListUsers(ctx context.Context, excluding uuid.UUID) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users := make([]*models.User, 0)
	prefix := []byte("user:id:")
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.ID == excluding {
				continue
			}
			users = append(users, rec.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	slices.SortFunc(users, func(a, b *models.User) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return users, nil
}

func (r *BadgerUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var u *models.User
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		u, err = readUser(txn, id)
		if err != nil {
			return err
		}

		if update.Email != "" && update.Email != u.Email {
			if _, err := txn.Get(emailKey(update.Email)); err == nil {
				return ErrUserAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(emailKey(u.Email)); err != nil {
				return err
			}
			u.Email = update.Email
		}
		if update.Name != "" {
			u.Name = update.Name
		}
		if update.ProfilePic != "" {
			u.ProfilePic = update.ProfilePic
		}
		u.UpdatedAt = time.Now().UTC()
		return writeUser(txn, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func writeUser(txn *badger.Txn, u *models.User) error {
	data, err := json.Marshal(userRecord{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.Password_Hash,
		ProfilePic:   u.ProfilePic,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if err := txn.Set(userKey(u.ID), data); err != nil {
		return err
	}
	return txn.Set(emailKey(u.Email), []byte(u.ID.String()))
}

func readUser(txn *badger.Txn, id uuid.UUID) (*models.User, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec userRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (rec userRecord) toModel() *models.User {
	return &models.User{
		ID:            rec.ID,
		Name:          rec.Name,
		Email:         rec.Email,
		Password_Hash: rec.PasswordHash,
		ProfilePic:    rec.ProfilePic,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func userKey(id uuid.UUID) []byte {
	return []byte("user:id:" + id.String())
}

func emailKey(email string) []byte {
	return []byte("user:email:" + email)
}
