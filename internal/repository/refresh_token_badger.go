package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"whisper/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerRefreshTokenRepo keeps tokens under their hash with a badger TTL equal
// to the token lifetime, plus an id index used for revocation:
//
//	rt:hash:{sha256}  -> JSON tokenRecord
//	rt:id:{uuid}      -> sha256
type BadgerRefreshTokenRepo struct {
	db *badger.DB
}

func NewBadgerRefreshTokenRepo(db *badger.DB) *BadgerRefreshTokenRepo {
	return &BadgerRefreshTokenRepo{db: db}
}

var _ RefreshTokenRepository = (*BadgerRefreshTokenRepo)(nil)

type tokenRecord struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Hash      string    `json:"token_hash"`
	UserAgent string    `json:"user_agent"`
	ClientIP  string    `json:"client_ip"`
	IsRevoked bool      `json:"is_revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (rf *BadgerRefreshTokenRepo) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	return rf.db.Update(func(txn *badger.Txn) error {
		return writeToken(txn, toTokenRecord(token))
	})
}

func (rf *BadgerRefreshTokenRepo) GetTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec tokenRecord
	err := rf.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readToken(txn, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec.IsRevoked {
		return nil, ErrTokenNotFound
	}
	return rec.toModel(), nil
}

func (rf *BadgerRefreshTokenRepo) RevokeToken(ctx context.Context, tokenID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return rf.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenIDKey(tokenID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		hash, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec, err := readToken(txn, string(hash))
		if err != nil {
			return err
		}
		if rec.IsRevoked {
			return ErrTokenNotFound
		}
		rec.IsRevoked = true
		return writeToken(txn, rec)
	})
}

func (rf *BadgerRefreshTokenRepo) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return rf.db.Update(func(txn *badger.Txn) error {
		records, err := scanTokens(txn)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.UserID != userID || rec.IsRevoked {
				continue
			}
			rec.IsRevoked = true
			if err := writeToken(txn, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteExpiredTokens removes revoked entries; expired ones are already gone
// through their badger TTL but are swept here too in case the clock moved.
func (rf *BadgerRefreshTokenRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var purged int64
	err := rf.db.Update(func(txn *badger.Txn) error {
		records, err := scanTokens(txn)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, rec := range records {
			if !rec.IsRevoked && rec.ExpiresAt.After(now) {
				continue
			}
			if err := txn.Delete(tokenHashKey(rec.Hash)); err != nil {
				return err
			}
			if err := txn.Delete(tokenIDKey(rec.ID)); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}

func scanTokens(txn *badger.Txn) ([]tokenRecord, error) {
	prefix := []byte("rt:hash:")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var records []tokenRecord
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec tokenRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeToken(txn *badger.Txn, rec tokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := txn.SetEntry(badger.NewEntry(tokenHashKey(rec.Hash), data).WithTTL(ttl)); err != nil {
		return err
	}
	return txn.SetEntry(badger.NewEntry(tokenIDKey(rec.ID), []byte(rec.Hash)).WithTTL(ttl))
}

func readToken(txn *badger.Txn, hash string) (tokenRecord, error) {
	var rec tokenRecord
	item, err := txn.Get(tokenHashKey(hash))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return rec, ErrTokenNotFound
		}
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func toTokenRecord(t *models.RefreshToken) tokenRecord {
	return tokenRecord{
		ID:        t.ID,
		UserID:    t.UserID,
		Hash:      t.TokenHashed,
		UserAgent: t.UserAgent,
		ClientIP:  t.ClientIP.String(),
		IsRevoked: t.IsRevoked,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
}

func (rec tokenRecord) toModel() *models.RefreshToken {
	return &models.RefreshToken{
		ID:          rec.ID,
		UserID:      rec.UserID,
		TokenHashed: rec.Hash,
		UserAgent:   rec.UserAgent,
		ClientIP:    net.ParseIP(rec.ClientIP),
		IsRevoked:   rec.IsRevoked,
		ExpiresAt:   rec.ExpiresAt,
		CreatedAt:   rec.CreatedAt,
	}
}

func tokenHashKey(hash string) []byte {
	return []byte("rt:hash:" + hash)
}

func tokenIDKey(id uuid.UUID) []byte {
	return []byte("rt:id:" + id.String())
}
