package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"whisper/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerMessagesRepo stores messages in an embedded badger database.
//
// Keys:
//
//	msg:id:{uuid}                              -> JSON message
//	msg:conv:{lo}:{hi}:{nanos %019d}:{uuid}    -> empty, history index
//
// lo/hi are the two participant ids sorted, so both directions of a
// conversation share one prefix and a forward scan is chronological.
type BadgerMessagesRepo struct {
	db *badger.DB

	// mu serialises creation so createdAt is strictly increasing.
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewBadgerMessagesRepo(db *badger.DB) *BadgerMessagesRepo {
	return &BadgerMessagesRepo{db: db, now: time.Now}
}

var _ MessageStore = (*BadgerMessagesRepo)(nil)

func (r *BadgerMessagesRepo) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now().UTC()
	if !at.After(r.last) {
		at = r.last.Add(time.Nanosecond)
	}

	m := &models.Message{
		ID:          uuid.New(),
		SenderID:    in.SenderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		Attachments: attachments,
		IsAnonymous: in.IsAnonymous,
		CreatedAt:   at,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(m.ID), data); err != nil {
			return err
		}
		return txn.Set(conversationKey(m), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	r.last = at
	return m, nil
}

func (r *BadgerMessagesRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m *models.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = readMessage(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *BadgerMessagesRepo) ListHistory(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(conversationPrefix(a, b))
	messages := make([]*models.Message, 0)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			// The id is the last 36 bytes of the index key.
			id, err := uuid.ParseBytes(key[len(key)-36:])
			if err != nil {
				return fmt.Errorf("corrupt history key %q: %w", key, err)
			}
			m, err := readMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return messages, nil
}

func (r *BadgerMessagesRepo) MarkRead(ctx context.Context, id uuid.UUID) (*models.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		m       *models.Message
		changed bool
	)
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		m, err = readMessage(txn, id)
		if err != nil {
			return err
		}
		if m.Read {
			return nil
		}

		readAt := r.now().UTC()
		m.Read = true
		m.ReadAt = &readAt
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		changed = true
		return txn.Set(messageKey(id), data)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("mark read: %w", err)
	}
	return m, changed, nil
}

func readMessage(txn *badger.Txn, id uuid.UUID) (*models.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m := &models.Message{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, m)
	})
	if err != nil {
		return nil, err
	}
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	return m, nil
}

func messageKey(id uuid.UUID) []byte {
	return []byte("msg:id:" + id.String())
}

func conversationPrefix(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("msg:conv:%s:%s:", lo, hi)
}

func conversationKey(m *models.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		conversationPrefix(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}
