//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../mocks/mock_message_repository.go -package=mocks
package repository

import (
	"context"
	"errors"
	"fmt"

	"whisper/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MessageStore is the durability boundary for messages. Every write path goes
// through CreateMessage, which owns id and createdAt assignment.
type MessageStore interface {
	CreateMessage(ctx context.Context, m models.NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListHistory(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error)
	// MarkRead flips read/readAt once. changed is false when the message was already read.
	MarkRead(ctx context.Context, id uuid.UUID) (msg *models.Message, changed bool, err error)
}

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewMessagesRepo(pool *pgxpool.Pool, log *zap.Logger) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
		log:  log.Named("repo"),
	}
}

var _ MessageStore = (*PostgresMessagesRepo)(nil)

const messageColumns = `id, sender_id, receiver_id, content, attachments, is_anonymous, read, read_at, created_at`

func (r *PostgresMessagesRepo) CreateMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	// created_at uses clock_timestamp() so two inserts in one transaction still differ.
	query := `
        INSERT INTO messages (sender_id, receiver_id, content, attachments, is_anonymous)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query,
		in.SenderID,
		in.ReceiverID,
		in.Content,
		attachments,
		in.IsAnonymous,
	))
	if err != nil {
		r.log.Error("failed to save message",
			zap.Stringer("sender", in.SenderID), zap.Stringer("receiver", in.ReceiverID), zap.Error(err))
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) ListHistory(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id = $1 AND receiver_id = $2)
           OR (sender_id = $2 AND receiver_id = $1)
        ORDER BY created_at ASC, id ASC
    `

	rows, err := r.pool.Query(ctx, query, a, b)
	if err != nil {
		r.log.Error("history fetch failed", zap.Stringer("a", a), zap.Stringer("b", b), zap.Error(err))
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresMessagesRepo) MarkRead(ctx context.Context, id uuid.UUID) (*models.Message, bool, error) {
	query := `
		UPDATE messages
		SET read = true, read_at = clock_timestamp()
		WHERE id = $1 AND read = false
		RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("failed to mark message read", zap.Stringer("message", id), zap.Error(err))
		return nil, false, fmt.Errorf("mark read: %w", err)
	}

	// Nothing updated: either already read or the id is unknown.
	m, err = r.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return m, false, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.Attachments,
		&m.IsAnonymous,
		&m.Read,
		&m.ReadAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	return m, nil
}
