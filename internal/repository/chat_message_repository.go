package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-portal/helpdesk/internal/domain"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

var (
	errEmptyRoom       = errors.New("room name is empty")
	errAnonymousSender = errors.New("sender is not authenticated")
)

// ChatMessageRepository is the append-only message store. There is no way to
// edit or delete a stored message.
type ChatMessageRepository interface {
	Append(ctx context.Context, room, senderID, body string) (*domain.ChatMessage, error)
	RecentHistory(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)
}

type chatMessageRepository struct {
	pool *pgxpool.Pool
}

// NewChatMessageRepository returns a Postgres-backed message store.
func NewChatMessageRepository(pool *pgxpool.Pool) ChatMessageRepository {
	return &chatMessageRepository{pool: pool}
}

// Append stores one message. Appends to the same room are serialised by a
// transaction-scoped advisory lock, and created_at never goes backwards
// within a room even if the database clock does.
func (r *chatMessageRepository) Append(ctx context.Context, room, senderID, body string) (*domain.ChatMessage, error) {
	if strings.TrimSpace(room) == "" {
		return nil, apperrors.NewPersistenceError(errEmptyRoom)
	}
	if strings.TrimSpace(senderID) == "" {
		return nil, apperrors.NewPersistenceError(errAnonymousSender)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(fmt.Errorf("begin append: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, room); err != nil {
		return nil, apperrors.NewPersistenceError(fmt.Errorf("lock room: %w", err))
	}

	const insert = `
        INSERT INTO chat_messages (room_name, user_id, body, created_at)
        SELECT $1, $2, $3, GREATEST(clock_timestamp(), COALESCE(MAX(created_at), '-infinity'::timestamptz))
        FROM chat_messages WHERE room_name = $1
        RETURNING id, created_at`

	msg := domain.ChatMessage{RoomName: room, UserID: senderID, Body: body}
	if err := tx.QueryRow(ctx, insert, room, senderID, body).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, apperrors.NewPersistenceError(fmt.Errorf("insert message: %w", err))
	}
	if err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, senderID).Scan(&msg.Username); err != nil {
		return nil, apperrors.NewPersistenceError(fmt.Errorf("resolve sender: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewPersistenceError(fmt.Errorf("commit append: %w", err))
	}
	return &msg, nil
}

// RecentHistory returns up to limit of the newest messages, oldest first.
func (r *chatMessageRepository) RecentHistory(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}

	const query = `
        SELECT id, room_name, user_id, username, body, created_at FROM (
            SELECT m.id, m.room_name, m.user_id, u.username, m.body, m.created_at
            FROM chat_messages m JOIN users u ON u.id = m.user_id
            WHERE m.room_name = $1
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT $2
        ) recent
        ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ChatMessage, 0, limit)
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomName,
			&msg.UserID,
			&msg.Username,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
