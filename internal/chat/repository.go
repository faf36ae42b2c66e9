package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go-collab/internal/collab"

	"github.com/samber/lo"
)

// Repository is the Postgres-backed collab.MessageStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveMessage(ctx context.Context, msg *collab.ChatMessage) error {
	senderID, err := strconv.Atoi(msg.SenderID)
	if err != nil {
		return fmt.Errorf("sender %q is not a registered user: %w", msg.SenderID, err)
	}

	var id int
	query := `INSERT INTO chat_messages (room_id, sender_id, message, message_type)
	          VALUES ($1, $2, $3, 'text') RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, query, msg.RoomID, senderID, msg.Text).Scan(&id, &msg.Timestamp); err != nil {
		return err
	}
	msg.ID = strconv.Itoa(id)
	msg.Timestamp = msg.Timestamp.UTC()
	return nil
}

// RecentMessages returns the last limit messages of a room, oldest first.
func (r *Repository) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := `
		SELECT m.id, m.room_id, m.message, m.message_type, m.created_at, u.id, u.name, u.email
		FROM chat_messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Message, &m.MessageType, &m.CreatedAt,
			&m.Sender.ID, &m.Sender.Name, &m.Sender.Email); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}
