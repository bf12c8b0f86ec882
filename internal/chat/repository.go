package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go-messenger/internal/hub"
)

// Repository persists messages in Postgres. It implements the message side
// of the hub's store contract; each method is one atomic statement.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertMessage writes a new message and returns the assigned ID.
func (r *Repository) InsertMessage(ctx context.Context, m *hub.Message) (int, error) {
	var id int
	query := `
		INSERT INTO messages (content, sender_id, receiver_id, created_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var receiver any
	if m.ReceiverID != nil {
		receiver = *m.ReceiverID
	}
	err := r.db.QueryRowContext(ctx, query,
		m.Content, m.SenderID, receiver, m.CreatedAt, int(m.Status),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateMessageStatus advances a message's status. The WHERE clause enforces
// monotonicity, so a repeat or backwards update reports applied=false
// instead of overwriting; the timestamps only ever fill in, an existing
// delivered_at or read_at is never rewritten.
func (r *Repository) UpdateMessageStatus(ctx context.Context, id int, status hub.Status, deliveredAt, readAt *time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET status = $2,
		    delivered_at = COALESCE(delivered_at, $3),
		    read_at = COALESCE(read_at, $4)
		WHERE id = $1 AND status < $2
	`
	res, err := r.db.ExecContext(ctx, query, id, int(status), deliveredAt, readAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMessageOwner returns the sender and (possibly absent) receiver of a
// stored message.
func (r *Repository) GetMessageOwner(ctx context.Context, id int) (int, *int, error) {
	var senderID int
	var receiver sql.NullInt64

	query := "SELECT sender_id, receiver_id FROM messages WHERE id = $1"
	err := r.db.QueryRowContext(ctx, query, id).Scan(&senderID, &receiver)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, errors.New("message not found")
		}
		return 0, nil, err
	}

	var receiverID *int
	if receiver.Valid {
		v := int(receiver.Int64)
		receiverID = &v
	}
	return senderID, receiverID, nil
}

// ListConversation returns the most recent direct messages between two
// users, newest first. Offline delivery happens here: a receiver who was
// away fetches what they missed instead of the hub retrying pushes.
func (r *Repository) ListConversation(ctx context.Context, userID, peerID, limit int) ([]*hub.Message, error) {
	query := `
		SELECT m.id, m.content, m.sender_id, u.username, m.receiver_id,
		       m.created_at, m.status, m.delivered_at, m.read_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, peerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*hub.Message
	for rows.Next() {
		msg := &hub.Message{}
		var receiver sql.NullInt64
		var status int
		var deliveredAt, readAt sql.NullTime

		if err := rows.Scan(
			&msg.ID, &msg.Content, &msg.SenderID, &msg.SenderName, &receiver,
			&msg.CreatedAt, &status, &deliveredAt, &readAt,
		); err != nil {
			return nil, err
		}

		msg.Status = hub.Status(status)
		if receiver.Valid {
			v := int(receiver.Int64)
			msg.ReceiverID = &v
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			msg.DeliveredAt = &t
		}
		if readAt.Valid {
			t := readAt.Time
			msg.ReadAt = &t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
