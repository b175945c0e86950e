package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"im-message-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	// ErrDuplicateMessage marks a msg_id that already exists; callers use it
	// as the duplicate-submission signal for idempotent retries.
	ErrDuplicateMessage = errors.New("duplicate message id")
)

const uniqueViolation = "23505"

const messageColumns = `id, talk_id, sequence, talk_mode, msg_type, sender_id, receiver_id,
    group_id, content_text, extra, quote_msg_id, is_revoked, revoked_by, revoke_time, created_at`

// MessageRepository persists and retrieves messages.
type MessageRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, m *models.Message) error
	GetByID(ctx context.Context, q sqlx.ExtContext, msgID string) (models.Message, error)
	GetByIDs(ctx context.Context, q sqlx.ExtContext, msgIDs []string) ([]models.Message, error)
	ListRecentDesc(ctx context.Context, q sqlx.ExtContext, talkID, cursor int64, limit int, userID int64, msgType int16) ([]models.Message, error)
	LatestVisible(ctx context.Context, q sqlx.ExtContext, talkID, userID int64) (models.Message, error)
	Revoke(ctx context.Context, q sqlx.ExtContext, msgID string, actorID int64) error
}

// MessageRepo is the sqlx implementation of MessageRepository.
type MessageRepo struct{}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo() *MessageRepo {
	return &MessageRepo{}
}

// Create inserts a fully-populated message. The msg_id must already be
// assigned; an existing id yields ErrDuplicateMessage.
func (r *MessageRepo) Create(ctx context.Context, q sqlx.ExtContext, m *models.Message) error {
	err := sqlx.GetContext(ctx, q, &m.CreatedAt,
		`INSERT INTO messages (id, talk_id, sequence, talk_mode, msg_type, sender_id,
            receiver_id, group_id, content_text, extra, quote_msg_id)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
         RETURNING created_at`,
		m.ID, m.TalkID, m.Sequence, m.TalkMode, m.MsgType, m.SenderID,
		m.ReceiverID, m.GroupID, m.ContentText, nullableJSON(m.Extra), m.QuoteMsgID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation && pqErr.Constraint == "messages_pkey" {
		return ErrDuplicateMessage
	}
	return err
}

// GetByID fetches one message.
func (r *MessageRepo) GetByID(ctx context.Context, q sqlx.ExtContext, msgID string) (models.Message, error) {
	var m models.Message
	err := sqlx.GetContext(ctx, q, &m,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return m, err
}

// GetByIDs fetches a batch of messages; ids with no row are silently omitted.
func (r *MessageRepo) GetByIDs(ctx context.Context, q sqlx.ExtContext, msgIDs []string) ([]models.Message, error) {
	if len(msgIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, msgIDs)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	err = sqlx.SelectContext(ctx, q, &msgs, q.Rebind(query), args...)
	return msgs, err
}

// ListRecentDesc returns up to limit messages in descending sequence order,
// strictly below cursor when cursor > 0. A non-zero userID excludes messages
// that user has hidden; a non-zero msgType keeps only that type.
func (r *MessageRepo) ListRecentDesc(ctx context.Context, q sqlx.ExtContext, talkID, cursor int64, limit int, userID int64, msgType int16) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m
        WHERE m.talk_id = $1
        AND ($2 = 0 OR m.sequence < $2)
        AND ($3 = 0 OR m.msg_type = $3)
        AND ($4 = 0 OR NOT EXISTS (
            SELECT 1 FROM message_user_deletes d WHERE d.msg_id = m.id AND d.user_id = $4))
        ORDER BY m.sequence DESC
        LIMIT $5`
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, q, &msgs, query, talkID, cursor, msgType, userID, limit)
	return msgs, err
}

// LatestVisible returns the newest message in the talk that the user can
// still see: not revoked and not hidden by that user. Session recomputation
// derives the summary from this row. Returns ErrMessageNotFound when nothing
// visible remains.
func (r *MessageRepo) LatestVisible(ctx context.Context, q sqlx.ExtContext, talkID, userID int64) (models.Message, error) {
	var m models.Message
	err := sqlx.GetContext(ctx, q, &m,
		`SELECT `+messageColumns+` FROM messages m
         WHERE m.talk_id = $1
         AND m.is_revoked = FALSE
         AND NOT EXISTS (
            SELECT 1 FROM message_user_deletes d WHERE d.msg_id = m.id AND d.user_id = $2)
         ORDER BY m.sequence DESC
         LIMIT 1`,
		talkID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return m, err
}

// Revoke marks a message revoked by actorID. Revocation is monotone; revoking
// an already-revoked message is a no-op. Ownership is checked by the caller.
func (r *MessageRepo) Revoke(ctx context.Context, q sqlx.ExtContext, msgID string, actorID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE messages SET is_revoked = TRUE, revoked_by = $2, revoke_time = NOW()
         WHERE id = $1 AND is_revoked = FALSE`,
		msgID, actorID)
	return err
}

// nullableJSON maps empty payloads to SQL NULL instead of invalid jsonb.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
