package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"im-message-service/internal/models"
)

// SessionPair identifies one per-user summary row.
type SessionPair struct {
	UserID int64 `db:"user_id"`
	TalkID int64 `db:"talk_id"`
}

// SessionRepository maintains the per-user last-message summary rows.
type SessionRepository interface {
	BumpOnNewMessage(ctx context.Context, q sqlx.ExtContext, m *models.Message, digest string, participants []int64) error
	SetLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64, m *models.Message, digest string) error
	ClearLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64) error
	ListUsersByLastMsg(ctx context.Context, q sqlx.ExtContext, talkID int64, msgID string) ([]int64, error)
	ListRevokedTails(ctx context.Context, q sqlx.ExtContext, limit int) ([]SessionPair, error)
}

// SessionRepo is the sqlx implementation of SessionRepository.
type SessionRepo struct{}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo() *SessionRepo {
	return &SessionRepo{}
}

// BumpOnNewMessage is the send-time fast path: the new message is visible to
// everyone by construction, so every existing summary row for the talk gets
// its digest, and rows are upserted for the given participants.
func (r *SessionRepo) BumpOnNewMessage(ctx context.Context, q sqlx.ExtContext, m *models.Message, digest string, participants []int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE talk_sessions
         SET last_msg_id = $2, last_msg_type = $3, last_sender_id = $4, last_digest = $5, updated_at = NOW()
         WHERE talk_id = $1`,
		m.TalkID, m.ID, m.MsgType, m.SenderID, digest)
	if err != nil {
		return err
	}
	for _, uid := range participants {
		if err := r.SetLastMessage(ctx, q, uid, m.TalkID, m, digest); err != nil {
			return err
		}
	}
	return nil
}

// SetLastMessage upserts one user's summary row with the given message.
func (r *SessionRepo) SetLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64, m *models.Message, digest string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO talk_sessions (user_id, talk_id, last_msg_id, last_msg_type, last_sender_id, last_digest, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, NOW())
         ON CONFLICT (user_id, talk_id) DO UPDATE SET
            last_msg_id = EXCLUDED.last_msg_id,
            last_msg_type = EXCLUDED.last_msg_type,
            last_sender_id = EXCLUDED.last_sender_id,
            last_digest = EXCLUDED.last_digest,
            updated_at = NOW()`,
		userID, talkID, m.ID, m.MsgType, m.SenderID, digest)
	return err
}

// ClearLastMessage empties one user's summary row when no visible message
// remains in the talk.
func (r *SessionRepo) ClearLastMessage(ctx context.Context, q sqlx.ExtContext, userID, talkID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE talk_sessions
         SET last_msg_id = NULL, last_msg_type = NULL, last_sender_id = NULL, last_digest = NULL, updated_at = NOW()
         WHERE user_id = $1 AND talk_id = $2`,
		userID, talkID)
	return err
}

// ListUsersByLastMsg returns the users whose summary currently points at the
// given message; these are the views a revoke must recompute.
func (r *SessionRepo) ListUsersByLastMsg(ctx context.Context, q sqlx.ExtContext, talkID int64, msgID string) ([]int64, error) {
	var users []int64
	err := sqlx.SelectContext(ctx, q, &users,
		`SELECT user_id FROM talk_sessions WHERE talk_id = $1 AND last_msg_id = $2`,
		talkID, msgID)
	return users, err
}

// ListRevokedTails finds summary rows still pointing at a revoked message.
// The sweeper uses it as a safety net over the synchronous revoke fan-out.
func (r *SessionRepo) ListRevokedTails(ctx context.Context, q sqlx.ExtContext, limit int) ([]SessionPair, error) {
	var pairs []SessionPair
	err := sqlx.SelectContext(ctx, q, &pairs,
		`SELECT ts.user_id, ts.talk_id FROM talk_sessions ts
         JOIN messages m ON m.id = ts.last_msg_id
         WHERE m.is_revoked = TRUE
         LIMIT $1`,
		limit)
	return pairs, err
}
