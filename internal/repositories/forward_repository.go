package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"im-message-service/internal/models"
)

// ForwardRepository stores the provenance links of forward-type messages.
// Links are written once at forward time and never updated.
type ForwardRepository interface {
	AddLinks(ctx context.Context, q sqlx.ExtContext, links []models.ForwardLink) error
}

// ForwardRepo is the sqlx implementation of ForwardRepository.
type ForwardRepo struct{}

// NewForwardRepo constructs a ForwardRepo.
func NewForwardRepo() *ForwardRepo {
	return &ForwardRepo{}
}

// AddLinks inserts one row per source message. Conflicts are ignored so a
// retried send does not fail on provenance it already recorded.
func (r *ForwardRepo) AddLinks(ctx context.Context, q sqlx.ExtContext, links []models.ForwardLink) error {
	for _, l := range links {
		_, err := q.ExecContext(ctx,
			`INSERT INTO message_forward_links (forwarded_msg_id, src_msg_id, src_talk_id, src_sender_id)
             VALUES ($1, $2, $3, $4)
             ON CONFLICT (forwarded_msg_id, src_msg_id) DO NOTHING`,
			l.ForwardedMsgID, l.SrcMsgID, l.SrcTalkID, l.SrcSenderID)
		if err != nil {
			return err
		}
	}
	return nil
}
