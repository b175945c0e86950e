package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// DeletionRepository records per-user hidden-message marks. Marks are additive
// and never reversed through this service.
type DeletionRepository interface {
	HideForUser(ctx context.Context, q sqlx.ExtContext, msgID string, userID int64) error
}

// DeletionRepo is the sqlx implementation of DeletionRepository.
type DeletionRepo struct{}

// NewDeletionRepo constructs a DeletionRepo.
func NewDeletionRepo() *DeletionRepo {
	return &DeletionRepo{}
}

// HideForUser marks the message hidden for the user. Hiding twice is a no-op
// success.
func (r *DeletionRepo) HideForUser(ctx context.Context, q sqlx.ExtContext, msgID string, userID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO message_user_deletes (msg_id, user_id) VALUES ($1, $2)
         ON CONFLICT (msg_id, user_id) DO NOTHING`,
		msgID, userID)
	return err
}
