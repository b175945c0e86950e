package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository hands out the next per-talk sequence value. Next must be
// called on the same transaction as the message insert so the bump and the
// insert commit or roll back together.
type SequenceRepository interface {
	Next(ctx context.Context, q sqlx.ExtContext, talkID int64) (int64, error)
}

// SequenceRepo is the sqlx implementation of SequenceRepository.
type SequenceRepo struct{}

// NewSequenceRepo constructs a SequenceRepo.
func NewSequenceRepo() *SequenceRepo {
	return &SequenceRepo{}
}

// Next atomically bumps and returns the talk's high-water mark. The upsert
// takes a row lock, so concurrent senders in the same talk serialize here and
// never observe the same value.
func (r *SequenceRepo) Next(ctx context.Context, q sqlx.ExtContext, talkID int64) (int64, error) {
	var seq int64
	err := sqlx.GetContext(ctx, q, &seq,
		`INSERT INTO talk_sequences (talk_id, current_seq) VALUES ($1, 1)
         ON CONFLICT (talk_id) DO UPDATE SET current_seq = talk_sequences.current_seq + 1
         RETURNING current_seq`,
		talkID)
	return seq, err
}
