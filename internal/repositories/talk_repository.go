package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"im-message-service/internal/models"
)

// ErrTalkNotFound signals a probe for a conversation that was never created.
// Read paths treat it as "no history yet", not as a failure.
var ErrTalkNotFound = errors.New("talk not found")

// TalkRepository resolves conversation identities. Methods take an ExtContext
// so they run either on the pool or inside the send transaction.
type TalkRepository interface {
	GetByID(ctx context.Context, q sqlx.ExtContext, talkID int64) (models.Talk, error)
	GetDirectTalkID(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error)
	GetGroupTalkID(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error)
	ResolveDirectTalk(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error)
	ResolveGroupTalk(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error)
}

// TalkRepo is the sqlx implementation of TalkRepository.
type TalkRepo struct{}

// NewTalkRepo constructs a TalkRepo.
func NewTalkRepo() *TalkRepo {
	return &TalkRepo{}
}

// canonicalPair orders a direct pair so (A,B) and (B,A) share one talk row.
func canonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// GetByID fetches a talk row.
func (r *TalkRepo) GetByID(ctx context.Context, q sqlx.ExtContext, talkID int64) (models.Talk, error) {
	var talk models.Talk
	err := sqlx.GetContext(ctx, q, &talk,
		`SELECT id, talk_mode, user1_id, user2_id, group_id, created_at FROM talks WHERE id = $1`,
		talkID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Talk{}, ErrTalkNotFound
	}
	return talk, err
}

// GetDirectTalkID looks up the talk for an unordered user pair.
func (r *TalkRepo) GetDirectTalkID(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error) {
	u1, u2 := canonicalPair(userID, peerID)
	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		`SELECT id FROM talks WHERE talk_mode = $1 AND user1_id = $2 AND user2_id = $3`,
		models.TalkModeDirect, u1, u2)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTalkNotFound
	}
	return id, err
}

// GetGroupTalkID looks up the talk keyed on a group id.
func (r *TalkRepo) GetGroupTalkID(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		`SELECT id FROM talks WHERE talk_mode = $1 AND group_id = $2`,
		models.TalkModeGroup, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTalkNotFound
	}
	return id, err
}

// ResolveDirectTalk returns the talk id for the pair, creating the row on
// first contact. A concurrent loser of the insert race re-reads the winner's
// id instead of failing.
func (r *TalkRepo) ResolveDirectTalk(ctx context.Context, q sqlx.ExtContext, userID, peerID int64) (int64, error) {
	u1, u2 := canonicalPair(userID, peerID)
	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		`INSERT INTO talks (talk_mode, user1_id, user2_id) VALUES ($1, $2, $3)
         ON CONFLICT (user1_id, user2_id) WHERE talk_mode = 1 DO NOTHING
         RETURNING id`,
		models.TalkModeDirect, u1, u2)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return r.GetDirectTalkID(ctx, q, userID, peerID)
}

// ResolveGroupTalk returns the talk id for the group, creating the row on
// first message.
func (r *TalkRepo) ResolveGroupTalk(ctx context.Context, q sqlx.ExtContext, groupID int64) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id,
		`INSERT INTO talks (talk_mode, group_id) VALUES ($1, $2)
         ON CONFLICT (group_id) WHERE talk_mode = 2 DO NOTHING
         RETURNING id`,
		models.TalkModeGroup, groupID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return r.GetGroupTalkID(ctx, q, groupID)
}
