package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"im-message-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the profile slice needed to build outbound records.
type UserRepository interface {
	GetUserInfo(ctx context.Context, userID int64) (models.UserInfo, error)
	BulkUserInfo(ctx context.Context, ids []int64) ([]models.UserInfo, error)
}

// UserRepo is the sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUserInfo fetches one user's nickname and avatar.
func (r *UserRepo) GetUserInfo(ctx context.Context, userID int64) (models.UserInfo, error) {
	var ui models.UserInfo
	err := r.db.GetContext(ctx, &ui,
		`SELECT id, nickname, avatar FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserInfo{}, ErrUserNotFound
	}
	return ui, err
}

// BulkUserInfo fetches several users at once; missing ids are omitted.
func (r *UserRepo) BulkUserInfo(ctx context.Context, ids []int64) ([]models.UserInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, nickname, avatar FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var users []models.UserInfo
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}
