package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"im-message-service/internal/models"
	"im-message-service/internal/repositories"
)

// Provider resolves nickname/avatar for record building.
type Provider interface {
	GetUserInfo(ctx context.Context, userID int64) (models.UserInfo, error)
	BulkUserInfo(ctx context.Context, ids []int64) ([]models.UserInfo, error)
}

// CachedProvider is a read-through redis cache over the users table. A nil
// redis client degrades to direct database lookups.
type CachedProvider struct {
	users repositories.UserRepository
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedProvider constructs a CachedProvider.
func NewCachedProvider(users repositories.UserRepository, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{users: users, rdb: rdb, ttl: ttl}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("im:profile:%d", userID)
}

// GetUserInfo returns one profile, consulting the cache first.
func (p *CachedProvider) GetUserInfo(ctx context.Context, userID int64) (models.UserInfo, error) {
	if ui, ok := p.fromCache(ctx, userID); ok {
		return ui, nil
	}
	ui, err := p.users.GetUserInfo(ctx, userID)
	if err != nil {
		return models.UserInfo{}, err
	}
	p.toCache(ctx, ui)
	return ui, nil
}

// BulkUserInfo resolves several profiles, filling cache misses from one
// database round trip.
func (p *CachedProvider) BulkUserInfo(ctx context.Context, ids []int64) ([]models.UserInfo, error) {
	result := make([]models.UserInfo, 0, len(ids))
	var misses []int64
	for _, id := range ids {
		if ui, ok := p.fromCache(ctx, id); ok {
			result = append(result, ui)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return result, nil
	}
	fetched, err := p.users.BulkUserInfo(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, ui := range fetched {
		p.toCache(ctx, ui)
		result = append(result, ui)
	}
	return result, nil
}

func (p *CachedProvider) fromCache(ctx context.Context, userID int64) (models.UserInfo, bool) {
	if p.rdb == nil {
		return models.UserInfo{}, false
	}
	raw, err := p.rdb.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.Warnf("profile cache get failed: %v", err)
		}
		return models.UserInfo{}, false
	}
	var ui models.UserInfo
	if err := json.Unmarshal([]byte(raw), &ui); err != nil {
		return models.UserInfo{}, false
	}
	return ui, true
}

func (p *CachedProvider) toCache(ctx context.Context, ui models.UserInfo) {
	if p.rdb == nil {
		return
	}
	raw, err := json.Marshal(ui)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, cacheKey(ui.ID), raw, p.ttl).Err(); err != nil {
		logrus.Warnf("profile cache set failed: %v", err)
	}
}
