package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clipshare/internal/domain/models"
	redisapp "clipshare/internal/storage/redis"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("identity not cached")

// RedisIdentityCache keeps the sanitized user projection the access guard
// resolves on every request. Only the sanitized shape is ever stored here.
type RedisIdentityCache struct {
	Client *redisapp.Client
}

func NewRedisIdentityCache(client *redisapp.Client) *RedisIdentityCache {
	return &RedisIdentityCache{Client: client}
}

func (r *RedisIdentityCache) Get(ctx context.Context, userID uuid.UUID) (models.SanitizedUser, error) {
	val, err := r.Client.Get(ctx, identityKey(userID)).Result()
	if err == redis.Nil {
		return models.SanitizedUser{}, ErrCacheMiss
	}
	if err != nil {
		return models.SanitizedUser{}, err
	}

	var user models.SanitizedUser
	if err := json.Unmarshal([]byte(val), &user); err != nil {
		return models.SanitizedUser{}, err
	}

	return user, nil
}

func (r *RedisIdentityCache) Set(ctx context.Context, user models.SanitizedUser, ttl time.Duration) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}

	return r.Client.Set(ctx, identityKey(user.ID), raw, ttl).Err()
}

func (r *RedisIdentityCache) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.Client.Del(ctx, identityKey(userID)).Err()
}

func identityKey(userID uuid.UUID) string {
	return "identity:" + userID.String()
}
