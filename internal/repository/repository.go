package repository

import (
	"context"
	"fmt"

	"clipshare/internal/storage/postgresql"
	redisapp "clipshare/internal/storage/redis"
)

type Repository struct {
	pg    *postgresql.Storage
	User  UserRepository
	Media MediaRepository
	Cache IdentityCache
}

func NewRepository(ctx context.Context, dsn string, redisClient *redisapp.Client) (*Repository, error) {
	pg, err := postgresql.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Repository{
		pg:    pg,
		User:  NewUserRepository(pg.DB),
		Media: NewMediaRepository(pg.DB),
		Cache: NewRedisIdentityCache(redisClient),
	}, nil
}

func (r *Repository) Close() {
	r.pg.Stop()
}
