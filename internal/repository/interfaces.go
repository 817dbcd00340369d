package repository

import (
	"context"
	"time"

	"clipshare/internal/domain/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
	UserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	UserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) (models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash []byte) error
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error
	ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string) error
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error
}

type IdentityCache interface {
	Get(ctx context.Context, userID uuid.UUID) (models.SanitizedUser, error)
	Set(ctx context.Context, user models.SanitizedUser, ttl time.Duration) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type MediaRepository interface {
	CreateMedia(ctx context.Context, media *models.Media) (*models.Media, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
}
