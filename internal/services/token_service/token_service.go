package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/jwt"
	"clipshare/internal/lib/logger/sl"
	"clipshare/internal/metrics"
	"clipshare/internal/repository"
	"clipshare/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrNoToken      = errors.New("no refresh token presented")
	ErrInvalidToken = errors.New("invalid refresh token")
	ErrTokenUsed    = errors.New("refresh token expired or already used")
	ErrUserNotFound = errors.New("user not found")
)

// TokenService owns the session-token lifecycle: issuing the access/refresh
// pair, rotating the refresh token on use, and revoking it at logout. The
// stored refresh token on the user row is the revocation list of size one.
type TokenService struct {
	log           *slog.Logger
	repo          repository.UserRepository
	cache         repository.IdentityCache
	accessSigner  jwt.Signer
	refreshSigner jwt.Signer
}

func NewTokenService(log *slog.Logger, repo repository.UserRepository, cache repository.IdentityCache, accessSigner, refreshSigner jwt.Signer) *TokenService {
	return &TokenService{
		log:           log,
		repo:          repo,
		cache:         cache,
		accessSigner:  accessSigner,
		refreshSigner: refreshSigner,
	}
}

// IssuePair signs a new access/refresh pair for the user and persists the
// refresh token, displacing any previous session. Never returns a partial
// pair.
func (s *TokenService) IssuePair(ctx context.Context, user models.User) (*models.TokenPair, error) {
	const op = "token_service.IssuePair"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
	)

	accessToken, err := s.accessSigner.Sign(user.ID)
	if err != nil {
		log.Error("failed to sign access token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.refreshSigner.Sign(user.ID)
	if err != nil {
		log.Error("failed to sign refresh token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		log.Error("failed to persist refresh token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// IssuePairByID resolves the user first. An unknown id here signals an
// internal inconsistency, since callers have already resolved it.
func (s *TokenService) IssuePairByID(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	const op = "token_service.IssuePairByID"

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.IssuePair(ctx, user)
}

// Rotate verifies the presented refresh token, checks it against the stored
// value and atomically replaces it with a fresh one. The presented token is
// unusable afterwards regardless of whether the new pair reaches the client.
func (s *TokenService) Rotate(ctx context.Context, presented string) (*models.TokenPair, error) {
	const op = "token_service.Rotate"

	log := s.log.With(slog.String("op", op))

	if presented == "" {
		metrics.TokenRotationsTotal.WithLabelValues("missing").Inc()

		return nil, fmt.Errorf("%s: %w", op, ErrNoToken)
	}

	userID, err := s.refreshSigner.Parse(presented)
	if err != nil {
		log.Warn("refresh token failed verification", sl.Err(err))
		metrics.TokenRotationsTotal.WithLabelValues("invalid").Inc()

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token subject no longer exists")
			metrics.TokenRotationsTotal.WithLabelValues("invalid").Inc()

			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to load user", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Fast path rejection before signing anything. The CAS below is still
	// the authority under concurrency.
	if user.RefreshToken == "" || user.RefreshToken != presented {
		metrics.TokenRotationsTotal.WithLabelValues("reused").Inc()

		return nil, fmt.Errorf("%s: %w", op, ErrTokenUsed)
	}

	accessToken, err := s.accessSigner.Sign(user.ID)
	if err != nil {
		log.Error("failed to sign access token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.refreshSigner.Sign(user.ID)
	if err != nil {
		log.Error("failed to sign refresh token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Replace-if-equals: a concurrent rotation or logout between the read
	// above and this write makes the swap fail, and the losing request is
	// rejected instead of resurrecting an already-spent token.
	if err := s.repo.ReplaceRefreshToken(ctx, user.ID, presented, refreshToken); err != nil {
		if errors.Is(err, storage.ErrTokenMismatch) {
			log.Warn("refresh token already rotated", slog.String("user_id", user.ID.String()))
			metrics.TokenRotationsTotal.WithLabelValues("reused").Inc()

			return nil, fmt.Errorf("%s: %w", op, ErrTokenUsed)
		}
		log.Error("failed to replace refresh token", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TokenRotationsTotal.WithLabelValues("ok").Inc()

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Terminate revokes the user's refresh token. Access tokens stay valid until
// their embedded expiry; there is no access-token-side revocation.
func (s *TokenService) Terminate(ctx context.Context, userID uuid.UUID) error {
	const op = "token_service.Terminate"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		log.Error("failed to clear refresh token", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Delete(ctx, userID); err != nil {
		// Cache entries expire on their own; a failed delete is not fatal.
		log.Warn("failed to drop identity cache entry", sl.Err(err))
	}

	log.Info("session terminated")

	return nil
}
