package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/jwt"
	"clipshare/internal/lib/logger/sl"
	"clipshare/internal/repository"
	"clipshare/internal/storage"
	"clipshare/internal/transport/http/dto/response"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	// UserContextKey is where the guard puts the resolved identity on the
	// echo context.
	UserContextKey = "user"
)

type userCtxKey struct{}

// AccessGuard validates access tokens on protected routes. Token lookup
// order: access token cookie, then Authorization: Bearer. Validity is
// signature and expiry only; the stored refresh token is never consulted.
// The final store lookup just proves the subject still exists.
type AccessGuard struct {
	log      *slog.Logger
	signer   jwt.Signer
	users    repository.UserRepository
	cache    repository.IdentityCache
	cacheTTL time.Duration
}

func NewAccessGuard(log *slog.Logger, signer jwt.Signer, users repository.UserRepository, cache repository.IdentityCache) *AccessGuard {
	return &AccessGuard{
		log:      log,
		signer:   signer,
		users:    users,
		cache:    cache,
		cacheTTL: signer.TTL(),
	}
}

func (g *AccessGuard) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	const op = "middleware.AccessGuard"

	return func(c echo.Context) error {
		log := g.log.With(slog.String("op", op))

		token := extractToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails(
				"unauthorized", "no credentials supplied"))
		}

		userID, err := g.signer.Parse(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails(
				"unauthorized", "invalid or expired access token"))
		}

		user, err := g.resolve(c.Request().Context(), log, userID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails(
					"unauthorized", "subject no longer exists"))
			}
			log.Error("failed to resolve subject", sl.Err(err))

			return c.JSON(http.StatusInternalServerError, response.ErrInternal)
		}

		c.Set(UserContextKey, user)
		c.SetRequest(c.Request().WithContext(
			context.WithValue(c.Request().Context(), userCtxKey{}, user)))

		return next(c)
	}
}

func (g *AccessGuard) resolve(ctx context.Context, log *slog.Logger, userID uuid.UUID) (models.SanitizedUser, error) {
	if cached, err := g.cache.Get(ctx, userID); err == nil {
		return cached, nil
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		log.Warn("identity cache lookup failed", sl.Err(err))
	}

	user, err := g.users.UserByID(ctx, userID)
	if err != nil {
		return models.SanitizedUser{}, err
	}

	sanitized := user.Sanitized()

	// Best effort: the guard works without the cache.
	if err := g.cache.Set(ctx, sanitized, g.cacheTTL); err != nil {
		log.Warn("identity cache fill failed", sl.Err(err))
	}

	return sanitized, nil
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

// UserFromEchoContext returns the identity the guard attached, if any.
func UserFromEchoContext(c echo.Context) (models.SanitizedUser, bool) {
	user, ok := c.Get(UserContextKey).(models.SanitizedUser)
	return user, ok
}

// UserFromContext is the plain-context counterpart for code below the
// transport layer.
func UserFromContext(ctx context.Context) (models.SanitizedUser, bool) {
	user, ok := ctx.Value(userCtxKey{}).(models.SanitizedUser)
	return user, ok
}
