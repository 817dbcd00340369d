package http

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/logger/sl"
	tokensvc "clipshare/internal/services/token_service"
	usersvc "clipshare/internal/services/user_service"
	"clipshare/internal/storage"
	"clipshare/internal/transport/http/dto"
	"clipshare/internal/transport/http/dto/request"
	"clipshare/internal/transport/http/dto/response"
	mw "clipshare/internal/transport/http/middleware"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type UserService interface {
	Register(ctx context.Context, input dto.UserRegisterInput, avatar, coverImage *multipart.FileHeader) (models.SanitizedUser, error)
	Login(ctx context.Context, identifier, password string) (models.SanitizedUser, *models.TokenPair, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmPassword string) error
	UpdateAccountDetails(ctx context.Context, userID uuid.UUID, fullName, email string) (models.SanitizedUser, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (models.SanitizedUser, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (models.SanitizedUser, error)
}

type TokenService interface {
	Rotate(ctx context.Context, presented string) (*models.TokenPair, error)
	Terminate(ctx context.Context, userID uuid.UUID) error
}

type MediaService interface {
	GetMedia(ctx context.Context, id uuid.UUID) (*models.Media, error)
}

type Routers struct {
	log          *slog.Logger
	UserService  UserService
	TokenService TokenService
	MediaService MediaService
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

func NewRouter(log *slog.Logger, userService UserService, tokenService TokenService, mediaService MediaService, accessTTL, refreshTTL time.Duration) *Routers {
	return &Routers{
		log:          log,
		UserService:  userService,
		TokenService: tokenService,
		MediaService: mediaService,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Creates the account from multipart form fields plus an avatar file (cover image optional).
// @Tags users
// @Accept mpfd
// @Produce json
// @Success 201 {object} response.Response{data=models.SanitizedUser}
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/register [post]
func (r *Routers) Register(c echo.Context) error {
	const op = "http.routers.Register"

	log := r.log.With(slog.String("op", op))

	var req dto.UserRegisterInput

	if err := c.Bind(&req); err != nil {
		log.Error("failed to bind request", sl.Err(err))
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRegisterRequest)
	}

	if err := c.Validate(req); err != nil {
		resp := response.ErrInvalidRegisterRequest
		resp.Details = err.Error()
		log.Warn("validation failed", sl.Err(err))
		return c.JSON(http.StatusBadRequest, resp)
	}

	avatar, _ := c.FormFile("avatar")
	coverImage, _ := c.FormFile("coverImage")

	user, err := r.UserService.Register(c.Request().Context(), req, avatar, coverImage)
	if err != nil {
		switch {
		case errors.Is(err, usersvc.ErrUserExist):
			log.Warn("user already exists", slog.String("username", req.Username))
			return c.JSON(http.StatusConflict, response.ErrUserAlreadyExists)
		case errors.Is(err, usersvc.ErrAllFieldsRequired), errors.Is(err, usersvc.ErrAvatarRequired):
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_register_request", err.Error()))
		default:
			log.Error("registration failed", sl.Err(err))
			return c.JSON(http.StatusInternalServerError, response.ErrInternal)
		}
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))

	return c.JSON(http.StatusCreated, response.SuccessResponse(user, "user registered successfully"))
}

// Login godoc
// @Summary Log in
// @Description Authenticates by username or email plus password; sets access and refresh token cookies.
// @Tags users
// @Accept json
// @Produce json
// @Param request body request.LoginRequest true "Credentials"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/login [post]
func (r *Routers) Login(c echo.Context) error {
	const op = "http.routers.Login"

	log := r.log.With(slog.String("op", op))

	var req request.LoginRequest

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		resp := response.ErrInvalidRequestFormat
		resp.Details = err.Error()
		log.Warn("invalid format request", slog.String("identifier", req.Identifier))
		return c.JSON(http.StatusBadRequest, resp)
	}

	user, pair, err := r.UserService.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, usersvc.ErrInvalidCredentials) || errors.Is(err, usersvc.ErrAllFieldsRequired) {
			return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
		}
		log.Error("login failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	r.setTokenCookies(c, pair)

	return c.JSON(http.StatusOK, response.SuccessResponse(map[string]interface{}{
		"user":          user,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	}, "user logged in successfully"))
}

// Refresh godoc
// @Summary Rotate the refresh token
// @Description Exchanges a valid refresh token (cookie or body) for a fresh token pair. The presented token is invalidated.
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} response.Response{data=models.TokenPair}
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/refresh [post]
func (r *Routers) Refresh(c echo.Context) error {
	const op = "http.routers.Refresh"

	log := r.log.With(slog.String("op", op))

	presented := ""
	if cookie, err := c.Cookie(mw.RefreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req request.RefreshRequest
		if err := c.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	pair, err := r.TokenService.Rotate(c.Request().Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, tokensvc.ErrNoToken):
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "unauthorized request"))
		case errors.Is(err, tokensvc.ErrInvalidToken):
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "invalid refresh token"))
		case errors.Is(err, tokensvc.ErrTokenUsed):
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", "token expired or already used"))
		default:
			log.Error("error refresh tokens", sl.Err(err))
			return c.JSON(http.StatusInternalServerError, response.ErrInternal)
		}
	}

	r.setTokenCookies(c, pair)

	return c.JSON(http.StatusOK, response.SuccessResponse(pair, "access token refreshed"))
}

// Logout godoc
// @Summary Log out
// @Description Revokes the stored refresh token and clears both token cookies.
// @Tags users
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/logout [post]
func (r *Routers) Logout(c echo.Context) error {
	const op = "http.routers.Logout"

	log := r.log.With(slog.String("op", op))

	user, ok := mw.UserFromEchoContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	if err := r.TokenService.Terminate(c.Request().Context(), user.ID); err != nil {
		log.Error("logout failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	r.clearTokenCookies(c)

	return c.JSON(http.StatusOK, response.SuccessResponse(nil, "user logged out"))
}

// Me godoc
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} response.Response{data=models.SanitizedUser}
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/me [get]
func (r *Routers) Me(c echo.Context) error {
	user, ok := mw.UserFromEchoContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(user, ""))
}

// ChangePassword godoc
// @Summary Change the current password
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordInput true "Passwords"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/change-password [post]
func (r *Routers) ChangePassword(c echo.Context) error {
	const op = "http.routers.ChangePassword"

	log := r.log.With(slog.String("op", op))

	user, ok := mw.UserFromEchoContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	var req dto.ChangePasswordInput

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		resp := response.ErrInvalidRequestFormat
		resp.Details = err.Error()
		return c.JSON(http.StatusBadRequest, resp)
	}

	err := r.UserService.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		switch {
		case errors.Is(err, usersvc.ErrPasswordMismatch):
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
		case errors.Is(err, usersvc.ErrWrongOldPassword):
			return c.JSON(http.StatusUnauthorized, response.ErrorResponseWithDetails("unauthorized", err.Error()))
		default:
			log.Error("password change failed", sl.Err(err))
			return c.JSON(http.StatusInternalServerError, response.ErrInternal)
		}
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(nil, "password changed successfully"))
}

// UpdateAccount godoc
// @Summary Update display name and email
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.UpdateAccountInput true "Fields"
// @Success 200 {object} response.Response{data=models.SanitizedUser}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/me [patch]
func (r *Routers) UpdateAccount(c echo.Context) error {
	const op = "http.routers.UpdateAccount"

	log := r.log.With(slog.String("op", op))

	user, ok := mw.UserFromEchoContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	var req dto.UpdateAccountInput

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	if err := c.Validate(req); err != nil {
		resp := response.ErrInvalidRequestFormat
		resp.Details = err.Error()
		return c.JSON(http.StatusBadRequest, resp)
	}

	updated, err := r.UserService.UpdateAccountDetails(c.Request().Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		if errors.Is(err, usersvc.ErrAllFieldsRequired) {
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
		}
		log.Error("account update failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(updated, "account details updated successfully"))
}

// UpdateAvatar godoc
// @Summary Replace the avatar
// @Tags users
// @Accept mpfd
// @Produce json
// @Success 200 {object} response.Response{data=models.SanitizedUser}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/me/avatar [patch]
func (r *Routers) UpdateAvatar(c echo.Context) error {
	return r.updateProfileMedia(c, "http.routers.UpdateAvatar", "avatar", r.UserService.UpdateAvatar)
}

// UpdateCoverImage godoc
// @Summary Replace the cover image
// @Tags users
// @Accept mpfd
// @Produce json
// @Success 200 {object} response.Response{data=models.SanitizedUser}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/users/me/cover-image [patch]
func (r *Routers) UpdateCoverImage(c echo.Context) error {
	return r.updateProfileMedia(c, "http.routers.UpdateCoverImage", "coverImage", r.UserService.UpdateCoverImage)
}

func (r *Routers) updateProfileMedia(c echo.Context, op, field string, update func(context.Context, uuid.UUID, *multipart.FileHeader) (models.SanitizedUser, error)) error {
	log := r.log.With(slog.String("op", op))

	user, ok := mw.UserFromEchoContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	file, err := c.FormFile(field)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "please choose a file"))
	}

	updated, err := update(c.Request().Context(), user.ID, file)
	if err != nil {
		if errors.Is(err, usersvc.ErrAvatarRequired) {
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
		}
		log.Error("profile media update failed", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(updated, "profile media updated successfully"))
}

// GetMedia godoc
// @Summary Media metadata by id
// @Tags media
// @Produce json
// @Param id path string true "Media UUID" format(uuid)
// @Success 200 {object} response.Response{data=models.Media}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/media/{id} [get]
func (r *Routers) GetMedia(c echo.Context) error {
	const op = "http.routers.GetMedia"

	log := r.log.With(slog.String("op", op))

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "invalid media ID format"))
	}

	media, err := r.MediaService.GetMedia(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			return c.JSON(http.StatusNotFound, response.ErrorResponseWithDetails("not_found", "media not found"))
		}
		log.Error("failed to get media", sl.Err(err))
		return c.JSON(http.StatusInternalServerError, response.ErrInternal)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(media, ""))
}

// Both token cookies are httpOnly and secure; javascript never sees them.
func (r *Routers) setTokenCookies(c echo.Context, pair *models.TokenPair) {
	c.SetCookie(tokenCookie(mw.AccessTokenCookie, pair.AccessToken, r.accessTTL))
	c.SetCookie(tokenCookie(mw.RefreshTokenCookie, pair.RefreshToken, r.refreshTTL))
}

func (r *Routers) clearTokenCookies(c echo.Context) {
	c.SetCookie(tokenCookie(mw.AccessTokenCookie, "", -time.Hour))
	c.SetCookie(tokenCookie(mw.RefreshTokenCookie, "", -time.Hour))
}

func tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
