package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/logger/sl"
	"clipshare/internal/repository"
	"clipshare/internal/storage"
	"clipshare/internal/transport/http/dto"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAllFieldsRequired  = errors.New("all fields are required")
	ErrAvatarRequired     = errors.New("avatar file is required")
	ErrUserExist          = errors.New("user already exist")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid user credentials")
	ErrPasswordMismatch   = errors.New("new password and confirmation do not match")
	ErrWrongOldPassword   = errors.New("old password is not correct")
)

type TokenIssuer interface {
	IssuePair(ctx context.Context, user models.User) (*models.TokenPair, error)
}

type MediaUploader interface {
	Upload(ctx context.Context, uploaderID uuid.UUID, file *multipart.FileHeader) (*models.Media, error)
}

type UserService struct {
	log    *slog.Logger
	repo   repository.UserRepository
	cache  repository.IdentityCache
	tokens TokenIssuer
	media  MediaUploader
}

func NewUserService(log *slog.Logger, repo repository.UserRepository, cache repository.IdentityCache, tokens TokenIssuer, media MediaUploader) *UserService {
	return &UserService{
		log:    log,
		repo:   repo,
		cache:  cache,
		tokens: tokens,
		media:  media,
	}
}

// Register creates the account: required-field check, duplicate check,
// password hashing and profile media upload. The avatar is mandatory, the
// cover image is not.
func (s *UserService) Register(ctx context.Context, input dto.UserRegisterInput, avatar, coverImage *multipart.FileHeader) (models.SanitizedUser, error) {
	const op = "user_service.Register"

	log := s.log.With(
		slog.String("op", op),
		slog.String("username", input.Username),
	)

	fullName := strings.TrimSpace(input.FullName)
	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.TrimSpace(input.Email)

	if fullName == "" || username == "" || email == "" || input.Password == "" {
		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrAllFieldsRequired)
	}

	if _, err := s.repo.UserByUsernameOrEmail(ctx, username, email); err == nil {
		log.Warn("user already exists")

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrUserExist)
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to check existing user", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	if avatar == nil {
		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrAvatarRequired)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	userID := uuid.New()

	avatarMedia, err := s.media.Upload(ctx, userID, avatar)
	if err != nil {
		log.Error("failed to upload avatar", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	var coverURL string
	if coverImage != nil {
		coverMedia, err := s.media.Upload(ctx, userID, coverImage)
		if err != nil {
			log.Error("failed to upload cover image", sl.Err(err))

			return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
		}
		coverURL = coverMedia.URL
	}

	user := models.User{
		ID:            userID,
		FullName:      fullName,
		Username:      username,
		Email:         email,
		Password:      passHash,
		AvatarURL:     avatarMedia.URL,
		CoverImageURL: coverURL,
	}

	id, err := s.repo.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists", sl.Err(err))

			return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrUserExist)
		}
		log.Error("failed to save user", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.UserByID(ctx, id)
	if err != nil {
		log.Error("failed to load created user", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", id.String()))

	return created.Sanitized(), nil
}

// Login resolves the user by username or email and verifies the password
// before issuing a token pair.
func (s *UserService) Login(ctx context.Context, identifier, password string) (models.SanitizedUser, *models.TokenPair, error) {
	const op = "user_service.Login"

	log := s.log.With(
		slog.String("op", op),
		slog.String("identifier", identifier),
	)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return models.SanitizedUser{}, nil, fmt.Errorf("%s: %w", op, ErrAllFieldsRequired)
	}

	user, err := s.repo.UserByUsernameOrEmail(ctx, strings.ToLower(identifier), identifier)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")

			return models.SanitizedUser{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))

		return models.SanitizedUser{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))

		return models.SanitizedUser{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		log.Error("failed to issue token pair", sl.Err(err))

		return models.SanitizedUser{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in")

	return user.Sanitized(), pair, nil
}

// ChangePassword requires the confirmation to match and the old password to
// verify before the new hash is stored.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmPassword string) error {
	const op = "user_service.ChangePassword"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	if newPassword == "" || newPassword != confirmPassword {
		return fmt.Errorf("%s: %w", op, ErrPasswordMismatch)
	}

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(oldPassword)); err != nil {
		log.Info("old password rejected")

		return fmt.Errorf("%s: %w", op, ErrWrongOldPassword)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed")

	return nil
}

// UpdateAccountDetails updates the display name and email.
func (s *UserService) UpdateAccountDetails(ctx context.Context, userID uuid.UUID, fullName, email string) (models.SanitizedUser, error) {
	const op = "user_service.UpdateAccountDetails"

	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)

	if fullName == "" || email == "" {
		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrAllFieldsRequired)
	}

	return s.updateProfile(ctx, op, userID, map[string]interface{}{
		"full_name": fullName,
		"email":     email,
	})
}

// UpdateAvatar uploads the new avatar and stores its URL in the avatar
// column.
func (s *UserService) UpdateAvatar(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (models.SanitizedUser, error) {
	const op = "user_service.UpdateAvatar"

	return s.updateProfileMedia(ctx, op, userID, file, "avatar_url")
}

// UpdateCoverImage uploads the new cover image and stores its URL in the
// cover image column.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (models.SanitizedUser, error) {
	const op = "user_service.UpdateCoverImage"

	return s.updateProfileMedia(ctx, op, userID, file, "cover_image_url")
}

func (s *UserService) updateProfileMedia(ctx context.Context, op string, userID uuid.UUID, file *multipart.FileHeader, column string) (models.SanitizedUser, error) {
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	if file == nil {
		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrAvatarRequired)
	}

	media, err := s.media.Upload(ctx, userID, file)
	if err != nil {
		log.Error("failed to upload media", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.updateProfile(ctx, op, userID, map[string]interface{}{
		column: media.URL,
	})
}

func (s *UserService) updateProfile(ctx context.Context, op string, userID uuid.UUID, updates map[string]interface{}) (models.SanitizedUser, error) {
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	user, err := s.repo.UpdateProfile(ctx, userID, updates)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to update profile", sl.Err(err))

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	// The guard may be serving a stale projection; drop it.
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Warn("failed to drop identity cache entry", sl.Err(err))
	}

	return user.Sanitized(), nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.SanitizedUser, error) {
	const op = "user_service.GetUserByID"

	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return models.SanitizedUser{}, fmt.Errorf("%s: %w", op, err)
	}

	return user.Sanitized(), nil
}
