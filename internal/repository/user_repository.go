package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipshare/internal/domain/models"
	"clipshare/internal/storage"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

var userColumns = []string{
	"id",
	"full_name",
	"username",
	"email",
	"password",
	"avatar_url",
	"cover_image_url",
	"COALESCE(refresh_token, '')",
	"created_at",
	"updated_at",
}

type UserRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewUserRepository(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *UserRepo) SaveUser(ctx context.Context, user models.User) (uuid.UUID, error) {
	const op = "repository.user_repository.SaveUser"

	now := time.Now().UTC()

	query, args, err := r.sb.Insert("users").
		Columns(
			"id",
			"full_name",
			"username",
			"email",
			"password",
			"avatar_url",
			"cover_image_url",
			"created_at",
			"updated_at",
		).
		Values(
			user.ID,
			user.FullName,
			user.Username,
			user.Email,
			user.Password,
			user.AvatarURL,
			user.CoverImageURL,
			now,
			now,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return uuid.Nil, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (r *UserRepo) UserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "repository.user_repository.UserByID"

	return r.one(ctx, op, sq.Eq{"id": userID})
}

func (r *UserRepo) UserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	const op = "repository.user_repository.UserByUsernameOrEmail"

	return r.one(ctx, op, sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}})
}

func (r *UserRepo) one(ctx context.Context, op string, pred interface{}) (models.User, error) {
	query, args, err := r.sb.Select(userColumns...).From("users").Where(pred).Limit(1).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var user models.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&user.Email,
		&user.Password,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile applies a partial update to named columns and returns the
// updated row.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) (models.User, error) {
	const op = "repository.user_repository.UpdateProfile"

	builder := r.sb.Update("users").Where(sq.Eq{"id": userID})
	for column, value := range updates {
		builder = builder.Set(column, value)
	}
	builder = builder.Set("updated_at", time.Now().UTC())

	query, args, err := builder.Suffix("RETURNING " + returningColumns()).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var user models.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&user.Email,
		&user.Password,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash []byte) error {
	const op = "repository.user_repository.UpdatePassword"

	query, args, err := r.sb.Update("users").
		Set("password", passwordHash).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SetRefreshToken overwrites the stored refresh token unconditionally.
// Used at login: a fresh login displaces the previous session.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	const op = "repository.user_repository.SetRefreshToken"

	query, args, err := r.sb.Update("users").
		Set("refresh_token", token).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// ReplaceRefreshToken swaps the stored refresh token only if it still equals
// oldToken. Zero rows affected means the presented token lost a race or was
// already used, which is the single revocation mechanism for refresh tokens.
func (r *UserRepo) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string) error {
	const op = "repository.user_repository.ReplaceRefreshToken"

	query, args, err := r.sb.Update("users").
		Set("refresh_token", newToken).
		Where(sq.Eq{"id": userID, "refresh_token": oldToken}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenMismatch)
	}

	return nil
}

// ClearRefreshToken nulls the stored token so any later equality check
// fails deterministically.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	const op = "repository.user_repository.ClearRefreshToken"

	query, args, err := r.sb.Update("users").
		Set("refresh_token", nil).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func returningColumns() string {
	cols := ""
	for i, c := range userColumns {
		if i > 0 {
			cols += ", "
		}
		cols += c
	}
	return cols
}
