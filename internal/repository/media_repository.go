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
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type MediaRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewMediaRepository(db *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *MediaRepo) CreateMedia(ctx context.Context, media *models.Media) (*models.Media, error) {
	const op = "repository.media_repository.CreateMedia"

	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.sb.Insert("media").
		Columns(
			"id",
			"uploader_id",
			"original_filename",
			"storage_path",
			"file_size",
			"mime_type",
			"created_at",
		).
		Values(
			media.ID,
			media.UploaderID,
			media.OriginalFilename,
			media.StoragePath,
			media.FileSize,
			media.MimeType,
			media.CreatedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

func (r *MediaRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "repository.media_repository.FindByID"

	query, args, err := r.sb.Select(
		"id",
		"uploader_id",
		"original_filename",
		"storage_path",
		"file_size",
		"mime_type",
		"created_at",
	).From("media").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build sql: %w", op, err)
	}

	var media models.Media
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&media.ID,
		&media.UploaderID,
		&media.OriginalFilename,
		&media.StoragePath,
		&media.FileSize,
		&media.MimeType,
		&media.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrMediaNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &media, nil
}
