package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"time"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/logger/sl"
	"clipshare/internal/repository"
	storage "clipshare/internal/storage/filestorage"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	metaCacheTTL     = 5 * time.Minute
	metaCacheCleanup = 10 * time.Minute
)

type MediaService struct {
	log         *slog.Logger
	repo        repository.MediaRepository
	fileStorage storage.FileStorage
	metaCache   *gocache.Cache
}

func NewMediaService(log *slog.Logger, repo repository.MediaRepository, fileStorage storage.FileStorage) *MediaService {
	return &MediaService{
		log:         log,
		repo:        repo,
		fileStorage: fileStorage,
		metaCache:   gocache.New(metaCacheTTL, metaCacheCleanup),
	}
}

// Upload stores the file, persists the media row and returns the record with
// its public URL. The stored file is removed when the row cannot be saved.
func (s *MediaService) Upload(ctx context.Context, uploaderID uuid.UUID, file *multipart.FileHeader) (*models.Media, error) {
	const op = "media_service.Upload"

	log := s.log.With(
		slog.String("op", op),
		slog.String("uploader_id", uploaderID.String()),
		slog.String("filename", file.Filename),
	)

	log.Info("upload media")

	filePath, fileSize, err := s.fileStorage.Save(ctx, file, filepath.Join("user_uploads", uploaderID.String()))
	if err != nil {
		log.Error("failed to save file", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	media := &models.Media{
		ID:               uuid.New(),
		UploaderID:       uploaderID,
		OriginalFilename: file.Filename,
		StoragePath:      filePath,
		FileSize:         fileSize,
		MimeType:         file.Header.Get("Content-Type"),
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.repo.CreateMedia(ctx, media)
	if err != nil {
		_ = s.fileStorage.Delete(ctx, filePath)
		log.Error("failed to save media to database", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created.URL = s.fileStorage.URL(created.StoragePath)
	s.metaCache.Set(created.ID.String(), *created, metaCacheTTL)

	return created, nil
}

// GetMedia serves media metadata through a short-lived in-process cache.
func (s *MediaService) GetMedia(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "media_service.GetMedia"

	if cached, ok := s.metaCache.Get(id.String()); ok {
		media := cached.(models.Media)
		return &media, nil
	}

	media, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	media.URL = s.fileStorage.URL(media.StoragePath)
	s.metaCache.Set(media.ID.String(), *media, metaCacheTTL)

	return media, nil
}
