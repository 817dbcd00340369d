package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	apperrors "clipshare/internal/storage"
)

type FileStorage interface {
	Save(ctx context.Context, file *multipart.FileHeader, subPath string) (filePath string, fileSize int64, err error)
	Delete(ctx context.Context, filePath string) error
	URL(relativePath string) string
	GetFullPath(relativePath string) string
}

// LocalFileStorage keeps uploads on the local filesystem and serves them
// back by URL prefix.
type LocalFileStorage struct {
	baseDir string
	baseURL string
	maxSize int64
}

func NewLocalFileStorage(baseDir, baseURL string, maxSize int64) (*LocalFileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &LocalFileStorage{
		baseDir: baseDir,
		baseURL: baseURL,
		maxSize: maxSize,
	}, nil
}

func (s *LocalFileStorage) Save(ctx context.Context, file *multipart.FileHeader, subPath string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	if s.maxSize > 0 && file.Size > s.maxSize {
		return "", 0, apperrors.ErrFileTooLarge
	}

	filePath := filepath.Join(s.baseDir, subPath, file.Filename)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directories: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	done := make(chan struct{})
	var size int64
	var copyErr error

	go func() {
		size, copyErr = io.Copy(dst, src)
		close(done)
	}()

	select {
	case <-done:
		if copyErr != nil {
			_ = os.Remove(filePath)
			return "", 0, fmt.Errorf("failed to copy file: %w", copyErr)
		}
	case <-ctx.Done():
		_ = os.Remove(filePath)
		return "", 0, ctx.Err()
	}

	return filepath.ToSlash(filepath.Join(subPath, file.Filename)), size, nil
}

func (s *LocalFileStorage) Delete(ctx context.Context, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return os.Remove(filepath.Join(s.baseDir, filePath))
}

// URL resolves a stored relative path to the public URL clients use.
func (s *LocalFileStorage) URL(relativePath string) string {
	return s.baseURL + "/" + path.Clean(relativePath)
}

func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}
