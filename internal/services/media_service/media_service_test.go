package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"clipshare/internal/domain/models"
	storage "clipshare/internal/storage/filestorage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) CreateMedia(ctx context.Context, media *models.Media) (*models.Media, error) {
	args := m.Called(ctx, media)
	if created := args.Get(0); created != nil {
		return created.(*models.Media), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMediaRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	args := m.Called(ctx, id)
	if media := args.Get(0); media != nil {
		return media.(*models.Media), args.Error(1)
	}
	return nil, args.Error(1)
}

func multipartFile(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	return req.MultipartForm.File["file"][0]
}

func newService(t *testing.T, repo *MockMediaRepository) (*MediaService, string) {
	t.Helper()

	baseDir := t.TempDir()
	fileStorage, err := storage.NewLocalFileStorage(baseDir, "http://localhost:8080/uploads", 1<<20)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewMediaService(log, repo, fileStorage), baseDir
}

func TestUpload_Success(t *testing.T) {
	repo := new(MockMediaRepository)
	service, baseDir := newService(t, repo)

	uploaderID := uuid.New()
	file := multipartFile(t, "avatar.png", "fake image bytes")

	repo.On("CreateMedia", mock.Anything, mock.MatchedBy(func(m *models.Media) bool {
		return m.UploaderID == uploaderID && m.OriginalFilename == "avatar.png"
	})).Return(&models.Media{
		ID:          uuid.New(),
		UploaderID:  uploaderID,
		StoragePath: "user_uploads/" + uploaderID.String() + "/avatar.png",
	}, nil)

	media, err := service.Upload(context.Background(), uploaderID, file)

	require.NoError(t, err)
	assert.Contains(t, media.URL, "http://localhost:8080/uploads/")

	// The file landed on disk.
	saved := filepath.Join(baseDir, "user_uploads", uploaderID.String(), "avatar.png")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))
}

func TestUpload_FileRemovedWhenDBFails(t *testing.T) {
	repo := new(MockMediaRepository)
	service, baseDir := newService(t, repo)

	uploaderID := uuid.New()
	file := multipartFile(t, "avatar.png", "fake image bytes")

	repo.On("CreateMedia", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	_, err := service.Upload(context.Background(), uploaderID, file)

	require.Error(t, err)

	saved := filepath.Join(baseDir, "user_uploads", uploaderID.String(), "avatar.png")
	_, statErr := os.Stat(saved)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpload_TooLarge(t *testing.T) {
	repo := new(MockMediaRepository)

	baseDir := t.TempDir()
	fileStorage, err := storage.NewLocalFileStorage(baseDir, "http://localhost:8080/uploads", 4)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewMediaService(log, repo, fileStorage)

	file := multipartFile(t, "big.png", "more than four bytes")

	_, err = service.Upload(context.Background(), uuid.New(), file)

	require.Error(t, err)
	repo.AssertNotCalled(t, "CreateMedia", mock.Anything, mock.Anything)
}

func TestGetMedia_CachesMetadata(t *testing.T) {
	repo := new(MockMediaRepository)
	service, _ := newService(t, repo)

	id := uuid.New()
	repo.On("FindByID", mock.Anything, id).Return(&models.Media{
		ID:          id,
		StoragePath: "user_uploads/x/clip.mp4",
	}, nil).Once()

	first, err := service.GetMedia(context.Background(), id)
	require.NoError(t, err)

	// Second call is served from the cache; the repo mock only allows one
	// FindByID call.
	second, err := service.GetMedia(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	repo.AssertExpectations(t)
}
