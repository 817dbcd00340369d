package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"clipshare/internal/domain/models"
	"clipshare/internal/lib/jwt"
	"clipshare/internal/repository"
	tokensvc "clipshare/internal/services/token_service"
	usersvc "clipshare/internal/services/user_service"
	"clipshare/internal/storage"
	httprouters "clipshare/internal/transport/http"
	mw "clipshare/internal/transport/http/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryUserRepo is an in-memory stand-in for the postgres repository so the
// full register/login/refresh/logout path runs through real services and
// handlers.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uuid.UUID]models.User)}
}

func (r *memoryUserRepo) SaveUser(_ context.Context, user models.User) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return uuid.Nil, storage.ErrUserExists
		}
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user

	return user.ID, nil
}

func (r *memoryUserRepo) UserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return user, nil
}

func (r *memoryUserRepo) UserByUsernameOrEmail(_ context.Context, username, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Username == username || user.Email == email {
			return user, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (r *memoryUserRepo) UpdateProfile(_ context.Context, userID uuid.UUID, updates map[string]interface{}) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	for column, value := range updates {
		switch column {
		case "full_name":
			user.FullName = value.(string)
		case "email":
			user.Email = value.(string)
		case "avatar_url":
			user.AvatarURL = value.(string)
		case "cover_image_url":
			user.CoverImageURL = value.(string)
		}
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[userID] = user

	return user, nil
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.Password = passwordHash
	r.users[userID] = user

	return nil
}

func (r *memoryUserRepo) SetRefreshToken(_ context.Context, userID uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.RefreshToken = token
	r.users[userID] = user

	return nil
}

func (r *memoryUserRepo) ReplaceRefreshToken(_ context.Context, userID uuid.UUID, oldToken, newToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok || user.RefreshToken != oldToken {
		return storage.ErrTokenMismatch
	}
	user.RefreshToken = newToken
	r.users[userID] = user

	return nil
}

func (r *memoryUserRepo) ClearRefreshToken(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.RefreshToken = ""
	r.users[userID] = user

	return nil
}

type missCache struct{}

func (missCache) Get(context.Context, uuid.UUID) (models.SanitizedUser, error) {
	return models.SanitizedUser{}, repository.ErrCacheMiss
}

func (missCache) Set(context.Context, models.SanitizedUser, time.Duration) error { return nil }

func (missCache) Delete(context.Context, uuid.UUID) error { return nil }

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, uploaderID uuid.UUID, file *multipart.FileHeader) (*models.Media, error) {
	return &models.Media{
		ID:         uuid.New(),
		UploaderID: uploaderID,
		URL:        "http://localhost:8080/uploads/" + file.Filename,
	}, nil
}

type emptyMediaService struct{}

func (emptyMediaService) GetMedia(context.Context, uuid.UUID) (*models.Media, error) {
	return nil, storage.ErrMediaNotFound
}

type testValidator struct {
	v *validator.Validate
}

func (tv *testValidator) Validate(i interface{}) error {
	return tv.v.Struct(i)
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryUserRepo()
	cache := missCache{}

	accessSigner := jwt.NewSigner("test-access-secret", 15*time.Minute)
	refreshSigner := jwt.NewSigner("test-refresh-secret", 168*time.Hour)

	tokenService := tokensvc.NewTokenService(log, repo, cache, accessSigner, refreshSigner)
	userService := usersvc.NewUserService(log, repo, cache, tokenService, fakeUploader{})
	guard := mw.NewAccessGuard(log, accessSigner, repo, cache)

	routers := httprouters.NewRouter(log, userService, tokenService, emptyMediaService{}, 15*time.Minute, 168*time.Hour)

	e := echo.New()
	e.Validator = &testValidator{v: validator.New()}

	api := e.Group("/api/v1")
	api.POST("/register", routers.Register)
	api.POST("/login", routers.Login)
	api.POST("/refresh", routers.Refresh)

	protected := api.Group("", guard.Middleware)
	protected.POST("/logout", routers.Logout)
	protected.GET("/users/me", routers.Me)
	protected.GET("/media/:id", routers.GetMedia)

	return e
}

func registerForm(t *testing.T, username, email string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"full_name": "Flow Tester",
		"username":  username,
		"email":     email,
		"password":  "correct-horse",
	}
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}

	part, err := writer.CreateFormFile("avatar", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func doJSON(e *echo.Echo, method, path string, payload interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = new(bytes.Buffer)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)

	return nil
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestServer(t)

	// Register.
	form, contentType := registerForm(t, "flowuser", "flow@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Login sets both token cookies, httpOnly and secure.
	rec = doJSON(e, http.MethodPost, "/api/v1/login", map[string]string{
		"identifier": "flowuser",
		"password":   "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	access := cookieByName(t, rec, mw.AccessTokenCookie)
	refresh := cookieByName(t, rec, mw.RefreshTokenCookie)
	for _, cookie := range []*http.Cookie{access, refresh} {
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.NotEmpty(t, cookie.Value)
	}

	// The access cookie opens protected routes.
	rec = doJSON(e, http.MethodGet, "/api/v1/users/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "flowuser")
	assert.NotContains(t, rec.Body.String(), "password")

	// Rotation returns a fresh pair.
	rec = doJSON(e, http.MethodPost, "/api/v1/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rotatedAccess := cookieByName(t, rec, mw.AccessTokenCookie)
	rotatedRefresh := cookieByName(t, rec, mw.RefreshTokenCookie)
	assert.NotEqual(t, refresh.Value, rotatedRefresh.Value)
	assert.True(t, rotatedRefresh.HttpOnly)

	// The spent refresh token is rejected on replay.
	rec = doJSON(e, http.MethodPost, "/api/v1/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired or already used")

	// Logout clears both cookies and revokes the stored token.
	rec = doJSON(e, http.MethodPost, "/api/v1/logout", nil, rotatedAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	clearedAccess := cookieByName(t, rec, mw.AccessTokenCookie)
	clearedRefresh := cookieByName(t, rec, mw.RefreshTokenCookie)
	assert.Empty(t, clearedAccess.Value)
	assert.Empty(t, clearedRefresh.Value)
	assert.Negative(t, clearedAccess.MaxAge)
	assert.Negative(t, clearedRefresh.MaxAge)

	// Even the latest refresh token is dead after logout.
	rec = doJSON(e, http.MethodPost, "/api/v1/refresh", nil, rotatedRefresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired or already used")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	e := newTestServer(t)

	form, contentType := registerForm(t, "taken", "first@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	form, contentType = registerForm(t, "taken", "second@example.com")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_MissingFields(t *testing.T) {
	e := newTestServer(t)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("username", "incomplete"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestServer(t)

	form, contentType := registerForm(t, "victim", "victim@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/login", map[string]string{
		"identifier": "victim",
		"password":   "not-the-password",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRefresh_NoToken(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/refresh", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized request")
}

func TestRefresh_BodyTokenAccepted(t *testing.T) {
	e := newTestServer(t)

	form, contentType := registerForm(t, "bodyuser", "body@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/login", map[string]string{
		"identifier": "bodyuser",
		"password":   "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	refresh := cookieByName(t, rec, mw.RefreshTokenCookie)

	// API clients without cookies send the token in the body.
	rec = doJSON(e, http.MethodPost, "/api/v1/refresh", map[string]string{
		"refresh_token": refresh.Value,
	})

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefresh_GarbageToken(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/refresh", nil, &http.Cookie{
		Name:  mw.RefreshTokenCookie,
		Value: "not.a.jwt",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid refresh token")
}

func TestProtectedRoute_NoCredentials(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/users/me", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "no credentials supplied")
}

func TestGetMedia_NotFound(t *testing.T) {
	e := newTestServer(t)

	form, contentType := registerForm(t, "viewer", "viewer@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", form)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/login", map[string]string{
		"identifier": "viewer",
		"password":   "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	access := cookieByName(t, rec, mw.AccessTokenCookie)

	rec = doJSON(e, http.MethodGet, "/api/v1/media/"+uuid.NewString(), nil, access)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/media/not-a-uuid", nil, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
