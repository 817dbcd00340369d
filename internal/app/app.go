package app

import (
	"context"
	"log/slog"

	httpapp "clipshare/internal/app/http"
	"clipshare/internal/config"
	"clipshare/internal/lib/jwt"
	"clipshare/internal/repository"
	mediasvc "clipshare/internal/services/media_service"
	tokensvc "clipshare/internal/services/token_service"
	usersvc "clipshare/internal/services/user_service"
	filestorage "clipshare/internal/storage/filestorage"
	redisapp "clipshare/internal/storage/redis"
	httprouters "clipshare/internal/transport/http"
	guard "clipshare/internal/transport/http/middleware"
)

type App struct {
	HTTPServer *httpapp.Server
	Repo       *repository.Repository
	Redis      *redisapp.Client
}

func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	redisClient := redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)

	repo, err := repository.NewRepository(ctx, cfg.DSN, redisClient)
	if err != nil {
		return nil, err
	}

	fileStorage, err := filestorage.NewLocalFileStorage(cfg.FileStorage.BaseDir, cfg.FileStorage.BaseURL, cfg.FileStorage.MaxSize)
	if err != nil {
		return nil, err
	}

	accessSigner := jwt.NewSigner(cfg.Tokens.AccessSecret, cfg.Tokens.AccessTTL)
	refreshSigner := jwt.NewSigner(cfg.Tokens.RefreshSecret, cfg.Tokens.RefreshTTL)

	mediaService := mediasvc.NewMediaService(log, repo.Media, fileStorage)
	tokenService := tokensvc.NewTokenService(log, repo.User, repo.Cache, accessSigner, refreshSigner)
	userService := usersvc.NewUserService(log, repo.User, repo.Cache, tokenService, mediaService)

	routers := httprouters.NewRouter(log, userService, tokenService, mediaService, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	accessGuard := guard.NewAccessGuard(log, accessSigner, repo.User, repo.Cache)

	server := httpapp.New(log, cfg.HTTP.Host, cfg.HTTP.Port, cfg.FileStorage.BaseDir, routers, accessGuard)

	return &App{
		HTTPServer: server,
		Repo:       repo,
		Redis:      redisClient,
	}, nil
}

func (a *App) Stop() {
	_ = a.HTTPServer.Stop()
	a.Repo.Close()
	_ = a.Redis.Close()
}
