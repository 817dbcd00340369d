package httpapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	appmw "clipshare/internal/middleware"
	httprouters "clipshare/internal/transport/http"
	guard "clipshare/internal/transport/http/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "clipshare/docs"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Server struct {
	log       *slog.Logger
	e         *echo.Echo
	routers   *httprouters.Routers
	guard     *guard.AccessGuard
	host      string
	port      string
	uploadDir string
}

func New(log *slog.Logger, host, port, uploadDir string, routers *httprouters.Routers, accessGuard *guard.AccessGuard) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(appmw.PrometheusMetrics)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("URI", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote ip", v.RemoteIP),
			)

			return nil
		},
	}))

	return &Server{
		log:       log,
		e:         e,
		routers:   routers,
		guard:     accessGuard,
		host:      host,
		port:      port,
		uploadDir: uploadDir,
	}
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info(op, slog.String("Start", "server"))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(fmt.Sprintf(":%s", s.port)); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop() error {
	const op = "http.Server.Stop"

	optCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	s.log.Info("stopping", op, "http server")

	if err := s.e.Shutdown(optCtx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefuly: %w", op, err)
	}

	return nil
}

func (s *Server) BuildRouters() {
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.e.Static("/uploads", s.uploadDir)

	swagger := s.e.Group("/swag")
	{
		swagger.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := s.e.Group("/api/v1")
	{
		api.POST("/register", s.routers.Register)
		api.POST("/login", s.routers.Login)
		api.POST("/refresh", s.routers.Refresh)

		protected := api.Group("", s.guard.Middleware)
		{
			protected.POST("/logout", s.routers.Logout)

			protected.GET("/users/me", s.routers.Me)
			protected.PATCH("/users/me", s.routers.UpdateAccount)
			protected.POST("/users/change-password", s.routers.ChangePassword)
			protected.PATCH("/users/me/avatar", s.routers.UpdateAvatar)
			protected.PATCH("/users/me/cover-image", s.routers.UpdateCoverImage)

			protected.GET("/media/:id", s.routers.GetMedia)
		}
	}
}
