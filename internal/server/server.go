package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cozy-creator/summarize-server/internal/api/middleware"
	"github.com/cozy-creator/summarize-server/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	listenAddr string
	ginEngine  *gin.Engine
	inner      *http.Server
	logger     *zap.Logger
}

func NewServer(config *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(getGinMode(config.Environment))
	r := gin.New()

	r.Use(middleware.RequestID())

	// Setup logger middleware
	r.Use(logger.SetLogger(
		logger.WithUTC(true),
		logger.WithSkipPath([]string{"/healthz"}),
	))

	// Setup CORS middleware
	r.Use(cors.New(
		cors.Config{
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowOrigins:  []string{"*"},
			AllowHeaders:  []string{"*"},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        300 * time.Second,
		},
	))

	r.Use(gin.Recovery())

	r.Use(middleware.BodyLimit(maxBodyBytes(config)))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return &Server{
		listenAddr: addr,
		ginEngine:  r,
		logger:     log,
		inner: &http.Server{
			Handler:           r,
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.listenAddr))
	if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	if err := s.inner.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")

	if err := s.inner.Shutdown(ctx); err != nil {
		return err
	}

	return nil
}

func maxBodyBytes(cfg *config.Config) int64 {
	if cfg.MaxBodyBytes > 0 {
		return cfg.MaxBodyBytes
	}
	return config.DefaultMaxBodyBytes
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
