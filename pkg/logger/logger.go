package logger

import (
	"github.com/cozy-creator/summarize-server/internal/config"

	"go.uber.org/zap"
)

var logger *zap.Logger

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch cfg.Environment {
	case "prod", "production":
		l, err = zap.NewProduction()
	case "test":
		l = zap.NewExample()
	default:
		l, err = zap.NewDevelopment()
	}

	return l, err
}

func MustNewLogger(cfg *config.Config) *zap.Logger {
	return zap.Must(NewLogger(cfg))
}

func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	var err error
	logger, err = NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// GetLogger returns the process logger, or a no-op logger when InitLogger
// has not run yet.
func GetLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
