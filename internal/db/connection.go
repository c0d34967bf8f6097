package db

import (
	"context"
	"fmt"

	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/db/drivers"

	"github.com/uptrace/bun/extra/bundebug"
)

func NewConnection(ctx context.Context, cfg *config.DBConfig) (drivers.Driver, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is not set")
	}

	var (
		driver drivers.Driver
		err    error
	)
	switch cfg.Driver {
	case config.DBDriverSQLite, "":
		driver, err = drivers.NewSQLiteDriver(ctx, cfg.DSN)
	case config.DBDriverPostgres:
		driver, err = drivers.NewPGDriver(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),
		bundebug.FromEnv(),
	))

	return driver, nil
}
