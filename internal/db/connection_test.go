package db

import (
	"context"
	"testing"

	"github.com/cozy-creator/summarize-server/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionRequiresDSN(t *testing.T) {
	_, err := NewConnection(context.Background(), &config.DBConfig{Driver: config.DBDriverSQLite})
	require.Error(t, err)

	_, err = NewConnection(context.Background(), nil)
	require.Error(t, err)
}

func TestNewConnectionRejectsUnknownDriver(t *testing.T) {
	_, err := NewConnection(context.Background(), &config.DBConfig{Driver: "mysql", DSN: "root@tcp(localhost)/db"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}
