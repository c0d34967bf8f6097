package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/.summarize")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".summarize"), got)

	got, err = ExpandPath("/tmp/models")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/models", got)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
