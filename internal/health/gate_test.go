package health

import (
	"context"
	"testing"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateFollowsStore(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	store := modelstore.New(artifact.NewResolver(t.TempDir()), backend)
	gate := NewGate(store)

	assert.False(t, gate.IsReady())
	report := gate.Report()
	assert.False(t, report.Ready)
	assert.Equal(t, modelstore.StateUnloaded, report.State)
	assert.Empty(t, backend.Loads, "readiness checks never load")

	_, err := store.Load(context.Background(), testutil.WriteArtifact(t))
	require.NoError(t, err)

	assert.True(t, gate.IsReady())
	report = gate.Report()
	assert.True(t, report.Ready)
	assert.Equal(t, modelstore.StateReady, report.State)
	assert.Equal(t, "cpu", report.Device)
	assert.NotEmpty(t, report.Fingerprint)

	require.NoError(t, store.Unload(context.Background()))
	assert.False(t, gate.IsReady())
}

func TestGateReportsLoadFailure(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	backend.LoadErr = &runtime.RemoteError{Op: runtime.OpLoad, Code: runtime.CodeOutOfMemory, Message: "out of memory"}
	store := modelstore.New(artifact.NewResolver(t.TempDir()), backend)
	gate := NewGate(store)

	_, err := store.Load(context.Background(), testutil.WriteArtifact(t))
	require.Error(t, err)

	report := gate.Report()
	assert.False(t, report.Ready)
	assert.Contains(t, report.LastError, "out of memory")
}
