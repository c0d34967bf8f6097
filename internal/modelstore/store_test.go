package modelstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingResolver struct {
	inner   Resolver
	started chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Resolve(ctx context.Context, locator string) (*artifact.Artifact, error) {
	close(r.started)
	<-r.release
	return r.inner.Resolve(ctx, locator)
}

func newStore(t *testing.T, backend *testutil.FakeRuntime, opts ...Option) (*Store, string) {
	t.Helper()
	dir := testutil.WriteArtifact(t)
	return New(artifact.NewResolver(t.TempDir()), backend, opts...), dir
}

func TestLoadPublishesModel(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	backend.Reentrant = false
	store, dir := newStore(t, backend)

	_, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, StateUnloaded, store.Status().State)

	model, err := store.Load(context.Background(), dir)
	require.NoError(t, err)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Same(t, model, current)
	assert.Equal(t, runtime.DeviceCPU, model.Device.Kind)
	assert.False(t, model.Reentrant)
	assert.Equal(t, testutil.PadID, model.DecoderStartID)
	assert.Equal(t, testutil.EOSID, model.EOSID)
	assert.NotNil(t, model.Tokenizer)

	require.Len(t, backend.Loads, 1)
	assert.True(t, backend.Loads[0].InferenceOnly)
	assert.Equal(t, "cpu", backend.Loads[0].Device)

	status := store.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, model.Artifact.Fingerprint, status.Fingerprint)
	assert.NotNil(t, status.LoadedAt)
}

func TestLoadTwiceReturnsSameModel(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	store, dir := newStore(t, backend)

	first, err := store.Load(context.Background(), dir)
	require.NoError(t, err)
	second, err := store.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, backend.Loads, 1)
}

func TestLoadPrefersAccelerator(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	backend.DeviceList = []runtime.Device{
		{Kind: runtime.DeviceCPU, Available: true},
		{Kind: runtime.DeviceCUDA, Index: 0, Available: true},
	}
	store, dir := newStore(t, backend)

	model, err := store.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "cuda:0", model.Device.String())
	assert.Equal(t, "cuda:0", backend.Loads[0].Device)
}

func TestLoadHonoursConfiguredDevice(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	backend.DeviceList = []runtime.Device{{Kind: runtime.DeviceCUDA, Available: true}}
	store, dir := newStore(t, backend, WithDevice("cpu"))

	model, err := store.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, runtime.DeviceCPU, model.Device.Kind)
}

func TestLoadFailureKinds(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, backend *testutil.FakeRuntime) string
		opts    []Option
		want    error
		wantRaw error
	}{
		{
			name: "missing directory",
			setup: func(t *testing.T, _ *testutil.FakeRuntime) string {
				return "/no/such/model"
			},
			want:    ErrLocatorUnresolvable,
			wantRaw: artifact.ErrUnresolvable,
		},
		{
			name: "encoder only",
			setup: func(t *testing.T, _ *testutil.FakeRuntime) string {
				return testutil.WriteArtifactWith(t, testutil.ArtifactOptions{Architecture: "BertModel", ModelType: "bert"})
			},
			want:    ErrIncompatibleArtifact,
			wantRaw: artifact.ErrIncompatible,
		},
		{
			name: "out of memory",
			setup: func(t *testing.T, backend *testutil.FakeRuntime) string {
				backend.LoadErr = &runtime.RemoteError{Op: runtime.OpLoad, Code: "oom", Message: "CUDA out of memory"}
				return testutil.WriteArtifact(t)
			},
			want:    ErrPlacementFailed,
			wantRaw: runtime.ErrOutOfMemory,
		},
		{
			name: "device query fails",
			setup: func(t *testing.T, backend *testutil.FakeRuntime) string {
				backend.DevicesErr = runtime.ErrUnavailable
				return testutil.WriteArtifact(t)
			},
			want:    ErrPlacementFailed,
			wantRaw: runtime.ErrUnavailable,
		},
		{
			name: "requested device missing",
			setup: func(t *testing.T, _ *testutil.FakeRuntime) string {
				return testutil.WriteArtifact(t)
			},
			opts: []Option{WithDevice("mps")},
			want: ErrPlacementFailed,
		},
		{
			name: "runtime rejects architecture",
			setup: func(t *testing.T, backend *testutil.FakeRuntime) string {
				backend.LoadErr = &runtime.RemoteError{Op: runtime.OpLoad, Code: "incompatible"}
				return testutil.WriteArtifact(t)
			},
			want:    ErrIncompatibleArtifact,
			wantRaw: runtime.ErrIncompatible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := testutil.NewFakeRuntime()
			locator := tt.setup(t, backend)
			store := New(artifact.NewResolver(t.TempDir()), backend, tt.opts...)

			model, err := store.Load(context.Background(), locator)
			assert.Nil(t, model)
			require.Error(t, err)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.ErrorIs(t, err, tt.want)
			if tt.wantRaw != nil {
				assert.ErrorIs(t, err, tt.wantRaw)
			}

			_, ok := store.Current()
			assert.False(t, ok)
			status := store.Status()
			assert.Equal(t, StateUnloaded, status.State)
			assert.NotEmpty(t, status.LastError)
		})
	}
}

func TestLoadFailureThenSuccess(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	backend.LoadErr = &runtime.RemoteError{Op: runtime.OpLoad, Code: "device"}
	store, dir := newStore(t, backend)

	_, err := store.Load(context.Background(), dir)
	require.Error(t, err)
	assert.Len(t, backend.Loads, 1, "no automatic retry")

	backend.LoadErr = nil
	_, err = store.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, StateReady, store.Status().State)
	assert.Empty(t, store.Status().LastError)
}

func TestReadsDoNotBlockDuringLoad(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	dir := testutil.WriteArtifact(t)
	resolver := &blockingResolver{
		inner:   artifact.NewResolver(t.TempDir()),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := New(resolver, backend)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := store.Load(context.Background(), dir)
		assert.NoError(t, err)
	}()

	<-resolver.started
	done := make(chan struct{})
	go func() {
		_, ok := store.Current()
		assert.False(t, ok)
		assert.Equal(t, StateLoading, store.Status().State)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readers blocked behind load")
	}

	close(resolver.release)
	wg.Wait()

	_, ok := store.Current()
	assert.True(t, ok)
}

func TestUnload(t *testing.T) {
	backend := testutil.NewFakeRuntime()
	store, dir := newStore(t, backend)

	require.NoError(t, store.Unload(context.Background()))
	assert.Empty(t, backend.Unloads)

	model, err := store.Load(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, store.Unload(context.Background()))
	assert.Equal(t, []string{model.Handle}, backend.Unloads)
	_, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, StateUnloaded, store.Status().State)
}
