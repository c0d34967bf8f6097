package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/summarize-server/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	progressOutput = io.Discard
	retryInterval = time.Millisecond
}

type fakeHub struct {
	cacheDir  string
	downloads []string
	err       error
}

func (h *fakeHub) CacheDir() string { return h.cacheDir }

func (h *fakeHub) Download(_ context.Context, repoID string) error {
	h.downloads = append(h.downloads, repoID)
	if h.err != nil {
		return h.err
	}
	return nil
}

// seed lays a repo out the way the hub cache does.
func seedHub(t *testing.T, cacheDir, repoID string) string {
	t.Helper()

	storage := filepath.Join(cacheDir, repoFolderName(repoID))
	snapshot := filepath.Join(storage, "snapshots", "abc123")
	testutil.WriteArtifactTo(t, snapshot, testutil.ArtifactOptions{})
	require.NoError(t, os.MkdirAll(filepath.Join(storage, "refs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(storage, "refs", "main"), []byte("abc123\n"), 0644))
	return snapshot
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	failOn  string
	failed  bool
}

func (o *fakeObjects) List(_ context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object
	for key, data := range o.objects {
		if strings.HasPrefix(key, prefix+"/") {
			out = append(out, Object{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o *fakeObjects) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gets++
	if key == o.failOn && !o.failed {
		o.failed = true
		return nil, errors.New("connection reset")
	}
	return io.NopCloser(bytes.NewReader(o.objects[key])), nil
}

func artifactObjects(t *testing.T, prefix string) map[string][]byte {
	t.Helper()

	dir := testutil.WriteArtifact(t)
	objects := map[string][]byte{}
	for _, name := range []string{ConfigFile, TokenizerFile, "model.safetensors"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		objects[prefix+"/"+name] = data
	}
	return objects
}

func TestResolveLocalDirectory(t *testing.T) {
	dir := testutil.WriteArtifact(t)
	r := NewResolver(t.TempDir())

	art, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, art.Dir)
	assert.Equal(t, SourceTypeFile, art.Source.Type)

	art, err = r.Resolve(context.Background(), "file:"+dir)
	require.NoError(t, err)
	assert.Equal(t, dir, art.Dir)
}

func TestResolveMissingLocalDirectory(t *testing.T) {
	r := NewResolver(t.TempDir())

	_, err := r.Resolve(context.Background(), "/does/not/exist")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveHubUsesCache(t *testing.T) {
	hub := &fakeHub{cacheDir: t.TempDir()}
	snapshot := seedHub(t, hub.cacheDir, "google/flan-t5-small")
	r := NewResolver(t.TempDir(), WithHub(hub))

	art, err := r.Resolve(context.Background(), "hf:google/flan-t5-small")
	require.NoError(t, err)
	assert.Equal(t, snapshot, art.Dir)
	assert.Empty(t, hub.downloads)
}

func TestResolveHubDownloadsWhenMissing(t *testing.T) {
	hub := &fakeHub{cacheDir: t.TempDir()}
	r := NewResolver(t.TempDir(), WithHub(hub))

	_, err := r.Resolve(context.Background(), "t5-small")
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, []string{"t5-small"}, hub.downloads)

	hub.err = errors.New("404 not found")
	_, err = r.Resolve(context.Background(), "org/missing")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveHubWithoutClient(t *testing.T) {
	r := NewResolver(t.TempDir())

	_, err := r.Resolve(context.Background(), "t5-base")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveS3DownloadsOnce(t *testing.T) {
	objects := &fakeObjects{
		objects: artifactObjects(t, "models/t5"),
		failOn:  "models/t5/model.safetensors",
	}
	modelsDir := t.TempDir()
	r := NewResolver(modelsDir, WithObjectStore(objects))

	art, err := r.Resolve(context.Background(), "s3://bucket/models/t5")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(art.Dir, modelsDir))
	assert.Equal(t, SourceTypeS3, art.Source.Type)
	assert.Equal(t, 4, objects.gets, "failed object is retried")

	_, err = r.Resolve(context.Background(), "s3://bucket/models/t5")
	require.NoError(t, err)
	assert.Equal(t, 4, objects.gets, "cached download is reused")
}

func TestResolveS3EmptyPrefix(t *testing.T) {
	r := NewResolver(t.TempDir(), WithObjectStore(&fakeObjects{objects: map[string][]byte{}}))

	_, err := r.Resolve(context.Background(), "s3://bucket/nothing")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestRepoFolderName(t *testing.T) {
	assert.Equal(t, "models--t5-base", repoFolderName("t5-base"))
	assert.Equal(t, "models--google--flan-t5-base", repoFolderName("google/flan-t5-base"))
}
