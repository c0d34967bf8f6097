package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/summarize-server/internal/utils/pathutil"

	"github.com/cozy-creator/hf-hub/hub"
	"go.uber.org/zap"
)

// HubDownloader fetches a registry repository into the local hub cache.
type HubDownloader interface {
	Download(ctx context.Context, repoID string) error
	CacheDir() string
}

type hubDownloader struct {
	client *hub.Client
}

func NewHubDownloader() HubDownloader {
	return &hubDownloader{client: hub.DefaultClient()}
}

func (d *hubDownloader) CacheDir() string {
	return d.client.CacheDir
}

func (d *hubDownloader) Download(_ context.Context, repoID string) error {
	params := hub.DownloadParams{
		Repo: &hub.Repo{
			Id:       repoID,
			Type:     hub.ModelRepoType,
			Revision: hub.DefaultRevision,
		},
	}
	if _, err := d.client.Download(&params); err != nil {
		return err
	}
	return nil
}

type Resolver struct {
	hub       HubDownloader
	objects   ObjectStore
	modelsDir string
	logger    *zap.Logger
}

type ResolverOption func(*Resolver)

func WithHub(h HubDownloader) ResolverOption {
	return func(r *Resolver) {
		r.hub = h
	}
}

func WithObjectStore(o ObjectStore) ResolverOption {
	return func(r *Resolver) {
		r.objects = o
	}
}

func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(modelsDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		modelsDir: modelsDir,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns a locator into a validated local artifact, downloading it
// into the cache first when it is remote.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Artifact, error) {
	src, err := ParseSource(locator)
	if err != nil {
		return nil, err
	}

	dir, err := r.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	art, err := Inspect(dir)
	if err != nil {
		return nil, err
	}
	art.Source = src

	r.logger.Info("Resolved model artifact",
		zap.String("locator", src.Raw),
		zap.String("dir", dir),
		zap.String("architecture", art.Config.Architecture()),
		zap.String("fingerprint", art.Fingerprint),
	)
	return art, nil
}

func (r *Resolver) fetch(ctx context.Context, src *Source) (string, error) {
	switch src.Type {
	case SourceTypeFile:
		dir, err := pathutil.ExpandPath(src.Location)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnresolvable, err)
		}
		return filepath.Abs(dir)
	case SourceTypeHuggingface:
		return r.fetchHub(ctx, src.Location)
	case SourceTypeS3:
		return r.fetchS3(ctx, src.Location)
	default:
		return "", fmt.Errorf("%w: unsupported source type %s", ErrUnresolvable, src.Type)
	}
}

func (r *Resolver) fetchHub(ctx context.Context, repoID string) (string, error) {
	if r.hub == nil {
		return "", fmt.Errorf("%w: no model hub configured for %q", ErrUnresolvable, repoID)
	}

	if dir, ok := snapshotDir(r.hub.CacheDir(), repoID); ok {
		r.logger.Debug("Model already in hub cache", zap.String("repo_id", repoID), zap.String("dir", dir))
		return dir, nil
	}

	r.logger.Info("Downloading from HuggingFace", zap.String("repo_id", repoID))
	if err := r.hub.Download(ctx, repoID); err != nil {
		return "", fmt.Errorf("%w: failed to download %q: %w", ErrUnresolvable, repoID, err)
	}

	dir, ok := snapshotDir(r.hub.CacheDir(), repoID)
	if !ok {
		return "", fmt.Errorf("%w: %q missing from hub cache after download", ErrUnresolvable, repoID)
	}
	return dir, nil
}

func (r *Resolver) fetchS3(ctx context.Context, location string) (string, error) {
	if r.objects == nil {
		return "", fmt.Errorf("%w: no object store configured for s3://%s", ErrUnresolvable, location)
	}

	bucket, prefix, err := splitS3Location(location)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(r.modelsDir, cacheFolderName(bucket, prefix))
	if complete(dest) {
		return dest, nil
	}

	if err := downloadPrefix(ctx, r.objects, bucket, prefix, dest, r.logger); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	return dest, nil
}

// repoFolderName converts "org/repo" to "models--org--repo".
func repoFolderName(repoID string) string {
	parts := append([]string{"models"}, strings.Split(repoID, "/")...)
	return strings.Join(parts, "--")
}

func snapshotDir(cacheDir, repoID string) (string, bool) {
	storage := filepath.Join(cacheDir, repoFolderName(repoID))

	commit, err := os.ReadFile(filepath.Join(storage, "refs", "main"))
	if err != nil {
		return "", false
	}

	dir := filepath.Join(storage, "snapshots", strings.TrimSpace(string(commit)))
	if !pathutil.Exists(dir) || !pathutil.Exists(filepath.Join(dir, ConfigFile)) {
		return "", false
	}
	return dir, true
}

func cacheFolderName(bucket, prefix string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + prefix))
	name := strings.ReplaceAll(strings.Trim(prefix, "/"), "/", "-")
	if name == "" {
		name = bucket
	}
	return fmt.Sprintf("s3--%s--%s", name, hex.EncodeToString(sum[:])[:8])
}
