package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/utils/pathutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

// completeMarker is written once every object of a prefix has been fetched.
const completeMarker = ".complete"

type Object struct {
	Key  string
	Size int64
}

type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type S3ObjectStore struct {
	client *s3.Client
}

func NewS3ObjectStore(ctx context.Context, cfg *config.S3Config) (*S3ObjectStore, error) {
	opts := []func(*awsConfig.LoadOptions) error{}
	if cfg != nil && cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}
	if cfg != nil && cfg.AccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg != nil && cfg.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointUrl)
			o.UsePathStyle = true
		}
	})

	return &S3ObjectStore{client: client}, nil
}

func (s *S3ObjectStore) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix + "/")
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}

	return objects, nil
}

func (s *S3ObjectStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func complete(dir string) bool {
	return pathutil.Exists(filepath.Join(dir, completeMarker))
}

func downloadPrefix(ctx context.Context, store ObjectStore, bucket, prefix, dest string, logger *zap.Logger) error {
	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects under s3://%s/%s", bucket, prefix)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	progress := mpb.NewWithContext(ctx,
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
		mpb.WithOutput(progressOutput),
	)

	for _, obj := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if strings.Contains(rel, "..") {
			return fmt.Errorf("refusing object key outside prefix: %s", obj.Key)
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))
		logger.Info("Downloading artifact object", zap.String("key", obj.Key), zap.Int64("size", obj.Size))

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retryInterval
		b.MaxElapsedTime = 5 * time.Minute
		err := backoff.Retry(func() error {
			return downloadObject(ctx, store, progress, bucket, obj, target)
		}, backoff.WithContext(b, ctx))
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", obj.Key, err)
		}
	}
	progress.Wait()

	return os.WriteFile(filepath.Join(dest, completeMarker), nil, 0644)
}

func downloadObject(ctx context.Context, store ObjectStore, progress *mpb.Progress, bucket string, obj Object, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return backoff.Permanent(err)
	}

	body, err := store.Get(ctx, bucket, obj.Key)
	if err != nil {
		return err
	}
	defer body.Close()

	bar := progress.AddBar(obj.Size,
		mpb.PrependDecorators(
			decor.Name(filepath.Base(target), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		bar.Abort(true)
		return backoff.Permanent(err)
	}

	reader := bar.ProxyReader(body)
	defer reader.Close()

	n, err := io.Copy(f, reader)
	f.Close()
	if err != nil {
		bar.Abort(true)
		return err
	}
	if obj.Size > 0 && n != obj.Size {
		bar.Abort(true)
		return fmt.Errorf("size mismatch: expected %d, got %d", obj.Size, n)
	}
	bar.SetTotal(n, true)

	return os.Rename(tmp, target)
}

var (
	progressOutput io.Writer = os.Stderr
	retryInterval            = time.Second
)
