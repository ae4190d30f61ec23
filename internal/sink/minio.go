package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// objectStore is the part of *minio.Client the sink uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
}

// MinioSink uploads <bucket>/<prefix>/<key>/thumb_NNN.jpg and the manifest.
type MinioSink struct {
	client objectStore
	bucket string
	prefix string
}

// NewMinioSink connects to MinIO and creates the bucket when missing.
func NewMinioSink(ctx context.Context, cfg Config) (*MinioSink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio sink needs a bucket")
	}
	client, err := miniogo.New(cfg.MinioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := &MinioSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinioSink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	base := path.Join(s.prefix, safeKey(m.Key))
	names := describe(m, thumbs)

	for i, th := range thumbs {
		if err := s.put(ctx, path.Join(base, names[i]), th.Image.Data, th.Image.ContentType); err != nil {
			return fmt.Errorf("upload thumbnail %d: %w", th.Index, err)
		}
	}

	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := s.put(ctx, path.Join(base, ManifestName), data, "application/json"); err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}
	return nil
}

func (s *MinioSink) put(ctx context.Context, object string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
