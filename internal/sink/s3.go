package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// S3Sink uploads s3://<bucket>/<prefix>/<key>/thumb_NNN.jpg and the manifest.
type S3Sink struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

func NewS3Sink(cfg Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 sink needs a bucket")
	}
	awsCfg := &aws.Config{}
	if cfg.S3Region != "" {
		awsCfg.Region = aws.String(cfg.S3Region)
	}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3SinkWithUploader(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

func NewS3SinkWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{uploader: uploader, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
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

func (s *S3Sink) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}
