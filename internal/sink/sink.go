package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

var ErrUnknownSink = errors.New("unknown sink")

const ManifestName = "manifest.json"

// Thumbnail is one captured image ready to be stored.
type Thumbnail struct {
	Index     int
	Timestamp float64
	Image     sequencer.Image
}

// Sink stores the thumbnails of one clip together with its manifest.
// Write fills in the manifest entry names before storing it.
type Sink interface {
	Write(ctx context.Context, manifest *types.ThumbnailManifest, thumbs []Thumbnail) error
}

// Config selects and configures a sink.
type Config struct {
	Kind      string
	OutputDir string

	Bucket string
	Prefix string

	S3Region   string
	S3Endpoint string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
}

// New builds the sink named by cfg.Kind: dir, tar, zip, npy, s3 or minio.
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "dir":
		return NewDirSink(cfg.OutputDir), nil
	case "tar":
		return NewTarSink(cfg.OutputDir), nil
	case "zip":
		return NewZipSink(cfg.OutputDir), nil
	case "npy":
		return NewNPYSink(cfg.OutputDir), nil
	case "s3":
		return NewS3Sink(cfg)
	case "minio":
		return NewMinioSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Kind)
	}
}

// ThumbName is the stored file name of the capture with the given index.
func ThumbName(index int, contentType string) string {
	return fmt.Sprintf("thumb_%03d%s", index, extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// safeKey keeps a clip key from escaping the output root.
func safeKey(key string) string {
	key = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" || key == "." {
		return "clip"
	}
	return strings.ReplaceAll(key, "/", "_")
}

// describe names every thumbnail and records it in the manifest.
func describe(m *types.ThumbnailManifest, thumbs []Thumbnail) []string {
	names := make([]string, len(thumbs))
	m.Thumbnails = m.Thumbnails[:0]
	for i, th := range thumbs {
		names[i] = ThumbName(th.Index, th.Image.ContentType)
		m.Thumbnails = append(m.Thumbnails, types.ThumbnailInfo{
			Index:       th.Index,
			Timestamp:   th.Timestamp,
			Name:        names[i],
			ContentType: th.Image.ContentType,
			Bytes:       len(th.Image.Data),
		})
	}
	m.ThumbnailCount = len(thumbs)
	return names
}

func encodeManifest(m *types.ThumbnailManifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}
