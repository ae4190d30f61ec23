package sink

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// ZipSink writes one <root>/<key>.zip per clip with a flat layout.
type ZipSink struct {
	root string
}

func NewZipSink(root string) *ZipSink {
	return &ZipSink{root: root}
}

func (s *ZipSink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	zipPath := filepath.Join(s.root, safeKey(m.Key)+".zip")

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	if err := writeZip(ctx, zipFile, m, thumbs); err != nil {
		zipFile.Close()
		os.Remove(zipPath)
		return err
	}
	return zipFile.Close()
}

func writeZip(ctx context.Context, f *os.File, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	zw := zip.NewWriter(f)

	add := func(name string, data []byte, method uint16) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   method,
			Modified: m.CreatedAt,
		})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	names := describe(m, thumbs)
	for i, th := range thumbs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// JPEG does not shrink under deflate
		if err := add(names[i], th.Image.Data, zip.Store); err != nil {
			return fmt.Errorf("add %s to zip: %w", names[i], err)
		}
	}

	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := add(ManifestName, data, zip.Deflate); err != nil {
		return fmt.Errorf("add manifest to zip: %w", err)
	}
	return zw.Close()
}
