package sink

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// TarSink writes one <root>/<key>.tar per clip. Entries live under a
// <key>/ directory so several archives can be concatenated into a shard.
type TarSink struct {
	root string
}

func NewTarSink(root string) *TarSink {
	return &TarSink{root: root}
}

func (s *TarSink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	key := safeKey(m.Key)
	tarPath := filepath.Join(s.root, key+".tar")

	tarFile, err := os.Create(tarPath)
	if err != nil {
		return fmt.Errorf("error creating tar file: %w", err)
	}
	if err := writeTar(ctx, tarFile, key, m, thumbs); err != nil {
		tarFile.Close()
		os.Remove(tarPath)
		return err
	}
	if err := tarFile.Close(); err != nil {
		return fmt.Errorf("error closing tar file: %w", err)
	}
	return nil
}

func writeTar(ctx context.Context, f *os.File, key string, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	tw := tar.NewWriter(f)
	modTime := m.CreatedAt
	if modTime.IsZero() {
		modTime = time.Now()
	}

	add := func(name string, data []byte) error {
		header := &tar.Header{
			Name:    path.Join(key, name),
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("error writing tar header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("error writing tar data: %w", err)
		}
		return nil
	}

	names := describe(m, thumbs)
	for i, th := range thumbs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := add(names[i], th.Image.Data); err != nil {
			return fmt.Errorf("thumbnail %d: %w", th.Index, err)
		}
	}

	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := add(ManifestName, data); err != nil {
		return err
	}
	return tw.Close()
}
