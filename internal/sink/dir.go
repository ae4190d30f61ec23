package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// DirSink writes <root>/<key>/thumb_NNN.jpg and <root>/<key>/manifest.json.
type DirSink struct {
	root string
}

func NewDirSink(root string) *DirSink {
	return &DirSink{root: root}
}

func (s *DirSink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	dir := filepath.Join(s.root, safeKey(m.Key))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	names := describe(m, thumbs)
	for i, th := range thumbs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, names[i]), th.Image.Data, 0644); err != nil {
			return fmt.Errorf("error writing thumbnail %d: %w", th.Index, err)
		}
	}

	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}
