package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/melody-ding/go-vidthumbs/internal/numpy"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// NPYSink decodes the thumbnails and stacks them into <root>/<key>.npy with
// shape (N, H, W, 3), next to a <key>.json manifest.
type NPYSink struct {
	root string
}

func NewNPYSink(root string) *NPYSink {
	return &NPYSink{root: root}
}

func (s *NPYSink) Write(ctx context.Context, m *types.ThumbnailManifest, thumbs []Thumbnail) error {
	if len(thumbs) == 0 {
		return errors.New("npy sink needs at least one thumbnail")
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	key := safeKey(m.Key)
	npyPath := filepath.Join(s.root, key+".npy")

	describe(m, thumbs)
	for i := range m.Thumbnails {
		m.Thumbnails[i].Name = fmt.Sprintf("%s.npy#%d", key, i)
	}

	f, err := os.Create(npyPath)
	if err != nil {
		return fmt.Errorf("error creating npy file: %w", err)
	}
	if err := writeStack(ctx, f, thumbs); err != nil {
		f.Close()
		os.Remove(npyPath)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing npy file: %w", err)
	}

	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.root, key+".json"), data, 0644)
}

func writeStack(ctx context.Context, f *os.File, thumbs []Thumbnail) error {
	bw := bufio.NewWriter(f)
	w := numpy.NewWriter(bw)

	var width, height int
	for i, th := range thumbs {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := imaging.Decode(bytes.NewReader(th.Image.Data))
		if err != nil {
			return fmt.Errorf("decode thumbnail %d: %w", th.Index, err)
		}
		if i == 0 {
			width, height = img.Bounds().Dx(), img.Bounds().Dy()
			if err := w.WriteHeader([]int{len(thumbs), height, width, 3}); err != nil {
				return err
			}
		} else if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			img = imaging.Resize(img, width, height, imaging.Lanczos)
		}
		if err := w.WriteFrame(rgbBytes(img)); err != nil {
			return fmt.Errorf("thumbnail %d: %w", th.Index, err)
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}
	return bw.Flush()
}

// rgbBytes drops the alpha channel of the NRGBA copy of img.
func rgbBytes(img image.Image) []byte {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := 0; y < b.Dy(); y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}
