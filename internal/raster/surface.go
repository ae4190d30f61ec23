package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
)

const (
	ContentTypeJPEG = "image/jpeg"
	// DefaultQuality matches a 0.7 browser JPEG export.
	DefaultQuality = 70
)

var (
	ErrNoFrame     = errors.New("decoder has no current frame")
	ErrNoFrameData = errors.New("decoder does not expose frames")
	ErrClosed      = errors.New("surface is closed")
)

// FrameSource is implemented by decoders that can hand out their current
// frame.
type FrameSource interface {
	CurrentFrame() image.Image
}

// Surface scales the decoder's current frame and encodes it as JPEG.
type Surface struct {
	Quality int
	Filter  imaging.ResampleFilter

	buf    *bytes.Buffer
	closed bool
}

func NewSurface() *Surface {
	return &Surface{
		Quality: DefaultQuality,
		Filter:  imaging.Lanczos,
		buf:     new(bytes.Buffer),
	}
}

func (s *Surface) Snapshot(dec sequencer.Decoder, width, height int) (sequencer.Image, error) {
	if s.closed {
		return sequencer.Image{}, ErrClosed
	}
	src, ok := dec.(FrameSource)
	if !ok {
		return sequencer.Image{}, ErrNoFrameData
	}
	frame := src.CurrentFrame()
	if frame == nil {
		return sequencer.Image{}, ErrNoFrame
	}
	if width <= 0 || height <= 0 {
		return sequencer.Image{}, fmt.Errorf("invalid snapshot size %dx%d", width, height)
	}

	var img image.Image = frame
	if b := frame.Bounds(); b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(frame, width, height, s.Filter)
	}

	s.buf.Reset()
	if err := imaging.Encode(s.buf, img, imaging.JPEG, imaging.JPEGQuality(s.Quality)); err != nil {
		return sequencer.Image{}, fmt.Errorf("encode jpeg: %w", err)
	}
	data := make([]byte, s.buf.Len())
	copy(data, s.buf.Bytes())
	return sequencer.Image{Data: data, ContentType: ContentTypeJPEG}, nil
}

func (s *Surface) Close() error {
	s.closed = true
	s.buf = nil
	return nil
}

var _ sequencer.Surface = (*Surface)(nil)
