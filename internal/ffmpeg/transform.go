package ffmpeg

import (
	"fmt"
	"strings"
)

// Transform is one ffmpeg video filter applied to a grabbed frame
type Transform interface {
	// FilterArgs returns the filter expressions for this transformation
	FilterArgs() []string
}

// FormatTransform converts the frame to a pixel format
type FormatTransform struct {
	PixFmt string
}

func (t FormatTransform) FilterArgs() []string {
	return []string{fmt.Sprintf("format=%s", t.PixFmt)}
}

// ScaleTransform shrinks frames so neither side exceeds the bounds,
// keeping the aspect ratio. A zero bound leaves that side free.
type ScaleTransform struct {
	MaxWidth  int
	MaxHeight int
}

func (t ScaleTransform) FilterArgs() []string {
	if t.MaxWidth <= 0 && t.MaxHeight <= 0 {
		return nil
	}
	w, h := "iw", "ih"
	if t.MaxWidth > 0 {
		w = fmt.Sprintf("min(iw\\,%d)", t.MaxWidth)
	}
	if t.MaxHeight > 0 {
		h = fmt.Sprintf("min(ih\\,%d)", t.MaxHeight)
	}
	return []string{fmt.Sprintf("scale=w=%s:h=%s:force_original_aspect_ratio=decrease", w, h)}
}

// ComposeTransforms joins the filters into one -vf chain
func ComposeTransforms(transforms ...Transform) string {
	var args []string
	for _, t := range transforms {
		args = append(args, t.FilterArgs()...)
	}
	return strings.Join(args, ",")
}
