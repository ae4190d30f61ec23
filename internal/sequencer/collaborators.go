package sequencer

import (
	"encoding/base64"
	"encoding/json"

	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// Callbacks are fired by a Decoder, possibly from its own goroutines.
type Callbacks struct {
	MetadataReady func()
	Playing       func()
	SeekComplete  func()
	Error         func(error)
}

// Decoder loads a video, reports its intrinsic size and duration and seeks
// to timestamps. Load, Play and SeekTo return immediately; their outcome
// arrives through Callbacks. Calls after Close are no-ops.
type Decoder interface {
	Load(src types.Clip, cb Callbacks)
	Play()
	Pause()
	SeekTo(seconds float64)
	IntrinsicWidth() int
	IntrinsicHeight() int
	Duration() float64
	Close() error
}

// Surface rasterizes the decoder's current frame into an encoded image.
type Surface interface {
	Snapshot(dec Decoder, width, height int) (Image, error)
	Close() error
}

// Image is one encoded thumbnail.
type Image struct {
	Data        []byte
	ContentType string
}

// DataURI renders the image as a base64 data URI.
func (i Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.DataURI())
}
