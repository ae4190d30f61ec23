package ffmpeg

import (
	"bytes"
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/raster"
	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

func TestSequencerOverDecoderAndSurface(t *testing.T) {
	var (
		mu      sync.Mutex
		grabbed []float64
	)
	probe := `{"streams":[{"codec_type":"video","codec_name":"h264","width":192,"height":108,"duration":"20"}],"format":{}}`
	d := newTestDecoder(Config{},
		func(string) (string, error) { return probe, nil },
		func(_ context.Context, _ string, at float64, _ string) ([]byte, error) {
			mu.Lock()
			grabbed = append(grabbed, at)
			mu.Unlock()
			var buf bytes.Buffer
			err := imaging.Encode(&buf, imaging.New(192, 108, color.NRGBA{G: 255, A: 255}), imaging.PNG)
			return buf.Bytes(), err
		},
	)

	opts := sequencer.Options{MaxWidth: 96, MaxHeight: 96, Count: 4}
	seq, err := sequencer.New(opts, d, raster.NewSurface(), zap.NewNop())
	require.NoError(t, err)

	var captured []sequencer.Image
	seq.OnCapture(func(img sequencer.Image) { captured = append(captured, img) })

	seq.Start(context.Background(), types.Clip{Key: "clip", Path: "clip.mp4"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := seq.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, sequencer.StatusCompleted, status)

	assert.Equal(t, []float64{2, 6, 10, 14}, grabbed)
	require.Len(t, captured, 4)
	for _, img := range captured {
		assert.Equal(t, raster.ContentTypeJPEG, img.ContentType)
		decoded, err := imaging.Decode(bytes.NewReader(img.Data))
		require.NoError(t, err)
		assert.Equal(t, 96, decoded.Bounds().Dx())
		assert.Equal(t, 54, decoded.Bounds().Dy())
	}

	// the decoder was released by the sequencer
	assert.Nil(t, d.CurrentFrame())
}
