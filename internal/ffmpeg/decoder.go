package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

var ErrNoFrame = errors.New("ffmpeg returned no frame")

// Config tunes the ffmpeg decoder.
type Config struct {
	// TempDir receives in-memory clips; empty means os.TempDir.
	TempDir string
	// MaxDecodeWidth and MaxDecodeHeight bound grabbed frames before they
	// reach the raster surface. Zero keeps the intrinsic size.
	MaxDecodeWidth  int
	MaxDecodeHeight int
	// GrabTimeout limits one seek/grab round trip. Zero disables it.
	GrabTimeout time.Duration
}

type (
	probeFunc func(path string) (string, error)
	grabFunc  func(ctx context.Context, path string, at float64, vf string) ([]byte, error)
)

// Decoder implements sequencer.Decoder with ffprobe for metadata and one
// ffmpeg frame grab per seek. Every request is served on its own goroutine
// and reported through the callbacks given to Load.
type Decoder struct {
	cfg    Config
	logger *zap.Logger
	probe  probeFunc
	grab   grabFunc
	vf     string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cb       sequencer.Callbacks
	key      string
	path     string
	tempPath string
	meta     Metadata
	frame    image.Image
	position float64
	playing  bool
	closed   bool
}

func NewDecoder(cfg Config, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Decoder{
		cfg:    cfg,
		logger: logger,
		probe:  probeFile,
		grab:   grabFrame,
		vf: ComposeTransforms(
			ScaleTransform{MaxWidth: cfg.MaxDecodeWidth, MaxHeight: cfg.MaxDecodeHeight},
			FormatTransform{PixFmt: "rgb24"},
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load probes the clip. In-memory clips are spooled to a temp file first.
func (d *Decoder) Load(src types.Clip, cb sequencer.Callbacks) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.cb = cb
	d.key = src.Key
	d.mu.Unlock()

	go func() {
		path := src.Path
		if src.InMemory() {
			p, err := d.spool(src)
			if err != nil {
				d.fireError(fmt.Errorf("spool %s: %w", src.Key, err))
				return
			}
			path = p
		}
		if path == "" {
			d.fireError(fmt.Errorf("clip %s has neither data nor path", src.Key))
			return
		}

		out, err := d.probe(path)
		if err != nil {
			d.fireError(fmt.Errorf("ffprobe %s: %w", src.Key, err))
			return
		}
		meta, err := ParseProbe([]byte(out))
		if err != nil {
			d.fireError(fmt.Errorf("ffprobe %s: %w", src.Key, err))
			return
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		d.path = path
		d.meta = meta
		ready := d.cb.MetadataReady
		d.mu.Unlock()

		d.logger.Debug("video probed",
			zap.String("key", src.Key),
			zap.Int("width", meta.Width),
			zap.Int("height", meta.Height),
			zap.Float64("duration", meta.Duration),
			zap.String("codec", meta.Codec),
		)
		ready()
	}()
}

// spool writes the clip bytes to a temp file owned by the decoder.
func (d *Decoder) spool(src types.Clip) (string, error) {
	f, err := os.CreateTemp(d.cfg.TempDir, "govidthumbs-*"+filepath.Ext(src.Path))
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(src.RawData); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		os.Remove(name)
		return "", context.Canceled
	}
	d.tempPath = name
	return name, nil
}

// Play has nothing to start in ffmpeg; it acknowledges so the sequencer can
// begin seeking.
func (d *Decoder) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.playing = true
	go d.cb.Playing()
}

func (d *Decoder) Pause() {
	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
}

// SeekTo grabs the frame at seconds and fires SeekComplete once it is
// decoded and available through CurrentFrame.
func (d *Decoder) SeekTo(seconds float64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	path := d.path
	d.mu.Unlock()

	go func() {
		ctx := d.ctx
		if d.cfg.GrabTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.cfg.GrabTimeout)
			defer cancel()
		}

		start := time.Now()
		data, err := d.grab(ctx, path, seconds, d.vf)
		if d.ctx.Err() != nil {
			return
		}
		if err != nil {
			d.fireError(fmt.Errorf("grab frame at %vs: %w", seconds, err))
			return
		}
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			d.fireError(fmt.Errorf("decode frame at %vs: %w", seconds, err))
			return
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		d.frame = img
		d.position = seconds
		done := d.cb.SeekComplete
		d.mu.Unlock()

		d.logger.Debug("frame grabbed",
			zap.String("key", d.key),
			zap.Float64("at", seconds),
			zap.Duration("took", time.Since(start)),
		)
		done()
	}()
}

// CurrentFrame returns the frame of the last completed seek.
func (d *Decoder) CurrentFrame() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// Position returns the timestamp of the last completed seek.
func (d *Decoder) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

func (d *Decoder) IntrinsicWidth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Width
}

func (d *Decoder) IntrinsicHeight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Height
}

func (d *Decoder) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Duration
}

// Close stops pending grabs and removes the spooled file. It does not wait
// for ffmpeg to exit.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.cancel()
	d.frame = nil
	if d.tempPath != "" {
		if err := os.Remove(d.tempPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove temp clip: %w", err)
		}
		d.tempPath = ""
	}
	return nil
}

func (d *Decoder) fireError(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	onErr := d.cb.Error
	d.mu.Unlock()
	d.logger.Debug("decoder error", zap.String("key", d.key), zap.Error(err))
	onErr(err)
}

func probeFile(path string) (string, error) {
	return ffmpeg.Probe(path)
}

// grabFrame runs `ffmpeg -ss at -i path -vframes 1 -f image2 -vcodec png pipe:`
// and returns the PNG bytes.
func grabFrame(ctx context.Context, path string, at float64, vf string) ([]byte, error) {
	out := ffmpeg.KwArgs{"vframes": 1, "format": "image2", "vcodec": "png"}
	if vf != "" {
		out["vf"] = vf
	}
	args := ffmpeg.Input(path, ffmpeg.KwArgs{
		"loglevel": "error",
		"ss":       strconv.FormatFloat(at, 'f', -1, 64),
	}).
		Output("pipe:", out).
		GetArgs()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}
	return stdout.Bytes(), nil
}

var _ sequencer.Decoder = (*Decoder)(nil)
