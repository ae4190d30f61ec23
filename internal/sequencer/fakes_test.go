package sequencer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/events"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// fakeDecoder answers every request from its own goroutine, the way a real
// media decoder reports back.
type fakeDecoder struct {
	mu       sync.Mutex
	width    int
	height   int
	duration float64
	loadErr  error
	hold     bool // leave seeks pending until completeSeek

	cb     Callbacks
	seeks  []float64
	plays  int
	pauses int
	closes int
}

func (d *fakeDecoder) Load(_ types.Clip, cb Callbacks) {
	d.mu.Lock()
	d.cb = cb
	err := d.loadErr
	d.mu.Unlock()
	go func() {
		if err != nil {
			cb.Error(err)
			return
		}
		cb.MetadataReady()
	}()
}

func (d *fakeDecoder) Play() {
	d.mu.Lock()
	d.plays++
	cb := d.cb
	d.mu.Unlock()
	go cb.Playing()
}

func (d *fakeDecoder) Pause() {
	d.mu.Lock()
	d.pauses++
	d.mu.Unlock()
}

func (d *fakeDecoder) SeekTo(seconds float64) {
	d.mu.Lock()
	d.seeks = append(d.seeks, seconds)
	cb, hold := d.cb, d.hold
	d.mu.Unlock()
	if !hold {
		go cb.SeekComplete()
	}
}

func (d *fakeDecoder) callbacks() Callbacks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cb
}

func (d *fakeDecoder) completeSeek() {
	d.callbacks().SeekComplete()
}

func (d *fakeDecoder) IntrinsicWidth() int  { return d.width }
func (d *fakeDecoder) IntrinsicHeight() int { return d.height }
func (d *fakeDecoder) Duration() float64    { return d.duration }

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	return nil
}

func (d *fakeDecoder) seekLog() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.seeks...)
}

func (d *fakeDecoder) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type fakeSurface struct {
	mu     sync.Mutex
	err    error
	shots  int
	closes int
}

func (s *fakeSurface) Snapshot(_ Decoder, width, height int) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Image{}, s.err
	}
	s.shots++
	return Image{
		Data:        []byte(fmt.Sprintf("%dx%d#%d", width, height, s.shots)),
		ContentType: "image/jpeg",
	}, nil
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// recorder collects event names seen by a catch-all handler.
type recorder struct {
	mu    sync.Mutex
	names []events.Name
}

func (r *recorder) handler(ev events.Event) bool {
	r.mu.Lock()
	r.names = append(r.names, ev.Name)
	r.mu.Unlock()
	return true
}

func (r *recorder) seen() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Name(nil), r.names...)
}

func (r *recorder) count(name events.Name) int {
	n := 0
	for _, got := range r.seen() {
		if got == name {
			n++
		}
	}
	return n
}

// steppingClock advances by step on every reading.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func newTestSequencer(t *testing.T, opts Options, dec *fakeDecoder, surf *fakeSurface) (*Sequencer, *recorder) {
	t.Helper()
	s, err := New(opts, dec, surf, zap.NewNop())
	require.NoError(t, err)
	s.now = steppingClock(10 * time.Millisecond)
	rec := &recorder{}
	s.OnAny(rec.handler)
	return s, rec
}
