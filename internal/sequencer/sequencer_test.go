package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/events"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

var testClip = types.Clip{Key: "clip", Path: "clip.mp4"}

func waitDone(t *testing.T, s *Sequencer) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.Wait(ctx)
	require.NoError(t, err, "session did not reach a terminal state")
	return st
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "zero count", opts: Options{MaxWidth: 10, MaxHeight: 10, Count: 0}},
		{name: "negative width", opts: Options{MaxWidth: -1, MaxHeight: 10, Count: 1}},
		{name: "zero height", opts: Options{MaxWidth: 10, MaxHeight: 0, Count: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts, &fakeDecoder{}, &fakeSurface{}, nil)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	_, err := New(DefaultOptions(), nil, &fakeSurface{}, nil)
	assert.Error(t, err)
}

func TestSequencerCompletes(t *testing.T) {
	dec := &fakeDecoder{width: 1920, height: 1080, duration: 10}
	surf := &fakeSurface{}
	opts := Options{MaxWidth: 1280, MaxHeight: 1280, Count: 3}
	s, rec := newTestSequencer(t, opts, dec, surf)

	var (
		captured []Image
		complete []Image
		detail   Detail
	)
	s.OnCapture(func(img Image) { captured = append(captured, img) })
	s.OnComplete(func(imgs []Image) { complete = imgs })
	s.OnCompleteDetail(func(d Detail) { detail = d })

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))

	assert.Equal(t, []float64{1, 3, 6}, dec.seekLog())
	assert.Equal(t, []events.Name{
		events.BeforeCapture,
		events.StartCapture,
		events.Capture, events.Capture, events.Capture,
		events.Complete,
		events.CompleteDetail,
	}, rec.seen())

	assert.Len(t, captured, 3)
	assert.Equal(t, captured, complete)
	assert.Equal(t, "1280x720#1", string(complete[0].Data))

	require.Len(t, detail.Thumbs, 3)
	for idx := 1; idx <= 3; idx++ {
		th, ok := detail.Thumbs[idx]
		require.True(t, ok, "missing thumb %d", idx)
		assert.Equal(t, idx, th.Index)
		assert.NotNil(t, th.Image)
		assert.Positive(t, th.ElapsedSinceLastCapture)
	}
	assert.Equal(t, Summary{
		ThumbnailCount: 3,
		VideoDuration:  10,
		VideoInterval:  2.5,
		ThumbWidth:     1280,
		ThumbHeight:    720,
		VideoStart:     1.25,
	}, detail.Details)
	assert.Positive(t, detail.TotalTime)

	sess := s.Session()
	assert.Equal(t, 3, sess.CompletedCount)
	assert.Equal(t, 3, sess.CurrentIndex)
	assert.Equal(t, 1, dec.closeCount())
	assert.Equal(t, 1, surf.closes)
	assert.Equal(t, 1, dec.plays)
	assert.Equal(t, 3, dec.pauses)
}

func TestSequencerPortraitSize(t *testing.T) {
	dec := &fakeDecoder{width: 1080, height: 1920, duration: 30}
	s, _ := newTestSequencer(t, DefaultOptions(), dec, &fakeSurface{})

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))

	sess := s.Session()
	assert.Equal(t, 720, sess.ThumbWidth)
	assert.Equal(t, 1280, sess.ThumbHeight)
	assert.Len(t, s.Records(), DefaultCount)
}

func TestSequencerUnsupportedBeforeMetadata(t *testing.T) {
	dec := &fakeDecoder{loadErr: errors.New("moov atom not found")}
	surf := &fakeSurface{}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, surf)

	unsupported := 0
	s.OnUnsupported(func() { unsupported++ })

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusUnsupported, waitDone(t, s))

	assert.Equal(t, 1, unsupported)
	assert.Zero(t, rec.count(events.StartCapture))
	assert.Zero(t, rec.count(events.Capture))
	assert.Zero(t, rec.count(events.Complete))
	assert.Equal(t, []events.Name{events.BeforeCapture, events.Unsupported}, rec.seen())
	assert.EqualError(t, s.Err(), "moov atom not found")
	assert.Equal(t, 1, dec.closeCount())
	assert.Equal(t, 1, surf.closes)
}

func TestSequencerInvalidMetadata(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 480, duration: 0}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, &fakeSurface{})

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusUnsupported, waitDone(t, s))

	assert.ErrorIs(t, s.Err(), ErrUnsupportedMedia)
	assert.Zero(t, rec.count(events.StartCapture))
	assert.Empty(t, dec.seekLog())
}

func TestSequencerSnapshotFailure(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 480, duration: 20}
	surf := &fakeSurface{err: errors.New("no frame")}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, surf)

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusUnsupported, waitDone(t, s))

	assert.ErrorIs(t, s.Err(), ErrUnsupportedMedia)
	assert.Equal(t, 1, rec.count(events.Unsupported))
	assert.Zero(t, rec.count(events.Capture))
	assert.Len(t, dec.seekLog(), 1)
}

func TestAbortFromCaptureHandler(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 60}
	s, rec := newTestSequencer(t, Options{MaxWidth: 320, MaxHeight: 320, Count: 5}, dec, &fakeSurface{})

	var aborted [][]Image
	s.OnCapture(func(Image) {
		s.Abort()
		s.Abort()
	})
	s.OnAborted(func(imgs []Image) { aborted = append(aborted, imgs) })

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusAborted, waitDone(t, s))

	require.Len(t, aborted, 1)
	assert.Len(t, aborted[0], 1)
	assert.Equal(t, 1, rec.count(events.Capture))
	assert.Zero(t, rec.count(events.Complete))
	assert.Len(t, dec.seekLog(), 1, "no seek after abort")
	assert.Equal(t, 1, dec.closeCount())

	captures := s.Captures()
	assert.Len(t, captures, 1)
	records := s.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Finalized())
}

func TestAbortDropsInFlightSeek(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 60, hold: true}
	surf := &fakeSurface{}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, surf)

	s.Start(context.Background(), testClip)
	require.Eventually(t, func() bool { return len(dec.seekLog()) == 1 }, time.Second, time.Millisecond)

	s.Abort()
	dec.completeSeek()
	require.Equal(t, StatusAborted, waitDone(t, s))

	// give a late callback time to run if it were not dropped
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count(events.Capture))
	assert.Zero(t, surf.shots)
	assert.Equal(t, 1, rec.count(events.Aborted))
	assert.Len(t, dec.seekLog(), 1)

	records := s.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Finalized())
}

func TestAbortAfterCompleteIsNoop(t *testing.T) {
	dec := &fakeDecoder{width: 100, height: 100, duration: 5}
	s, rec := newTestSequencer(t, Options{MaxWidth: 64, MaxHeight: 48, Count: 2}, dec, &fakeSurface{})

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))

	s.Abort()
	s.Abort()

	assert.Equal(t, StatusCompleted, s.Status())
	assert.Zero(t, rec.count(events.Aborted))
	assert.Equal(t, 1, rec.count(events.Complete))
	assert.Equal(t, 1, dec.closeCount())

	// square sources are forced to the configured box
	sess := s.Session()
	assert.Equal(t, 64, sess.ThumbWidth)
	assert.Equal(t, 48, sess.ThumbHeight)
}

func TestAbortOnFinalCaptureIsNoop(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 9}
	s, rec := newTestSequencer(t, Options{MaxWidth: 320, MaxHeight: 320, Count: 2}, dec, &fakeSurface{})

	captures := 0
	s.OnCapture(func(Image) {
		captures++
		if captures == 2 {
			s.Abort()
		}
	})

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))
	assert.Zero(t, rec.count(events.Aborted))
	assert.Equal(t, 1, rec.count(events.CompleteDetail))
}

func TestAbortBeforeStart(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 9}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, &fakeSurface{})

	s.Abort()
	s.Start(context.Background(), testClip)

	assert.Equal(t, StatusAborted, waitDone(t, s))
	assert.Equal(t, []events.Name{events.Aborted}, rec.seen())
	assert.Empty(t, dec.seekLog())
}

func TestAbortFromStartCaptureHandler(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 9}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, &fakeSurface{})
	s.OnStartCapture(func([]Image) { s.Abort() })

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusAborted, waitDone(t, s))

	assert.Zero(t, dec.plays)
	assert.Empty(t, dec.seekLog())
	assert.Equal(t, 1, rec.count(events.Aborted))
}

func TestContextCancelAborts(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 60, hold: true}
	s, rec := newTestSequencer(t, DefaultOptions(), dec, &fakeSurface{})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, testClip)
	require.Eventually(t, func() bool { return len(dec.seekLog()) == 1 }, time.Second, time.Millisecond)
	cancel()

	require.Equal(t, StatusAborted, waitDone(t, s))
	assert.Equal(t, 1, rec.count(events.Aborted))
}

func TestStartTwiceIsIgnored(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 9}
	s, rec := newTestSequencer(t, Options{MaxWidth: 320, MaxHeight: 320, Count: 1}, dec, &fakeSurface{})

	s.Start(context.Background(), testClip)
	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))

	assert.Equal(t, 1, rec.count(events.BeforeCapture))
	assert.Len(t, dec.seekLog(), 1)
}

func TestStrayCallbacksAreDropped(t *testing.T) {
	dec := &fakeDecoder{width: 640, height: 360, duration: 60, hold: true}
	s, rec := newTestSequencer(t, Options{MaxWidth: 320, MaxHeight: 320, Count: 2}, dec, &fakeSurface{})

	s.Start(context.Background(), testClip)
	require.Eventually(t, func() bool { return len(dec.seekLog()) == 1 }, time.Second, time.Millisecond)

	// duplicate play and metadata notifications must not start a second seek
	cb := dec.callbacks()
	cb.Playing()
	cb.MetadataReady()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, dec.seekLog(), 1)

	dec.completeSeek()
	require.Eventually(t, func() bool { return len(dec.seekLog()) == 2 }, time.Second, time.Millisecond)
	dec.completeSeek()
	require.Equal(t, StatusCompleted, waitDone(t, s))

	// a late error after completion changes nothing
	cb.Error(errors.New("late"))
	assert.Equal(t, StatusCompleted, s.Status())
	assert.Zero(t, rec.count(events.Unsupported))
}

func TestOneSeekOutstanding(t *testing.T) {
	var (
		mu          sync.Mutex
		outstanding int
		maxSeen     int
	)
	dec := &countingDecoder{fakeDecoder: fakeDecoder{width: 1280, height: 720, duration: 120}}
	dec.onSeek = func() {
		mu.Lock()
		outstanding++
		maxSeen = max(maxSeen, outstanding)
		mu.Unlock()
	}
	surf := &fakeSurface{}
	s, err := New(Options{MaxWidth: 320, MaxHeight: 320, Count: 12}, dec, &releasingSurface{fakeSurface: surf, release: func() {
		mu.Lock()
		outstanding--
		mu.Unlock()
	}}, zap.NewNop())
	require.NoError(t, err)

	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 12, surf.shots)
}

type countingDecoder struct {
	fakeDecoder
	onSeek func()
}

func (d *countingDecoder) SeekTo(seconds float64) {
	d.onSeek()
	d.fakeDecoder.SeekTo(seconds)
}

type releasingSurface struct {
	*fakeSurface
	release func()
}

func (s *releasingSurface) Snapshot(dec Decoder, w, h int) (Image, error) {
	s.release()
	return s.fakeSurface.Snapshot(dec, w, h)
}

func TestDetailJSON(t *testing.T) {
	dec := &fakeDecoder{width: 1920, height: 1080, duration: 10}
	s, _ := newTestSequencer(t, Options{MaxWidth: 1280, MaxHeight: 1280, Count: 3}, dec, &fakeSurface{})

	var detail Detail
	s.OnCompleteDetail(func(d Detail) { detail = d })
	s.Start(context.Background(), testClip)
	require.Equal(t, StatusCompleted, waitDone(t, s))

	raw, err := json.Marshal(detail)
	require.NoError(t, err)

	var decoded struct {
		Thumbs map[string]struct {
			Capture     int     `json:"capture"`
			TimeIndex   float64 `json:"timeindex"`
			CaptureTime *int64  `json:"captureTime"`
			URL         *string `json:"url"`
		} `json:"thumbs"`
		TotalTime int64   `json:"totalTime"`
		Details   Summary `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Len(t, decoded.Thumbs, 3)
	for key, th := range decoded.Thumbs {
		require.NotNil(t, th.URL, "thumb %s", key)
		require.NotNil(t, th.CaptureTime, "thumb %s", key)
		assert.Contains(t, *th.URL, "data:image/jpeg;base64,")
	}
	assert.Equal(t, 3.0, decoded.Thumbs["2"].TimeIndex)
	assert.Equal(t, 1280, decoded.Details.ThumbWidth)
}
