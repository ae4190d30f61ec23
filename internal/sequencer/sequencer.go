package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/events"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

// ErrUnsupportedMedia is the cause recorded when the decoder cannot
// handle the source.
var ErrUnsupportedMedia = errors.New("unsupported media")

const inboxSize = 16

// Sequencer drives one decoder through count seek/grab round trips.
//
// Decoder callbacks are queued to a single loop goroutine so they never
// run concurrently. The mutex guards session state and is released before
// any handler runs, which lets handlers call Abort.
type Sequencer struct {
	opts    Options
	emitter *events.Emitter
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	session  Session
	records  map[int]*CaptureRecord
	captures []Image
	res      *resources
	err      error
	started  bool
	playing  bool
	seeking  bool

	inbox    chan func()
	done     chan struct{}
	doneOnce sync.Once
}

// resources are owned by the session and released on the first terminal
// transition. A nil pointer means the decoder is gone.
type resources struct {
	dec  Decoder
	surf Surface
}

// New returns an idle sequencer. One sequencer runs one session.
func New(opts Options, dec Decoder, surf Surface, logger *zap.Logger) (*Sequencer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if dec == nil || surf == nil {
		return nil, errors.New("sequencer: decoder and surface are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Sequencer{
		opts:    opts,
		emitter: events.NewEmitter(),
		logger:  logger.With(zap.String("session_id", id)),
		now:     time.Now,
		session: Session{ID: id, CaptureCount: opts.Count, Status: StatusIdle},
		records: make(map[int]*CaptureRecord),
		res:     &resources{dec: dec, surf: surf},
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
	}, nil
}

// Start begins the session. Failures are reported through events only:
// an undecodable source ends in StatusUnsupported. Cancelling ctx aborts
// the session. Calling Start again has no effect.
func (s *Sequencer) Start(ctx context.Context, src types.Clip) {
	s.mu.Lock()
	if s.started || s.session.Status != StatusIdle {
		s.mu.Unlock()
		s.logger.Warn("capture already started or ended")
		return
	}
	s.started = true
	s.mu.Unlock()

	s.emitter.Fire(events.BeforeCapture, nil)

	s.mu.Lock()
	if s.session.Status != StatusIdle {
		// aborted by a beforecapture handler
		s.mu.Unlock()
		return
	}
	now := s.now()
	s.session.StartedAt, s.session.LastEventAt = now, now
	s.session.Status = StatusLoadingMetadata
	go s.loop()
	s.res.dec.Load(src, Callbacks{
		MetadataReady: func() { s.post(s.onMetadataReady) },
		Playing:       func() { s.post(s.onPlaying) },
		SeekComplete:  func() { s.post(s.onSeekComplete) },
		Error:         func(err error) { s.post(func() { s.fail(err) }) },
	})
	s.mu.Unlock()

	s.logger.Info("capture started",
		zap.String("key", src.Key),
		zap.Int("count", s.opts.Count),
		zap.Int("max_width", s.opts.MaxWidth),
		zap.Int("max_height", s.opts.MaxHeight),
	)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.logger.Info("context done, aborting capture", zap.Error(ctx.Err()))
				s.Abort()
			case <-s.done:
			}
		}()
	}
}

// Abort stops the session unless it already ended. Seek callbacks still
// in flight are dropped. It is safe to call from event handlers.
func (s *Sequencer) Abort() {
	s.mu.Lock()
	if s.session.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.session.Status = StatusAborted
	s.releaseLocked()
	captures := s.capturesLocked()
	s.mu.Unlock()

	s.logger.Info("capture aborted", zap.Int("captured", len(captures)))
	s.emitter.Fire(events.Aborted, captures)
	s.finish()
}

// Done is closed once the session reached a terminal status and its final
// events were fired.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.done:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Status
}

// Err returns the decode failure behind StatusUnsupported.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Sequencer) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Records returns every record created so far ordered by index, including
// the one whose seek is still pending.
func (s *Sequencer) Records() []CaptureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CaptureRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Captures returns the images grabbed so far in capture order.
func (s *Sequencer) Captures() []Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturesLocked()
}

func (s *Sequencer) loop() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *Sequencer) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Sequencer) onMetadataReady() {
	s.mu.Lock()
	if !s.liveLocked(StatusLoadingMetadata) {
		s.mu.Unlock()
		return
	}
	dec := s.res.dec
	w, h, d := dec.IntrinsicWidth(), dec.IntrinsicHeight(), dec.Duration()
	if w <= 0 || h <= 0 || !(d > 0) || math.IsInf(d, 0) {
		s.mu.Unlock()
		s.fail(fmt.Errorf("%w: metadata %dx%d, duration %v", ErrUnsupportedMedia, w, h, d))
		return
	}

	tw, th := FitWithin(w, h, s.opts.MaxWidth, s.opts.MaxHeight)
	interval := Interval(d, s.opts.Count)
	s.session.ThumbWidth, s.session.ThumbHeight = tw, th
	s.session.VideoDuration = d
	s.session.Interval = interval
	s.session.StartOffset = interval / 2
	s.session.Status = StatusCapturing
	captures := s.capturesLocked()
	s.mu.Unlock()

	s.logger.Debug("metadata ready",
		zap.Int("video_width", w),
		zap.Int("video_height", h),
		zap.Float64("duration", d),
		zap.Int("thumb_width", tw),
		zap.Int("thumb_height", th),
		zap.Float64("interval", interval),
	)
	s.emitter.Fire(events.StartCapture, captures)

	s.mu.Lock()
	if s.liveLocked(StatusCapturing) {
		s.res.dec.Play()
	}
	s.mu.Unlock()
}

// onPlaying starts the first seek. Playback only exists to get the
// decoder's seek machinery going, so later play notifications are ignored.
func (s *Sequencer) onPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(StatusCapturing) || s.playing {
		return
	}
	s.playing = true
	s.prepareLocked()
}

func (s *Sequencer) prepareLocked() {
	s.session.CurrentIndex++
	idx := s.session.CurrentIndex
	ts := seekTimestamp(s.session.StartOffset, s.session.Interval, idx)
	fromStart, _ := s.tickLocked()
	s.records[idx] = &CaptureRecord{
		Index:             idx,
		Width:             s.session.ThumbWidth,
		Height:            s.session.ThumbHeight,
		Timestamp:         ts,
		ElapsedSinceStart: fromStart,
	}
	s.seeking = true
	s.res.dec.SeekTo(ts)
}

func (s *Sequencer) onSeekComplete() {
	s.mu.Lock()
	if !s.liveLocked(StatusCapturing) || !s.seeking {
		status := s.session.Status
		s.mu.Unlock()
		s.logger.Debug("dropping seek callback", zap.Stringer("status", status))
		return
	}
	s.seeking = false
	res := s.res
	res.dec.Pause()
	rec := s.records[s.session.CurrentIndex]
	img, err := res.surf.Snapshot(res.dec, s.session.ThumbWidth, s.session.ThumbHeight)
	if err != nil {
		s.mu.Unlock()
		s.fail(fmt.Errorf("%w: snapshot %d at %vs: %w", ErrUnsupportedMedia, rec.Index, rec.Timestamp, err))
		return
	}

	_, sinceLast := s.tickLocked()
	rec.Image = &img
	rec.ElapsedSinceLastCapture = sinceLast
	s.session.CompletedCount++
	s.captures = append(s.captures, img)

	finished := s.session.CompletedCount >= s.session.CaptureCount
	var (
		captures []Image
		detail   Detail
	)
	if finished {
		s.session.Status = StatusCompleted
		s.releaseLocked()
		captures = s.capturesLocked()
		detail = s.detailLocked()
	}
	s.mu.Unlock()

	s.logger.Debug("frame captured",
		zap.Int("index", rec.Index),
		zap.Float64("timestamp", rec.Timestamp),
		zap.Duration("took", sinceLast),
	)
	s.emitter.Fire(events.Capture, img)

	if !finished {
		s.mu.Lock()
		if s.liveLocked(StatusCapturing) {
			s.prepareLocked()
		}
		s.mu.Unlock()
		return
	}

	s.logger.Info("capture complete",
		zap.Int("count", len(captures)),
		zap.Duration("total", detail.TotalTime),
	)
	s.emitter.Fire(events.Complete, captures)
	s.emitter.Fire(events.CompleteDetail, detail)
	s.finish()
}

// fail ends a loading or capturing session as unsupported.
func (s *Sequencer) fail(err error) {
	s.mu.Lock()
	if st := s.session.Status; st != StatusLoadingMetadata && st != StatusCapturing {
		s.mu.Unlock()
		s.logger.Debug("ignoring decoder error", zap.Stringer("status", st), zap.Error(err))
		return
	}
	s.session.Status = StatusUnsupported
	s.err = err
	s.releaseLocked()
	s.mu.Unlock()

	s.logger.Warn("unsupported media", zap.Error(err))
	s.emitter.Fire(events.Unsupported, nil)
	s.finish()
}

func (s *Sequencer) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Sequencer) liveLocked(want Status) bool {
	return s.res != nil && s.session.Status == want
}

func (s *Sequencer) releaseLocked() {
	if s.res == nil {
		return
	}
	res := s.res
	s.res = nil
	if err := res.dec.Close(); err != nil {
		s.logger.Warn("close decoder", zap.Error(err))
	}
	if err := res.surf.Close(); err != nil {
		s.logger.Warn("close surface", zap.Error(err))
	}
}

// tickLocked returns the time since start and since the previous tick.
func (s *Sequencer) tickLocked() (time.Duration, time.Duration) {
	now := s.now()
	fromStart := now.Sub(s.session.StartedAt)
	sinceLast := now.Sub(s.session.LastEventAt)
	s.session.LastEventAt = now
	return fromStart, sinceLast
}

func (s *Sequencer) capturesLocked() []Image {
	out := make([]Image, len(s.captures))
	copy(out, s.captures)
	return out
}

func (s *Sequencer) detailLocked() Detail {
	thumbs := make(map[int]CaptureRecord, len(s.records))
	for idx, r := range s.records {
		thumbs[idx] = *r
	}
	fromStart, _ := s.tickLocked()
	return Detail{
		Thumbs:    thumbs,
		TotalTime: fromStart,
		Details: Summary{
			ThumbnailCount: s.session.CaptureCount,
			VideoDuration:  s.session.VideoDuration,
			VideoInterval:  s.session.Interval,
			ThumbWidth:     s.session.ThumbWidth,
			ThumbHeight:    s.session.ThumbHeight,
			VideoStart:     s.session.StartOffset,
		},
	}
}
