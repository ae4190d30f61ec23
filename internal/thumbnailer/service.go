package thumbnailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/melody-ding/go-vidthumbs/internal/events"
	"github.com/melody-ding/go-vidthumbs/internal/metrics"
	"github.com/melody-ding/go-vidthumbs/internal/notify"
	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/sink"
	"github.com/melody-ding/go-vidthumbs/internal/types"
)

var (
	ErrUnsupportedMedia = sequencer.ErrUnsupportedMedia
	ErrAborted          = errors.New("capture aborted")
)

type (
	DecoderFactory func() sequencer.Decoder
	SurfaceFactory func() sequencer.Surface
)

type Config struct {
	Options sequencer.Options
	// Timeout aborts a capture session that runs longer. Zero disables it.
	Timeout time.Duration
}

// Service thumbnails one clip per Run. Every run gets a fresh decoder,
// surface and sequencer.
type Service struct {
	cfg        Config
	newDecoder DecoderFactory
	newSurface SurfaceFactory
	sink       sink.Sink
	publisher  notify.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(
	cfg Config,
	newDecoder DecoderFactory,
	newSurface SurfaceFactory,
	out sink.Sink,
	publisher notify.Publisher,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		cfg:        cfg,
		newDecoder: newDecoder,
		newSurface: newSurface,
		sink:       out,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Result is what is known about a run once the session is terminal.
// Detail is set only for completed sessions.
type Result struct {
	Session  sequencer.Session
	Records  []sequencer.CaptureRecord
	Detail   *sequencer.Detail
	Manifest *types.ThumbnailManifest
}

// Run captures the clip, stores the thumbnails and announces them. An
// unsupported clip fails with ErrUnsupportedMedia and an aborted one with
// ErrAborted; both still return the partial result.
func (s *Service) Run(ctx context.Context, clip types.Clip) (*Result, error) {
	tracer := otel.Tracer("thumbnailer")
	ctx, span := tracer.Start(ctx, "Service.Run")
	defer span.End()
	span.SetAttributes(attribute.String("clip.key", clip.Key))

	seq, err := sequencer.New(s.cfg.Options, s.newDecoder(), s.newSurface(), s.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	sessionID := seq.Session().ID
	span.SetAttributes(attribute.String("session.id", sessionID))
	log := s.logger.With(zap.String("session_id", sessionID), zap.String("key", clip.Key))

	var detail *sequencer.Detail
	seq.OnCompleteDetail(func(d sequencer.Detail) { detail = &d })
	seq.OnAny(observe(span, log))

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	metrics.ActiveSessions.Inc()
	captureStart := time.Now()
	seq.Start(runCtx, clip)
	<-seq.Done()
	metrics.ActiveSessions.Dec()
	metrics.SessionDuration.WithLabelValues("capture").Observe(time.Since(captureStart).Seconds())

	status := seq.Status()
	metrics.SessionsTotal.WithLabelValues(status.String()).Inc()
	span.SetAttributes(attribute.String("session.status", status.String()))

	res := &Result{
		Session: seq.Session(),
		Records: seq.Records(),
		Detail:  detail,
	}
	res.Manifest = s.manifest(clip, res)

	switch status {
	case sequencer.StatusCompleted:
	case sequencer.StatusUnsupported:
		err := unsupported(seq.Err())
		log.Warn("unsupported media", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return res, err
	default:
		err := ErrAborted
		if cause := runCtx.Err(); cause != nil {
			err = fmt.Errorf("%w: %w", ErrAborted, cause)
		}
		log.Warn("capture aborted",
			zap.Int("captured", res.Session.CompletedCount),
			zap.Int("wanted", res.Session.CaptureCount),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if s.sink != nil {
		writeStart := time.Now()
		ctxW, spanW := tracer.Start(ctx, "write_thumbnails")
		err := s.sink.Write(ctxW, res.Manifest, thumbnails(res.Records))
		spanW.End()
		if err != nil {
			log.Error("failed to write thumbnails", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("write thumbnails: %w", err)
		}
		metrics.SessionDuration.WithLabelValues("write").Observe(time.Since(writeStart).Seconds())
	}

	if err := s.publisher.Publish(ctx, res.Manifest); err != nil {
		log.Error("failed to publish manifest", zap.Error(err))
	}

	log.Info("thumbnails captured",
		zap.Int("count", res.Session.CompletedCount),
		zap.Int("width", res.Session.ThumbWidth),
		zap.Int("height", res.Session.ThumbHeight),
		zap.Float64("duration_secs", res.Session.VideoDuration),
		zap.Int64("total_time_ms", res.Manifest.TotalTimeMs),
	)
	return res, nil
}

// observe sees every sequencer event through the catch-all.
func observe(span trace.Span, log *zap.Logger) events.Handler {
	return func(e events.Event) bool {
		metrics.EventsTotal.WithLabelValues(string(e.Name)).Inc()
		span.AddEvent(string(e.Name))
		if e.Name == events.Capture {
			metrics.ThumbnailsCapturedTotal.Inc()
		}
		log.Debug("sequencer event", zap.String("event", string(e.Name)))
		return true
	}
}

func unsupported(cause error) error {
	if cause == nil {
		return ErrUnsupportedMedia
	}
	if errors.Is(cause, ErrUnsupportedMedia) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrUnsupportedMedia, cause)
}

func (s *Service) manifest(clip types.Clip, res *Result) *types.ThumbnailManifest {
	sess := res.Session
	m := &types.ThumbnailManifest{
		Key:            clip.Key,
		SessionID:      sess.ID,
		Status:         sess.Status.String(),
		ThumbnailCount: sess.CompletedCount,
		VideoDuration:  sess.VideoDuration,
		VideoInterval:  sess.Interval,
		VideoStart:     sess.StartOffset,
		Size:           []int{sess.ThumbWidth, sess.ThumbHeight},
		CreatedAt:      s.now().UTC(),
	}
	if res.Detail != nil {
		m.TotalTimeMs = res.Detail.TotalTime.Milliseconds()
	}
	for _, r := range res.Records {
		if !r.Finalized() {
			continue
		}
		m.Thumbnails = append(m.Thumbnails, types.ThumbnailInfo{
			Index:       r.Index,
			Timestamp:   r.Timestamp,
			ContentType: r.Image.ContentType,
			Bytes:       len(r.Image.Data),
		})
	}
	return m
}

func thumbnails(records []sequencer.CaptureRecord) []sink.Thumbnail {
	out := make([]sink.Thumbnail, 0, len(records))
	for _, r := range records {
		if !r.Finalized() {
			continue
		}
		out = append(out, sink.Thumbnail{Index: r.Index, Timestamp: r.Timestamp, Image: *r.Image})
	}
	return out
}
