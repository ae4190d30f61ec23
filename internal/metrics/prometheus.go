package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidthumbs_sessions_total",
		Help: "Total number of capture sessions, by terminal status",
	}, []string{"status"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidthumbs_events_total",
		Help: "Total number of sequencer events fired, by event name",
	}, []string{"event"})

	ThumbnailsCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidthumbs_thumbnails_captured_total",
		Help: "Total number of thumbnails captured across all sessions",
	})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidthumbs_session_duration_seconds",
		Help:    "Duration of thumbnailing stages",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidthumbs_active_sessions",
		Help: "Number of capture sessions currently running",
	})
)
