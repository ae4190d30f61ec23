package sequencer

import (
	"encoding/json"
	"time"
)

// Status enumerates the lifecycle of a capture session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoadingMetadata
	StatusCapturing
	StatusCompleted
	StatusAborted
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoadingMetadata:
		return "loading_metadata"
	case StatusCapturing:
		return "capturing"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusUnsupported
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of one capture run.
type Session struct {
	ID             string
	ThumbWidth     int
	ThumbHeight    int
	VideoDuration  float64
	CaptureCount   int
	Interval       float64
	StartOffset    float64
	CurrentIndex   int
	CompletedCount int
	StartedAt      time.Time
	LastEventAt    time.Time
	Status         Status
}

// CaptureRecord describes one thumbnail. It is created before its seek is
// issued; Image and ElapsedSinceLastCapture are set once the frame is
// grabbed and never change afterwards.
type CaptureRecord struct {
	Index                   int
	Width                   int
	Height                  int
	Timestamp               float64
	ElapsedSinceStart       time.Duration
	ElapsedSinceLastCapture time.Duration
	Image                   *Image
}

// Finalized reports whether the frame has been captured.
func (r CaptureRecord) Finalized() bool {
	return r.Image != nil
}

func (r CaptureRecord) MarshalJSON() ([]byte, error) {
	var captureTime *int64
	if r.Finalized() {
		ms := r.ElapsedSinceLastCapture.Milliseconds()
		captureTime = &ms
	}
	return json.Marshal(struct {
		Capture     int     `json:"capture"`
		Width       int     `json:"width"`
		Height      int     `json:"height"`
		TimeIndex   float64 `json:"timeindex"`
		StartTime   int64   `json:"startTime"`
		CaptureTime *int64  `json:"captureTime"`
		URL         *Image  `json:"url,omitempty"`
	}{
		Capture:     r.Index,
		Width:       r.Width,
		Height:      r.Height,
		TimeIndex:   r.Timestamp,
		StartTime:   r.ElapsedSinceStart.Milliseconds(),
		CaptureTime: captureTime,
		URL:         r.Image,
	})
}

// Summary holds the aggregate figures of a completed session.
type Summary struct {
	ThumbnailCount int     `json:"thumbnailCount"`
	VideoDuration  float64 `json:"videoDuration"`
	VideoInterval  float64 `json:"videoInterval"`
	ThumbWidth     int     `json:"thumbWidth"`
	ThumbHeight    int     `json:"thumbHeight"`
	VideoStart     float64 `json:"videoStart"`
}

// Detail is the completedetail payload.
type Detail struct {
	Thumbs    map[int]CaptureRecord
	TotalTime time.Duration
	Details   Summary
}

func (d Detail) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Thumbs    map[int]CaptureRecord `json:"thumbs"`
		TotalTime int64                 `json:"totalTime"`
		Details   Summary               `json:"details"`
	}{d.Thumbs, d.TotalTime.Milliseconds(), d.Details})
}
