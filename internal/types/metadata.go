package types

import "time"

// ThumbnailManifest describes the thumbnails produced for one clip
type ThumbnailManifest struct {
	Key            string          `json:"key"`
	SessionID      string          `json:"session_id"`
	Status         string          `json:"status"`
	ThumbnailCount int             `json:"thumbnail_count"`
	VideoDuration  float64         `json:"video_duration"`
	VideoInterval  float64         `json:"video_interval"`
	VideoStart     float64         `json:"video_start"`
	Size           []int           `json:"size"`
	TotalTimeMs    int64           `json:"total_time_ms"`
	Thumbnails     []ThumbnailInfo `json:"thumbnails"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ThumbnailInfo is one entry of a manifest. Name is filled by the sink.
type ThumbnailInfo struct {
	Index       int     `json:"index"`
	Timestamp   float64 `json:"timestamp"`
	Name        string  `json:"name,omitempty"`
	ContentType string  `json:"content_type"`
	Bytes       int     `json:"bytes"`
}
