package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNoVideoStream = errors.New("no video stream")

// Metadata is what the decoder learns from ffprobe.
type Metadata struct {
	Width    int
	Height   int
	Duration float64
	Codec    string
	Format   string
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// ParseProbe reads `ffprobe -show_format -show_streams -of json` output.
// The first video stream wins; its duration falls back to the container's.
func ParseProbe(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, st := range out.Streams {
		if st.CodecType != "video" {
			continue
		}
		meta := Metadata{
			Width:  st.Width,
			Height: st.Height,
			Codec:  st.CodecName,
			Format: out.Format.FormatName,
		}
		d, err := parseDuration(st.Duration)
		if err != nil || d <= 0 {
			d, err = parseDuration(out.Format.Duration)
			if err != nil {
				return Metadata{}, fmt.Errorf("parse duration: %w", err)
			}
		}
		meta.Duration = d
		return meta, nil
	}
	return Metadata{}, ErrNoVideoStream
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, errors.New("duration not reported")
	}
	return strconv.ParseFloat(s, 64)
}
