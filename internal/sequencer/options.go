package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	DefaultMaxWidth  = 1280
	DefaultMaxHeight = 1280
	DefaultCount     = 8
)

var ErrInvalidOptions = errors.New("invalid capture options")

// Options bound the thumbnail size and set how many thumbnails to take.
type Options struct {
	MaxWidth  int `json:"maxWidth"`
	MaxHeight int `json:"maxHeight"`
	Count     int `json:"count"`
}

// DefaultOptions returns the standard 1280x1280, 8 thumbnail options.
func DefaultOptions() Options {
	return Options{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Count:     DefaultCount,
	}
}

// Validate rejects non-positive sizes and counts.
func (o Options) Validate() error {
	if o.MaxWidth <= 0 {
		return fmt.Errorf("%w: maxWidth must be positive, got %d", ErrInvalidOptions, o.MaxWidth)
	}
	if o.MaxHeight <= 0 {
		return fmt.Errorf("%w: maxHeight must be positive, got %d", ErrInvalidOptions, o.MaxHeight)
	}
	if o.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidOptions, o.Count)
	}
	return nil
}

// LoadOptions decodes a JSON object over DefaultOptions. Keys that are
// present override the defaults; unknown keys are ignored. An empty
// document yields the defaults.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	if err := json.NewDecoder(r).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return DefaultOptions(), fmt.Errorf("decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return DefaultOptions(), err
	}
	return opts, nil
}
