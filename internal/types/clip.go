package types

// Clip is one video to thumbnail. Either RawData or Path is set; Path may
// also be a URL ffmpeg can open.
type Clip struct {
	Key     string
	Path    string
	RawData []byte
}

// InMemory reports whether the clip carries its bytes instead of a path.
func (c Clip) InMemory() bool {
	return len(c.RawData) > 0
}
