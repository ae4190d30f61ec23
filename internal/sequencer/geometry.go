package sequencer

import "math"

// FitWithin computes the thumbnail size for a srcW x srcH video.
//
// Landscape sources take maxW as width, portrait sources take maxH as
// height, and the other side follows the source ratio truncated toward
// zero. Square sources are forced to maxW x maxH even when the maxima
// differ. A derived side larger than its maximum is fitted again along the
// other axis so the result never exceeds maxW x maxH.
func FitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	var w, h int
	switch {
	case srcW > srcH:
		ratio := float64(maxW) / float64(srcW)
		w, h = maxW, int(float64(srcH)*ratio)
		if h > maxH {
			ratio = float64(maxH) / float64(srcH)
			w, h = int(float64(srcW)*ratio), maxH
		}
	case srcW == srcH:
		return maxW, maxH
	default:
		ratio := float64(maxH) / float64(srcH)
		w, h = int(float64(srcW)*ratio), maxH
		if w > maxW {
			ratio = float64(maxW) / float64(srcW)
			w, h = maxW, int(float64(srcH)*ratio)
		}
	}
	return max(w, 1), max(h, 1)
}

// Interval is the spacing between seek targets. Dividing by count+1 keeps
// half an interval clear at both ends of the video.
func Interval(duration float64, count int) float64 {
	return duration / float64(count+1)
}

// SeekTargets returns the unrounded capture positions: startOffset plus
// a multiple of the interval, for each of the count captures.
func SeekTargets(duration float64, count int) []float64 {
	interval := Interval(duration, count)
	start := interval / 2
	targets := make([]float64, count)
	for i := 1; i <= count; i++ {
		targets[i-1] = start + float64(i)*interval - interval
	}
	return targets
}

// Timestamps returns the whole-second positions the sequencer seeks to.
func Timestamps(duration float64, count int) []float64 {
	interval := Interval(duration, count)
	out := make([]float64, count)
	for i := 1; i <= count; i++ {
		out[i-1] = seekTimestamp(interval/2, interval, i)
	}
	return out
}

func seekTimestamp(start, interval float64, index int) float64 {
	return math.Floor(start + float64(index)*interval - interval)
}
