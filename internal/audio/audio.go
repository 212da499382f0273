package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Clip is a fully decoded pad asset: interleaved stereo int16 PCM at SampleRate.
// Clips are shared read-only between the voices that play them.
type Clip struct {
	Path    string
	Samples []int16
}

// Len returns the clip length in sample frames (one sample per channel).
func (c *Clip) Len() int {
	return len(c.Samples) / Channels
}

// Duration returns the playable length of the clip.
func (c *Clip) Duration() time.Duration {
	return FramesToDuration(c.Len())
}

// DurationToFrames converts a duration to a count of sample frames, rounding down.
func DurationToFrames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * SampleRate / int64(time.Second))
}

// FramesToDuration converts a count of sample frames to a duration.
func FramesToDuration(n int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / SampleRate)
}
