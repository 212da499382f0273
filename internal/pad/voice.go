package pad

import (
	"time"

	"github.com/worshippad/padd/internal/audio"
)

// voice is one audio handle: a playback position in a shared clip with its own gain.
type voice struct {
	clip    *audio.Clip
	pos     int // next sample frame to play
	restart int // sample frame to rewind to when the clip runs out
	gain    float64
	from    float64 // gain captured when a fade-out started
}

func newVoice(c *audio.Clip, offset time.Duration) *voice {
	v := &voice{clip: c}
	v.restart = v.offsetFrames(offset)
	v.pos = v.restart
	return v
}

// offsetFrames converts offset to a sample frame, falling back to the clip
// start if offset lies past the end.
func (v *voice) offsetFrames(offset time.Duration) int {
	n := audio.DurationToFrames(offset)
	if n >= v.clip.Len() {
		return 0
	}
	return n
}

func (v *voice) remaining() time.Duration {
	return audio.FramesToDuration(v.clip.Len() - v.pos)
}

// wholeFrames is the time left in the clip rounded down to whole output frames.
func (v *voice) wholeFrames() time.Duration {
	n := (v.clip.Len() - v.pos) / audio.FrameSize
	return time.Duration(n) * audio.FrameDuration
}

// mix adds the next frame of the voice, scaled by its gain, onto acc.
// A voice that runs out rewinds to its restart point within the frame;
// mix reports whether that happened.
func (v *voice) mix(acc []float64) (rewound bool) {
	if v.clip.Len() == 0 {
		return false
	}
	for filled := 0; filled < audio.FrameSize; {
		if v.pos >= v.clip.Len() {
			v.pos = v.restart
			rewound = true
		}
		n := min(audio.FrameSize-filled, v.clip.Len()-v.pos)
		src := v.clip.Samples[v.pos*audio.Channels : (v.pos+n)*audio.Channels]
		dst := acc[filled*audio.Channels:]
		for i, s := range src {
			dst[i] += float64(s) * v.gain
		}
		v.pos += n
		filled += n
	}
	return rewound
}
