package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/worshippad/padd/internal/audio"
)

// frameStreamer adapts a Listener to beep.Streamer. When no frame is
// waiting it plays silence instead of blocking the sound card.
type frameStreamer struct {
	l       *Listener
	pending []int16
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if len(s.pending) < audio.Channels {
			select {
			case f := <-s.l.C:
				s.pending = f
			default:
				s.pending = nil
			}
		}
		if len(s.pending) < audio.Channels {
			samples[i] = [2]float64{}
			continue
		}
		samples[i][0] = float64(s.pending[0]) / 32768
		samples[i][1] = float64(s.pending[1]) / 32768
		s.pending = s.pending[audio.Channels:]
	}
	return len(samples), true
}

func (s *frameStreamer) Err() error {
	return nil
}

// PlaySpeaker plays the broadcast on the local sound card until ctx is cancelled.
func PlaySpeaker(ctx context.Context, b *Broadcaster, bufferDur time.Duration) error {
	sr := beep.SampleRate(audio.SampleRate)
	if err := speaker.Init(sr, sr.N(bufferDur)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	// Keep roughly two speaker buffers queued.
	frames := 2 * int(bufferDur/audio.FrameDuration)
	l := b.SubscribeBuffered(max(frames, 2))
	defer b.Unsubscribe(l)

	speaker.Play(&frameStreamer{l: l})
	log.Printf("Local speaker output started (%v buffer)", bufferDur)

	<-ctx.Done()
	speaker.Clear()
	return nil
}
