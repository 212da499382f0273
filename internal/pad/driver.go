package pad

import (
	"context"
	"time"

	"github.com/worshippad/padd/internal/audio"
)

// Renderer produces consecutive 20ms PCM frames.
type Renderer interface {
	Render() []int16
}

// Driver pulls frames from a Renderer at real-time rate.
type Driver struct {
	src     Renderer
	frameCh chan []int16
}

// NewDriver creates a driver for src.
func NewDriver(src Renderer) *Driver {
	return &Driver{
		src:     src,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (d *Driver) Frames() <-chan []int16 {
	return d.frameCh
}

// Run renders one frame per tick. Blocks until ctx is cancelled, then closes Frames.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := d.src.Render()
		select {
		case d.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
