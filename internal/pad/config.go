package pad

import (
	"errors"
	"fmt"
	"time"

	"github.com/worshippad/padd/internal/catalog"
)

// Config holds the loop and fade timing of a Player.
type Config struct {
	Volume      float64 // initial target volume, 0..1
	StartingKey string

	LoopThreshold time.Duration // remaining time that triggers a loop crossfade
	PollInterval  time.Duration // how often the playback position is checked
	Crossfade     time.Duration // loop crossfade window
	FadeStep      time.Duration // fade sampling period
	KeyFade       time.Duration // key change fade-out and fade-in, each
	KeyGap        time.Duration // silence between key change fade-out and fade-in
	StartOffset   time.Duration // skips leading silence whenever a clip (re)starts
	Curve         string        // "linear" or "smoothstep"
}

// DefaultConfig returns the stock pad timing.
func DefaultConfig() Config {
	return Config{
		Volume:        0.7,
		StartingKey:   "C",
		LoopThreshold: 5 * time.Second,
		PollInterval:  time.Second,
		Crossfade:     3 * time.Second,
		FadeStep:      50 * time.Millisecond,
		KeyFade:       time.Second,
		KeyGap:        100 * time.Millisecond,
		StartOffset:   500 * time.Millisecond,
		Curve:         "linear",
	}
}

func (c Config) validate() error {
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume %v out of range [0,1]", c.Volume)
	}
	if !catalog.IsValidKey(c.StartingKey) {
		return fmt.Errorf("%w: %q", ErrUnknownKey, c.StartingKey)
	}
	if c.LoopThreshold <= 0 || c.PollInterval <= 0 || c.Crossfade <= 0 || c.FadeStep <= 0 || c.KeyFade <= 0 {
		return errors.New("loop threshold, poll interval, crossfade, fade step and key fade must be positive")
	}
	if c.KeyGap < 0 || c.StartOffset < 0 {
		return errors.New("key gap and start offset must not be negative")
	}
	if c.Crossfade > c.LoopThreshold {
		return fmt.Errorf("crossfade %v longer than loop threshold %v", c.Crossfade, c.LoopThreshold)
	}
	return nil
}
