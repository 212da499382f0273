// Package pad keeps a finite pad recording sounding forever. A Player
// crossfades the clip into a fresh copy of itself before it ends, fades
// between keys on request, and renders the mix one 20ms frame at a time.
package pad

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/worshippad/padd/internal/audio"
	"github.com/worshippad/padd/internal/catalog"
)

var (
	// ErrUnknownKey is returned for a key that is not in the catalog.
	ErrUnknownKey = errors.New("unknown key")
	// ErrClosed is returned by commands sent after Close.
	ErrClosed = errors.New("player closed")
)

// Loader resolves an asset file name to a decoded clip.
type Loader interface {
	Load(ctx context.Context, file string) (*audio.Clip, error)
}

// State is the playback state of a Player.
type State int

const (
	Idle State = iota
	Playing
	LoopTransition // crossfading the clip into its own start
	KeyChanging    // fading out the old key, then in the new one
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case LoopTransition:
		return "loop_transition"
	case KeyChanging:
		return "key_changing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a snapshot of the player for the UI layer.
type Status struct {
	Playing    bool
	State      State
	Track      catalog.Track
	Volume     float64
	Position   time.Duration
	Duration   time.Duration
	Loops      int // completed loop transitions
	KeyChanges int // completed key changes
}

// fade is a running stepwise gain ramp.
type fade struct {
	steps int
	step  int
	t     *timer
}

// Player is the seamless loop player. All state is guarded by mu; timer
// callbacks run from Render with mu held, so they never overlap.
type Player struct {
	cfg    Config
	curve  audio.Curve
	loader Loader

	cmdMu sync.Mutex // serialises Play and SelectTrack across clip loads

	mu         sync.Mutex
	sched      scheduler
	state      State
	track      catalog.Track
	volume     float64
	primary    *voice
	secondary  *voice
	fade       *fade
	poll       *timer
	gap        *timer
	incoming   *audio.Clip // clip waiting for the key change gap to pass
	gen        uint64      // bumped by commands that invalidate in-flight loads
	loops      int
	keyChanges int
	closed     bool
	acc        []float64
}

// NewPlayer creates an idle player.
func NewPlayer(cfg Config, loader Loader) (*Player, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pad config: %w", err)
	}
	curve, err := audio.CurveByName(cfg.Curve)
	if err != nil {
		return nil, fmt.Errorf("pad config: %w", err)
	}
	track, _ := catalog.Lookup(cfg.StartingKey)
	return &Player{
		cfg:    cfg,
		curve:  curve,
		loader: loader,
		track:  track,
		volume: cfg.Volume,
		acc:    make([]float64, audio.FrameSamples),
	}, nil
}

// Play starts the selected track. It is a no-op while already playing.
// A clip that fails to load leaves the player idle.
func (p *Player) Play(ctx context.Context) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Idle {
		p.mu.Unlock()
		return nil
	}
	track, gen := p.track, p.gen
	p.mu.Unlock()

	clip, err := p.loader.Load(ctx, track.File)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err != nil {
		log.Printf("Play %s failed: %v", track.Key, err)
		p.stop()
		return fmt.Errorf("play %s: %w", track.Key, err)
	}
	if p.gen != gen {
		// paused while loading
		return nil
	}

	p.gen++
	p.primary = newVoice(clip, p.cfg.StartOffset)
	p.primary.gain = p.volume
	p.state = Playing
	p.poll = p.sched.every(p.cfg.PollInterval, p.checkLoop)
	log.Printf("Now playing: %s (%s, %.1fs)", track.Key, track.Label, clip.Duration().Seconds())
	return nil
}

// Pause stops playback immediately, cancelling every timer and releasing both voices.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.state == Idle {
		return
	}
	p.stop()
	log.Printf("Paused %s", p.track.Key)
}

// Close tears the player down. Later commands return ErrClosed and Render yields silence.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	p.closed = true
}

// SetVolume sets the target volume, clamped to [0,1]. Outside a fade the
// audible voice follows at once; a running fade converges on the new value.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	if p.fade == nil && p.primary != nil {
		p.primary.gain = v
	}
}

// SelectTrack switches to the track for key. While idle only the selection
// changes; while playing the current sound fades out and the new key fades in.
func (p *Player) SelectTrack(ctx context.Context, key string) error {
	track, ok := catalog.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownKey, key, strings.Join(catalog.Keys(), " "))
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if track.Key == p.track.Key {
		p.mu.Unlock()
		return nil
	}
	if p.state == Idle {
		p.track = track
		p.mu.Unlock()
		log.Printf("Key set to %s", track.Key)
		return nil
	}
	gen := p.gen
	p.mu.Unlock()

	clip, err := p.loader.Load(ctx, track.File)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err != nil {
		log.Printf("Key change to %s failed: %v", track.Key, err)
		p.stop()
		return fmt.Errorf("select %s: %w", track.Key, err)
	}
	if p.gen != gen || p.state == Idle {
		p.track = track
		return nil
	}
	p.changeKey(track, clip)
	return nil
}

// Status returns a snapshot of the player.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		Playing:    p.state != Idle,
		State:      p.state,
		Track:      p.track,
		Volume:     p.volume,
		Loops:      p.loops,
		KeyChanges: p.keyChanges,
	}
	if p.primary != nil {
		s.Position = audio.FramesToDuration(p.primary.pos)
		s.Duration = p.primary.clip.Duration()
	}
	return s
}

// Render advances the player clock by one frame, runs every timer that
// falls due, and returns the next mixed frame.
func (p *Player) Render() []int16 {
	frame := make([]int16, audio.FrameSamples)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return frame
	}
	p.sched.advance(audio.FrameDuration)
	if p.state == Idle {
		return frame
	}

	clear(p.acc)
	for _, v := range p.voices() {
		if v.mix(p.acc) && v == p.primary {
			// The clip ended before a poll could start a crossfade.
			p.loops++
			log.Printf("Rewound %s", p.track.Key)
		}
	}
	audio.Quantize(frame, p.acc)
	return frame
}

// checkLoop is the position poll. Must be called with mu held.
func (p *Player) checkLoop() {
	if p.state != Playing || p.primary == nil {
		return
	}
	threshold, crossfade := p.window(p.primary.clip)
	remaining := p.primary.remaining()
	if remaining <= 0 || remaining >= threshold {
		return
	}

	out := p.primary
	in := newVoice(out.clip, p.cfg.StartOffset)
	// The ramp must finish before the outgoing voice runs dry.
	crossfade = min(crossfade, out.wholeFrames())
	if crossfade < p.cfg.FadeStep {
		in.gain = p.volume
		p.primary = in
		p.loops++
		return
	}
	p.secondary = in
	p.state = LoopTransition
	p.startFade(crossfade, func(g float64) {
		out.gain = p.volume * (1 - g)
		in.gain = p.volume * g
	}, func() {
		p.primary, p.secondary = in, nil
		p.state = Playing
		p.loops++
	})
}

// window returns the loop threshold and crossfade length for a clip,
// shrunk for clips too short for the configured values.
func (p *Player) window(c *audio.Clip) (threshold, crossfade time.Duration) {
	playable := c.Duration() - p.cfg.StartOffset
	if playable <= 0 {
		playable = c.Duration()
	}
	threshold = min(p.cfg.LoopThreshold, playable/2)
	crossfade = min(p.cfg.Crossfade, threshold)
	return threshold, crossfade
}

// changeKey fades every voice out, waits out the gap, then fades clip in.
// Must be called with mu held.
func (p *Player) changeKey(track catalog.Track, clip *audio.Clip) {
	p.cancelFade()
	p.gap.stop()
	p.gap = nil
	p.track = track
	p.incoming = clip
	p.state = KeyChanging

	voices := p.voices()
	if len(voices) == 0 {
		p.gap = p.sched.after(p.cfg.KeyGap, p.startIncoming)
		return
	}
	for _, v := range voices {
		v.from = v.gain
	}
	p.startFade(p.cfg.KeyFade, func(g float64) {
		for _, v := range voices {
			v.gain = min(v.from, p.volume) * (1 - g)
		}
	}, func() {
		p.primary, p.secondary = nil, nil
		p.gap = p.sched.after(p.cfg.KeyGap, p.startIncoming)
	})
}

func (p *Player) startIncoming() {
	p.gap = nil
	v := newVoice(p.incoming, p.cfg.StartOffset)
	p.incoming = nil
	p.primary = v
	p.startFade(p.cfg.KeyFade, func(g float64) {
		v.gain = p.volume * g
	}, func() {
		p.state = Playing
		p.keyChanges++
		log.Printf("Key changed to %s", p.track.Key)
	})
}

// startFade replaces any running fade with one that calls apply every
// FadeStep over d, reaching exactly apply(1) on the last step.
func (p *Player) startFade(d time.Duration, apply func(g float64), done func()) {
	p.cancelFade()
	f := &fade{steps: max(1, int(d/p.cfg.FadeStep))}
	apply(0)
	f.t = p.sched.every(p.cfg.FadeStep, func() {
		f.step++
		apply(p.curve(float64(f.step) / float64(f.steps)))
		if f.step >= f.steps {
			f.t.stop()
			p.fade = nil
			done()
		}
	})
	p.fade = f
}

func (p *Player) cancelFade() {
	if p.fade != nil {
		p.fade.t.stop()
		p.fade = nil
	}
}

// stop returns to Idle synchronously. Must be called with mu held.
func (p *Player) stop() {
	p.gen++
	p.fade = nil
	p.sched.cancelAll()
	p.poll, p.gap = nil, nil
	p.primary, p.secondary = nil, nil
	p.incoming = nil
	p.state = Idle
}

func (p *Player) voices() []*voice {
	vs := make([]*voice, 0, 2)
	if p.primary != nil {
		vs = append(vs, p.primary)
	}
	if p.secondary != nil {
		vs = append(vs, p.secondary)
	}
	return vs
}
