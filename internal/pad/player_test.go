package pad

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/worshippad/padd/internal/audio"
	"github.com/worshippad/padd/internal/catalog"
)

const level = 10000 // constant sample value of every fake clip

// fakeLoader hands out constant-level clips of a fixed length.
type fakeLoader struct {
	mu     sync.Mutex
	length time.Duration
	fail   map[string]error
	loads  []string
}

func (f *fakeLoader) Load(ctx context.Context, file string) (*audio.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, file)
	if err := f.fail[file]; err != nil {
		return nil, err
	}
	samples := make([]int16, audio.DurationToFrames(f.length)*audio.Channels)
	for i := range samples {
		samples[i] = level
	}
	return &audio.Clip{Path: "/pads/" + file, Samples: samples}, nil
}

func newTestPlayer(t *testing.T, length time.Duration) (*Player, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{length: length, fail: map[string]error{}}
	p, err := NewPlayer(DefaultConfig(), loader)
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	return p, loader
}

// renderFor renders d worth of frames, calling check after each one.
func renderFor(p *Player, d time.Duration, check func(frame []int16)) {
	n := int(d / audio.FrameDuration)
	for i := 0; i < n; i++ {
		frame := p.Render()
		if check != nil {
			check(frame)
		}
	}
}

func totalGain(p *Player) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	sum := 0.0
	for _, v := range p.voices() {
		sum += v.gain
	}
	return sum
}

func audibleVoices(p *Player) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.voices() {
		if v.gain > 0 {
			n++
		}
	}
	return n
}

func mustPlay(t *testing.T, p *Player) {
	t.Helper()
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
}

// --- Config ---

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().validate(); err != nil {
		t.Errorf("DefaultConfig invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"volume above 1", func(c *Config) { c.Volume = 1.5 }},
		{"negative volume", func(c *Config) { c.Volume = -0.1 }},
		{"unknown key", func(c *Config) { c.StartingKey = "H" }},
		{"zero fade step", func(c *Config) { c.FadeStep = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"negative gap", func(c *Config) { c.KeyGap = -time.Millisecond }},
		{"crossfade past threshold", func(c *Config) { c.Crossfade = 6 * time.Second }},
		{"unknown curve", func(c *Config) { c.Curve = "cubic" }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(&cfg)
		if _, err := NewPlayer(cfg, &fakeLoader{}); err == nil {
			t.Errorf("%s: NewPlayer should fail", tt.name)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:           "idle",
		Playing:        "playing",
		LoopTransition: "loop_transition",
		KeyChanging:    "key_changing",
		State(9):       "State(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

// --- Play / Pause ---

func TestNewPlayerIdle(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	st := p.Status()
	if st.Playing || st.State != Idle {
		t.Errorf("new player should be idle, got %+v", st)
	}
	if st.Track.Key != "C" || st.Volume != 0.7 {
		t.Errorf("initial track/volume = %s/%v, want C/0.7", st.Track.Key, st.Volume)
	}
	for _, s := range p.Render() {
		if s != 0 {
			t.Fatal("idle player rendered non-silent frame")
		}
	}
}

func TestPlayEveryTrack(t *testing.T) {
	for _, tr := range catalog.Tracks {
		p, _ := newTestPlayer(t, 12*time.Second)
		if err := p.SelectTrack(context.Background(), tr.Key); err != nil {
			t.Fatalf("SelectTrack(%s): %v", tr.Key, err)
		}
		mustPlay(t, p)

		st := p.Status()
		if !st.Playing || st.Track.Key != tr.Key {
			t.Errorf("%s: status = %+v, want playing %s", tr.Key, st, tr.Key)
		}
		if got := p.primary.clip.Path; got != "/pads/"+tr.File {
			t.Errorf("%s: active asset = %q, want %q", tr.Key, got, "/pads/"+tr.File)
		}
	}
}

func TestPlayRendersAtVolume(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	frame := p.Render()
	want := int16(level * 0.7)
	for i, s := range frame {
		if d := int(s) - int(want); d > 1 || d < -1 {
			t.Fatalf("sample[%d] = %d, want ~%d", i, s, want)
		}
	}
	if st := p.Status(); st.Position <= p.cfg.StartOffset {
		t.Errorf("Position = %v, should advance past start offset", st.Position)
	}
}

func TestPlayTwiceIsNoop(t *testing.T) {
	p, loader := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	mustPlay(t, p)
	if len(loader.loads) != 1 {
		t.Errorf("second Play loaded again: %v", loader.loads)
	}
}

func TestPlayLoadFailure(t *testing.T) {
	p, loader := newTestPlayer(t, 12*time.Second)
	boom := errors.New("decode failed")
	loader.fail["C.mp3"] = boom

	err := p.Play(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Play error = %v, want wrapped decode error", err)
	}
	if st := p.Status(); st.Playing || st.State != Idle {
		t.Errorf("after failed play status = %+v, want idle", st)
	}

	// A new explicit command retries.
	delete(loader.fail, "C.mp3")
	mustPlay(t, p)
	if !p.Status().Playing {
		t.Error("retry after failure should play")
	}
}

func TestPauseCancelsEverything(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, 8*time.Second, nil)
	if st := p.Status(); st.State != LoopTransition {
		t.Fatalf("state at 8s = %v, want loop_transition", st.State)
	}

	p.Pause()
	if p.sched.pending() != 0 {
		t.Errorf("%d timers still pending after Pause", p.sched.pending())
	}
	if p.primary != nil || p.secondary != nil {
		t.Error("voices not released after Pause")
	}

	renderFor(p, 30*time.Second, func(frame []int16) {
		for _, s := range frame {
			if s != 0 {
				t.Fatal("paused player rendered sound")
			}
		}
	})
	st := p.Status()
	if st.State != Idle || st.Loops != 0 || st.Playing {
		t.Errorf("after pause and 30s: %+v, want idle with no loops", st)
	}
}

func TestPauseWhileIdle(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	p.Pause()
	if p.Status().State != Idle {
		t.Error("Pause on idle player should stay idle")
	}
}

// --- Loop transitions ---

func TestSingleLoopTransition(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)

	// 12s clip from 0.5s: the 7s poll sees 4.5s left and starts a 3s crossfade.
	renderFor(p, 6900*time.Millisecond, nil)
	if st := p.Status(); st.State != Playing {
		t.Fatalf("state at 6.9s = %v, want playing", st.State)
	}
	renderFor(p, 200*time.Millisecond, nil)
	if st := p.Status(); st.State != LoopTransition {
		t.Fatalf("state at 7.1s = %v, want loop_transition", st.State)
	}

	renderFor(p, 3900*time.Millisecond, nil)
	st := p.Status()
	if st.Loops != 1 || st.State != Playing {
		t.Errorf("after crossfade window: loops=%d state=%v, want 1 and playing", st.Loops, st.State)
	}
	if p.secondary != nil {
		t.Error("secondary voice still held after crossfade")
	}
	if p.primary.gain != 0.7 {
		t.Errorf("primary gain = %v, want 0.7", p.primary.gain)
	}
}

func TestLoopGainNeverExceedsVolume(t *testing.T) {
	for _, curve := range []string{"linear", "smoothstep"} {
		cfg := DefaultConfig()
		cfg.Curve = curve
		p, err := NewPlayer(cfg, &fakeLoader{length: 12 * time.Second})
		if err != nil {
			t.Fatal(err)
		}
		mustPlay(t, p)

		maxSample := int16(level * 0.7)
		renderFor(p, 40*time.Second, func(frame []int16) {
			if g := totalGain(p); g > 0.7+1e-9 {
				t.Fatalf("%s: total gain %v exceeds volume", curve, g)
			}
			for _, s := range frame {
				if s > maxSample+1 {
					t.Fatalf("%s: sample %d louder than %d", curve, s, maxSample)
				}
			}
		})
		if p.Status().Loops < 4 {
			t.Errorf("%s: only %d loops in 40s", curve, p.Status().Loops)
		}
	}
}

func TestLoopIsGapless(t *testing.T) {
	tests := []struct {
		name      string
		length    time.Duration
		threshold time.Duration
		crossfade time.Duration
		curve     string
	}{
		{"default", 12 * time.Second, 5 * time.Second, 3 * time.Second, "linear"},
		{"crossfade equals threshold", 12 * time.Second, 5 * time.Second, 5 * time.Second, "linear"},
		{"3s clip", 3 * time.Second, 5 * time.Second, 3 * time.Second, "linear"},
		{"3s clip smoothstep", 3 * time.Second, 5 * time.Second, 3 * time.Second, "smoothstep"},
		{"2s clip", 2 * time.Second, 5 * time.Second, 3 * time.Second, "linear"},
		{"odd length clip", 2010 * time.Millisecond, 5 * time.Second, 3 * time.Second, "linear"},
		{"clip shorter than poll", 800 * time.Millisecond, 5 * time.Second, 3 * time.Second, "linear"},
		{"odd length tiny clip", 810 * time.Millisecond, 5 * time.Second, 3 * time.Second, "linear"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LoopThreshold = tt.threshold
			cfg.Crossfade = tt.crossfade
			cfg.Curve = tt.curve
			p, err := NewPlayer(cfg, &fakeLoader{length: tt.length})
			if err != nil {
				t.Fatal(err)
			}
			mustPlay(t, p)

			want := int16(level * 0.7)
			elapsed := time.Duration(0)
			renderFor(p, 30*time.Second, func(frame []int16) {
				elapsed += audio.FrameDuration
				for _, s := range frame {
					if d := int(s) - int(want); d > 2 || d < -2 {
						t.Fatalf("at %v: sample %d deviates from steady level %d", elapsed, s, want)
					}
				}
			})
			if p.Status().Loops < 1 {
				t.Errorf("no loops in 30s")
			}
		})
	}
}

func TestShortClipStillLoops(t *testing.T) {
	p, _ := newTestPlayer(t, 2*time.Second)
	mustPlay(t, p)
	renderFor(p, 10*time.Second, nil)
	st := p.Status()
	if st.Loops < 2 || !st.Playing {
		t.Errorf("short clip: loops=%d playing=%v, want >=2 and playing", st.Loops, st.Playing)
	}
}

func TestClipShorterThanPollRewinds(t *testing.T) {
	p, _ := newTestPlayer(t, 800*time.Millisecond)
	mustPlay(t, p)
	renderFor(p, 2*time.Second, nil)
	st := p.Status()
	if st.Loops < 1 || st.State == Idle {
		t.Errorf("tiny clip: loops=%d state=%v, want rewinds while playing", st.Loops, st.State)
	}
}

// --- Volume ---

func TestSetVolumeImmediate(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)
	p.SetVolume(0.4)
	if p.primary.gain != 0.4 {
		t.Errorf("gain after SetVolume = %v, want 0.4", p.primary.gain)
	}

	p.SetVolume(3)
	if st := p.Status(); st.Volume != 1 {
		t.Errorf("Volume = %v, want clamp to 1", st.Volume)
	}
	p.SetVolume(-1)
	if st := p.Status(); st.Volume != 0 {
		t.Errorf("Volume = %v, want clamp to 0", st.Volume)
	}
}

func TestSetVolumeMidCrossfade(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, 8*time.Second, nil)
	if p.Status().State != LoopTransition {
		t.Fatal("expected crossfade at 8s")
	}

	before := p.primary.gain
	p.SetVolume(0.3)
	if p.primary.gain != before {
		t.Error("SetVolume wrote the gain while a fade was running")
	}

	renderFor(p, 100*time.Millisecond, nil) // first fade step picks up the new target
	renderFor(p, 2900*time.Millisecond, func([]int16) {
		if g := totalGain(p); g > 0.3+1e-9 {
			t.Fatalf("total gain %v exceeds new volume", g)
		}
	})
	if p.Status().State != Playing {
		t.Fatal("crossfade did not finish")
	}
	if p.primary.gain != 0.3 {
		t.Errorf("gain after crossfade = %v, want latest volume 0.3", p.primary.gain)
	}
}

func TestSetVolumeMidKeyFadeIn(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)
	if err := p.SelectTrack(context.Background(), "G"); err != nil {
		t.Fatal(err)
	}
	renderFor(p, 1600*time.Millisecond, nil) // inside the fade-in
	p.SetVolume(0.9)
	renderFor(p, time.Second, nil)
	if p.Status().State != Playing || p.primary.gain != 0.9 {
		t.Errorf("state=%v gain=%v, want playing at 0.9", p.Status().State, p.primary.gain)
	}
}

// --- Key changes ---

func TestSelectTrackWhileIdle(t *testing.T) {
	p, loader := newTestPlayer(t, 12*time.Second)
	if err := p.SelectTrack(context.Background(), "Bb"); err != nil {
		t.Fatal(err)
	}
	if got := p.Status().Track.Key; got != "A#" {
		t.Errorf("Track = %s, want A#", got)
	}
	if len(loader.loads) != 0 || p.Status().Playing {
		t.Error("selecting while idle should not load or play")
	}
}

func TestSelectUnknownKey(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	err := p.SelectTrack(context.Background(), "H")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("SelectTrack(H) = %v, want ErrUnknownKey", err)
	}
	if !strings.Contains(err.Error(), "C C# D") {
		t.Errorf("error %q does not list the catalog keys", err)
	}
}

func TestSelectSameKeyIsNoop(t *testing.T) {
	p, loader := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	if err := p.SelectTrack(context.Background(), "C"); err != nil {
		t.Fatal(err)
	}
	if p.Status().State != Playing || len(loader.loads) != 1 {
		t.Error("selecting the current key should change nothing")
	}
}

func TestKeyChange(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)

	if err := p.SelectTrack(context.Background(), "D"); err != nil {
		t.Fatal(err)
	}
	if st := p.Status(); st.State != KeyChanging || st.Track.Key != "D" {
		t.Fatalf("after SelectTrack: %+v, want key_changing to D", st)
	}

	// 1s fade-out, 100ms gap, 1s fade-in.
	renderFor(p, 2200*time.Millisecond, func([]int16) {
		if g := totalGain(p); g > 0.7+1e-9 {
			t.Fatalf("total gain %v exceeds volume during key change", g)
		}
	})

	st := p.Status()
	if st.State != Playing || st.KeyChanges != 1 {
		t.Fatalf("after key change window: %+v", st)
	}
	if p.secondary != nil || audibleVoices(p) != 1 {
		t.Error("more than one voice audible after key change")
	}
	if p.primary.clip.Path != "/pads/D.mp3" || p.primary.gain != 0.7 {
		t.Errorf("active voice = %s at %v, want D.mp3 at 0.7", p.primary.clip.Path, p.primary.gain)
	}
}

func TestKeyChangeDuringCrossfade(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, 8*time.Second, nil)
	if p.Status().State != LoopTransition || audibleVoices(p) != 2 {
		t.Fatal("expected two audible voices mid-crossfade")
	}

	if err := p.SelectTrack(context.Background(), "E"); err != nil {
		t.Fatal(err)
	}
	renderFor(p, 2200*time.Millisecond, func([]int16) {
		if g := totalGain(p); g > 0.7+1e-9 {
			t.Fatalf("total gain %v exceeds volume", g)
		}
	})

	st := p.Status()
	if st.State != Playing || st.Loops != 0 || st.KeyChanges != 1 {
		t.Errorf("status = %+v, want playing with the crossfade cancelled", st)
	}
	if p.secondary != nil || p.primary.clip.Path != "/pads/E.mp3" {
		t.Error("only the new key should remain")
	}
	if p.fade != nil {
		t.Error("stale fade left running")
	}
}

func TestKeyChangeRetarget(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)
	p.SelectTrack(context.Background(), "D")
	renderFor(p, 500*time.Millisecond, nil)
	p.SelectTrack(context.Background(), "F")
	renderFor(p, 2200*time.Millisecond, nil)

	st := p.Status()
	if st.State != Playing || st.Track.Key != "F" || st.KeyChanges != 1 {
		t.Errorf("status = %+v, want playing F after one key change", st)
	}
	if p.primary.clip.Path != "/pads/F.mp3" {
		t.Errorf("active asset = %s, want F.mp3", p.primary.clip.Path)
	}
}

func TestKeyChangeToTinyClipKeepsSounding(t *testing.T) {
	p, _ := newTestPlayer(t, 800*time.Millisecond)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)

	if err := p.SelectTrack(context.Background(), "D"); err != nil {
		t.Fatalf("SelectTrack: %v", err)
	}
	// The fade-in outlasts the playable part of the clip several times over.
	renderFor(p, 2500*time.Millisecond, func(frame []int16) {
		if totalGain(p) == 0 {
			return
		}
		for _, s := range frame {
			if s <= 0 {
				t.Fatalf("silent sample while a voice is audible (state %v)", p.Status().State)
			}
		}
	})
	st := p.Status()
	if st.State != Playing || st.KeyChanges != 1 || st.Track.Key != "D" {
		t.Errorf("after key change: state=%v changes=%d key=%s, want playing, 1, D", st.State, st.KeyChanges, st.Track.Key)
	}
}

func TestKeyChangeLoadFailure(t *testing.T) {
	p, loader := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	loader.fail["D.mp3"] = errors.New("corrupt")

	if err := p.SelectTrack(context.Background(), "D"); err == nil {
		t.Fatal("SelectTrack should report the load failure")
	}
	st := p.Status()
	if st.State != Idle || st.Track.Key != "C" {
		t.Errorf("after failed key change: %+v, want idle on C", st)
	}
	if p.sched.pending() != 0 {
		t.Error("timers left after failed key change")
	}
}

func TestPauseDuringKeyChange(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	p.SelectTrack(context.Background(), "A")
	renderFor(p, 500*time.Millisecond, nil)
	p.Pause()
	renderFor(p, 5*time.Second, nil)
	st := p.Status()
	if st.State != Idle || st.KeyChanges != 0 || st.Track.Key != "A" {
		t.Errorf("status = %+v, want idle on A with no completed key change", st)
	}
}

// --- Teardown ---

func TestClose(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)
	renderFor(p, time.Second, nil)
	p.Close()

	if err := p.Play(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Play after Close = %v, want ErrClosed", err)
	}
	if err := p.SelectTrack(context.Background(), "D"); !errors.Is(err, ErrClosed) {
		t.Errorf("SelectTrack after Close = %v, want ErrClosed", err)
	}
	for _, s := range p.Render() {
		if s != 0 {
			t.Fatal("closed player rendered sound")
		}
	}
	if p.sched.pending() != 0 {
		t.Error("timers survived Close")
	}
}

func TestRenderConcurrentWithCommands(t *testing.T) {
	p, _ := newTestPlayer(t, 12*time.Second)
	mustPlay(t, p)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderFor(p, 20*time.Second, nil)
	}()
	for i, k := range []string{"D", "E", "F", "G"} {
		p.SetVolume(math.Mod(float64(i)*0.3, 1))
		p.SelectTrack(context.Background(), k)
	}
	wg.Wait()
	if st := p.Status(); !st.Playing {
		t.Errorf("player stopped: %+v", st)
	}
}
