package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Assets
	AssetDir  string
	ClipCache int // decoded clips kept in memory

	// Pad behavior
	StartingKey   string
	Volume        float64
	LoopThreshold time.Duration // remaining time that triggers a loop crossfade
	PollInterval  time.Duration
	Crossfade     time.Duration
	FadeStep      time.Duration
	KeyFade       time.Duration
	KeyGap        time.Duration
	StartOffset   time.Duration
	FadeCurve     string // linear, smoothstep

	// Outputs
	Speaker       bool          // play on the local sound card
	SpeakerBuffer time.Duration // sound card buffer
	OpusBitrate   int           // WebRTC bits/s
	MP3Bitrate    string        // HTTP stream, ffmpeg syntax
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("PAD_PORT", 8080),

		AssetDir:  envStr("PAD_ASSET_DIR", "assets/pad/fundations"),
		ClipCache: envInt("PAD_CLIP_CACHE", 2),

		StartingKey:   envStr("PAD_KEY", "C"),
		Volume:        envFloat("PAD_VOLUME", 0.7),
		LoopThreshold: envMillis("PAD_LOOP_THRESHOLD_MS", 5000),
		PollInterval:  envMillis("PAD_POLL_MS", 1000),
		Crossfade:     envMillis("PAD_CROSSFADE_MS", 3000),
		FadeStep:      envMillis("PAD_FADE_STEP_MS", 50),
		KeyFade:       envMillis("PAD_KEY_FADE_MS", 1000),
		KeyGap:        envMillis("PAD_KEY_GAP_MS", 100),
		StartOffset:   envMillis("PAD_START_OFFSET_MS", 500),
		FadeCurve:     envStr("PAD_CURVE", "linear"),

		Speaker:       envBool("PAD_SPEAKER", false),
		SpeakerBuffer: envMillis("PAD_SPEAKER_BUFFER_MS", 100),
		OpusBitrate:   envInt("PAD_OPUS_BITRATE", 128000),
		MP3Bitrate:    envStr("PAD_MP3_BITRATE", "192k"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
