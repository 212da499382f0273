package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

// ErrUnsupportedFormat is returned when no native decoder handles a file
// and the FFmpeg fallback is unavailable.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// resampleQuality is the beep resampler quality (1-64).
const resampleQuality = 4

// DecodeFile decodes an audio file to interleaved stereo int16 samples at 48kHz.
// MP3, WAV, FLAC and Ogg Vorbis are decoded natively; anything else goes
// through FFmpeg.
func DecodeFile(path string) ([]int16, error) {
	decode := nativeDecoder(path)
	if decode == nil {
		return decodeFFmpeg(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	s, format, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != beep.SampleRate(SampleRate) {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(SampleRate), s)
	}

	samples, err := drain(src, s.Len())
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return samples, nil
}

type decoderFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

func nativeDecoder(path string) decoderFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) }
	case ".wav":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }
	case ".flac":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) }
	case ".ogg":
		return func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) }
	}
	return nil
}

// drain pulls every sample out of s. sizeHint is the source length in frames.
func drain(s beep.Streamer, sizeHint int) ([]int16, error) {
	out := make([]int16, 0, sizeHint*Channels)
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			out = append(out, FloatToSample(smp[0]), FloatToSample(smp[1]))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeFFmpeg runs FFmpeg to decode an audio file to raw PCM int16 samples.
func decodeFFmpeg(path string) ([]int16, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
