package audio_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/technolifts/presence/pkg/audio"
)

func TestResample_SameRate(t *testing.T) {
	in := []float64{0.1, 0.2, 0.3}
	out := audio.Resample(in, 48000, 48000)
	// Same backing array, not a copy.
	if &out[0] != &in[0] {
		t.Error("expected same slice (zero allocation) for matching rates")
	}
}

func TestResample_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x).
	out := audio.Resample([]float64{0.1, 0.4}, 16000, 48000)
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	if out[0] != 0.1 {
		t.Errorf("first sample: got %v, want 0.1", out[0])
	}
	// Last output samples sit past the final source sample and hold its value.
	if diff := math.Abs(out[5] - 0.4); diff > 1e-9 {
		t.Errorf("last sample: got %v, want 0.4", out[5])
	}
}

func TestResample_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x); both positions land
	// exactly on source samples.
	out := audio.Resample([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 48000, 16000)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	if out[0] != 0.1 || out[1] != 0.4 {
		t.Errorf("got %v, want [0.1 0.4]", out)
	}
}

func TestResample_Interpolates(t *testing.T) {
	// Doubling the rate puts every other output sample halfway between two
	// source samples.
	out := audio.Resample([]float64{0, 1}, 22050, 44100)
	want := []float64{0, 0.5, 1, 1}
	if len(out) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResample_InvalidRates(t *testing.T) {
	in := []float64{0.1, 0.2}
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 48000}} {
		out := audio.Resample(in, rates[0], rates[1])
		if len(out) != len(in) {
			t.Errorf("rates %v: expected input unchanged, got len %d", rates, len(out))
		}
	}
}

func TestResample_Empty(t *testing.T) {
	if out := audio.Resample(nil, 16000, 48000); len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}
}

func TestNormalize_StereoOffRate(t *testing.T) {
	// Stereo 22050 Hz input downmixes and upsamples to mono 44100 Hz.
	in := buildWAV(2, 22050, []int16{100, 200, 300, 400})

	out, info, err := audio.Normalize(in, 44100)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if info.Channels != 1 || info.SampleRate != 44100 || info.BitsPerSample != 16 {
		t.Errorf("unexpected format: %dch %dHz %d-bit",
			info.Channels, info.SampleRate, info.BitsPerSample)
	}
	if info.Frames != 4 {
		t.Errorf("frames: got %d, want 4", info.Frames)
	}

	got := bytesToSamples(out[44:])
	// Downmixed frames are 150 and 350; upsampling doubles them with a
	// midpoint in between and the trailing position repeating the last frame.
	want := []int16{150, 250, 350, 350}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}

	// The reported info must agree with the blob itself.
	parsed, err := audio.Info(out)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if parsed != info {
		t.Errorf("info mismatch: reported %+v, parsed %+v", info, parsed)
	}
}

func TestNormalize_PassThrough(t *testing.T) {
	// Input already in the target format survives unchanged.
	in := buildWAV(1, 44100, []int16{1, -1, 32767, -32768})

	out, _, err := audio.Normalize(in, 44100)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("pass-through input was modified")
	}
}

func TestNormalize_InvalidTarget(t *testing.T) {
	in := buildWAV(1, 44100, []int16{0})
	if _, _, err := audio.Normalize(in, 0); err == nil {
		t.Error("expected error for zero target rate")
	}
}

func TestNormalize_BadInput(t *testing.T) {
	if _, _, err := audio.Normalize([]byte("definitely not audio"), 44100); !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("got %v, want ErrNotWAV", err)
	}
}
