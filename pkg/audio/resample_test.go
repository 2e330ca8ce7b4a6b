package audio_test

import (
	"testing"

	"github.com/fieldops/voxdispatch/pkg/audio"
)

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 24000, 24000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 8kHz should become 6 samples at 24kHz (3x).
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 8000, 24000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz should become 3 samples at 24kHz.
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 24000)
	got := bytesToSamples(out)
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
}

func TestResampleFloat32_Upsample(t *testing.T) {
	out := audio.ResampleFloat32([]float32{0, 1}, 12000, 24000)
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample: got %g, want 0", out[0])
	}
}

func TestResampleFloat32_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := audio.ResampleFloat32(in, 24000, 24000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}
