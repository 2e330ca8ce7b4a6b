package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/fieldops/voxdispatch/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFloatToPCM16_Quantization(t *testing.T) {
	got := bytesToSamples(audio.FloatToPCM16([]float32{0, 1, -1, 0.5, -0.5}))
	want := []int16{0, 32767, -32768, 16383, -16384}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFloatToPCM16_Clamping(t *testing.T) {
	got := bytesToSamples(audio.FloatToPCM16([]float32{2.5, -3.0, 1.0001}))
	want := []int16{32767, -32768, 32767}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRoundTrip_Lossless16Bit(t *testing.T) {
	// decode(encode(x)) must reproduce x to 16-bit precision: max error
	// 1/32768 per sample.
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 13.7))
	}

	encoded := audio.EncodeFrame(samples)
	pcm, err := audio.DecodePacket(encoded)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	decoded := audio.PCM16ToFloat(pcm)

	if len(decoded) != len(samples) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(samples))
	}
	const maxErr = 1.0 / 32768
	for i := range samples {
		diff := math.Abs(float64(samples[i]) - float64(decoded[i]))
		if diff > maxErr {
			t.Fatalf("sample %d: error %g exceeds %g (in=%g out=%g)",
				i, diff, maxErr, samples[i], decoded[i])
		}
	}
}

func TestRoundTrip_PCMExact(t *testing.T) {
	// The base64 leg must be lossless with respect to the PCM bytes.
	pcm := samplesToBytes([]int16{0, 1, -1, 32767, -32768, 12345, -12345})
	got, err := audio.DecodePacket(audio.EncodePCM(pcm))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(got) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(pcm))
	}
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Errorf("byte %d: got %#x, want %#x", i, got[i], pcm[i])
		}
	}
}

func TestDecodePacket_Invalid(t *testing.T) {
	if _, err := audio.DecodePacket("not!!base64##"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestPCM16ToFloat_OddLength(t *testing.T) {
	// A trailing odd byte is ignored, not an error.
	got := audio.PCM16ToFloat([]byte{0x00, 0x40, 0x7f})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}

func TestEncodeFrame_Empty(t *testing.T) {
	if s := audio.EncodeFrame(nil); s != "" {
		t.Errorf("empty frame should encode to empty string, got %q", s)
	}
}
