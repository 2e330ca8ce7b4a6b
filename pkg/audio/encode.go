package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// FloatToPCM16 quantizes float32 samples in [-1, 1] to 16-bit signed
// little-endian PCM. Samples outside the range are clamped. Positive samples
// scale by 32767 and negative samples by 32768, the standard asymmetric
// quantization for signed 16-bit audio.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts 16-bit signed little-endian PCM back to float32
// samples in [-1, 1]. A trailing odd byte is ignored rather than treated as
// an error, so truncated buffers never fail.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out
}

// EncodeFrame converts captured float32 samples to the wire representation:
// 16-bit little-endian PCM, base64-encoded for transport in a JSON field.
// The encoding is lossless with respect to the quantized 16-bit samples.
func EncodeFrame(samples []float32) string {
	return EncodePCM(FloatToPCM16(samples))
}

// EncodePCM base64-encodes a raw PCM byte buffer for transport.
func EncodePCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodePacket is the inverse of EncodePCM: it base64-decodes a transport
// string back to raw 16-bit little-endian PCM bytes. The bytes are handed to
// the playback path unmodified; no resampling happens here.
func DecodePacket(s string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode packet: %w", err)
	}
	return pcm, nil
}
