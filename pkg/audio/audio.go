// Package audio defines the sample formats and pure PCM transforms used by
// the voxdispatch pipeline.
//
// The dispatch backend speaks a single audio format: mono 16-bit signed
// little-endian PCM at 24 kHz, carried base64-encoded inside JSON messages.
// Everything in this package is a deterministic, allocation-light transform
// between that wire format and the float32 sample domain the capture device
// works in. No function here touches a device, a socket, or a logger, so the
// whole package is unit-testable without audio hardware.
package audio

import "time"

// SessionRate is the sample rate in Hz fixed by the dispatch backend for both
// the capture and playback paths.
const SessionRate = 24000

// DefaultFrameSamples is the default number of samples delivered per capture
// tick. At 24 kHz this is roughly 170 ms of audio.
const DefaultFrameSamples = 4096

// PCMDuration returns the playback duration of a mono 16-bit PCM byte buffer
// at the given sample rate.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
