// Package playback plays decoded PCM buffers back-to-back through an output
// device.
//
// The central type is [Queue]: a strictly FIFO queue of mono 16-bit PCM
// buffers with gapless chained scheduling. Each buffer's start time is
// computed from the previous buffer's end time rather than from its arrival
// time, so variable network latency on the producer side never opens audible
// gaps and never reorders playback.
//
// The production output device ([Oto]) wraps ebitengine/oto; the mock
// subpackage provides a silent device for tests. Scheduling is driven by a
// [Clock] so the gapless invariant can be tested with a fake clock and no
// audio hardware.
package playback

import (
	"errors"
	"time"
)

// ErrDeviceFailed is the playback-device error class. Device open failures
// and mid-stream write failures wrap it; both are fatal to the session.
var ErrDeviceFailed = errors.New("playback: output device error")

// Device is an audio output sink for raw mono 16-bit little-endian PCM.
//
// Play submits a buffer and returns without waiting for it to finish; the
// [Queue] paces submissions so that consecutive buffers abut exactly.
type Device interface {
	// Open prepares the device for the given format. Returns an error
	// wrapping [ErrDeviceFailed] if the device cannot be opened.
	Open(sampleRate, channels int) error

	// Play submits one PCM buffer for immediate playback.
	Play(pcm []byte) error

	// Close releases the device. Idempotent.
	Close() error
}

// Clock abstracts wall time for the scheduler. The zero-dependency production
// clock is [SystemClock]; tests inject a fake to make scheduling
// deterministic.
type Clock interface {
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production [Clock] backed by the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
