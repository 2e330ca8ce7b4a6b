// Package capture owns the microphone input device for a dispatch session.
//
// The central abstraction is [Source]: start it with a per-frame callback and
// it delivers fixed-size buffers of mono float32 samples at a steady cadence
// until stopped. The production implementation ([Mic]) wraps the miniaudio
// library via gen2brain/malgo; the mock subpackage provides a hardware-free
// implementation for tests.
//
// A Source is the only pipeline component that holds a real-time OS resource.
// Exactly one Source may be active per process; the session layer enforces
// this by constructing a fresh Source per session and tearing down the
// previous one first.
package capture

import "errors"

// ErrDeviceUnavailable is returned by [Source.Start] when the microphone
// cannot be acquired: permission denied, no hardware, or the audio backend
// failed to initialise. It is not retryable automatically; callers surface it
// to the user and leave the session unstarted.
var ErrDeviceUnavailable = errors.New("capture: input device unavailable")

// FrameFunc receives one frame of mono float32 samples in [-1, 1].
//
// The callback runs on the audio backend's realtime thread and must not
// block: hand the data off (e.g., to a buffered channel) and return. Capture
// continues uninterrupted regardless of what downstream does with the frame.
type FrameFunc func(samples []float32)

// Source is an audio input device that emits fixed-size frames to a
// caller-supplied callback.
//
// Implementations must be safe for concurrent use of Start and Stop.
type Source interface {
	// Start acquires the input device and begins delivering frames to fn.
	// Returns an error wrapping [ErrDeviceUnavailable] if the device cannot
	// be acquired. Calling Start on an already started Source is an error.
	Start(fn FrameFunc) error

	// Stop releases the device. It is idempotent and safe to call from any
	// state, including before Start and after a failed Start.
	Stop() error
}
