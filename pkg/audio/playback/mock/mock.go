// Package mock provides a silent [playback.Device] for tests.
package mock

import (
	"sync"

	"github.com/fieldops/voxdispatch/pkg/audio/playback"
)

// Compile-time assertion that Device satisfies the playback.Device interface.
var _ playback.Device = (*Device)(nil)

// Play records one submitted buffer.
type Play struct {
	PCM []byte
}

// Device is a scriptable playback.Device that records every submitted buffer
// in order.
type Device struct {
	// OpenErr, when non-nil, is returned by Open. Set it to simulate a
	// playback device that cannot be acquired.
	OpenErr error

	// PlayErr, when non-nil, is returned by Play to simulate a mid-stream
	// device failure.
	PlayErr error

	mu         sync.Mutex
	plays      []Play
	openCalls  int
	closeCalls int
	opened     bool
}

// Open records the call and fails with OpenErr when set.
func (d *Device) Open(sampleRate, channels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.opened = true
	return nil
}

// Play records the submitted buffer.
func (d *Device) Play(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayErr != nil {
		return d.PlayErr
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	d.plays = append(d.plays, Play{PCM: buf})
	return nil
}

// Close records the call. Idempotent like the real device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	d.opened = false
	return nil
}

// Plays returns a snapshot of all submitted buffers in submission order.
func (d *Device) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Play, len(d.plays))
	copy(out, d.plays)
	return out
}

// OpenCalls returns how many times Open was invoked.
func (d *Device) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

// CloseCalls returns how many times Close was invoked.
func (d *Device) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}
