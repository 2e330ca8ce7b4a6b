// Package mock provides a hardware-free [capture.Source] for tests.
package mock

import (
	"sync"

	"github.com/fieldops/voxdispatch/pkg/audio/capture"
)

// Compile-time assertion that Source satisfies the capture.Source interface.
var _ capture.Source = (*Source)(nil)

// Source is a scriptable capture.Source. Tests call [Source.Push] to simulate
// device frame callbacks after Start has been called.
type Source struct {
	// StartErr, when non-nil, is returned by Start. Set it to
	// capture.ErrDeviceUnavailable to simulate permission denial.
	StartErr error

	mu         sync.Mutex
	fn         capture.FrameFunc
	started    bool
	startCalls int
	stopCalls  int
}

// Start records the callback and marks the source started.
func (s *Source) Start(fn capture.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.fn = fn
	s.started = true
	return nil
}

// Stop marks the source stopped. Idempotent, like the real device.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	s.started = false
	s.fn = nil
	return nil
}

// Push delivers one frame to the registered callback, simulating a capture
// tick. Frames pushed while the source is stopped are dropped, matching real
// device behaviour after Stop.
func (s *Source) Push(samples []float32) {
	s.mu.Lock()
	fn := s.fn
	started := s.started
	s.mu.Unlock()
	if started && fn != nil {
		fn(samples)
	}
}

// Started reports whether the source is currently capturing.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StartCalls returns how many times Start was invoked.
func (s *Source) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// StopCalls returns how many times Stop was invoked.
func (s *Source) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}
