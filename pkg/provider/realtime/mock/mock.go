// Package mock provides test doubles for the realtime package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the inbound event stream and inspect which methods were
// invoked by the dispatch layer.
//
// Example:
//
//	sess := &mock.Session{EventsCh: make(chan realtime.Event, 8)}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/fieldops/voxdispatch/pkg/provider/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session with a buffered event channel.
	Session realtime.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{EventsCh: make(chan realtime.Event, 64)}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements realtime.Provider at compile time.
var _ realtime.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// PCM is a copy of the audio bytes that were passed to SendAudio.
	PCM []byte
}

// Session is a mock implementation of realtime.Session.
// Callers should pre-populate EventsCh (or use Emit), then close it to signal
// end-of-session.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel.
	EventsCh chan realtime.Event

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// ErrVal is returned by Err.
	ErrVal error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// eventsClosed tracks whether EventsCh has been closed.
	eventsClosed bool
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{PCM: cp})
	return s.SendAudioErr
}

// Events returns EventsCh.
func (s *Session) Events() <-chan realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Emit delivers one event on EventsCh. It blocks if the channel is full.
func (s *Session) Emit(ev realtime.Event) {
	s.mu.Lock()
	ch := s.EventsCh
	s.mu.Unlock()
	ch <- ev
}

// EmitClose closes EventsCh, signalling end-of-session to consumers.
// Closing twice (via EmitClose or Close) is a no-op.
func (s *Session) EmitClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEventsLocked()
}

// closeEventsLocked closes EventsCh at most once. Callers must hold s.mu.
func (s *Session) closeEventsLocked() {
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.EventsCh)
}

// Reopen swaps in a fresh events channel, making the session usable for a
// follow-up Connect after it was closed.
func (s *Session) Reopen(ch chan realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EventsCh = ch
	s.eventsClosed = false
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// SetErr sets the value returned by Err. Thread-safe.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrVal = err
}

// Close records the call, closes EventsCh like a real session would, and
// returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.closeEventsLocked()
	return s.CloseErr
}

// CloseCalls returns how many times Close was invoked. Thread-safe.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Sent returns copies of all audio chunks passed to SendAudio so far.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		out[i] = c.PCM
	}
	return out
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements realtime.Session at compile time.
var _ realtime.Session = (*Session)(nil)
