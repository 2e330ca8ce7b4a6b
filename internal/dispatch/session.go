// Package dispatch implements the voice dispatch session pipeline: it owns
// the microphone, the playback queue, and the backend connection for one
// session at a time, and drives the session state machine.
//
// A [Controller] is the user-facing façade. Each StartSession call builds a
// fresh session from the configured factories; the session acquires the
// microphone, opens the playback device, connects to the backend, and then
// bridges the two directions until torn down. Teardown is reachable from
// every terminal transition (user end, backend error, transport close,
// playback failure) and is idempotent, guarded by a single torn-down flag
// checked at the top of every async callback.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/voxdispatch/internal/observe"
	"github.com/fieldops/voxdispatch/internal/resilience"
	"github.com/fieldops/voxdispatch/internal/transcript"
	"github.com/fieldops/voxdispatch/pkg/audio"
	"github.com/fieldops/voxdispatch/pkg/audio/capture"
	"github.com/fieldops/voxdispatch/pkg/audio/playback"
	"github.com/fieldops/voxdispatch/pkg/provider/realtime"
)

// State is the connection state of a dispatch session.
type State int

const (
	// StateIdle means no session is running and a new one may be started.
	StateIdle State = iota
	// StateConnecting means session startup is in progress.
	StateConnecting
	// StateActive means the session is live: audio flows in both directions.
	StateActive
	// StateError means the session died from a fatal error and has been torn
	// down. A new StartSession call resets to idle.
	StateError
	// StateEnded means the transport closed and the session has been torn down.
	StateEnded
)

// String returns a short label for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ErrTransport indicates the backend connection failed to open or closed
// unexpectedly mid-session.
var ErrTransport = errors.New("dispatch: transport failure")

// BackendError is a fatal error reported by the backend itself over the
// session transport. Its message is surfaced to the user verbatim.
type BackendError struct {
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return "dispatch: backend error: " + e.Message
}

// defaultSendBuffer is the bounded depth of the outbound frame channel. One
// frame is ~171 ms at 24 kHz with 4096-sample frames, so 16 frames of
// backpressure tolerance is close to 3 s of audio before frames are dropped.
const defaultSendBuffer = 16

// sessionHooks are the callbacks a session uses to report upward to its
// controller. All hooks are non-nil (the controller installs no-op defaults).
type sessionHooks struct {
	// state is invoked on every state transition.
	state func(State)
	// notice is invoked once per user-visible failure with a readable summary.
	notice func(string)
	// transcriptChanged is invoked whenever the transcript log gains text.
	transcriptChanged func()
}

// session owns all per-session resources. One session maps to one start/end
// cycle; sessions are never reused.
type session struct {
	// id is a short random identifier carried through lifecycle logs.
	id string

	handle  realtime.Session
	mic     capture.Source
	queue   *playback.Queue
	guard   *resilience.DialGuard
	log     *transcript.Log
	metrics *observe.Metrics
	hooks   sessionHooks

	// deviceRate is the local capture and playback sample rate. Audio is
	// resampled to and from [audio.SessionRate] when they differ.
	deviceRate int

	sendCh chan []float32
	done   chan struct{}
	wg     sync.WaitGroup

	started time.Time

	mu       sync.Mutex
	state    State
	speaking bool
	// recording is true while the microphone is running within an active
	// session. It stays true while speaking suppresses outbound frames.
	recording bool
	tornDown  bool
}

// newSession builds a session around an acquired-but-not-started microphone.
// The caller wires the playback queue afterwards (its error callback needs
// the session pointer).
func newSession(mic capture.Source, metrics *observe.Metrics, hooks sessionHooks) *session {
	return &session{
		id:         newSessionID(),
		mic:        mic,
		deviceRate: audio.SessionRate,
		log:        &transcript.Log{},
		metrics:    metrics,
		hooks:      hooks,
		sendCh:     make(chan []float32, defaultSendBuffer),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
}

// newSessionID returns a short random hex identifier for log correlation.
func newSessionID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}

// start acquires the microphone, opens the playback device, and connects to
// the backend. On any failure it releases everything it acquired and returns
// the error; the session is then unusable.
//
// The microphone is acquired before the transport is dialed so that a device
// denial never opens a connection that must immediately be closed again.
func (s *session) start(ctx context.Context, provider realtime.Provider, cfg realtime.SessionConfig) error {
	s.setState(StateConnecting)

	if err := s.mic.Start(s.onFrame); err != nil {
		return fmt.Errorf("dispatch: start capture: %w", err)
	}

	if err := s.queue.Open(); err != nil {
		_ = s.mic.Stop()
		return fmt.Errorf("dispatch: open playback: %w", err)
	}

	connectStart := time.Now()
	var handle realtime.Session
	dial := func() error {
		var derr error
		handle, derr = provider.Connect(ctx, cfg)
		return derr
	}
	var err error
	if s.guard != nil {
		err = s.guard.Attempt(dial)
	} else {
		err = dial()
	}
	if err != nil {
		_ = s.mic.Stop()
		_ = s.queue.Close()
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	s.metrics.ConnectDuration.Record(ctx, time.Since(connectStart).Seconds())

	s.mu.Lock()
	s.handle = handle
	s.recording = true
	s.started = time.Now()
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(context.Background(), 1)
	s.setState(StateActive)
	slog.Info("dispatch: session active",
		"session_id", s.id,
		"connect_duration", time.Since(connectStart),
	)

	s.wg.Add(2)
	go s.sendLoop()
	go s.eventLoop()

	return nil
}

// onFrame is the capture callback. It runs on the audio thread and must not
// block: frames are handed to the sender goroutine through a bounded channel
// and dropped when the channel is full.
func (s *session) onFrame(samples []float32) {
	ctx := context.Background()

	s.mu.Lock()
	if s.tornDown || s.state != StateActive {
		s.mu.Unlock()
		s.metrics.FramesDropped.Add(ctx, 1)
		return
	}
	if s.speaking {
		// Half-duplex muting: never echo the assistant's own playback back
		// into the session. Capture keeps running.
		s.mu.Unlock()
		s.metrics.FramesMuted.Add(ctx, 1)
		return
	}
	s.mu.Unlock()

	select {
	case s.sendCh <- samples:
	default:
		s.metrics.FramesDropped.Add(ctx, 1)
	}
}

// sendLoop is the single goroutine that encodes and transmits outbound
// frames, preserving capture order.
func (s *session) sendLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case samples := <-s.sendCh:
			if s.deviceRate != audio.SessionRate {
				samples = audio.ResampleFloat32(samples, s.deviceRate, audio.SessionRate)
			}
			pcm := audio.FloatToPCM16(samples)
			if err := s.handle.SendAudio(pcm); err != nil {
				s.mu.Lock()
				torn := s.tornDown
				s.mu.Unlock()
				if torn {
					return
				}
				slog.Error("dispatch: send audio failed", "session_id", s.id, "err", err)
				s.fail("connection lost", "transport")
				return
			}
			s.metrics.FramesSent.Add(context.Background(), 1)
		}
	}
}

// eventLoop consumes backend events until the event channel closes or the
// session is torn down.
func (s *session) eventLoop() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-s.done:
			// Teardown has issued handle.Close; drain what the receive
			// loop still has buffered so it can exit.
			audio.Drain(s.handle.Events())
			return
		case ev, ok := <-s.handle.Events():
			if !ok {
				s.onTransportClosed()
				return
			}
			switch ev.Kind {
			case realtime.EventAudioDelta:
				s.mu.Lock()
				if s.tornDown {
					s.mu.Unlock()
					return
				}
				s.speaking = true
				s.mu.Unlock()
				pcm := ev.PCM
				if s.deviceRate != audio.SessionRate {
					pcm = audio.ResampleMono16(pcm, audio.SessionRate, s.deviceRate)
				}
				s.queue.Enqueue(pcm)
				s.metrics.AudioDeltas.Add(ctx, 1)

			case realtime.EventAudioDone:
				s.mu.Lock()
				s.speaking = false
				s.mu.Unlock()

			case realtime.EventTranscriptDelta:
				before := s.log.Len()
				s.log.AppendAssistantDelta(ev.Text)
				if s.log.Len() > before {
					s.metrics.RecordTranscriptLine(ctx, "ai")
				}
				s.hooks.transcriptChanged()

			case realtime.EventTranscriptCompleted:
				s.log.AppendCallerLine(ev.Text)
				s.metrics.RecordTranscriptLine(ctx, "user")
				s.hooks.transcriptChanged()

			case realtime.EventError:
				err := &BackendError{Message: ev.Text}
				slog.Error("dispatch: backend error", "session_id", s.id, "err", err)
				s.fail(ev.Text, "backend")
				return
			}
		}
	}
}

// onTransportClosed handles the backend event channel closing underneath an
// otherwise healthy session.
func (s *session) onTransportClosed() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.handle.Err(); err != nil {
		slog.Error("dispatch: transport closed unexpectedly", "session_id", s.id, "err", err)
		s.fail("connection lost", "transport")
		return
	}
	s.teardown(StateEnded)
}

// onPlaybackError handles a fatal output-device failure reported by the
// playback queue.
func (s *session) onPlaybackError(err error) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	slog.Error("dispatch: playback failed", "session_id", s.id, "err", err)
	s.fail("audio output failed", "playback")
}

// fail surfaces a user-visible notice, records the error, and tears the
// session down into the error state.
func (s *session) fail(notice, kind string) {
	s.metrics.RecordSessionError(context.Background(), kind)
	s.hooks.notice(notice)
	s.teardown(StateError)
}

// teardown stops frame production, closes the transport, and releases the
// playback device. It is safe to call from any goroutine and any number of
// times; only the first call does work and returns true. final is the state
// the session rests in afterwards.
func (s *session) teardown(final State) bool {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return false
	}
	s.tornDown = true
	s.speaking = false
	s.recording = false
	s.state = final
	started := s.started
	s.mu.Unlock()

	close(s.done)

	_ = s.mic.Stop()
	if s.handle != nil {
		_ = s.handle.Close()
	}
	_ = s.queue.Close()

	if !started.IsZero() {
		ctx := context.Background()
		s.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds())
		s.metrics.ActiveSessions.Add(ctx, -1)
		slog.Info("dispatch: session ended",
			"session_id", s.id,
			"final_state", final,
			"duration", time.Since(started),
		)
	}

	s.hooks.state(final)
	return true
}

// wait blocks until the session's background goroutines have exited. Used by
// tests and Controller.Close to observe full shutdown.
func (s *session) wait() {
	s.wg.Wait()
}

func (s *session) setState(st State) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.hooks.state(st)
}

func (s *session) info() (id string, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.started
}

func (s *session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) isRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *session) isSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
