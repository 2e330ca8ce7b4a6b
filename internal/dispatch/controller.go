package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/voxdispatch/internal/observe"
	"github.com/fieldops/voxdispatch/internal/resilience"
	"github.com/fieldops/voxdispatch/pkg/audio"
	"github.com/fieldops/voxdispatch/pkg/audio/capture"
	"github.com/fieldops/voxdispatch/pkg/audio/playback"
	"github.com/fieldops/voxdispatch/pkg/provider/realtime"
)

// Config configures a [Controller].
type Config struct {
	// Provider opens backend sessions. Required.
	Provider realtime.Provider

	// Session is the configuration passed to Provider.Connect.
	Session realtime.SessionConfig

	// NewSource builds a fresh microphone source per session. Required.
	NewSource func() capture.Source

	// NewDevice builds a fresh playback output device per session. Required.
	NewDevice func() playback.Device

	// SampleRate is the playback sample rate. Defaults to [audio.SessionRate].
	SampleRate int

	// Metrics receives pipeline metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Guard rate-limits dials against a repeatedly failing backend. A
	// default guard is installed when nil.
	Guard *resilience.DialGuard

	// OnNotice, if set, is invoked once per user-visible failure with a
	// human-readable summary.
	OnNotice func(msg string)

	// OnStateChange, if set, is invoked on every session state transition.
	OnStateChange func(st State)

	// OnTranscript, if set, is invoked whenever the transcript gains text.
	OnTranscript func()

	// OnPlaybackIdle, if set, is invoked when the playback queue drains.
	// This fires when queued audio finishes playing, which can lag the
	// backend's audio.done signal.
	OnPlaybackIdle func()
}

// Controller is the user-facing orchestrator: it starts and ends sessions
// and exposes read-only observable state. At most one session is live at a
// time; starting a new session fully tears down the previous one first so
// that the microphone and output device never have two owners.
//
// Controller is safe for concurrent use.
type Controller struct {
	cfg     Config
	metrics *observe.Metrics

	mu     sync.Mutex
	sess   *session
	closed bool
}

// NewController validates cfg and returns a Controller in the idle state.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("dispatch: config: Provider is required")
	}
	if cfg.NewSource == nil {
		return nil, fmt.Errorf("dispatch: config: NewSource is required")
	}
	if cfg.NewDevice == nil {
		return nil, fmt.Errorf("dispatch: config: NewDevice is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SessionRate
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewDialGuard(resilience.DialGuardConfig{Name: "backend"})
	}
	if cfg.OnNotice == nil {
		cfg.OnNotice = func(string) {}
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(State) {}
	}
	if cfg.OnTranscript == nil {
		cfg.OnTranscript = func() {}
	}
	if cfg.OnPlaybackIdle == nil {
		cfg.OnPlaybackIdle = func() {}
	}
	return &Controller{cfg: cfg, metrics: metrics}, nil
}

// StartSession starts a new dispatch session. It is a no-op when a session
// is already connecting or active. Any previous (dead) session is fully torn
// down before new devices are acquired.
//
// Failures are surfaced through OnNotice and also returned: a start-path
// failure leaves the controller idle and ready for another attempt.
func (c *Controller) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("dispatch: controller is closed")
	}
	if c.sess != nil {
		switch c.sess.currentState() {
		case StateConnecting, StateActive:
			c.mu.Unlock()
			return nil
		}
		// Previous session is dead; release its resources before acquiring
		// new ones.
		c.sess.teardown(StateIdle)
		c.sess = nil
	}

	sess := newSession(c.cfg.NewSource(), c.metrics, sessionHooks{
		state:             c.cfg.OnStateChange,
		notice:            c.cfg.OnNotice,
		transcriptChanged: c.cfg.OnTranscript,
	})
	sess.guard = c.cfg.Guard
	sess.deviceRate = c.cfg.SampleRate
	sess.queue = playback.NewQueue(c.cfg.NewDevice(), c.cfg.SampleRate,
		playback.WithOnError(sess.onPlaybackError),
		playback.WithOnIdle(func() {
			slog.Debug("dispatch: playback drained", "session_id", sess.id)
			c.cfg.OnPlaybackIdle()
		}),
	)
	c.sess = sess
	c.mu.Unlock()

	if err := sess.start(ctx, c.cfg.Provider, c.cfg.Session); err != nil {
		c.cfg.OnNotice(noticeFor(err))
		c.metrics.RecordSessionError(context.Background(), errorKind(err))

		// Back to a clean idle state, ready to start again.
		c.mu.Lock()
		if c.sess == sess {
			c.sess = nil
		}
		c.mu.Unlock()
		sess.teardown(StateIdle)
		return err
	}
	return nil
}

// EndSession tears down the current session, if any, and returns the
// controller to idle. Idempotent; safe to call at any time.
func (c *Controller) EndSession() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	tore := sess.teardown(StateIdle)
	sess.wait()
	if !tore {
		// The session already rested in a terminal state (error or ended),
		// so teardown reported nothing; announce the return to idle here.
		c.cfg.OnStateChange(StateIdle)
	}
}

// Close permanently shuts the controller down, tearing down any live session.
// It backs the unmount guarantee: after Close the microphone and transport
// are released and StartSession always fails.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.EndSession()
	return nil
}

// ConnectionState returns the current session state, or [StateIdle] when no
// session exists.
func (c *Controller) ConnectionState() State {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return StateIdle
	}
	return sess.currentState()
}

// SessionInfo identifies the current session for display and log correlation.
type SessionInfo struct {
	ID      string
	Started time.Time
}

// CurrentSession returns the identifier and start time of the live session.
// ok is false when the controller is idle.
func (c *Controller) CurrentSession() (info SessionInfo, ok bool) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return SessionInfo{}, false
	}
	switch sess.currentState() {
	case StateConnecting, StateActive:
	default:
		return SessionInfo{}, false
	}
	id, started := sess.info()
	return SessionInfo{ID: id, Started: started}, true
}

// IsRecording reports whether the microphone is live inside an active
// session. It stays true while the assistant is speaking even though frames
// are suppressed.
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	return sess != nil && sess.isRecording()
}

// IsSpeaking reports whether the assistant is currently producing audio.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	return sess != nil && sess.isSpeaking()
}

// Transcript returns the rendered transcript of the current session, one
// "Speaker: text" string per line. Empty when no session exists.
func (c *Controller) Transcript() []string {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.log.Rendered()
}

// noticeFor maps a start-path error to a user-visible summary.
func noticeFor(err error) string {
	switch {
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "microphone unavailable"
	case errors.Is(err, playback.ErrDeviceFailed):
		return "audio output unavailable"
	case errors.Is(err, ErrTransport):
		return "could not reach dispatch backend"
	default:
		return "failed to start session"
	}
}

// errorKind maps a start-path error to a metrics attribute value.
func errorKind(err error) string {
	switch {
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "device"
	case errors.Is(err, playback.ErrDeviceFailed):
		return "playback"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
