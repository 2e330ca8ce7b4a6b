// Package realtime defines the Provider interface for realtime voice
// dispatch backends.
//
// A realtime provider wraps a speech/AI service that accepts streamed caller
// audio and returns synthesised speech plus transcripts over one persistent,
// bidirectional connection. The backend is treated as opaque: this package
// only models the session handle and the typed events it emits.
//
// The central abstraction is [Session]: audio goes in via SendAudio, and
// everything the backend produces comes back as a single ordered stream of
// [Event] values. Sessions are long-lived (seconds to minutes) and are not
// resumable; a dropped connection means a new Connect call.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// EventKind discriminates the message kinds a session emits. Exactly one
// handling path exists per kind; messages of unknown kind never surface as
// events (implementations drop them).
type EventKind int

const (
	// EventAudioDelta carries one decoded PCM chunk of synthesised speech.
	EventAudioDelta EventKind = iota

	// EventAudioDone signals the end of the current synthesised utterance.
	EventAudioDone

	// EventTranscriptDelta carries an incremental text fragment of the
	// backend's spoken response.
	EventTranscriptDelta

	// EventTranscriptCompleted carries a finalized transcription of what the
	// caller said.
	EventTranscriptCompleted

	// EventError carries a backend-reported error. Always fatal to the
	// session; the Text field holds the backend's message verbatim.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAudioDelta:
		return "AUDIO_DELTA"
	case EventAudioDone:
		return "AUDIO_DONE"
	case EventTranscriptDelta:
		return "TRANSCRIPT_DELTA"
	case EventTranscriptCompleted:
		return "TRANSCRIPT_COMPLETED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound message from the backend, already decoded. Which
// fields are populated depends on Kind.
type Event struct {
	Kind EventKind

	// PCM holds decoded 16-bit little-endian mono PCM for EventAudioDelta.
	PCM []byte

	// Text holds the fragment for transcript events and the backend message
	// for EventError.
	Text string
}

// SessionConfig is the initial configuration for a new dispatch session.
type SessionConfig struct {
	// Voice selects the synthesised voice for backend speech. Empty uses the
	// provider default.
	Voice string

	// Instructions is the system-level prompt describing the dispatch
	// assistant's behaviour.
	Instructions string
}

// Session represents an open dispatch session. It is an interface so that
// test code can supply mock implementations without a live backend.
//
// All methods must be safe for concurrent use and must return quickly; audio
// delivery is channel-based to keep the caller's audio path non-blocking.
type Session interface {
	// SendAudio delivers one chunk of raw 16-bit little-endian mono PCM at
	// the session sample rate. Returns an error if the session is closed or
	// the transport write fails.
	SendAudio(pcm []byte) error

	// Events returns the ordered stream of inbound events. The channel is
	// closed when the session ends for any reason; after it closes, call
	// [Session.Err] to distinguish a clean close from a transport failure.
	// Consumers must drain this channel promptly.
	Events() <-chan Event

	// Err returns the transport error that terminated the session, or nil if
	// it ended cleanly (peer close or local Close).
	Err() error

	// Close terminates the session and releases the connection. Safe to call
	// more than once; subsequent calls return nil.
	Close() error
}

// Provider is the abstraction over any realtime dispatch backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned Session is ready to accept audio immediately. The caller owns
	// the Session and must call Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
