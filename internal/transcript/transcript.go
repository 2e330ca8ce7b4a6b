// Package transcript accumulates the running conversation text of a dispatch
// session.
//
// Assistant speech arrives as a stream of partial text deltas while caller
// speech arrives as complete utterances once transcription finishes. The
// [Log] coalesces consecutive assistant deltas into a single line and starts
// a fresh assistant line after any caller utterance, so the rendered log
// reads as an alternating conversation rather than a soup of fragments.
package transcript

import "sync"

// Speaker identifies who produced a transcript line.
type Speaker int

const (
	// SpeakerAssistant is the AI voice on the backend side.
	SpeakerAssistant Speaker = iota
	// SpeakerCaller is the human on the microphone side.
	SpeakerCaller
)

// String returns a short label for the speaker.
func (s Speaker) String() string {
	switch s {
	case SpeakerAssistant:
		return "AI"
	case SpeakerCaller:
		return "User"
	default:
		return "Unknown"
	}
}

// Line is one entry in the conversation log.
type Line struct {
	Speaker Speaker
	Text    string
}

// Log is a thread-safe, ordered conversation log.
//
// The zero value is ready to use.
type Log struct {
	mu    sync.Mutex
	lines []Line

	// assistantOpen is true while the last line is an assistant line that
	// further deltas should extend.
	assistantOpen bool
}

// AppendAssistantDelta appends a partial piece of assistant speech. Deltas
// are concatenated onto the current assistant line; if the previous entry was
// a caller line (or the log is empty), a new assistant line is started.
// Empty deltas are ignored.
func (l *Log) AppendAssistantDelta(delta string) {
	if delta == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.assistantOpen && len(l.lines) > 0 {
		l.lines[len(l.lines)-1].Text += delta
		return
	}
	l.lines = append(l.lines, Line{Speaker: SpeakerAssistant, Text: delta})
	l.assistantOpen = true
}

// AppendCallerLine appends one complete caller utterance as its own line.
// Any subsequent assistant delta starts a new line. Empty utterances are
// ignored.
func (l *Log) AppendCallerLine(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, Line{Speaker: SpeakerCaller, Text: text})
	l.assistantOpen = false
}

// Lines returns a snapshot copy of the log in arrival order.
func (l *Log) Lines() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Rendered returns the log formatted for display, one "Speaker: text" string
// per line.
func (l *Log) Rendered() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	for i, ln := range l.lines {
		out[i] = ln.Speaker.String() + ": " + ln.Text
	}
	return out
}

// Len returns the number of lines currently in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Reset discards all accumulated lines.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = nil
	l.assistantOpen = false
}
