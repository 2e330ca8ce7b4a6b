// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime
// endpoint and exchanges JSON events. Caller audio is transmitted as
// base64-encoded PCM16 in input_audio_buffer.append messages; backend speech
// arrives as response.audio.delta events and transcripts as
// response.audio_transcript.delta and
// conversation.item.input_audio_transcription.completed events. Unknown
// event types are ignored; malformed payloads of known types are logged and
// dropped without terminating the session.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/fieldops/voxdispatch/pkg/audio"
	"github.com/fieldops/voxdispatch/pkg/provider/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime
// interfaces.
var (
	_ realtime.Provider = (*Provider)(nil)
	_ realtime.Session  = (*session)(nil)
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// eventBuf is the buffer depth of the session event channel. Deep enough
	// to absorb bursts of audio deltas without stalling the receive loop.
	eventBuf = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials the Realtime endpoint and configures the session for 24 kHz
// PCM16 audio with caller-side transcription enabled. The returned session
// is ready to accept audio once the session.update message has been sent.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan realtime.Event, eventBuf),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionParam `json:"input_audio_transcription,omitempty"`
}

type transcriptionParam struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail is the nested error object in a Realtime error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate configures voice, instructions, audio formats, and
// caller-side transcription.
func (s *session) sendSessionUpdate(cfg realtime.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &transcriptionParam{Model: "whisper-1"},
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("openai: write: %w", err)
	}
	return nil
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel: it closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("openai: dropping unparseable event", "err", err)
			continue
		}
		s.dispatch(&evt)
	}
}

// dispatch routes one server event. Unknown types are ignored; known types
// with malformed payloads are logged and dropped.
func (s *session) dispatch(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			slog.Warn("openai: audio delta without payload, dropping")
			return
		}
		pcm, err := audio.DecodePacket(evt.Delta)
		if err != nil || len(pcm) == 0 {
			slog.Warn("openai: undecodable audio delta, dropping", "err", err)
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventAudioDelta, PCM: pcm})

	case "response.audio.done":
		s.emit(realtime.Event{Kind: realtime.EventAudioDone})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventTranscriptDelta, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			slog.Warn("openai: transcription completed without transcript, dropping")
			return
		}
		s.emit(realtime.Event{Kind: realtime.EventTranscriptCompleted, Text: evt.Transcript})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(realtime.Event{Kind: realtime.EventError, Text: msg})
	}
}

func (s *session) emit(ev realtime.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// SendAudio delivers one raw PCM16 chunk as an input_audio_buffer.append
// message.
func (s *session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: audio.EncodePCM(pcm),
	})
}

// Events returns the channel on which inbound events arrive.
func (s *session) Events() <-chan realtime.Event { return s.events }

// Err returns the first transport error that terminated the session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases the connection. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}
