package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/fieldops/voxdispatch/pkg/audio"
)

// Compile-time assertion that Mic satisfies the Source interface.
var _ Source = (*Mic)(nil)

// Mic is a [Source] backed by the system default microphone via miniaudio.
// miniaudio converts to the requested format and rate internally, so frames
// arrive as mono float32 at the configured sample rate regardless of what
// the hardware natively supports.
type Mic struct {
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	started bool

	// pending accumulates backend callback data into fixed frameSize frames.
	// Only touched from the malgo data callback, which miniaudio serialises.
	pending []float32
}

// NewMic creates a microphone source that delivers frames of frameSize
// samples at sampleRate Hz. Zero or negative arguments fall back to
// [audio.SessionRate] and [audio.DefaultFrameSamples].
func NewMic(sampleRate, frameSize int) *Mic {
	if sampleRate <= 0 {
		sampleRate = audio.SessionRate
	}
	if frameSize <= 0 {
		frameSize = audio.DefaultFrameSamples
	}
	return &Mic{sampleRate: sampleRate, frameSize: frameSize}
}

// Start acquires the default capture device and begins delivering frames.
func (m *Mic) Start(fn FrameFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("capture: already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			m.onData(input, fn)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	m.ctx = ctx
	m.dev = dev
	m.started = true
	m.pending = m.pending[:0]
	return nil
}

// onData converts the backend's raw f32 bytes and re-slices them into fixed
// frameSize frames. Runs on the miniaudio callback thread; fn must not block.
func (m *Mic) onData(input []byte, fn FrameFunc) {
	for i := 0; i+3 < len(input); i += 4 {
		m.pending = append(m.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
	}
	for len(m.pending) >= m.frameSize {
		frame := make([]float32, m.frameSize)
		copy(frame, m.pending[:m.frameSize])
		m.pending = m.pending[:copy(m.pending, m.pending[m.frameSize:])]
		fn(frame)
	}
}

// Stop releases the capture device. Idempotent.
func (m *Mic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	m.dev.Uninit()
	m.dev = nil
	_ = m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	m.pending = nil
	return nil
}
