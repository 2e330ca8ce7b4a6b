package playback

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Compile-time assertion that Oto satisfies the Device interface.
var _ Device = (*Oto)(nil)

// Oto is a [Device] backed by ebitengine/oto. Each Play call hands the
// buffer to a fresh oto player which drains it asynchronously; the Queue's
// chained start times keep consecutive buffers gapless.
type Oto struct {
	mu     sync.Mutex
	ctx    *oto.Context
	opened bool
}

// NewOto creates an unopened oto output device.
func NewOto() *Oto {
	return &Oto{}
}

// Open creates the oto context for the given format and waits for the audio
// backend to become ready.
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.opened {
		return nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceFailed, err)
	}
	<-ready

	o.ctx = ctx
	o.opened = true
	return nil
}

// Play submits one PCM buffer. The player drains on its own; oto releases it
// once playback completes.
func (o *Oto) Play(pcm []byte) error {
	o.mu.Lock()
	ctx := o.ctx
	opened := o.opened
	o.mu.Unlock()

	if !opened {
		return fmt.Errorf("%w: not open", ErrDeviceFailed)
	}
	p := ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()
	return nil
}

// Close suspends the oto context. oto contexts cannot be destroyed, so Close
// stops the audio thread and marks the device unusable. Idempotent.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.opened {
		return nil
	}
	o.opened = false
	return o.ctx.Suspend()
}
