package playback_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/voxdispatch/pkg/audio"
	"github.com/fieldops/voxdispatch/pkg/audio/playback"
	"github.com/fieldops/voxdispatch/pkg/audio/playback/mock"
)

// fakeClock is a virtual clock: After advances time by the full wait and
// fires immediately, so the scheduler's chained start times are exact and
// tests run without real delays.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// recordingDevice wraps the mock device and stamps each play with the
// clock's current (virtual) time, which equals the scheduled start time.
type recordingDevice struct {
	*mock.Device
	clock *fakeClock

	mu     sync.Mutex
	starts []time.Time
}

func (d *recordingDevice) Play(pcm []byte) error {
	d.mu.Lock()
	d.starts = append(d.starts, d.clock.Now())
	d.mu.Unlock()
	return d.Device.Play(pcm)
}

func (d *recordingDevice) startTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.starts))
	copy(out, d.starts)
	return out
}

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("waitFor: condition not met before timeout")
}

// pcmOfSamples returns a PCM buffer of n distinct mono samples.
func pcmOfSamples(n int, fill byte) []byte {
	buf := make([]byte, n*2)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func TestQueue_FIFOOrder(t *testing.T) {
	clock := newFakeClock()
	dev := &recordingDevice{Device: &mock.Device{}, clock: clock}
	q := playback.NewQueue(dev, audio.SessionRate, playback.WithClock(clock))
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	a := pcmOfSamples(2400, 0xaa)
	b := pcmOfSamples(4800, 0xbb)
	c := pcmOfSamples(1200, 0xcc)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	waitFor(t, func() bool { return len(dev.Plays()) == 3 })

	plays := dev.Plays()
	if plays[0].PCM[0] != 0xaa || plays[1].PCM[0] != 0xbb || plays[2].PCM[0] != 0xcc {
		t.Fatalf("playback order violated: got fills %#x, %#x, %#x",
			plays[0].PCM[0], plays[1].PCM[0], plays[2].PCM[0])
	}
}

func TestQueue_GaplessChaining(t *testing.T) {
	clock := newFakeClock()
	dev := &recordingDevice{Device: &mock.Device{}, clock: clock}
	q := playback.NewQueue(dev, audio.SessionRate, playback.WithClock(clock))
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	// 2400 samples at 24kHz = 100ms per buffer.
	bufs := [][]byte{pcmOfSamples(2400, 1), pcmOfSamples(2400, 2), pcmOfSamples(2400, 3)}
	for _, b := range bufs {
		q.Enqueue(b)
	}
	waitFor(t, func() bool { return len(dev.Plays()) == 3 })

	starts := dev.startTimes()
	for i := 1; i < len(starts); i++ {
		if starts[i].Before(starts[i-1]) {
			t.Fatalf("start times not monotonic: %v before %v", starts[i], starts[i-1])
		}
		gap := starts[i].Sub(starts[i-1])
		if gap != 100*time.Millisecond {
			t.Errorf("buffer %d: gap = %v, want exactly 100ms (gapless chaining)", i, gap)
		}
	}
}

func TestQueue_ChainsAcrossDrain(t *testing.T) {
	// A buffer enqueued while the previous one is still "playing" on the
	// virtual clock must start at the previous buffer's end, not at enqueue
	// time.
	clock := newFakeClock()
	dev := &recordingDevice{Device: &mock.Device{}, clock: clock}
	q := playback.NewQueue(dev, audio.SessionRate, playback.WithClock(clock))
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	q.Enqueue(pcmOfSamples(2400, 1))
	waitFor(t, func() bool { return len(dev.Plays()) == 1 })
	q.Enqueue(pcmOfSamples(2400, 2))
	waitFor(t, func() bool { return len(dev.Plays()) == 2 })

	starts := dev.startTimes()
	if got := starts[1].Sub(starts[0]); got != 100*time.Millisecond {
		t.Errorf("second buffer start offset = %v, want 100ms", got)
	}
}

func TestQueue_IdleCallback(t *testing.T) {
	clock := newFakeClock()
	dev := &recordingDevice{Device: &mock.Device{}, clock: clock}

	idle := make(chan struct{}, 4)
	q := playback.NewQueue(dev, audio.SessionRate,
		playback.WithClock(clock),
		playback.WithOnIdle(func() { idle <- struct{}{} }),
	)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	q.Enqueue(pcmOfSamples(2400, 1))
	select {
	case <-idle:
	case <-time.After(3 * time.Second):
		t.Fatal("idle callback never fired")
	}
	if q.Playing() {
		t.Error("queue should report not playing after drain")
	}
}

func TestQueue_OpenDeviceError(t *testing.T) {
	dev := &mock.Device{OpenErr: playback.ErrDeviceFailed}
	q := playback.NewQueue(dev, audio.SessionRate)
	err := q.Open()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, playback.ErrDeviceFailed) {
		t.Errorf("error %v should wrap ErrDeviceFailed", err)
	}
}

func TestQueue_PlayErrorReported(t *testing.T) {
	clock := newFakeClock()
	dev := &mock.Device{PlayErr: errors.New("stream died")}

	errCh := make(chan error, 1)
	q := playback.NewQueue(dev, audio.SessionRate,
		playback.WithClock(clock),
		playback.WithOnError(func(err error) { errCh <- err }),
	)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	q.Enqueue(pcmOfSamples(100, 1))
	select {
	case err := <-errCh:
		if !errors.Is(err, playback.ErrDeviceFailed) {
			t.Errorf("error %v should wrap ErrDeviceFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("device error never reported")
	}
}

func TestQueue_CloseFromErrorCallback(t *testing.T) {
	clock := newFakeClock()
	dev := &mock.Device{PlayErr: errors.New("stream died")}

	closed := make(chan struct{})
	var q *playback.Queue
	q = playback.NewQueue(dev, audio.SessionRate,
		playback.WithClock(clock),
		playback.WithOnError(func(error) {
			// Consumers tear the whole session down from this callback,
			// which closes the queue that is reporting the error.
			_ = q.Close()
			close(closed)
		}),
	)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	q.Enqueue(pcmOfSamples(100, 1))
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close from the error callback deadlocked")
	}
	if dev.CloseCalls() != 1 {
		t.Errorf("device closed %d times, want 1", dev.CloseCalls())
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	dev := &mock.Device{}
	q := playback.NewQueue(dev, audio.SessionRate)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if dev.CloseCalls() != 1 {
		t.Errorf("device closed %d times, want 1", dev.CloseCalls())
	}
}

func TestQueue_EnqueueAfterCloseDropped(t *testing.T) {
	dev := &mock.Device{}
	q := playback.NewQueue(dev, audio.SessionRate)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = q.Close()
	q.Enqueue(pcmOfSamples(100, 1))
	if q.Len() != 0 {
		t.Error("buffer enqueued after Close should be dropped")
	}
}
