package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/voxdispatch/pkg/audio"
)

// Option is a functional option for configuring a [Queue].
type Option func(*Queue)

// WithClock replaces the scheduler clock. Tests use this to inject a fake
// clock and verify the gapless-scheduling invariant without real time.
func WithClock(c Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithOnIdle registers a callback invoked once each time the queue drains to
// empty after having played at least one buffer. The session layer uses this
// as the "finished speaking" signal. The callback runs on the scheduler
// goroutine and must not block.
func WithOnIdle(fn func()) Option {
	return func(q *Queue) { q.onIdle = fn }
}

// WithOnError registers a callback for mid-stream device failures. The error
// wraps [ErrDeviceFailed] and is fatal: the scheduler stops after reporting.
func WithOnError(fn func(error)) Option {
	return func(q *Queue) { q.onError = fn }
}

// Queue schedules decoded PCM buffers for gapless sequential playback.
//
// Buffers play strictly in insertion order. The scheduler tracks an explicit
// nextStart marker: each buffer starts at max(previous end, now) and advances
// the marker by its own duration, so buffers that arrive while audio is
// playing are chained seamlessly onto the tail.
//
// All exported methods are safe for concurrent use.
type Queue struct {
	dev        Device
	clock      Clock
	sampleRate int
	onIdle     func()
	onError    func(error)

	mu        sync.Mutex
	entries   [][]byte
	nextStart time.Time
	playing   bool
	opened    bool
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a Queue that plays through dev at sampleRate Hz. The
// device is not opened until [Queue.Open] is called.
func NewQueue(dev Device, sampleRate int, opts ...Option) *Queue {
	if sampleRate <= 0 {
		sampleRate = audio.SessionRate
	}
	q := &Queue{
		dev:        dev,
		clock:      SystemClock{},
		sampleRate: sampleRate,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Open opens the output device and starts the scheduler goroutine. Returns
// an error wrapping [ErrDeviceFailed] if the device cannot be opened.
func (q *Queue) Open() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("playback: queue is closed")
	}
	if q.opened {
		return nil
	}
	if err := q.dev.Open(q.sampleRate, 1); err != nil {
		return fmt.Errorf("playback: open device: %w", err)
	}
	q.opened = true
	q.wg.Add(1)
	go q.run()
	return nil
}

// Enqueue appends a decoded PCM buffer to the tail of the queue. If nothing
// is playing, playback begins immediately. Buffers enqueued after Close are
// dropped.
func (q *Queue) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	q.mu.Lock()
	if q.closed || !q.opened {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries, pcm)
	q.playing = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of buffers awaiting playback.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Playing reports whether the queue currently has audio scheduled or in
// flight.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Close stops the scheduler, drops all pending buffers, and closes the
// device. Idempotent and safe to call from any state.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.entries = nil
	q.playing = false
	opened := q.opened
	q.mu.Unlock()

	close(q.done)
	if opened {
		q.wg.Wait()
		return q.dev.Close()
	}
	return nil
}

// run is the scheduler loop. It pops the head buffer, waits until its chained
// start time, submits it to the device, and advances nextStart by the buffer
// duration. When the queue drains it fires onIdle and parks until woken.
func (q *Queue) run() {
	// The failure callback often calls Close, which joins this goroutine via
	// wg.Wait. Reporting is deferred behind wg.Done (defers run LIFO) so the
	// callback never observes the scheduler as still running.
	var failure error
	defer func() {
		if failure != nil && q.onError != nil {
			q.onError(failure)
		}
	}()
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				return
			}
			if len(q.entries) == 0 {
				q.playing = false
				q.mu.Unlock()
				if q.onIdle != nil {
					q.onIdle()
				}
				break
			}
			pcm := q.entries[0]
			q.entries = q.entries[1:]

			now := q.clock.Now()
			start := q.nextStart
			if start.Before(now) {
				start = now
			}
			q.nextStart = start.Add(audio.PCMDuration(pcm, q.sampleRate))
			q.mu.Unlock()

			if wait := start.Sub(now); wait > 0 {
				select {
				case <-q.clock.After(wait):
				case <-q.done:
					return
				}
			}

			if err := q.dev.Play(pcm); err != nil {
				if !errors.Is(err, ErrDeviceFailed) {
					err = fmt.Errorf("%w: %v", ErrDeviceFailed, err)
				}
				slog.Error("playback device failure", "err", err)
				failure = err
				return
			}
		}
	}
}
