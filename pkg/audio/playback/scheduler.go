// Package playback turns a stream of wire-format audio chunks into gapless,
// cancellable output on a [render.Context].
//
// Chunks are scheduled back to back on the output clock: each one starts at
// max(next playback time, current clock), so arrival order is preserved, no
// gap appears while decoding keeps pace with real time, and a late chunk
// starts immediately instead of overlapping its predecessor.
package playback

import (
	"errors"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/render"
)

// Compile-time interface assertion.
var _ Output = (*render.Context)(nil)

// ErrClosed is returned by [Scheduler.Enqueue] after Close.
var ErrClosed = errors.New("playback: scheduler closed")

// Output is the audio context a [Scheduler] plays into. [render.Context] is
// the production implementation.
type Output interface {
	// CurrentTime returns the output clock in seconds.
	CurrentTime() float64

	// Schedule plays chunk starting at the given clock time and calls
	// onEnded once the audio has finished on its own.
	Schedule(chunk audio.Chunk, at float64, onEnded func()) (*render.Voice, error)

	// FrequencyData returns the shared analyser snapshot.
	FrequencyData() []byte

	// Close releases the context.
	Close() error
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithFormat sets the sample rate and channel count of incoming chunks. The
// default is [audio.OutputSampleRate], mono.
func WithFormat(sampleRate, channels int) Option {
	return func(s *Scheduler) {
		if sampleRate > 0 {
			s.sampleRate = sampleRate
		}
		if channels > 0 {
			s.channels = channels
		}
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Scheduled   int64
	Malformed   int64
	Interrupted int64
	Finished    int64
}

// Scheduler owns the active playback set and the next playback time for one
// output context.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	out        Output
	sampleRate int
	channels   int

	mu     sync.Mutex
	next   float64
	active map[*render.Voice]struct{}
	stats  Stats
	closed bool
}

// New creates a Scheduler that plays into out. The scheduler takes ownership
// of out and closes it in [Scheduler.Close].
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:        out,
		sampleRate: audio.OutputSampleRate,
		channels:   1,
		active:     make(map[*render.Voice]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue decodes a wire-format chunk and schedules it directly after the
// previously scheduled chunk. Decode failures wrap [audio.ErrDecode] or
// [audio.ErrMalformedAudio] and leave the schedule untouched.
func (s *Scheduler) Enqueue(wire string) error {
	chunk, err := audio.DecodeWireChunk(wire, s.sampleRate, s.channels)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err != nil {
		s.stats.Malformed++
		return err
	}
	if chunk.Frames() == 0 {
		return nil
	}

	start := max(s.next, s.out.CurrentTime())

	// The ended callback locks s.mu, so it cannot observe v before the
	// assignment below completes.
	var v *render.Voice
	v, err = s.out.Schedule(chunk, start, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.active[v]; ok {
			delete(s.active, v)
			s.stats.Finished++
		}
	})
	if err != nil {
		return err
	}

	s.active[v] = struct{}{}
	s.next = start + chunk.Seconds()
	s.stats.Scheduled++
	return nil
}

// Interrupt stops every live voice immediately, clears the active set and
// resets the next playback time to zero. It returns the number of voices
// stopped. Calling it with nothing playing is a no-op.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptLocked()
}

func (s *Scheduler) interruptLocked() int {
	n := len(s.active)
	for v := range s.active {
		v.Stop()
	}
	clear(s.active)
	s.next = 0
	if n > 0 {
		s.stats.Interrupted++
	}
	return n
}

// FrequencyData returns the current frequency-magnitude snapshot of the
// shared analyser. It never blocks on playback and returns nil after Close.
func (s *Scheduler) FrequencyData() []byte {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	return s.out.FrequencyData()
}

// Active returns the number of scheduled voices that have not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the clock time at which the next chunk would start if
// playback were on pace.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops all voices and closes the output context. Close is idempotent;
// subsequent calls are no-ops and return nil.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.interruptLocked()
	s.mu.Unlock()

	return s.out.Close()
}
