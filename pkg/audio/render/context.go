// Package render implements the output audio context: a sample clock that
// mixes scheduled voices into a speaker sink in real time and feeds a shared
// frequency analyser for visualisation.
//
// The clock only advances when audio is rendered. [Context.Start] drives
// rendering from wall-clock time; tests call [Context.Render] directly to
// step the clock deterministically.
package render

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

const (
	// DefaultQuantum is the render period of the real-time loop.
	DefaultQuantum = 20 * time.Millisecond

	// maxCatchUp bounds how much audio a single tick renders after a stall.
	maxCatchUp = time.Second
)

// ErrClosed is returned when scheduling onto a closed context.
var ErrClosed = errors.New("render: context closed")

// Option configures a [Context] during construction.
type Option func(*Context)

// WithSampleRate sets the output sample rate. The default is
// [audio.OutputSampleRate].
func WithSampleRate(rate int) Option {
	return func(c *Context) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithQuantum sets the render period of the real-time loop.
func WithQuantum(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.quantum = d
		}
	}
}

// WithFFTSize sets the analysis window of the shared analyser.
func WithFFTSize(n int) Option {
	return func(c *Context) {
		c.analyser = NewAnalyser(n)
	}
}

// Context is a mono output audio context. Voices scheduled on it are summed
// sample-accurately against a frame counter; CurrentTime reports that counter
// in seconds.
//
// All exported methods are safe for concurrent use. Ended callbacks are
// invoked sequentially from whichever goroutine calls Render, never while the
// context lock is held.
type Context struct {
	sink       io.Writer
	sampleRate int
	quantum    time.Duration
	analyser   *Analyser

	mu      sync.Mutex
	frame   int64
	voices  []*Voice
	closed  bool
	running bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Context that writes rendered s16le PCM to sink. sink may be
// nil, in which case rendered audio is only analysed. If sink implements
// [io.Closer] it is closed by [Context.Close].
func New(sink io.Writer, opts ...Option) *Context {
	c := &Context{
		sink:       sink,
		sampleRate: audio.OutputSampleRate,
		quantum:    DefaultQuantum,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.analyser == nil {
		c.analyser = NewAnalyser(DefaultFFTSize)
	}
	return c
}

// SampleRate returns the output sample rate in Hz.
func (c *Context) SampleRate() int { return c.sampleRate }

// Analyser returns the shared analysis node fed by every rendered sample.
func (c *Context) Analyser() *Analyser { return c.analyser }

// CurrentTime returns the output clock in seconds: the number of frames
// rendered so far divided by the sample rate.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frame) / float64(c.sampleRate)
}

// FrequencyData returns the analyser's current byte-scaled magnitude snapshot.
func (c *Context) FrequencyData() []byte {
	return c.analyser.FrequencyData()
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Schedule registers chunk for playback starting at the given clock time in
// seconds. A start time in the past plays immediately. Chunks at a different
// rate or channel layout are converted to the context format first.
//
// onEnded, when non-nil, is called once after the last sample of the voice
// has been rendered. It is not called for voices that are stopped.
func (c *Context) Schedule(chunk audio.Chunk, at float64, onEnded func()) (*Voice, error) {
	chunk = audio.ToMono(chunk)
	if chunk.SampleRate != c.sampleRate {
		chunk = audio.Resample(chunk, c.sampleRate)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	startFrame := int64(at*float64(c.sampleRate) + 0.5)
	if startFrame < c.frame {
		startFrame = c.frame
	}
	v := &Voice{
		ctx:        c,
		samples:    chunk.Samples,
		startFrame: startFrame,
		onEnded:    onEnded,
	}
	c.voices = append(c.voices, v)
	return v, nil
}

// Render mixes the next frames samples, advances the clock, feeds the
// analyser and fires ended callbacks for voices that finished inside the
// window. It returns the mixed samples, or nil once the context is closed.
func (c *Context) Render(frames int) []float32 {
	if frames <= 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	out := make([]float32, frames)
	winStart := c.frame
	winEnd := winStart + int64(frames)

	var ended []*Voice
	kept := c.voices[:0]
	for _, v := range c.voices {
		vEnd := v.startFrame + int64(len(v.samples))
		if v.startFrame < winEnd && vEnd > winStart {
			from := max(v.startFrame, winStart)
			to := min(vEnd, winEnd)
			for f := from; f < to; f++ {
				out[f-winStart] += v.samples[f-v.startFrame]
			}
		}
		if vEnd <= winEnd {
			v.ended = true
			ended = append(ended, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(c.voices[len(kept):])
	c.voices = kept
	c.frame = winEnd
	c.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	c.analyser.Write(out)

	for _, v := range ended {
		if v.onEnded != nil {
			v.onEnded()
		}
	}
	return out
}

// Start launches the real-time render loop. Each quantum it renders however
// many frames wall-clock time says are due and writes them to the sink.
// Calling Start more than once, or after Close, has no effect.
func (c *Context) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.closed {
		return
	}
	c.running = true
	c.wg.Go(c.loop)
}

func (c *Context) loop() {
	ticker := time.NewTicker(c.quantum)
	defer ticker.Stop()

	began := time.Now()
	var rendered int64
	maxFrames := int64(maxCatchUp.Seconds() * float64(c.sampleRate))
	var warnedWrite sync.Once

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		due := int64(time.Since(began).Seconds()*float64(c.sampleRate)) - rendered
		if due <= 0 {
			continue
		}
		if due > maxFrames {
			// Skip ahead instead of bursting a long backlog into the sink.
			rendered += due - maxFrames
			due = maxFrames
		}
		out := c.Render(int(due))
		if out == nil {
			return
		}
		rendered += due

		if c.sink == nil {
			continue
		}
		if _, err := c.sink.Write(audio.FloatToPCM16(out)); err != nil {
			warnedWrite.Do(func() {
				slog.Warn("render: speaker write failed, output is muted", "err", err)
			})
		}
	}
}

// Close stops every voice without firing ended callbacks, stops the render
// loop and closes the sink. Close is idempotent; subsequent calls return nil.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, v := range c.voices {
		v.stopped = true
	}
	c.voices = nil
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	c.analyser.Reset()

	if closer, ok := c.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Voice is one scheduled unit of output audio.
type Voice struct {
	ctx        *Context
	samples    []float32
	startFrame int64
	onEnded    func()

	// guarded by ctx.mu
	stopped bool
	ended   bool
}

// Start returns the scheduled start time in seconds on the context clock.
func (v *Voice) Start() float64 {
	return float64(v.startFrame) / float64(v.ctx.sampleRate)
}

// Duration returns the voice length in seconds.
func (v *Voice) Duration() float64 {
	return float64(len(v.samples)) / float64(v.ctx.sampleRate)
}

// Live reports whether the voice has neither finished nor been stopped.
func (v *Voice) Live() bool {
	v.ctx.mu.Lock()
	defer v.ctx.mu.Unlock()
	return !v.stopped && !v.ended
}

// Stop silences the voice immediately. Its ended callback will not fire.
// Stopping a finished or already stopped voice is a no-op.
func (v *Voice) Stop() {
	c := v.ctx
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.stopped || v.ended {
		return
	}
	v.stopped = true
	if i := slices.Index(c.voices, v); i >= 0 {
		c.voices = slices.Delete(c.voices, i, i+1)
	}
}
