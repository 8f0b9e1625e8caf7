// Package capture turns a microphone stream into wire-encoded blocks and
// forwards them to the active transport.
//
// A reader goroutine pulls fixed-size blocks from the [device.Source] and
// hands them to [Pipeline.Process], which encodes each block and places it
// on a bounded queue. A sender goroutine drains the queue into the attached
// [Sender]. When no sender is attached blocks are dropped without queuing;
// when the queue is full the newest block is dropped. Both drops are counted.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/device"
)

const (
	// DefaultBlockSize is the number of frames per captured block.
	DefaultBlockSize = 4096

	// DefaultQueueSize is the depth of the send queue.
	DefaultQueueSize = 8
)

// ErrClosed is returned by [Pipeline.Start] after [Pipeline.Close].
var ErrClosed = errors.New("capture: pipeline closed")

// Sender accepts wire-encoded audio blocks. It is implemented by the live
// transport session.
type Sender interface {
	SendAudio(wire string) error
}

// Status classifies what happened to a processed block.
type Status string

const (
	StatusSent            Status = "sent"
	StatusDroppedDetached Status = "dropped_detached"
	StatusDroppedFull     Status = "dropped_full"
	StatusSendError       Status = "send_error"
)

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Processed       uint64
	Sent            uint64
	DroppedDetached uint64
	DroppedFull     uint64
	SendErrors      uint64
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithBlockSize sets the frames per block. Non-positive values are ignored.
func WithBlockSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithQueueSize sets the send queue depth. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithSampleRate sets the rate requested from the microphone.
func WithSampleRate(rate int) Option {
	return func(p *Pipeline) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithObserver registers a callback invoked once per block outcome.
func WithObserver(fn func(Status)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// WithErrorHandler registers a callback invoked when the microphone stream
// fails while the pipeline is still running.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pipeline) { p.onError = fn }
}

// Pipeline is a microphone capture pipeline. The zero value is not usable;
// construct with [New].
type Pipeline struct {
	mic        device.Microphone
	blockSize  int
	queueSize  int
	sampleRate int
	observe    func(Status)
	onError    func(error)

	queue chan string
	done  chan struct{}

	mu      sync.Mutex
	sender  Sender
	src     device.Source
	started bool
	closed  bool

	wg sync.WaitGroup

	processed       atomic.Uint64
	sent            atomic.Uint64
	droppedDetached atomic.Uint64
	droppedFull     atomic.Uint64
	sendErrors      atomic.Uint64
}

// New creates a pipeline reading from mic.
func New(mic device.Microphone, opts ...Option) *Pipeline {
	p := &Pipeline{
		mic:        mic,
		blockSize:  DefaultBlockSize,
		queueSize:  DefaultQueueSize,
		sampleRate: audio.InputSampleRate,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.queue = make(chan string, p.queueSize)
	return p
}

// Start opens the microphone and launches the reader and sender goroutines.
// Calling Start on a running pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return nil
	}
	src, err := p.mic.Open(ctx, p.sampleRate)
	if err != nil {
		return fmt.Errorf("capture: open microphone: %w", err)
	}
	p.src = src
	p.started = true
	p.wg.Go(func() { p.readLoop(src) })
	p.wg.Go(p.sendLoop)
	return nil
}

// Attach sets the transport that receives encoded blocks.
func (p *Pipeline) Attach(s Sender) {
	p.mu.Lock()
	p.sender = s
	p.mu.Unlock()
}

// Detach clears the active transport and discards queued blocks.
func (p *Pipeline) Detach() {
	p.mu.Lock()
	p.sender = nil
	p.mu.Unlock()
	p.drain()
}

// Process encodes one captured block and queues it for sending.
func (p *Pipeline) Process(block []float32) {
	p.processed.Add(1)
	if p.currentSender() == nil {
		p.record(StatusDroppedDetached)
		return
	}
	wire := audio.EncodeWire(block)
	select {
	case p.queue <- wire:
	default:
		p.record(StatusDroppedFull)
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:       p.processed.Load(),
		Sent:            p.sent.Load(),
		DroppedDetached: p.droppedDetached.Load(),
		DroppedFull:     p.droppedFull.Load(),
		SendErrors:      p.sendErrors.Load(),
	}
}

// Close detaches the transport, stops the reader, closes the microphone
// source and waits for the goroutines to exit. It is safe to call on a
// pipeline that was never started and safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.sender = nil
	src := p.src
	p.src = nil
	close(p.done)
	p.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	p.wg.Wait()
	p.drain()
	return err
}

func (p *Pipeline) readLoop(src device.Source) {
	for {
		block := make([]float32, p.blockSize)
		filled := 0
		for filled < len(block) {
			n, err := src.Read(block[filled:])
			filled += n
			if err != nil {
				if !p.isClosed() {
					slog.Warn("capture: microphone read failed", "err", err)
					if p.onError != nil {
						p.onError(fmt.Errorf("capture: read microphone: %w", err))
					}
				}
				return
			}
		}
		if p.isClosed() {
			return
		}
		p.Process(block)
	}
}

func (p *Pipeline) sendLoop() {
	for {
		select {
		case <-p.done:
			return
		case wire := <-p.queue:
			s := p.currentSender()
			if s == nil {
				p.record(StatusDroppedDetached)
				continue
			}
			if err := s.SendAudio(wire); err != nil {
				slog.Debug("capture: send failed", "err", err)
				p.record(StatusSendError)
				continue
			}
			p.record(StatusSent)
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case <-p.queue:
			p.record(StatusDroppedDetached)
		default:
			return
		}
	}
}

func (p *Pipeline) record(st Status) {
	switch st {
	case StatusSent:
		p.sent.Add(1)
	case StatusDroppedDetached:
		p.droppedDetached.Add(1)
	case StatusDroppedFull:
		p.droppedFull.Add(1)
	case StatusSendError:
		p.sendErrors.Add(1)
	}
	if p.observe != nil {
		p.observe(st)
	}
}

func (p *Pipeline) currentSender() Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
