// Package mock provides scripted implementations of [device.Microphone] and
// [device.Speaker] for unit tests.
//
// All mocks are safe for concurrent use and record their calls so tests can
// assert on them afterwards.
//
// Typical usage:
//
//	mic := &mock.Microphone{Blocks: [][]float32{make([]float32, 4096)}}
//	src, err := mic.Open(ctx, 16000)
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/jarvis/pkg/audio/device"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [device.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Blocks are returned by successive Source.Read calls, one per call.
	// After the script is exhausted Read blocks until the source is closed.
	Blocks [][]float32

	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Rates records the sample rate passed to each Open call.
	Rates []int

	// Sources holds every source handed out, in order.
	Sources []*Source
}

var _ device.Microphone = (*Microphone)(nil)

// Open implements [device.Microphone].
func (m *Microphone) Open(_ context.Context, sampleRate int) (device.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	m.Rates = append(m.Rates, sampleRate)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	src := &Source{blocks: append([][]float32(nil), m.Blocks...), done: make(chan struct{})}
	m.Sources = append(m.Sources, src)
	return src, nil
}

// LastSource returns the most recently opened source, or nil.
func (m *Microphone) LastSource() *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sources) == 0 {
		return nil
	}
	return m.Sources[len(m.Sources)-1]
}

// Source is the [device.Source] returned by [Microphone.Open].
type Source struct {
	mu     sync.Mutex
	blocks [][]float32
	reads  int
	closed bool
	done   chan struct{}
}

var _ device.Source = (*Source)(nil)

// Read implements [device.Source].
func (s *Source) Read(buf []float32) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if len(s.blocks) > 0 {
		n := copy(buf, s.blocks[0])
		if n < len(s.blocks[0]) {
			s.blocks[0] = s.blocks[0][n:]
		} else {
			s.blocks = s.blocks[1:]
		}
		s.reads++
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()
	<-s.done
	return 0, io.EOF
}

// Close implements [device.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reads reports how many Read calls returned scripted audio.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock implementation of [device.Speaker] that records output.
type Speaker struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is returned by Open.
	OpenErr error

	// Sinks holds every sink handed out, in order.
	Sinks []*Sink
}

var _ device.Speaker = (*Speaker)(nil)

// Open implements [device.Speaker].
func (s *Speaker) Open(_ context.Context, sampleRate int) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	sink := &Sink{SampleRate: sampleRate}
	s.Sinks = append(s.Sinks, sink)
	return sink, nil
}

// LastSink returns the most recently opened sink, or nil.
func (s *Speaker) LastSink() *Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sinks) == 0 {
		return nil
	}
	return s.Sinks[len(s.Sinks)-1]
}

// Sink records everything written to it.
type Sink struct {
	// SampleRate is the rate the sink was opened with.
	SampleRate int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// Write implements [io.Writer].
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

// Close implements [io.Closer].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len reports how many bytes have been written.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}
