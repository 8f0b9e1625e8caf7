package capture_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/capture"
	"github.com/MrWong99/jarvis/pkg/audio/device"
	"github.com/MrWong99/jarvis/pkg/audio/device/mock"
)

type recordingSender struct {
	mu    sync.Mutex
	wires []string
	err   error
}

func (r *recordingSender) SendAudio(wire string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.wires = append(r.wires, wire)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wires)
}

func blocks(n, size int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		b := make([]float32, size)
		for j := range b {
			b[j] = float32(i+1) / 10
		}
		out[i] = b
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipeline_SendsEveryBlockWhenAttached(t *testing.T) {
	t.Parallel()

	const n, size = 6, 64
	mic := &mock.Microphone{Blocks: blocks(n, size)}
	p := capture.New(mic, capture.WithBlockSize(size))
	defer p.Close()

	sender := &recordingSender{}
	p.Attach(sender)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "all blocks sent", func() bool { return p.Stats().Sent == n })

	st := p.Stats()
	if st.Processed != n || st.Sent != n {
		t.Errorf("Stats = %+v, want %d processed and sent", st, n)
	}
	if got := sender.count(); got != n {
		t.Errorf("sender received %d blocks, want %d", got, n)
	}
	if st.DroppedDetached != 0 || st.DroppedFull != 0 {
		t.Errorf("unexpected drops: %+v", st)
	}
	if got := mic.Rates[0]; got != audio.InputSampleRate {
		t.Errorf("mic opened at %d Hz, want %d", got, audio.InputSampleRate)
	}

	sender.mu.Lock()
	first := sender.wires[0]
	sender.mu.Unlock()
	raw, err := audio.DecodeWire(first)
	if err != nil {
		t.Fatalf("DecodeWire: %v", err)
	}
	if len(raw) != size*2 {
		t.Errorf("wire block carries %d bytes, want %d", len(raw), size*2)
	}
}

func TestPipeline_DropsWhenDetached(t *testing.T) {
	t.Parallel()

	const n, size = 5, 32
	mic := &mock.Microphone{Blocks: blocks(n, size)}
	p := capture.New(mic, capture.WithBlockSize(size))
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "all blocks processed", func() bool { return p.Stats().Processed == n })

	st := p.Stats()
	if st.Sent != 0 {
		t.Errorf("Sent = %d, want 0", st.Sent)
	}
	if st.DroppedDetached != n {
		t.Errorf("DroppedDetached = %d, want %d", st.DroppedDetached, n)
	}
}

func TestPipeline_QueueFullDropsNewest(t *testing.T) {
	t.Parallel()

	// Never started, so nothing drains the queue.
	p := capture.New(&mock.Microphone{}, capture.WithQueueSize(2))
	p.Attach(&recordingSender{})
	for range 5 {
		p.Process(make([]float32, 16))
	}

	st := p.Stats()
	if st.Processed != 5 {
		t.Errorf("Processed = %d, want 5", st.Processed)
	}
	if st.DroppedFull != 3 {
		t.Errorf("DroppedFull = %d, want 3", st.DroppedFull)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := p.Stats().DroppedDetached; got != 2 {
		t.Errorf("queued blocks discarded on close = %d, want 2", got)
	}
}

func TestPipeline_SendErrorsCounted(t *testing.T) {
	t.Parallel()

	const size = 16
	var mu sync.Mutex
	var seen []capture.Status
	mic := &mock.Microphone{Blocks: blocks(3, size)}
	p := capture.New(mic,
		capture.WithBlockSize(size),
		capture.WithObserver(func(s capture.Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}),
	)
	defer p.Close()

	p.Attach(&recordingSender{err: errors.New("socket closed")})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "send errors", func() bool { return p.Stats().SendErrors == 3 })

	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s != capture.StatusSendError {
			t.Errorf("observer saw %q, want %q", s, capture.StatusSendError)
		}
	}
}

func TestPipeline_StartPropagatesDeviceError(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{OpenErr: device.ErrPermissionDenied}
	p := capture.New(mic)
	err := p.Start(context.Background())
	if !errors.Is(err, device.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPipeline_CloseStopsSource(t *testing.T) {
	t.Parallel()

	mic := &mock.Microphone{}
	p := capture.New(mic)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mic.LastSource().Closed() {
		t.Error("microphone source not closed")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestPipeline_CloseNeverStarted(t *testing.T) {
	t.Parallel()

	p := capture.New(&mock.Microphone{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type brokenSource struct{ err error }

func (b brokenSource) Read([]float32) (int, error) { return 0, b.err }
func (brokenSource) Close() error                  { return nil }

type brokenMic struct{ err error }

func (b brokenMic) Open(context.Context, int) (device.Source, error) {
	return brokenSource(b), nil
}

func TestPipeline_ReadFailureReported(t *testing.T) {
	t.Parallel()

	got := make(chan error, 1)
	p := capture.New(brokenMic{err: io.ErrUnexpectedEOF},
		capture.WithErrorHandler(func(err error) { got <- err }),
	)
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case err := <-got:
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("handler error = %v, want ErrUnexpectedEOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
}
