package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// defaultProbe is how long Open waits for ffmpeg to fail before assuming the
// device is streaming.
const defaultProbe = 300 * time.Millisecond

// stderrLimit caps how much backend diagnostic output is retained.
const stderrLimit = 4096

// FFmpegMicrophone captures from the platform default input through an ffmpeg
// subprocess: PulseAudio on Linux, AVFoundation on macOS and DirectShow on
// Windows. Output is f32le mono at the requested rate.
type FFmpegMicrophone struct {
	// Path is the ffmpeg binary. Empty means "ffmpeg" from PATH.
	Path string

	// Device selects the input. Empty means the platform default
	// ("default" on pulse, ":0" on avfoundation). DirectShow requires it.
	Device string

	// Probe overrides how long Open waits for an early exit.
	Probe time.Duration
}

var _ Microphone = (*FFmpegMicrophone)(nil)

// Open implements [Microphone]. A missing binary or unsupported platform
// yields [ErrUnavailable]; an early exit whose diagnostics mention a
// permission problem yields [ErrPermissionDenied].
func (m *FFmpegMicrophone) Open(ctx context.Context, sampleRate int) (Source, error) {
	bin := m.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg is required for microphone capture: %w", ErrUnavailable, err)
	}
	args, err := micArgs(runtime.GOOS, m.Device, sampleRate)
	if err != nil {
		return nil, err
	}

	// The source owns the read end so that reaping the process never closes
	// it under a pending Read.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open ffmpeg stdout: %w", ErrUnavailable, err)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = pw
	stderr := &limitedBuffer{max: stderrLimit}
	cmd.Stderr = stderr
	err = cmd.Start()
	_ = pw.Close()
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrUnavailable, err)
	}

	src := &ffmpegSource{cmd: cmd, stdout: pr, stderr: stderr, exited: make(chan struct{})}
	go func() {
		src.waitErr = cmd.Wait()
		close(src.exited)
	}()

	probe := m.Probe
	if probe <= 0 {
		probe = defaultProbe
	}
	timer := time.NewTimer(probe)
	defer timer.Stop()
	select {
	case <-src.exited:
		_ = pr.Close()
		return nil, classify(stderr.String(), src.waitErr)
	case <-ctx.Done():
		_ = src.Close()
		return nil, ctx.Err()
	case <-timer.C:
		return src, nil
	}
}

func micArgs(goos, device string, sampleRate int) ([]string, error) {
	var input []string
	switch goos {
	case "linux":
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "pulse", "-i", device}
	case "darwin":
		if device == "" {
			device = "0"
		}
		input = []string{"-f", "avfoundation", "-i", ":" + device}
	case "windows":
		if device == "" {
			return nil, fmt.Errorf("%w: dshow capture needs audio.microphone.device", ErrUnavailable)
		}
		input = []string{"-f", "dshow", "-i", "audio=" + device}
	default:
		return nil, fmt.Errorf("%w: microphone capture is not implemented for %s", ErrUnavailable, goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le", "-",
	)
	return args, nil
}

type ffmpegSource struct {
	cmd     *exec.Cmd
	stdout  *os.File
	stderr  *limitedBuffer
	exited  chan struct{}
	waitErr error

	buf []byte

	closeOnce sync.Once
}

// Read implements [Source].
func (s *ffmpegSource) Read(out []float32) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	need := len(out) * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	b := s.buf[:need]
	n, err := io.ReadFull(s.stdout, b)
	frames := n / 4
	for i := range frames {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	if err != nil {
		if frames > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
		select {
		case <-s.exited:
			if msg := s.stderr.String(); msg != "" {
				return frames, classify(msg, err)
			}
		default:
		}
		return frames, err
	}
	return frames, nil
}

// Close implements [Source]. It kills the subprocess, reaps it and releases
// the read end of its stdout.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.exited
		_ = s.stdout.Close()
	})
	return nil
}

// FFplaySpeaker plays s16le mono PCM through an ffplay subprocess.
type FFplaySpeaker struct {
	// Path is the ffplay binary. Empty means "ffplay" from PATH.
	Path string
}

var _ Speaker = (*FFplaySpeaker)(nil)

// Open implements [Speaker].
func (p *FFplaySpeaker) Open(_ context.Context, sampleRate int) (io.WriteCloser, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffplay"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: ffplay is required for playback: %w", ErrUnavailable, err)
	}
	cmd := exec.Command(bin,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open ffplay stdin: %w", ErrUnavailable, err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffplay: %w", ErrUnavailable, err)
	}
	return &ffplaySink{cmd: cmd, stdin: stdin}, nil
}

type ffplaySink struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

func (s *ffplaySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.stdin.Write(p)
}

func (s *ffplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
