package device

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestMicArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		goos   string
		device string
		input  []string
	}{
		{name: "linux default", goos: "linux", input: []string{"-f", "pulse", "-i", "default"}},
		{name: "linux named", goos: "linux", device: "alsa_input.usb", input: []string{"-f", "pulse", "-i", "alsa_input.usb"}},
		{name: "darwin default", goos: "darwin", input: []string{"-f", "avfoundation", "-i", ":0"}},
		{name: "windows named", goos: "windows", device: "Microphone", input: []string{"-f", "dshow", "-i", "audio=Microphone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args, err := micArgs(tt.goos, tt.device, 16000)
			if err != nil {
				t.Fatalf("micArgs: %v", err)
			}
			joined := strings.Join(args, " ")
			if !strings.Contains(joined, strings.Join(tt.input, " ")) {
				t.Errorf("args %q missing input %q", joined, tt.input)
			}
			if !strings.HasSuffix(joined, "-ac 1 -ar 16000 -f f32le -") {
				t.Errorf("args %q: unexpected output format", joined)
			}
		})
	}
}

func TestMicArgs_Unsupported(t *testing.T) {
	t.Parallel()

	if _, err := micArgs("plan9", "", 16000); !errors.Is(err, ErrUnavailable) {
		t.Errorf("plan9: want ErrUnavailable, got %v", err)
	}
	if _, err := micArgs("windows", "", 16000); !errors.Is(err, ErrUnavailable) {
		t.Errorf("windows without device: want ErrUnavailable, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 1")
	tests := []struct {
		stderr string
		want   error
	}{
		{"pulse: Permission denied", ErrPermissionDenied},
		{"AVFoundation: access DENIED by user", ErrPermissionDenied},
		{"No such device", ErrUnavailable},
		{"", ErrUnavailable},
	}
	for _, tt := range tests {
		err := classify(tt.stderr, cause)
		if !errors.Is(err, tt.want) {
			t.Errorf("classify(%q) = %v, want %v", tt.stderr, err, tt.want)
		}
	}
	if err := classify("", cause); !errors.Is(err, cause) {
		t.Errorf("empty stderr should keep cause, got %v", err)
	}
}

func TestFFmpegMicrophone_MissingBinary(t *testing.T) {
	t.Parallel()

	m := &FFmpegMicrophone{Path: filepath.Join(t.TempDir(), "no-such-ffmpeg")}
	_, err := m.Open(context.Background(), 16000)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestFFmpegMicrophone_PermissionDenied(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `echo "cannot open audio device: Permission denied" >&2; exit 1`)
	m := &FFmpegMicrophone{Path: path, Probe: 5 * time.Second}
	_, err := m.Open(context.Background(), 16000)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "permission") {
		t.Errorf("error %q should mention permission", err)
	}
}

func TestFFmpegMicrophone_Streams(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `exec cat /dev/zero`)
	m := &FFmpegMicrophone{Path: path, Probe: 50 * time.Millisecond}
	src, err := m.Open(context.Background(), 16000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := slices.Repeat([]float32{1}, 256)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read n = %d, want %d", n, len(buf))
	}
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %v, want 0", i, v)
		}
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFFmpegMicrophone_DrainsAfterExit(t *testing.T) {
	t.Parallel()

	// 1024 frames of f32le silence, then a clean exit after Open returns.
	path := writeScript(t, `head -c 4096 /dev/zero; sleep 0.2`)
	m := &FFmpegMicrophone{Path: path, Probe: 50 * time.Millisecond}
	src, err := m.Open(context.Background(), 16000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })

	select {
	case <-src.(*ffmpegSource).exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	buf := slices.Repeat([]float32{1}, 1024)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Read after exit: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read n = %d, want %d", n, len(buf))
	}
	if buf[n-1] != 0 {
		t.Errorf("buf[%d] = %v, want 0", n-1, buf[n-1])
	}
	if n, err := src.Read(buf); n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("final Read = %d, %v; want 0, io.EOF", n, err)
	}
}

func TestDiscardSpeaker(t *testing.T) {
	t.Parallel()

	w, err := DiscardSpeaker{}.Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n, err := w.Write(make([]byte, 10)); err != nil || n != 10 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	t.Parallel()

	b := &limitedBuffer{max: 4}
	if n, _ := b.Write([]byte("abcdef")); n != 6 {
		t.Fatalf("Write n = %d, want 6", n)
	}
	b.Write([]byte("gh"))
	if got := b.String(); got != "abcd" {
		t.Errorf("String = %q, want %q", got, "abcd")
	}
}
