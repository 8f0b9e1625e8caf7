// Package device defines the host audio endpoints used by the voice client:
// a [Microphone] that yields mono float32 PCM at a requested rate, and a
// [Speaker] that accepts signed 16-bit little-endian PCM.
//
// The concrete backends shell out to ffmpeg and ffplay, so no cgo audio
// bindings are needed. [DiscardSpeaker] is available for headless runs.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the host refuses access to a
	// capture device.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrUnavailable is returned when a device or its backend binary cannot
	// be found or started.
	ErrUnavailable = errors.New("device: unavailable")
)

// Source is an open capture stream.
type Source interface {
	// Read fills buf with up to len(buf) mono samples in [-1, 1] and returns
	// how many were written. It blocks until audio is available.
	Read(buf []float32) (int, error)

	// Close stops the stream and releases the device. Safe to call twice.
	Close() error
}

// Microphone opens capture streams.
type Microphone interface {
	Open(ctx context.Context, sampleRate int) (Source, error)
}

// Speaker opens playback sinks that accept s16le mono PCM at sampleRate.
type Speaker interface {
	Open(ctx context.Context, sampleRate int) (io.WriteCloser, error)
}

// classify maps backend diagnostics onto the package sentinels.
func classify(stderr string, cause error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "denied") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	}
	switch {
	case msg != "":
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	case cause != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, cause)
	default:
		return ErrUnavailable
	}
}

// DiscardSpeaker is a [Speaker] that drops everything written to it.
type DiscardSpeaker struct{}

var _ Speaker = DiscardSpeaker{}

// Open implements [Speaker].
func (DiscardSpeaker) Open(context.Context, int) (io.WriteCloser, error) {
	return nopCloser{io.Discard}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
