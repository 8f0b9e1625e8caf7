// Package audio defines the PCM sample types shared by the capture and
// playback pipelines, and the wire codec used to exchange audio with the
// remote speech service.
//
// Wire-format audio is base64-encoded little-endian signed 16-bit linear PCM.
// In memory, audio is carried as float32 samples in the range [-1, 1].
package audio

import "time"

const (
	// InputSampleRate is the sample rate of captured microphone audio.
	InputSampleRate = 16000

	// OutputSampleRate is the sample rate of synthesised speech received from
	// the remote service.
	OutputSampleRate = 24000

	// bytesPerSample is the size of one int16 PCM sample on the wire.
	bytesPerSample = 2
)

// Chunk is a unit of raw audio: an ordered sequence of float32 samples in the
// range [-1, 1], interleaved when Channels > 1.
//
// Chunks are ephemeral. They are produced by capture or decode, consumed
// immediately and never persisted.
type Chunk struct {
	// Samples holds the interleaved sample data.
	Samples []float32

	// SampleRate in Hz (16000 for capture, 24000 for playback).
	SampleRate int

	// Channels is the number of interleaved channels. Always 1 in practice.
	Channels int
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Seconds returns the playback length of the chunk in seconds.
func (c Chunk) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}
