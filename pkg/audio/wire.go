package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDecode is returned when wire-format audio is not valid base64.
	ErrDecode = errors.New("audio: decode wire data")

	// ErrMalformedAudio is returned when raw PCM bytes cannot be split into
	// whole int16 frames for the requested channel count.
	ErrMalformedAudio = errors.New("audio: malformed pcm data")
)

// EncodeWire converts float samples to wire format: each sample is scaled by
// 32767, rounded, clamped to the int16 range, serialised little-endian and
// the whole buffer is base64-encoded. NaN samples encode as silence.
func EncodeWire(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodeWire reverses the base64 step of the wire format and returns the raw
// little-endian PCM bytes.
func DecodeWire(wire string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return raw, nil
}

// DecodeSamples interprets raw as little-endian int16 PCM with the given
// channel count and converts every sample to float by dividing by 32768.
// The byte length must be a multiple of 2*channels.
func DecodeSamples(raw []byte, sampleRate, channels int) (Chunk, error) {
	if channels < 1 {
		return Chunk{}, fmt.Errorf("%w: channel count %d", ErrMalformedAudio, channels)
	}
	if len(raw)%(bytesPerSample*channels) != 0 {
		return Chunk{}, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedAudio, len(raw), bytesPerSample*channels)
	}
	return Chunk{
		Samples:    PCM16ToFloat(raw),
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// DecodeWireChunk runs both decode steps: base64 and PCM interpretation.
func DecodeWireChunk(wire string, sampleRate, channels int) (Chunk, error) {
	raw, err := DecodeWire(wire)
	if err != nil {
		return Chunk{}, err
	}
	return DecodeSamples(raw, sampleRate, channels)
}

// FloatToPCM16 converts float samples in [-1, 1] to little-endian int16 PCM.
// Out-of-range values are clamped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// PCM16ToFloat converts little-endian int16 PCM to float samples. A trailing
// odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

func floatToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := math.Round(float64(s) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
