package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

var warnedConvert sync.Once

// ToMono averages interleaved channels into a single channel. Mono chunks are
// returned unchanged (zero allocation).
func ToMono(c Chunk) Chunk {
	if c.Channels <= 1 {
		return c
	}
	frames := c.Frames()
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range c.Channels {
			sum += c.Samples[i*c.Channels+ch]
		}
		out[i] = sum / float32(c.Channels)
	}
	return Chunk{Samples: out, SampleRate: c.SampleRate, Channels: 1}
}

// Resample converts a mono chunk to dstRate using linear interpolation. If the
// rates already match, or either rate is not positive, the chunk is returned
// unchanged. A warning is logged the first time a conversion happens.
func Resample(c Chunk, dstRate int) Chunk {
	srcRate := c.SampleRate
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(c.Samples) == 0 {
		return c
	}
	warnedConvert.Do(func() {
		slog.Warn("audio sample rate mismatch: resampling",
			"from", formatString(srcRate, c.Channels),
			"to", formatString(dstRate, c.Channels),
		)
	})

	src := c.Samples
	dstLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return Chunk{Samples: out, SampleRate: dstRate, Channels: c.Channels}
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "24000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
