package render

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultFFTSize is the analysis window length in samples.
	DefaultFFTSize = 256

	defaultSmoothing = 0.8
	minDecibels      = -100.0
	maxDecibels      = -30.0
)

// Analyser computes a smoothed frequency-magnitude snapshot over the most
// recently rendered samples. It mirrors the byte-scaled output of a browser
// analyser node so visualizers can treat each bin as a 0-255 bar height.
//
// All methods are safe for concurrent use.
type Analyser struct {
	mu        sync.Mutex
	size      int
	smoothing float64
	ring      []float64 // last size samples, oldest first
	window    []float64
	smoothed  []float64
	fft       *fourier.FFT
	scratch   []float64
	coeffs    []complex128
}

// NewAnalyser returns an Analyser with the given window size. Sizes that are
// not a power of two in [32, 32768] fall back to [DefaultFFTSize].
func NewAnalyser(size int) *Analyser {
	if size < 32 || size > 32768 || size&(size-1) != 0 {
		size = DefaultFFTSize
	}
	a := &Analyser{
		size:      size,
		smoothing: defaultSmoothing,
		ring:      make([]float64, size),
		window:    blackman(size),
		smoothed:  make([]float64, size/2),
		fft:       fourier.NewFFT(size),
		scratch:   make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
	}
	return a
}

// Bins returns the number of frequency bins in a snapshot.
func (a *Analyser) Bins() int { return a.size / 2 }

// Write feeds rendered samples into the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) >= a.size {
		samples = samples[len(samples)-a.size:]
		for i, s := range samples {
			a.ring[i] = float64(s)
		}
		return
	}
	copy(a.ring, a.ring[len(samples):])
	off := a.size - len(samples)
	for i, s := range samples {
		a.ring[off+i] = float64(s)
	}
}

// FrequencyData returns one byte per bin: the smoothed magnitude in decibels,
// mapped linearly from [-100 dB, -30 dB] onto [0, 255].
func (a *Analyser) FrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.ring {
		a.scratch[i] = s * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	out := make([]byte, len(a.smoothed))
	for k := range a.smoothed {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag

		db := minDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		out[k] = byte(math.Max(0, math.Min(255, scaled)))
	}
	return out
}

// Reset clears the analysis window and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
}

func blackman(n int) []float64 {
	const alpha = 0.16
	a0 := (1 - alpha) / 2
	a1 := 0.5
	a2 := alpha / 2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}
