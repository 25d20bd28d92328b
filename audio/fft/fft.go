package fft

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// WindowFunc builds a window of the given length.
type WindowFunc func(int) []float64

// Windows available to FFTProcessor.
var (
	Hamming  WindowFunc = window.Hamming
	Blackman WindowFunc = window.Blackman
)

// FFTProcessor applies a window and computes the magnitude of the real FFT.
type FFTProcessor struct {
	Size int

	window  []float64
	scratch []float64
}

// NewFFTProcessor creates a processor for frames of the given size. A nil
// window function uses Blackman.
func NewFFTProcessor(size int, w WindowFunc) *FFTProcessor {
	if w == nil {
		w = Blackman
	}
	return &FFTProcessor{
		Size:    size,
		window:  w(size),
		scratch: make([]float64, size),
	}
}

// Magnitudes writes |X[k]|/N for the first N/2 bins of frame into dst, which
// is reallocated if too small. frame is not modified. Frames shorter than
// Size are zero padded.
func (f *FFTProcessor) Magnitudes(frame []float64, dst []float64) []float64 {
	n := f.Size
	for i := 0; i < n; i++ {
		if i < len(frame) {
			f.scratch[i] = frame[i] * f.window[i]
		} else {
			f.scratch[i] = 0
		}
	}
	fx := fft.FFTReal(f.scratch)

	half := n / 2
	if cap(dst) < half {
		dst = make([]float64, half)
	}
	dst = dst[:half]
	scale := 1 / float64(n)
	for k := 0; k < half; k++ {
		dst[k] = cmplx.Abs(fx[k]) * scale
	}
	return dst
}
