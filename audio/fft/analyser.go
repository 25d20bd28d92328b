package fft

import (
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
)

// Spectrum is a byte-scaled magnitude spectrum taken at a stream time.
type Spectrum struct {
	Bins []uint8
	At   time.Duration
}

// AnalyserConfig mirrors the knobs of a typical browser analyser node.
type AnalyserConfig struct {
	Size        int
	MinDecibels float64
	MaxDecibels float64
	// Smoothing blends each bin with its previous value, in [0,1).
	Smoothing float64
}

// DefaultAnalyserConfig is a 1024 point analyser over [-100,-30] dB.
func DefaultAnalyserConfig() *AnalyserConfig {
	return &AnalyserConfig{
		Size:        1024,
		MinDecibels: -100,
		MaxDecibels: -30,
		Smoothing:   0.5,
	}
}

// Analyser produces byte frequency data: smoothed magnitudes in decibels,
// mapped linearly from [MinDecibels, MaxDecibels] to [0,255].
type Analyser struct {
	cfg *AnalyserConfig
	fft *FFTProcessor

	mags     []float64
	smoothed []float64
}

// NewAnalyser creates an Analyser. A nil config uses DefaultAnalyserConfig.
func NewAnalyser(cfg *AnalyserConfig) *Analyser {
	if cfg == nil {
		cfg = DefaultAnalyserConfig()
	}
	return &Analyser{
		cfg:      cfg,
		fft:      NewFFTProcessor(cfg.Size, Blackman),
		smoothed: make([]float64, cfg.Size/2),
	}
}

// Bins is the number of frequency bins produced per frame.
func (a *Analyser) Bins() int {
	return a.cfg.Size / 2
}

// ByteFrequencyData analyses one frame and writes the result into dst.
func (a *Analyser) ByteFrequencyData(frame []float64, dst []uint8) []uint8 {
	a.mags = a.fft.Magnitudes(frame, a.mags)

	n := len(a.mags)
	if cap(dst) < n {
		dst = make([]uint8, n)
	}
	dst = dst[:n]

	tau := a.cfg.Smoothing
	rng := a.cfg.MaxDecibels - a.cfg.MinDecibels
	for k, m := range a.mags {
		s := tau*a.smoothed[k] + (1-tau)*m
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s

		db := a.cfg.MinDecibels
		if s > 0 {
			db = 20 * math.Log10(s)
		}
		v := 255 / rng * (db - a.cfg.MinDecibels)
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		dst[k] = uint8(v)
	}
	return dst
}

// Reset forgets the smoothing history.
func (a *Analyser) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}

// Process analyses every incoming frame. Each output spectrum is freshly
// allocated so receivers may keep it.
func (a *Analyser) Process(done chan struct{}, in <-chan audio.Frame) chan Spectrum {
	out := make(chan Spectrum, 1)

	go func() {
		defer close(out)
		for {
			var frame audio.Frame
			var ok bool
			select {
			case <-done:
				return
			case frame, ok = <-in:
				if !ok {
					return
				}
			}

			spec := Spectrum{Bins: a.ByteFrequencyData(frame.Samples, nil), At: frame.At}
			select {
			case out <- spec:
			case <-done:
				return
			default:
				if glog.V(3) {
					glog.Info("analyser output full, spectrum dropped")
				}
			}
		}
	}()

	return out
}
