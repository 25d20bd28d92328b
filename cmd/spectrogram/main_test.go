package main

import (
	"math"
	"testing"

	"github.com/faiface/beep"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/fft"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

// tone is a seekable sine stream.
type tone struct {
	rate, freq float64
	pos, n     int
}

func (s *tone) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.n {
		return 0, false
	}
	i := 0
	for ; i < len(samples) && s.pos < s.n; i++ {
		v := 0.5 * math.Sin(2*math.Pi*s.freq*float64(s.pos)/s.rate)
		samples[i] = [2]float64{v, v}
		s.pos++
	}
	return i, true
}

func (s *tone) Err() error { return nil }
func (s *tone) Len() int { return s.n }
func (s *tone) Position() int { return s.pos }
func (s *tone) Seek(p int) error { s.pos = p; return nil }
func (s *tone) Close() error { return nil }

func TestSpectrogram(t *testing.T) {
	const rate = 8000
	s := &tone{rate: rate, freq: 1000, n: rate}
	player := audio.NewOffline(s, beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}, 256)

	cfg := fft.DefaultAnalyserConfig()
	cfg.Size = 256
	cfg.MaxDecibels = 0
	an := fft.NewAnalyser(cfg)
	cols := analyse(player, an, features.NewExtractor(nil), 20)
	if len(cols) != 20 {
		t.Fatalf("got %d columns", len(cols))
	}

	// 1 kHz lands in bin 32 of a 256 point transform at 8 kHz.
	peak := 0
	for j, v := range cols[10].bins {
		if v > cols[10].bins[peak] {
			peak = j
		}
	}
	if peak < 31 || peak > 33 {
		t.Fatalf("peak at bin %d", peak)
	}

	cmap := util.NewColorMap()
	img := render(cols, an.Bins(), 2, cmap)
	b := img.Bounds()
	if b.Dx() != 20 || b.Dy() != an.Bins()+2*int(features.NumBands) {
		t.Fatalf("image is %v", b)
	}
	if img.NRGBAAt(10, an.Bins()-1-peak) == img.NRGBAAt(10, 0) {
		t.Fatal("peak row not distinguished from the top of the spectrum")
	}
}
