// Package features turns byte spectra into a smoothed multi-band energy vector
// with transient detectors and a tempo estimate.
package features

import (
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/stat"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

// BinRanges are the [start, end) byte-spectrum bins of each frequency band for a
// 1024 point transform.
var BinRanges = [NumFrequencyBands][2]int{
	Sub:      {0, 3},
	Bass:     {3, 12},
	LowMid:   {12, 30},
	Mid:      {30, 80},
	HighMid:  {80, 150},
	Treble:   {150, 250},
	Presence: {250, 512},
}

// Config controls smoothing, transient detection and tempo estimation.
type Config struct {
	// Attack is the smoothing coefficient used when a value rises.
	Attack float64
	// Release is the smoothing coefficient used when a value falls.
	Release float64
	// TransientGain scales the first difference of bass and mid.
	TransientGain float64
	// KickThreshold is the raw kick level that registers a beat.
	KickThreshold float64
	// KickDebounce rejects beats closer than this to the previous one.
	KickDebounce time.Duration
	// TempoHistory is the number of beat timestamps kept.
	TempoHistory int
	// MinIntervals is the number of beat intervals needed for an estimate.
	MinIntervals int
	MinBPM       float64
	MaxBPM       float64
}

// DefaultConfig returns the standard extractor configuration.
func DefaultConfig() *Config {
	return &Config{
		Attack:        0.35,
		Release:       0.12,
		TransientGain: 5,
		KickThreshold: 0.3,
		KickDebounce:  200 * time.Millisecond,
		TempoHistory:  10,
		MinIntervals:  4,
		MinBPM:        60,
		MaxBPM:        200,
	}
}

// Snapshot is a published, read-only extractor state.
type Snapshot struct {
	Features Vector
	// BPM is the detected tempo, or 0 before one is found.
	BPM float64
	At  time.Duration
}

// Extractor computes feature vectors. Update must be called from a single
// goroutine; Latest may be called from any goroutine.
type Extractor struct {
	cfg *Config

	raw      Vector
	smoothed Vector
	prevBass float64
	prevMid  float64
	scratch  []float64
	bucketer *util.Bucketer

	kicks    []time.Duration
	lastKick time.Duration
	haveKick bool
	bpm      float64

	latest atomic.Pointer[Snapshot]

	// OnTempo is called from Update whenever a new tempo is accepted.
	OnTempo func(bpm float64)
}

// NewExtractor creates an Extractor. A nil config uses DefaultConfig.
func NewExtractor(cfg *Config) *Extractor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ranges := make([][2]int, len(BinRanges))
	for i, r := range BinRanges {
		ranges[i] = r
	}
	return &Extractor{cfg: cfg, bucketer: util.NewBucketer(ranges, 255)}
}

// Update consumes one byte spectrum captured at the given stream time and
// publishes the new smoothed vector.
func (e *Extractor) Update(spectrum []uint8, at time.Duration) Vector {
	e.bands(spectrum)

	bass, mid := e.raw[Bass], e.raw[Mid]
	e.raw[Vol] = stat.Mean([]float64{bass, mid, e.raw[Treble]}, nil)
	e.raw[Kick] = math.Max(0, bass-e.prevBass) * e.cfg.TransientGain
	e.raw[Snare] = math.Max(0, mid-e.prevMid) * e.cfg.TransientGain
	e.prevBass, e.prevMid = bass, mid

	for i := range e.smoothed {
		e.smoothed[i] = e.smooth(e.smoothed[i], e.raw[i])
	}

	if e.raw[Kick] > e.cfg.KickThreshold {
		e.beat(at)
	}

	snap := &Snapshot{Features: e.smoothed, BPM: e.bpm, At: at}
	e.latest.Store(snap)
	return e.smoothed
}

// Raw returns the unsmoothed vector from the last Update.
func (e *Extractor) Raw() Vector {
	return e.raw
}

// Tempo returns the last accepted tempo, or 0.
func (e *Extractor) Tempo() float64 {
	return e.bpm
}

// Latest returns the most recently published snapshot. It is the zero
// Snapshot until the first Update.
func (e *Extractor) Latest() Snapshot {
	if s := e.latest.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Reset clears all state, including the published snapshot.
func (e *Extractor) Reset() {
	e.raw = Vector{}
	e.smoothed = Vector{}
	e.prevBass, e.prevMid = 0, 0
	e.kicks = e.kicks[:0]
	e.haveKick = false
	e.bpm = 0
	e.latest.Store(nil)
}

func (e *Extractor) bands(spectrum []uint8) {
	if cap(e.scratch) < len(spectrum) {
		e.scratch = make([]float64, len(spectrum))
	}
	x := e.scratch[:len(spectrum)]
	for i, b := range spectrum {
		x[i] = float64(b)
	}
	e.bucketer.Bucket(x, e.raw[:NumFrequencyBands])
}

func (e *Extractor) smooth(current, target float64) float64 {
	k := e.cfg.Release
	if target > current {
		k = e.cfg.Attack
	}
	return current + (target-current)*k
}

func (e *Extractor) beat(at time.Duration) {
	if e.haveKick && at-e.lastKick < e.cfg.KickDebounce {
		return
	}
	e.haveKick = true
	e.lastKick = at

	e.kicks = append(e.kicks, at)
	if n := e.cfg.TempoHistory; len(e.kicks) > n {
		e.kicks = append(e.kicks[:0], e.kicks[len(e.kicks)-n:]...)
	}
	if len(e.kicks)-1 < e.cfg.MinIntervals {
		return
	}

	intervals := make([]float64, len(e.kicks)-1)
	for i := 1; i < len(e.kicks); i++ {
		intervals[i-1] = float64(e.kicks[i]-e.kicks[i-1]) / float64(time.Millisecond)
	}
	sort.Float64s(intervals)
	median := intervals[len(intervals)/2]
	if median <= 0 {
		return
	}
	bpm := math.Round(60000 / median)
	if bpm < e.cfg.MinBPM || bpm > e.cfg.MaxBPM {
		return
	}
	if bpm != e.bpm {
		glog.V(2).Infof("tempo %v bpm", bpm)
		e.bpm = bpm
		if e.OnTempo != nil {
			e.OnTempo(bpm)
		}
	}
}
