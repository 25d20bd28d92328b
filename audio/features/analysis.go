package features

import (
	"sync"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/fft"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

// Source is anything that can hand out a stream of mono sample blocks.
type Source interface {
	Tap() <-chan []float32
	SampleRate() float64
}

// Analysis wires audio sources into an Extractor. Readers poll Latest and
// always get the freshest published vector without blocking.
type Analysis struct {
	extractor *Extractor
	cfg       *fft.AnalyserConfig
	preGain   *util.PreGain

	mu      sync.Mutex
	update  sync.Mutex
	sources map[Source]bool
	done    chan struct{}
	closed  bool
}

// NewAnalysis creates an Analysis feeding ex. A nil config uses the default
// analyser configuration.
func NewAnalysis(ex *Extractor, cfg *fft.AnalyserConfig) *Analysis {
	if cfg == nil {
		cfg = fft.DefaultAnalyserConfig()
	}
	return &Analysis{
		extractor: ex,
		cfg:       cfg,
		sources:   make(map[Source]bool),
		done:      make(chan struct{}),
	}
}

// WithPreGain applies automatic gain to sources begun afterwards. Used for
// live inputs whose level is unknown.
func (a *Analysis) WithPreGain(p *util.PreGain) *Analysis {
	a.preGain = p
	return a
}

// Begin connects src to the analysis pipeline. It does so at most once per
// source and reports whether this call did the wiring. A nil source is
// ignored and the extractor keeps publishing zero vectors.
func (a *Analysis) Begin(src Source) bool {
	if src == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.sources[src] {
		return false
	}
	a.sources[src] = true

	blocks := src.Tap()
	if blocks == nil {
		glog.Warning("audio source has no stream, analysis idle")
		return true
	}

	frames := audio.Buffer(a.done, blocks, a.cfg.Size, src.SampleRate())
	if a.preGain != nil {
		frames = audio.NewNode(a.done, frames, a.preGain.Apply)
	}
	spectra := fft.NewAnalyser(a.cfg).Process(a.done, frames)
	go a.run(spectra)

	glog.V(1).Infof("analysis started at %.0f Hz", src.SampleRate())
	return true
}

func (a *Analysis) run(spectra <-chan fft.Spectrum) {
	for spec := range spectra {
		a.update.Lock()
		a.extractor.Update(spec.Bins, spec.At)
		a.update.Unlock()
	}
}

// Latest returns the most recent snapshot, or zeros when nothing has been
// analysed yet.
func (a *Analysis) Latest() Snapshot {
	return a.extractor.Latest()
}

// Extractor returns the underlying extractor.
func (a *Analysis) Extractor() *Extractor {
	return a.extractor
}

// Close stops all pipelines.
func (a *Analysis) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.done)
	}
}
