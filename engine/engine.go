// Package engine runs one frame at a time: it applies queued external
// updates, advances the transport, reads the latest audio features and
// hands a snapshot of the project to the compositor.
package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

// Names of the global parameters that accept external updates.
const (
	MasterBPM      = "masterBPM"
	MasterBloom    = "masterBloom"
	MasterFeedback = "masterFeedback"
	PlayPause      = "playPause"
	Reset          = "reset"
)

// Hooks lists every name accepted by RegisterExternalUpdate.
var Hooks = []string{MasterBPM, MasterBloom, MasterFeedback, PlayPause, Reset}

// UpdateFunc receives an external update value.
type UpdateFunc func(value float64)

// FeatureSource publishes the latest analysed audio. features.Analysis and
// features.Extractor satisfy it.
type FeatureSource interface {
	Latest() features.Snapshot
}

type update struct {
	name  string
	value float64
}

// Status is what the engine reports about the last rendered frame.
type Status struct {
	Transport transport.State   `json:"transport"`
	Features  features.Snapshot `json:"features"`
	Clock     float64           `json:"clock"`
	Report    render.Report     `json:"-"`
	Frames    uint64            `json:"frames"`
}

// Engine is driven by a single render goroutine calling Frame. Dispatch
// and RegisterExternalUpdate may be called from any goroutine.
type Engine struct {
	Session   *Session
	Transport *transport.Transport
	comp      *render.Compositor
	source    FeatureSource

	clock transport.Clock
	pacer *transport.Pacer

	mu      sync.Mutex
	hooks   map[string][]UpdateFunc
	pending []update
	status  Status
}

// New wires the engine. A nil source renders with zero features.
func New(s *Session, tr *transport.Transport, comp *render.Compositor, source FeatureSource) *Engine {
	e := &Engine{
		Session:   s,
		Transport: tr,
		comp:      comp,
		source:    source,
		pacer:     transport.NewPacer(),
		hooks:     make(map[string][]UpdateFunc),
	}
	return e
}

// Compositor returns the compositor frames are drawn with.
func (e *Engine) Compositor() *render.Compositor { return e.comp }

func knownHook(name string) bool {
	for _, h := range Hooks {
		if h == name {
			return true
		}
	}
	return false
}

// RegisterExternalUpdate adds fn as a listener for name. Listeners run on
// the render goroutine after the engine applied the update itself.
func (e *Engine) RegisterExternalUpdate(name string, fn UpdateFunc) error {
	if !knownHook(name) {
		return fmt.Errorf("unknown external update %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[name] = append(e.hooks[name], fn)
	return nil
}

// Dispatch queues an update for the next frame.
func (e *Engine) Dispatch(name string, value float64) error {
	if !knownHook(name) {
		return fmt.Errorf("unknown external update %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, update{name, value})
	return nil
}

// applyPending runs queued updates in arrival order.
func (e *Engine) applyPending() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, u := range pending {
		if err := e.apply(u); err != nil {
			glog.Warningf("external update %s=%v: %v", u.name, u.value, err)
			continue
		}
		e.mu.Lock()
		fns := append([]UpdateFunc(nil), e.hooks[u.name]...)
		e.mu.Unlock()
		for _, fn := range fns {
			fn(u.value)
		}
	}
}

func (e *Engine) apply(u update) error {
	setMaster := func(field string) error {
		return e.Session.Update(func(p *timeline.Project) error {
			return p.Master.Set(field, u.value)
		})
	}
	switch u.name {
	case MasterBPM:
		u.value = math.Round(u.value)
		return setMaster("bpm")
	case MasterBloom:
		return setMaster("bloom")
	case MasterFeedback:
		return setMaster("feedback")
	case PlayPause:
		e.Transport.Toggle()
	case Reset:
		e.Transport.Reset()
	}
	return nil
}

// syncTransport copies timeline length and loop region into the transport
// and reports whether the loop was changed. The region is compared after
// clamping to the timeline, as the transport stores it.
func (e *Engine) syncTransport(p *timeline.Project) bool {
	st := e.Transport.State()
	if p.Duration != st.Duration {
		if err := e.Transport.SetDuration(p.Duration); err != nil {
			glog.Warningf("project duration: %v", err)
		} else {
			st.Duration = p.Duration
		}
	}

	var want *timeline.Region
	if p.Loop.Valid() {
		r := transport.ClampRegion(p.Loop.Start, p.Loop.End, st.Duration)
		if r.Valid() {
			want = &r
		} else if st.Loop != nil {
			glog.V(2).Infof("loop %v..%v lies beyond the timeline", p.Loop.Start, p.Loop.End)
		}
	}
	switch {
	case want != nil && (st.Loop == nil || *st.Loop != *want):
		if err := e.Transport.SetLoop(want.Start, want.End); err != nil {
			glog.Warningf("project loop: %v", err)
			return false
		}
		return true
	case want == nil && st.Loop != nil:
		e.Transport.ClearLoop()
		return true
	}
	return false
}

// Frame renders the tick at now and reports whether anything was drawn.
// Idle ticks are throttled.
func (e *Engine) Frame(now time.Time) (render.Report, bool) {
	e.applyPending()

	p := e.Session.Snapshot()
	f := &render.Frame{
		Master:  p.Master,
		Shaders: p.Shaders,
		Clips:   p.Clips,
		Mutes:   p.Mutes,
		Solos:   p.Solos,
	}
	if !e.pacer.Allow(now, f.Idle()) {
		return render.Report{}, false
	}

	e.syncTransport(p)
	clock, dt := e.clock.Advance(now)
	f.Clock = clock
	f.Time = e.Transport.Tick(dt)
	f.BPM = p.Master.Tempo()

	var snap features.Snapshot
	if e.source != nil {
		snap = e.source.Latest()
	}
	f.Features = snap.Features

	report := e.comp.Render(f)
	if glog.V(3) {
		glog.Infof("frame t=%.3f clock=%.3f drawn=%v skipped=%d", f.Time, f.Clock, report.Drawn, len(report.Skipped))
	}

	e.mu.Lock()
	e.status = Status{
		Transport: e.Transport.State(),
		Features:  snap,
		Clock:     clock,
		Report:    report,
		Frames:    e.status.Frames + 1,
	}
	e.mu.Unlock()
	return report, true
}

// Status returns the state after the last rendered frame.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}
