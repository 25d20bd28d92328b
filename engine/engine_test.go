package engine

import (
	"testing"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/raster"
	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

type staticSource struct{ snap features.Snapshot }

func (s *staticSource) Latest() features.Snapshot { return s.snap }

func newTestEngine(t *testing.T, p *timeline.Project, src FeatureSource) *Engine {
	t.Helper()
	d, err := raster.New(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	return New(NewSession(p), transport.New(120), render.NewCompositor(d, nil), src)
}

func redProject() (*timeline.Project, timeline.Clip) {
	p := timeline.NewProject()
	p.Duration = 30
	p.Shaders = []timeline.Shader{{ID: "red", Name: "red", Source: "rgb(1, 0, 0)"}}
	c := timeline.NewClip("red", 0)
	c.Duration = 10
	p.Clips = append(p.Clips, c)
	return p, c
}

func TestFrameDrawsActiveClip(t *testing.T) {
	p, c := redProject()
	var src staticSource
	src.snap.Features[features.Bass] = 0.5
	src.snap.BPM = 124
	e := newTestEngine(t, p, &src)

	start := time.Now()
	e.Transport.Play()
	report, ok := e.Frame(start)
	if !ok {
		t.Fatal("first frame throttled")
	}
	if len(report.Drawn) != 1 || report.Drawn[0] != c.ID {
		t.Fatalf("drawn = %v, skipped = %v", report.Drawn, report.Skipped)
	}

	if _, ok := e.Frame(start.Add(100 * time.Millisecond)); !ok {
		t.Fatal("active frame throttled")
	}
	st := e.Status()
	if st.Frames != 2 {
		t.Fatalf("frames = %d", st.Frames)
	}
	if st.Transport.Duration != 30 {
		t.Fatalf("duration not synced: %v", st.Transport.Duration)
	}
	if st.Transport.Time < 0.09 || st.Transport.Time > 0.11 {
		t.Fatalf("time = %v", st.Transport.Time)
	}
	if st.Features.Features[features.Bass] != 0.5 || st.Features.BPM != 124 {
		t.Fatalf("features = %+v", st.Features)
	}
}

func TestIdleFramesThrottled(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	now := time.Now()
	drawn := 0
	for i := 0; i < 60; i++ {
		if _, ok := e.Frame(now); ok {
			drawn++
		}
		now = now.Add(time.Second / 60)
	}
	if drawn != 30 {
		t.Fatalf("drew %d idle frames of 60", drawn)
	}
}

func TestExternalUpdates(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	var heard []float64
	if err := e.RegisterExternalUpdate(MasterBloom, func(v float64) { heard = append(heard, v) }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterExternalUpdate("masterWobble", func(float64) {}); err == nil {
		t.Fatal("expected error for unknown hook")
	}
	if err := e.Dispatch("masterWobble", 1); err == nil {
		t.Fatal("expected error for unknown dispatch")
	}

	for _, u := range []struct {
		name string
		v    float64
	}{
		{MasterBPM, 90.4},
		{MasterBloom, 0.8},
		{MasterFeedback, 0.6},
		{PlayPause, 1},
	} {
		if err := e.Dispatch(u.name, u.v); err != nil {
			t.Fatal(err)
		}
	}
	e.Frame(time.Now())

	m := e.Session.Snapshot().Master
	if m.BPM != 90 || m.Bloom != 0.8 || m.Feedback != 0.6 {
		t.Fatalf("master = bpm %v bloom %v feedback %v", m.BPM, m.Bloom, m.Feedback)
	}
	if !e.Transport.Playing() {
		t.Fatal("playPause did not start playback")
	}
	if len(heard) != 1 || heard[0] != 0.8 {
		t.Fatalf("listener heard %v", heard)
	}

	e.Transport.Seek(5)
	e.Dispatch(Reset, 1)
	e.Frame(time.Now())
	if e.Transport.Time() != 0 || e.Transport.Playing() {
		t.Fatalf("reset left time at %v, playing %v", e.Transport.Time(), e.Transport.Playing())
	}
}

func TestLoopSync(t *testing.T) {
	p, _ := redProject()
	p.Loop = &timeline.Region{Start: 2, End: 4}
	e := newTestEngine(t, p, nil)
	e.Frame(time.Now())
	if l := e.Transport.State().Loop; l == nil || l.Start != 2 || l.End != 4 {
		t.Fatalf("loop = %+v", l)
	}

	e.Session.Update(func(p *timeline.Project) error {
		p.Loop = nil
		return nil
	})
	e.Frame(time.Now())
	if l := e.Transport.State().Loop; l != nil {
		t.Fatalf("loop not cleared: %+v", l)
	}
}

func TestLoopBeyondEndSyncedOnce(t *testing.T) {
	p, _ := redProject()
	p.Loop = &timeline.Region{Start: 20, End: 45}
	e := newTestEngine(t, p, nil)

	if !e.syncTransport(p) {
		t.Fatal("first sync should set the loop")
	}
	if l := e.Transport.State().Loop; l == nil || l.Start != 20 || l.End != 30 {
		t.Fatalf("loop = %+v", l)
	}
	for i := 0; i < 3; i++ {
		if e.syncTransport(p) {
			t.Fatal("clamped loop reapplied on an unchanged project")
		}
	}

	p.Loop = &timeline.Region{Start: 40, End: 50}
	if !e.syncTransport(p) || e.Transport.State().Loop != nil {
		t.Fatal("loop past the end should clear the transport loop")
	}
	if e.syncTransport(p) {
		t.Fatal("unreachable loop should not be synced every frame")
	}
}

func TestSessionHistory(t *testing.T) {
	s := NewSession(nil)
	c := timeline.NewClip("s", 1)
	v := s.Version()
	if err := s.Edit(func(p *timeline.Project) error {
		p.Clips = append(p.Clips, c)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if s.Version() == v {
		t.Fatal("version not bumped")
	}
	if err := s.Edit(func(p *timeline.Project) error {
		if !p.RemoveClip("missing") {
			return ErrNoClip
		}
		return nil
	}); err != ErrNoClip {
		t.Fatalf("err = %v", err)
	}

	if !s.Undo() {
		t.Fatal("nothing to undo")
	}
	if n := len(s.Snapshot().Clips); n != 0 {
		t.Fatalf("%d clips after undo", n)
	}
	if !s.Redo() {
		t.Fatal("nothing to redo")
	}
	if _, ok := s.Snapshot().Clip(c.ID); !ok {
		t.Fatal("clip not restored")
	}
	if s.Undo(); s.Undo() {
		t.Fatal("failed edit was recorded")
	}
}

func TestSessionSaveLoad(t *testing.T) {
	p, c := redProject()
	p.Master.Bloom = 0.4
	s := NewSession(p)
	s.Edit(func(p *timeline.Project) error { return nil })

	data, err := s.Save()
	if err != nil {
		t.Fatal(err)
	}
	other := NewSession(nil)
	if err := other.Load(data); err != nil {
		t.Fatal(err)
	}
	got := other.Snapshot()
	if _, ok := got.Clip(c.ID); !ok || got.Master.Bloom != 0.4 || got.Duration != 30 {
		t.Fatalf("loaded %+v", got)
	}
	if other.Undo() {
		t.Fatal("history survived load")
	}
	if err := other.Load([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSnapshotIsolated(t *testing.T) {
	p, c := redProject()
	s := NewSession(p)
	snap := s.Snapshot()
	snap.Clips[0].Opacity = 0
	snap.Master.Bloom = 9
	got := s.Snapshot()
	if cl, _ := got.Clip(c.ID); cl.Opacity != 1 || got.Master.Bloom == 9 {
		t.Fatal("snapshot aliases the session")
	}
}
