package control

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/engine"
	"github.com/fraendk-lang/elastic-pulse-studio/raster"
	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	d, err := raster.New(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	comp := render.NewCompositor(d, nil)
	return engine.New(engine.NewSession(nil), transport.New(10), comp, nil)
}

func TestRegistryMaster(t *testing.T) {
	eng := newEngine(t)
	reg := NewRegistry(eng)
	if err := reg.Apply("master.bloom", 0.7); err != nil {
		t.Fatal(err)
	}
	if err := reg.Apply("master.strobe", 1); err != nil {
		t.Fatal(err)
	}
	m := eng.Session.Snapshot().Master
	if m.Bloom != 0.7 || !m.Strobe {
		t.Fatalf("master = %+v", m)
	}
	if err := reg.Apply("master.nope", 1); err == nil {
		t.Fatal("expected error for unknown master field")
	}
	if err := reg.Apply("bogus", 1); err == nil {
		t.Fatal("expected error for unknown path")
	}
}

func TestRegistryHook(t *testing.T) {
	eng := newEngine(t)
	reg := NewRegistry(eng)
	if err := reg.Apply(engine.MasterBPM, 121.4); err != nil {
		t.Fatal(err)
	}
	// Hooks are applied by the next frame.
	if bpm := eng.Session.Snapshot().Master.BPM; bpm != timeline.DefaultMaster().BPM {
		t.Fatalf("bpm applied early: %v", bpm)
	}
	eng.Frame(time.Now())
	if bpm := eng.Session.Snapshot().Master.BPM; bpm != 121 {
		t.Fatalf("bpm = %v, want 121", bpm)
	}
}

func TestRegistryClip(t *testing.T) {
	eng := newEngine(t)
	reg := NewRegistry(eng)
	clip := timeline.NewClip("s", 0)
	err := eng.Session.Edit(func(p *timeline.Project) error {
		p.Clips = append(p.Clips, clip)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.Apply("clip."+clip.ID+".opacity", 0.25); err != nil {
		t.Fatal(err)
	}
	if err := reg.Apply("clip."+clip.ID+".zoom", 0.5); err != nil {
		t.Fatal(err)
	}
	p := eng.Session.Snapshot()
	c, _ := p.Clip(clip.ID)
	if c.Opacity != 0.25 || c.Params[timeline.Zoom] != 0.5 {
		t.Fatalf("clip = opacity %v zoom %v", c.Opacity, c.Params[timeline.Zoom])
	}

	if err := reg.Apply("clip.missing.zoom", 1); !errors.Is(err, engine.ErrNoClip) {
		t.Fatalf("err = %v, want ErrNoClip", err)
	}
	if err := reg.Apply("clip."+clip.ID+".nope", 1); err == nil {
		t.Fatal("expected error for unknown clip param")
	}
}

func TestRegistryPaths(t *testing.T) {
	paths := NewRegistry(newEngine(t)).Paths()
	want := map[string]bool{"masterBPM": false, "master.bloom": false, "master.backgroundType": false}
	for _, p := range paths {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("missing path %s", p)
		}
	}
}

type applied struct {
	mu   sync.Mutex
	path []string
	val  []float64
}

func (a *applied) apply(path string, v float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.path = append(a.path, path)
	a.val = append(a.val, v)
	return nil
}

func TestParseMessage(t *testing.T) {
	m, ok := ParseMessage([]byte{0xb3, 7, 100}, 0)
	if !ok || m.Kind != CC || m.Channel != 3 || m.Number != 7 || m.Value != 100 {
		t.Fatalf("cc = %+v, %v", m, ok)
	}
	m, ok = ParseMessage([]byte{0x90, 60, 0}, 0)
	if !ok || m.Kind != NoteOff {
		t.Fatalf("note on with zero velocity = %+v", m)
	}
	m, ok = ParseMessage([]byte{0x91, 60, 90}, 0)
	if !ok || m.Kind != NoteOn || m.Value != 90 {
		t.Fatalf("note on = %+v", m)
	}
	if m, ok = ParseMessage([]byte{0xf8}, time.Second); !ok || m.Kind != Clock || m.At != time.Second {
		t.Fatalf("clock = %+v", m)
	}
	if _, ok := ParseMessage([]byte{0xe0, 0, 0}, 0); ok {
		t.Fatal("pitch bend should not parse")
	}
	if _, ok := ParseMessage([]byte{0xb0, 1}, 0); ok {
		t.Fatal("short message should not parse")
	}
}

func TestMappingScale(t *testing.T) {
	m := Mapping{Min: 0, Max: 1}
	if v := m.Scale(127); v != 1 {
		t.Fatalf("scale(127) = %v", v)
	}
	m = Mapping{Min: 2, Max: 4, Inverted: true}
	if v := m.Scale(0); v != 4 {
		t.Fatalf("inverted scale(0) = %v", v)
	}
	if v := m.Scale(200); v != 2 {
		t.Fatalf("clamped inverted scale = %v", v)
	}
}

func TestMapperLearn(t *testing.T) {
	var a applied
	m := NewMapper(a.apply)
	m.Learn("master.bloom", CC)

	// Notes are ignored while learning a controller.
	m.Handle(Message{Kind: NoteOn, Number: 40, Value: 100})
	m.Handle(Message{Kind: CC, Number: 21, Value: 10})
	if len(a.path) != 0 {
		t.Fatalf("learning applied %v", a.path)
	}
	mps := m.Mappings()
	if len(mps) != 1 || mps[0].Number != 21 || mps[0].Max != 127 {
		t.Fatalf("mappings = %+v", mps)
	}

	m.Handle(Message{Kind: CC, Number: 21, Value: 64})
	m.Handle(Message{Kind: CC, Number: 22, Value: 64})
	if len(a.path) != 1 || a.path[0] != "master.bloom" || a.val[0] != 64 {
		t.Fatalf("applied %v %v", a.path, a.val)
	}

	m.Remove("master.bloom")
	m.Handle(Message{Kind: CC, Number: 21, Value: 64})
	if len(a.path) != 1 {
		t.Fatal("removed mapping still applied")
	}
}

func TestMapperClock(t *testing.T) {
	var a applied
	m := NewMapper(a.apply)
	sec := float64(time.Second)
	interval := time.Duration(sec * 60 / (120 * 24))
	at := time.Second
	for i := 0; i < 12; i++ {
		m.Handle(Message{Kind: Clock, At: at})
		at += interval
	}
	if m.BPM() != 0 {
		t.Fatalf("tempo from %d intervals", 11)
	}
	for i := 0; i < 20; i++ {
		m.Handle(Message{Kind: Clock, At: at})
		at += interval
	}
	if m.BPM() != 120 {
		t.Fatalf("bpm = %v, want 120", m.BPM())
	}
	if len(a.path) != 1 || a.path[0] != engine.MasterBPM || a.val[0] != 120 {
		t.Fatalf("applied %v %v", a.path, a.val)
	}
}

func TestMapperClockRange(t *testing.T) {
	var a applied
	m := NewMapper(a.apply)
	// 30 bpm is below the accepted range.
	sec := float64(time.Second)
	interval := time.Duration(sec * 60 / (30 * 24))
	at := time.Second
	for i := 0; i < 30; i++ {
		m.Handle(Message{Kind: Clock, At: at})
		at += interval
	}
	if m.BPM() != 0 || len(a.path) != 0 {
		t.Fatalf("bpm = %v", m.BPM())
	}
}

func TestParseParamMessage(t *testing.T) {
	path, v, err := ParseParamMessage("pulse/", "pulse/param/master/bloom", []byte(" 0.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if path != "master.bloom" || math.Abs(v-0.5) > 1e-12 {
		t.Fatalf("got %s=%v", path, v)
	}
	if _, _, err := ParseParamMessage("pulse", "other/param/x", []byte("1")); err == nil {
		t.Fatal("expected topic error")
	}
	if _, _, err := ParseParamMessage("pulse", "pulse/param/masterBPM", []byte("fast")); err == nil {
		t.Fatal("expected payload error")
	}
}
