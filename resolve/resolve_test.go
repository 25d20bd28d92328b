package resolve

import (
	"math"
	"testing"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/automation"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFadeEnvelope(t *testing.T) {
	cases := []struct {
		elapsed, want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{5, 1},
		{9, 1},
		{9.5, 0.5},
		{10, 0},
	}
	for _, c := range cases {
		if got := FadeMultiplier(c.elapsed, 10, 1, 1); !near(got, c.want) {
			t.Errorf("FadeMultiplier(%v) = %v, want %v", c.elapsed, got, c.want)
		}
	}
}

func TestFadeOverlapping(t *testing.T) {
	// fades longer than the clip still yield a multiplier in [0,1]
	for e := 0.0; e <= 1; e += 0.1 {
		m := FadeMultiplier(e, 1, 3, 3)
		if m < 0 || m > 1 {
			t.Fatalf("multiplier %v out of range at %v", m, e)
		}
	}
	if m := FadeMultiplier(0.2, 1, 0, 0); m != 1 {
		t.Fatal("zero fades should not attenuate", m)
	}
}

func TestColorRGB(t *testing.T) {
	cases := []struct {
		h    float64
		want [3]float64
	}{
		{0, [3]float64{1, 0, 0}},
		{1.0 / 3, [3]float64{0, 1, 0}},
		{2.0 / 3, [3]float64{0, 0, 1}},
		{0.5, [3]float64{0, 1, 1}},
	}
	for _, c := range cases {
		got := ColorRGB(c.h)
		for i := range got {
			if !near(got[i], c.want[i]) {
				t.Errorf("ColorRGB(%v) = %v, want %v", c.h, got, c.want)
				break
			}
		}
	}
}

func TestClipInactive(t *testing.T) {
	c := timeline.NewClip("s", 2)
	if _, ok := Clip(&c, &Input{Time: 1}); ok {
		t.Fatal("clip should not be active before its start")
	}
	if _, ok := Clip(&c, &Input{Time: c.End()}); ok {
		t.Fatal("clip should not be active at its end")
	}
}

func TestClipResolve(t *testing.T) {
	c := timeline.NewClip("s", 0)
	c.Duration = 10
	c.FadeIn, c.FadeOut = 0, 0
	c.TimeStretch = 2
	c.AudioTie = features.Bass
	c.AudioReactive = 2
	c.SetKeyframe("zoom", automation.Keyframe{Time: 0, Value: 0})
	c.SetKeyframe("zoom", automation.Keyframe{Time: 1, Value: 1})
	c.AddLFO(automation.Oscillator{Target: "speed", Waveform: automation.Sine, Frequency: 1, Amplitude: 0.5})

	var fv features.Vector
	fv[features.Bass] = 0.25
	m := timeline.DefaultMaster()
	in := &Input{Time: 2.5, Clock: 10.25, BPM: 120, Features: fv, Master: &m}

	u, ok := Clip(&c, in)
	if !ok {
		t.Fatal("clip should be active")
	}
	if !near(u.LocalTime, 0.5) {
		t.Fatal("local time", u.LocalTime)
	}
	if !near(u.Zoom, 0.5) {
		t.Fatal("zoom", u.Zoom)
	}
	// sin(2π·10.25) = 1
	if !near(u.Speed, 1.5) {
		t.Fatal("speed", u.Speed)
	}
	if !near(u.Time, 2.5+1.025) || u.FrozenTime != 10.25 {
		t.Fatal("time", u.Time, u.FrozenTime)
	}
	if !near(u.Audio, 0.5) {
		t.Fatal("audio", u.Audio)
	}
	if !near(u.Opacity, 1) {
		t.Fatal("opacity", u.Opacity)
	}
	if u.Color != ColorRGB(0.5) {
		t.Fatal("color", u.Color)
	}

	in.Time = 8
	u, _ = Clip(&c, in)
	if u.LocalTime != 1 || !near(u.Zoom, 1) {
		t.Fatal("time stretch should clamp at the clip end", u.LocalTime, u.Zoom)
	}
}

func TestMasterOverrides(t *testing.T) {
	c := timeline.NewClip("s", 0)
	c.Params[timeline.Zoom] = 0.2
	m := timeline.DefaultMaster()
	m.ZoomPunch = true
	m.MirrorFlip = true
	m.Invert = true
	m.Kaleidoscope = 3
	u, _ := Clip(&c, &Input{Time: 1, Master: &m})
	if u.Zoom != PunchZoom || u.Mirror != 1 || u.Glitch != 0 || !u.Invert || u.MasterKaleidoscope != 3 {
		t.Fatalf("unexpected overrides %+v", u)
	}
}

func TestOpacityFadeAndAutomation(t *testing.T) {
	c := timeline.NewClip("s", 10)
	c.Duration = 4
	c.FadeIn = 1
	c.SetKeyframe(timeline.OpacityParam, automation.Keyframe{Time: 0, Value: 0.5})
	u, _ := Clip(&c, &Input{Time: 10.5})
	if !near(u.Opacity, 0.25) || !near(u.Fade, 0.5) {
		t.Fatal(u.Opacity, u.Fade)
	}
}

func TestNonFiniteFallsBack(t *testing.T) {
	c := timeline.NewClip("s", 0)
	c.AddLFO(automation.Oscillator{Target: "intensity", Amplitude: math.Inf(1), Frequency: 1, Phase: 0.25})
	u, _ := Clip(&c, &Input{Time: 1})
	if u.Intensity != c.Params[timeline.Intensity] {
		t.Fatal(u.Intensity)
	}
}
