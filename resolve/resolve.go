// Package resolve turns a clip definition and the state of one frame into the
// numeric uniforms a layer is drawn with.
package resolve

import (
	"math"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/automation"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// ClockTimeScale is how much of the free running clock leaks into shader time.
const ClockTimeScale = 0.1

// PunchZoom replaces the zoom of every layer while zoom punch is held.
const PunchZoom = 0.9

// Input is the per-frame state shared by all clips.
type Input struct {
	// Time is the transport position in seconds.
	Time float64
	// Clock is the free running render clock in seconds.
	Clock    float64
	BPM      float64
	Features features.Vector
	Master   *timeline.MasterFX
}

// Uniforms are the resolved values of one layer.
type Uniforms struct {
	Time       float64
	FrozenTime float64
	// LocalTime is the time-stretched position within the clip in [0,1].
	LocalTime float64
	Fade      float64

	Speed         float64
	Intensity     float64
	Opacity       float64
	Audio         float64
	Zoom          float64
	Kaleidoscope  float64
	Mirror        float64
	Glitch        float64
	Distort       float64
	HueRotate     float64
	Contrast      float64
	Saturation    float64
	Brightness    float64
	TieEffect     float64
	FeedbackDelay float64
	Particles     float64
	Color         [3]float64

	Freeze             bool
	Invert             bool
	ChromaBurst        bool
	Scanlines          bool
	EdgeDetection      bool
	Pixelate           float64
	Noise              float64
	RGBShift           float64
	Posterize          float64
	Fisheye            float64
	Twirl              float64
	MasterKaleidoscope float64
}

// LocalTime returns the time-stretched relative position of t in the clip,
// clamped to [0,1].
func LocalTime(c *timeline.Clip, t float64) float64 {
	if c.Duration <= 0 {
		return 0
	}
	stretch := c.TimeStretch
	if stretch <= 0 || math.IsNaN(stretch) {
		stretch = 1
	}
	return clamp01((t - c.Start) / c.Duration * stretch)
}

// FadeMultiplier ramps 0→1 over the first fadeIn seconds of a clip and 1→0
// over its last fadeOut seconds. Elapsed time is wall clock seconds and is not
// affected by time stretch.
func FadeMultiplier(elapsed, duration, fadeIn, fadeOut float64) float64 {
	m := 1.0
	if elapsed < fadeIn {
		m = elapsed / math.Max(0.01, fadeIn)
	} else if elapsed > duration-fadeOut {
		m = (duration - elapsed) / math.Max(0.01, fadeOut)
	}
	return clamp01(m)
}

// ColorRGB expands a scalar hue in [0,1] into a triangle-wave RGB triple.
func ColorRGB(h float64) [3]float64 {
	return [3]float64{
		clamp01(math.Abs(h*6-3) - 1),
		clamp01(2 - math.Abs(h*6-2)),
		clamp01(2 - math.Abs(h*6-4)),
	}
}

// Value resolves one named parameter: automation at local time over base,
// plus every oscillator targeting it. A non-finite result yields base.
func Value(c *timeline.Clip, name string, base, local, clock, bpm float64) float64 {
	v := automation.Evaluate(c.Automation[name], base, local)
	v += automation.Sum(c.LFOs, name, clock, bpm)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return base
	}
	return v
}

// Clip resolves the uniforms of c for one frame. It reports false when the
// clip is not active at in.Time.
func Clip(c *timeline.Clip, in *Input) (Uniforms, bool) {
	if !c.ActiveAt(in.Time) {
		return Uniforms{}, false
	}
	master := in.Master
	if master == nil {
		m := timeline.DefaultMaster()
		master = &m
	}
	bpm := in.BPM
	if bpm <= 0 {
		bpm = master.Tempo()
	}

	local := LocalTime(c, in.Time)
	param := func(p timeline.Param) float64 {
		return Value(c, p.String(), c.Params[p], local, in.Clock, bpm)
	}

	u := Uniforms{
		Time:       in.Time + in.Clock*ClockTimeScale,
		FrozenTime: in.Clock,
		LocalTime:  local,
		Fade:       FadeMultiplier(in.Time-c.Start, c.Duration, c.FadeIn, c.FadeOut),

		Speed:         param(timeline.Speed),
		Intensity:     param(timeline.Intensity),
		Zoom:          param(timeline.Zoom),
		Kaleidoscope:  param(timeline.Kaleidoscope),
		Mirror:        param(timeline.Mirror),
		Glitch:        param(timeline.Glitch),
		Distort:       param(timeline.Distort),
		HueRotate:     param(timeline.HueRotate),
		Contrast:      param(timeline.Contrast),
		Saturation:    param(timeline.Saturation),
		Brightness:    param(timeline.Brightness),
		TieEffect:     param(timeline.TieEffect),
		FeedbackDelay: param(timeline.FeedbackDelay),
		Particles:     param(timeline.Particles),
		Color:         ColorRGB(param(timeline.Color)),

		Freeze:             master.Freeze,
		Invert:             master.Invert,
		ChromaBurst:        master.ChromaBurst,
		Scanlines:          master.Scanlines,
		EdgeDetection:      master.EdgeDetection,
		Pixelate:           master.Pixelate,
		Noise:              master.Noise,
		RGBShift:           master.RGBShift,
		Posterize:          master.Posterize,
		Fisheye:            master.Fisheye,
		Twirl:              master.Twirl,
		MasterKaleidoscope: master.Kaleidoscope,
	}
	u.Opacity = Value(c, timeline.OpacityParam, c.Opacity, local, in.Clock, bpm) * u.Fade
	if master.ZoomPunch {
		u.Zoom = PunchZoom
	}
	if master.MirrorFlip {
		u.Mirror = math.Max(u.Mirror, 1)
	}
	if master.GlitchHit {
		u.Glitch = math.Max(u.Glitch, 1)
	}

	tie := c.AudioTie
	if tie < 0 || tie >= features.NumBands {
		tie = features.Vol
	}
	u.Audio = in.Features.Get(tie) * c.AudioReactive
	return u, true
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
