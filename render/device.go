// Package render composites a frame of clips onto a drawing device. It owns
// the per-frame draw order, the shader program cache, procedural backgrounds
// and video clip synchronization. Devices do the pixel work.
package render

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// ErrNoProgram is returned for layers whose shader has no usable program.
var ErrNoProgram = errors.New("no compiled program")

// ErrDeviceLost is wrapped by device errors that leave every compiled
// program and device resource invalid.
var ErrDeviceLost = errors.New("device context lost")

// Recreator is implemented by devices that can rebuild their own resources
// after ErrDeviceLost.
type Recreator interface {
	Recreate() error
}

// Neutral is the fill used when no background is selected.
var Neutral = color.NRGBA{R: 31, G: 31, B: 31, A: 255}

// Variant selects the wrapper a shader is compiled with.
type Variant int

// Program variants
const (
	Plain Variant = iota
	// WithVideo programs can sample the clip's current video frame.
	WithVideo
)

func (v Variant) String() string {
	if v == WithVideo {
		return "video"
	}
	return "plain"
}

// Source is the input to Device.Compile.
type Source struct {
	ShaderID string
	Text     string
	Variant  Variant
}

// Program is a compiled layer program. Only the device that created it knows
// its concrete type.
type Program interface{}

// Layer is everything a device needs to draw one clip.
type Layer struct {
	Program  Program
	Uniforms *resolve.Uniforms
	Blend    timeline.BlendMode
	// Echo is nil when the clip has no feedback delay.
	Echo *Echo
	// Video is the current decoded frame for WithVideo programs.
	Video image.Image
}

// Device is a drawing surface able to compile and run layer programs.
//
// Calls are made from the render goroutine only.
type Device interface {
	Size() (width, height int)
	Resize(width, height int) error

	Compile(src Source) (Program, error)
	Release(p Program)

	// Clear replaces every pixel with c.
	Clear(c color.NRGBA)
	// Background replaces the frame with img scaled to the surface.
	Background(img *image.RGBA) error
	// DrawImage alpha-blends img scaled to the surface at the given opacity.
	DrawImage(img image.Image, opacity float64) error
	// Draw runs a layer program over the full frame.
	Draw(l *Layer) error
	// Fill alpha-blends a flat colour over the frame.
	Fill(c color.NRGBA)
	// PostProcess applies the full-frame filter pass.
	PostProcess(fx PostFX) error

	// Snapshot returns a copy of the current frame.
	Snapshot() (*image.RGBA, error)
}

// Factor is a blend equation coefficient with the usual GL meaning.
type Factor int

// Blend factors
const (
	Zero Factor = iota
	One
	SrcAlpha
	OneMinusSrcAlpha
	DstColor
	OneMinusSrcColor
)

// BlendFactors maps a clip blend mode to source and destination factors.
// Modes without a dedicated equation use standard alpha blending.
func BlendFactors(m timeline.BlendMode) (src, dst Factor) {
	switch m {
	case timeline.Add:
		return SrcAlpha, One
	case timeline.Multiply:
		return DstColor, Zero
	case timeline.Screen:
		return One, OneMinusSrcColor
	default:
		return SrcAlpha, OneMinusSrcAlpha
	}
}

// Echo describes the temporal feedback of a layer: the program is evaluated
// once per tap at Time+Offsets[i], weighted by Weights[i], and the sum is
// divided by Norm.
type Echo struct {
	Weights [3]float64
	Offsets [3]float64
	Norm    float64
}

// EchoFor returns the echo for a feedback delay, or nil if delay is not
// positive. The sum is halved rather than divided by the weight total.
func EchoFor(delay float64) *Echo {
	if !(delay > 0) || math.IsInf(delay, 0) {
		return nil
	}
	return &Echo{
		Weights: [3]float64{1, 0.7, 0.4},
		Offsets: [3]float64{0, -0.2 * delay, -0.4 * delay},
		Norm:    2,
	}
}

// PostFX is the final full-frame filter.
type PostFX struct {
	// Blur is a radius in pixels.
	Blur float64
	// Brightness multiplies every channel.
	Brightness float64
	// HueRotate is in degrees.
	HueRotate float64
	Contrast  float64
}

// PostFor derives the final pass from the master effects.
func PostFor(m *timeline.MasterFX) PostFX {
	fx := PostFX{
		Blur:       math.Max(0, m.Blur) + math.Max(0, m.Feedback),
		Brightness: 1,
		HueRotate:  m.ColorShift,
		Contrast:   1,
	}
	if m.FeedbackDrive {
		fx.Blur += 15
	}
	if m.Bloom > 0 {
		fx.Brightness += m.Bloom
	}
	if m.Sharpen > 0 {
		fx.Contrast += m.Sharpen * 0.1
	}
	return fx
}

// Identity reports whether the pass would leave the frame unchanged.
func (fx PostFX) Identity() bool {
	return fx.Blur <= 0 && fx.Brightness == 1 && fx.HueRotate == 0 && fx.Contrast == 1
}
