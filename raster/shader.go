package raster

import (
	"fmt"
	"image"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/fraendk-lang/elastic-pulse-studio/render"
)

// Color is the value a layer program yields for one pixel. Programs may also
// yield a plain number, which is read as opaque grey.
type Color struct {
	R, G, B, A float64
}

// Env holds the names visible to a layer program. Coordinates follow the GL
// convention: p is centred and scaled by height, uv runs from the bottom left.
type Env struct {
	X      float64 `expr:"x"`
	Y      float64 `expr:"y"`
	U      float64 `expr:"u"`
	V      float64 `expr:"v"`
	FragX  float64 `expr:"fx"`
	FragY  float64 `expr:"fy"`
	Width  float64 `expr:"width"`
	Height float64 `expr:"height"`

	Time      float64 `expr:"time"`
	Local     float64 `expr:"local"`
	Speed     float64 `expr:"speed"`
	Intensity float64 `expr:"intensity"`
	Audio     float64 `expr:"audio"`
	Zoom      float64 `expr:"zoom"`
	// Clip colour
	R float64 `expr:"r"`
	G float64 `expr:"g"`
	B float64 `expr:"b"`

	Pi float64 `expr:"pi"`
}

type program struct {
	id      string
	variant render.Variant
	code    *vm.Program

	// video is read by the video() function while a layer is drawn.
	video image.Image
}

func num(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func nums(name string, params []interface{}, n ...int) ([]float64, error) {
	ok := false
	for _, c := range n {
		ok = ok || len(params) == c
	}
	if !ok {
		return nil, fmt.Errorf("%s: wrong number of arguments (%d)", name, len(params))
	}
	out := make([]float64, len(params))
	for i, p := range params {
		v, err := num(p)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func unary(name string, f func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...interface{}) (interface{}, error) {
		a, err := nums(name, params, 1)
		if err != nil {
			return nil, err
		}
		return f(a[0]), nil
	})
}

func binary(name string, f func(a, b float64) float64) expr.Option {
	return expr.Function(name, func(params ...interface{}) (interface{}, error) {
		a, err := nums(name, params, 2)
		if err != nil {
			return nil, err
		}
		return f(a[0], a[1]), nil
	})
}

func fract(x float64) float64 { return x - math.Floor(x) }

func glmod(x, y float64) float64 { return x - y*math.Floor(x/y) }

func clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }

func smoothstep(e0, e1, x float64) float64 {
	t := clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

func hash(x, y float64) float64 {
	return fract(math.Sin(x*12.9898+y*78.233) * 43758.5453)
}

func toColor(v interface{}) (Color, error) {
	if c, ok := v.(Color); ok {
		return c, nil
	}
	f, err := num(v)
	if err != nil {
		return Color{}, fmt.Errorf("program must yield a colour or a number, got %T", v)
	}
	return Color{f, f, f, 1}, nil
}

var library = []expr.Option{
	unary("sin", math.Sin),
	unary("cos", math.Cos),
	unary("tan", math.Tan),
	unary("sqrt", math.Sqrt),
	unary("exp", math.Exp),
	unary("fract", fract),
	unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	}),
	binary("pow", math.Pow),
	binary("mod", glmod),
	binary("step", func(edge, x float64) float64 {
		if x < edge {
			return 0
		}
		return 1
	}),
	binary("hash", hash),
	binary("length", math.Hypot),
	expr.Function("atan", func(params ...interface{}) (interface{}, error) {
		a, err := nums("atan", params, 1, 2)
		if err != nil {
			return nil, err
		}
		if len(a) == 1 {
			return math.Atan(a[0]), nil
		}
		return math.Atan2(a[0], a[1]), nil
	}),
	expr.Function("clamp", func(params ...interface{}) (interface{}, error) {
		a, err := nums("clamp", params, 3)
		if err != nil {
			return nil, err
		}
		return clamp(a[0], a[1], a[2]), nil
	}),
	expr.Function("smoothstep", func(params ...interface{}) (interface{}, error) {
		a, err := nums("smoothstep", params, 3)
		if err != nil {
			return nil, err
		}
		return smoothstep(a[0], a[1], a[2]), nil
	}),
	expr.Function("mix", func(params ...interface{}) (interface{}, error) {
		if len(params) != 3 {
			return nil, fmt.Errorf("mix: wrong number of arguments (%d)", len(params))
		}
		t, err := num(params[2])
		if err != nil {
			return nil, fmt.Errorf("mix: %w", err)
		}
		_, ca := params[0].(Color)
		_, cb := params[1].(Color)
		if ca || cb {
			a, err := toColor(params[0])
			if err != nil {
				return nil, err
			}
			b, err := toColor(params[1])
			if err != nil {
				return nil, err
			}
			return Color{
				a.R + (b.R-a.R)*t,
				a.G + (b.G-a.G)*t,
				a.B + (b.B-a.B)*t,
				a.A + (b.A-a.A)*t,
			}, nil
		}
		a, err := nums("mix", params, 3)
		if err != nil {
			return nil, err
		}
		return a[0] + (a[1]-a[0])*t, nil
	}),
	expr.Function("rgb", func(params ...interface{}) (interface{}, error) {
		a, err := nums("rgb", params, 3)
		if err != nil {
			return nil, err
		}
		return Color{a[0], a[1], a[2], 1}, nil
	}),
	expr.Function("rgba", func(params ...interface{}) (interface{}, error) {
		a, err := nums("rgba", params, 4)
		if err != nil {
			return nil, err
		}
		return Color{a[0], a[1], a[2], a[3]}, nil
	}),
	expr.Function("hsv", func(params ...interface{}) (interface{}, error) {
		a, err := nums("hsv", params, 3)
		if err != nil {
			return nil, err
		}
		c := colorful.Hsv(fract(a[0])*360, clamp(a[1], 0, 1), a[2])
		return Color{c.R, c.G, c.B, 1}, nil
	}),
}

// compile builds a layer program. The source is a single expression, with
// optional let bindings, that yields the colour of the pixel. The video
// variant adds video(u, v) to sample the clip's current frame.
func compile(src render.Source) (*program, error) {
	p := &program{id: src.ShaderID, variant: src.Variant}
	opts := append([]expr.Option{expr.Env(Env{})}, library...)
	if src.Variant == render.WithVideo {
		opts = append(opts, expr.Function("video", p.sampleVideo))
	}
	code, err := expr.Compile(src.Text, opts...)
	if err != nil {
		return nil, err
	}
	p.code = code

	var m vm.VM
	out, err := m.Run(code, Env{Width: 1, Height: 1, Speed: 1, Intensity: 1, Pi: math.Pi})
	if err != nil {
		return nil, fmt.Errorf("evaluating program: %w", err)
	}
	if _, err := toColor(out); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *program) sampleVideo(params ...interface{}) (interface{}, error) {
	a, err := nums("video", params, 2)
	if err != nil {
		return nil, err
	}
	img := p.video
	if img == nil {
		return Color{}, nil
	}
	b := img.Bounds()
	x := b.Min.X + int(clamp(a[0], 0, 0.9999)*float64(b.Dx()))
	y := b.Min.Y + int(clamp(1-a[1], 0, 0.9999)*float64(b.Dy()))
	r, g, bl, al := img.At(x, y).RGBA()
	if al == 0 {
		return Color{}, nil
	}
	fa := float64(al)
	return Color{float64(r) / fa, float64(g) / fa, float64(bl) / fa, fa / 0xffff}, nil
}
