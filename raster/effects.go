package raster

import (
	"math"

	"github.com/chewxy/math32"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
)

const pi32 = 3.14159

// layerFX is the float32 form of the uniforms used by the fixed effect chain
// around a program.
type layerFX struct {
	masterKaleido float32
	fisheye       float32
	twirl         float32
	pixelate      float32
	tie           float32
	distort       float32
	zoom          float32
	mirror        bool
	kaleido       float32
	glitch        bool

	particles float32
	audio     float32
	color     [3]float32

	contrast   float32
	brightness float32
	saturation float32
	hue        float64
	invert     bool
	chroma     bool
	noise      float32
	posterize  float32
	scanlines  bool
	edge       bool
	opacity    float32
}

func newLayerFX(u *resolve.Uniforms) *layerFX {
	return &layerFX{
		masterKaleido: float32(u.MasterKaleidoscope),
		fisheye:       float32(u.Fisheye),
		twirl:         float32(u.Twirl),
		pixelate:      float32(u.Pixelate),
		tie:           float32(u.TieEffect),
		distort:       float32(u.Distort),
		zoom:          float32(u.Zoom),
		mirror:        u.Mirror > 0.5,
		kaleido:       float32(u.Kaleidoscope),
		glitch:        u.Glitch > 0.5,

		particles: float32(u.Particles),
		audio:     float32(u.Audio),
		color:     [3]float32{float32(u.Color[0]), float32(u.Color[1]), float32(u.Color[2])},

		contrast:   float32(u.Contrast),
		brightness: float32(u.Brightness),
		saturation: float32(u.Saturation),
		hue:        u.HueRotate,
		invert:     u.Invert,
		chroma:     u.ChromaBurst,
		noise:      float32(u.Noise),
		posterize:  float32(u.Posterize),
		scanlines:  u.Scanlines,
		edge:       u.EdgeDetection,
		opacity:    float32(u.Opacity),
	}
}

func fract32(x float32) float32 { return x - math32.Floor(x) }

func mod32(x, y float32) float32 { return x - y*math32.Floor(x/y) }

func hash32(x, y float32) float32 {
	return fract32(math32.Sin(x*12.9898+y*78.233) * 43758.5453)
}

func smooth32(e0, e1, x float32) float32 {
	t := (x - e0) / (e1 - e0)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * t * (3 - 2*t)
}

func polar(x, y float32) (a, r float32) {
	return math32.Atan2(y, x), math32.Hypot(x, y)
}

func cartesian(a, r float32) (float32, float32) {
	s, c := math32.Sincos(a)
	return c * r, s * r
}

// warp applies the coordinate effects in order before the program runs.
func (fx *layerFX) warp(x, y, t float32) (float32, float32) {
	if fx.masterKaleido > 0 {
		a, r := polar(x, y)
		seg := math32.Floor(fx.masterKaleido) + 2
		a = mod32(a, pi32*2/seg)
		a = math32.Abs(a - pi32/seg)
		x, y = cartesian(a, r)
	}
	if fx.fisheye > 0 {
		r := math32.Hypot(x, y)
		f := 1 + fx.fisheye*r*r
		x, y = x*f, y*f
	}
	if fx.twirl > 0 {
		a, r := polar(x, y)
		x, y = cartesian(a+fx.twirl*(1-r), r)
	}
	if fx.pixelate > 0 {
		s := (1 + fx.pixelate*0.01) * 10
		x, y = math32.Floor(x*s)/s, math32.Floor(y*s)/s
	}
	if fx.tie > 0 {
		a, r := polar(x, y)
		x, y = cartesian(a+math32.Sin(r*10-t)*fx.tie, r)
	}
	if fx.distort > 0 {
		k := fx.distort * 0.05
		x, y = x+math32.Sin(y*8+t*2)*k, y+math32.Sin(x*8+t*2)*k
	}
	if fx.zoom > 0 {
		x, y = x/(1+fx.zoom), y/(1+fx.zoom)
	}
	if fx.mirror {
		x, y = math32.Abs(x), math32.Abs(y)
	}
	if fx.kaleido > 0 {
		a, r := polar(x, y)
		a = mod32(a, pi32*2/fx.kaleido)
		a = math32.Abs(a - pi32/fx.kaleido)
		x, y = cartesian(a, r)
	}
	if fx.glitch {
		x += math32.Sin(y*30+t*10) * 0.05
	}
	return x, y
}

// sparkle returns the particle overlay intensity at p.
func (fx *layerFX) sparkle(x, y, t float32) float32 {
	gx, gy := x*15, y*15
	ix, iy := math32.Floor(gx), math32.Floor(gy)
	var part float32
	for ox := float32(-1); ox <= 1; ox++ {
		for oy := float32(-1); oy <= 1; oy++ {
			nx, ny := ix+ox, iy+oy
			h := hash32(nx, ny)
			jx, jy := h-0.5, hash32(nx+123.45, ny+123.45)-0.5
			s := math32.Sin(t + h*10)
			d := math32.Hypot(gx-(nx+0.5+jx*s), gy-(ny+0.5+jy*s))
			part += smooth32(0.1+fx.audio*0.2, 0, d) * (0.5 + 0.5*math32.Sin(t*h))
		}
	}
	return part
}

// finish applies the particle overlay and colour effects to c and returns
// the fragment. fragX and fragY are window coordinates from the bottom left.
func (fx *layerFX) finish(c [4]float32, x, y, t, fragX, fragY float32) [4]float32 {
	if fx.particles > 0 {
		k := fx.sparkle(x, y, t) * fx.particles * 2.5
		for i := 0; i < 3; i++ {
			c[i] += fx.color[i] * k
		}
	}

	r, g, b := c[0], c[1], c[2]
	r = (r-0.5)*fx.contrast + 0.5 + fx.brightness
	g = (g-0.5)*fx.contrast + 0.5 + fx.brightness
	b = (b-0.5)*fx.contrast + 0.5 + fx.brightness
	gray := r*0.299 + g*0.587 + b*0.114
	r = gray + (r-gray)*fx.saturation
	g = gray + (g-gray)*fx.saturation
	b = gray + (b-gray)*fx.saturation
	if fx.hue > 0 {
		h, s, v := colorful.Color{R: float64(r), G: float64(g), B: float64(b)}.Hsv()
		rot := colorful.Hsv(math.Mod(h+fx.hue*360, 360), s, v)
		r, g, b = float32(rot.R), float32(rot.G), float32(rot.B)
	}
	if fx.invert {
		r, g, b = 1-r, 1-g, 1-b
	}
	if fx.chroma {
		r += 0.2
		b += 0.2
	}
	if fx.noise > 0 {
		n := (hash32(fragX+t, fragY+t) - 0.5) * fx.noise
		r, g, b = r+n, g+n, b+n
	}
	if fx.posterize > 0 {
		l := math32.Floor(fx.posterize) + 1
		r, g, b = math32.Floor(r*l)/l, math32.Floor(g*l)/l, math32.Floor(b*l)/l
	}
	if fx.scanlines {
		var s float32
		if mod32(fragY, 2) >= 0.5 {
			s = 1
		}
		k := 0.7 + s*0.3
		r, g, b = r*k, g*k, b*k
	}
	if fx.edge {
		e := (math32.Abs(r-g) + math32.Abs(g-b) + math32.Abs(b-r)) * 3
		r, g, b = e, e, e
	}
	return [4]float32{r, g, b, c[3] * fx.opacity}
}
