package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

var (
	gold      = color.NRGBA{255, 220, 94, 255}
	halfBlack = color.NRGBA{0, 0, 0, 128}
)

// Backgrounds paints the procedural background patterns. It reuses its
// image and rasterizer between frames.
type Backgrounds struct {
	img  *image.RGBA
	z    *vector.Rasterizer
	rnd  *rand.Rand
	cmap util.ColorMap
}

// NewBackgrounds creates a painter. The noise pattern is seeded so repeated
// renders of the same project match.
func NewBackgrounds() *Backgrounds {
	return &Backgrounds{
		rnd:  rand.New(rand.NewSource(1)),
		cmap: util.NewColorMap(),
	}
}

// Paint draws pattern b at the given clock and returns the image, which is
// only valid until the next call. It returns nil for NoBackground.
func (bg *Backgrounds) Paint(b timeline.Background, clock float64, w, h int) *image.RGBA {
	if b == timeline.NoBackground || w <= 0 || h <= 0 {
		return nil
	}
	if bg.img == nil || bg.img.Bounds().Dx() != w || bg.img.Bounds().Dy() != h {
		bg.img = image.NewRGBA(image.Rect(0, 0, w, h))
		bg.z = vector.NewRasterizer(w, h)
	}
	draw.Draw(bg.img, bg.img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	fw, fh := float64(w), float64(h)
	switch b {
	case timeline.Gradient:
		hue := math.Mod(clock*50, 360)
		bg.linear(identity, 0, 0, fw, fh, []stop{
			{0, colorful.Hsl(hue, 0.7, 0.4)},
			{1, colorful.Hsl(math.Mod(hue+60, 360), 0.7, 0.3)},
		})
	case timeline.NoiseField:
		bg.noise()
	case timeline.Grid:
		bg.grid(clock, fw, fh)
	case timeline.ParticleField:
		bg.particles(clock, fw, fh)
	case timeline.Waves:
		bg.waves(clock, fw, fh)
	case timeline.KenBurns1:
		bg.kenBurns1(clock, fw, fh)
	case timeline.KenBurns2:
		bg.kenBurns2(clock, fw, fh)
	case timeline.KenBurns3:
		bg.kenBurns3(clock, fw, fh)
	}
	return bg.img
}

func (bg *Backgrounds) noise() {
	pix := bg.img.Pix
	for i := 0; i < len(pix); i += 4 {
		v := uint8(bg.rnd.Float64() * 0.2 * 255)
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 255
	}
}

func (bg *Backgrounds) grid(clock, w, h float64) {
	const size = 50
	bg.fillRect(halfBlack)
	line := color.NRGBA{255, 255, 255, 51}
	off := math.Mod(clock*10, size)
	for x := -off; x < w; x += size {
		bg.line(identity, x, 0, x, h, 1, line)
	}
	for y := -off; y < h; y += size {
		bg.line(identity, 0, y, w, y, 1, line)
	}
}

func (bg *Backgrounds) particles(clock, w, h float64) {
	const n = 50
	bg.fillRect(halfBlack)
	for i := 0; i < n; i++ {
		fi := float64(i)
		x := math.Mod(w*0.5+math.Sin(clock+fi)*w*0.3+math.Mod(clock*20+fi*10, w), w)
		y := math.Mod(h*0.5+math.Cos(clock*0.7+fi)*h*0.3+math.Mod(clock*15+fi*7, h), h)
		r, g, b := bg.cmap.At(fi / n).RGB255()
		bg.circle(identity, x, y, 3+math.Sin(clock+fi)*2, color.NRGBA{r, g, b, 179})
	}
}

func (bg *Backgrounds) waves(clock, w, h float64) {
	bg.fillRect(halfBlack)
	c := color.NRGBA{gold.R, gold.G, gold.B, 128}
	for i := 0; i < 5; i++ {
		fi := float64(i)
		amp := 30 + fi*10
		freq := 0.01 + fi*0.005
		px, py := 0.0, h/2+math.Sin(clock*2+fi)*amp
		for x := 2.0; x < w; x += 2 {
			y := h/2 + math.Sin(x*freq+clock*2+fi)*amp
			bg.line(identity, px, py, x, y, 2, c)
			px, py = x, y
		}
	}
}

func (bg *Backgrounds) kenBurns1(clock, w, h float64) {
	k := math.Mod(clock, 10)
	m := zoomPan(w, h, 1+k*0.02, 0, k*w*0.05, k*h*0.03)
	bg.radial(m, w/2, h/2, w, []stop{
		{0, colorful.Hsl(math.Mod(clock*20, 360), 0.7, 0.3)},
		{1, colorful.Hsl(math.Mod(clock*20+60, 360), 0.7, 0.15)},
	})
	a := 0.2 + math.Sin(clock)*0.1
	bg.circle(m, w*0.3, h*0.3, 100+math.Sin(clock)*20, alpha(gold, a))
}

func (bg *Backgrounds) kenBurns2(clock, w, h float64) {
	m := zoomPan(w, h, 1.2+math.Sin(clock*0.5)*0.1, clock*0.1,
		math.Sin(clock*0.3)*w*0.2, math.Cos(clock*0.3)*h*0.2)
	base := clock * 30
	bg.linear(m, 0, 0, w, h, []stop{
		{0, colorful.Hsl(math.Mod(base, 360), 0.6, 0.25)},
		{0.5, colorful.Hsl(math.Mod(base+120, 360), 0.6, 0.15)},
		{1, colorful.Hsl(math.Mod(base+240, 360), 0.6, 0.25)},
	})
	c := alpha(gold, 0.3+math.Sin(clock*2)*0.1)
	for i := 0; i < 6; i++ {
		angle := math.Pi*2/6*float64(i) + clock
		bg.line(m, w/2, h/2, w/2+math.Cos(angle)*150, h/2+math.Sin(angle)*150, 3, c)
	}
}

func (bg *Backgrounds) kenBurns3(clock, w, h float64) {
	m := zoomPan(w, h, 1+math.Mod(clock, 8)*0.03, 0,
		math.Cos(clock*0.4)*w*0.15, math.Sin(clock*0.4)*h*0.15)
	hue := math.Mod(clock*15, 360)
	bg.radial(m, w*0.7, h*0.3, w*1.5, []stop{
		{0, colorful.Hsl(hue, 0.8, 0.35)},
		{1, colorful.Hsl(math.Mod(hue+180, 360), 0.8, 0.15)},
	})
	c := alpha(gold, 0.6)
	for i := 0; i < 30; i++ {
		fi := float64(i)
		angle := math.Pi*2/30*fi + clock
		r := 80 + math.Sin(clock*2+fi)*30
		bg.circle(m, w*0.7+math.Cos(angle)*r, h*0.3+math.Sin(angle)*r, 3+math.Sin(clock+fi)*2, c)
	}
}

func alpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(math.Max(0, math.Min(1, a)) * 255)
	return c
}

type stop struct {
	pos float64
	col colorful.Color
}

func sample(stops []stop, t float64) colorful.Color {
	if t <= stops[0].pos {
		return stops[0].col
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].pos {
			a, b := stops[i-1], stops[i]
			return a.col.BlendRgb(b.col, (t-a.pos)/(b.pos-a.pos))
		}
	}
	return stops[len(stops)-1].col
}

// linear fills the frame with a gradient from (x0,y0) to (x1,y1) given in
// the space that m maps onto the frame.
func (bg *Backgrounds) linear(m f64.Aff3, x0, y0, x1, y1 float64, stops []stop) {
	inv := invert(m)
	dx, dy := x1-x0, y1-y0
	l2 := dx*dx + dy*dy
	bg.shade(func(x, y float64) colorful.Color {
		ux, uy := apply(inv, x, y)
		return sample(stops, ((ux-x0)*dx+(uy-y0)*dy)/l2)
	})
}

func (bg *Backgrounds) radial(m f64.Aff3, cx, cy, r float64, stops []stop) {
	inv := invert(m)
	bg.shade(func(x, y float64) colorful.Color {
		ux, uy := apply(inv, x, y)
		return sample(stops, math.Hypot(ux-cx, uy-cy)/r)
	})
}

func (bg *Backgrounds) shade(f func(x, y float64) colorful.Color) {
	bounds := bg.img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := f(float64(x)+0.5, float64(y)+0.5).Clamped().RGB255()
			bg.img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
}

func (bg *Backgrounds) fillRect(c color.NRGBA) {
	draw.Draw(bg.img, bg.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Over)
}

func (bg *Backgrounds) fill(c color.NRGBA) {
	bg.z.Draw(bg.img, bg.img.Bounds(), image.NewUniform(c), image.Point{})
}

func (bg *Backgrounds) reset() {
	b := bg.img.Bounds()
	bg.z.Reset(b.Dx(), b.Dy())
}

func (bg *Backgrounds) circle(m f64.Aff3, cx, cy, r float64, c color.NRGBA) {
	if r <= 0 {
		return
	}
	const segs = 24
	bg.reset()
	for i := 0; i <= segs; i++ {
		a := 2 * math.Pi * float64(i) / segs
		x, y := apply(m, cx+math.Cos(a)*r, cy+math.Sin(a)*r)
		if i == 0 {
			bg.z.MoveTo(float32(x), float32(y))
		} else {
			bg.z.LineTo(float32(x), float32(y))
		}
	}
	bg.z.ClosePath()
	bg.fill(c)
}

// line strokes a segment as a quad of the given width.
func (bg *Backgrounds) line(m f64.Aff3, x0, y0, x1, y1, width float64, c color.NRGBA) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	pts := [4][2]float64{{x0 + nx, y0 + ny}, {x1 + nx, y1 + ny}, {x1 - nx, y1 - ny}, {x0 - nx, y0 - ny}}
	bg.reset()
	for i, p := range pts {
		x, y := apply(m, p[0], p[1])
		if i == 0 {
			bg.z.MoveTo(float32(x), float32(y))
		} else {
			bg.z.LineTo(float32(x), float32(y))
		}
	}
	bg.z.ClosePath()
	bg.fill(c)
}

var identity = f64.Aff3{1, 0, 0, 0, 1, 0}

// zoomPan scales and rotates about the frame centre after panning.
func zoomPan(w, h, scale, rot, panX, panY float64) f64.Aff3 {
	sin, cos := math.Sincos(rot)
	m := f64.Aff3{1, 0, w / 2, 0, 1, h / 2}
	m = mul(m, f64.Aff3{scale, 0, 0, 0, scale, 0})
	m = mul(m, f64.Aff3{cos, -sin, 0, sin, cos, 0})
	return mul(m, f64.Aff3{1, 0, -w/2 + panX, 0, 1, -h/2 + panY})
}

func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func invert(m f64.Aff3) f64.Aff3 {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 {
		return identity
	}
	a, b, d, e := m[4]/det, -m[1]/det, -m[3]/det, m[0]/det
	return f64.Aff3{a, b, -(a*m[2] + b*m[5]), d, e, -(d*m[2] + e*m[5])}
}

func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}
