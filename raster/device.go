// Package raster is a software implementation of render.Device. Layer
// programs are small expressions evaluated per pixel, wrapped in the same
// effect chain and blend equations as the GL device, so projects can be
// rendered headless.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/expr-lang/expr/vm"
	"github.com/golang/glog"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/phrozen/blend"
	xdraw "golang.org/x/image/draw"

	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Device renders into a float RGBA buffer, top row first.
type Device struct {
	w, h  int
	buf   []float32
	layer []float32
	tmp   *image.RGBA
}

var _ render.Device = (*Device)(nil)

// New creates a device of the given size.
func New(w, h int) (*Device, error) {
	d := &Device{}
	if err := d.Resize(w, h); err != nil {
		return nil, err
	}
	return d, nil
}

// Size implements render.Device.
func (d *Device) Size() (int, int) { return d.w, d.h }

// Resize implements render.Device. The frame is cleared.
func (d *Device) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", w, h)
	}
	d.w, d.h = w, h
	d.buf = make([]float32, w*h*4)
	d.layer = make([]float32, w*h*4)
	d.tmp = image.NewRGBA(image.Rect(0, 0, w, h))
	return nil
}

// Compile implements render.Device.
func (d *Device) Compile(src render.Source) (render.Program, error) {
	return compile(src)
}

// Release implements render.Device. Programs hold no device resources.
func (d *Device) Release(render.Program) {}

// Clear implements render.Device.
func (d *Device) Clear(c color.NRGBA) {
	v := [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255}
	for i := 0; i < len(d.buf); i += 4 {
		copy(d.buf[i:i+4], v[:])
	}
}

// scaled draws img stretched over the surface into d.tmp.
func (d *Device) scaled(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect == d.tmp.Rect {
		return rgba
	}
	xdraw.ApproxBiLinear.Scale(d.tmp, d.tmp.Rect, img, img.Bounds(), xdraw.Src, nil)
	return d.tmp
}

// Background implements render.Device.
func (d *Device) Background(img *image.RGBA) error {
	if img == nil {
		return errors.New("nil background")
	}
	src := d.scaled(img)
	for i := 0; i < len(d.buf); i += 4 {
		a := float32(src.Pix[i+3]) / 255
		d.buf[i+3] = a
		for k := 0; k < 3; k++ {
			if a > 0 {
				d.buf[i+k] = float32(src.Pix[i+k]) / 255 / a
			} else {
				d.buf[i+k] = 0
			}
		}
	}
	return nil
}

// DrawImage implements render.Device.
func (d *Device) DrawImage(img image.Image, opacity float64) error {
	if img == nil || img.Bounds().Empty() {
		return errors.New("empty image")
	}
	src := d.scaled(img)
	o := float32(opacity)
	for i := 0; i < len(d.buf); i += 4 {
		a := float32(src.Pix[i+3]) / 255
		if a == 0 {
			continue
		}
		var s [4]float32
		for k := 0; k < 3; k++ {
			s[k] = float32(src.Pix[i+k]) / 255 / a
		}
		s[3] = a * o
		blendPixel(d.buf[i:i+4], s, render.SrcAlpha, render.OneMinusSrcAlpha)
	}
	return nil
}

// Fill implements render.Device.
func (d *Device) Fill(c color.NRGBA) {
	s := [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255}
	for i := 0; i < len(d.buf); i += 4 {
		blendPixel(d.buf[i:i+4], s, render.SrcAlpha, render.OneMinusSrcAlpha)
	}
}

// Draw implements render.Device. The layer is evaluated completely before it
// is blended, so a failing program leaves the frame untouched.
func (d *Device) Draw(l *render.Layer) error {
	p, ok := l.Program.(*program)
	if !ok || p == nil {
		return fmt.Errorf("%w: foreign program %T", render.ErrNoProgram, l.Program)
	}
	if l.Uniforms == nil {
		return errors.New("layer without uniforms")
	}
	p.video = l.Video
	defer func() { p.video = nil }()

	if err := d.evaluate(p, l); err != nil {
		return fmt.Errorf("running %s: %w", p.id, err)
	}
	if l.Blend == timeline.Screen {
		d.screen()
		return nil
	}
	src, dst := render.BlendFactors(l.Blend)
	for i := 0; i < len(d.buf); i += 4 {
		var s [4]float32
		copy(s[:], d.layer[i:i+4])
		blendPixel(d.buf[i:i+4], s, src, dst)
	}
	return nil
}

func (d *Device) evaluate(p *program, l *render.Layer) error {
	u := l.Uniforms
	fx := newLayerFX(u)
	t := u.Time
	if u.Freeze {
		t = u.FrozenTime
	}
	w, h := float32(d.w), float32(d.h)

	workers := runtime.GOMAXPROCS(0)
	if workers > d.h {
		workers = d.h
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var m vm.VM
			env := Env{
				Width: float64(d.w), Height: float64(d.h),
				Local: u.LocalTime, Speed: u.Speed, Intensity: u.Intensity,
				Audio: u.Audio, Zoom: u.Zoom,
				R: u.Color[0], G: u.Color[1], B: u.Color[2],
				Pi: math.Pi,
			}
			for row := n; row < d.h; row += workers {
				fragY := float32(d.h-1-row) + 0.5
				for col := 0; col < d.w; col++ {
					fragX := float32(col) + 0.5
					x, y := (fragX-0.5*w)/h, (fragY-0.5*h)/h
					x, y = fx.warp(x, y, float32(t))
					env.X, env.Y = float64(x), float64(y)
					env.U, env.V = float64(fragX/w), float64(fragY/h)
					env.FragX, env.FragY = float64(fragX), float64(fragY)

					c, err := shade(&m, p, &env, t, l.Echo)
					if err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
						return
					}
					out := fx.finish(c, x, y, float32(t), fragX, fragY)
					i := (row*d.w + col) * 4
					for k := 0; k < 4; k++ {
						d.layer[i+k] = clamp32(out[k])
					}
				}
			}
		}(n)
	}
	wg.Wait()
	return firstErr
}

// shade runs the program once, or once per echo tap with shifted time.
func shade(m *vm.VM, p *program, env *Env, t float64, echo *render.Echo) ([4]float32, error) {
	if echo == nil {
		env.Time = t
		return run(m, p, env)
	}
	var sum [4]float32
	for i, w := range echo.Weights {
		env.Time = t + echo.Offsets[i]
		c, err := run(m, p, env)
		if err != nil {
			return sum, err
		}
		for k := range sum {
			sum[k] += c[k] * float32(w)
		}
	}
	env.Time = t
	for k := range sum {
		sum[k] /= float32(echo.Norm)
	}
	return sum, nil
}

func run(m *vm.VM, p *program, env *Env) ([4]float32, error) {
	out, err := m.Run(p.code, *env)
	if err != nil {
		return [4]float32{}, err
	}
	c, err := toColor(out)
	if err != nil {
		return [4]float32{}, err
	}
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}, nil
}

func clamp32(x float32) float32 {
	if x < 0 || math32.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func factor(f render.Factor, s, d []float32, k int) float32 {
	switch f {
	case render.One:
		return 1
	case render.SrcAlpha:
		return s[3]
	case render.OneMinusSrcAlpha:
		return 1 - s[3]
	case render.DstColor:
		return d[k]
	case render.OneMinusSrcColor:
		return 1 - s[k]
	}
	return 0
}

// blendPixel applies dst = src·sf + dst·df on every channel, like glBlendFunc.
func blendPixel(dst []float32, src [4]float32, sf, df render.Factor) {
	var out [4]float32
	for k := 0; k < 4; k++ {
		out[k] = clamp32(src[k]*factor(sf, src[:], dst, k) + dst[k]*factor(df, src[:], dst, k))
	}
	copy(dst, out[:])
}

// screen composites the evaluated layer with a screen blend. Colour ignores
// the layer alpha, as the ONE, ONE_MINUS_SRC_COLOR equation does.
func (d *Device) screen() {
	base := d.toRGBA(d.buf)
	top := d.toRGBA(d.layer)
	blend.BlendImage(base, top, blend.Screen)
	for i := 0; i < len(d.buf); i += 4 {
		sa := d.layer[i+3]
		for k := 0; k < 3; k++ {
			d.buf[i+k] = float32(base.Pix[i+k]) / 255
		}
		d.buf[i+3] = clamp32(sa + d.buf[i+3]*(1-sa))
	}
}

// toRGBA converts a buffer to an opaque 8-bit image.
func (d *Device) toRGBA(buf []float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.w, d.h))
	for i := 0; i < len(buf); i += 4 {
		img.Pix[i] = uint8(clamp32(buf[i])*255 + 0.5)
		img.Pix[i+1] = uint8(clamp32(buf[i+1])*255 + 0.5)
		img.Pix[i+2] = uint8(clamp32(buf[i+2])*255 + 0.5)
		img.Pix[i+3] = 255
	}
	return img
}

// PostProcess implements render.Device: blur, brightness, hue rotation and
// contrast over the whole frame.
func (d *Device) PostProcess(fx render.PostFX) error {
	var img image.Image = d.toRGBA(d.buf)
	if fx.Blur > 0 {
		img = imaging.Blur(img, fx.Blur)
	}
	if fx.Brightness != 1 || fx.HueRotate != 0 {
		b := fx.Brightness
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			col := colorful.Color{R: float64(c.R) / 255 * b, G: float64(c.G) / 255 * b, B: float64(c.B) / 255 * b}
			if fx.HueRotate != 0 {
				h, s, v := col.Hsv()
				col = colorful.Hsv(mod360(h+fx.HueRotate), s, v)
			}
			r, g, bl := col.Clamped().RGB255()
			return color.NRGBA{r, g, bl, c.A}
		})
	}
	if fx.Contrast != 1 {
		pct := (fx.Contrast - 1) * 100
		if pct > 100 {
			glog.V(2).Infof("contrast %.2f clamped to 2", fx.Contrast)
			pct = 100
		}
		img = imaging.AdjustContrast(img, pct)
	}

	nrgba := imaging.Clone(img)
	for i := 0; i < len(d.buf); i += 4 {
		for k := 0; k < 3; k++ {
			d.buf[i+k] = float32(nrgba.Pix[i+k]) / 255
		}
	}
	return nil
}

func mod360(x float64) float64 {
	x = math.Mod(x, 360)
	if x < 0 {
		x += 360
	}
	return x
}

// Snapshot implements render.Device. The alpha channel is dropped.
func (d *Device) Snapshot() (*image.RGBA, error) {
	return d.toRGBA(d.buf), nil
}

// Pixel returns the straight RGBA value at (x, y), origin top left.
func (d *Device) Pixel(x, y int) [4]float32 {
	var p [4]float32
	if x < 0 || y < 0 || x >= d.w || y >= d.h {
		return p
	}
	copy(p[:], d.buf[(y*d.w+x)*4:])
	return p
}
