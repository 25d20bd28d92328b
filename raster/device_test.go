package raster

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

func flat() *resolve.Uniforms {
	return &resolve.Uniforms{Time: 1, Contrast: 1, Saturation: 1, Opacity: 1}
}

func mustCompile(t *testing.T, d *Device, text string) render.Program {
	t.Helper()
	p, err := d.Compile(render.Source{ShaderID: "s", Text: text})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 0.01
}

func pixelIs(t *testing.T, d *Device, x, y int, want [4]float32) {
	t.Helper()
	got := d.Pixel(x, y)
	for k := range got {
		if !approx(got[k], want[k]) {
			t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
		}
	}
}

func TestCompile(t *testing.T) {
	d, err := New(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	good := []string{
		"rgb(1, 0, 0)",
		"0.5",
		"let k = sin(time * speed + x * 10); hsv(k, 1, intensity)",
		"mix(rgb(0, 0, 0), rgba(1, 1, 1, 1), smoothstep(0, 1, length(x, y)))",
	}
	for _, src := range good {
		if _, err := d.Compile(render.Source{Text: src}); err != nil {
			t.Errorf("%q: %v", src, err)
		}
	}
	bad := []string{
		"rgb(1, 0",
		"nosuchname + 1",
		`"red"`,
		"video(u, v)",
	}
	for _, src := range bad {
		if _, err := d.Compile(render.Source{Text: src}); err == nil {
			t.Errorf("%q: expected an error", src)
		}
	}
	if _, err := d.Compile(render.Source{Text: "video(u, v)", Variant: render.WithVideo}); err != nil {
		t.Fatal("video variant should provide video():", err)
	}
}

func TestDrawBlendModes(t *testing.T) {
	d, _ := New(2, 2)
	red := mustCompile(t, d, "rgb(1, 0, 0)")
	gray := mustCompile(t, d, "rgb(0.5, 0.5, 0.5)")

	d.Clear(color.NRGBA{0, 0, 0, 255})
	if err := d.Draw(&render.Layer{Program: red, Uniforms: flat()}); err != nil {
		t.Fatal(err)
	}
	pixelIs(t, d, 0, 0, [4]float32{1, 0, 0, 1})

	u := flat()
	u.Opacity = 0.5
	d.Clear(color.NRGBA{0, 0, 0, 255})
	d.Draw(&render.Layer{Program: red, Uniforms: u})
	pixelIs(t, d, 1, 1, [4]float32{0.5, 0, 0, 0.75})

	d.Clear(color.NRGBA{0, 0, 255, 255})
	d.Draw(&render.Layer{Program: red, Uniforms: flat(), Blend: timeline.Add})
	pixelIs(t, d, 0, 1, [4]float32{1, 0, 1, 1})

	d.Clear(color.NRGBA{255, 128, 0, 255})
	d.Draw(&render.Layer{Program: gray, Uniforms: flat(), Blend: timeline.Multiply})
	pixelIs(t, d, 1, 0, [4]float32{0.5, 0.25, 0, 1})

	d.Clear(color.NRGBA{0, 0, 0, 255})
	d.Draw(&render.Layer{Program: red, Uniforms: u, Blend: timeline.Overlay})
	pixelIs(t, d, 1, 1, [4]float32{0.5, 0, 0, 0.75})
}

func TestEcho(t *testing.T) {
	d, _ := New(1, 1)
	p := mustCompile(t, d, "rgb(time, 0, 0)")
	d.Clear(color.NRGBA{0, 0, 0, 255})
	d.Draw(&render.Layer{Program: p, Uniforms: flat(), Echo: render.EchoFor(1)})
	// (1·1 + 0.8·0.7 + 0.6·0.4) / 2
	pixelIs(t, d, 0, 0, [4]float32{0.9, 0, 0, 1})
}

func TestFailingLayerLeavesFrame(t *testing.T) {
	d, _ := New(4, 2)
	p := mustCompile(t, d, `x < 0 ? "oops" : rgb(1, 1, 1)`)
	d.Clear(color.NRGBA{0, 0, 255, 255})
	if err := d.Draw(&render.Layer{Program: p, Uniforms: flat()}); err == nil {
		t.Fatal("expected a runtime error")
	}
	for x := 0; x < 4; x++ {
		pixelIs(t, d, x, 0, [4]float32{0, 0, 1, 1})
	}
	if err := d.Draw(&render.Layer{Program: "foreign", Uniforms: flat()}); err == nil {
		t.Fatal("expected an error for a foreign program")
	}
}

func TestCoordinates(t *testing.T) {
	d, _ := New(2, 2)
	p := mustCompile(t, d, "rgb(u, v, 0)")
	d.Clear(color.NRGBA{0, 0, 0, 255})
	d.Draw(&render.Layer{Program: p, Uniforms: flat()})
	// top left pixel is at u = 0.25, v = 0.75
	pixelIs(t, d, 0, 0, [4]float32{0.25, 0.75, 0, 1})
	pixelIs(t, d, 1, 1, [4]float32{0.75, 0.25, 0, 1})
}

func TestPostEffects(t *testing.T) {
	d, _ := New(2, 2)
	p := mustCompile(t, d, "rgb(0.2, 0.4, 0.6)")
	u := flat()
	u.Invert = true
	d.Clear(color.NRGBA{0, 0, 0, 255})
	d.Draw(&render.Layer{Program: p, Uniforms: u})
	pixelIs(t, d, 0, 0, [4]float32{0.8, 0.6, 0.4, 1})

	u = flat()
	u.Saturation = 0
	d.Draw(&render.Layer{Program: p, Uniforms: u})
	g := float32(0.2*0.299 + 0.4*0.587 + 0.6*0.114)
	pixelIs(t, d, 1, 1, [4]float32{g, g, g, 1})

	u = flat()
	u.EdgeDetection = true
	d.Draw(&render.Layer{Program: p, Uniforms: u})
	pixelIs(t, d, 0, 1, [4]float32{1, 1, 1, 1})
}

func TestFinalPass(t *testing.T) {
	d, _ := New(3, 3)
	d.Clear(color.NRGBA{64, 64, 64, 255})
	if err := d.PostProcess(render.PostFX{Brightness: 2, Contrast: 1}); err != nil {
		t.Fatal(err)
	}
	pixelIs(t, d, 1, 1, [4]float32{0.5, 0.5, 0.5, 1})

	d.Clear(color.NRGBA{255, 0, 0, 255})
	d.PostProcess(render.PostFX{Brightness: 1, HueRotate: 120, Contrast: 1})
	pixelIs(t, d, 2, 2, [4]float32{0, 1, 0, 1})
}

func TestImagesAndSnapshot(t *testing.T) {
	d, _ := New(4, 4)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+1], img.Pix[i+3] = 255, 255
	}
	d.Clear(color.NRGBA{0, 0, 0, 255})
	if err := d.DrawImage(img, 0.5); err != nil {
		t.Fatal(err)
	}
	pixelIs(t, d, 2, 2, [4]float32{0, 0.5, 0, 0.75})

	if err := d.Background(img); err != nil {
		t.Fatal(err)
	}
	pixelIs(t, d, 3, 0, [4]float32{0, 1, 0, 1})

	d.Fill(color.NRGBA{255, 255, 255, 128})
	snap, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Bounds().Dx() != 4 || snap.Pix[3] != 255 || snap.Pix[0] < 126 || snap.Pix[0] > 130 {
		t.Fatalf("unexpected snapshot pixel %v", snap.Pix[:4])
	}

	if err := d.Resize(0, 3); err == nil {
		t.Fatal("expected an error for an empty surface")
	}
}

func TestCompositorOnRaster(t *testing.T) {
	d, _ := New(8, 6)
	comp := render.NewCompositor(d, nil)
	f := &render.Frame{
		Time:    2,
		Master:  timeline.DefaultMaster(),
		Shaders: []timeline.Shader{{ID: "s", Source: "rgb(r, g, b)"}},
	}
	f.Master.Bloom = 0
	c := timeline.NewClip("s", 0)
	c.Params[timeline.Color] = 0
	f.Clips = []timeline.Clip{c}

	rep := comp.Render(f)
	if len(rep.Drawn) != 1 {
		t.Fatalf("report %+v", rep)
	}
	pixelIs(t, d, 4, 3, [4]float32{1, 0, 0, 1})
}
