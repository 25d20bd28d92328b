// Package gfx is the OpenGL implementation of render.Device. Every draw
// lands in an offscreen framebuffer; Present copies it to the window.
package gfx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.2/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/glog"
	xdraw "golang.org/x/image/draw"

	"github.com/fraendk-lang/elastic-pulse-studio/render"
	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
)

const (
	imageUnit = 0
	videoUnit = 1

	// glContextLost is GL_CONTEXT_LOST, reported by GetError once a robust
	// context has been reset. The 4.1 core bindings do not define it.
	glContextLost = 0x0507
)

// glError converts the pending GL error, if any. A reset context wraps
// render.ErrDeviceLost.
func glError(what string) error {
	switch e := gl.GetError(); e {
	case gl.NO_ERROR:
		return nil
	case glContextLost:
		return fmt.Errorf("%s: %w", what, render.ErrDeviceLost)
	default:
		return fmt.Errorf("%s: gl error 0x%x", what, e)
	}
}

// layerProgram is the concrete render.Program of this device.
type layerProgram struct {
	*Program
	id      string
	variant render.Variant
}

// target is a framebuffer with a single color attachment.
type target struct {
	fbo uint32
	tex *Texture
}

func newTarget(w, h int) (*target, error) {
	t := &target{tex: newTexture()}
	t.tex.allocate(w, h)
	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.tex.texID, 0)
	if s := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); s != gl.FRAMEBUFFER_COMPLETE {
		t.delete()
		return nil, fmt.Errorf("framebuffer incomplete: 0x%x", s)
	}
	return t, nil
}

func (t *target) bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.Viewport(0, 0, int32(t.tex.w), int32(t.tex.h))
}

func (t *target) delete() {
	gl.DeleteFramebuffers(1, &t.fbo)
	t.tex.Delete()
}

// Device draws into an offscreen frame and presents it on a glfw window.
type Device struct {
	Window *Window

	w, h    int
	quad    *VertexArrayObject
	frame   *target
	scratch *target

	image *Program
	fill  *Program
	post  *Program

	bgTex    *Texture
	imgTex   *Texture
	videoTex *Texture
	rgba     *image.RGBA
}

// NewDevice initializes OpenGL on the window's context and allocates a
// frame matching its framebuffer size.
func NewDevice(win *Window) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, err
	}
	glog.Infof("OpenGL version %s", gl.GoStr(gl.GetString(gl.VERSION)))

	w, h := win.FramebufferSize()
	d := &Device{Window: win, w: w, h: h}
	if err := d.create(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) create() error {
	var err error
	if d.image, err = NewProgram(quadVertexShader, imageFragmentShader); err != nil {
		return fmt.Errorf("image program: %w", err)
	}
	if d.fill, err = NewProgram(quadVertexShader, fillFragmentShader); err != nil {
		return fmt.Errorf("fill program: %w", err)
	}
	if d.post, err = NewProgram(quadVertexShader, postFragmentShader); err != nil {
		return fmt.Errorf("post program: %w", err)
	}
	d.quad = newQuad()
	d.bgTex, d.imgTex, d.videoTex = newTexture(), newTexture(), newTexture()
	return d.allocate()
}

func (d *Device) allocate() error {
	if d.frame != nil {
		d.frame.delete()
		d.scratch.delete()
		d.frame, d.scratch = nil, nil
	}
	var err error
	if d.frame, err = newTarget(d.w, d.h); err != nil {
		return fmt.Errorf("%w: %v", render.ErrDeviceLost, err)
	}
	if d.scratch, err = newTarget(d.w, d.h); err != nil {
		d.frame.delete()
		d.frame = nil
		return fmt.Errorf("%w: %v", render.ErrDeviceLost, err)
	}
	return nil
}

func (d *Device) destroy() {
	for _, p := range []*Program{d.image, d.fill, d.post} {
		if p != nil {
			p.Delete()
		}
	}
	for _, t := range []*Texture{d.bgTex, d.imgTex, d.videoTex} {
		if t != nil {
			t.Delete()
		}
	}
	if d.quad != nil {
		d.quad.Delete()
	}
	if d.frame != nil {
		d.frame.delete()
		d.scratch.delete()
		d.frame, d.scratch = nil, nil
	}
}

// Recreate rebuilds every GL object after the context was lost or the frame
// could not be reallocated. Layer programs held by a ProgramCache are stale
// afterwards; render.Compositor.Recover invalidates them.
func (d *Device) Recreate() error {
	d.destroy()
	return d.create()
}

func (d *Device) Size() (int, int) { return d.w, d.h }

func (d *Device) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid size %dx%d", w, h)
	}
	if w == d.w && h == d.h {
		return nil
	}
	d.w, d.h = w, h
	return d.allocate()
}

func (d *Device) Compile(src render.Source) (render.Program, error) {
	p, err := NewProgram(quadVertexShader, WrapLayer(src.Text, src.Variant))
	if err != nil {
		if lost := glError("compiling " + src.ShaderID); errors.Is(lost, render.ErrDeviceLost) {
			return nil, lost
		}
		return nil, err
	}
	return &layerProgram{Program: p, id: src.ShaderID, variant: src.Variant}, nil
}

func (d *Device) Release(p render.Program) {
	if lp, ok := p.(*layerProgram); ok && lp != nil {
		lp.Delete()
	}
}

func (d *Device) Clear(c color.NRGBA) {
	if d.frame == nil {
		return
	}
	d.frame.bind()
	gl.ClearColor(float32(c.R)/255, float32(c.G)/255, float32(c.B)/255, float32(c.A)/255)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (d *Device) drawTexture(t *Texture, opacity float64) {
	d.frame.bind()
	d.image.Use()
	t.Bind(imageUnit)
	d.image.SetInt("tex", imageUnit)
	d.image.SetFloat("u_opacity", opacity)
	d.quad.Draw()
}

func (d *Device) Background(img *image.RGBA) error {
	if d.frame == nil {
		return render.ErrDeviceLost
	}
	if img == nil || img.Rect.Empty() {
		return errors.New("empty background")
	}
	d.bgTex.Upload(imageUnit, img)
	gl.Disable(gl.BLEND)
	d.drawTexture(d.bgTex, 1)
	return nil
}

// toRGBA returns img as *image.RGBA, converting into a reused buffer.
func (d *Device) toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	if d.rgba == nil || d.rgba.Rect.Size() != b.Size() {
		d.rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	xdraw.Draw(d.rgba, d.rgba.Rect, img, b.Min, xdraw.Src)
	return d.rgba
}

func (d *Device) DrawImage(img image.Image, opacity float64) error {
	if d.frame == nil {
		return render.ErrDeviceLost
	}
	if img == nil || img.Bounds().Empty() {
		return errors.New("empty image")
	}
	d.imgTex.Upload(imageUnit, d.toRGBA(img))
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	d.drawTexture(d.imgTex, opacity)
	return nil
}

func glFactor(f render.Factor) uint32 {
	switch f {
	case render.Zero:
		return gl.ZERO
	case render.One:
		return gl.ONE
	case render.SrcAlpha:
		return gl.SRC_ALPHA
	case render.DstColor:
		return gl.DST_COLOR
	case render.OneMinusSrcColor:
		return gl.ONE_MINUS_SRC_COLOR
	default:
		return gl.ONE_MINUS_SRC_ALPHA
	}
}

func (d *Device) Draw(l *render.Layer) error {
	p, ok := l.Program.(*layerProgram)
	if !ok || p == nil || p.ProgramID == 0 {
		return fmt.Errorf("%w: foreign program %T", render.ErrNoProgram, l.Program)
	}
	if l.Uniforms == nil {
		return errors.New("layer without uniforms")
	}
	if d.frame == nil {
		return render.ErrDeviceLost
	}

	d.frame.bind()
	p.Use()
	setUniforms(p.Program, l.Uniforms, d.w, d.h)
	if e := l.Echo; e != nil {
		p.SetVec3("u_echo_weights", e.Weights)
		p.SetVec3("u_echo_offsets", e.Offsets)
		p.SetFloat("u_echo_norm", e.Norm)
	} else {
		p.SetFloat("u_echo_norm", 0)
	}
	if p.variant == render.WithVideo && l.Video != nil && !l.Video.Bounds().Empty() {
		d.videoTex.Upload(videoUnit, d.toRGBA(l.Video))
		p.SetInt("u_video", videoUnit)
	}

	src, dst := render.BlendFactors(l.Blend)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(glFactor(src), glFactor(dst))
	d.quad.Draw()

	return glError("drawing " + p.id)
}

func setUniforms(p *Program, u *resolve.Uniforms, w, h int) {
	p.SetVec2("u_resolution", float64(w), float64(h))
	p.SetFloat("u_time", u.Time)
	p.SetFloat("u_frozen_time", u.FrozenTime)
	p.SetBool("u_freeze", u.Freeze)
	p.SetFloat("u_speed", u.Speed)
	p.SetFloat("u_intensity", u.Intensity)
	p.SetFloat("u_opacity", u.Opacity)
	p.SetFloat("u_audio_val", u.Audio)
	p.SetFloat("u_zoom", u.Zoom)
	p.SetFloat("u_kaleidoscope", u.Kaleidoscope)
	p.SetFloat("u_mirror_flip", u.Mirror)
	p.SetFloat("u_glitch_hit", u.Glitch)
	p.SetFloat("u_distort", u.Distort)
	p.SetFloat("u_hue_rotate", u.HueRotate)
	p.SetFloat("u_contrast", u.Contrast)
	p.SetFloat("u_saturation", u.Saturation)
	p.SetFloat("u_brightness", u.Brightness)
	p.SetFloat("u_tie_effect", u.TieEffect)
	p.SetFloat("u_feedback_delay", u.FeedbackDelay)
	p.SetFloat("u_particles", u.Particles)
	p.SetVec3("u_color", u.Color)
	p.SetBool("u_invert", u.Invert)
	p.SetBool("u_chroma_burst", u.ChromaBurst)
	p.SetBool("u_scanlines", u.Scanlines)
	p.SetBool("u_edge_detection", u.EdgeDetection)
	p.SetFloat("u_pixelate", u.Pixelate)
	p.SetFloat("u_noise", u.Noise)
	p.SetFloat("u_rgb_shift", u.RGBShift)
	p.SetFloat("u_posterize", u.Posterize)
	p.SetFloat("u_fisheye", u.Fisheye)
	p.SetFloat("u_twirl", u.Twirl)
	p.SetFloat("u_master_kaleidoscope", u.MasterKaleidoscope)
}

func (d *Device) Fill(c color.NRGBA) {
	if d.frame == nil {
		return
	}
	d.frame.bind()
	d.fill.Use()
	d.fill.SetVec4("u_fill", mgl32.Vec4{
		float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255,
	})
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	d.quad.Draw()
}

// PostProcess runs the separable blur horizontally into the scratch target,
// then vertically back into the frame with the color grade applied.
func (d *Device) PostProcess(fx render.PostFX) error {
	if d.frame == nil {
		return render.ErrDeviceLost
	}
	gl.Disable(gl.BLEND)
	d.post.Use()
	d.post.SetInt("tex", imageUnit)
	d.post.SetVec2("u_resolution", float64(d.w), float64(d.h))
	d.post.SetFloat("u_sigma", fx.Blur)
	d.post.SetFloat("u_brightness", fx.Brightness)
	d.post.SetFloat("u_contrast", fx.Contrast)
	d.post.SetMat3("u_hue", HueMatrix(fx.HueRotate))

	d.scratch.bind()
	d.frame.tex.Bind(imageUnit)
	d.post.SetVec2("u_direction", 1, 0)
	d.post.SetFloat("u_grade", 0)
	d.quad.Draw()

	d.frame.bind()
	d.scratch.tex.Bind(imageUnit)
	d.post.SetVec2("u_direction", 0, 1)
	d.post.SetFloat("u_grade", 1)
	d.quad.Draw()

	return glError("post process")
}

// Snapshot reads the frame back, top row first.
func (d *Device) Snapshot() (*image.RGBA, error) {
	if d.frame == nil {
		return nil, render.ErrDeviceLost
	}
	img := image.NewRGBA(image.Rect(0, 0, d.w, d.h))
	d.frame.bind()
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(d.w), int32(d.h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	if err := glError("read pixels"); err != nil {
		return nil, err
	}
	flipRows(img)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img, nil
}

func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

// Present scales the frame onto the window and swaps buffers.
func (d *Device) Present() {
	if d.frame == nil {
		return
	}
	fw, fh := d.Window.FramebufferSize()
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, d.frame.fbo)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BlitFramebuffer(0, 0, int32(d.w), int32(d.h), 0, 0, int32(fw), int32(fh),
		gl.COLOR_BUFFER_BIT, gl.LINEAR)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	d.Window.GlfwWindow.SwapBuffers()
}

// EventLoop runs frame and presents the result until the window closes or
// ctx is done. frame must not block. Calls glfw.Terminate when finished.
func (d *Device) EventLoop(ctx context.Context, frame func()) {

	// OpenGL requires that rendering functions be called from the main thread
	runtime.LockOSThread()
	defer d.Terminate()

	// The surface follows the window only when the window changes, so a
	// size set by an export stays in effect until then.
	var lastW, lastH int
	for !d.Window.GlfwWindow.ShouldClose() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if fw, fh := d.Window.FramebufferSize(); fw > 0 && fh > 0 && (fw != lastW || fh != lastH) {
			lastW, lastH = fw, fh
			if err := d.Resize(fw, fh); err != nil {
				glog.Errorf("resize: %v", err)
			}
		}

		frame()
		d.Present()
		glfw.PollEvents()
	}
}

// Terminate releases GL objects and ends the glfw session.
func (d *Device) Terminate() {
	d.destroy()
	glfw.Terminate()
}
