package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Layer errors reported in Report.Skipped.
var (
	ErrNoShader = errors.New("shader not in palette")
	ErrNoVideo  = errors.New("video unavailable")
)

// StrobeRate is the number of strobe windows per second of clock; every
// other window flashes.
const StrobeRate = 25

// Frame is the immutable input of one Render call.
type Frame struct {
	// Time is the transport position in seconds.
	Time float64
	// Clock is the free running render clock in seconds.
	Clock    float64
	BPM      float64
	Features features.Vector
	Master   timeline.MasterFX
	Shaders  []timeline.Shader
	Clips    []timeline.Clip
	Mutes    [timeline.NumTracks]bool
	Solos    [timeline.NumTracks]bool
}

// Idle reports whether the frame may be rendered at a reduced rate: no clips
// exist at all and nothing animates the whole frame.
func (f *Frame) Idle() bool {
	return len(f.Clips) == 0 && !f.Master.Strobe && !f.Master.Freeze
}

// Skip records a layer that was not drawn.
type Skip struct {
	ClipID string
	Err    error
}

// Report describes what a Render call did.
type Report struct {
	Background timeline.Background
	Blackout   bool
	Strobe     bool
	// Drawn lists the ids of drawn clips in draw order.
	Drawn   []string
	Skipped []Skip
	PostFX  PostFX
	// DeviceLost is set when the device lost its context during this frame
	// or could not be recovered before it.
	DeviceLost bool
}

// Compositor draws frames onto a Device.
type Compositor struct {
	dev    Device
	cache  *ProgramCache
	videos VideoProvider
	bg     *Backgrounds
	lost   bool
}

// NewCompositor creates a compositor for dev. videos may be nil if no clip
// references a video.
func NewCompositor(dev Device, videos VideoProvider) *Compositor {
	return &Compositor{
		dev:    dev,
		cache:  NewProgramCache(dev),
		videos: videos,
		bg:     NewBackgrounds(),
	}
}

// Device returns the drawing device.
func (c *Compositor) Device() Device { return c.dev }

// Cache returns the shader program cache.
func (c *Compositor) Cache() *ProgramCache { return c.cache }

// TrackAudible reports whether a track is drawn. A soloed track always is;
// with any solo engaged every other track is silent; otherwise mute decides.
func TrackAudible(mutes, solos *[timeline.NumTracks]bool, track int) bool {
	if track < 0 || track >= timeline.NumTracks {
		return false
	}
	for _, s := range solos {
		if s {
			return solos[track]
		}
	}
	return !mutes[track]
}

// StrobeOn reports whether the strobe flashes at the given clock.
func StrobeOn(clock float64) bool {
	return int64(math.Floor(clock*StrobeRate))%2 == 0
}

// Recover rebuilds the device, when it supports that, and invalidates the
// program cache so every shader is recompiled on its next use.
func (c *Compositor) Recover() error {
	if r, ok := c.dev.(Recreator); ok {
		if err := r.Recreate(); err != nil {
			return fmt.Errorf("recreating device: %w", err)
		}
	}
	c.cache.Invalidate()
	c.lost = false
	glog.Warningf("device recovered, shader cache generation %d", c.cache.Generation())
	return nil
}

func (c *Compositor) checkLost(err error) {
	if err != nil && errors.Is(err, ErrDeviceLost) {
		c.lost = true
	}
}

// Render draws one frame: background, tracks 0 to 7, strobe, final pass.
// A frame following a lost device context first recovers the device; if
// that fails nothing is drawn and the next frame tries again.
func (c *Compositor) Render(f *Frame) (rep Report) {
	rep = Report{Background: f.Master.Background}
	if c.lost {
		if err := c.Recover(); err != nil {
			glog.Errorf("device lost: %v", err)
			rep.DeviceLost = true
			return rep
		}
	}
	defer func() { rep.DeviceLost = c.lost }()
	w, h := c.dev.Size()

	hasBackground := false
	if img := c.bg.Paint(f.Master.Background, f.Clock, w, h); img != nil {
		if err := c.dev.Background(img); err != nil {
			c.checkLost(err)
			glog.Warningf("background %v: %v", f.Master.Background, err)
			c.dev.Clear(Neutral)
		} else {
			hasBackground = true
		}
	} else {
		c.dev.Clear(Neutral)
	}

	if f.Master.Blackout {
		rep.Blackout = true
		return rep
	}

	in := &resolve.Input{
		Time:     f.Time,
		Clock:    f.Clock,
		BPM:      f.BPM,
		Features: f.Features,
		Master:   &f.Master,
	}
	for track := 0; track < timeline.NumTracks; track++ {
		if !TrackAudible(&f.Mutes, &f.Solos, track) {
			continue
		}
		for i := range f.Clips {
			clip := &f.Clips[i]
			if clip.Track != track || !clip.ActiveAt(f.Time) {
				continue
			}
			if err := c.guard(func() error { return c.drawClip(f, clip, in) }); err != nil {
				c.checkLost(err)
				glog.V(1).Infof("skipping clip %s: %v", clip.ID, err)
				rep.Skipped = append(rep.Skipped, Skip{clip.ID, err})
				continue
			}
			rep.Drawn = append(rep.Drawn, clip.ID)
		}
	}

	if f.Master.Strobe && StrobeOn(f.Clock) {
		rep.Strobe = true
		white := color.NRGBA{255, 255, 255, 255}
		if hasBackground {
			white.A = 128
		}
		c.dev.Fill(white)
	}

	rep.PostFX = PostFor(&f.Master)
	if !rep.PostFX.Identity() {
		if err := c.dev.PostProcess(rep.PostFX); err != nil {
			c.checkLost(err)
			glog.Warningf("final pass: %v", err)
		}
	}
	return rep
}

func (c *Compositor) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("layer panicked: %v", r)
		}
	}()
	return fn()
}

func (c *Compositor) drawClip(f *Frame, clip *timeline.Clip, in *resolve.Input) error {
	u, ok := resolve.Clip(clip, in)
	if !ok {
		return nil
	}

	variant := Plain
	var frame image.Image
	if clip.IsVideo() {
		var v Video
		if c.videos != nil {
			v, ok = c.videos.Video(clip.Video)
		}
		if v == nil || !ok {
			return fmt.Errorf("%w: %q", ErrNoVideo, clip.Video)
		}
		if frame = syncVideo(clip, v, f.Time); frame == nil {
			return fmt.Errorf("%w: %q has no frame", ErrNoVideo, clip.Video)
		}
		if err := c.dev.DrawImage(frame, u.Opacity); err != nil {
			return fmt.Errorf("drawing video: %w", err)
		}
		if clip.ShaderID == "" {
			return nil
		}
		variant = WithVideo
	}

	s := findShader(f.Shaders, clip.ShaderID)
	if s == nil {
		return fmt.Errorf("%w: %q", ErrNoShader, clip.ShaderID)
	}
	prog, err := c.cache.Program(s, variant)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoProgram, err)
	}
	if prog == nil {
		return ErrNoProgram
	}
	return c.dev.Draw(&Layer{
		Program:  prog,
		Uniforms: &u,
		Blend:    clip.Blend,
		Echo:     EchoFor(u.FeedbackDelay),
		Video:    frame,
	})
}

func findShader(shaders []timeline.Shader, id string) *timeline.Shader {
	if id == "" {
		return nil
	}
	for i := range shaders {
		if shaders[i].ID == id {
			return &shaders[i]
		}
	}
	return nil
}
