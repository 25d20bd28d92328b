package render

import (
	"image"
	"math"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// VideoDrift is how far a video may run from its clip position before it is
// seeked back.
const VideoDrift = 0.1

// Video is a decodable video source attached to a clip.
type Video interface {
	// Duration is the length in seconds; non-finite or non-positive values
	// mean the video is not usable.
	Duration() float64
	// Ready reports whether a frame is decoded and seeking is possible.
	Ready() bool
	Position() float64
	Seek(seconds float64) error
	Playing() bool
	Play()
	// Frame returns the current frame, or nil if none is available.
	Frame() image.Image
}

// VideoProvider resolves the video handle stored on a clip.
type VideoProvider interface {
	Video(handle string) (Video, bool)
}

// VideoMap is a VideoProvider backed by a map.
type VideoMap map[string]Video

// Video implements VideoProvider.
func (m VideoMap) Video(handle string) (Video, bool) {
	v, ok := m[handle]
	return v, ok
}

// VideoTime maps global time t onto the position of v for clip c.
func VideoTime(c *timeline.Clip, t, duration float64) float64 {
	rel := (t - c.Start) / c.Duration
	return math.Max(0, math.Min(rel*duration, duration))
}

// syncVideo keeps v aligned with the clip and returns its current frame. It
// returns nil when the video cannot be drawn.
func syncVideo(c *timeline.Clip, v Video, t float64) image.Image {
	d := v.Duration()
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		glog.Warningf("clip %s: video %q has no valid duration, skipping", c.ID, c.Video)
		return nil
	}
	if !v.Ready() {
		return nil
	}
	want := VideoTime(c, t, d)
	if math.Abs(v.Position()-want) > VideoDrift {
		if err := v.Seek(want); err != nil {
			glog.V(2).Infof("clip %s: video seek to %.2f failed: %v", c.ID, want, err)
		}
	}
	if !v.Playing() {
		v.Play()
	}
	return v.Frame()
}
