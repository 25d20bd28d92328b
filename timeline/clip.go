package timeline

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/automation"
)

// NumTracks is the number of parallel compositing lanes.
const NumTracks = 8

// MinDuration is the shortest clip length kept after sanitizing.
const MinDuration = 0.01

// BlendMode selects how a layer combines with what is below it.
type BlendMode int

// Blend modes. Overlay through Burn are stored but composite as Normal.
const (
	Normal BlendMode = iota
	Add
	Multiply
	Screen
	Overlay
	SoftLight
	HardLight
	Dodge
	Burn
)

var blendNames = [...]string{
	"normal", "add", "multiply", "screen", "overlay", "softlight", "hardlight", "dodge", "burn",
}

func (b BlendMode) String() string {
	if b < 0 || int(b) >= len(blendNames) {
		return fmt.Sprintf("BlendMode(%d)", int(b))
	}
	return blendNames[b]
}

// MarshalText implements encoding.TextMarshaler.
func (b BlendMode) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode
// as Normal.
func (b *BlendMode) UnmarshalText(text []byte) error {
	*b = Normal
	for i, n := range blendNames {
		if n == string(text) {
			*b = BlendMode(i)
		}
	}
	return nil
}

// Clip is a timed placement of a shader or video on a track.
type Clip struct {
	ID string `json:"id"`
	// ShaderID is empty for video-only clips.
	ShaderID    string  `json:"shaderId"`
	Track       int     `json:"track"`
	Start       float64 `json:"startTime"`
	Duration    float64 `json:"duration"`
	TimeStretch float64 `json:"timeStretch"`
	Opacity     float64 `json:"opacity"`
	FadeIn      float64 `json:"fadeIn"`
	FadeOut     float64 `json:"fadeOut"`

	Blend         BlendMode     `json:"blendMode"`
	AudioReactive float64       `json:"audioReactive"`
	AudioTie      features.Band `json:"audioTie"`

	Params     Params                      `json:"params"`
	Automation map[string]automation.Track `json:"automation"`
	LFOs       []automation.Oscillator     `json:"lfos"`

	// Video is the handle of an external video source, if any.
	Video string `json:"videoUrl,omitempty"`
}

// NewClip returns a shader clip with default settings.
func NewClip(shaderID string, start float64) Clip {
	return Clip{
		ID:            uuid.New().String(),
		ShaderID:      shaderID,
		Start:         start,
		Duration:      5,
		TimeStretch:   1,
		Opacity:       1,
		FadeIn:        0.5,
		FadeOut:       0.5,
		AudioReactive: 1,
		AudioTie:      features.Vol,
		Params:        DefaultParams(),
		Automation:    map[string]automation.Track{},
	}
}

// NewVideoClip returns a clip playing the given video source for duration seconds.
func NewVideoClip(video string, start, duration float64) Clip {
	c := NewClip("", start)
	c.Video = video
	c.Duration = duration
	c.AudioReactive = 0
	return c
}

// UnmarshalJSON decodes a clip, filling omitted fields with the defaults of
// NewClip.
func (c *Clip) UnmarshalJSON(b []byte) error {
	type plain Clip
	v := plain{
		TimeStretch:   1,
		Opacity:       1,
		AudioReactive: 1,
		AudioTie:      features.Vol,
		Params:        DefaultParams(),
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Clip(v)
	if c.Automation == nil {
		c.Automation = map[string]automation.Track{}
	}
	return nil
}

// End is the time the clip stops being active.
func (c *Clip) End() float64 {
	return c.Start + c.Duration
}

// ActiveAt reports whether t lies in [Start, End).
func (c *Clip) ActiveAt(t float64) bool {
	return t >= c.Start && t < c.End()
}

// IsVideo reports whether the clip draws an external video source.
func (c *Clip) IsVideo() bool {
	return c.Video != ""
}

// SetKeyframe adds or replaces a keyframe on the named parameter.
func (c *Clip) SetKeyframe(param string, k automation.Keyframe) {
	if c.Automation == nil {
		c.Automation = map[string]automation.Track{}
	}
	tr := c.Automation[param]
	tr.Set(k)
	c.Automation[param] = tr
}

// AddLFO attaches an oscillator, assigning it an id if it has none.
func (c *Clip) AddLFO(o automation.Oscillator) string {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	c.LFOs = append(c.LFOs, o)
	return o.ID
}

// RemoveLFO detaches the oscillator with the given id.
func (c *Clip) RemoveLFO(id string) bool {
	for i := range c.LFOs {
		if c.LFOs[i].ID == id {
			c.LFOs = append(c.LFOs[:i], c.LFOs[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c Clip) Clone() Clip {
	if c.Automation != nil {
		auto := make(map[string]automation.Track, len(c.Automation))
		for k, tr := range c.Automation {
			auto[k] = tr.Clone()
		}
		c.Automation = auto
	}
	if c.LFOs != nil {
		c.LFOs = append([]automation.Oscillator(nil), c.LFOs...)
	}
	return c
}

// Sanitize clamps out-of-range fields so the clip can always be rendered.
// Fades that overlap are left alone; the fade envelope clamps them.
func (c *Clip) Sanitize() {
	if c.Track < 0 {
		c.Track = 0
	} else if c.Track >= NumTracks {
		c.Track = NumTracks - 1
	}
	c.Start = finite(c.Start, 0)
	c.Duration = finite(c.Duration, MinDuration)
	if c.Duration < MinDuration {
		c.Duration = MinDuration
	}
	c.TimeStretch = finite(c.TimeStretch, 1)
	if c.TimeStretch <= 0 {
		c.TimeStretch = 1
	}
	c.Opacity = finite(c.Opacity, 1)
	c.FadeIn = math.Max(0, finite(c.FadeIn, 0))
	c.FadeOut = math.Max(0, finite(c.FadeOut, 0))
	c.AudioReactive = finite(c.AudioReactive, 0)
	if c.AudioTie < 0 || c.AudioTie >= features.NumBands {
		c.AudioTie = features.Vol
	}
	def := DefaultParams()
	for i := range c.Params {
		c.Params[i] = finite(c.Params[i], def[i])
	}
}

func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
