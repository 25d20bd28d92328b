package timeline

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Background is the procedural pattern drawn under all tracks.
type Background int

// Background patterns
const (
	NoBackground Background = iota
	Gradient
	NoiseField
	Grid
	ParticleField
	Waves
	KenBurns1
	KenBurns2
	KenBurns3
)

var backgroundNames = [...]string{
	"none", "gradient", "noise", "grid", "particles", "waves", "ken-burns-1", "ken-burns-2", "ken-burns-3",
}

func (b Background) String() string {
	if b < 0 || int(b) >= len(backgroundNames) {
		return fmt.Sprintf("Background(%d)", int(b))
	}
	return backgroundNames[b]
}

// MarshalText implements encoding.TextMarshaler.
func (b Background) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Background) UnmarshalText(text []byte) error {
	for i, n := range backgroundNames {
		if n == string(text) {
			*b = Background(i)
			return nil
		}
	}
	if len(text) == 0 {
		*b = NoBackground
		return nil
	}
	return fmt.Errorf("unknown background %q", string(text))
}

// MasterFX is the global effect state applied to the whole frame.
type MasterFX struct {
	Bloom         float64 `json:"bloom"`
	Feedback      float64 `json:"feedback"`
	Smoothing     float64 `json:"smoothing"`
	BPM           float64 `json:"bpm"`
	EnergyBuild   float64 `json:"energyBuild"`
	Strobe        bool    `json:"strobe"`
	Blackout      bool    `json:"blackout"`
	GlitchHit     bool    `json:"glitchHit"`
	Invert        bool    `json:"invert"`
	ZoomPunch     bool    `json:"zoomPunch"`
	ChromaBurst   bool    `json:"chromaBurst"`
	FeedbackDrive bool    `json:"feedbackDrive"`
	MirrorFlip    bool    `json:"mirrorFlip"`
	Vignette      float64 `json:"vignette"`
	ChromaticAb   float64 `json:"chromaticAberration"`
	MasterVolume  float64 `json:"masterVolume"`
	AudioSmooth   float64 `json:"audioSmoothing"`

	Freeze        bool    `json:"freeze"`
	Pixelate      float64 `json:"pixelate"`
	EdgeDetection bool    `json:"edgeDetection"`
	ColorShift    float64 `json:"colorShift"`
	Noise         float64 `json:"noise"`
	Blur          float64 `json:"blur"`
	Sharpen       float64 `json:"sharpen"`
	Posterize     float64 `json:"posterize"`
	Scanlines     bool    `json:"scanlines"`
	RGBShift      float64 `json:"rgbShift"`
	Kaleidoscope  float64 `json:"kaleidoscope"`
	Fisheye       float64 `json:"fisheye"`
	Twirl         float64 `json:"twirl"`

	// Audio chain settings, applied by the host's audio graph.
	Reverb        float64 `json:"reverb"`
	Delay         float64 `json:"delay"`
	DelayFeedback float64 `json:"delayFeedback"`
	DelayTime     float64 `json:"delayTime"`
	Distortion    float64 `json:"distortion"`
	Lowpass       float64 `json:"lowpass"`
	Highpass      float64 `json:"highpass"`
	Compressor    float64 `json:"compressor"`

	Background Background `json:"backgroundType"`
}

// DefaultMaster returns the session start state.
func DefaultMaster() MasterFX {
	return MasterFX{
		Bloom:         0.2,
		Smoothing:     0.15,
		BPM:           128,
		MasterVolume:  1,
		AudioSmooth:   0.2,
		DelayFeedback: 0.3,
		DelayTime:     0.25,
		Lowpass:       20000,
	}
}

// Tempo returns BPM, falling back to 120 when unset or invalid.
func (m *MasterFX) Tempo() float64 {
	if m.BPM <= 0 || math.IsNaN(m.BPM) || math.IsInf(m.BPM, 0) {
		return 120
	}
	return m.BPM
}

var masterFields = jsonFieldMap(reflect.TypeOf(MasterFX{}))

// Set assigns a numeric value to the field with the given JSON name. Booleans
// are set when value ≥ 0.5.
func (m *MasterFX) Set(name string, value float64) error {
	i, ok := masterFields[name]
	if !ok {
		return fmt.Errorf("unknown master parameter %q", name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("invalid value for %s: %v", name, value)
	}
	f := reflect.ValueOf(m).Elem().Field(i)
	switch f.Kind() {
	case reflect.Bool:
		f.SetBool(value >= 0.5)
	case reflect.Float64:
		f.SetFloat(value)
	case reflect.Int:
		f.SetInt(int64(math.Round(value)))
	default:
		return fmt.Errorf("master parameter %q is not numeric", name)
	}
	return nil
}

// Get returns the numeric value of the field with the given JSON name.
func (m *MasterFX) Get(name string) (float64, bool) {
	i, ok := masterFields[name]
	if !ok {
		return 0, false
	}
	f := reflect.ValueOf(m).Elem().Field(i)
	switch f.Kind() {
	case reflect.Bool:
		if f.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.Float64:
		return f.Float(), true
	case reflect.Int:
		return float64(f.Int()), true
	}
	return 0, false
}

// MasterFields lists the JSON names of all MasterFX fields.
func MasterFields() []string {
	names := make([]string, 0, len(masterFields))
	t := reflect.TypeOf(MasterFX{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		names = append(names, jsonTag(&f))
	}
	return names
}

func jsonFieldMap(t reflect.Type) map[string]int {
	m := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		m[jsonTag(&f)] = i
	}
	return m
}

func jsonTag(f *reflect.StructField) string {
	t := f.Tag.Get("json")
	return strings.Split(t, ",")[0]
}
