package timeline

import (
	"encoding/json"
	"fmt"
)

// Param names one of the fixed numeric clip parameters.
type Param int

// Clip parameters
const (
	Speed Param = iota
	Intensity
	Color
	Kaleidoscope
	Mirror
	Glitch
	Contrast
	Saturation
	Brightness
	HueRotate
	Zoom
	Distort
	TieEffect
	FeedbackDelay
	Particles

	NumParams
)

// OpacityParam is the automation key for clip opacity, which is not part of
// Params but can carry keyframes and oscillators.
const OpacityParam = "opacity"

var paramNames = [NumParams]string{
	"speed", "intensity", "color", "kaleidoscope", "mirror", "glitch", "contrast",
	"saturation", "brightness", "hueRotate", "zoom", "distort", "tieEffect",
	"feedbackDelay", "particles",
}

func (p Param) String() string {
	if p < 0 || p >= NumParams {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParam looks up a parameter by name.
func ParseParam(name string) (Param, bool) {
	for i, n := range paramNames {
		if n == name {
			return Param(i), true
		}
	}
	return 0, false
}

// Params holds one value per Param.
type Params [NumParams]float64

// DefaultParams are the values of a freshly created clip.
func DefaultParams() Params {
	var p Params
	p[Speed] = 1
	p[Intensity] = 1
	p[Color] = 0.5
	p[Contrast] = 1
	p[Saturation] = 1
	return p
}

// MarshalJSON encodes the parameters as an object keyed by name.
func (p Params) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumParams)
	for i, v := range p {
		m[paramNames[i]] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes an object keyed by name. Missing names keep their
// default value and unknown names are ignored.
func (p *Params) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*p = DefaultParams()
	for name, v := range m {
		if i, ok := ParseParam(name); ok {
			p[i] = v
		}
	}
	return nil
}

// Range is the editable span of a parameter.
type Range struct {
	Min, Max float64
}

var paramRanges = map[string]Range{
	"intensity":     {0, 2},
	"speed":         {0, 4},
	"zoom":          {0, 3},
	"opacity":       {0, 1},
	"contrast":      {0, 2},
	"saturation":    {0, 2},
	"brightness":    {-1, 1},
	"hueRotate":     {0, 1},
	"distort":       {0, 2},
	"tieEffect":     {0, 1},
	"feedbackDelay": {0, 1},
	"kaleidoscope":  {0, 12},
	"particles":     {0, 1},
}

// ParamRange returns the editable range of the named parameter, [0,1] if it
// has no specific range.
func ParamRange(name string) Range {
	if r, ok := paramRanges[name]; ok {
		return r
	}
	return Range{0, 1}
}
