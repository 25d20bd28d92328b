package automation

import (
	"fmt"
)

// Curve is the easing applied to the segment to the right of a keyframe.
type Curve int

// Interpolation curves
const (
	Linear Curve = iota
	Ease
	EaseIn
	EaseOut
	EaseInOut
	Bezier
)

var curveNames = [...]string{
	Linear:    "linear",
	Ease:      "ease",
	EaseIn:    "easeIn",
	EaseOut:   "easeOut",
	EaseInOut: "easeInOut",
	Bezier:    "bezier",
}

func (c Curve) String() string {
	if c < 0 || int(c) >= len(curveNames) {
		return fmt.Sprintf("Curve(%d)", int(c))
	}
	return curveNames[c]
}

// ParseCurve returns the curve with the given name. An empty name is linear.
func ParseCurve(name string) (Curve, error) {
	if name == "" {
		return Linear, nil
	}
	for i, n := range curveNames {
		if n == name {
			return Curve(i), nil
		}
	}
	return Linear, fmt.Errorf("unknown curve %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Curve) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curve) UnmarshalText(b []byte) error {
	v, err := ParseCurve(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Apply maps a segment position a in [0,1] through the curve.
func (c Curve) Apply(a float64) float64 {
	if a <= 0 {
		return 0
	}
	if a >= 1 {
		return 1
	}
	switch c {
	case EaseIn:
		return a * a
	case EaseOut:
		return a * (2 - a)
	case Ease, EaseInOut:
		if a < 0.5 {
			return 2 * a * a
		}
		b := -2*a + 2
		return 1 - b*b/2
	case Bezier:
		return a * a * (3 - 2*a)
	default:
		return a
	}
}
