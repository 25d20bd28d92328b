package automation

import (
	"fmt"
	"math"
)

// Waveform selects the oscillator shape.
type Waveform int

// Oscillator waveforms
const (
	Sine Waveform = iota
	Triangle
	Square
	Noise
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Triangle:
		return "tri"
	case Square:
		return "sqr"
	case Noise:
		return "noise"
	}
	return fmt.Sprintf("Waveform(%d)", int(w))
}

// MarshalText implements encoding.TextMarshaler.
func (w Waveform) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText accepts both the short and long waveform names.
func (w *Waveform) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sine", "":
		*w = Sine
	case "tri", "triangle":
		*w = Triangle
	case "sqr", "square":
		*w = Square
	case "noise":
		*w = Noise
	default:
		return fmt.Errorf("unknown waveform %q", string(b))
	}
	return nil
}

// Oscillator is an LFO attached to one clip parameter.
type Oscillator struct {
	ID        string   `json:"id"`
	Target    string   `json:"target"`
	Waveform  Waveform `json:"type"`
	Frequency float64  `json:"freq"`
	Amplitude float64  `json:"amp"`
	Phase     float64  `json:"phase"`
	Offset    float64  `json:"offset"`
	// Sync expresses Frequency as a multiple of the beat rate.
	Sync bool `json:"sync"`
}

// Oscillate returns the oscillator output at the given clock.
func Oscillate(o Oscillator, clock, bpm float64) float64 {
	freq := o.Frequency
	if o.Sync {
		freq = bpm / 60 * o.Frequency
	}
	u := clock*freq + o.Phase

	var v float64
	switch o.Waveform {
	case Sine:
		v = math.Sin(2 * math.Pi * u)
	case Triangle:
		v = math.Abs(2*frac(u)-1)*2 - 1
	case Square:
		if frac(u) < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case Noise:
		v = math.Sin(u*123.45) * math.Cos(u*678.90)
	}
	return v*o.Amplitude + o.Offset
}

// Sum adds the output of every oscillator aimed at target.
func Sum(oscs []Oscillator, target string, clock, bpm float64) float64 {
	var s float64
	for i := range oscs {
		if oscs[i].Target == target {
			s += Oscillate(oscs[i], clock, bpm)
		}
	}
	return s
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}
