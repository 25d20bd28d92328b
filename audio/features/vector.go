package features

import (
	"encoding/json"
	"fmt"
)

// Band indexes one entry of the feature vector.
type Band int

// Feature vector entries. The first seven are frequency bands.
const (
	Sub Band = iota
	Bass
	LowMid
	Mid
	HighMid
	Treble
	Presence
	Vol
	Kick
	Snare

	NumBands
)

// NumFrequencyBands is the number of spectrum derived bands.
const NumFrequencyBands = int(Presence) + 1

var bandNames = [NumBands]string{
	"sub", "bass", "lowMid", "mid", "highMid", "treble", "presence", "vol", "kick", "snare",
}

func (b Band) String() string {
	if b < 0 || b >= NumBands {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandNames[b]
}

// ParseBand returns the band with the given name. An empty name selects Vol.
func ParseBand(name string) (Band, error) {
	if name == "" {
		return Vol, nil
	}
	for i, n := range bandNames {
		if n == name {
			return Band(i), nil
		}
	}
	return Vol, fmt.Errorf("unknown band %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	v, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Vector holds one value per Band.
type Vector [NumBands]float64

// Get returns the value for b, or 0 when b is out of range.
func (v *Vector) Get(b Band) float64 {
	if b < 0 || b >= NumBands {
		return 0
	}
	return v[b]
}

// Map returns the vector keyed by band name.
func (v *Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumBands)
	for i := range v {
		m[bandNames[i]] = v[i]
	}
	return m
}

// MarshalJSON encodes the vector as an object keyed by band name.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}
