package export

import (
	"fmt"
	"math"
)

// Format selects what an export produces.
type Format int

// Export formats
const (
	RawVideoStream Format = iota
	SingleFrame
)

var formatNames = [...]string{"rawVideoStream", "singleFrame"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	for i, n := range formatNames {
		if n == string(text) {
			*f = Format(i)
			return nil
		}
	}
	return fmt.Errorf("unknown export format %q", text)
}

// Stream floors. Stream captures never run below MinFrameRate, and the
// bitrate never drops below the floor for the target width.
const (
	MinFrameRate   = 60
	MinBitrate     = 25000000
	MinBitrateUHD  = 50000000
	UHDWidth       = 3840
	DefaultWidth   = 1920
	DefaultHeight  = 1080
	DefaultRate    = 30
	DefaultBitrate = 8000000
)

// Settings describe one export.
type Settings struct {
	Format    Format  `json:"format" yaml:"format"`
	FrameRate float64 `json:"frameRate" yaml:"frameRate"`
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
	// Bitrate is in bits per second.
	Bitrate int `json:"bitrate" yaml:"bitrate"`
}

// Normalized fills in defaults for missing values and applies the stream
// floors.
func (s Settings) Normalized() Settings {
	if s.Width <= 0 {
		s.Width = DefaultWidth
	}
	if s.Height <= 0 {
		s.Height = DefaultHeight
	}
	if !(s.FrameRate > 0) || math.IsInf(s.FrameRate, 0) {
		s.FrameRate = DefaultRate
	}
	if s.Bitrate <= 0 {
		s.Bitrate = DefaultBitrate
	}
	if s.Format == RawVideoStream {
		s.FrameRate = math.Max(s.FrameRate, MinFrameRate)
		floor := MinBitrate
		if s.Width >= UHDWidth {
			floor = MinBitrateUHD
		}
		if s.Bitrate < floor {
			s.Bitrate = floor
		}
	}
	return s
}
