// Package config loads the YAML engine configuration shared by the
// binaries. Anything left out of the file keeps its default.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/fft"
	"github.com/fraendk-lang/elastic-pulse-studio/control"
	"github.com/fraendk-lang/elastic-pulse-studio/export"
)

type Window struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
	VSync  bool   `yaml:"vsync"`
}

type Audio struct {
	// File is played and analysed. Empty analyses the default input device.
	File       string  `yaml:"file"`
	BlockSize  int     `yaml:"blockSize"`
	SampleRate float64 `yaml:"sampleRate"`
	// PreGain enables automatic gain on live input.
	PreGain bool `yaml:"preGain"`
}

type Analyser struct {
	Size        int     `yaml:"size"`
	MinDecibels float64 `yaml:"minDecibels"`
	MaxDecibels float64 `yaml:"maxDecibels"`
	Smoothing   float64 `yaml:"smoothing"`
}

type Features struct {
	Attack        float64       `yaml:"attack"`
	Release       float64       `yaml:"release"`
	TransientGain float64       `yaml:"transientGain"`
	KickThreshold float64       `yaml:"kickThreshold"`
	KickDebounce  time.Duration `yaml:"kickDebounce"`
	TempoHistory  int           `yaml:"tempoHistory"`
	MinIntervals  int           `yaml:"minIntervals"`
	MinBPM        float64       `yaml:"minBPM"`
	MaxBPM        float64       `yaml:"maxBPM"`
}

type Control struct {
	// Listen is the HTTP address. Empty disables the server.
	Listen string `yaml:"listen"`
	Static string `yaml:"static"`
	// Broker is an MQTT url such as tcp://localhost:1883. Empty disables MQTT.
	Broker      string `yaml:"broker"`
	Prefix      string `yaml:"prefix"`
	PublishRate int    `yaml:"publishRate"`
}

type Export struct {
	Settings export.Settings `yaml:"settings"`
	// Output is a video file for ffmpeg, or a directory for PNG frames.
	Output string `yaml:"output"`
	FFmpeg string `yaml:"ffmpeg"`
	Codec  string `yaml:"codec"`
}

// Config is the complete engine configuration.
type Config struct {
	Window   Window            `yaml:"window"`
	Audio    Audio             `yaml:"audio"`
	Analyser Analyser          `yaml:"analyser"`
	Features Features          `yaml:"features"`
	Control  Control           `yaml:"control"`
	Export   Export            `yaml:"export"`
	MIDI     []control.Mapping `yaml:"midi"`
	// Shaders is a directory of shader sources forming the palette.
	Shaders string `yaml:"shaders"`
	// Library is the sqlite preset database.
	Library string `yaml:"library"`
	Project string `yaml:"project"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	an := fft.DefaultAnalyserConfig()
	fe := features.DefaultConfig()
	return &Config{
		Window: Window{Width: 1280, Height: 720, Title: "Elastic Pulse Studio", VSync: true},
		Audio:  Audio{BlockSize: 512, SampleRate: 44100},
		Analyser: Analyser{
			Size:        an.Size,
			MinDecibels: an.MinDecibels,
			MaxDecibels: an.MaxDecibels,
			Smoothing:   an.Smoothing,
		},
		Features: Features{
			Attack:        fe.Attack,
			Release:       fe.Release,
			TransientGain: fe.TransientGain,
			KickThreshold: fe.KickThreshold,
			KickDebounce:  fe.KickDebounce,
			TempoHistory:  fe.TempoHistory,
			MinIntervals:  fe.MinIntervals,
			MinBPM:        fe.MinBPM,
			MaxBPM:        fe.MaxBPM,
		},
		Control: Control{Listen: ":8080", Prefix: "pulse", PublishRate: 30},
		Export: Export{
			Settings: export.Settings{
				Format:    export.RawVideoStream,
				FrameRate: export.DefaultRate,
				Width:     export.DefaultWidth,
				Height:    export.DefaultHeight,
				Bitrate:   export.DefaultBitrate,
			},
			Output: "export.mp4",
			FFmpeg: "ffmpeg",
		},
		Library: "data/library.db",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Audio.BlockSize <= 0:
		return errors.New("audio block size must be positive")
	case c.Analyser.Size < 32 || c.Analyser.Size&(c.Analyser.Size-1) != 0:
		return fmt.Errorf("analyser size %d is not a power of two >= 32", c.Analyser.Size)
	case c.Analyser.MaxDecibels <= c.Analyser.MinDecibels:
		return errors.New("analyser decibel range is empty")
	case c.Analyser.Smoothing < 0 || c.Analyser.Smoothing >= 1:
		return fmt.Errorf("analyser smoothing %v outside [0,1)", c.Analyser.Smoothing)
	case c.Features.MinBPM >= c.Features.MaxBPM:
		return errors.New("tempo range is empty")
	}
	for i, m := range c.MIDI {
		if m.Param == "" {
			return fmt.Errorf("midi mapping %d has no parameter", i)
		}
	}
	return nil
}

// AnalyserConfig converts the analyser section.
func (c *Config) AnalyserConfig() *fft.AnalyserConfig {
	return &fft.AnalyserConfig{
		Size:        c.Analyser.Size,
		MinDecibels: c.Analyser.MinDecibels,
		MaxDecibels: c.Analyser.MaxDecibels,
		Smoothing:   c.Analyser.Smoothing,
	}
}

// FeatureConfig converts the features section.
func (c *Config) FeatureConfig() *features.Config {
	f := &c.Features
	return &features.Config{
		Attack:        f.Attack,
		Release:       f.Release,
		TransientGain: f.TransientGain,
		KickThreshold: f.KickThreshold,
		KickDebounce:  f.KickDebounce,
		TempoHistory:  f.TempoHistory,
		MinIntervals:  f.MinIntervals,
		MinBPM:        f.MinBPM,
		MaxBPM:        f.MaxBPM,
	}
}
