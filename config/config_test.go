package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/control"
	"github.com/fraendk-lang/elastic-pulse-studio/export"
)

const sample = `
window:
  width: 640
  height: 360
audio:
  file: set.mp3
features:
  kickDebounce: 150ms
control:
  broker: tcp://localhost:1883
export:
  settings:
    format: singleFrame
    width: 3840
midi:
  - parameter: master.bloom
    type: cc
    number: 21
    max: 1
  - parameter: playPause
    type: note
    number: 36
    inverted: true
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if c.Window.Width != 640 || c.Window.Title != Default().Window.Title {
		t.Fatalf("window = %+v", c.Window)
	}
	if c.Audio.File != "set.mp3" || c.Audio.BlockSize != 512 {
		t.Fatalf("audio = %+v", c.Audio)
	}
	if c.Features.KickDebounce != 150*time.Millisecond || c.Features.Attack != 0.35 {
		t.Fatalf("features = %+v", c.Features)
	}
	if c.Control.Broker != "tcp://localhost:1883" || c.Control.Listen != ":8080" {
		t.Fatalf("control = %+v", c.Control)
	}
	s := c.Export.Settings
	if s.Format != export.SingleFrame || s.Width != 3840 || s.Height != export.DefaultHeight {
		t.Fatalf("export = %+v", s)
	}
	if len(c.MIDI) != 2 {
		t.Fatalf("midi = %+v", c.MIDI)
	}
	want := control.Mapping{Param: "master.bloom", Kind: control.CC, Number: 21, Max: 1}
	if c.MIDI[0] != want {
		t.Fatalf("mapping = %+v", c.MIDI[0])
	}
	if c.MIDI[1].Kind != control.NoteOn || !c.MIDI[1].Inverted {
		t.Fatalf("mapping = %+v", c.MIDI[1])
	}

	fc := c.FeatureConfig()
	if fc.KickDebounce != 150*time.Millisecond || fc.MinIntervals != 4 {
		t.Fatalf("feature config = %+v", fc)
	}
	if ac := c.AnalyserConfig(); ac.Size != 1024 || ac.Smoothing != 0.5 {
		t.Fatalf("analyser config = %+v", ac)
	}
}

func TestValidate(t *testing.T) {
	bad := []string{
		"window: {width: 0}",
		"analyser: {size: 1000}",
		"analyser: {smoothing: 1}",
		"analyser: {minDecibels: -10, maxDecibels: -20}",
		"features: {minBPM: 200, maxBPM: 60}",
		"midi: [{type: cc, number: 1}]",
		"midi: [{parameter: x, type: pitchbend}]",
		"window: [",
	}
	for _, b := range bad {
		if _, err := Parse([]byte(b)); err == nil {
			t.Errorf("%q: expected error", b)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	c := Default()
	c.Shaders = "shaders"
	c.MIDI = []control.Mapping{{Param: "masterBPM", Kind: control.Clock}}
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Shaders != "shaders" || len(got.MIDI) != 1 || got.MIDI[0].Kind != control.Clock {
		t.Fatalf("loaded %+v", got)
	}
	if got.Export.Settings != c.Export.Settings || got.Features != c.Features {
		t.Fatal("round trip changed settings")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
