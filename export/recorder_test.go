package export

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

type fakeSurface struct {
	w, h    int
	resizes int
}

func (s *fakeSurface) Size() (int, int) { return s.w, s.h }

func (s *fakeSurface) Resize(w, h int) error {
	s.w, s.h = w, h
	s.resizes++
	return nil
}

func (s *fakeSurface) Snapshot() (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, s.w, s.h)), nil
}

type fakeAudio struct {
	mu      sync.Mutex
	playing bool
	pos     float64
	volume  float64
	volumes []float64
	taps    []chan []float32
}

func (a *fakeAudio) Ready() bool          { return true }
func (a *fakeAudio) Playing() bool        { return a.playing }
func (a *fakeAudio) Position() float64    { return a.pos }
func (a *fakeAudio) Seek(s float64) error { a.pos = s; return nil }
func (a *fakeAudio) Play()                { a.playing = true }
func (a *fakeAudio) Pause()               { a.playing = false }
func (a *fakeAudio) Volume() float64      { return a.volume }
func (a *fakeAudio) SampleRate() float64  { return 48000 }

func (a *fakeAudio) SetVolume(v float64) {
	a.volume = v
	a.volumes = append(a.volumes, v)
}

func (a *fakeAudio) Tap() <-chan []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan []float32, 4)
	a.taps = append(a.taps, ch)
	return ch
}

func (a *fakeAudio) Untap(tap <-chan []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, ch := range a.taps {
		if ch == tap {
			close(ch)
			a.taps = append(a.taps[:i], a.taps[i+1:]...)
			return
		}
	}
}

type fakeSink struct {
	mu     sync.Mutex
	frames []*image.RGBA
	audio  int
	closed bool
}

func (s *fakeSink) WriteFrame(img *image.RGBA) error {
	s.frames = append(s.frames, img)
	return nil
}

func (s *fakeSink) WriteAudio(b []float32) error {
	s.mu.Lock()
	s.audio += len(b)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func TestExportRestoresOnSetupFailure(t *testing.T) {
	surface := &fakeSurface{w: 640, h: 360}
	tr := transport.New(10)
	audio := &fakeAudio{volume: 0.8}
	tr.SetAudio(audio)
	tr.Seek(4)
	tr.Play()

	setupErr := errors.New("no encoder")
	rec := NewRecorder(surface, tr, audio, func(Settings, float64) (Sink, error) {
		return nil, setupErr
	})
	var finished error
	rec.OnFinish = func(err error) { finished = err }

	if err := rec.StartExport(Settings{Width: 1920, Height: 1080}); err != nil {
		t.Fatal(err)
	}
	if err := rec.StartExport(Settings{}); err != ErrBusy {
		t.Errorf("second StartExport = %v, want ErrBusy", err)
	}

	now := time.Unix(0, 0)
	for i := 0; i < 10 && rec.IsExporting(); i++ {
		now = now.Add(100 * time.Millisecond)
		rec.Tick(now)
		if i == 0 && (surface.w != 1920 || surface.h != 1080) {
			t.Fatalf("surface not resized for export: %dx%d", surface.w, surface.h)
		}
	}
	if rec.IsExporting() {
		t.Fatal("export did not abort")
	}
	if !errors.Is(finished, ErrCaptureUnavailable) || !errors.Is(rec.Err(), ErrCaptureUnavailable) {
		t.Errorf("error = %v, want ErrCaptureUnavailable", finished)
	}
	if surface.w != 640 || surface.h != 360 {
		t.Errorf("surface = %dx%d, want 640x360", surface.w, surface.h)
	}
	if got := tr.Time(); got != 4 {
		t.Errorf("transport time = %v, want 4", got)
	}
	if !tr.Playing() {
		t.Error("transport not playing after restore")
	}
	if audio.volume != 0.8 {
		t.Errorf("audio volume = %v, want 0.8", audio.volume)
	}
	if len(audio.volumes) == 0 || audio.volumes[0] != WarmupVolume {
		t.Errorf("audio was not warmed up quietly: %v", audio.volumes)
	}
	if rec.Progress() != 0 {
		t.Errorf("progress = %v after failure", rec.Progress())
	}
}

func TestExportStream(t *testing.T) {
	surface := &fakeSurface{w: 320, h: 180}
	tr := transport.New(1)
	sink := &fakeSink{}
	var rate float64
	rec := NewRecorder(surface, tr, nil, func(s Settings, sampleRate float64) (Sink, error) {
		rate = sampleRate
		return sink, nil
	})
	if err := rec.StartExport(Settings{Width: 64, Height: 32, FrameRate: 60}); err != nil {
		t.Fatal(err)
	}

	now := time.Unix(0, 0)
	step := func(d time.Duration, dt float64) {
		tr.Tick(dt)
		now = now.Add(d)
		rec.Tick(now)
	}
	for i := 0; i < PrepareTicks+1; i++ {
		step(16*time.Millisecond, 0)
	}
	if rec.State() != Capturing {
		t.Fatalf("state = %v after preparation, want capturing", rec.State())
	}
	if !tr.Playing() || tr.Time() != 0 {
		t.Fatalf("transport not playing from 0: %+v", tr.State())
	}
	if rate != 0 {
		t.Errorf("silent export opened with sample rate %v", rate)
	}
	if got := rec.TotalFrames(); got != 60 {
		t.Errorf("TotalFrames = %d, want 60", got)
	}

	step(50*time.Millisecond, 0.05)
	if len(sink.frames) != 4 {
		t.Fatalf("wrote %d frames, want 4", len(sink.frames))
	}
	if sink.frames[0] != sink.frames[3] {
		t.Error("skipped slots not filled with the current frame")
	}
	if b := sink.frames[0].Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("frame size %v, want 64x32", b)
	}
	if p := rec.Progress(); p <= 0 || p >= 100 {
		t.Errorf("progress while capturing = %v", p)
	}

	for i := 0; i < 40 && rec.IsExporting(); i++ {
		step(100*time.Millisecond, 0.1)
		if rec.IsExporting() && rec.Progress() > 99 {
			t.Fatalf("progress %v before completion", rec.Progress())
		}
	}
	if rec.IsExporting() {
		t.Fatal("export did not finish")
	}
	if err := rec.Err(); err != nil {
		t.Fatal(err)
	}
	if len(sink.frames) != 60 {
		t.Errorf("wrote %d frames, want 60", len(sink.frames))
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
	if rec.Progress() != 100 {
		t.Errorf("progress = %v, want 100", rec.Progress())
	}
	if surface.w != 320 || surface.h != 180 {
		t.Errorf("surface = %dx%d, want 320x180", surface.w, surface.h)
	}
	if tr.Playing() || tr.Time() != 0 {
		t.Errorf("transport not restored: %+v", tr.State())
	}
}

func TestExportSingleFrame(t *testing.T) {
	surface := &fakeSurface{w: 100, h: 100}
	tr := transport.New(10)
	tr.Seek(3)
	sink := &fakeSink{}
	rec := NewRecorder(surface, tr, nil, func(Settings, float64) (Sink, error) { return sink, nil })

	if err := rec.StartExport(Settings{Format: SingleFrame, Width: 32, Height: 16}); err != nil {
		t.Fatal(err)
	}
	now := time.Unix(0, 0)
	for i := 0; i < 10 && rec.IsExporting(); i++ {
		now = now.Add(16 * time.Millisecond)
		rec.Tick(now)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(sink.frames))
	}
	if b := sink.frames[0].Bounds(); b.Dx() != 32 || b.Dy() != 16 {
		t.Errorf("frame size %v, want 32x16", b)
	}
	if rec.TotalFrames() != 1 || rec.Progress() != 100 {
		t.Errorf("total %d progress %v", rec.TotalFrames(), rec.Progress())
	}
	if tr.Time() != 3 {
		t.Errorf("single frame export moved the playhead to %v", tr.Time())
	}
	if surface.w != 100 {
		t.Errorf("surface width %d, want 100", surface.w)
	}
}

func TestSettingsNormalized(t *testing.T) {
	tests := []struct {
		in   Settings
		rate float64
		bits int
	}{
		{Settings{Width: 1920, Height: 1080, FrameRate: 30, Bitrate: 8000000}, 60, MinBitrate},
		{Settings{Width: 3840, Height: 2160, FrameRate: 120, Bitrate: 1}, 120, MinBitrateUHD},
		{Settings{Width: 1280, Height: 720, FrameRate: 60, Bitrate: 90000000}, 60, 90000000},
		{Settings{Format: SingleFrame}, DefaultRate, DefaultBitrate},
	}
	for _, tt := range tests {
		got := tt.in.Normalized()
		if got.FrameRate != tt.rate || got.Bitrate != tt.bits {
			t.Errorf("%+v normalized to rate %v bitrate %d, want %v %d",
				tt.in, got.FrameRate, got.Bitrate, tt.rate, tt.bits)
		}
		if got.Width <= 0 || got.Height <= 0 {
			t.Errorf("%+v normalized without a size", tt.in)
		}
	}
}
