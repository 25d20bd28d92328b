package sink

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/go-audio/wav"

	"github.com/fraendk-lang/elastic-pulse-studio/export"
)

func TestArgs(t *testing.T) {
	s := export.Settings{Width: 1920, Height: 1080, FrameRate: 60, Bitrate: 25000000}
	cfg := FFmpegConfig{Output: "out.mp4"}

	args := strings.Join(Args(cfg, s, 48000), " ")
	for _, want := range []string{
		"-f rawvideo -pix_fmt rgba -s 1920x1080 -r 60 -i pipe:0",
		"-f f32le -ar 48000 -ac 1 -i pipe:3",
		"-c:v libx264 -b:v 25000000",
		"-c:a aac -b:a 192000",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Errorf("args %q do not end with the output", args)
	}

	silent := strings.Join(Args(cfg, s, 0), " ")
	if strings.Contains(silent, "pipe:3") || strings.Contains(silent, "-c:a") {
		t.Errorf("silent export has an audio input: %q", silent)
	}
}

func TestFloat32LE(t *testing.T) {
	b := Float32LE([]float32{1, -0.5})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf}
	if string(b) != string(want) {
		t.Errorf("Float32LE = % x, want % x", b, want)
	}
}

func TestDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export")
	d, err := OpenDir(path, 8000)
	if err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	for i := 0; i < 2; i++ {
		if err := d.WriteFrame(img); err != nil {
			t.Fatal(err)
		}
	}
	block := make([]float32, 400)
	for i := range block {
		block[i] = float32(math.Sin(float64(i) / 10))
	}
	for i := 0; i < 3; i++ {
		if err := d.WriteAudio(block); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := imaging.Open(d.FramePath(1))
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("frame bounds %v", b)
	}
	if r, _, _, _ := got.At(1, 1).RGBA(); r>>8 != 255 {
		t.Errorf("frame pixel red = %d", r>>8)
	}

	f, err := os.Open(filepath.Join(path, "audio.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Data) != 1200 {
		t.Errorf("decoded %d samples, want 1200", len(buf.Data))
	}
	if dec.SampleRate != 8000 {
		t.Errorf("sample rate %d", dec.SampleRate)
	}
}

func TestDirWithoutAudio(t *testing.T) {
	d, err := OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteAudio([]float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}
