package sink

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/fraendk-lang/elastic-pulse-studio/export"
)

// Dir writes every frame as a numbered PNG and the audio as a 16 bit WAV
// file into a directory.
type Dir struct {
	path   string
	frames int

	mu    sync.Mutex
	wavF  *os.File
	enc   *wav.Encoder
	rate  int
	audio goaudio.IntBuffer
}

// NewDir returns an Opener writing into path, which is created if needed.
func NewDir(path string) export.Opener {
	return func(s export.Settings, sampleRate float64) (export.Sink, error) {
		return OpenDir(path, sampleRate)
	}
}

// OpenDir creates the directory and, for a positive sample rate, the audio
// file.
func OpenDir(path string, sampleRate float64) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	d := &Dir{path: path}
	if sampleRate > 0 {
		f, err := os.Create(filepath.Join(path, "audio.wav"))
		if err != nil {
			return nil, err
		}
		d.wavF = f
		d.rate = int(sampleRate)
		d.enc = wav.NewEncoder(f, d.rate, 16, 1, 1)
		d.audio = goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: d.rate},
			SourceBitDepth: 16,
		}
	}
	return d, nil
}

// FramePath is the file name of frame i.
func (d *Dir) FramePath(i int) string {
	return filepath.Join(d.path, fmt.Sprintf("frame_%06d.png", i))
}

func (d *Dir) WriteFrame(img *image.RGBA) error {
	if err := imaging.Save(img, d.FramePath(d.frames)); err != nil {
		return fmt.Errorf("saving frame %d: %w", d.frames, err)
	}
	d.frames++
	return nil
}

func (d *Dir) WriteAudio(samples []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return nil
	}
	data := d.audio.Data[:0]
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data = append(data, int(math.Round(v*math.MaxInt16)))
	}
	d.audio.Data = data
	return d.enc.Write(&d.audio)
}

// Close finalizes the WAV header.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return nil
	}
	err := d.enc.Close()
	if cerr := d.wavF.Close(); err == nil {
		err = cerr
	}
	d.enc = nil
	return err
}

// Float32LE encodes samples the way ffmpeg's f32le demuxer reads them.
func Float32LE(samples []float32) []byte {
	b := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(s))
	}
	return b
}
