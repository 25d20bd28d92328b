package audio

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/golang/glog"
	"github.com/gordonklaus/portaudio"
)

// Player plays a decoded audio file through the default output device. Its
// playback position is the audio clock the transport slaves to, and every
// block it plays is copied to the registered taps for analysis or capture.
type Player struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	playing  bool
	volume   float64
	buf      [][2]float64
	taps     []chan []float32

	block  int
	stream *portaudio.Stream
}

// Decode opens a wav or mp3 file, chosen by extension.
func Decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return s, format, nil
}

// Open decodes a wav or mp3 file for playback.
func Open(path string, block int) (*Player, error) {
	s, format, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return NewPlayer(s, format, block), nil
}

// NewPlayer wraps an already decoded stream. No device is opened until Start.
func NewPlayer(s beep.StreamSeekCloser, format beep.Format, block int) *Player {
	if block <= 0 {
		block = 512
	}
	return &Player{
		streamer: s,
		format:   format,
		volume:   1,
		block:    block,
		buf:      make([][2]float64, block),
	}
}

// Start opens the output device and begins pulling samples. The player stays
// paused until Play.
func (p *Player) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(
		0, 2, float64(p.format.SampleRate), p.block, p.fill)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting output stream: %w", err)
	}
	p.stream = stream
	return nil
}

// fill is the device callback. out is non-interleaved stereo.
func (p *Player) fill(out [][]float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(out[0])
	if len(p.buf) < n {
		p.buf = make([][2]float64, n)
	}
	buf := p.buf[:n]

	got := 0
	if p.playing && p.streamer != nil {
		var ok bool
		got, ok = p.streamer.Stream(buf)
		if !ok || got < n {
			if err := p.streamer.Err(); err != nil {
				log.Println("[WARNING] audio stream error:", err)
			}
			p.playing = false
		}
	}

	var mono []float32
	if len(p.taps) > 0 && got > 0 {
		mono = make([]float32, got)
	}
	for i := 0; i < n; i++ {
		var l, r float64
		if i < got {
			l, r = buf[i][0]*p.volume, buf[i][1]*p.volume
		}
		out[0][i] = float32(l)
		if len(out) > 1 {
			out[1][i] = float32(r)
		}
		if mono != nil && i < got {
			mono[i] = float32((buf[i][0] + buf[i][1]) / 2)
		}
	}

	if mono == nil {
		return
	}
	for _, tap := range p.taps {
		select {
		case tap <- mono:
		default:
			if glog.V(3) {
				glog.Info("audio tap full, block dropped")
			}
		}
	}
}

// Tap registers a new receiver of played mono blocks. Blocks are dropped
// rather than blocking playback when the receiver falls behind.
func (p *Player) Tap() <-chan []float32 {
	ch := make(chan []float32, 16)
	p.mu.Lock()
	p.taps = append(p.taps, ch)
	p.mu.Unlock()
	return ch
}

// Untap removes and closes a tap.
func (p *Player) Untap(tap <-chan []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.taps {
		if ch == tap {
			close(ch)
			p.taps = append(p.taps[:i], p.taps[i+1:]...)
			return
		}
	}
}

// Play resumes playback.
func (p *Player) Play() {
	p.mu.Lock()
	p.playing = p.streamer != nil
	p.mu.Unlock()
}

// Pause stops playback. No samples are played after Pause returns.
func (p *Player) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Playing reports whether samples are being played.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Ready reports whether a non-empty stream is loaded.
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamer != nil && p.streamer.Len() > 0
}

// Position is the playback position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil || p.format.SampleRate == 0 {
		return 0
	}
	return float64(p.streamer.Position()) / float64(p.format.SampleRate)
}

// Duration is the stream length in seconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil || p.format.SampleRate == 0 {
		return 0
	}
	return float64(p.streamer.Len()) / float64(p.format.SampleRate)
}

// Seek moves the playback position, clamped to the stream.
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return nil
	}
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	n := int(seconds * float64(p.format.SampleRate))
	if l := p.streamer.Len(); n > l {
		n = l
	}
	return p.streamer.Seek(n)
}

// SetVolume sets the linear output gain.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = math.Max(0, v)
	p.mu.Unlock()
}

// Volume returns the linear output gain.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SampleRate of the loaded stream.
func (p *Player) SampleRate() float64 {
	return float64(p.format.SampleRate)
}

// Close stops the device and releases the stream.
func (p *Player) Close() error {
	var err error
	if p.stream != nil {
		p.stream.Stop()
		err = p.stream.Close()
		portaudio.Terminate()
		p.stream = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	for _, ch := range p.taps {
		close(ch)
	}
	p.taps = nil
	if p.streamer != nil {
		if cerr := p.streamer.Close(); err == nil {
			err = cerr
		}
		p.streamer = nil
	}
	return err
}
