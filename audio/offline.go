package audio

import (
	"math"
	"sync"

	"github.com/faiface/beep"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

// Offline is a player without an output device. Time only moves when
// Advance is called, so a render loop can run faster or slower than real
// time and still see the audio it would have heard.
type Offline struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	playing  bool
	volume   float64
	buf      [][2]float64
	carry    float64
	taps     []chan []float32
	recent   *util.RingBuffer
}

// NewOffline wraps a decoded stream. It keeps the last window samples
// played for analysis.
func NewOffline(s beep.StreamSeekCloser, format beep.Format, window int) *Offline {
	if window < 1 {
		window = 1
	}
	return &Offline{
		streamer: s,
		format:   format,
		volume:   1,
		recent:   util.NewRingBuffer(window),
	}
}

// Advance plays the given number of seconds and returns the mono block that
// was produced, or nil when paused or exhausted. Taps receive the same
// block before volume, as with Player; Advance blocks until they accept it
// and must not run concurrently with Untap.
func (o *Offline) Advance(seconds float64) []float32 {
	o.mu.Lock()
	if !o.playing || o.streamer == nil || seconds <= 0 {
		o.mu.Unlock()
		return nil
	}
	exact := seconds*float64(o.format.SampleRate) + o.carry
	n := int(math.Floor(exact))
	o.carry = exact - float64(n)
	if n == 0 {
		o.mu.Unlock()
		return nil
	}
	if len(o.buf) < n {
		o.buf = make([][2]float64, n)
	}
	got, ok := o.streamer.Stream(o.buf[:n])
	if !ok || got < n {
		o.playing = false
	}
	mono := make([]float32, got)
	for i := range mono {
		mono[i] = float32((o.buf[i][0] + o.buf[i][1]) / 2)
	}
	o.remember(mono)
	taps := append([]chan []float32(nil), o.taps...)
	o.mu.Unlock()

	if len(mono) == 0 {
		return nil
	}
	for _, tap := range taps {
		tap <- mono
	}
	return mono
}

func (o *Offline) remember(block []float32) {
	x := make([]float64, len(block))
	for i, v := range block {
		x[i] = float64(v)
	}
	o.recent.Push(x)
}

// Window returns the most recent samples played, oldest first.
func (o *Offline) Window(dst []float64) []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.recent.Size()
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	copy(dst, o.recent.Get(n))
	return dst
}

// Tap registers a receiver of played blocks. Advance waits for it, so the
// receiver must keep reading until Untap.
func (o *Offline) Tap() <-chan []float32 {
	ch := make(chan []float32, 16)
	o.mu.Lock()
	o.taps = append(o.taps, ch)
	o.mu.Unlock()
	return ch
}

func (o *Offline) Untap(tap <-chan []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, ch := range o.taps {
		if ch == tap {
			close(ch)
			o.taps = append(o.taps[:i], o.taps[i+1:]...)
			return
		}
	}
}

func (o *Offline) Play() {
	o.mu.Lock()
	o.playing = o.streamer != nil && o.streamer.Position() < o.streamer.Len()
	o.mu.Unlock()
}

func (o *Offline) Pause() {
	o.mu.Lock()
	o.playing = false
	o.mu.Unlock()
}

func (o *Offline) Playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing
}

func (o *Offline) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streamer != nil && o.streamer.Len() > 0
}

// Position is the playback position in seconds.
func (o *Offline) Position() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.format.SampleRate == 0 {
		return 0
	}
	return float64(o.streamer.Position()) / float64(o.format.SampleRate)
}

// Duration is the stream length in seconds.
func (o *Offline) Duration() float64 {
	if o.format.SampleRate == 0 {
		return 0
	}
	return float64(o.streamer.Len()) / float64(o.format.SampleRate)
}

// Seek moves the position, clamped to the stream.
func (o *Offline) Seek(seconds float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	n := int(seconds * float64(o.format.SampleRate))
	if l := o.streamer.Len(); n > l {
		n = l
	}
	o.carry = 0
	return o.streamer.Seek(n)
}

func (o *Offline) SetVolume(v float64) {
	o.mu.Lock()
	o.volume = math.Max(0, v)
	o.mu.Unlock()
}

func (o *Offline) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Offline) SampleRate() float64 {
	return float64(o.format.SampleRate)
}

// Close releases the stream and closes all taps.
func (o *Offline) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playing = false
	for _, ch := range o.taps {
		close(ch)
	}
	o.taps = nil
	return o.streamer.Close()
}
