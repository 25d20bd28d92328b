// Package export captures the rendered output together with the playing
// audio. A Recorder is advanced by the render loop once per frame and walks
// through preparation, capture and teardown without blocking that loop.
package export

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/transport"
)

// Sentinel errors
var (
	ErrBusy               = errors.New("export already running")
	ErrCaptureUnavailable = errors.New("capture unavailable")
)

// State of a Recorder.
type State int

// Recorder states
const (
	Idle State = iota
	Preparing
	Capturing
	Finalizing
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case Capturing:
		return "capturing"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Timing of the export phases.
const (
	PrepareTicks   = 3
	WarmupDuration = 200 * time.Millisecond
	WarmupVolume   = 0.01
	FlushBuffer    = 500 * time.Millisecond
)

// Surface is the drawable the frames are read from. render.Device
// satisfies it.
type Surface interface {
	Size() (width, height int)
	Resize(width, height int) error
	Snapshot() (*image.RGBA, error)
}

// Audio is the playback source that is warmed up and captured. audio.Player
// satisfies it.
type Audio interface {
	transport.AudioClock
	Volume() float64
	SetVolume(v float64)
	Tap() <-chan []float32
	Untap(tap <-chan []float32)
	SampleRate() float64
}

// Sink consumes an export. WriteFrame is called from the render goroutine
// and WriteAudio from the capture goroutine.
type Sink interface {
	WriteFrame(img *image.RGBA) error
	WriteAudio(samples []float32) error
	Close() error
}

// Opener creates the sink for an export. sampleRate is 0 when there is no
// audio track.
type Opener func(s Settings, sampleRate float64) (Sink, error)

type saved struct {
	width, height int
	time          float64
	playing       bool
	volume        float64
	valid         bool
}

// Recorder runs one export at a time.
type Recorder struct {
	surface Surface
	tr      *transport.Transport
	audio   Audio
	open    Opener

	// OnFinish, if set, is called on the render goroutine when an export
	// ends, with nil on success.
	OnFinish func(err error)

	mu        sync.Mutex
	state     State
	settings  Settings
	saved     saved
	ticks     int
	warmStart time.Time
	warmed    bool
	start     time.Time
	duration  float64
	sink      Sink
	written   int
	last      *image.RGBA
	audioTime float64
	progress  float64
	err       error

	tap      <-chan []float32
	pumpDone chan struct{}
	audioErr error
}

// NewRecorder returns an idle recorder. audio may be nil for silent
// projects.
func NewRecorder(surface Surface, tr *transport.Transport, audio Audio, open Opener) *Recorder {
	return &Recorder{surface: surface, tr: tr, audio: audio, open: open}
}

// StartExport schedules an export. The work happens in subsequent Tick
// calls on the render goroutine.
func (r *Recorder) StartExport(s Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return ErrBusy
	}
	r.settings = s.Normalized()
	r.state = Preparing
	r.ticks = 0
	r.warmStart = time.Time{}
	r.warmed = false
	r.duration = 0
	r.written = 0
	r.last = nil
	r.audioTime = 0
	r.progress = 0
	r.err = nil
	glog.Infof("export scheduled: %s %dx%d@%.0f", r.settings.Format, r.settings.Width, r.settings.Height, r.settings.FrameRate)
	return nil
}

// IsExporting reports whether an export is in progress.
func (r *Recorder) IsExporting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != Idle
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Progress is 0..100. It stays below 100 until the export completed.
func (r *Recorder) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// CurrentFrame is the frame index matching the captured audio time.
func (r *Recorder) CurrentFrame() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(math.Floor(r.audioTime * r.settings.FrameRate))
}

// TotalFrames is the number of frames a complete stream export writes.
func (r *Recorder) TotalFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalFrames()
}

func (r *Recorder) totalFrames() int {
	if r.settings.Format == SingleFrame {
		return 1
	}
	return int(math.Ceil(r.duration * r.settings.FrameRate))
}

// Err returns the error of the last finished export.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Tick advances the export. Call it on the render goroutine after each
// rendered frame.
func (r *Recorder) Tick(now time.Time) {
	r.mu.Lock()
	var (
		done bool
		err  error
	)
	switch r.state {
	case Idle:
		r.mu.Unlock()
		return
	case Preparing:
		done, err = r.prepare(now)
	case Capturing:
		err = r.capture(now)
	case Finalizing:
		done = true
	}
	if !done && err == nil {
		r.mu.Unlock()
		return
	}
	err = r.finish(err)
	cb := r.OnFinish
	r.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (r *Recorder) prepare(now time.Time) (bool, error) {
	if r.ticks == 0 {
		w, h := r.surface.Size()
		r.saved = saved{width: w, height: h, time: r.tr.Time(), playing: r.tr.Playing(), valid: true}
		if r.audio != nil {
			r.saved.volume = r.audio.Volume()
		}
		r.tr.Pause()
		if err := r.surface.Resize(r.settings.Width, r.settings.Height); err != nil {
			return false, fmt.Errorf("resizing surface: %w", err)
		}
		if r.settings.Format == RawVideoStream {
			r.tr.Reset()
			r.duration = r.tr.State().Duration
		}
	}
	r.ticks++
	if r.ticks <= PrepareTicks {
		return false, nil
	}

	if r.settings.Format == SingleFrame {
		return true, r.singleFrame()
	}

	if r.audio != nil && r.audio.Ready() && !r.warmed {
		if r.warmStart.IsZero() {
			r.audio.SetVolume(WarmupVolume)
			r.seekAudio(0)
			r.audio.Play()
			r.warmStart = now
			return false, nil
		}
		if now.Sub(r.warmStart) < WarmupDuration {
			return false, nil
		}
		r.audio.Pause()
		r.seekAudio(0)
		r.audio.SetVolume(r.saved.volume)
		r.warmStart = time.Time{}
		r.warmed = true
	}

	rate := 0.0
	if r.audio != nil && r.audio.Ready() {
		rate = r.audio.SampleRate()
	}
	sink, err := r.open(r.settings, rate)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	r.sink = sink
	if rate > 0 {
		r.startPump()
	}
	// Audio starts only now that the stream exists.
	r.tr.Play()
	r.start = now
	r.state = Capturing
	glog.Infof("export capturing %d frames", r.totalFrames())
	return false, nil
}

func (r *Recorder) seekAudio(at float64) {
	if err := r.audio.Seek(at); err != nil {
		glog.Warningf("export audio seek: %v", err)
	}
}

func (r *Recorder) singleFrame() error {
	img, err := r.surface.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	sink, err := r.open(r.settings, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	r.sink = sink
	r.written = 1
	return sink.WriteFrame(img)
}

func (r *Recorder) startPump() {
	r.tap = r.audio.Tap()
	r.pumpDone = make(chan struct{})
	r.audioErr = nil
	go func(tap <-chan []float32, sink Sink, done chan struct{}) {
		defer close(done)
		for block := range tap {
			if err := sink.WriteAudio(block); err != nil {
				r.audioErr = err
				glog.Errorf("export audio: %v", err)
				for range tap {
				}
				return
			}
		}
	}(r.tap, r.sink, r.pumpDone)
}

func (r *Recorder) stopPump() error {
	if r.tap == nil {
		return nil
	}
	r.audio.Untap(r.tap)
	<-r.pumpDone
	r.tap = nil
	return r.audioErr
}

// capture writes every frame slot up to the current audio time. Slots
// skipped since the previous tick repeat the last written frame.
func (r *Recorder) capture(now time.Time) error {
	elapsed := now.Sub(r.start)
	t := r.tr.Time()
	if t < r.audioTime || !r.tr.Playing() {
		// Wrapped by a loop region or stopped at the end.
		t = math.Max(r.audioTime, elapsed.Seconds())
	}
	r.audioTime = math.Min(t, r.duration)

	total := r.totalFrames()
	idx := int(math.Floor(r.audioTime * r.settings.FrameRate))
	if idx >= total {
		idx = total - 1
	}
	if idx >= r.written {
		img, err := r.surface.Snapshot()
		if err != nil {
			return fmt.Errorf("reading frame %d: %w", idx, err)
		}
		fill := r.last
		if fill == nil {
			fill = img
		}
		for r.written < idx {
			if err := r.sink.WriteFrame(fill); err != nil {
				return fmt.Errorf("writing frame %d: %w", r.written, err)
			}
			r.written++
		}
		if err := r.sink.WriteFrame(img); err != nil {
			return fmt.Errorf("writing frame %d: %w", idx, err)
		}
		r.written++
		r.last = img
	}

	if r.duration > 0 {
		r.progress = math.Min(99, r.audioTime/r.duration*100)
	}
	if elapsed >= time.Duration(r.duration*float64(time.Second))+FlushBuffer {
		r.state = Finalizing
	}
	return nil
}

// finish releases the capture and restores the session. It returns the
// export's final error.
func (r *Recorder) finish(err error) error {
	if perr := r.stopPump(); err == nil && perr != nil {
		err = fmt.Errorf("writing audio: %w", perr)
	}
	if r.sink != nil {
		if cerr := r.sink.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing export: %w", cerr)
		}
		r.sink = nil
	}
	r.restore()

	r.state = Idle
	r.err = err
	r.last = nil
	if err != nil {
		r.progress = 0
		glog.Errorf("export failed: %v", err)
	} else {
		r.progress = 100
		glog.Infof("export finished: %d frames", r.written)
	}
	return err
}

func (r *Recorder) restore() {
	if !r.saved.valid {
		return
	}
	r.saved.valid = false
	if w, h := r.surface.Size(); w != r.saved.width || h != r.saved.height {
		if err := r.surface.Resize(r.saved.width, r.saved.height); err != nil {
			glog.Errorf("restoring surface size: %v", err)
		}
	}
	if r.audio != nil {
		r.audio.SetVolume(r.saved.volume)
	}
	r.tr.Pause()
	r.tr.Seek(r.saved.time)
	if r.saved.playing {
		r.tr.Play()
	}
}
