// Package transport owns the playhead: it advances it each frame from
// measured delta time or from the audio clock, and applies loop, seek and
// end-of-timeline rules.
package transport

import (
	"errors"
	"math"
	"sync"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// AudioClock is the playback source the transport slaves to. audio.Player
// satisfies it.
type AudioClock interface {
	Ready() bool
	Playing() bool
	Position() float64
	Seek(seconds float64) error
	Play()
	Pause()
}

// State is a copy of the transport at one instant.
type State struct {
	Time     float64          `json:"time"`
	Playing  bool             `json:"playing"`
	Duration float64          `json:"duration"`
	Loop     *timeline.Region `json:"loop,omitempty"`
}

// Transport is safe for concurrent use. Tick is called once per frame from
// the render loop; the other methods may come from control surfaces.
type Transport struct {
	mu       sync.Mutex
	audio    AudioClock
	time     float64
	duration float64
	playing  bool
	loop     *timeline.Region
}

// New returns a stopped transport at time 0.
func New(duration float64) *Transport {
	t := &Transport{duration: 120}
	if duration > 0 && !math.IsInf(duration, 0) {
		t.duration = duration
	}
	return t
}

// SetAudio attaches an audio clock, or detaches it with nil.
func (t *Transport) SetAudio(a AudioClock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = a
}

// Tick advances the playhead by dt seconds, or to the audio position when
// audio is playing and ready, and returns the new time.
func (t *Transport) Tick(dt float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return t.time
	}
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		dt = 0
	}

	next := t.time + dt
	if t.audio != nil && t.audio.Playing() && t.audio.Ready() {
		next = t.audio.Position()
	}

	switch {
	case t.loop.Valid() && next >= t.loop.End:
		next = t.loop.Start
		t.seekAudio(next)
	case next >= t.duration:
		if t.loop.Valid() {
			next = t.loop.Start
			t.seekAudio(next)
			break
		}
		t.playing = false
		if t.audio != nil {
			t.audio.Pause()
		}
		next = 0
		t.seekAudio(0)
	}
	t.time = next
	return next
}

func (t *Transport) seekAudio(at float64) {
	if t.audio == nil {
		return
	}
	if err := t.audio.Seek(at); err != nil {
		glog.Warningf("audio seek to %.3fs: %v", at, err)
	}
}

// Play starts playback from the current time.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}
	t.playing = true
	if t.audio != nil {
		t.seekAudio(t.time)
		t.audio.Play()
	}
}

// Pause stops playback. The audio clock is paused before Pause returns.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	if t.audio != nil {
		t.audio.Pause()
	}
}

// Toggle switches between playing and paused and reports the new state.
func (t *Transport) Toggle() bool {
	t.mu.Lock()
	playing := t.playing
	t.mu.Unlock()
	if playing {
		t.Pause()
	} else {
		t.Play()
	}
	return !playing
}

// Seek moves the playhead, clamped to the timeline.
func (t *Transport) Seek(at float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if math.IsNaN(at) {
		at = 0
	}
	at = math.Max(0, math.Min(at, t.duration))
	t.time = at
	t.seekAudio(at)
	return at
}

// Reset stops playback and rewinds to 0.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	if t.audio != nil {
		t.audio.Pause()
	}
	t.time = 0
	t.seekAudio(0)
}

// ErrInvalidRegion is returned by SetLoop for empty or reversed regions.
var ErrInvalidRegion = errors.New("invalid loop region")

// ClampRegion limits a loop region to a timeline of the given duration.
func ClampRegion(start, end, duration float64) timeline.Region {
	return timeline.Region{Start: math.Max(0, start), End: math.Min(end, duration)}
}

// SetLoop enables looping between start and end, clamped to the timeline.
func (t *Transport) SetLoop(start, end float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := ClampRegion(start, end, t.duration)
	if !r.Valid() {
		return ErrInvalidRegion
	}
	t.loop = &r
	return nil
}

func (t *Transport) ClearLoop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop = nil
}

// SetDuration changes the timeline length. The playhead is pulled back if
// it lies beyond the new end.
func (t *Transport) SetDuration(d float64) error {
	if !(d > 0) || math.IsInf(d, 0) {
		return errors.New("duration must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	if t.time > d {
		t.time = d
	}
	return nil
}

// Time returns the current playhead.
func (t *Transport) Time() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.time
}

func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// State returns a copy of the transport.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State{Time: t.time, Playing: t.playing, Duration: t.duration}
	if t.loop != nil {
		l := *t.loop
		s.Loop = &l
	}
	return s
}
