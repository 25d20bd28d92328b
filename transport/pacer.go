package transport

import (
	"math"
	"time"
)

// IdleFPS caps the frame rate while there is nothing animated to draw.
const IdleFPS = 30

// Clock is the free-running wall clock that drives oscillators and
// procedural backgrounds. It advances whether or not the transport plays.
type Clock struct {
	last    time.Time
	elapsed float64
}

// Advance moves the clock to now and returns the total elapsed seconds and
// the step taken. The first call starts the clock at 0.
func (c *Clock) Advance(now time.Time) (elapsed, dt float64) {
	if !c.last.IsZero() {
		dt = now.Sub(c.last).Seconds()
	}
	c.last = now
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		dt = 0
	}
	c.elapsed += dt
	return c.elapsed, dt
}

// Elapsed returns the clock without advancing it.
func (c *Clock) Elapsed() float64 { return c.elapsed }

// Pacer decides whether a display tick should render. Idle ticks render
// every other call, or earlier if the idle interval has passed.
type Pacer struct {
	MinInterval time.Duration

	idleCount int
	last      time.Time
}

func NewPacer() *Pacer {
	return &Pacer{MinInterval: time.Second / IdleFPS}
}

// Allow reports whether to render the tick at now.
func (p *Pacer) Allow(now time.Time, idle bool) bool {
	if idle {
		p.idleCount++
		if p.idleCount%2 != 0 && now.Sub(p.last) < p.MinInterval {
			return false
		}
	} else {
		p.idleCount = 0
	}
	p.last = now
	return true
}
