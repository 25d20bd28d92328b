package audio

import (
	"log"
	"time"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

// Frame is an analysis window of mono samples ending at stream time At.
type Frame struct {
	Samples []float64
	At      time.Duration
}

// Buffer turns every incoming block into an overlapping outgoing frame of the given size.
// @size must be >= the size of the input blocks.
// It also converts the float32 input from a raw audio source to float64 and stamps each
// frame with the stream time derived from the number of samples seen at @sampleRate.
func Buffer(done chan struct{}, in <-chan []float32, size int, sampleRate float64) chan Frame {

	out := make(chan Frame, 16)

	go func() {
		defer close(out)
		var (
			x       []float32
			y       []float64
			ok      bool
			samples int64
			buffer  = util.NewRingBuffer(size)
		)

		for {
			select {
			case <-done:
				return
			case x, ok = <-in:
				if !ok || x == nil {
					return
				}
				if len(y) != len(x) {
					y = make([]float64, len(x))
				}

				for i := range x {
					y[i] = float64(x[i])
				}
				buffer.Push(y)
				samples += int64(len(x))

				at := time.Duration(float64(samples) * float64(time.Second) / sampleRate)
				select {
				case out <- Frame{Samples: buffer.Get(size), At: at}:
				default:
					log.Println("[WARNING] Input buffer overrun! Frame was dropped.")
				}
			}
		}
	}()

	return out
}
