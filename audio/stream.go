package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Config represents a config that is used to open a live input Stream.
type Config struct {
	// BlockSize refers to the buffer size for each block
	BlockSize int
	// Channels is the number of input channels. Blocks are downmixed to mono.
	Channels int
	// SampleRate is the sample rate (Fs).
	SampleRate float64
}

// NewSource initializes a live input source with portaudio and returns a channel on which
// to receive mono blocks. The channel is closed when ctx is done or the stream fails.
func NewSource(ctx context.Context, cfg *Config) (<-chan []float32, <-chan error) {
	out := make(chan []float32)
	errc := make(chan error, 1)
	done := ctx.Done()

	channels := cfg.Channels
	if channels < 1 {
		channels = 1
	}

	go func() {
		defer close(out)

		if err := portaudio.Initialize(); err != nil {
			errc <- fmt.Errorf("initializing portaudio: %w", err)
			return
		}
		defer portaudio.Terminate()

		in := make([]float32, cfg.BlockSize*channels)
		stream, err := portaudio.OpenDefaultStream(
			channels, 0, cfg.SampleRate, cfg.BlockSize, in)
		if err != nil {
			errc <- fmt.Errorf("opening input stream: %w", err)
			return
		}
		defer stream.Close()
		if err := stream.Start(); err != nil {
			errc <- fmt.Errorf("starting input stream: %w", err)
			return
		}
		defer stream.Stop()

		for {
			select {
			case <-done:
				return
			default:
			}

			if err := stream.Read(); err != nil {
				errc <- fmt.Errorf("reading input stream: %w", err)
				return
			}

			select {
			case out <- Downmix(in, channels):
			case <-done:
				return
			}
		}
	}()

	return out, errc
}

// Downmix averages interleaved samples into a new mono block.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		mono := make([]float32, len(interleaved))
		copy(mono, interleaved)
		return mono
	}
	mono := make([]float32, len(interleaved)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// LiveInput is a lazily started live input source.
type LiveInput struct {
	ctx  context.Context
	cfg  *Config
	once sync.Once
	out  <-chan []float32
	errc <-chan error
}

// NewLiveInput prepares a live input. The device is opened on the first Tap.
func NewLiveInput(ctx context.Context, cfg *Config) *LiveInput {
	return &LiveInput{ctx: ctx, cfg: cfg}
}

// Tap opens the device on first use and returns its block channel. Every
// call returns the same channel.
func (l *LiveInput) Tap() <-chan []float32 {
	l.once.Do(func() {
		l.out, l.errc = NewSource(l.ctx, l.cfg)
	})
	return l.out
}

// Err returns the stream error channel, or nil before the first Tap.
func (l *LiveInput) Err() <-chan error {
	return l.errc
}

// SampleRate of the input stream.
func (l *LiveInput) SampleRate() float64 {
	return l.cfg.SampleRate
}
