// Package sink holds export.Sink implementations.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/export"
)

// FFmpegConfig describes how exports are encoded.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable, looked up on PATH if not absolute.
	Binary string
	Output string
	// VideoCodec defaults to libx264.
	VideoCodec string
	// AudioBitrate in bits per second, default 192000.
	AudioBitrate int
}

// FFmpeg streams raw RGBA frames on stdin and mono float samples on a
// second pipe into an ffmpeg process.
type FFmpeg struct {
	cmd    *exec.Cmd
	video  io.WriteCloser
	audio  *os.File
	stderr bytes.Buffer

	mu     sync.Mutex
	frames int
}

// NewFFmpeg returns an Opener that starts one ffmpeg process per export.
// The process is killed if ctx is cancelled.
func NewFFmpeg(ctx context.Context, cfg FFmpegConfig) export.Opener {
	return func(s export.Settings, sampleRate float64) (export.Sink, error) {
		return startFFmpeg(ctx, cfg, s, sampleRate)
	}
}

// Args builds the ffmpeg command line for an export.
func Args(cfg FFmpegConfig, s export.Settings, sampleRate float64) []string {
	codec := cfg.VideoCodec
	if codec == "" {
		codec = "libx264"
	}
	abr := cfg.AudioBitrate
	if abr <= 0 {
		abr = 192000
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-r", strconv.FormatFloat(s.FrameRate, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if sampleRate > 0 {
		args = append(args,
			"-f", "f32le", "-ar", strconv.Itoa(int(sampleRate)), "-ac", "1",
			"-i", "pipe:3")
	}
	args = append(args,
		"-c:v", codec, "-b:v", strconv.Itoa(s.Bitrate), "-pix_fmt", "yuv420p")
	if sampleRate > 0 {
		args = append(args, "-c:a", "aac", "-b:a", strconv.Itoa(abr))
	}
	return append(args, cfg.Output)
}

func startFFmpeg(ctx context.Context, cfg FFmpegConfig, s export.Settings, sampleRate float64) (*FFmpeg, error) {
	bin := cfg.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("finding encoder: %w", err)
	}
	if cfg.Output == "" {
		return nil, fmt.Errorf("no output file")
	}

	f := &FFmpeg{}
	f.cmd = exec.CommandContext(ctx, path, Args(cfg, s, sampleRate)...)
	f.cmd.Stderr = &f.stderr
	if f.video, err = f.cmd.StdinPipe(); err != nil {
		return nil, err
	}

	var audioRead *os.File
	if sampleRate > 0 {
		if audioRead, f.audio, err = os.Pipe(); err != nil {
			return nil, fmt.Errorf("audio pipe: %w", err)
		}
		f.cmd.ExtraFiles = []*os.File{audioRead}
	}

	if err := f.cmd.Start(); err != nil {
		if audioRead != nil {
			audioRead.Close()
			f.audio.Close()
		}
		return nil, fmt.Errorf("starting encoder: %w", err)
	}
	if audioRead != nil {
		audioRead.Close()
	}
	glog.Infof("encoding to %s with %s", cfg.Output, path)
	return f, nil
}

func (f *FFmpeg) WriteFrame(img *image.RGBA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := img.Rect.Dx() * 4
	if img.Stride == w {
		if _, err := f.video.Write(img.Pix[:w*img.Rect.Dy()]); err != nil {
			return f.fail(err)
		}
	} else {
		for y := 0; y < img.Rect.Dy(); y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+w]
			if _, err := f.video.Write(row); err != nil {
				return f.fail(err)
			}
		}
	}
	f.frames++
	return nil
}

func (f *FFmpeg) WriteAudio(samples []float32) error {
	if f.audio == nil {
		return nil
	}
	if _, err := f.audio.Write(Float32LE(samples)); err != nil {
		return f.fail(err)
	}
	return nil
}

// fail decorates a pipe error with what the encoder printed.
func (f *FFmpeg) fail(err error) error {
	if msg := strings.TrimSpace(f.stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

// Close flushes the pipes and waits for the encoder to exit.
func (f *FFmpeg) Close() error {
	f.video.Close()
	if f.audio != nil {
		f.audio.Close()
	}
	if err := f.cmd.Wait(); err != nil {
		return f.fail(fmt.Errorf("encoder: %w", err))
	}
	glog.Infof("encoder finished after %d frames", f.frames)
	return nil
}
