// Spectrogram decodes an audio file and renders its byte spectrum and the
// extracted feature bands into an image, one column per analysed frame.
package main

import (
	"flag"
	"image"
	"image/color"
	"log"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/audio"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/fft"
	"github.com/fraendk-lang/elastic-pulse-studio/audio/util"
)

var (
	input      = flag.String("audio", "", "wav or mp3 file to analyse")
	out        = flag.String("out", "spectrogram.png", "output image")
	fps        = flag.Float64("fps", 60, "analysis frames per second")
	size       = flag.Int("size", 1024, "transform size")
	bandHeight = flag.Int("band-height", 16, "rows per feature band below the spectrum")
)

type column struct {
	bins []uint8
	vec  features.Vector
}

func analyse(player *audio.Offline, an *fft.Analyser, ex *features.Extractor, fps float64) []column {
	var (
		cols   []column
		window []float64
	)
	player.Play()
	for {
		if player.Advance(1/fps) == nil {
			return cols
		}
		window = player.Window(window)
		bins := an.ByteFrequencyData(window, nil)
		at := time.Duration(player.Position() * float64(time.Second))
		cols = append(cols, column{bins: bins, vec: ex.Update(bins, at)})
	}
}

func render(cols []column, bins, bandHeight int, cmap util.ColorMap) *image.NRGBA {
	h := bins + bandHeight*int(features.NumBands)
	img := image.NewNRGBA(image.Rect(0, 0, len(cols), h))

	// Lookup table over byte values.
	var lut [256]color.NRGBA
	for i := range lut {
		r, g, b := cmap.At(1 - float64(i)/255).RGB255()
		lut[i] = color.NRGBA{r, g, b, 255}
	}

	for x, c := range cols {
		for j := 0; j < bins && j < len(c.bins); j++ {
			img.SetNRGBA(x, bins-1-j, lut[c.bins[j]])
		}
		for b := features.Band(0); b < features.NumBands; b++ {
			v := math.Min(1, math.Max(0, c.vec[b]))
			col := lut[uint8(v*255)]
			y0 := bins + int(b)*bandHeight
			for y := y0; y < y0+bandHeight; y++ {
				img.SetNRGBA(x, y, col)
			}
		}
	}
	return img
}

func main() {
	flag.Parse()
	if *input == "" {
		log.Fatal("-audio is required")
	}

	stream, format, err := audio.Decode(*input)
	if err != nil {
		log.Fatal(err)
	}
	cfg := fft.DefaultAnalyserConfig()
	cfg.Size = *size
	player := audio.NewOffline(stream, format, cfg.Size)
	defer player.Close()

	an := fft.NewAnalyser(cfg)
	ex := features.NewExtractor(nil)
	ex.OnTempo = func(bpm float64) {
		glog.Infof("tempo %v bpm at %.2fs", bpm, player.Position())
	}

	cols := analyse(player, an, ex, *fps)
	if len(cols) == 0 {
		log.Fatal("no audio frames")
	}
	img := render(cols, an.Bins(), *bandHeight, util.NewColorMap())
	if err := imaging.Save(img, *out); err != nil {
		log.Fatal(err)
	}
	glog.Infof("%d frames written to %s", len(cols), *out)
}
