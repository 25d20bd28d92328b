// Curveplot draws automation curves, oscillator waveforms, or the resolved
// value of one clip parameter over the clip's length.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/fraendk-lang/elastic-pulse-studio/automation"
	"github.com/fraendk-lang/elastic-pulse-studio/resolve"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

var (
	mode        = flag.String("mode", "curves", "what to plot: curves, waveforms or clip")
	projectPath = flag.String("project", "", "project JSON, for -mode clip")
	clipID      = flag.String("clip", "", "clip id, for -mode clip")
	param       = flag.String("param", "opacity", "parameter name, for -mode clip")
	bpm         = flag.Float64("bpm", 120, "tempo for beat synced oscillators")
	samples     = flag.Int("samples", 500, "points per line")
	out         = flag.String("out", "curves.png", "output image; the extension picks the format")
)

func series(n int, x0, x1 float64, f func(x float64) float64) plotter.XYs {
	if n < 2 {
		n = 2
	}
	pts := make(plotter.XYs, n)
	for i := range pts {
		x := x0 + (x1-x0)*float64(i)/float64(n-1)
		pts[i].X = x
		pts[i].Y = f(x)
	}
	return pts
}

func curvesPlot(n int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Automation curves"
	p.X.Label.Text = "segment position"
	var lines []interface{}
	for c := automation.Linear; c <= automation.Bezier; c++ {
		c := c
		lines = append(lines, c.String(), series(n, 0, 1, c.Apply))
	}
	return p, plotutil.AddLines(p, lines...)
}

func waveformsPlot(n int, bpm float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Oscillators at 1 Hz"
	p.X.Label.Text = "seconds"
	var lines []interface{}
	for w := automation.Sine; w <= automation.Noise; w++ {
		o := automation.Oscillator{Waveform: w, Frequency: 1, Amplitude: 1}
		lines = append(lines, w.String(), series(n, 0, 2, func(x float64) float64 {
			return automation.Oscillate(o, x, bpm)
		}))
	}
	return p, plotutil.AddLines(p, lines...)
}

// clipSeries samples the resolved value of name across c, with the
// oscillator clock equal to the clip time.
func clipSeries(c *timeline.Clip, name string, bpm float64, n int) (plotter.XYs, error) {
	var base float64
	if name == timeline.OpacityParam {
		base = c.Opacity
	} else {
		p, ok := timeline.ParseParam(name)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		base = c.Params[p]
	}
	return series(n, 0, c.Duration, func(x float64) float64 {
		local := resolve.LocalTime(c, c.Start+x)
		return resolve.Value(c, name, base, local, x, bpm)
	}), nil
}

func clipPlot(n int, bpm float64) (*plot.Plot, error) {
	data, err := os.ReadFile(*projectPath)
	if err != nil {
		return nil, err
	}
	proj, err := timeline.UnmarshalProject(data)
	if err != nil {
		return nil, err
	}
	c, ok := proj.Clip(*clipID)
	if !ok {
		return nil, fmt.Errorf("no clip %q", *clipID)
	}
	pts, err := clipSeries(c, *param, bpm, n)
	if err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s of clip %s", *param, c.ID)
	p.X.Label.Text = "seconds into clip"
	return p, plotutil.AddLinePoints(p, *param, pts)
}

func main() {
	flag.Parse()

	var (
		p   *plot.Plot
		err error
	)
	switch *mode {
	case "curves":
		p, err = curvesPlot(*samples)
	case "waveforms":
		p, err = waveformsPlot(*samples, *bpm)
	case "clip":
		p, err = clipPlot(*samples, *bpm)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, *out); err != nil {
		log.Fatal(err)
	}
}
