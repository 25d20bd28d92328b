package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/plot/vg"

	"github.com/fraendk-lang/elastic-pulse-studio/automation"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

func TestClipSeries(t *testing.T) {
	c := timeline.NewClip("s", 2)
	c.Duration = 4
	c.SetKeyframe("zoom", automation.Keyframe{Time: 0, Value: 0})
	c.SetKeyframe("zoom", automation.Keyframe{Time: 1, Value: 2})

	pts, err := clipSeries(&c, "zoom", 120, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{0, 0.5, 1, 1.5, 2} {
		if pts[i].X != float64(i) || math.Abs(pts[i].Y-want) > 1e-9 {
			t.Fatalf("point %d = %+v, want y %v", i, pts[i], want)
		}
	}

	pts, err = clipSeries(&c, timeline.OpacityParam, 120, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range pts {
		if pt.Y != 1 {
			t.Fatalf("opacity = %v", pt.Y)
		}
	}
	if _, err := clipSeries(&c, "nope", 120, 3); err == nil {
		t.Fatal("expected error for unknown param")
	}
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()
	curves, err := curvesPlot(50)
	if err != nil {
		t.Fatal(err)
	}
	waves, err := waveformsPlot(50, 120)
	if err != nil {
		t.Fatal(err)
	}
	for name, p := range map[string]interface {
		Save(w, h vg.Length, file string) error
	}{"curves.png": curves, "waves.png": waves} {
		path := filepath.Join(dir, name)
		if err := p.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
			t.Fatal(err)
		}
		if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
}
