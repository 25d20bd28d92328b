package gfx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestHueMatrixIdentity(t *testing.T) {
	m := HueMatrix(0)
	if !m.ApproxEqualThreshold(mgl32.Ident3(), 1e-5) {
		t.Fatalf("HueMatrix(0) = %v, want identity", m)
	}
	m = HueMatrix(360)
	if !m.ApproxEqualThreshold(mgl32.Ident3(), 1e-4) {
		t.Fatalf("HueMatrix(360) = %v, want identity", m)
	}
}

func TestHueMatrixKeepsGray(t *testing.T) {
	gray := mgl32.Vec3{0.5, 0.5, 0.5}
	for _, deg := range []float64{45, 90, 180, 270} {
		out := HueMatrix(deg).Mul3x1(gray)
		if !out.ApproxEqualThreshold(gray, 1e-3) {
			t.Errorf("HueMatrix(%v) * gray = %v", deg, out)
		}
	}
}

func TestHueMatrixRotatesRed(t *testing.T) {
	out := HueMatrix(180).Mul3x1(mgl32.Vec3{1, 0, 0})
	if out[0] >= out[1] || out[0] >= out[2] {
		t.Fatalf("red rotated 180 degrees = %v, want cyan dominant", out)
	}
}
