package gfx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// HueMatrix returns the luminance preserving hue rotation used by CSS
// hue-rotate, as a column major matrix for a mat3 uniform.
func HueMatrix(degrees float64) mgl32.Mat3 {
	rad := degrees * math.Pi / 180
	c, s := float32(math.Cos(rad)), float32(math.Sin(rad))

	r0 := mgl32.Vec3{0.213 + c*0.787 - s*0.213, 0.715 - c*0.715 - s*0.715, 0.072 - c*0.072 + s*0.928}
	r1 := mgl32.Vec3{0.213 - c*0.213 + s*0.143, 0.715 + c*0.285 + s*0.140, 0.072 - c*0.072 - s*0.283}
	r2 := mgl32.Vec3{0.213 - c*0.213 - s*0.787, 0.715 - c*0.715 + s*0.715, 0.072 + c*0.928 + s*0.072}
	return mgl32.Mat3FromRows(r0, r1, r2)
}
