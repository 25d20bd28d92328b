package util

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorMap is a gradient given by sorted keypoints with positions in [0,1].
type ColorMap []struct {
	Col colorful.Color
	Pos float64
}

// At returns the HCL blend between the two keypoints around t. Positions
// outside the map clamp to the end colours.
func (g ColorMap) At(t float64) colorful.Color {
	if len(g) == 0 {
		return colorful.Color{}
	}
	if t <= g[0].Pos {
		return g[0].Col
	}
	for i := 0; i < len(g)-1; i++ {
		c1 := g[i]
		c2 := g[i+1]
		if c1.Pos <= t && t <= c2.Pos {
			t := (t - c1.Pos) / (c2.Pos - c1.Pos)
			return c1.Col.BlendHcl(c2.Col, t).Clamped()
		}
	}

	return g[len(g)-1].Col
}

func mustParseHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic("MustParseHex: " + err.Error())
	}
	return c
}

// NewColorMap returns the spectral palette used by the particle background.
func NewColorMap() ColorMap {
	return ColorMap{
		{mustParseHex("#9e0142"), 0.0},
		{mustParseHex("#d53e4f"), 0.1},
		{mustParseHex("#f46d43"), 0.2},
		{mustParseHex("#fdae61"), 0.3},
		{mustParseHex("#fee090"), 0.4},
		{mustParseHex("#ffffbf"), 0.5},
		{mustParseHex("#e6f598"), 0.6},
		{mustParseHex("#abdda4"), 0.7},
		{mustParseHex("#66c2a5"), 0.8},
		{mustParseHex("#3288bd"), 0.9},
		{mustParseHex("#5e4fa2"), 1.0},
	}
}
