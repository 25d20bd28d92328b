package gfx

import (
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// Texture is a 2D RGBA texture sized to the last image uploaded into it.
type Texture struct {
	texID uint32
	w, h  int
}

func newTexture() *Texture {
	var texID uint32
	gl.GenTextures(1, &texID)
	gl.BindTexture(gl.TEXTURE_2D, texID)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	return &Texture{texID: texID}
}

// allocate reserves storage without uploading pixels.
func (t *Texture) allocate(w, h int) {
	gl.BindTexture(gl.TEXTURE_2D, t.texID)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(w), int32(h),
		0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	t.w, t.h = w, h
}

// Upload writes img into the texture on the given unit, reallocating when
// the size changed.
func (t *Texture) Upload(unit uint32, img *image.RGBA) {
	size := img.Rect.Size()
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, t.texID)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	defer gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	if size.X != t.w || size.Y != t.h {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8,
			int32(size.X), int32(size.Y),
			0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
		t.w, t.h = size.X, size.Y
		return
	}
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0,
		int32(size.X), int32(size.Y),
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
}

// Bind binds the texture to the given unit.
func (t *Texture) Bind(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, t.texID)
}

func (t *Texture) Delete() {
	if t.texID != 0 {
		gl.DeleteTextures(1, &t.texID)
		t.texID = 0
	}
}
