package gfx

import (
	"github.com/go-gl/gl/v4.1-core/gl"
)

// quadVertices covers clip space with two triangles.
var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	-1, 1,
	1, -1,
	1, 1,
}

// VertexArrayObject points to a vertex buffer that has already been
// loaded into graphics memory.
type VertexArrayObject struct {
	vaoID  uint32
	vboID  uint32
	length int32
}

// newQuad uploads the full screen quad bound to attribute location 0.
func newQuad() *VertexArrayObject {
	var vbo uint32
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(quadVertices), gl.Ptr(quadVertices), gl.STATIC_DRAW)

	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindVertexArray(0)

	return &VertexArrayObject{vaoID: vao, vboID: vbo, length: int32(len(quadVertices) / 2)}
}

// Draw draws the quad to the current frame buffer
func (v *VertexArrayObject) Draw() {
	gl.BindVertexArray(v.vaoID)
	gl.DrawArrays(gl.TRIANGLES, 0, v.length)
}

func (v *VertexArrayObject) Delete() {
	gl.DeleteVertexArrays(1, &v.vaoID)
	gl.DeleteBuffers(1, &v.vboID)
}
