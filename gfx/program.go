package gfx

import (
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// Program is a linked vertex and fragment shader pair with a lazily filled
// uniform location table. Missing uniforms resolve to -1, which GL ignores,
// so user shaders that leave an input unused still render.
type Program struct {
	ProgramID uint32
	uniforms  map[string]int32
}

// NewProgram compiles both stages and links them.
func NewProgram(vertexSrc, fragmentSrc string) (*Program, error) {
	vs, err := compileShader(vertexSrc, VertexShaderType)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(fragmentSrc, FragmentShaderType)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(fs)

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.BindFragDataLocation(prog, 0, gl.Str("fragColor\x00"))
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(prog, logLength, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return nil, &CompileError{Stage: "link", Log: strings.TrimRight(log, "\x00")}
	}

	return &Program{ProgramID: prog, uniforms: make(map[string]int32)}, nil
}

// Use makes p the current program.
func (p *Program) Use() {
	gl.UseProgram(p.ProgramID)
}

// Delete releases the GL program.
func (p *Program) Delete() {
	if p.ProgramID != 0 {
		gl.DeleteProgram(p.ProgramID)
		p.ProgramID = 0
	}
}

func (p *Program) location(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.ProgramID, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

// SetFloat sets a float uniform on the current program.
func (p *Program) SetFloat(name string, v float64) {
	gl.Uniform1f(p.location(name), float32(v))
}

func (p *Program) SetBool(name string, v bool) {
	if v {
		p.SetFloat(name, 1)
	} else {
		p.SetFloat(name, 0)
	}
}

func (p *Program) SetInt(name string, v int32) {
	gl.Uniform1i(p.location(name), v)
}

func (p *Program) SetVec2(name string, x, y float64) {
	gl.Uniform2f(p.location(name), float32(x), float32(y))
}

func (p *Program) SetVec3(name string, v [3]float64) {
	gl.Uniform3f(p.location(name), float32(v[0]), float32(v[1]), float32(v[2]))
}

func (p *Program) SetVec4(name string, v mgl32.Vec4) {
	gl.Uniform4f(p.location(name), v[0], v[1], v[2], v[3])
}

func (p *Program) SetMat3(name string, m mgl32.Mat3) {
	gl.UniformMatrix3fv(p.location(name), 1, false, &m[0])
}
