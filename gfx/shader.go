package gfx

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// ShaderType tells compileShader what type of shader it's creating.
type ShaderType int

// Types of shaders
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
)

// CompileError carries the driver's info log for a shader that failed to
// compile or a program that failed to link.
type CompileError struct {
	Stage string
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, strings.TrimSpace(e.Log))
}

func compileShader(src string, typ ShaderType) (uint32, error) {
	var glShaderType uint32
	stage := "vertex"
	switch typ {
	case VertexShaderType:
		glShaderType = gl.VERTEX_SHADER
	case FragmentShaderType:
		glShaderType = gl.FRAGMENT_SHADER
		stage = "fragment"
	}

	shaderID := gl.CreateShader(glShaderType)

	csources, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shaderID, 1, csources, nil)
	free()
	gl.CompileShader(shaderID)

	var status int32
	gl.GetShaderiv(shaderID, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shaderID, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shaderID, logLength, nil, gl.Str(log))
		gl.DeleteShader(shaderID)

		return 0, &CompileError{Stage: stage, Log: strings.TrimRight(log, "\x00")}
	}

	return shaderID, nil
}
