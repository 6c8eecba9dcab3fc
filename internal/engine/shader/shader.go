// Package shader holds the engine's GLSL sources and compiles them into GL
// programs. Array sizes are injected as #define lines after the #version
// directive so the Go side and the GLSL side agree on limits.
package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// Defines maps preprocessor names to values.
type Defines map[string]int

// WithDefines inserts one #define per entry after the #version line of src,
// in name order. Sources without a #version line get the defines first.
func WithDefines(src string, defs Defines) string {
	if len(defs) == 0 {
		return src
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "#define %s %d\n", name, defs[name])
	}

	head, rest := "", src
	if strings.HasPrefix(src, "#version") {
		if i := strings.IndexByte(src, '\n'); i >= 0 {
			head, rest = src[:i+1], src[i+1:]
		} else {
			head, rest = src+"\n", ""
		}
	}
	return head + b.String() + rest
}

// Compile compiles and links a program. Errors name the program and stage
// and carry the driver's info log.
func Compile(name, vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileStage(name, "vertex", gl.VERTEX_SHADER, vertexSrc)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)

	fs, err := compileStage(name, "fragment", gl.FRAGMENT_SHADER, fragmentSrc)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		log := infoLog(program, gl.GetProgramiv, gl.GetProgramInfoLog)
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("shader %s: link: %s", name, log)
	}
	return program, nil
}

func compileStage(name, stage string, kind uint32, src string) (uint32, error) {
	s := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(s, 1, csrc, nil)
	free()
	gl.CompileShader(s)

	var status int32
	gl.GetShaderiv(s, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		log := infoLog(s, gl.GetShaderiv, gl.GetShaderInfoLog)
		gl.DeleteShader(s)
		return 0, fmt.Errorf("shader %s: %s stage: %s", name, stage, log)
	}
	return s, nil
}

func infoLog(obj uint32, param func(uint32, uint32, *int32), read func(uint32, int32, *int32, *uint8)) string {
	var n int32
	param(obj, gl.INFO_LOG_LENGTH, &n)
	if n <= 0 {
		return "no info log"
	}
	buf := make([]byte, n)
	read(obj, n, nil, &buf[0])
	return strings.TrimRight(string(buf), "\x00\n")
}

// Uniform returns the location of a uniform, or -1 when the program doesn't
// use it.
func Uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}
