package opengl

import (
	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/shader"
)

// Shader is a linked GL program. Uniform values are applied immediately;
// textures are assigned units in the order they are first set.
type Shader struct {
	name      string
	program   uint32
	locations map[string]int32
	units     map[string]int
	textures  map[string]gpu.Texture
}

var _ gpu.Shader = (*Shader)(nil)

func newShader(name, vertexSrc, fragmentSrc string) (*Shader, error) {
	program, err := shader.Compile(name, vertexSrc, fragmentSrc)
	if err != nil {
		return nil, err
	}
	return &Shader{
		name:      name,
		program:   program,
		locations: make(map[string]int32),
		units:     make(map[string]int),
		textures:  make(map[string]gpu.Texture),
	}, nil
}

func (s *Shader) Name() string { return s.name }

func (s *Shader) location(name string) int32 {
	if loc, ok := s.locations[name]; ok {
		return loc
	}
	loc := shader.Uniform(s.program, name)
	s.locations[name] = loc
	return loc
}

func (s *Shader) SetBool(name string, v bool) {
	var i int32
	if v {
		i = 1
	}
	s.SetInt(name, i)
}

func (s *Shader) SetInt(name string, v int32) {
	gl.UseProgram(s.program)
	gl.Uniform1i(s.location(name), v)
}

func (s *Shader) SetFloat(name string, v float32) {
	gl.UseProgram(s.program)
	gl.Uniform1f(s.location(name), v)
}

func (s *Shader) SetVec(name string, v ...float32) {
	gl.UseProgram(s.program)
	loc := s.location(name)
	switch len(v) {
	case 1:
		gl.Uniform1f(loc, v[0])
	case 2:
		gl.Uniform2f(loc, v[0], v[1])
	case 3:
		gl.Uniform3f(loc, v[0], v[1], v[2])
	case 4:
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	}
}

func (s *Shader) SetVecArray(name string, v []float32, components int) {
	if len(v) == 0 || components <= 0 {
		return
	}
	gl.UseProgram(s.program)
	loc := s.location(name)
	count := int32(len(v) / components)
	switch components {
	case 1:
		gl.Uniform1fv(loc, count, &v[0])
	case 2:
		gl.Uniform2fv(loc, count, &v[0])
	case 3:
		gl.Uniform3fv(loc, count, &v[0])
	case 4:
		gl.Uniform4fv(loc, count, &v[0])
	case 16:
		gl.UniformMatrix4fv(loc, count, false, &v[0])
	}
}

func (s *Shader) SetMatrix(name string, m [16]float32) {
	gl.UseProgram(s.program)
	gl.UniformMatrix4fv(s.location(name), 1, false, &m[0])
}

// SetTexture records a texture for the sampler name; it is bound on use.
func (s *Shader) SetTexture(name string, tex gpu.Texture) {
	if _, ok := s.units[name]; !ok {
		unit := len(s.units)
		s.units[name] = unit
		gl.UseProgram(s.program)
		gl.Uniform1i(s.location(name), int32(unit))
	}
	s.textures[name] = tex
}

func (s *Shader) Destroy() {
	if s.program != 0 {
		gl.DeleteProgram(s.program)
		s.program = 0
	}
}

type binder interface {
	bind(unit int)
}

func (s *Shader) use() {
	gl.UseProgram(s.program)
	for name, tex := range s.textures {
		if b, ok := tex.(binder); ok {
			b.bind(s.units[name])
		}
	}
}
