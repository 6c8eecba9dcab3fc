// Package gpu defines the rendering backend the terrain, mesh and skeleton
// renderers draw through. The OpenGL implementation lives in gpu/opengl and a
// recording fake for tests in gpu/gputest.
package gpu

import (
	"errors"
	"math"
)

// BlendMode selects the framebuffer blend equation for subsequent draws.
type BlendMode uint8

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
	BlendSubtractive
	BlendMultiply
)

func (m BlendMode) String() string {
	switch m {
	case BlendNone:
		return "none"
	case BlendAlpha:
		return "alpha"
	case BlendAdditive:
		return "additive"
	case BlendSubtractive:
		return "subtractive"
	case BlendMultiply:
		return "multiply"
	}
	return "unknown"
}

// Primitive is the topology of a draw call.
type Primitive uint8

const (
	Triangles Primitive = iota
	Lines
	Points
)

// ErrBufferOverflow is returned when more vertices are written than a buffer holds.
var ErrBufferOverflow = errors.New("vertex buffer overflow")

// ErrDataSize is returned when uploaded data does not match the declared size.
var ErrDataSize = errors.New("data size mismatch")

// Attribute is one vertex attribute. Integer attributes are stored in the
// float stream as raw bits (see IntBits).
type Attribute struct {
	Name       string
	Components int
	Integer    bool
}

// Layout describes an interleaved vertex stream. Attribute i binds to
// shader location Base+i.
type Layout struct {
	Attributes []Attribute
	Instanced  bool
	Base       int
}

// Stride returns the number of float32 slots per vertex.
func (l Layout) Stride() int {
	n := 0
	for _, a := range l.Attributes {
		n += a.Components
	}
	return n
}

// Offset returns the float offset of the named attribute, or -1.
func (l Layout) Offset(name string) int {
	n := 0
	for _, a := range l.Attributes {
		if a.Name == name {
			return n
		}
		n += a.Components
	}
	return -1
}

// IntBits stores an int32 in a float32 slot without conversion.
func IntBits(v int32) float32 {
	return math.Float32frombits(uint32(v))
}

// BitsInt reads an int32 stored with IntBits.
func BitsInt(f float32) int32 {
	return int32(math.Float32bits(f))
}

// Texture is a 2D texture or a 2D texture array.
type Texture interface {
	Size() (width, height int)
	Layers() int
	// SetData uploads 8-bit RGBA pixels.
	SetData(pix []byte, width, height int) error
	// SetFloatData uploads RGBA32F texels.
	SetFloatData(data []float32, width, height int) error
	// Data reads back 8-bit RGBA pixels, top row first.
	Data() ([]byte, error)
	Destroy()
}

// Framebuffer is an offscreen target with one or more color attachments.
type Framebuffer interface {
	Size() (width, height int)
	Targets() int
	Texture(i int) Texture
	// Bind makes the framebuffer current, clearing its targets if clear is set.
	Bind(clear bool)
	Unbind()
	Destroy()
}

// VertexBuffer holds interleaved vertices described by a Layout.
type VertexBuffer interface {
	Layout() Layout
	Capacity() int
	// SetData uploads the first count vertices of data.
	SetData(data []float32, count int) error
	Destroy()
}

// Shader is a linked program with named uniforms.
type Shader interface {
	Name() string
	SetBool(name string, v bool)
	SetInt(name string, v int32)
	SetFloat(name string, v float32)
	SetVec(name string, v ...float32)
	SetVecArray(name string, v []float32, components int)
	SetMatrix(name string, m [16]float32)
	SetTexture(name string, tex Texture)
	Destroy()
}

// Device creates resources and issues draws.
type Device interface {
	CreateTexture(width, height int) (Texture, error)
	CreateFloatTexture(width, height int) (Texture, error)
	CreateTextureArray(width, height int, layers [][]byte) (Texture, error)
	CreateFramebuffer(width, height, targets int) (Framebuffer, error)
	CreateVertexBuffer(layout Layout, capacity int) (VertexBuffer, error)
	CreateShader(name, vertexSrc, fragmentSrc string) (Shader, error)

	SetBlendMode(mode BlendMode)
	SetDepthTest(enabled bool)
	SetDepthWrite(enabled bool)
	SetFaceCull(enabled bool)
	Viewport(x, y, width, height int)
	Clear(r, g, b, a float32)

	DrawBatch(shader Shader, vb VertexBuffer, first, count int, prim Primitive)
	DrawInstanced(shader Shader, vb VertexBuffer, count int, instances VertexBuffer, instanceCount int)
}
