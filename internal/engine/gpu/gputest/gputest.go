// Package gputest provides a recording gpu.Device for tests. It keeps
// resources in memory, records every draw, and simulates brush accumulation
// into mask framebuffers: each six-vertex quad drawn with a layout carrying
// aLayer and aIntensity adds (or, with subtractive blending, removes) its
// intensity on that layer, saturating to [0, 255].
package gputest

import (
	"fmt"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// Draw is one recorded draw call.
type Draw struct {
	Shader        string
	Blend         gpu.BlendMode
	Target        *Framebuffer
	First         int
	Count         int
	InstanceCount int
	Vertices      []float32
	Layout        gpu.Layout
}

// Device is an in-memory gpu.Device.
type Device struct {
	Draws        []Draw
	Textures     []*Texture
	Framebuffers []*Framebuffer
	Buffers      []*VertexBuffer
	Shaders      []*Shader
	Blend        gpu.BlendMode
	DepthTest    bool
	DepthWrite   bool
	FaceCull     bool
	Clears       int

	bound []*Framebuffer
}

var _ gpu.Device = (*Device)(nil)

// New returns an empty recording device.
func New() *Device {
	return &Device{DepthTest: true, DepthWrite: true}
}

// Reset drops recorded draws but keeps resources.
func (d *Device) Reset() {
	d.Draws = nil
	d.Clears = 0
}

// DrawsWith returns recorded draws issued with the named shader.
func (d *Device) DrawsWith(shader string) []Draw {
	var out []Draw
	for _, dr := range d.Draws {
		if dr.Shader == shader {
			out = append(out, dr)
		}
	}
	return out
}

// Bound returns the framebuffer currently bound, or nil for the screen.
func (d *Device) Bound() *Framebuffer {
	if len(d.bound) == 0 {
		return nil
	}
	return d.bound[len(d.bound)-1]
}

func (d *Device) CreateTexture(width, height int) (gpu.Texture, error) {
	t := &Texture{width: width, height: height, layers: 1, Pix: make([]byte, width*height*4)}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) CreateFloatTexture(width, height int) (gpu.Texture, error) {
	t := &Texture{width: width, height: height, layers: 1, Floats: make([]float32, width*height*4)}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) CreateTextureArray(width, height int, layers [][]byte) (gpu.Texture, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("texture array: no layers")
	}
	t := &Texture{width: width, height: height, layers: len(layers)}
	for i, l := range layers {
		if len(l) != width*height*4 {
			return nil, fmt.Errorf("%w: layer %d", gpu.ErrDataSize, i)
		}
		t.Pix = append(t.Pix, l...)
	}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) CreateFramebuffer(width, height, targets int) (gpu.Framebuffer, error) {
	if targets < 1 {
		return nil, fmt.Errorf("framebuffer: %d targets", targets)
	}
	fb := &Framebuffer{dev: d, width: width, height: height}
	for i := 0; i < targets; i++ {
		fb.targets = append(fb.targets, &Texture{width: width, height: height, layers: 1, Pix: make([]byte, width*height*4)})
	}
	d.Framebuffers = append(d.Framebuffers, fb)
	return fb, nil
}

func (d *Device) CreateVertexBuffer(layout gpu.Layout, capacity int) (gpu.VertexBuffer, error) {
	if layout.Stride() == 0 {
		return nil, fmt.Errorf("vertex buffer: empty layout")
	}
	vb := &VertexBuffer{layout: layout, capacity: capacity}
	d.Buffers = append(d.Buffers, vb)
	return vb, nil
}

func (d *Device) CreateShader(name, vertexSrc, fragmentSrc string) (gpu.Shader, error) {
	if vertexSrc == "" || fragmentSrc == "" {
		return nil, fmt.Errorf("shader %s: empty source", name)
	}
	s := &Shader{
		name:     name,
		Vertex:   vertexSrc,
		Fragment: fragmentSrc,
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string][]float32),
		Matrices: make(map[string][16]float32),
		Textures: make(map[string]gpu.Texture),
	}
	d.Shaders = append(d.Shaders, s)
	return s, nil
}

func (d *Device) SetBlendMode(mode gpu.BlendMode) { d.Blend = mode }
func (d *Device) SetDepthTest(enabled bool) { d.DepthTest = enabled }
func (d *Device) SetDepthWrite(enabled bool) { d.DepthWrite = enabled }
func (d *Device) SetFaceCull(enabled bool) { d.FaceCull = enabled }
func (d *Device) Viewport(x, y, width, height int) {}
func (d *Device) Clear(r, g, b, a float32) { d.Clears++ }

func (d *Device) DrawBatch(s gpu.Shader, vb gpu.VertexBuffer, first, count int, prim gpu.Primitive) {
	if count <= 0 {
		return
	}
	buf := vb.(*VertexBuffer)
	stride := buf.layout.Stride()
	verts := append([]float32(nil), buf.Data[first*stride:(first+count)*stride]...)
	dr := Draw{
		Shader:   s.Name(),
		Blend:    d.Blend,
		Target:   d.Bound(),
		First:    first,
		Count:    count,
		Vertices: verts,
		Layout:   buf.layout,
	}
	d.Draws = append(d.Draws, dr)
	if dr.Target != nil {
		dr.Target.accumulate(dr, s.(*Shader))
	}
}

func (d *Device) DrawInstanced(s gpu.Shader, vb gpu.VertexBuffer, count int, instances gpu.VertexBuffer, instanceCount int) {
	if count <= 0 || instanceCount <= 0 {
		return
	}
	inst := instances.(*VertexBuffer)
	stride := inst.layout.Stride()
	d.Draws = append(d.Draws, Draw{
		Shader:        s.Name(),
		Blend:         d.Blend,
		Target:        d.Bound(),
		Count:         count,
		InstanceCount: instanceCount,
		Vertices:      append([]float32(nil), inst.Data[:instanceCount*stride]...),
		Layout:        inst.layout,
	})
}

// Texture is an in-memory texture.
type Texture struct {
	width, height, layers int
	Pix                   []byte
	Floats                []float32
	Uploads               int
	Destroyed             bool
}

func (t *Texture) Size() (int, int) { return t.width, t.height }
func (t *Texture) Layers() int { return t.layers }

func (t *Texture) SetData(pix []byte, width, height int) error {
	if pix != nil && len(pix) != width*height*4 {
		return fmt.Errorf("%w: %d bytes", gpu.ErrDataSize, len(pix))
	}
	t.width, t.height = width, height
	t.Pix = make([]byte, width*height*4)
	copy(t.Pix, pix)
	t.Uploads++
	return nil
}

func (t *Texture) SetFloatData(data []float32, width, height int) error {
	if data != nil && len(data) != width*height*4 {
		return fmt.Errorf("%w: %d floats", gpu.ErrDataSize, len(data))
	}
	t.width, t.height = width, height
	t.Floats = make([]float32, width*height*4)
	copy(t.Floats, data)
	t.Uploads++
	return nil
}

func (t *Texture) Data() ([]byte, error) {
	return append([]byte(nil), t.Pix...), nil
}

func (t *Texture) Destroy() { t.Destroyed = true }

// Framebuffer is an in-memory framebuffer.
type Framebuffer struct {
	dev           *Device
	width, height int
	targets       []*Texture
	Binds         int
	Clears        int
	Destroyed     bool

	mask map[int32]int32
}

func (f *Framebuffer) Size() (int, int) { return f.width, f.height }
func (f *Framebuffer) Targets() int { return len(f.targets) }
func (f *Framebuffer) Texture(i int) gpu.Texture { return f.targets[i] }
func (f *Framebuffer) Destroy() { f.Destroyed = true }

func (f *Framebuffer) Bind(clear bool) {
	f.Binds++
	if clear {
		f.Clears++
		f.mask = nil
	}
	f.dev.bound = append(f.dev.bound, f)
}

func (f *Framebuffer) Unbind() {
	if n := len(f.dev.bound); n > 0 && f.dev.bound[n-1] == f {
		f.dev.bound = f.dev.bound[:n-1]
	}
}

// MaskLevel returns the simulated accumulated intensity of a layer.
func (f *Framebuffer) MaskLevel(layer int) int32 {
	return f.mask[int32(layer)]
}

// SetMaskLevel seeds the simulated intensity of a layer.
func (f *Framebuffer) SetMaskLevel(layer int, v int32) {
	if f.mask == nil {
		f.mask = make(map[int32]int32)
	}
	f.mask[int32(layer)] = v
}

func (f *Framebuffer) accumulate(dr Draw, s *Shader) {
	layerOff := dr.Layout.Offset("aLayer")
	intensityOff := dr.Layout.Offset("aIntensity")
	if layerOff < 0 || intensityOff < 0 {
		return
	}
	if s.Bools["uInitPass"] {
		f.mask = nil
		return
	}
	sign := int32(1)
	switch dr.Blend {
	case gpu.BlendAdditive:
	case gpu.BlendSubtractive:
		sign = -1
	default:
		return
	}
	stride := dr.Layout.Stride()
	for q := 0; q+6 <= dr.Count; q += 6 {
		v := dr.Vertices[q*stride:]
		layer := gpu.BitsInt(v[layerOff])
		v0 := f.MaskLevel(int(layer)) + sign*gpu.BitsInt(v[intensityOff])
		if v0 < 0 {
			v0 = 0
		}
		if v0 > 255 {
			v0 = 255
		}
		f.SetMaskLevel(int(layer), v0)
	}
}

// VertexBuffer keeps the last uploaded vertices.
type VertexBuffer struct {
	layout    gpu.Layout
	capacity  int
	Data      []float32
	Count     int
	Uploads   int
	Destroyed bool
}

func (vb *VertexBuffer) Layout() gpu.Layout { return vb.layout }
func (vb *VertexBuffer) Capacity() int { return vb.capacity }
func (vb *VertexBuffer) Destroy() { vb.Destroyed = true }

func (vb *VertexBuffer) SetData(data []float32, count int) error {
	if count > vb.capacity {
		return fmt.Errorf("%w: %d vertices into %d", gpu.ErrBufferOverflow, count, vb.capacity)
	}
	n := count * vb.layout.Stride()
	if n > len(data) {
		return fmt.Errorf("%w: %d floats for %d vertices", gpu.ErrDataSize, len(data), count)
	}
	if len(vb.Data) < vb.capacity*vb.layout.Stride() {
		grown := make([]float32, vb.capacity*vb.layout.Stride())
		copy(grown, vb.Data)
		vb.Data = grown
	}
	copy(vb.Data, data[:n])
	vb.Count = count
	vb.Uploads++
	return nil
}

// Shader records its sources and uniform values.
type Shader struct {
	name      string
	Vertex    string
	Fragment  string
	Bools     map[string]bool
	Ints      map[string]int32
	Floats    map[string][]float32
	Matrices  map[string][16]float32
	Textures  map[string]gpu.Texture
	Destroyed bool
}

func (s *Shader) Name() string { return s.name }
func (s *Shader) SetBool(name string, v bool) { s.Bools[name] = v }
func (s *Shader) SetInt(name string, v int32) { s.Ints[name] = v }
func (s *Shader) SetFloat(name string, v float32) { s.Floats[name] = []float32{v} }
func (s *Shader) SetVec(name string, v ...float32) { s.Floats[name] = append([]float32(nil), v...) }
func (s *Shader) SetMatrix(name string, m [16]float32) { s.Matrices[name] = m }
func (s *Shader) SetTexture(name string, tex gpu.Texture) { s.Textures[name] = tex }
func (s *Shader) Destroy() { s.Destroyed = true }

func (s *Shader) SetVecArray(name string, v []float32, components int) {
	s.Floats[name] = append([]float32(nil), v...)
}
