// Package opengl implements the gpu backend on OpenGL 4.1 core.
// All calls must happen on the thread owning the GL context.
package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

// Device is the OpenGL gpu.Device.
type Device struct {
	blend gpu.BlendMode
}

var _ gpu.Device = (*Device)(nil)

// New initializes GL function pointers and default state.
// Must be called AFTER the OpenGL context is created.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	d := &Device{blend: gpu.BlendNone}
	d.SetBlendMode(gpu.BlendAlpha)
	return d, nil
}

// CreateTexture creates an empty RGBA8 texture.
func (d *Device) CreateTexture(width, height int) (gpu.Texture, error) {
	t := newTexture(gl.TEXTURE_2D, width, height, 1, false)
	if err := t.SetData(nil, width, height); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// CreateFloatTexture creates an RGBA32F texture sampled with texelFetch.
func (d *Device) CreateFloatTexture(width, height int) (gpu.Texture, error) {
	t := newTexture(gl.TEXTURE_2D, width, height, 1, true)
	if err := t.SetFloatData(nil, width, height); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// CreateTextureArray uploads equally sized RGBA8 layers into a 2D texture array.
func (d *Device) CreateTextureArray(width, height int, layers [][]byte) (gpu.Texture, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("texture array: no layers")
	}
	for i, l := range layers {
		if len(l) != width*height*4 {
			return nil, fmt.Errorf("%w: texture array layer %d has %d bytes, want %d", gpu.ErrDataSize, i, len(l), width*height*4)
		}
	}

	t := newTexture(gl.TEXTURE_2D_ARRAY, width, height, len(layers), false)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, t.id)
	gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, gl.RGBA8, int32(width), int32(height), int32(len(layers)), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	for i, l := range layers {
		gl.TexSubImage3D(gl.TEXTURE_2D_ARRAY, 0, 0, 0, int32(i), int32(width), int32(height), 1, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(l))
	}
	gl.GenerateMipmap(gl.TEXTURE_2D_ARRAY)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.REPEAT)
	return t, nil
}

// CreateFramebuffer creates a framebuffer with targets RGBA8 color attachments.
func (d *Device) CreateFramebuffer(width, height, targets int) (gpu.Framebuffer, error) {
	return newFramebuffer(width, height, targets)
}

// CreateVertexBuffer allocates a dynamic buffer for capacity vertices.
func (d *Device) CreateVertexBuffer(layout gpu.Layout, capacity int) (gpu.VertexBuffer, error) {
	if layout.Stride() == 0 {
		return nil, fmt.Errorf("vertex buffer: empty layout")
	}
	return newVertexBuffer(layout, capacity), nil
}

// CreateShader compiles and links a program.
func (d *Device) CreateShader(name, vertexSrc, fragmentSrc string) (gpu.Shader, error) {
	return newShader(name, vertexSrc, fragmentSrc)
}

// SetBlendMode sets the blend equation for subsequent draws.
func (d *Device) SetBlendMode(mode gpu.BlendMode) {
	if mode == d.blend {
		return
	}
	d.blend = mode

	switch mode {
	case gpu.BlendNone:
		gl.Disable(gl.BLEND)
	case gpu.BlendAlpha:
		gl.Enable(gl.BLEND)
		gl.BlendEquation(gl.FUNC_ADD)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	case gpu.BlendAdditive:
		gl.Enable(gl.BLEND)
		gl.BlendEquation(gl.FUNC_ADD)
		gl.BlendFunc(gl.ONE, gl.ONE)
	case gpu.BlendSubtractive:
		gl.Enable(gl.BLEND)
		gl.BlendEquation(gl.FUNC_REVERSE_SUBTRACT)
		gl.BlendFunc(gl.ONE, gl.ONE)
	case gpu.BlendMultiply:
		gl.Enable(gl.BLEND)
		gl.BlendEquation(gl.FUNC_ADD)
		gl.BlendFunc(gl.DST_COLOR, gl.ZERO)
	}
}

func (d *Device) SetDepthTest(enabled bool) {
	if enabled {
		gl.Enable(gl.DEPTH_TEST)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
}

func (d *Device) SetDepthWrite(enabled bool) {
	gl.DepthMask(enabled)
}

func (d *Device) SetFaceCull(enabled bool) {
	if enabled {
		gl.Enable(gl.CULL_FACE)
	} else {
		gl.Disable(gl.CULL_FACE)
	}
}

func (d *Device) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (d *Device) Clear(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// DrawBatch draws count vertices starting at first.
func (d *Device) DrawBatch(s gpu.Shader, vb gpu.VertexBuffer, first, count int, prim gpu.Primitive) {
	if count <= 0 {
		return
	}
	sh := s.(*Shader)
	buf := vb.(*VertexBuffer)
	sh.use()
	gl.BindVertexArray(buf.vao)
	gl.DrawArrays(primitive(prim), int32(first), int32(count))
	gl.BindVertexArray(0)
}

// DrawInstanced draws count mesh vertices once per instance, sourcing
// per-instance attributes from instances.
func (d *Device) DrawInstanced(s gpu.Shader, vb gpu.VertexBuffer, count int, instances gpu.VertexBuffer, instanceCount int) {
	if count <= 0 || instanceCount <= 0 {
		return
	}
	sh := s.(*Shader)
	mesh := vb.(*VertexBuffer)
	inst := instances.(*VertexBuffer)
	sh.use()
	gl.BindVertexArray(mesh.vao)
	inst.attach(1)
	gl.DrawArraysInstanced(gl.TRIANGLES, 0, int32(count), int32(instanceCount))
	inst.detach()
	gl.BindVertexArray(0)
}

func primitive(p gpu.Primitive) uint32 {
	switch p {
	case gpu.Lines:
		return gl.LINES
	case gpu.Points:
		return gl.POINTS
	}
	return gl.TRIANGLES
}
