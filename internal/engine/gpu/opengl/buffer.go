package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// VertexBuffer is a VBO with a VAO describing its layout.
type VertexBuffer struct {
	vao      uint32
	vbo      uint32
	layout   gpu.Layout
	capacity int
}

var _ gpu.VertexBuffer = (*VertexBuffer)(nil)

func newVertexBuffer(layout gpu.Layout, capacity int) *VertexBuffer {
	vb := &VertexBuffer{layout: layout, capacity: capacity}

	gl.GenVertexArrays(1, &vb.vao)
	gl.GenBuffers(1, &vb.vbo)

	gl.BindVertexArray(vb.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vb.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, capacity*layout.Stride()*4, nil, gl.DYNAMIC_DRAW)
	if !layout.Instanced {
		vb.pointers(0)
	}
	gl.BindVertexArray(0)

	return vb
}

func (vb *VertexBuffer) Layout() gpu.Layout { return vb.layout }

func (vb *VertexBuffer) Capacity() int { return vb.capacity }

// SetData uploads the first count vertices.
func (vb *VertexBuffer) SetData(data []float32, count int) error {
	if count > vb.capacity {
		return fmt.Errorf("%w: %d vertices into %d", gpu.ErrBufferOverflow, count, vb.capacity)
	}
	n := count * vb.layout.Stride()
	if n > len(data) {
		return fmt.Errorf("%w: %d floats for %d vertices", gpu.ErrDataSize, len(data), count)
	}
	if n == 0 {
		return nil
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, vb.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, n*4, gl.Ptr(data[:n]))
	return nil
}

func (vb *VertexBuffer) Destroy() {
	if vb.vao != 0 {
		gl.DeleteVertexArrays(1, &vb.vao)
		vb.vao = 0
	}
	if vb.vbo != 0 {
		gl.DeleteBuffers(1, &vb.vbo)
		vb.vbo = 0
	}
}

// pointers sets attribute pointers on the bound VAO.
func (vb *VertexBuffer) pointers(divisor uint32) {
	stride := int32(vb.layout.Stride() * 4)
	offset := 0
	for i, a := range vb.layout.Attributes {
		loc := uint32(vb.layout.Base + i)
		gl.EnableVertexAttribArray(loc)
		if a.Integer {
			gl.VertexAttribIPointerWithOffset(loc, int32(a.Components), gl.INT, stride, uintptr(offset*4))
		} else {
			gl.VertexAttribPointerWithOffset(loc, int32(a.Components), gl.FLOAT, false, stride, uintptr(offset*4))
		}
		gl.VertexAttribDivisor(loc, divisor)
		offset += a.Components
	}
}

// attach binds this buffer's attributes into the currently bound VAO.
func (vb *VertexBuffer) attach(divisor uint32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, vb.vbo)
	vb.pointers(divisor)
}

func (vb *VertexBuffer) detach() {
	for i := range vb.layout.Attributes {
		gl.DisableVertexAttribArray(uint32(vb.layout.Base + i))
	}
}
