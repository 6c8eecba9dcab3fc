package opengl

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// Texture is a GL texture object.
type Texture struct {
	id     uint32
	target uint32
	width  int
	height int
	layers int
	float  bool
}

var _ gpu.Texture = (*Texture)(nil)

func newTexture(target uint32, width, height, layers int, float bool) *Texture {
	t := &Texture{target: target, width: width, height: height, layers: layers, float: float}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(target, t.id)
	filter := int32(gl.LINEAR)
	if float {
		filter = gl.NEAREST
	}
	gl.TexParameteri(target, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(target, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	return t
}

// ID returns the GL texture name.
func (t *Texture) ID() uint32 { return t.id }

func (t *Texture) Size() (int, int) { return t.width, t.height }

func (t *Texture) Layers() int { return t.layers }

// SetData uploads RGBA8 pixels; nil allocates storage only.
func (t *Texture) SetData(pix []byte, width, height int) error {
	if pix != nil && len(pix) != width*height*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d RGBA", gpu.ErrDataSize, len(pix), width, height)
	}
	var ptr unsafe.Pointer
	if len(pix) > 0 {
		ptr = gl.Ptr(pix)
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, ptr)
	t.width, t.height, t.float = width, height, false
	return nil
}

// SetFloatData uploads RGBA32F texels; nil allocates storage only.
func (t *Texture) SetFloatData(data []float32, width, height int) error {
	if data != nil && len(data) != width*height*4 {
		return fmt.Errorf("%w: %d floats for %dx%d RGBA", gpu.ErrDataSize, len(data), width, height)
	}
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = gl.Ptr(data)
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	if t.float && t.width == width && t.height == height && ptr != nil {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(width), int32(height), gl.RGBA, gl.FLOAT, ptr)
		return nil
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(width), int32(height), 0, gl.RGBA, gl.FLOAT, ptr)
	t.width, t.height, t.float = width, height, true
	return nil
}

// Data reads back the first layer as RGBA8.
func (t *Texture) Data() ([]byte, error) {
	if t.target != gl.TEXTURE_2D {
		return nil, fmt.Errorf("texture readback: only 2D textures are supported")
	}
	pix := make([]byte, t.width*t.height*4)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))
	return pix, nil
}

func (t *Texture) Destroy() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

// bind attaches the texture to a texture unit.
func (t *Texture) bind(unit int) {
	gl.ActiveTexture(uint32(gl.TEXTURE0 + unit))
	gl.BindTexture(t.target, t.id)
}
