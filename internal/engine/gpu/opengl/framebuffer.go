package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-rts/internal/engine/framebuffer"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// Framebuffer adapts framebuffer.Framebuffer to gpu.Framebuffer.
type Framebuffer struct {
	fb      *framebuffer.Framebuffer
	targets []*targetTexture
	restore func()
}

var _ gpu.Framebuffer = (*Framebuffer)(nil)

func newFramebuffer(width, height, targets int) (*Framebuffer, error) {
	fb, err := framebuffer.NewMRT(int32(width), int32(height), targets)
	if err != nil {
		return nil, err
	}
	f := &Framebuffer{fb: fb}
	for i := 0; i < targets; i++ {
		f.targets = append(f.targets, &targetTexture{
			Texture: Texture{id: fb.Target(i), target: gl.TEXTURE_2D, width: width, height: height, layers: 1},
			owner:   fb,
			index:   i,
		})
	}
	return f, nil
}

func (f *Framebuffer) Size() (int, int) {
	w, h := f.fb.Size()
	return int(w), int(h)
}

func (f *Framebuffer) Targets() int { return f.fb.Targets() }

func (f *Framebuffer) Texture(i int) gpu.Texture { return f.targets[i] }

// Bind saves the current target and viewport, restored by Unbind.
func (f *Framebuffer) Bind(clear bool) {
	f.restore = f.fb.BindWithViewport()
	if clear {
		f.fb.Clear(0, 0, 0, 0)
	}
}

func (f *Framebuffer) Unbind() {
	if f.restore != nil {
		f.restore()
		f.restore = nil
		return
	}
	f.fb.Unbind()
}

func (f *Framebuffer) Destroy() { f.fb.Destroy() }

// targetTexture is a color attachment; readback goes through the framebuffer
// so rows come back top first.
type targetTexture struct {
	Texture
	owner *framebuffer.Framebuffer
	index int
}

func (t *targetTexture) Data() ([]byte, error) {
	return t.owner.ReadPixels(t.index), nil
}

func (t *targetTexture) SetData(pix []byte, width, height int) error {
	return fmt.Errorf("framebuffer target %d is render-only", t.index)
}

func (t *targetTexture) SetFloatData(data []float32, width, height int) error {
	return fmt.Errorf("framebuffer target %d is render-only", t.index)
}

// Destroy is a no-op; targets are released with their framebuffer.
func (t *targetTexture) Destroy() {}
