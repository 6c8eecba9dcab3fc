package shadow

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// DefaultResolution is the default shadow map edge.
const DefaultResolution = 2048

// Map is the sun camera target. Occluders write 1 - depth into the red
// channel, so the cleared target reads as "nothing in front".
type Map struct {
	dev        gpu.Device
	fb         gpu.Framebuffer
	resolution int
}

// NewMap creates a square shadow target.
func NewMap(dev gpu.Device, resolution int) (*Map, error) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	fb, err := dev.CreateFramebuffer(resolution, resolution, 1)
	if err != nil {
		return nil, errors.Wrap(err, "creating shadow map")
	}
	return &Map{dev: dev, fb: fb, resolution: resolution}, nil
}

// Resolution returns the target edge in texels.
func (m *Map) Resolution() int {
	return m.resolution
}

// Begin clears the target and binds it for the sun pass.
func (m *Map) Begin() {
	m.fb.Bind(true)
	m.dev.SetDepthTest(true)
	m.dev.SetDepthWrite(true)
}

// End restores the previous target.
func (m *Map) End() {
	m.fb.Unbind()
}

// Texture returns the shadow texture sampled by the terrain pass.
func (m *Map) Texture() gpu.Texture {
	return m.fb.Texture(0)
}

// Destroy releases the target.
func (m *Map) Destroy() {
	m.fb.Destroy()
}
