// Package ui hosts the ImGui backend of the inspector tool and small widgets
// that show engine textures.
package ui

import (
	"github.com/AllenDang/cimgui-go/backend"
	"github.com/AllenDang/cimgui-go/backend/sdlbackend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
)

// Backend wraps the ImGui SDL backend.
type Backend struct {
	backend backend.Backend[sdlbackend.SDLWindowFlags]
	width   int
	height  int
}

// NewBackend opens the ImGui window and loads GL.
func NewBackend(title string, width, height int) (*Backend, error) {
	b := &Backend{width: width, height: height}

	var err error
	b.backend, err = backend.CreateBackend(sdlbackend.NewSDLBackend())
	if err != nil {
		return nil, errors.Wrap(err, "creating imgui backend")
	}
	b.backend.SetBgColor(imgui.NewVec4(0.1, 0.1, 0.12, 1.0))
	b.backend.CreateWindow(title, width, height)

	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "init opengl")
	}
	return b, nil
}

// Run enters the render loop; frame is called once per frame.
func (b *Backend) Run(frame func()) {
	b.backend.Run(frame)
}

// SetWindowTitle updates the window title.
func (b *Backend) SetWindowTitle(title string) {
	b.backend.SetWindowTitle(title)
}

// WorkArea returns the main viewport work area.
func WorkArea() (x, y, width, height float32) {
	vp := imgui.MainViewport()
	pos, size := vp.WorkPos(), vp.WorkSize()
	return pos.X, pos.Y, size.X, size.Y
}

// glTexture is implemented by OpenGL backend textures.
type glTexture interface {
	ID() uint32
}

// Image draws tex at the given size, flipped vertically for GL targets.
// Textures of other backends draw nothing and report false.
func Image(tex gpu.Texture, width, height float32) bool {
	t, ok := tex.(glTexture)
	if !ok {
		return false
	}
	ref := imgui.NewTextureRefTextureID(imgui.TextureID(t.ID()))
	imgui.ImageWithBgV(*ref,
		imgui.NewVec2(width, height),
		imgui.NewVec2(0, 1),
		imgui.NewVec2(1, 0),
		imgui.NewVec4(0.15, 0.15, 0.15, 1),
		imgui.NewVec4(1, 1, 1, 1),
	)
	return true
}

// IsKeyPressed reports whether key went down this frame.
func IsKeyPressed(key imgui.Key) bool {
	return imgui.IsKeyChordPressed(imgui.KeyChord(key))
}
