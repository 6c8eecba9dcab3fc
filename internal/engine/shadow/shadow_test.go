package shadow

import (
	"testing"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu/gputest"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

var bounds = terrain.Bounds{
	Min: math.Vec3{X: -40, Y: 0, Z: 0},
	Max: math.Vec3{X: 0, Y: 30, Z: 8},
}

func project(m math.Mat4, p math.Vec3) math.Vec3 {
	v := m.MulVec4(p.Vec4(1))
	return v.XYZ().Scale(1 / v[3])
}

func inClip(p math.Vec3) bool {
	return p.X >= -1 && p.X <= 1 && p.Y >= -1 && p.Y <= 1 && p.Z >= -1 && p.Z <= 1
}

func TestDirectionalLightMatrixCoversBounds(t *testing.T) {
	suns := []struct {
		name  string
		toSun math.Vec3
	}{
		{"oblique", math.Vec3{X: 0.5, Y: 0.5, Z: 0.7071}.Normalize()},
		{"zenith", math.Vec3{Z: 1}},
	}
	for _, s := range suns {
		t.Run(s.name, func(t *testing.T) {
			m := DirectionalLightMatrix(s.toSun, bounds)
			c := project(m, center(bounds))
			if c.X < -1e-4 || c.X > 1e-4 || c.Y < -1e-4 || c.Y > 1e-4 {
				t.Errorf("center projects to %v, want xy = 0", c)
			}
			for i := 0; i < 8; i++ {
				corner := math.Vec3{X: bounds.Min.X, Y: bounds.Min.Y, Z: bounds.Min.Z}
				if i&1 != 0 {
					corner.X = bounds.Max.X
				}
				if i&2 != 0 {
					corner.Y = bounds.Max.Y
				}
				if i&4 != 0 {
					corner.Z = bounds.Max.Z
				}
				if p := project(m, corner); !inClip(p) {
					t.Errorf("corner %v projects outside clip space: %v", corner, p)
				}
			}
		})
	}
}

func TestFocusLightMatrixCentersFocus(t *testing.T) {
	toSun := math.Vec3{X: 0.3, Y: -0.4, Z: 0.8}.Normalize()
	focus := math.Vec3{X: -10, Y: 20, Z: 4}
	m := FocusLightMatrix(toSun, bounds, focus, 5)

	p := project(m, focus)
	if p.X < -1e-4 || p.X > 1e-4 || p.Y < -1e-4 || p.Y > 1e-4 {
		t.Errorf("focus projects to %v, want xy = 0", p)
	}
	if !inClip(p) {
		t.Errorf("focus outside depth range: %v", p)
	}

	// A point outside the tight box is clipped.
	far := math.Vec3{X: -10, Y: 20 + 3*MinRadius, Z: 4}
	if inClip(project(m, far)) {
		t.Errorf("point %v beyond the light box is inside clip space", far)
	}
}

func TestMap(t *testing.T) {
	dev := gputest.New()
	m, err := NewMap(dev, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Resolution() != DefaultResolution {
		t.Errorf("Resolution() = %d, want %d", m.Resolution(), DefaultResolution)
	}

	dev.DepthTest = false
	m.Begin()
	fb := dev.Framebuffers[0]
	if fb.Binds != 1 || fb.Clears != 1 {
		t.Errorf("binds %d clears %d, want 1 and 1", fb.Binds, fb.Clears)
	}
	if !dev.DepthTest || !dev.DepthWrite {
		t.Error("sun pass must depth test and write")
	}
	if dev.Bound() != fb {
		t.Error("shadow target not bound")
	}
	m.End()
	if dev.Bound() != nil {
		t.Error("shadow target still bound after End")
	}
	if m.Texture() != fb.Texture(0) {
		t.Error("Texture() is not the target texture")
	}
	m.Destroy()
	if !fb.Destroyed {
		t.Error("target not destroyed")
	}
}
