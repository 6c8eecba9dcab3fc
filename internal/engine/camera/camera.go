// Package camera provides the RTS camera: an orbit around a focus point on
// the terrain, looking down the map, in render space (Z up).
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

var up = math.Vec3{Z: 1}

// RTSCamera orbits a focus point. At yaw 0 it sits south of the focus, so
// the top of the map is at the top of the screen.
type RTSCamera struct {
	Focus math.Vec3

	// Spherical coordinates around Focus
	Distance float32
	Pitch    float32 // elevation above the ground plane, radians
	Yaw      float32 // rotation around Z, radians

	MinDistance, MaxDistance float32
	MinPitch, MaxPitch       float32

	FOV       float32 // vertical, radians
	Near, Far float32

	ScreenWidth, ScreenHeight int

	DragSensitivity float32
	ZoomSensitivity float32
	PanSpeed        float32
}

// NewRTSCamera returns a camera for a screen of the given size.
func NewRTSCamera(width, height int) *RTSCamera {
	return &RTSCamera{
		Distance:        60,
		Pitch:           1.0,
		MinDistance:     10,
		MaxDistance:     400,
		MinPitch:        0.3,
		MaxPitch:        1.5,
		FOV:             gomath.Pi / 4,
		Near:            1,
		Far:             2000,
		ScreenWidth:     width,
		ScreenHeight:    height,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		PanSpeed:        0.02,
	}
}

func sincos(a float32) (float32, float32) {
	s, c := gomath.Sincos(float64(a))
	return float32(s), float32(c)
}

// Position returns the eye position.
func (c *RTSCamera) Position() math.Vec3 {
	sp, cp := sincos(c.Pitch)
	sy, cy := sincos(c.Yaw)
	return c.Focus.Add(math.Vec3{
		X: c.Distance * cp * sy,
		Y: c.Distance * cp * cy,
		Z: c.Distance * sp,
	})
}

// ViewMatrix returns the view matrix.
func (c *RTSCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Focus, up)
}

// Aspect returns the screen aspect ratio.
func (c *RTSCamera) Aspect() float32 {
	if c.ScreenHeight <= 0 {
		return 1
	}
	return float32(c.ScreenWidth) / float32(c.ScreenHeight)
}

// ProjectionMatrix returns the perspective projection.
func (c *RTSCamera) ProjectionMatrix() math.Mat4 {
	return math.Perspective(c.FOV, c.Aspect(), c.Near, c.Far)
}

// ViewProj returns projection * view.
func (c *RTSCamera) ViewProj() math.Mat4 {
	return c.ProjectionMatrix().Mul(c.ViewMatrix())
}

// SetScreen updates the screen size after a resize.
func (c *RTSCamera) SetScreen(width, height int) {
	c.ScreenWidth, c.ScreenHeight = width, height
}

// HandleDrag rotates the camera by a mouse drag delta in pixels.
func (c *RTSCamera) HandleDrag(dx, dy float32) {
	c.Yaw -= dx * c.DragSensitivity
	c.Pitch = clamp(c.Pitch+dy*c.DragSensitivity, c.MinPitch, c.MaxPitch)
}

// HandleZoom moves the camera toward the focus for positive deltas.
func (c *RTSCamera) HandleZoom(delta float32) {
	c.Distance = clamp(c.Distance-delta*c.Distance*c.ZoomSensitivity, c.MinDistance, c.MaxDistance)
}

// Pan moves the focus across the ground plane. forward moves toward the top
// of the screen, right toward its right edge. Speed scales with distance.
func (c *RTSCamera) Pan(forward, right float32) {
	speed := c.Distance * c.PanSpeed
	sy, cy := sincos(c.Yaw)
	// Ground projections of the view and right directions.
	fwd := math.Vec3{X: -sy, Y: -cy}
	rgt := math.Vec3{X: -cy, Y: sy}
	c.Focus = c.Focus.Add(fwd.Scale(forward * speed)).Add(rgt.Scale(right * speed))
}

// FitToBounds centers the camera over b and backs off far enough to see
// most of it.
func (c *RTSCamera) FitToBounds(b terrain.Bounds) {
	c.Focus = b.Min.Lerp(b.Max, 0.5)
	size := max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	c.Distance = clamp(size*0.5, c.MinDistance, c.MaxDistance)
	c.Yaw = 0
}

// FocusOn moves the focus to a world position.
func (c *RTSCamera) FocusOn(p terrain.WPos) {
	c.Focus = p.RenderPos()
}

// Viewport returns the world-unit rectangle of the ground plane through the
// focus that the screen covers. Screen corners above the horizon are clipped
// at the far plane.
func (c *RTSCamera) Viewport() (left, top, right, bottom int) {
	inv := c.ViewProj().Inverse()
	first := true
	for _, ndc := range [4][2]float32{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
		near := unproject(inv, ndc[0], ndc[1], -1)
		far := unproject(inv, ndc[0], ndc[1], 1)
		hit := far
		if dz := far.Z - near.Z; dz < 0 {
			t := (c.Focus.Z - near.Z) / dz
			if t >= 0 && t <= 1 {
				hit = near.Lerp(far, t)
			}
		}
		w := terrain.WorldPos(hit)
		if first {
			left, right, top, bottom = w.X, w.X, w.Y, w.Y
			first = false
			continue
		}
		left, right = min(left, w.X), max(right, w.X)
		top, bottom = min(top, w.Y), max(bottom, w.Y)
	}
	return left, top, right, bottom
}

func unproject(inv math.Mat4, x, y, z float32) math.Vec3 {
	p := inv.MulVec4(math.Vec4{x, y, z, 1})
	return p.XYZ().Scale(1 / p[3])
}

func clamp(x, lo, hi float32) float32 {
	return max(lo, min(hi, x))
}
