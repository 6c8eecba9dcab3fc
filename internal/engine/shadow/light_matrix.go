// Package shadow renders the sun camera: light-space matrices fitted to the
// terrain and the depth target mesh instances are drawn into before the main
// pass.
package shadow

import (
	gomath "math"

	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// MinRadius bounds the focus-following light box from below.
const MinRadius = 16

func center(b terrain.Bounds) math.Vec3 {
	return b.Min.Lerp(b.Max, 0.5)
}

// radius is the half diagonal of b.
func radius(b terrain.Bounds) float32 {
	return b.Max.Sub(b.Min).Length() / 2
}

// lightUp picks an up vector that isn't parallel to toSun.
func lightUp(toSun math.Vec3) math.Vec3 {
	if float32(gomath.Abs(float64(toSun.Z))) > 0.99 {
		return math.Vec3{Y: 1}
	}
	return math.Vec3{Z: 1}
}

// DirectionalLightMatrix returns the sun camera view-projection covering
// all of b. toSun is the unit vector toward the sun.
func DirectionalLightMatrix(toSun math.Vec3, b terrain.Bounds) math.Mat4 {
	c := center(b)
	r := radius(b)
	dist := r * 2
	eye := c.Add(toSun.Scale(dist))

	view := math.LookAt(eye, c, lightUp(toSun))
	half := r * 1.1
	proj := math.Ortho(-half, half, -half, half, 0.1, dist+half)
	return proj.Mul(view)
}

// FocusLightMatrix returns a tighter sun camera centered on focus, sized by
// the camera distance and capped by the terrain bounds. Heights of b keep
// every terrain vertex inside the depth range.
func FocusLightMatrix(toSun math.Vec3, b terrain.Bounds, focus math.Vec3, cameraDistance float32) math.Mat4 {
	r := min(max(cameraDistance*1.5, MinRadius), radius(b))
	height := b.Max.Z - b.Min.Z

	c := math.Vec3{X: focus.X, Y: focus.Y, Z: center(b).Z}
	dist := r + height
	eye := c.Add(toSun.Scale(dist))

	view := math.LookAt(eye, c, lightUp(toSun))
	half := r * 1.1
	proj := math.Ortho(-half, half, -half, half, 0.1, dist+height+half)
	return proj.Mul(view)
}
