// Package picking casts screen rays into render space and finds where they
// meet the terrain.
package picking

import (
	gomath "math"

	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// refineSteps is the number of bisection steps after the march finds a
// crossing.
const refineSteps = 12

// Ray is a half line in render space.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3 // normalized
}

// ScreenToRay converts pixel coordinates to a ray through the near and far
// planes. invViewProj is the inverse of the camera's view-projection.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj math.Mat4) Ray {
	ndcX := 2*screenX/viewportW - 1
	ndcY := 1 - 2*screenY/viewportH

	near := unproject(invViewProj, ndcX, ndcY, -1)
	far := unproject(invViewProj, ndcX, ndcY, 1)
	return Ray{Origin: near, Direction: far.Sub(near).Normalize()}
}

func unproject(inv math.Mat4, x, y, z float32) math.Vec3 {
	p := inv.MulVec4(math.Vec4{x, y, z, 1})
	if p[3] == 0 {
		return p.XYZ()
	}
	return p.XYZ().Scale(1 / p[3])
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// IntersectPlaneZ intersects the ray with the horizontal plane at height z.
func (r Ray) IntersectPlaneZ(z float32) (math.Vec3, bool) {
	if gomath.Abs(float64(r.Direction.Z)) < 1e-6 {
		return math.Vec3{}, false
	}
	t := (z - r.Origin.Z) / r.Direction.Z
	if t < 0 {
		return math.Vec3{}, false
	}
	return r.At(t), true
}

// IntersectBounds clips the ray against a box with the slab test. It returns
// the entry and exit distances; a ray starting inside enters at 0.
func (r Ray) IntersectBounds(b terrain.Bounds) (tmin, tmax float32, hit bool) {
	tmin, tmax = 0, float32(gomath.MaxFloat32)
	origin := [3]float32{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float32{r.Direction.X, r.Direction.Y, r.Direction.Z}
	lo := [3]float32{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float32{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo[i] - origin[i]) / dir[i]
		t2 := (hi[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmax < tmin {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

// above reports how far the point at distance d is above the terrain.
func above(r Ray, t *terrain.Terrain, d float32) float32 {
	p := r.At(d)
	return p.Z - float32(t.HeightAt(terrain.WorldPos(p)))/256
}

// Terrain returns the first world position where the ray meets the terrain
// surface. The ray is marched through the terrain bounds in steps of half a
// minicell and the crossing is refined by bisection.
func Terrain(r Ray, t *terrain.Terrain) (terrain.WPos, bool) {
	b := t.Bounds()
	// Flat maps have an empty Z slab.
	b.Max.Z += 1.0 / 256
	b.Min.Z -= 1.0 / 256
	tmin, tmax, ok := r.IntersectBounds(b)
	if !ok {
		return terrain.WPos{}, false
	}

	step := float32(terrain.MiniCellWidth) / 256 / 2
	prev := tmin
	if above(r, t, prev) <= 0 {
		return terrain.WorldPos(r.At(prev)), true
	}
	for d := tmin + step; ; d += step {
		d = min(d, tmax)
		if above(r, t, d) <= 0 {
			lo, hi := prev, d
			for i := 0; i < refineSteps; i++ {
				mid := (lo + hi) / 2
				if above(r, t, mid) > 0 {
					lo = mid
				} else {
					hi = mid
				}
			}
			p := terrain.WorldPos(r.At(hi))
			p.Z = t.HeightAt(p)
			return p, true
		}
		if d >= tmax {
			return terrain.WPos{}, false
		}
		prev = d
	}
}
