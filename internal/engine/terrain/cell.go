package terrain

import (
	stdmath "math"

	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Texture coordinates of a cell's five vertices inside the cell.
var (
	uvM = math.Vec2{X: 0.5, Y: 0.5}
	uvT = math.Vec2{X: 0.5, Y: 0}
	uvB = math.Vec2{X: 0.5, Y: 1}
	uvL = math.Vec2{X: 1, Y: 0.5}
	uvR = math.Vec2{X: 0, Y: 0.5}
)

var up = math.Vec3{Z: 1}

// CellInfo describes one map cell after baking.
type CellInfo struct {
	// Cell is the (column, row) of the cell.
	Cell   math.Int2
	Center WPos
	// MiniHeight is the lowest of the five vertex heights.
	MiniHeight int

	// Vertex indices of the center and edge midpoints.
	M, T, B, L, R int

	// Minicell coordinates (column, row) of the four quadrants.
	MiniTL, MiniTR, MiniBL, MiniBR math.Int2

	Flat       bool
	AlmostFlat bool
	Ramp0      bool

	NormalTL, NormalTR, NormalBL, NormalBR, NormalM math.Vec3
	OrientTL, OrientTR, OrientBL, OrientBR, OrientM math.Quat

	// MinimapColors are the mean colors of the top-left and bottom-right
	// halves.
	MinimapColors [2]math.Vec3

	TileType    uint16
	TerrainType int
}

// Vertices returns the five vertex indices, center first.
func (c *CellInfo) Vertices() [5]int {
	return [5]int{c.M, c.T, c.B, c.L, c.R}
}

// MiniCells returns the four quadrant coordinates.
func (c *CellInfo) MiniCells() [4]math.Int2 {
	return [4]math.Int2{c.MiniTL, c.MiniTR, c.MiniBL, c.MiniBR}
}

// CalTBN returns the tangent frame of triangle (p0, p1, p2) with texture
// coordinates (uv0, uv1, uv2). Degenerate mappings fall back to the render
// axes.
func CalTBN(p0, p1, p2 math.Vec3, uv0, uv1, uv2 math.Vec2) TBN {
	e1, e2 := p1.Sub(p0), p2.Sub(p0)
	d1, d2 := uv1.Sub(uv0), uv2.Sub(uv0)
	n := e1.Cross(e2).Normalize()

	det := d1.X*d2.Y - d2.X*d1.Y
	if stdmath.Abs(float64(det)) < 1e-8 {
		return TBN{T: math.Vec3{X: 1}, B: math.Vec3{Y: 1}, N: n}
	}
	f := 1 / det
	t := e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(f)
	b := e2.Scale(d1.X).Sub(e1.Scale(d2.X)).Scale(f)
	return TBN{T: t.Normalize(), B: b.Normalize(), N: n}
}

// NormalizeTBN renormalizes an accumulated frame and makes T and B
// orthogonal to N.
func NormalizeTBN(f TBN) TBN {
	n := f.N.Normalize()
	if n == (math.Vec3{}) {
		n = up
	}
	t := f.T.Sub(n.Scale(n.Dot(f.T))).Normalize()
	if t == (math.Vec3{}) {
		t = math.Vec3{X: 1}
	}
	b := f.B.Sub(n.Scale(n.Dot(f.B))).Sub(t.Scale(t.Dot(f.B))).Normalize()
	if b == (math.Vec3{}) {
		b = n.Cross(t)
	}
	return TBN{T: t, B: b, N: n}
}

// logicNormal is the upward normal of world triangle (a, b, c).
func logicNormal(a, b, c WPos) math.Vec3 {
	ab := [3]float64{float64(b.X - a.X), float64(b.Y - a.Y), float64(b.Z - a.Z)}
	ac := [3]float64{float64(c.X - a.X), float64(c.Y - a.Y), float64(c.Z - a.Z)}
	n := [3]float64{
		ac[1]*ab[2] - ac[2]*ab[1],
		ac[2]*ab[0] - ac[0]*ab[2],
		ac[0]*ab[1] - ac[1]*ab[0],
	}
	l := stdmath.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if l == 0 {
		return up
	}
	return math.Vec3{X: float32(n[0] / l), Y: float32(n[1] / l), Z: float32(n[2] / l)}
}

// rampHeights returns the center, top, bottom, left and right heights of a
// cell at height level hs with the given ramp. ok is false for unknown ramps,
// which are treated as flat.
func rampHeights(ramp uint8, hs, step int) (h [5]int, ok bool) {
	base := hs * step
	half := (hs*2 + 1) * step / 2
	upper := (hs + 1) * step
	uppest := (hs + 2) * step

	switch ramp {
	case 0:
		return [5]int{base, base, base, base, base}, true
	case 1:
		return [5]int{half, base, upper, base, upper}, true
	case 2:
		return [5]int{half, base, upper, upper, base}, true
	case 3:
		return [5]int{half, upper, base, upper, base}, true
	case 4:
		return [5]int{half, upper, base, base, upper}, true
	case 5:
		return [5]int{upper, upper, upper, base, upper}, true
	case 6:
		return [5]int{base, base, base, upper, base}, true
	case 7:
		return [5]int{base, upper, base, base, base}, true
	case 8:
		return [5]int{base, base, base, base, upper}, true
	case 9:
		return [5]int{upper, base, upper, upper, upper}, true
	case 10:
		return [5]int{upper, upper, upper, upper, base}, true
	case 11:
		return [5]int{upper, upper, base, upper, upper}, true
	case 12:
		return [5]int{upper, upper, upper, base, upper}, true
	case 13:
		return [5]int{upper, base, uppest, upper, upper}, true
	case 14:
		return [5]int{upper, upper, upper, uppest, base}, true
	case 15:
		return [5]int{upper, uppest, base, upper, upper}, true
	case 16:
		return [5]int{upper, upper, upper, base, uppest}, true
	case 17:
		return [5]int{base, base, base, upper, upper}, true
	case 18:
		return [5]int{upper, upper, upper, base, base}, true
	case 19:
		return [5]int{upper, base, base, upper, upper}, true
	case 20:
		return [5]int{base, upper, upper, base, base}, true
	}
	return [5]int{base, base, base, base, base}, false
}
