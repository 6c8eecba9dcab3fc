package terrain

import (
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

// lerp interpolates integer heights by mul/div.
func lerp(a, b, mul, div int) int {
	if div == 0 {
		return a
	}
	return a + (b-a)*mul/div
}

// HeightAt returns the terrain height under world position p, interpolated
// over the triangle of the minicell containing it. Positions off the mesh
// are at height 0.
func (t *Terrain) HeightAt(p WPos) int {
	if p.X < 0 || p.Y < 0 {
		return 0
	}
	const w = MiniCellWidth
	m, ok := t.MiniCell(p.X/w, p.Y/w)
	if !ok {
		return 0
	}
	tx, ty := p.X%w, p.Y%w

	tl := t.Vertices[m.TL].LogicPos.Z
	tr := t.Vertices[m.TR].LogicPos.Z
	bl := t.Vertices[m.BL].LogicPos.Z
	br := t.Vertices[m.BR].LogicPos.Z

	if m.Type == SplitTRBL {
		switch {
		case ty == w-tx:
			return lerp(bl, tr, tx, w)
		case ty < w-tx:
			a := lerp(tl, bl, ty, w)
			b := lerp(tr, bl, ty, w)
			return lerp(a, b, tx, w-ty)
		default:
			a := lerp(bl, br, tx, w)
			b := lerp(bl, tr, tx, w)
			return lerp(a, b, w-ty, tx)
		}
	}
	switch {
	case tx == ty:
		return lerp(tl, br, tx, w)
	case tx > ty:
		a := lerp(tl, tr, tx, w)
		b := lerp(tl, br, tx, w)
		return lerp(a, b, ty, tx)
	default:
		a := lerp(tl, bl, ty, w)
		b := lerp(tl, br, ty, w)
		return lerp(a, b, tx, ty)
	}
}

// CenterOfCell returns the world position of the center of cell (x, y).
func (t *Terrain) CenterOfCell(x, y int) WPos {
	if c, ok := t.Cell(x, y); ok {
		return c.Center
	}
	mid := cellMid(x, y)
	return WPos{X: MiniCellWidth * mid.X, Y: MiniCellWidth * mid.Y}
}

// HeightOfCell returns the center height of cell (x, y), or 0 off the map.
func (t *Terrain) HeightOfCell(x, y int) int {
	if c, ok := t.Cell(x, y); ok {
		return c.Center.Z
	}
	return 0
}

// MiniHeightOfCell returns the lowest vertex height of cell (x, y), or 0 off
// the map.
func (t *Terrain) MiniHeightOfCell(x, y int) int {
	if c, ok := t.Cell(x, y); ok {
		return c.MiniHeight
	}
	return 0
}

// TerrainTypeOfCell returns the terrain type name of cell (x, y). Cells off
// the map are the default type.
func (t *Terrain) TerrainTypeOfCell(x, y int) string {
	c, ok := t.Cell(x, y)
	if !ok || c.TerrainType < 0 || c.TerrainType >= len(t.Tileset.TerrainTypes) {
		return formats.DefaultTerrainType
	}
	return t.Tileset.TerrainTypes[c.TerrainType].Type
}

// Bounds returns the render-space box of every vertex.
func (t *Terrain) Bounds() Bounds {
	var b Bounds
	for i, v := range t.Vertices {
		b.extend(v.Pos, i == 0)
	}
	return b
}
