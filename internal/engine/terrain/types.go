// Package terrain bakes a tile grid into the shared terrain vertex mesh:
// five vertices per cell (center and four edge midpoints) carrying height,
// vertex color and a tangent frame, plus the per-cell and per-minicell
// records the block renderer and height queries read.
package terrain

import (
	"fmt"

	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// MiniCellWidth is the world distance between neighboring vertices.
const MiniCellWidth = 724

// WPos is an integer world position. Z is height.
type WPos struct {
	X, Y, Z int
}

// RenderPos converts a world position to render space.
func (p WPos) RenderPos() math.Vec3 {
	return math.Vec3{X: -float32(p.X) / 256, Y: float32(p.Y) / 256, Z: float32(p.Z) / 256}
}

// WorldPos converts a render-space position back to world units.
func WorldPos(v math.Vec3) WPos {
	return WPos{X: int(-v.X * 256), Y: int(v.Y * 256), Z: int(v.Z * 256)}
}

// TBN is a tangent frame.
type TBN struct {
	T, B, N math.Vec3
}

func (f TBN) add(o TBN) TBN {
	return TBN{f.T.Add(o.T), f.B.Add(o.B), f.N.Add(o.N)}
}

func (f TBN) scale(s float32) TBN {
	return TBN{f.T.Scale(s), f.B.Scale(s), f.N.Scale(s)}
}

// Vertex is one shared terrain vertex.
type Vertex struct {
	LogicPos WPos
	Pos      math.Vec3
	Color    math.Vec3
	TBN      TBN
	UV       math.Vec2
	MapUV    math.Vec2
	// TerrainType indexes the tileset's terrain types.
	TerrainType int
}

func (v *Vertex) setZ(z int) {
	v.LogicPos.Z = z
	v.Pos = v.LogicPos.RenderPos()
}

// MiniCellType is the diagonal a minicell quad is split along.
type MiniCellType uint8

const (
	// SplitTRBL splits along the top-right to bottom-left diagonal.
	SplitTRBL MiniCellType = iota
	// SplitTLBR splits along the top-left to bottom-right diagonal.
	SplitTLBR
)

func (t MiniCellType) String() string {
	if t == SplitTLBR {
		return "TLBR"
	}
	return "TRBL"
}

// MiniCell is one quad of the vertex grid.
type MiniCell struct {
	TL, TR, BL, BR int
	Type           MiniCellType
}

// Triangles returns the six vertex indices of the quad's two triangles.
func (m MiniCell) Triangles() [6]int {
	if m.Type == SplitTLBR {
		return [6]int{m.TL, m.TR, m.BR, m.TL, m.BR, m.BL}
	}
	return [6]int{m.TL, m.TR, m.BL, m.TR, m.BR, m.BL}
}

// Grid is the per-cell input of baking. Layers are indexed [y*Width+x].
type Grid struct {
	Width, Height int
	Tiles         []formats.MapTile
	HeightStep    []uint8
	Ramp          []uint8
}

// NewGrid allocates a flat grid of default tiles.
func NewGrid(width, height int) *Grid {
	n := width * height
	return &Grid{
		Width:      width,
		Height:     height,
		Tiles:      make([]formats.MapTile, n),
		HeightStep: make([]uint8, n),
		Ramp:       make([]uint8, n),
	}
}

// GridFromMapBin takes tiles and heights from m and ramps from the tileset
// templates.
func GridFromMapBin(m *formats.MapBin, ts *formats.Tileset) *Grid {
	g := NewGrid(m.Width, m.Height)
	copy(g.Tiles, m.Tiles)
	copy(g.HeightStep, m.Heights)
	for i, tile := range g.Tiles {
		_, g.Ramp[i] = ts.TileTerrain(tile)
	}
	return g
}

// Index returns the layer index of cell (x, y).
func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

// Contains reports whether (x, y) is a cell of the grid.
func (g *Grid) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

func (g *Grid) validate() error {
	n := g.Width * g.Height
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGrid, g.Width, g.Height)
	}
	if len(g.Tiles) != n || len(g.HeightStep) != n || len(g.Ramp) != n {
		return fmt.Errorf("%w: layers don't match %dx%d", ErrInvalidGrid, g.Width, g.Height)
	}
	return nil
}

func (g *Grid) clone() *Grid {
	c := NewGrid(g.Width, g.Height)
	copy(c.Tiles, g.Tiles)
	copy(c.HeightStep, g.HeightStep)
	copy(c.Ramp, g.Ramp)
	return c
}

// Bounds is an axis-aligned box in render space.
type Bounds struct {
	Min, Max math.Vec3
}

func (b *Bounds) extend(p math.Vec3, first bool) {
	if first {
		b.Min, b.Max = p, p
		return
	}
	b.Min = math.Vec3{X: min(b.Min.X, p.X), Y: min(b.Min.Y, p.Y), Z: min(b.Min.Z, p.Z)}
	b.Max = math.Vec3{X: max(b.Max.X, p.X), Y: max(b.Max.Y, p.Y), Z: max(b.Max.Z, p.Z)}
}
