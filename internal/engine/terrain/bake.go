package terrain

import (
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Terrain errors.
var (
	ErrInvalidGrid = errors.New("invalid terrain grid")
	ErrNoTileset   = errors.New("terrain needs a tileset")
)

// Options tunes baking.
type Options struct {
	// HeightStep is the world height of one height level.
	HeightStep int
	// ColorGain scales baked vertex colors before clamping.
	ColorGain float32
	// CliffThreshold is the height difference above which cliff edges keep
	// the higher vertex instead of blending.
	CliffThreshold int
	// AlmostFlatTolerance is the largest height spread of an almost flat
	// cell.
	AlmostFlatTolerance int
	// Seed drives the vertex color jitter.
	Seed int64
}

// DefaultOptions returns the stock baking options.
func DefaultOptions() Options {
	return Options{
		HeightStep:          512,
		ColorGain:           4,
		CliffThreshold:      1024,
		AlmostFlatTolerance: 32,
		Seed:                1,
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.HeightStep <= 0 {
		o.HeightStep = d.HeightStep
	}
	if o.ColorGain <= 0 {
		o.ColorGain = d.ColorGain
	}
	if o.CliffThreshold <= 0 {
		o.CliffThreshold = d.CliffThreshold
	}
}

// Terrain is the baked vertex mesh of a map.
type Terrain struct {
	Grid    *Grid
	Tileset *formats.Tileset
	Opts    Options

	VertexWidth, VertexHeight int
	Vertices                  []Vertex
	// MiniCells holds (VertexHeight-1) rows of (VertexWidth-1) quads.
	MiniCells []MiniCell
	Cells     []CellInfo

	// vertexCells lists the cells each vertex belongs to.
	vertexCells [][]int32
}

func newTerrain(g *Grid, ts *formats.Tileset, opts Options) (*Terrain, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, ErrNoTileset
	}
	opts.fill()
	t := &Terrain{
		Grid:         g.clone(),
		Tileset:      ts,
		Opts:         opts,
		VertexWidth:  2*g.Width + 2,
		VertexHeight: g.Height + 2,
	}
	t.Vertices = make([]Vertex, t.VertexWidth*t.VertexHeight)
	for i := range t.Vertices {
		v := &t.Vertices[i]
		v.LogicPos = WPos{X: MiniCellWidth * (i % t.VertexWidth), Y: MiniCellWidth * (i / t.VertexWidth)}
		v.Pos = v.LogicPos.RenderPos()
		v.TerrainType = -1
	}
	t.Cells = make([]CellInfo, g.Width*g.Height)
	t.vertexCells = make([][]int32, len(t.Vertices))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := t.cellIndices(x, y)
			for _, vi := range c.Vertices() {
				t.vertexCells[vi] = append(t.vertexCells[vi], int32(g.Index(x, y)))
			}
		}
	}
	t.buildMiniCells()
	return t, nil
}

// cellMid returns the vertex coordinate of the center of cell (x, y).
func cellMid(x, y int) math.Int2 {
	return math.Int2{X: 2*x + 1 + y&1, Y: y + 1}
}

// cellIndices fills the vertex and minicell references of cell (x, y).
func (t *Terrain) cellIndices(x, y int) CellInfo {
	mid := cellMid(x, y)
	w := t.VertexWidth
	im := mid.Y*w + mid.X
	return CellInfo{
		Cell:   math.Int2{X: x, Y: y},
		M:      im,
		T:      im - w,
		B:      im + w,
		L:      im - 1,
		R:      im + 1,
		MiniTL: math.Int2{X: mid.X - 1, Y: mid.Y - 1},
		MiniTR: math.Int2{X: mid.X, Y: mid.Y - 1},
		MiniBL: math.Int2{X: mid.X - 1, Y: mid.Y},
		MiniBR: math.Int2{X: mid.X, Y: mid.Y},
	}
}

// buildMiniCells splits every quad of the vertex grid. The split alternates
// like a checkerboard so each cell's four quadrants meet at its center.
func (t *Terrain) buildMiniCells() {
	w, h := t.VertexWidth-1, t.VertexHeight-1
	t.MiniCells = make([]MiniCell, w*h)
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			tl := v*t.VertexWidth + u
			typ := SplitTLBR
			if u%2 == v%2 {
				typ = SplitTRBL
			}
			t.MiniCells[v*w+u] = MiniCell{TL: tl, TR: tl + 1, BL: tl + t.VertexWidth, BR: tl + t.VertexWidth + 1, Type: typ}
		}
	}
}

// MiniCell returns the quad at column u, row v.
func (t *Terrain) MiniCell(u, v int) (MiniCell, bool) {
	w, h := t.VertexWidth-1, t.VertexHeight-1
	if u < 0 || v < 0 || u >= w || v >= h {
		return MiniCell{}, false
	}
	return t.MiniCells[v*w+u], true
}

// Cell returns the info of cell (x, y).
func (t *Terrain) Cell(x, y int) (*CellInfo, bool) {
	if !t.Grid.Contains(x, y) {
		return nil, false
	}
	return &t.Cells[t.Grid.Index(x, y)], true
}

// isBoundVert reports whether vertex i lies on the outer ring of the grid.
func (t *Terrain) isBoundVert(i int) bool {
	w := t.VertexWidth
	if i <= w || i >= (t.VertexHeight-1)*w {
		return true
	}
	return i%w == 0 || (i+1)%w == 0
}

// cellType returns the terrain type index and tile type of cell i.
func (t *Terrain) cellType(i int) (int, uint16) {
	tile := t.Grid.Tiles[i]
	idx, _ := t.Tileset.TileTerrain(tile)
	return idx, tile.Type
}

// Bake derives the vertex mesh from the grid's tiles, heights and ramps. The
// grid is copied; the terrain's copy has its height levels updated from the
// baked cell centers.
func Bake(g *Grid, ts *formats.Tileset, opts Options) (*Terrain, error) {
	t, err := newTerrain(g, ts, opts)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(t.Opts.Seed))

	n := len(t.Vertices)
	touched := make([]bool, n)
	cliff := make([]bool, n)
	colorSum := make([]math.Vec3, n)
	colorCount := make([]int, n)

	// Heights and colors.
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			ci := g.Index(x, y)
			c := t.cellIndices(x, y)
			typ, _ := t.cellType(ci)
			isCliff := ts.TerrainTypes[typ].Type == "Cliff"

			h, ok := rampHeights(t.Grid.Ramp[ci], int(t.Grid.HeightStep[ci]), t.Opts.HeightStep)
			if !ok {
				logger.Warn("invalid ramp type",
					zap.Int("ramp", int(t.Grid.Ramp[ci])),
					zap.Int("x", x), zap.Int("y", y))
			}

			for _, vi := range c.Vertices() {
				colorSum[vi] = colorSum[vi].Add(terrainColor(ts.TerrainTypes[typ], rng))
				colorCount[vi]++
				if t.Vertices[vi].TerrainType < 0 {
					t.Vertices[vi].TerrainType = typ
				}
			}

			t.Vertices[c.M].setZ(h[0])
			touched[c.M] = true
			for k, vi := range [4]int{c.T, c.B, c.L, c.R} {
				t.mixEdgeHeight(vi, h[k+1], isCliff, touched, cliff)
			}
		}
	}

	// Map border vertices follow their cell's center; flat cells center on
	// their edges.
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := t.cellIndices(x, y)
			mz := t.Vertices[c.M].LogicPos.Z
			for _, vi := range [4]int{c.T, c.B, c.L, c.R} {
				if t.isBoundVert(vi) {
					t.Vertices[vi].setZ(mz)
				}
			}
			if t.Grid.Ramp[g.Index(x, y)] == 0 {
				t.Vertices[c.M].setZ(t.Vertices[c.T].LogicPos.Z/4 +
					t.Vertices[c.B].LogicPos.Z/4 +
					t.Vertices[c.L].LogicPos.Z/4 +
					t.Vertices[c.R].LogicPos.Z/4)
			}
		}
	}

	for i := range t.Vertices {
		v := &t.Vertices[i]
		if colorCount[i] > 0 {
			v.Color = colorSum[i].Scale(t.Opts.ColorGain / float32(colorCount[i])).Clamp(0, 1)
		}
		if v.TerrainType < 0 {
			v.TerrainType, _ = ts.TerrainIndex(formats.DefaultTerrainType)
		}
	}

	t.finish(true)
	return t, nil
}

// mixEdgeHeight folds height h of one cell into shared edge vertex vi. The
// first cell stores a quarter of h and later cells add their quarter. Cliff
// cells with a large height jump keep the higher side and pin the vertex.
func (t *Terrain) mixEdgeHeight(vi, h int, isCliff bool, touched, cliff []bool) {
	v := &t.Vertices[vi]
	old := v.LogicPos.Z
	switch {
	case !touched[vi]:
		v.setZ(h / 4)
	case (isCliff || cliff[vi]) && (cliff[vi] || abs(h-old) > t.Opts.CliffThreshold):
		v.setZ(max(h, old))
		cliff[vi] = true
	default:
		v.setZ(hmix(h, old))
	}
	touched[vi] = true
}

// hmix adds a quarter of a new edge height to the accumulated one.
func hmix(a, b int) int {
	return a/4 + b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// terrainColor picks a jittered vertex color of tt.
func terrainColor(tt formats.TerrainType, rng *rand.Rand) math.Vec3 {
	if len(tt.Colors) == 0 {
		return math.Vec3{}
	}
	c := tt.Colors[0]
	col := math.Vec3{X: float32(c.R) / 255, Y: float32(c.G) / 255, Z: float32(c.B) / 255}
	if len(tt.Colors) == 1 {
		return col
	}
	last := tt.Colors[len(tt.Colors)-1]
	to := math.Vec3{X: float32(last.R) / 255, Y: float32(last.G) / 255, Z: float32(last.B) / 255}
	return col.Lerp(to, rng.Float32())
}

// finish derives tangent frames, cell records, texture coordinates and
// height levels from the final vertex heights.
func (t *Terrain) finish(flatFixup bool) {
	all := make([]int, len(t.Vertices))
	for i := range all {
		all[i] = i
	}
	t.computeTBN(all, flatFixup)

	for i := range t.Vertices {
		v := &t.Vertices[i]
		v.UV = math.Vec2{X: v.Pos.X, Y: v.Pos.Y}
		v.MapUV = math.Vec2{
			X: float32(i%t.VertexWidth) / float32(t.VertexWidth),
			Y: float32(i/t.VertexWidth) / float32(t.VertexHeight),
		}
	}
	for y := 0; y < t.Grid.Height; y++ {
		for x := 0; x < t.Grid.Width; x++ {
			t.updateCell(x, y)
		}
	}
}

// computeTBN recomputes the frames of the given vertices from every cell
// they belong to. Each triangle pair adjacent to an edge vertex contributes
// its mean; centers take the mean of their four triangles, or with flatFixup
// the mean of their edge frames on ramp 0 cells.
func (t *Terrain) computeTBN(verts []int, flatFixup bool) {
	want := make(map[int]bool, len(verts))
	cells := make(map[int32]bool)
	for _, vi := range verts {
		want[vi] = true
		for _, ci := range t.vertexCells[vi] {
			cells[ci] = true
		}
	}
	sum := make(map[int]TBN, len(verts))
	count := make(map[int]int, len(verts))
	acc := func(vi int, f TBN) {
		if want[vi] {
			sum[vi] = sum[vi].add(f)
			count[vi]++
		}
	}

	// Iterate cells in index order so sums don't depend on map order.
	for ci := 0; ci < len(t.Cells); ci++ {
		if !cells[int32(ci)] {
			continue
		}
		c := t.cellIndices(ci%t.Grid.Width, ci/t.Grid.Width)
		pm, pt := t.Vertices[c.M].Pos, t.Vertices[c.T].Pos
		pb, pl, pr := t.Vertices[c.B].Pos, t.Vertices[c.L].Pos, t.Vertices[c.R].Pos

		tlm := CalTBN(pt, pl, pm, uvT, uvL, uvM)
		tmr := CalTBN(pt, pm, pr, uvT, uvM, uvR)
		mlb := CalTBN(pm, pl, pb, uvM, uvL, uvB)
		mbr := CalTBN(pm, pb, pr, uvM, uvB, uvR)

		acc(c.M, tlm.add(tmr).add(mlb).add(mbr).scale(0.25))
		acc(c.T, tlm.add(tmr).scale(0.5))
		acc(c.B, mlb.add(mbr).scale(0.5))
		acc(c.L, mlb.add(tlm).scale(0.5))
		acc(c.R, tmr.add(mbr).scale(0.5))
	}
	for _, vi := range verts {
		if n := count[vi]; n > 0 {
			t.Vertices[vi].TBN = sum[vi].scale(1 / float32(n))
		}
	}

	if flatFixup {
		for ci := range t.Cells {
			if !cells[int32(ci)] || t.Grid.Ramp[ci] != 0 {
				continue
			}
			c := t.cellIndices(ci%t.Grid.Width, ci/t.Grid.Width)
			if !want[c.M] {
				continue
			}
			t.Vertices[c.M].TBN = t.Vertices[c.T].TBN.
				add(t.Vertices[c.B].TBN).
				add(t.Vertices[c.L].TBN).
				add(t.Vertices[c.R].TBN).
				scale(0.25)
		}
	}
	for _, vi := range verts {
		t.Vertices[vi].TBN = NormalizeTBN(t.Vertices[vi].TBN)
	}
}

// updateCell rebuilds the record of cell (x, y) from current vertices and
// refreshes its height level.
func (t *Terrain) updateCell(x, y int) {
	ci := t.Grid.Index(x, y)
	c := t.cellIndices(x, y)
	typ, tile := t.cellType(ci)
	c.TerrainType = typ
	c.TileType = tile
	c.Ramp0 = t.Grid.Ramp[ci] == 0

	vm, vt, vb := t.Vertices[c.M].LogicPos, t.Vertices[c.T].LogicPos, t.Vertices[c.B].LogicPos
	vl, vr := t.Vertices[c.L].LogicPos, t.Vertices[c.R].LogicPos
	c.Center = vm

	lo, hi := vm.Z, vm.Z
	for _, p := range [4]WPos{vt, vb, vl, vr} {
		lo, hi = min(lo, p.Z), max(hi, p.Z)
	}
	c.MiniHeight = lo
	c.Flat = lo == hi
	c.AlmostFlat = hi-lo <= t.Opts.AlmostFlatTolerance

	c.NormalTL = logicNormal(vm, vt, vl)
	c.NormalTR = logicNormal(vm, vr, vt)
	c.NormalBL = logicNormal(vm, vl, vb)
	c.NormalBR = logicNormal(vm, vb, vr)
	c.NormalM = c.NormalTL.Add(c.NormalTR).Add(c.NormalBL).Add(c.NormalBR).Normalize()
	c.OrientTL = math.QuatBetween(up, c.NormalTL)
	c.OrientTR = math.QuatBetween(up, c.NormalTR)
	c.OrientBL = math.QuatBetween(up, c.NormalBL)
	c.OrientBR = math.QuatBetween(up, c.NormalBR)
	c.OrientM = math.QuatBetween(up, c.NormalM)

	col := func(a, b, c int) math.Vec3 {
		return t.Vertices[a].Color.Add(t.Vertices[b].Color).Add(t.Vertices[c].Color).Scale(1.0 / 3)
	}
	c.MinimapColors = [2]math.Vec3{col(c.M, c.T, c.L), col(c.M, c.B, c.R)}

	t.Cells[ci] = c
	t.Grid.HeightStep[ci] = heightLevel(vm.Z, t.Opts.HeightStep)
}

// heightLevel is the height level a cell center at z sits on.
func heightLevel(z, step int) uint8 {
	if z <= 0 {
		return 0
	}
	return uint8((z + 1) / step)
}
