package terrain

import (
	"sort"

	"github.com/Faultbox/midgard-rts/pkg/math"
)

// FlatCellWithHeight sets all five vertices of cell (x, y) to height h, makes
// the cell ramp 0 and updates it and its neighbors. It returns the minicells
// whose vertices changed, or nil for cells outside the map.
func (t *Terrain) FlatCellWithHeight(x, y, h int) []math.Int2 {
	if !t.Grid.Contains(x, y) {
		return nil
	}
	c := t.cellIndices(x, y)
	for _, vi := range c.Vertices() {
		t.Vertices[vi].setZ(h)
	}
	t.Grid.Ramp[t.Grid.Index(x, y)] = 0
	return t.UpdateCellVertex(x, y)
}

// UpdateCellVertex recomputes cell (x, y) and every cell sharing a vertex
// with it after a height edit: tangent frames, cell records, height levels,
// and ramps of cells that became almost flat. It returns the affected
// minicells, sorted by row then column.
func (t *Terrain) UpdateCellVertex(x, y int) []math.Int2 {
	if !t.Grid.Contains(x, y) {
		return nil
	}

	affected := t.neighborCells(x, y)
	seen := make(map[int]bool)
	var verts []int
	for _, ci := range affected {
		c := t.cellIndices(ci%t.Grid.Width, ci/t.Grid.Width)
		for _, vi := range c.Vertices() {
			if !seen[vi] {
				seen[vi] = true
				verts = append(verts, vi)
			}
		}
	}
	t.computeTBN(verts, true)

	mini := make(map[math.Int2]bool)
	for _, ci := range affected {
		cx, cy := ci%t.Grid.Width, ci/t.Grid.Width
		t.updateCell(cx, cy)
		if t.Cells[ci].AlmostFlat {
			t.Grid.Ramp[ci] = 0
			t.Cells[ci].Ramp0 = true
		}
		for _, m := range t.Cells[ci].MiniCells() {
			mini[m] = true
		}
	}

	out := make([]math.Int2, 0, len(mini))
	for m := range mini {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// neighborCells returns cell (x, y) and every cell sharing one of its
// vertices, in index order.
func (t *Terrain) neighborCells(x, y int) []int {
	c := t.cellIndices(x, y)
	set := make(map[int]bool)
	for _, vi := range c.Vertices() {
		for _, ci := range t.vertexCells[vi] {
			set[int(ci)] = true
		}
	}
	out := make([]int, 0, len(set))
	for ci := range set {
		out = append(out, ci)
	}
	sort.Ints(out)
	return out
}
