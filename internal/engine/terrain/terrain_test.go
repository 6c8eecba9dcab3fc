package terrain

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

const eps = 1e-4

// Template ids of testTileset.
const (
	tplClear uint16 = iota
	tplCliff
	tplWater
	tplRamp5
)

func testTileset(t *testing.T) *formats.Tileset {
	t.Helper()
	ts, err := formats.NewTileset("test", []formats.TerrainType{
		{Type: "Clear", Colors: []color.RGBA{{R: 40, G: 80, B: 20, A: 255}}},
		{Type: "Cliff", Colors: []color.RGBA{{R: 60, G: 60, B: 60, A: 255}}},
		{Type: "Water", Colors: []color.RGBA{{R: 0, G: 0, B: 40, A: 255}, {R: 0, G: 0, B: 60, A: 255}}},
	}, map[uint16]formats.Template{
		tplClear: {Terrain: "Clear"},
		tplCliff: {Terrain: "Cliff"},
		tplWater: {Terrain: "Water"},
		tplRamp5: {Terrain: "Clear", Ramp: 5},
	})
	if err != nil {
		t.Fatalf("NewTileset: %v", err)
	}
	return ts
}

func mustBake(t *testing.T, g *Grid, ts *formats.Tileset) *Terrain {
	t.Helper()
	tr, err := Bake(g, ts, DefaultOptions())
	if err != nil {
		t.Fatalf("Bake: %v", err)
	}
	return tr
}

// hillGrid is a 6x5 map with mixed heights, ramps and terrain types.
func hillGrid() *Grid {
	g := NewGrid(6, 5)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := g.Index(x, y)
			g.HeightStep[i] = uint8((x + y) % 3)
			g.Ramp[i] = uint8((x*7 + y*3) % 21)
			g.Tiles[i] = formats.MapTile{Type: uint16((x + 2*y) % 3)}
		}
	}
	return g
}

func TestBake_FlatMap(t *testing.T) {
	tr := mustBake(t, NewGrid(4, 4), testTileset(t))

	if tr.VertexWidth != 10 || tr.VertexHeight != 6 {
		t.Fatalf("vertex array = %dx%d, want 10x6", tr.VertexWidth, tr.VertexHeight)
	}
	if len(tr.Vertices) != 60 {
		t.Fatalf("vertices = %d, want 60", len(tr.Vertices))
	}
	if len(tr.MiniCells) != 9*5 {
		t.Errorf("minicells = %d, want 45", len(tr.MiniCells))
	}
	for i, c := range tr.Cells {
		if !c.Flat || !c.AlmostFlat || !c.Ramp0 {
			t.Errorf("cell %d: flat=%v almost=%v ramp0=%v", i, c.Flat, c.AlmostFlat, c.Ramp0)
		}
		if !c.NormalM.ApproxEqual(up, eps) {
			t.Errorf("cell %d normal = %+v", i, c.NormalM)
		}
	}
}

func TestBake_VertexSharing(t *testing.T) {
	g := hillGrid()
	tr := mustBake(t, g, testTileset(t))

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			a, _ := tr.Cell(x, y)
			if b, ok := tr.Cell(x+1, y); ok && a.R != b.L {
				t.Errorf("cell (%d,%d).R = %d, right neighbor L = %d", x, y, a.R, b.L)
			}
			// Bottom vertex is shared with two cells of the next row.
			left, right := x, x+1
			if y%2 == 0 {
				left, right = x-1, x
			}
			if b, ok := tr.Cell(left, y+1); ok && a.B != b.R {
				t.Errorf("cell (%d,%d).B = %d, (%d,%d).R = %d", x, y, a.B, left, y+1, b.R)
			}
			if b, ok := tr.Cell(right, y+1); ok && a.B != b.L {
				t.Errorf("cell (%d,%d).B = %d, (%d,%d).L = %d", x, y, a.B, right, y+1, b.L)
			}
		}
	}
}

func TestBake_FlatDetection(t *testing.T) {
	tr := mustBake(t, hillGrid(), testTileset(t))

	sloped := 0
	for i, c := range tr.Cells {
		z := tr.Vertices[c.M].LogicPos.Z
		equal := true
		for _, vi := range c.Vertices() {
			if tr.Vertices[vi].LogicPos.Z != z {
				equal = false
			}
		}
		if c.Flat != equal {
			t.Errorf("cell %d: Flat = %v, heights equal = %v", i, c.Flat, equal)
		}
		if !c.Flat {
			sloped++
		}
	}
	if sloped == 0 {
		t.Error("hill grid baked without sloped cells")
	}
}

func TestBake_UniformHeight(t *testing.T) {
	g := NewGrid(6, 6)
	for i := range g.HeightStep {
		g.HeightStep[i] = 2
	}
	tr := mustBake(t, g, testTileset(t))

	for vi, cells := range tr.vertexCells {
		if len(cells) == 4 && tr.Vertices[vi].LogicPos.Z != 1024 {
			t.Errorf("vertex %d shared by 4 cells at z %d, want 1024", vi, tr.Vertices[vi].LogicPos.Z)
		}
	}
	c, _ := tr.Cell(2, 2)
	if !c.Flat || c.Center.Z != 1024 {
		t.Errorf("interior cell flat=%v z=%d", c.Flat, c.Center.Z)
	}
	if got := tr.Grid.HeightStep[g.Index(2, 2)]; got != 2 {
		t.Errorf("height level = %d, want 2", got)
	}
	if g.HeightStep[0] != 2 {
		t.Error("Bake modified its input grid")
	}
}

func TestBake_Cliff(t *testing.T) {
	tests := []struct {
		name string
		tile uint16
		want int
	}{
		{"cliff keeps the high side", tplCliff, 2048},
		{"other terrain blends", tplClear, 512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(2, 1)
			g.HeightStep[1] = 4
			g.Tiles[1] = formats.MapTile{Type: tt.tile}
			tr := mustBake(t, g, testTileset(t))

			a, _ := tr.Cell(0, 0)
			if got := tr.Vertices[a.R].LogicPos.Z; got != tt.want {
				t.Errorf("shared vertex z = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBake_InvalidRamp(t *testing.T) {
	g := NewGrid(3, 3)
	g.Ramp[g.Index(1, 1)] = 99
	tr := mustBake(t, g, testTileset(t))
	if c, _ := tr.Cell(1, 1); c.Center.Z != 0 {
		t.Errorf("invalid ramp center z = %d, want 0", c.Center.Z)
	}
}

func TestBake_Colors(t *testing.T) {
	tr := mustBake(t, NewGrid(3, 3), testTileset(t))
	c, _ := tr.Cell(1, 1)
	want := math.Vec3{X: 40 * 4 / 255.0, Y: 1, Z: 20 * 4 / 255.0}
	for _, vi := range c.Vertices() {
		if got := tr.Vertices[vi].Color; !got.ApproxEqual(want, eps) {
			t.Errorf("vertex %d color = %+v, want %+v", vi, got, want)
		}
	}
}

func TestBake_Errors(t *testing.T) {
	ts := testTileset(t)
	if _, err := Bake(&Grid{}, ts, DefaultOptions()); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("empty grid: %v", err)
	}
	g := NewGrid(2, 2)
	g.Ramp = g.Ramp[:1]
	if _, err := Bake(g, ts, DefaultOptions()); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("short layer: %v", err)
	}
	if _, err := Bake(NewGrid(2, 2), nil, DefaultOptions()); !errors.Is(err, ErrNoTileset) {
		t.Errorf("no tileset: %v", err)
	}
}

func TestCalTBN_Flat(t *testing.T) {
	pm := WPos{X: 724, Y: 724}.RenderPos()
	pl := WPos{X: 0, Y: 724}.RenderPos()
	pb := WPos{X: 724, Y: 1448}.RenderPos()

	f := CalTBN(pm, pl, pb, uvM, uvL, uvB)
	if !f.N.ApproxEqual(up, eps) {
		t.Errorf("N = %+v", f.N)
	}
	if !f.T.ApproxEqual(math.Vec3{X: 1}, eps) || !f.B.ApproxEqual(math.Vec3{Y: 1}, eps) {
		t.Errorf("T = %+v, B = %+v", f.T, f.B)
	}
}

func TestNormalizeTBN(t *testing.T) {
	f := NormalizeTBN(TBN{
		T: math.Vec3{X: 2, Z: 1},
		B: math.Vec3{Y: 3, X: 0.5},
		N: math.Vec3{Z: 4},
	})
	for name, v := range map[string]math.Vec3{"T": f.T, "B": f.B, "N": f.N} {
		if l := v.Length(); l < 1-eps || l > 1+eps {
			t.Errorf("|%s| = %v", name, l)
		}
	}
	if d := f.T.Dot(f.N); d > eps || d < -eps {
		t.Errorf("T.N = %v", d)
	}
	if d := f.B.Dot(f.T); d > eps || d < -eps {
		t.Errorf("B.T = %v", d)
	}
}

func TestExportImport(t *testing.T) {
	ts := testTileset(t)
	g := hillGrid()
	baked := mustBake(t, g, ts)

	var buf bytes.Buffer
	if err := formats.WriteTerrainMesh(&buf, baked.Export()); err != nil {
		t.Fatalf("WriteTerrainMesh: %v", err)
	}
	tm, err := formats.ParseTerrainMesh(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseTerrainMesh: %v", err)
	}
	imported, err := Import(tm, g, ts, DefaultOptions())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	for i := range baked.Vertices {
		a, b := baked.Vertices[i], imported.Vertices[i]
		if a.LogicPos != b.LogicPos || a.Color != b.Color || a.TerrainType != b.TerrainType {
			t.Fatalf("vertex %d: baked %+v, imported %+v", i, a, b)
		}
	}
	for i := range baked.Cells {
		a, b := baked.Cells[i], imported.Cells[i]
		if a.Flat != b.Flat || a.MiniHeight != b.MiniHeight || a.Center != b.Center {
			t.Errorf("cell %d differs after import", i)
		}
	}
}

func TestImport_SizeMismatch(t *testing.T) {
	ts := testTileset(t)
	tm := mustBake(t, NewGrid(3, 3), ts).Export()
	if _, err := Import(tm, NewGrid(4, 3), ts, DefaultOptions()); !errors.Is(err, formats.ErrInvalidTerrainMeshSize) {
		t.Errorf("err = %v", err)
	}
}

func TestImport_UnknownTerrainCode(t *testing.T) {
	ts := testTileset(t)
	tm := mustBake(t, NewGrid(2, 2), ts).Export()
	tm.Vertices[5].TerrainCode = 13 // Rock, not in the tileset
	tr, err := Import(tm, NewGrid(2, 2), ts, DefaultOptions())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	clearIdx, _ := ts.TerrainIndex("Clear")
	if tr.Vertices[5].TerrainType != clearIdx {
		t.Errorf("terrain type = %d, want Clear", tr.Vertices[5].TerrainType)
	}
}

func TestFlatCellWithHeight(t *testing.T) {
	g := NewGrid(5, 5)
	g.Tiles[g.Index(2, 2)] = formats.MapTile{Type: tplRamp5}
	g.Ramp[g.Index(2, 2)] = 5
	tr := mustBake(t, g, testTileset(t))

	if c, _ := tr.Cell(2, 2); c.Flat {
		t.Fatal("ramp 5 cell baked flat")
	}

	mini := tr.FlatCellWithHeight(2, 2, 512)
	c, _ := tr.Cell(2, 2)
	if !c.Flat || c.Center.Z != 512 || !c.Ramp0 {
		t.Errorf("after flatten: flat=%v z=%d ramp0=%v", c.Flat, c.Center.Z, c.Ramp0)
	}
	if got := tr.Grid.HeightStep[g.Index(2, 2)]; got != 1 {
		t.Errorf("height level = %d, want 1", got)
	}

	have := make(map[math.Int2]bool)
	for i, m := range mini {
		have[m] = true
		if i > 0 && (mini[i-1].Y > m.Y || (mini[i-1].Y == m.Y && mini[i-1].X >= m.X)) {
			t.Errorf("minicells not sorted at %d: %v", i, mini)
		}
	}
	for _, m := range c.MiniCells() {
		if !have[m] {
			t.Errorf("minicell %v of the edited cell not reported", m)
		}
	}

	// Incremental frames match a full recompute.
	got := make([]TBN, len(tr.Vertices))
	for i, v := range tr.Vertices {
		got[i] = v.TBN
	}
	all := make([]int, len(tr.Vertices))
	for i := range all {
		all[i] = i
	}
	tr.computeTBN(all, true)
	for i, v := range tr.Vertices {
		if !got[i].N.ApproxEqual(v.TBN.N, eps) || !got[i].T.ApproxEqual(v.TBN.T, eps) {
			t.Errorf("vertex %d frame %+v, full recompute %+v", i, got[i], v.TBN)
		}
	}

	if tr.FlatCellWithHeight(-1, 0, 0) != nil {
		t.Error("off-map cell returned minicells")
	}
}

func TestHeightAt(t *testing.T) {
	tr := mustBake(t, hillGrid(), testTileset(t))

	for v := 1; v < tr.VertexHeight-1; v++ {
		for u := 1; u < tr.VertexWidth-1; u++ {
			want := tr.Vertices[v*tr.VertexWidth+u].LogicPos.Z
			if got := tr.HeightAt(WPos{X: u * MiniCellWidth, Y: v * MiniCellWidth}); got != want {
				t.Errorf("HeightAt vertex (%d,%d) = %d, want %d", u, v, got, want)
			}
		}
	}
	if got := tr.HeightAt(WPos{X: -5, Y: 10}); got != 0 {
		t.Errorf("off-map height = %d", got)
	}
}

func TestHeightAt_Interpolates(t *testing.T) {
	g := NewGrid(6, 6)
	for i := range g.HeightStep {
		g.HeightStep[i] = 1
	}
	tr := mustBake(t, g, testTileset(t))
	c, _ := tr.Cell(2, 2)
	p := c.Center
	p.X += MiniCellWidth / 2
	p.Y += MiniCellWidth / 2
	if got := tr.HeightAt(p); got != 512 {
		t.Errorf("height inside flat interior = %d, want 512", got)
	}
}

func TestExportGLTF(t *testing.T) {
	tr := mustBake(t, hillGrid(), testTileset(t))

	var buf bytes.Buffer
	if err := tr.ExportGLTF(&buf); err != nil {
		t.Fatalf("ExportGLTF: %v", err)
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(&buf).Decode(doc); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 1 {
		t.Fatalf("meshes = %d", len(doc.Meshes))
	}
	p := doc.Meshes[0].Primitives[0]
	if n := doc.Accessors[p.Attributes[gltf.POSITION]].Count; int(n) != len(tr.Vertices) {
		t.Errorf("positions = %d, want %d", n, len(tr.Vertices))
	}
	if n := doc.Accessors[*p.Indices].Count; int(n) != len(tr.MiniCells)*6 {
		t.Errorf("indices = %d, want %d", n, len(tr.MiniCells)*6)
	}
}

func TestGridFromMapBin(t *testing.T) {
	m := formats.NewMapBin(2, 1)
	m.Tiles[1] = formats.MapTile{Type: tplRamp5}
	m.Heights[1] = 3
	g := GridFromMapBin(m, testTileset(t))
	if g.Ramp[0] != 0 || g.Ramp[1] != 5 || g.HeightStep[1] != 3 {
		t.Errorf("grid = %+v", g)
	}
}

func TestCellQueries(t *testing.T) {
	tr := mustBake(t, hillGrid(), testTileset(t))

	for y := 0; y < tr.Grid.Height; y++ {
		for x := 0; x < tr.Grid.Width; x++ {
			c, _ := tr.Cell(x, y)
			if got := tr.CenterOfCell(x, y); got != c.Center {
				t.Errorf("CenterOfCell(%d,%d) = %+v, want %+v", x, y, got, c.Center)
			}
			if got := tr.HeightOfCell(x, y); got != c.Center.Z {
				t.Errorf("HeightOfCell(%d,%d) = %d, want %d", x, y, got, c.Center.Z)
			}
			if got := tr.MiniHeightOfCell(x, y); got != c.MiniHeight {
				t.Errorf("MiniHeightOfCell(%d,%d) = %d, want %d", x, y, got, c.MiniHeight)
			}
		}
	}

	off := tr.CenterOfCell(-1, 3)
	if want := (WPos{X: MiniCellWidth * 0, Y: MiniCellWidth * 4}); off != want {
		t.Errorf("off-map center = %+v, want %+v", off, want)
	}
	if tr.HeightOfCell(-1, 3) != 0 || tr.MiniHeightOfCell(99, 0) != 0 {
		t.Error("off-map heights should be 0")
	}
}
