package terrain

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Import rebuilds a terrain from a baked Terrain.tm instead of baking the
// grid. Vertex heights and colors come from tm; frames and cell records are
// recomputed.
func Import(tm *formats.TerrainMesh, g *Grid, ts *formats.Tileset, opts Options) (*Terrain, error) {
	if err := tm.CheckSize(g.Width, g.Height); err != nil {
		return nil, err
	}
	t, err := newTerrain(g, ts, opts)
	if err != nil {
		return nil, err
	}
	if len(tm.Vertices) != len(t.Vertices) {
		return nil, fmt.Errorf("%w: %d vertices, want %d", formats.ErrInvalidTerrainMeshSize, len(tm.Vertices), len(t.Vertices))
	}

	clearIdx, _ := ts.TerrainIndex(formats.DefaultTerrainType)
	unknown := make(map[string]bool)
	for i, src := range tm.Vertices {
		v := &t.Vertices[i]
		v.LogicPos = WPos{X: int(src.LogicPos[0]), Y: int(src.LogicPos[1]), Z: max(int(src.LogicPos[2]), 0)}
		v.Pos = v.LogicPos.RenderPos()
		v.Color = math.Vec3{X: src.Color[0], Y: src.Color[1], Z: src.Color[2]}.Clamp(0, 1)

		name := formats.TerrainCodeName(src.TerrainCode)
		idx, ok := ts.TerrainIndex(name)
		if !ok {
			if !unknown[name] {
				logger.Warn("terrain type missing from tileset",
					zap.String("type", name),
					zap.String("tileset", ts.Name))
				unknown[name] = true
			}
			idx = clearIdx
		}
		v.TerrainType = idx
	}

	t.finish(false)
	return t, nil
}

// Export returns the vertex data in Terrain.tm form.
func (t *Terrain) Export() *formats.TerrainMesh {
	tm := &formats.TerrainMesh{
		Width:    int32(t.Grid.Width),
		Height:   int32(t.Grid.Height),
		Vertices: make([]formats.TerrainMeshVertex, len(t.Vertices)),
	}
	for i, v := range t.Vertices {
		name := formats.DefaultTerrainType
		if v.TerrainType >= 0 && v.TerrainType < len(t.Tileset.TerrainTypes) {
			name = t.Tileset.TerrainTypes[v.TerrainType].Type
		}
		tm.Vertices[i] = formats.TerrainMeshVertex{
			LogicPos:    [3]int32{int32(v.LogicPos.X), int32(v.LogicPos.Y), int32(v.LogicPos.Z)},
			Color:       [3]float32{v.Color.X, v.Color.Y, v.Color.Z},
			TerrainCode: formats.TerrainNameCode(name),
		}
	}
	return tm
}
