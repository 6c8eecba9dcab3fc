package terrainblock

import (
	"math/rand"

	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
)

// Mask layers painted from terrain types.
const (
	LayerWater = iota
	LayerCliff
	LayerConcrete
	LayerGrass
	LayerSand
	LayerDirt
	LayerGravel
	LayerCrack
	LayerBase
)

// TerrainLayers maps terrain type names to the mask layer painted under
// them. Unlisted types get LayerBase.
var TerrainLayers = map[string]int{
	"Rough":      LayerGravel,
	"DirtRoad":   LayerDirt,
	"Cliff":      LayerCliff,
	"Impassable": LayerCliff,
	"Rock":       LayerCliff,
	"Rail":       LayerConcrete,
	"Road":       LayerConcrete,
	"Bridge":     LayerConcrete,
	"Water":      LayerWater,
}

// TileRange overrides the layer of cells whose template id is in
// [First, Last].
type TileRange struct {
	First, Last uint16
	Layer       int
	Shore       bool
}

// TileRanges lists the template ranges that override TerrainLayers. Shore
// ranges paint sand unless the cell is water.
var TileRanges = []TileRange{
	{First: 108, Last: 149, Layer: LayerSand, Shore: true},
	{First: 626, Last: 642, Layer: LayerGrass},
	{First: 535, Last: 551, Layer: LayerSand},
	{First: 150, Last: 166, Layer: LayerGravel},
	{First: 552, Last: 561, Layer: LayerCrack},
}

// between returns a random int in [lo, hi).
func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo)
}

// PaintFromTerrainTypes queues the initial mask strokes of a map without
// saved masks: every cell is painted on the layer of its terrain type, with
// sand under shores and sand or dirt under water, and water is erased from
// cells that aren't flat.
func (g *Grid) PaintFromTerrainTypes(rng *rand.Rand, brush, waterBrush *MaskBrush) {
	t := g.Terrain
	for y := 0; y < t.Grid.Height; y++ {
		for x := 0; x < t.Grid.Width; x++ {
			c, ok := t.Cell(x, y)
			if !ok {
				continue
			}
			layer, shore := CellLayer(c, t.TerrainTypeOfCell(x, y))

			pos := c.Center
			if shore {
				g.PaintAt(brush, pos, brush.DefaultSize*between(rng, 20, 35)/between(rng, 10, 15), LayerSand, between(rng, 75, 255))
			}
			if layer != LayerWater {
				g.PaintAt(brush, pos, brush.DefaultSize*between(rng, 22, 28)/between(rng, 22, 28), layer, 255)
				continue
			}

			under := LayerSand
			if rng.Intn(10) >= 7 {
				under = LayerDirt
			}
			g.PaintAt(brush, pos, brush.DefaultSize*between(rng, 40, 50)/between(rng, 25, 30), under, between(rng, 1, 255))
			if shore {
				g.PaintAt(waterBrush, pos, waterBrush.DefaultSize*between(rng, 25, 35)/between(rng, 10, 20), LayerWater, between(rng, 1, 75))
			} else {
				g.PaintAt(waterBrush, pos, waterBrush.DefaultSize, LayerWater, 255)
			}
		}
	}

	for y := 0; y < t.Grid.Height; y++ {
		for x := 0; x < t.Grid.Width; x++ {
			if c, ok := t.Cell(x, y); ok && !c.Flat {
				g.PaintAt(brush, c.Center, brush.DefaultSize, LayerWater, -255)
			}
		}
	}
}

// CellLayer returns the mask layer painted under a cell of terrain type typ
// and whether the cell is a shore.
func CellLayer(c *terrain.CellInfo, typ string) (layer int, shore bool) {
	layer, ok := TerrainLayers[typ]
	if !ok {
		layer = LayerBase
	}
	for _, r := range TileRanges {
		if c.TileType < r.First || c.TileType > r.Last {
			continue
		}
		if !r.Shore || typ != "Water" {
			layer = r.Layer
		}
		return layer, r.Shore
	}
	return layer, false
}
