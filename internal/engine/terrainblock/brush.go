package terrainblock

import (
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// MaskBrush is a brush image used to paint mask layers.
type MaskBrush struct {
	Name       string
	Categories []string
	ID         int
	// TextureIndex is the brush's layer in the brush texture array.
	TextureIndex int
	// DefaultSize is the brush radius in world units.
	DefaultSize int
	TextureSize math.Int2
	// MapSize is the world extent of the vertex grid.
	MapSize math.Int2
}

// NewMaskBrush binds a loaded brush to the extent of t.
func NewMaskBrush(info texture.BrushInfo, t *terrain.Terrain) *MaskBrush {
	return &MaskBrush{
		Name:         info.Name,
		Categories:   info.Categories,
		ID:           info.ID,
		TextureIndex: info.TextureIndex,
		DefaultSize:  info.DefaultSize,
		TextureSize:  math.Int2{X: info.Width, Y: info.Height},
		MapSize: math.Int2{
			X: (t.VertexWidth - 1) * terrain.MiniCellWidth,
			Y: (t.VertexHeight - 1) * terrain.MiniCellWidth,
		},
	}
}

// Vertices returns the quad painting the brush at pos with radius size on
// layer, in b's mask clip space.
func (br *MaskBrush) Vertices(b *Block, pos terrain.WPos, size, layer, intensity int) []float32 {
	return br.appendVertices(make([]float32, 0, 6*maskStride), b, pos, size, layer, intensity)
}

func (br *MaskBrush) appendVertices(dst []float32, b *Block, pos terrain.WPos, size, layer, intensity int) []float32 {
	rx, ry := b.grid.rangeX, b.grid.rangeY
	mx, my := float32(br.MapSize.X), float32(br.MapSize.Y)

	cx := (float32(pos.X)/mx-b.tlOffset.X)/rx*2 - 1
	cy := (float32(pos.Y)/my-b.tlOffset.Y)/ry*2 - 1
	sx := float32(size) / mx / rx
	sy := float32(size) / my / ry

	quad := [6][4]float32{
		{cx - sx, cy + sy, 0, 1},
		{cx - sx, cy - sy, 0, 0},
		{cx + sx, cy - sy, 1, 0},
		{cx - sx, cy + sy, 0, 1},
		{cx + sx, cy - sy, 1, 0},
		{cx + sx, cy + sy, 1, 1},
	}
	for _, q := range quad {
		n := len(dst)
		dst = append(dst, make([]float32, maskStride)...)
		putMaskVertex(dst[n:], q[0], q[1], q[2], q[3], int32(br.TextureIndex), int32(layer), int32(intensity))
	}
	return dst
}

// PaintSpot is one pending brush stroke on a block.
type PaintSpot struct {
	Brush     *MaskBrush
	Pos       terrain.WPos
	Size      int
	Layer     int
	Intensity int
}
