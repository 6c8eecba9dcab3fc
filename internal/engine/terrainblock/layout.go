package terrainblock

import (
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Vertex layouts of the three terrain passes. Attribute order matches the
// shader locations.
var (
	MaskLayout = gpu.Layout{Attributes: []gpu.Attribute{
		{Name: "aPos", Components: 2},
		{Name: "aUV", Components: 2},
		{Name: "aType", Components: 1, Integer: true},
		{Name: "aLayer", Components: 1, Integer: true},
		{Name: "aIntensity", Components: 1, Integer: true},
	}}

	BlendLayout = gpu.Layout{Attributes: []gpu.Attribute{
		{Name: "aUV", Components: 2},
		{Name: "aMaskUV", Components: 2},
		{Name: "aColor", Components: 4},
		{Name: "aTangent", Components: 3},
		{Name: "aBitangent", Components: 3},
		{Name: "aNormal", Components: 3},
		{Name: "aTiles0", Components: 4, Integer: true},
		{Name: "aTiles1", Components: 4, Integer: true},
	}}

	FinalLayout = gpu.Layout{Attributes: []gpu.Attribute{
		{Name: "aPos", Components: 3},
		{Name: "aMaskUV", Components: 2},
	}}
)

var (
	maskStride  = MaskLayout.Stride()
	blendStride = BlendLayout.Stride()
	finalStride = FinalLayout.Stride()

	blendTilesOffset = BlendLayout.Offset("aTiles0")
)

// TileLayers holds the tile texture array layer drawn on mask layers 1-8.
type TileLayers [8]int32

// Corner order of the six vertices of a minicell, per split type.
// 0 = TL, 1 = TR, 2 = BL, 3 = BR.
var splitCorners = [2][6]int{
	terrain.SplitTRBL: {1, 2, 3, 1, 0, 2},
	terrain.SplitTLBR: {0, 2, 3, 1, 0, 3},
}

var cornerOffsets = [4]math.Int2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}

func cornerVertex(m terrain.MiniCell, corner int) int {
	switch corner {
	case 0:
		return m.TL
	case 1:
		return m.TR
	case 2:
		return m.BL
	}
	return m.BR
}

// putMaskVertex writes one brush vertex at dst.
func putMaskVertex(dst []float32, x, y, u, v float32, typ, layer, intensity int32) {
	dst[0], dst[1] = x, y
	dst[2], dst[3] = u, v
	dst[4] = gpu.IntBits(typ)
	dst[5] = gpu.IntBits(layer)
	dst[6] = gpu.IntBits(intensity)
}

// putBlendVertex writes one blend-pass vertex at dst.
func putBlendVertex(dst []float32, v *terrain.Vertex, maskUV math.Vec2, tiles TileLayers) {
	dst[0], dst[1] = v.UV.X, v.UV.Y
	dst[2], dst[3] = maskUV.X, maskUV.Y
	dst[4], dst[5], dst[6], dst[7] = v.Color.X, v.Color.Y, v.Color.Z, 1
	dst[8], dst[9], dst[10] = v.TBN.T.X, v.TBN.T.Y, v.TBN.T.Z
	dst[11], dst[12], dst[13] = v.TBN.B.X, v.TBN.B.Y, v.TBN.B.Z
	dst[14], dst[15], dst[16] = v.TBN.N.X, v.TBN.N.Y, v.TBN.N.Z
	for i, l := range tiles {
		dst[blendTilesOffset+i] = gpu.IntBits(l)
	}
}

// putFinalVertex writes one final-pass vertex at dst.
func putFinalVertex(dst []float32, v *terrain.Vertex, maskUV math.Vec2) {
	dst[0], dst[1], dst[2] = v.Pos.X, v.Pos.Y, v.Pos.Z
	dst[3], dst[4] = maskUV.X, maskUV.Y
}

// blendTiles reads back the tile layers of a blend-pass vertex.
func blendTiles(src []float32) TileLayers {
	var t TileLayers
	for i := range t {
		t[i] = gpu.BitsInt(src[blendTilesOffset+i])
	}
	return t
}
