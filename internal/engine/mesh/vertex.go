package mesh

import (
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Instance record sizes.
const (
	InstanceFloats = 23
	InstanceInts   = 2
	InstanceStride = InstanceFloats + InstanceInts
)

// VertexLayout is the per-vertex stream of every mesh.
var VertexLayout = gpu.Layout{Attributes: []gpu.Attribute{
	{Name: "aPos", Components: 3},
	{Name: "aNormal", Components: 3},
	{Name: "aUV", Components: 2},
	{Name: "aBoneIDs", Components: 4, Integer: true},
	{Name: "aBoneWeights", Components: 4},
	{Name: "aSheet", Components: 1, Integer: true},
}}

// InstanceLayout is the per-instance stream, bound after VertexLayout.
var InstanceLayout = gpu.Layout{
	Instanced: true,
	Base:      len(VertexLayout.Attributes),
	Attributes: []gpu.Attribute{
		{Name: "aModel0", Components: 4},
		{Name: "aModel1", Components: 4},
		{Name: "aModel2", Components: 4},
		{Name: "aModel3", Components: 4},
		{Name: "aTint", Components: 4},
		{Name: "aRemap", Components: 3},
		{Name: "aDrawID", Components: 1, Integer: true},
		{Name: "aDrawMask", Components: 1, Integer: true},
	},
}

// Vertex is one expanded mesh vertex. Bones index skin bones, -1 when unused.
type Vertex struct {
	Pos     [3]float32
	Normal  [3]float32
	UV      [2]float32
	Bones   [4]int32
	Weights [4]float32
	Sheet   int32
}

func (v Vertex) appendTo(dst []float32) []float32 {
	dst = append(dst, v.Pos[:]...)
	dst = append(dst, v.Normal[:]...)
	dst = append(dst, v.UV[:]...)
	for _, b := range v.Bones {
		dst = append(dst, gpu.IntBits(b))
	}
	dst = append(dst, v.Weights[:]...)
	return append(dst, gpu.IntBits(v.Sheet))
}

// unskinned is the bone set of a vertex no skin bone moves.
var unskinned = [4]int32{-1, -1, -1, -1}

// InstanceData is one drawn copy of a mesh. DrawID is the pose texture row
// of the skeleton instance driving it, -1 for none. A zero DrawMask hides
// the instance.
type InstanceData struct {
	Model    math.Mat4
	Tint     [4]float32
	Remap    [3]float32
	DrawID   int32
	DrawMask uint32
}

// NewInstanceData returns an untinted, visible, unskinned instance at model.
func NewInstanceData(model math.Mat4) InstanceData {
	return InstanceData{Model: model, Tint: [4]float32{1, 1, 1, 1}, DrawID: -1, DrawMask: 1}
}

// Floats returns the 23 float fields in stream order.
func (d InstanceData) Floats() []float32 {
	out := make([]float32, 0, InstanceFloats)
	out = append(out, d.Model[:]...)
	out = append(out, d.Tint[:]...)
	return append(out, d.Remap[:]...)
}

// Ints returns the 2 integer fields in stream order.
func (d InstanceData) Ints() []int32 {
	return []int32{d.DrawID, int32(d.DrawMask)}
}
