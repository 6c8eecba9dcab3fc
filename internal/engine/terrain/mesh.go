package terrain

import (
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Mesh is the terrain as one indexed triangle list, for export and debug
// drawing.
type Mesh struct {
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Colors    [][4]uint8
	Indices   []uint32
	Bounds    Bounds
}

// BuildMesh triangulates every minicell over the shared vertices.
func (t *Terrain) BuildMesh() *Mesh {
	m := &Mesh{
		Positions: make([][3]float32, len(t.Vertices)),
		Normals:   make([][3]float32, len(t.Vertices)),
		UVs:       make([][2]float32, len(t.Vertices)),
		Colors:    make([][4]uint8, len(t.Vertices)),
		Indices:   make([]uint32, 0, len(t.MiniCells)*6),
		Bounds:    t.Bounds(),
	}
	for i, v := range t.Vertices {
		m.Positions[i] = v.Pos.Array()
		m.Normals[i] = v.TBN.N.Array()
		m.UVs[i] = [2]float32{v.MapUV.X, v.MapUV.Y}
		m.Colors[i] = [4]uint8{unorm(v.Color.X), unorm(v.Color.Y), unorm(v.Color.Z), 255}
	}
	for _, mc := range t.MiniCells {
		for _, vi := range mc.Triangles() {
			m.Indices = append(m.Indices, uint32(vi))
		}
	}
	return m
}

func unorm(f float32) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(f*255 + 0.5)
}

// ExportGLTF writes the terrain mesh as binary glTF.
func (t *Terrain) ExportGLTF(w io.Writer) error {
	m := t.BuildMesh()

	doc := gltf.NewDocument()
	attrs := map[string]uint32{
		gltf.POSITION:   modeler.WritePosition(doc, m.Positions),
		gltf.NORMAL:     modeler.WriteNormal(doc, m.Normals),
		gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, m.UVs),
		gltf.COLOR_0:    modeler.WriteColor(doc, m.Colors),
	}
	doc.Meshes = []*gltf.Mesh{{
		Name: "terrain",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(modeler.WriteIndices(doc, m.Indices)),
			Attributes: attrs,
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: "terrain", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}
