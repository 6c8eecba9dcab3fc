package mesh

import (
	"bytes"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

// boneWeight is a skin bone id and its weight.
type boneWeight struct {
	bone   int32
	weight float32
}

// limitWeights keeps the four heaviest positive weights and normalizes them.
func limitWeights(ws []boneWeight) ([4]int32, [4]float32) {
	bones := unskinned
	var weights [4]float32

	kept := ws[:0:0]
	for _, w := range ws {
		if w.bone >= 0 && w.weight > 0 {
			kept = append(kept, w)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].weight > kept[j].weight })
	if len(kept) > 4 {
		kept = kept[:4]
	}
	var sum float32
	for _, w := range kept {
		sum += w.weight
	}
	for i, w := range kept {
		bones[i] = w.bone
		weights[i] = w.weight / sum
	}
	return bones, weights
}

// dataKey is the shared data key of a mesh file: skin ids depend on the
// skeleton the file is bound to.
func dataKey(file string, skel *skeleton.OrderedSkeleton) string {
	if skel == nil {
		return file
	}
	return file + "#" + skel.Asset.Name
}

// findFile returns the first candidate that exists in fsys.
func findFile(fsys fs.FS, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if st, err := fs.Stat(fsys, c); err == nil && !st.IsDir() {
			return c, true
		}
	}
	return "", false
}

// MMRLoader loads MeowMesh files, by name or with a .mmr suffix.
type MMRLoader struct{}

func (MMRLoader) TryLoad(c *Cache, def Definition) (*OrderedMesh, bool, error) {
	name := def.fileName()
	file, ok := findFile(c.fsys, name, name+".mmr")
	if !ok {
		return nil, false, nil
	}
	raw, err := fs.ReadFile(c.fsys, file)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", file)
	}
	if !bytes.HasPrefix(raw, []byte(formats.MMRMagic)) {
		return nil, false, nil
	}

	data, err := c.meshData(dataKey(file, def.Skeleton), func() (*Data, error) {
		m, err := formats.ParseMMR(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", file)
		}
		return newData(file, expandMMR(m, def.Skeleton)), nil
	})
	if err != nil {
		return nil, false, err
	}
	mesh, err := c.newMesh(file, data, def)
	if err != nil {
		return nil, false, err
	}
	return mesh, true, nil
}

// expandMMR fans every face into triangles and resolves vertex groups to
// skin bones of skel.
func expandMMR(m *formats.MMR, skel *skeleton.OrderedSkeleton) []Vertex {
	groupBone := make([]int32, len(m.Groups))
	for i, g := range m.Groups {
		groupBone[i] = -1
		if skel != nil {
			groupBone[i] = int32(skel.Asset.SkinBoneIDByName(g))
		}
	}

	corner := func(c formats.MMRCorner) Vertex {
		v := Vertex{
			Pos:    m.Positions[c.Pos],
			Normal: m.Normals[c.Normal],
			UV:     m.UVs[c.UV],
			Bones:  unskinned,
		}
		if len(m.Weights) > 0 {
			ws := make([]boneWeight, 0, len(m.Weights[c.Pos]))
			for _, w := range m.Weights[c.Pos] {
				ws = append(ws, boneWeight{bone: groupBone[w.Group], weight: w.Weight})
			}
			v.Bones, v.Weights = limitWeights(ws)
		}
		return v
	}

	verts := make([]Vertex, 0, m.TriangleCount()*3)
	for _, f := range m.Faces {
		for i := 1; i+1 < len(f); i++ {
			verts = append(verts, corner(f[0]), corner(f[i]), corner(f[i+1]))
		}
	}
	return verts
}

// GLTFLoader loads binary glTF (.glb) and self-contained .gltf files. Each
// triangle primitive becomes part of one vertex list; its material index
// selects the sheet.
type GLTFLoader struct{}

func (GLTFLoader) TryLoad(c *Cache, def Definition) (*OrderedMesh, bool, error) {
	name := def.fileName()
	var candidates []string
	switch strings.ToLower(path.Ext(name)) {
	case ".gltf", ".glb":
		candidates = []string{name}
	default:
		candidates = []string{name + ".glb", name + ".gltf"}
	}
	file, ok := findFile(c.fsys, candidates...)
	if !ok {
		return nil, false, nil
	}

	data, err := c.meshData(dataKey(file, def.Skeleton), func() (*Data, error) {
		f, err := c.fsys.Open(file)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", file)
		}
		defer f.Close()

		doc := new(gltf.Document)
		if err := gltf.NewDecoder(f).Decode(doc); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", file)
		}
		verts, err := expandGLTF(doc, def.Skeleton)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}
		return newData(file, verts), nil
	})
	if err != nil {
		return nil, false, err
	}
	mesh, err := c.newMesh(file, data, def)
	if err != nil {
		return nil, false, err
	}
	return mesh, true, nil
}

// expandGLTF flattens every triangle primitive of every mesh. Joints index
// the first skin's joint list and are resolved to skin bones by node name.
func expandGLTF(doc *gltf.Document, skel *skeleton.OrderedSkeleton) ([]Vertex, error) {
	var jointBone []int32
	if skel != nil && len(doc.Skins) > 0 {
		for _, node := range doc.Skins[0].Joints {
			jointBone = append(jointBone, int32(skel.Asset.SkinBoneIDByName(doc.Nodes[node].Name)))
		}
	}

	var verts []Vertex
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			if p.Mode != gltf.PrimitiveTriangles {
				continue
			}
			pv, err := primitiveVertices(doc, p, jointBone)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %s", m.Name)
			}
			verts = append(verts, pv...)
		}
	}
	if len(verts) == 0 {
		return nil, errors.New("no triangle primitives")
	}
	return verts, nil
}

func primitiveVertices(doc *gltf.Document, p *gltf.Primitive, jointBone []int32) ([]Vertex, error) {
	posIdx, ok := p.Attributes[gltf.POSITION]
	if !ok {
		return nil, errors.New("primitive has no positions")
	}
	pos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, errors.Wrap(err, "positions")
	}
	var normals [][3]float32
	if i, ok := p.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[i], nil); err != nil {
			return nil, errors.Wrap(err, "normals")
		}
	}
	var uvs [][2]float32
	if i, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[i], nil); err != nil {
			return nil, errors.Wrap(err, "uvs")
		}
	}
	var joints [][4]uint16
	var weights [][4]float32
	if jointBone != nil {
		ji, jok := p.Attributes[gltf.JOINTS_0]
		wi, wok := p.Attributes[gltf.WEIGHTS_0]
		if jok && wok {
			if joints, err = modeler.ReadJoints(doc, doc.Accessors[ji], nil); err != nil {
				return nil, errors.Wrap(err, "joints")
			}
			if weights, err = modeler.ReadWeights(doc, doc.Accessors[wi], nil); err != nil {
				return nil, errors.Wrap(err, "weights")
			}
		}
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil); err != nil {
			return nil, errors.Wrap(err, "indices")
		}
	} else {
		indices = make([]uint32, len(pos))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	var sheet int32
	if p.Material != nil {
		sheet = int32(*p.Material)
	}

	verts := make([]Vertex, 0, len(indices))
	for _, idx := range indices {
		if int(idx) >= len(pos) {
			return nil, errors.Errorf("index %d past %d positions", idx, len(pos))
		}
		v := Vertex{Pos: pos[idx], Bones: unskinned, Sheet: sheet}
		if int(idx) < len(normals) {
			v.Normal = normals[idx]
		}
		if int(idx) < len(uvs) {
			v.UV = uvs[idx]
		}
		if int(idx) < len(joints) && int(idx) < len(weights) {
			ws := make([]boneWeight, 0, 4)
			for k := 0; k < 4; k++ {
				bone := int32(-1)
				if j := int(joints[idx][k]); j < len(jointBone) {
					bone = jointBone[j]
				}
				ws = append(ws, boneWeight{bone: bone, weight: weights[idx][k]})
			}
			v.Bones, v.Weights = limitWeights(ws)
		}
		verts = append(verts, v)
	}
	return verts, nil
}
