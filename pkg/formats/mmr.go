package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MMRMagic is the 8-byte header of a mesh file.
const MMRMagic = "MeowMesh"

// mmrReserved is the count of unused int32 header slots.
const mmrReserved = 20

// Mesh file errors.
var (
	ErrInvalidMMRMagic  = errors.New("invalid mesh magic: expected 'MeowMesh'")
	ErrTruncatedMMRData = errors.New("truncated mesh data")
	ErrMMRIndex         = errors.New("mesh face index out of range")
)

// MMRGroupWeight is a vertex's weight in one vertex group.
type MMRGroupWeight struct {
	Group  int32
	Weight float32
}

// MMRCorner indexes the position, uv and normal of one face corner.
type MMRCorner struct {
	Pos, UV, Normal int32
}

// MMR is a parsed mesh: indexed positions, uvs and normals, vertex groups
// named after skeleton bones, and polygon faces.
type MMR struct {
	Version   string
	Name      string
	Positions [][3]float32
	Groups    []string
	// Weights has one entry per position when Groups is not empty.
	Weights [][]MMRGroupWeight
	// UVs are stored with v already flipped for GL.
	UVs     [][2]float32
	Normals [][3]float32
	Faces   [][]MMRCorner
}

// ParseMMR parses a mesh file.
func ParseMMR(data []byte) (*MMR, error) {
	if len(data) < len(MMRMagic) {
		return nil, ErrTruncatedMMRData
	}
	if string(data[:len(MMRMagic)]) != MMRMagic {
		return nil, ErrInvalidMMRMagic
	}
	r := bytes.NewReader(data[len(MMRMagic):])
	m := &MMR{}

	var err error
	if m.Version, err = readTerminated(r); err != nil {
		return nil, fmt.Errorf("%w: reading version", ErrTruncatedMMRData)
	}
	if m.Name, err = readTerminated(r); err != nil {
		return nil, fmt.Errorf("%w: reading name", ErrTruncatedMMRData)
	}
	if _, err := r.Seek(mmrReserved*4, io.SeekCurrent); err != nil || r.Len() == 0 {
		return nil, fmt.Errorf("%w: reserved header", ErrTruncatedMMRData)
	}

	count := func(what string) (int, error) {
		var n int32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return 0, fmt.Errorf("%w: reading %s count", ErrTruncatedMMRData, what)
		}
		if n < 0 || int(n) > r.Len() {
			return 0, fmt.Errorf("%w: %s count %d", ErrTruncatedMMRData, what, n)
		}
		return int(n), nil
	}

	n, err := count("vertex")
	if err != nil {
		return nil, err
	}
	m.Positions = make([][3]float32, n)
	if err := binary.Read(r, binary.LittleEndian, m.Positions); err != nil {
		return nil, fmt.Errorf("%w: positions", ErrTruncatedMMRData)
	}

	groups, err := count("vertex group")
	if err != nil {
		return nil, err
	}
	for i := 0; i < groups; i++ {
		name, err := readTerminated(r)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex group %d", ErrTruncatedMMRData, i)
		}
		m.Groups = append(m.Groups, name)
	}
	if groups > 0 {
		m.Weights = make([][]MMRGroupWeight, len(m.Positions))
		for i := range m.Weights {
			wc, err := count("weight")
			if err != nil {
				return nil, err
			}
			m.Weights[i] = make([]MMRGroupWeight, wc)
			if err := binary.Read(r, binary.LittleEndian, m.Weights[i]); err != nil {
				return nil, fmt.Errorf("%w: weights of vertex %d", ErrTruncatedMMRData, i)
			}
			for _, w := range m.Weights[i] {
				if w.Group < 0 || int(w.Group) >= groups {
					return nil, fmt.Errorf("%w: vertex %d group %d", ErrMMRIndex, i, w.Group)
				}
			}
		}
	}

	if n, err = count("uv"); err != nil {
		return nil, err
	}
	m.UVs = make([][2]float32, n)
	if err := binary.Read(r, binary.LittleEndian, m.UVs); err != nil {
		return nil, fmt.Errorf("%w: uvs", ErrTruncatedMMRData)
	}
	for i := range m.UVs {
		m.UVs[i][1] = 1 - m.UVs[i][1]
	}

	if n, err = count("normal"); err != nil {
		return nil, err
	}
	m.Normals = make([][3]float32, n)
	if err := binary.Read(r, binary.LittleEndian, m.Normals); err != nil {
		return nil, fmt.Errorf("%w: normals", ErrTruncatedMMRData)
	}

	faces, err := count("face")
	if err != nil {
		return nil, err
	}
	m.Faces = make([][]MMRCorner, faces)
	for i := range m.Faces {
		vc, err := count("face corner")
		if err != nil {
			return nil, err
		}
		face := make([]MMRCorner, vc)
		if err := binary.Read(r, binary.LittleEndian, face); err != nil {
			return nil, fmt.Errorf("%w: face %d", ErrTruncatedMMRData, i)
		}
		for _, c := range face {
			if !inRange(c.Pos, len(m.Positions)) || !inRange(c.UV, len(m.UVs)) || !inRange(c.Normal, len(m.Normals)) {
				return nil, fmt.Errorf("%w: face %d corner %+v", ErrMMRIndex, i, c)
			}
		}
		m.Faces[i] = face
	}
	return m, nil
}

func inRange(i int32, n int) bool {
	return i >= 0 && int(i) < n
}

// TriangleCount returns the triangles the faces fan into.
func (m *MMR) TriangleCount() int {
	n := 0
	for _, f := range m.Faces {
		if len(f) >= 3 {
			n += len(f) - 2
		}
	}
	return n
}

// WriteMMR encodes m. UVs are written with v flipped back.
func WriteMMR(w io.Writer, m *MMR) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(MMRMagic)
	writeTerminated(bw, m.Version)
	writeTerminated(bw, m.Name)
	binary.Write(bw, binary.LittleEndian, [mmrReserved]int32{})

	binary.Write(bw, binary.LittleEndian, int32(len(m.Positions)))
	binary.Write(bw, binary.LittleEndian, m.Positions)

	binary.Write(bw, binary.LittleEndian, int32(len(m.Groups)))
	for _, g := range m.Groups {
		writeTerminated(bw, g)
	}
	if len(m.Groups) > 0 {
		for i := range m.Positions {
			var ws []MMRGroupWeight
			if i < len(m.Weights) {
				ws = m.Weights[i]
			}
			binary.Write(bw, binary.LittleEndian, int32(len(ws)))
			binary.Write(bw, binary.LittleEndian, ws)
		}
	}

	binary.Write(bw, binary.LittleEndian, int32(len(m.UVs)))
	for _, uv := range m.UVs {
		binary.Write(bw, binary.LittleEndian, [2]float32{uv[0], 1 - uv[1]})
	}

	binary.Write(bw, binary.LittleEndian, int32(len(m.Normals)))
	binary.Write(bw, binary.LittleEndian, m.Normals)

	binary.Write(bw, binary.LittleEndian, int32(len(m.Faces)))
	for _, f := range m.Faces {
		binary.Write(bw, binary.LittleEndian, int32(len(f)))
		binary.Write(bw, binary.LittleEndian, f)
	}
	return bw.Flush()
}
