package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// TerrainMeshFileName is the conventional name of the baked mesh cache.
const TerrainMeshFileName = "Terrain.tm"

const terrainMeshVertexSize = 7 * 4

// Terrain.tm errors.
var (
	ErrTruncatedTerrainMesh   = errors.New("truncated terrain mesh data")
	ErrInvalidTerrainMeshSize = errors.New("invalid terrain mesh data")
)

// TerrainMeshVertex is one baked vertex: integer world position, vertex
// color and a terrain type code.
type TerrainMeshVertex struct {
	LogicPos    [3]int32
	Color       [3]float32
	TerrainCode int32
}

// TerrainMesh is the contents of Terrain.tm. Width and Height are the map
// size in cells; Vertices holds (2W+2)*(H+2) entries, row major.
type TerrainMesh struct {
	Width    int32
	Height   int32
	Vertices []TerrainMeshVertex
}

// TerrainMeshVertexCount returns the vertex count for a map of w*h cells.
func TerrainMeshVertexCount(w, h int) int {
	return (2*w + 2) * (h + 2)
}

// ParseTerrainMesh parses Terrain.tm. Negative heights are clamped to 0.
func ParseTerrainMesh(data []byte) (*TerrainMesh, error) {
	r := bytes.NewReader(data)

	tm := &TerrainMesh{}
	if err := binary.Read(r, binary.LittleEndian, &tm.Width); err != nil {
		return nil, fmt.Errorf("%w: reading width", ErrTruncatedTerrainMesh)
	}
	if err := binary.Read(r, binary.LittleEndian, &tm.Height); err != nil {
		return nil, fmt.Errorf("%w: reading height", ErrTruncatedTerrainMesh)
	}
	if tm.Width <= 0 || tm.Height <= 0 || tm.Width > 4096 || tm.Height > 4096 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidTerrainMeshSize, tm.Width, tm.Height)
	}

	count := TerrainMeshVertexCount(int(tm.Width), int(tm.Height))
	if r.Len() < count*terrainMeshVertexSize {
		return nil, fmt.Errorf("%w: need %d vertices", ErrTruncatedTerrainMesh, count)
	}

	tm.Vertices = make([]TerrainMeshVertex, count)
	if err := binary.Read(r, binary.LittleEndian, tm.Vertices); err != nil {
		return nil, fmt.Errorf("%w: reading vertices", ErrTruncatedTerrainMesh)
	}
	for i := range tm.Vertices {
		if tm.Vertices[i].LogicPos[2] < 0 {
			tm.Vertices[i].LogicPos[2] = 0
		}
	}
	return tm, nil
}

// ParseTerrainMeshFile parses Terrain.tm from disk.
func ParseTerrainMeshFile(path string) (*TerrainMesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading terrain mesh: %w", err)
	}
	return ParseTerrainMesh(data)
}

// CheckSize fails unless the mesh was baked for a map of w*h cells.
func (tm *TerrainMesh) CheckSize(w, h int) error {
	if int(tm.Width) != w || int(tm.Height) != h {
		return fmt.Errorf("%w: map size is %dx%d and data size is %dx%d",
			ErrInvalidTerrainMeshSize, w, h, tm.Width, tm.Height)
	}
	return nil
}

// WriteTerrainMesh writes tm in Terrain.tm layout.
func WriteTerrainMesh(w io.Writer, tm *TerrainMesh) error {
	if want := TerrainMeshVertexCount(int(tm.Width), int(tm.Height)); len(tm.Vertices) != want {
		return fmt.Errorf("%w: %d vertices, want %d", ErrInvalidTerrainMeshSize, len(tm.Vertices), want)
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, tm.Width); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, tm.Height); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, tm.Vertices); err != nil {
		return err
	}
	return bw.Flush()
}

// terrainCodes maps Terrain.tm type codes to terrain type names. Codes not
// listed read back as DefaultTerrainType.
var terrainCodes = map[int32]string{
	0:  "Water",
	1:  "Cliff",
	2:  "Road",
	3:  "Rough",
	4:  "Rough",
	5:  "DirtRoad",
	7:  "Rough",
	8:  "Rough",
	11: "Rail",
	12: "Impassable",
	13: "Rock",
	14: "Bridge",
}

// clearTerrainCode is written for every type without a code of its own.
const clearTerrainCode int32 = 6

// TerrainCodeName returns the terrain type name for a Terrain.tm code.
func TerrainCodeName(code int32) string {
	if name, ok := terrainCodes[code]; ok {
		return name
	}
	return DefaultTerrainType
}

// TerrainNameCode returns the lowest code that reads back as name.
func TerrainNameCode(name string) int32 {
	best := clearTerrainCode
	found := false
	for code, n := range terrainCodes {
		if n == name && (!found || code < best) {
			best, found = code, true
		}
	}
	return best
}
