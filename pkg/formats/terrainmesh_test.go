package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestTerrainMesh_WriteParse(t *testing.T) {
	src := &TerrainMesh{Width: 2, Height: 1}
	src.Vertices = make([]TerrainMeshVertex, TerrainMeshVertexCount(2, 1))
	for i := range src.Vertices {
		src.Vertices[i] = TerrainMeshVertex{
			LogicPos:    [3]int32{int32(i) * 724, 0, int32(i) * 10},
			Color:       [3]float32{0.25, 0.5, 0.75},
			TerrainCode: int32(i % 15),
		}
	}

	var buf bytes.Buffer
	if err := WriteTerrainMesh(&buf, src); err != nil {
		t.Fatalf("WriteTerrainMesh failed: %v", err)
	}
	if want := 8 + 18*28; buf.Len() != want {
		t.Errorf("encoded size = %d, want %d", buf.Len(), want)
	}

	got, err := ParseTerrainMesh(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseTerrainMesh failed: %v", err)
	}
	if len(got.Vertices) != 18 {
		t.Fatalf("expected 18 vertices, got %d", len(got.Vertices))
	}
	for i := range got.Vertices {
		if got.Vertices[i] != src.Vertices[i] {
			t.Errorf("vertex %d = %+v, want %+v", i, got.Vertices[i], src.Vertices[i])
		}
	}
	if err := got.CheckSize(2, 1); err != nil {
		t.Errorf("CheckSize(2, 1) = %v", err)
	}
	if err := got.CheckSize(4, 4); !errors.Is(err, ErrInvalidTerrainMeshSize) {
		t.Errorf("CheckSize(4, 4) = %v, want ErrInvalidTerrainMeshSize", err)
	}
}

func TestParseTerrainMesh_ClampsNegativeHeight(t *testing.T) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int32(1))
	binary.Write(buf, binary.LittleEndian, int32(1))
	for i := 0; i < TerrainMeshVertexCount(1, 1); i++ {
		binary.Write(buf, binary.LittleEndian, TerrainMeshVertex{LogicPos: [3]int32{0, 0, -300}})
	}

	tm, err := ParseTerrainMesh(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseTerrainMesh failed: %v", err)
	}
	if z := tm.Vertices[0].LogicPos[2]; z != 0 {
		t.Errorf("z = %d, want 0", z)
	}
}

func TestParseTerrainMesh_Truncated(t *testing.T) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int32(4))
	binary.Write(buf, binary.LittleEndian, int32(4))

	if _, err := ParseTerrainMesh(buf.Bytes()); !errors.Is(err, ErrTruncatedTerrainMesh) {
		t.Errorf("error = %v, want ErrTruncatedTerrainMesh", err)
	}
	if _, err := ParseTerrainMesh([]byte{1}); !errors.Is(err, ErrTruncatedTerrainMesh) {
		t.Errorf("error = %v, want ErrTruncatedTerrainMesh", err)
	}
}

func TestTerrainCodes(t *testing.T) {
	tests := []struct {
		code int32
		name string
	}{
		{0, "Water"},
		{1, "Cliff"},
		{4, "Rough"},
		{5, "DirtRoad"},
		{6, "Clear"},
		{14, "Bridge"},
		{99, "Clear"},
	}
	for _, tt := range tests {
		if got := TerrainCodeName(tt.code); got != tt.name {
			t.Errorf("TerrainCodeName(%d) = %q, want %q", tt.code, got, tt.name)
		}
	}

	for _, name := range []string{"Water", "Rough", "Rail", "Clear", "Beach"} {
		want := name
		if name == "Beach" {
			want = "Clear"
		}
		if got := TerrainCodeName(TerrainNameCode(name)); got != want {
			t.Errorf("round trip of %q = %q", name, got)
		}
	}
	if TerrainNameCode("Rough") != 3 {
		t.Errorf("Rough should encode as 3")
	}
}
