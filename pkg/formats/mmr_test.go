package formats

import (
	"bytes"
	"errors"
	"testing"
)

func testQuadMMR() *MMR {
	return &MMR{
		Version: "1.0",
		Name:    "quad",
		Positions: [][3]float32{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		},
		Groups: []string{"root", "arm"},
		Weights: [][]MMRGroupWeight{
			{{Group: 0, Weight: 1}},
			{{Group: 0, Weight: 0.5}, {Group: 1, Weight: 0.5}},
			{{Group: 1, Weight: 1}},
			nil,
		},
		UVs:     [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Normals: [][3]float32{{0, 0, 1}},
		Faces: [][]MMRCorner{
			{{0, 0, 0}, {1, 1, 0}, {2, 2, 0}, {3, 3, 0}},
		},
	}
}

func encodeMMR(t *testing.T, m *MMR) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMMR(&buf, m); err != nil {
		t.Fatalf("WriteMMR: %v", err)
	}
	return buf.Bytes()
}

func TestParseMMR(t *testing.T) {
	data := encodeMMR(t, testQuadMMR())

	m, err := ParseMMR(data)
	if err != nil {
		t.Fatalf("ParseMMR failed: %v", err)
	}
	if m.Name != "quad" || m.Version != "1.0" {
		t.Errorf("header = %q %q", m.Name, m.Version)
	}
	if len(m.Positions) != 4 || len(m.Groups) != 2 {
		t.Fatalf("got %d positions, %d groups", len(m.Positions), len(m.Groups))
	}
	if got := m.Weights[1]; len(got) != 2 || got[1].Group != 1 || got[1].Weight != 0.5 {
		t.Errorf("weights of vertex 1 = %+v", got)
	}
	if len(m.Weights[3]) != 0 {
		t.Errorf("vertex 3 should carry no weights, got %+v", m.Weights[3])
	}
	if m.UVs[2] != [2]float32{1, 1} {
		t.Errorf("uv 2 = %v", m.UVs[2])
	}
	if m.TriangleCount() != 2 {
		t.Errorf("TriangleCount() = %d, want 2", m.TriangleCount())
	}
}

func TestParseMMR_Errors(t *testing.T) {
	valid := encodeMMR(t, testQuadMMR())

	badIndex := testQuadMMR()
	badIndex.Faces[0][2].Normal = 7

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedMMRData},
		{"bad magic", append([]byte("NotAMesh"), valid[8:]...), ErrInvalidMMRMagic},
		{"truncated", valid[:len(valid)-6], ErrTruncatedMMRData},
		{"header only", valid[:20], ErrTruncatedMMRData},
		{"face index", encodeMMR(t, badIndex), ErrMMRIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMMR(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("ParseMMR() error = %v, want %v", err, tt.want)
			}
		})
	}
}
