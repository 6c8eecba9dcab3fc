package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// createTestMapBinV1 writes a v1 map where every tile is (type, 0xFF).
func createTestMapBinV1(width, height int, tileType uint16) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(1)
	binary.Write(buf, binary.LittleEndian, uint16(width))
	binary.Write(buf, binary.LittleEndian, uint16(height))
	for i := 0; i < width*height; i++ {
		binary.Write(buf, binary.LittleEndian, tileType)
		buf.WriteByte(0xFF)
	}
	for i := 0; i < width*height; i++ {
		buf.WriteByte(1)
		buf.WriteByte(2)
	}
	return buf.Bytes()
}

func TestParseMapBin_V1(t *testing.T) {
	m, err := ParseMapBin(createTestMapBinV1(5, 3, 42), 16)
	if err != nil {
		t.Fatalf("ParseMapBin failed: %v", err)
	}
	if m.Format != MapBinV1 || m.Width != 5 || m.Height != 3 {
		t.Fatalf("header = %d %dx%d", m.Format, m.Width, m.Height)
	}

	// Pick-any tiles resolve to a 4x4 variant pattern.
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			tile := m.Tiles[m.Index(x, y)]
			if want := uint8(x%4 + (y%4)*4); tile.Type != 42 || tile.Index != want {
				t.Errorf("tile (%d,%d) = %+v, want index %d", x, y, tile, want)
			}
		}
	}
	if m.Resources[0] != (MapResource{Type: 1, Density: 2}) {
		t.Errorf("resource = %+v", m.Resources[0])
	}
	for _, h := range m.Heights {
		if h != 0 {
			t.Fatal("v1 maps carry no heights")
		}
	}
}

func TestMapBin_WriteParse(t *testing.T) {
	src := NewMapBin(3, 2)
	for i := range src.Tiles {
		src.Tiles[i] = MapTile{Type: uint16(100 + i), Index: uint8(i)}
		src.Heights[i] = uint8(i * 5)
		src.Resources[i] = MapResource{Type: uint8(i), Density: 9}
	}

	var buf bytes.Buffer
	if err := WriteMapBin(&buf, src, 16); err != nil {
		t.Fatalf("WriteMapBin failed: %v", err)
	}
	// 17-byte header, 3 bytes per tile, 1 per height, 2 per resource
	if got, want := buf.Len(), 17+6*(3+1+2); got != want {
		t.Errorf("encoded size = %d, want %d", got, want)
	}

	got, err := ParseMapBin(buf.Bytes(), 16)
	if err != nil {
		t.Fatalf("ParseMapBin failed: %v", err)
	}
	for i := range src.Tiles {
		if got.Tiles[i] != src.Tiles[i] || got.Resources[i] != src.Resources[i] {
			t.Errorf("cell %d: tiles %+v/%+v resources %+v/%+v", i, got.Tiles[i], src.Tiles[i], got.Resources[i], src.Resources[i])
		}
		want := src.Heights[i]
		if want > 16 {
			want = 16
		}
		if got.Heights[i] != want {
			t.Errorf("cell %d height = %d, want %d", i, got.Heights[i], want)
		}
	}
}

func TestParseMapBin_Errors(t *testing.T) {
	v1 := createTestMapBinV1(2, 2, 1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", []byte{1, 0}, ErrTruncatedMapData},
		{"unknown format", append([]byte{9}, v1[1:]...), ErrUnsupportedMapFormat},
		{"truncated tiles", v1[:8], ErrTruncatedMapData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMapBin(tt.data, 16); !errors.Is(err, tt.want) {
				t.Errorf("ParseMapBin() error = %v, want %v", err, tt.want)
			}
		})
	}
}
