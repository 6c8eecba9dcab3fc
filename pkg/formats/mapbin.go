package formats

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// map.bin format versions.
const (
	MapBinV1 uint8 = 1
	MapBinV2 uint8 = 2
)

const (
	mapBinV1HeaderSize = 5
	mapBinV2HeaderSize = 17
	tileRecordSize     = 3
	resourceRecordSize = 2

	// pickAnyIndex marks a tile whose variant is derived from its position.
	pickAnyIndex = 0xFF
)

// map.bin errors.
var (
	ErrUnsupportedMapFormat = errors.New("unknown binary map format")
	ErrTruncatedMapData     = errors.New("truncated map data")
	ErrMapSizeMismatch      = errors.New("invalid tile data: map size mismatch")
)

// MapTile is a template id and tile index within the template.
type MapTile struct {
	Type  uint16
	Index uint8
}

// MapResource is a resource type and density.
type MapResource struct {
	Type    uint8
	Density uint8
}

// MapBin holds the per-cell layers of map.bin. Layers are indexed
// [y*Width+x].
type MapBin struct {
	Format    uint8
	Width     int
	Height    int
	Tiles     []MapTile
	Heights   []uint8
	Resources []MapResource
}

// NewMapBin allocates an empty v2 map of the given size.
func NewMapBin(width, height int) *MapBin {
	n := width * height
	return &MapBin{
		Format:    MapBinV2,
		Width:     width,
		Height:    height,
		Tiles:     make([]MapTile, n),
		Heights:   make([]uint8, n),
		Resources: make([]MapResource, n),
	}
}

// Index returns the layer index of cell (x, y).
func (m *MapBin) Index(x, y int) int {
	return y*m.Width + x
}

// ParseMapBin parses map.bin. Heights are clamped to maxHeight. Cells are
// stored column by column (x outer, y inner).
func ParseMapBin(data []byte, maxHeight uint8) (*MapBin, error) {
	if len(data) < mapBinV1HeaderSize {
		return nil, ErrTruncatedMapData
	}

	format := data[0]
	width := int(binary.LittleEndian.Uint16(data[1:3]))
	height := int(binary.LittleEndian.Uint16(data[3:5]))
	cells := width * height

	var tilesOff, heightsOff, resourcesOff uint32
	switch format {
	case MapBinV1:
		tilesOff = mapBinV1HeaderSize
		resourcesOff = uint32(tileRecordSize*cells + mapBinV1HeaderSize)
	case MapBinV2:
		if len(data) < mapBinV2HeaderSize {
			return nil, fmt.Errorf("%w: reading v2 offsets", ErrTruncatedMapData)
		}
		tilesOff = binary.LittleEndian.Uint32(data[5:9])
		heightsOff = binary.LittleEndian.Uint32(data[9:13])
		resourcesOff = binary.LittleEndian.Uint32(data[13:17])
	default:
		return nil, fmt.Errorf("%w: '%d'", ErrUnsupportedMapFormat, format)
	}

	m := NewMapBin(width, height)
	m.Format = format

	if tilesOff > 0 {
		if err := checkSection(data, tilesOff, tileRecordSize*cells, "tiles"); err != nil {
			return nil, err
		}
		p := int(tilesOff)
		for i := 0; i < width; i++ {
			for j := 0; j < height; j++ {
				tile := MapTile{
					Type:  binary.LittleEndian.Uint16(data[p : p+2]),
					Index: data[p+2],
				}
				if tile.Index == pickAnyIndex {
					tile.Index = uint8(i%4 + (j%4)*4)
				}
				m.Tiles[m.Index(i, j)] = tile
				p += tileRecordSize
			}
		}
	}

	if resourcesOff > 0 {
		if err := checkSection(data, resourcesOff, resourceRecordSize*cells, "resources"); err != nil {
			return nil, err
		}
		p := int(resourcesOff)
		for i := 0; i < width; i++ {
			for j := 0; j < height; j++ {
				m.Resources[m.Index(i, j)] = MapResource{Type: data[p], Density: data[p+1]}
				p += resourceRecordSize
			}
		}
	}

	if heightsOff > 0 {
		if err := checkSection(data, heightsOff, cells, "heights"); err != nil {
			return nil, err
		}
		p := int(heightsOff)
		for i := 0; i < width; i++ {
			for j := 0; j < height; j++ {
				h := data[p]
				if h > maxHeight {
					h = maxHeight
				}
				m.Heights[m.Index(i, j)] = h
				p++
			}
		}
	}

	return m, nil
}

func checkSection(data []byte, off uint32, size int, name string) error {
	if int64(off)+int64(size) > int64(len(data)) {
		return fmt.Errorf("%w: reading %s", ErrTruncatedMapData, name)
	}
	return nil
}

// ParseMapBinFile parses map.bin from disk and checks its size.
func ParseMapBinFile(path string, width, height int, maxHeight uint8) (*MapBin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map data: %w", err)
	}
	m, err := ParseMapBin(data, maxHeight)
	if err != nil {
		return nil, err
	}
	if width > 0 && height > 0 && (m.Width != width || m.Height != height) {
		return nil, fmt.Errorf("%w: expected %dx%d, got %dx%d", ErrMapSizeMismatch, width, height, m.Width, m.Height)
	}
	return m, nil
}

// WriteMapBin writes m in format 2. The heights section is omitted when
// maxHeight is 0.
func WriteMapBin(w io.Writer, m *MapBin, maxHeight uint8) error {
	bw := bufio.NewWriter(w)
	cells := m.Width * m.Height

	tilesOff := uint32(mapBinV2HeaderSize)
	var heightsOff uint32
	resourcesOff := uint32(tileRecordSize*cells + mapBinV2HeaderSize)
	if maxHeight > 0 {
		heightsOff = resourcesOff
		resourcesOff += uint32(cells)
	}

	header := []any{MapBinV2, uint16(m.Width), uint16(m.Height), tilesOff, heightsOff, resourcesOff}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	for i := 0; i < m.Width; i++ {
		for j := 0; j < m.Height; j++ {
			t := m.Tiles[m.Index(i, j)]
			if err := binary.Write(bw, binary.LittleEndian, t.Type); err != nil {
				return err
			}
			bw.WriteByte(t.Index)
		}
	}
	if heightsOff != 0 {
		for i := 0; i < m.Width; i++ {
			for j := 0; j < m.Height; j++ {
				bw.WriteByte(m.Heights[m.Index(i, j)])
			}
		}
	}
	for i := 0; i < m.Width; i++ {
		for j := 0; j < m.Height; j++ {
			r := m.Resources[m.Index(i, j)]
			bw.WriteByte(r.Type)
			bw.WriteByte(r.Density)
		}
	}

	return bw.Flush()
}
