package formats

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTerrainType is used for tiles whose template is unknown.
const DefaultTerrainType = "Clear"

// Tileset errors.
var (
	ErrInvalidTileset = errors.New("invalid tileset")
	ErrInvalidColor   = errors.New("invalid color")
)

// TerrainType is a named terrain class with its minimap/vertex colors.
type TerrainType struct {
	Type   string
	Colors []color.RGBA
}

// Template maps the tiles of one template id to terrain types and ramps.
// Per-index overrides take precedence over the template-wide values.
type Template struct {
	Terrain string
	Ramp    uint8
	Tiles   map[uint8]string
	Ramps   map[uint8]uint8
}

// Tileset is the terrain definition a map is painted with.
type Tileset struct {
	Name         string
	TerrainTypes []TerrainType
	Templates    map[uint16]Template

	index map[string]int
}

type terrainTypeYAML struct {
	Type   string   `yaml:"Type"`
	Colors []string `yaml:"Colors"`
}

type templateYAML struct {
	Terrain string           `yaml:"Terrain"`
	Ramp    uint8            `yaml:"Ramp"`
	Tiles   map[uint8]string `yaml:"Tiles"`
	Ramps   map[uint8]uint8  `yaml:"Ramps"`
}

type tilesetYAML struct {
	Name         string                  `yaml:"Name"`
	TerrainTypes []terrainTypeYAML       `yaml:"TerrainTypes"`
	Templates    map[uint16]templateYAML `yaml:"Templates"`
}

// ParseTileset parses a tileset YAML document.
func ParseTileset(data []byte) (*Tileset, error) {
	var raw tilesetYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTileset, err)
	}

	ts := &Tileset{Name: raw.Name, Templates: make(map[uint16]Template, len(raw.Templates))}
	for _, tt := range raw.TerrainTypes {
		t := TerrainType{Type: tt.Type}
		for _, c := range tt.Colors {
			rgba, err := ParseHexColor(c)
			if err != nil {
				return nil, fmt.Errorf("terrain type %q: %w", tt.Type, err)
			}
			t.Colors = append(t.Colors, rgba)
		}
		ts.TerrainTypes = append(ts.TerrainTypes, t)
	}
	for id, tpl := range raw.Templates {
		ts.Templates[id] = Template(tpl)
	}

	if err := ts.init(); err != nil {
		return nil, err
	}
	return ts, nil
}

// ParseTilesetFile parses a tileset from disk.
func ParseTilesetFile(path string) (*Tileset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tileset file: %w", err)
	}
	return ParseTileset(data)
}

// NewTileset builds a tileset in code. A "Clear" type is added if missing.
func NewTileset(name string, types []TerrainType, templates map[uint16]Template) (*Tileset, error) {
	ts := &Tileset{Name: name, TerrainTypes: types, Templates: templates}
	if ts.Templates == nil {
		ts.Templates = make(map[uint16]Template)
	}
	if err := ts.init(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *Tileset) init() error {
	ts.index = make(map[string]int, len(ts.TerrainTypes)+1)
	for i, t := range ts.TerrainTypes {
		if _, dup := ts.index[t.Type]; dup {
			return fmt.Errorf("%w: duplicate terrain type %q", ErrInvalidTileset, t.Type)
		}
		ts.index[t.Type] = i
	}
	if _, ok := ts.index[DefaultTerrainType]; !ok {
		ts.index[DefaultTerrainType] = len(ts.TerrainTypes)
		ts.TerrainTypes = append(ts.TerrainTypes, TerrainType{
			Type:   DefaultTerrainType,
			Colors: []color.RGBA{{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}},
		})
	}
	for id, tpl := range ts.Templates {
		if _, ok := ts.index[tpl.Terrain]; tpl.Terrain != "" && !ok {
			return fmt.Errorf("%w: template %d uses unknown terrain %q", ErrInvalidTileset, id, tpl.Terrain)
		}
		for idx, name := range tpl.Tiles {
			if _, ok := ts.index[name]; !ok {
				return fmt.Errorf("%w: template %d tile %d uses unknown terrain %q", ErrInvalidTileset, id, idx, name)
			}
		}
	}
	return nil
}

// TerrainIndex returns the index of a terrain type by name.
func (ts *Tileset) TerrainIndex(name string) (int, bool) {
	i, ok := ts.index[name]
	return i, ok
}

// TileTerrain returns the terrain type index and ramp of a map tile. Unknown
// templates resolve to the default terrain with ramp 0.
func (ts *Tileset) TileTerrain(tile MapTile) (int, uint8) {
	tpl, ok := ts.Templates[tile.Type]
	if !ok {
		return ts.index[DefaultTerrainType], 0
	}

	name := tpl.Terrain
	if n, ok := tpl.Tiles[tile.Index]; ok {
		name = n
	}
	if name == "" {
		name = DefaultTerrainType
	}

	ramp := tpl.Ramp
	if r, ok := tpl.Ramps[tile.Index]; ok {
		ramp = r
	}
	return ts.index[name], ramp
}

// ParseHexColor parses "#RRGGBB", "RRGGBB" or "RRGGBBAA".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if len(h) == 6 {
		v = v<<8 | 0xFF
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
