package formats

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// MaskLayerCount is the number of terrain mask layers (three RGB targets).
const MaskLayerCount = 9

// DefaultBrushSize is the brush footprint in world units when none is given.
const DefaultBrushSize = 1024

// ErrInvalidTextureSet is returned for malformed brush or tile texture sets.
var ErrInvalidTextureSet = errors.New("invalid texture set")

// BrushDef is one entry of a brush set.
type BrushDef struct {
	Name       string
	File       string
	Size       int
	Categories []string
}

// TileTextureDef is one tile texture of a terrain tile type.
type TileTextureDef struct {
	Name  string
	File  string
	Scale float32
}

// TileTypeDef groups the tile textures painted on one mask layer.
type TileTypeDef struct {
	Name     string
	Layer    int
	Textures []TileTextureDef
}

// TileTextureSet is the per-tileset list of tile textures and water textures.
type TileTextureSet struct {
	Types       []TileTypeDef
	Water       string
	WaterNormal string
}

type brushYAML struct {
	File       string   `yaml:"File"`
	Size       int      `yaml:"Size"`
	Categories []string `yaml:"Categories"`
}

// ParseBrushSet parses brush-set YAML, keeping document order.
func ParseBrushSet(data []byte) ([]BrushDef, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTextureSet, err)
	}
	root := documentMapping(&doc)
	if root == nil {
		return nil, fmt.Errorf("%w: brush set is not a mapping", ErrInvalidTextureSet)
	}

	var out []BrushDef
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate brush %q", ErrInvalidTextureSet, name)
		}
		seen[name] = true

		raw := brushYAML{Size: DefaultBrushSize, Categories: []string{"Common"}}
		if err := root.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: brush %q: %v", ErrInvalidTextureSet, name, err)
		}
		if raw.File == "" {
			return nil, fmt.Errorf("%w: brush %q has no file", ErrInvalidTextureSet, name)
		}
		out = append(out, BrushDef{Name: name, File: raw.File, Size: raw.Size, Categories: raw.Categories})
	}
	return out, nil
}

type tileTextureYAML struct {
	File  string  `yaml:"File"`
	Scale float32 `yaml:"Scale"`
}

type tileTypeYAML struct {
	Layer    int                        `yaml:"Layer"`
	Textures map[string]tileTextureYAML `yaml:"Textures"`
}

type tileTextureSetYAML struct {
	TypeDefine  map[string]tileTypeYAML `yaml:"TypeDefine"`
	WaterDefine struct {
		Color  string `yaml:"Color"`
		Normal string `yaml:"Normal"`
	} `yaml:"WaterDefine"`
}

// ParseTileTextureSet parses a tile texture set. Types and textures are
// sorted by name so texture array indices are stable.
func ParseTileTextureSet(data []byte) (*TileTextureSet, error) {
	var raw tileTextureSetYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTextureSet, err)
	}

	set := &TileTextureSet{Water: raw.WaterDefine.Color, WaterNormal: raw.WaterDefine.Normal}
	if set.Water == "" {
		set.Water = "Water"
	}
	if set.WaterNormal == "" {
		set.WaterNormal = "WaterNormal"
	}

	names := make([]string, 0, len(raw.TypeDefine))
	for name := range raw.TypeDefine {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := raw.TypeDefine[name]
		if t.Layer < 0 || t.Layer >= MaskLayerCount {
			return nil, fmt.Errorf("%w: type %q layer %d should be 0 - %d", ErrInvalidTextureSet, name, t.Layer, MaskLayerCount-1)
		}
		def := TileTypeDef{Name: name, Layer: t.Layer}
		texNames := make([]string, 0, len(t.Textures))
		for tn := range t.Textures {
			texNames = append(texNames, tn)
		}
		sort.Strings(texNames)
		for _, tn := range texNames {
			tex := t.Textures[tn]
			if tex.File == "" {
				return nil, fmt.Errorf("%w: %s-%s has no file", ErrInvalidTextureSet, name, tn)
			}
			if tex.Scale == 0 {
				tex.Scale = 1
			}
			def.Textures = append(def.Textures, TileTextureDef{Name: name + "-" + tn, File: tex.File, Scale: tex.Scale})
		}
		set.Types = append(set.Types, def)
	}
	return set, nil
}
