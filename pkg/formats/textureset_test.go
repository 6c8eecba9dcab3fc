package formats

import (
	"errors"
	"testing"
)

func TestParseBrushSet(t *testing.T) {
	data := []byte(`
soft:
  File: brushes/soft.tga
  Size: 2048
  Categories: [Common, Round]
hard:
  File: brushes/hard.png
`)
	brushes, err := ParseBrushSet(data)
	if err != nil {
		t.Fatalf("ParseBrushSet failed: %v", err)
	}
	if len(brushes) != 2 || brushes[0].Name != "soft" || brushes[1].Name != "hard" {
		t.Fatalf("brushes = %+v", brushes)
	}
	if brushes[0].Size != 2048 || len(brushes[0].Categories) != 2 {
		t.Errorf("soft = %+v", brushes[0])
	}
	if brushes[1].Size != DefaultBrushSize || brushes[1].Categories[0] != "Common" {
		t.Errorf("hard should take defaults, got %+v", brushes[1])
	}
}

func TestParseBrushSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no file", "soft:\n  Size: 10\n"},
		{"duplicate", "a:\n  File: x\na:\n  File: y\n"},
		{"sequence", "- a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBrushSet([]byte(tt.yaml)); !errors.Is(err, ErrInvalidTextureSet) {
				t.Errorf("ParseBrushSet() error = %v, want ErrInvalidTextureSet", err)
			}
		})
	}
}

func TestParseTileTextureSet(t *testing.T) {
	data := []byte(`
TypeDefine:
  Grass:
    Layer: 3
    Textures:
      b: {File: grass02}
      a: {File: grass01, Scale: 2}
  Sand:
    Layer: 4
    Textures:
      a: {File: sand01}
WaterDefine:
  Color: SeaWater
`)
	set, err := ParseTileTextureSet(data)
	if err != nil {
		t.Fatalf("ParseTileTextureSet failed: %v", err)
	}
	if set.Water != "SeaWater" || set.WaterNormal != "WaterNormal" {
		t.Errorf("water = %q/%q", set.Water, set.WaterNormal)
	}
	if len(set.Types) != 2 || set.Types[0].Name != "Grass" {
		t.Fatalf("types = %+v", set.Types)
	}
	grass := set.Types[0]
	if grass.Textures[0].Name != "Grass-a" || grass.Textures[0].Scale != 2 || grass.Textures[1].Scale != 1 {
		t.Errorf("grass textures = %+v", grass.Textures)
	}

	if _, err := ParseTileTextureSet([]byte("TypeDefine:\n  Lava:\n    Layer: 9\n")); !errors.Is(err, ErrInvalidTextureSet) {
		t.Errorf("layer 9 error = %v, want ErrInvalidTextureSet", err)
	}
}
