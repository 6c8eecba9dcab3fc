package texture

import (
	"errors"
	"math/rand"
	"testing"
	"testing/fstest"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu/gputest"
)

func pngFile(t *testing.T, w, h int) *fstest.MapFile {
	t.Helper()
	data, err := EncodePNG(Solid(w, h, 200, 200, 200, 255), w, h)
	if err != nil {
		t.Fatal(err)
	}
	return &fstest.MapFile{Data: data}
}

func testFS(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"tiles.yaml": {Data: []byte(`
TypeDefine:
  Grass:
    Layer: 3
    Textures:
      a: {File: grass01, Scale: 2}
      b: {File: grass02}
  Sand:
    Layer: 4
    Textures:
      a: {File: sand01}
`)},
		"brush-set.yaml": {Data: []byte("soft:\n  File: soft.png\n  Size: 2048\nhard:\n  File: hard.png\n")},
		"grass01.png":      pngFile(t, 4, 4),
		"grass01_NORM.png": pngFile(t, 4, 4),
		"grass02.png":      pngFile(t, 4, 4),
		"sand01.png":       pngFile(t, 4, 4),
		"soft.png":         pngFile(t, 8, 8),
		"hard.png":         pngFile(t, 8, 8),
	}
}

func TestLoadCache(t *testing.T) {
	c, err := Load(testFS(t), "brush-set.yaml", "tiles.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.TileCount() != 3 || len(c.TileScales) != 3 || c.TileScales[0] != 2 {
		t.Errorf("tiles = %d, scales = %v", c.TileCount(), c.TileScales)
	}
	if got := c.TileTypeTexIndices["Grass"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("grass indices = %v", got)
	}
	if got := c.LayerTileTypes[4]; len(got) != 1 || got[0] != "Sand" {
		t.Errorf("layer 4 types = %v", got)
	}

	hard, ok := c.Brush("hard")
	if !ok || hard.ID != 1 || hard.TextureIndex != 1 || hard.DefaultSize != 1024 || hard.Width != 8 {
		t.Errorf("hard brush = %+v, %v", hard, ok)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		if got := c.RandomTile(4, rng); got != 2 {
			t.Fatalf("RandomTile(4) = %d, want 2", got)
		}
		if got := c.RandomTile(3, rng); got != 0 && got != 1 {
			t.Fatalf("RandomTile(3) = %d", got)
		}
	}
	if got := c.RandomTile(7, rng); got != 0 {
		t.Errorf("empty layer tile = %d, want 0", got)
	}

	dev := gputest.New()
	if err := c.Upload(dev); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if c.BrushArray.Layers() != 2 || c.TileArray.Layers() != 3 || c.TileNormalArray.Layers() != 3 {
		t.Errorf("array layers = %d/%d/%d", c.BrushArray.Layers(), c.TileArray.Layers(), c.TileNormalArray.Layers())
	}
}

func TestLoadCache_Errors(t *testing.T) {
	fsys := testFS(t)
	fsys["hard.png"] = pngFile(t, 16, 16)
	if _, err := Load(fsys, "brush-set.yaml", "tiles.yaml"); !errors.Is(err, ErrLayerSize) {
		t.Errorf("mixed brush sizes error = %v, want ErrLayerSize", err)
	}

	fsys = testFS(t)
	delete(fsys, "sand01.png")
	if _, err := Load(fsys, "brush-set.yaml", "tiles.yaml"); err == nil {
		t.Error("expected error for missing tile texture")
	}
}
