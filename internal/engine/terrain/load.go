package terrain

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

// File names inside a map directory.
const (
	MapBinFile      = "map.bin"
	TerrainMeshFile = "Terrain.tm"
)

// OptionsFromConfig returns the baking options of c.
func OptionsFromConfig(c config.TerrainConfig) Options {
	return Options{
		HeightStep:          c.HeightStep,
		ColorGain:           c.ColorGain,
		CliffThreshold:      c.CliffThreshold,
		AlmostFlatTolerance: c.AlmostFlatTolerance,
		Seed:                c.ColorSeed,
	}
}

// LoadMap reads map.bin and the tileset from dir. A Terrain.tm next to them
// is imported; otherwise the grid is baked. baked reports which one ran.
func LoadMap(dir, tileset string, cfg *config.Config) (t *Terrain, baked bool, err error) {
	m, err := formats.ParseMapBinFile(filepath.Join(dir, MapBinFile), 0, 0, cfg.Terrain.MaxHeight)
	if err != nil {
		return nil, false, err
	}
	if !filepath.IsAbs(tileset) {
		tileset = filepath.Join(dir, tileset)
	}
	ts, err := formats.ParseTilesetFile(tileset)
	if err != nil {
		return nil, false, err
	}

	g := GridFromMapBin(m, ts)
	opts := OptionsFromConfig(cfg.Terrain)

	tm, err := formats.ParseTerrainMeshFile(filepath.Join(dir, TerrainMeshFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		t, err = Bake(g, ts, opts)
		baked = true
	case err != nil:
		return nil, false, err
	default:
		t, err = Import(tm, g, ts, opts)
	}
	if err != nil {
		return nil, false, err
	}
	logger.Info("map loaded",
		zap.String("dir", dir),
		zap.Int("width", g.Width),
		zap.Int("height", g.Height),
		zap.Bool("baked", baked))
	return t, baked, nil
}

// SaveMesh writes the Terrain.tm of t to path.
func (t *Terrain) SaveMesh(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := formats.WriteTerrainMesh(f, t.Export()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
