// Command terrainbake bakes map.bin and a tileset into Terrain.tm, optionally
// exporting the mesh as binary glTF.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

func main() {
	mapPath := flag.String("map", "", "Path to map.bin")
	tilesetPath := flag.String("tileset", "", "Path to the tileset YAML")
	out := flag.String("out", "", "Output Terrain.tm (default: next to map.bin)")
	gltfOut := flag.String("gltf", "", "Also write the mesh as binary glTF")
	cfgPath := flag.String("config", "", "Path to config file")
	seed := flag.Int64("seed", 0, "Vertex color jitter seed")
	debug := flag.Bool("debug", false, "Enable debug logging")
	writeCfg := flag.String("write-config", "", "Write the effective config to this path")
	flag.Parse()

	if *mapPath == "" || *tilesetPath == "" {
		fmt.Fprintln(os.Stderr, "usage: terrainbake -map map.bin -tileset tileset.yaml [-out Terrain.tm] [-gltf terrain.glb]")
		os.Exit(2)
	}

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *seed != 0 {
		cfg.Terrain.ColorSeed = *seed
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *writeCfg != "" {
		if err := cfg.SaveTo(*writeCfg); err != nil {
			logger.Error("saving config failed", zap.Error(err))
			os.Exit(1)
		}
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*mapPath), terrain.TerrainMeshFile)
	}
	if err := bake(cfg, *mapPath, *tilesetPath, *out, *gltfOut); err != nil {
		logger.Error("bake failed", zap.Error(err))
		os.Exit(1)
	}
}

func bake(cfg *config.Config, mapPath, tilesetPath, out, gltfOut string) error {
	m, err := formats.ParseMapBinFile(mapPath, 0, 0, cfg.Terrain.MaxHeight)
	if err != nil {
		return err
	}
	ts, err := formats.ParseTilesetFile(tilesetPath)
	if err != nil {
		return err
	}
	t, err := terrain.Bake(terrain.GridFromMapBin(m, ts), ts, terrain.OptionsFromConfig(cfg.Terrain))
	if err != nil {
		return err
	}
	if err := t.SaveMesh(out); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	logger.Info("terrain baked",
		zap.String("out", out),
		zap.Int("width", m.Width),
		zap.Int("height", m.Height),
		zap.Int("vertices", len(t.Vertices)))

	if gltfOut == "" {
		return nil
	}
	f, err := os.Create(gltfOut)
	if err != nil {
		return err
	}
	if err := t.ExportGLTF(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", gltfOut, err)
	}
	logger.Info("glTF exported", zap.String("out", gltfOut))
	return f.Close()
}
