package main

import (
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu/opengl"
	"github.com/Faultbox/midgard-rts/internal/engine/input"
	"github.com/Faultbox/midgard-rts/internal/engine/mesh"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/terrainblock"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/engine/window"
	"github.com/Faultbox/midgard-rts/internal/engine/world"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

// Asset files read from the first existing asset path.
const (
	brushSetFile = "brush-set.yaml"
	tileSetFile  = "tiles.yaml"
)

// App owns the viewer window and the world it draws.
type App struct {
	cfg      *config.Config
	win      *window.Window
	input    *input.Input
	tiles    *texture.Cache
	ctx      *world.Context
	renderer *world.Renderer

	layer int // mask layer painted with the left button
}

// NewApp opens the window and loads the configured map.
func NewApp(cfg *config.Config) (*App, error) {
	win, err := window.New(window.ConfigFrom("Midgard RTS", cfg.Graphics))
	if err != nil {
		return nil, err
	}
	win.SetFPSLimit(cfg.Graphics.FPSLimit)
	a := &App{cfg: cfg, win: win, input: input.New(), layer: terrainblock.LayerGrass}
	if err := a.load(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) load() error {
	cfg := a.cfg
	dev, err := opengl.New()
	if err != nil {
		return err
	}

	assets, err := assetFS(cfg.Data.AssetPaths)
	if err != nil {
		return err
	}
	a.tiles, err = texture.Load(assets, brushSetFile, tileSetFile)
	if err != nil {
		return errors.Wrap(err, "loading textures")
	}
	if err := a.tiles.Upload(dev); err != nil {
		return errors.Wrap(err, "uploading textures")
	}

	meshes, err := mesh.NewCache(dev, assets, mesh.Options{
		MaxInstances: cfg.Animation.MaxMeshInstances,
		SheetCount:   cfg.Graphics.SheetCount,
		MaxSkinBones: cfg.Animation.MaxSkinBones,
	})
	if err != nil {
		return err
	}
	if a.ctx, err = world.NewContext(dev, a.tiles, meshes, cfg); err != nil {
		meshes.Destroy()
		return err
	}

	t, _, err := terrain.LoadMap(cfg.Data.MapDir, cfg.Data.Tileset, cfg)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Terrain.ColorSeed))
	w, h := a.win.Size()
	if a.renderer, err = world.NewRenderer(a.ctx, t, w, h, rng); err != nil {
		return err
	}
	return a.renderer.InitTerrain(os.DirFS(cfg.Data.MapDir), rng)
}

// assetFS returns the first asset directory that exists.
func assetFS(paths []string) (fs.FS, error) {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return os.DirFS(p), nil
		}
	}
	return nil, errors.Errorf("no asset directory among %v", paths)
}

// layerKeys select the painted mask layer.
var layerKeys = []sdl.Scancode{
	sdl.SCANCODE_1, sdl.SCANCODE_2, sdl.SCANCODE_3, sdl.SCANCODE_4,
	sdl.SCANCODE_5, sdl.SCANCODE_6, sdl.SCANCODE_7, sdl.SCANCODE_8,
}

// Run draws frames until the window closes or Escape is pressed. F5 saves
// the terrain masks next to the map and F6 the config with the current
// window size. Holding the left button paints the
// selected layer under the cursor, with Shift erasing it; 1 to 8 select the
// layer.
func (a *App) Run() error {
	var frames int
	last := window.Ticks()
	for !a.input.Update() {
		if a.input.IsKeyPressed(sdl.SCANCODE_ESCAPE) {
			return nil
		}
		if a.input.IsKeyPressed(sdl.SCANCODE_F5) {
			if err := a.saveMasks(); err != nil {
				logger.Warn("saving masks failed", zap.Error(err))
			}
		}
		if a.input.IsKeyPressed(sdl.SCANCODE_F6) {
			a.cfg.Graphics.Width, a.cfg.Graphics.Height = a.win.Size()
			if err := a.cfg.Save(); err != nil {
				logger.Warn("saving config failed", zap.Error(err))
			} else {
				logger.Info("config saved", zap.String("dir", config.ConfigDir()))
			}
		}
		a.input.DriveCamera(a.renderer.Camera)
		a.paint()

		if err := a.renderer.BeginFrame(); err != nil {
			return err
		}
		if err := a.renderer.EndFrame(); err != nil {
			return err
		}
		a.win.SwapBuffers()

		frames++
		if now := window.Ticks(); now-last >= 1000 {
			a.win.SetTitle(fmt.Sprintf("Midgard RTS - %d fps", frames))
			frames, last = 0, now
		}
	}
	return nil
}

func (a *App) paint() {
	for i, key := range layerKeys {
		if a.input.IsKeyPressed(key) {
			a.layer = terrainblock.LayerWater + i
			logger.Debug("paint layer selected", zap.Int("layer", a.layer))
		}
	}
	if !a.input.IsButtonDown(sdl.BUTTON_LEFT) {
		return
	}
	pos, ok := a.renderer.Pick(a.input.MousePos())
	if !ok {
		return
	}
	intensity := 64
	if a.input.IsKeyDown(sdl.SCANCODE_LSHIFT) || a.input.IsKeyDown(sdl.SCANCODE_RSHIFT) {
		intensity = -64
	}
	if err := a.renderer.Paint(pos, a.layer, intensity); err != nil {
		logger.Warn("painting failed", zap.Error(err))
	}
}

func (a *App) saveMasks() error {
	files, err := a.renderer.Grid.MaskFiles()
	if err != nil {
		return err
	}
	for name, data := range files {
		path := filepath.Join(a.cfg.Data.MapDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	logger.Info("terrain masks saved", zap.Int("files", len(files)), zap.String("dir", a.cfg.Data.MapDir))
	return nil
}

// Close releases the world and the window.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Destroy()
	}
	if a.ctx != nil {
		a.ctx.Destroy()
	}
	if a.tiles != nil {
		a.tiles.Destroy()
	}
	a.win.Close()
}
