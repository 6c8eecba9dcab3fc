package texture

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math/rand"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

// ErrLayerSize is returned when images packed into one array differ in size.
var ErrLayerSize = errors.New("texture array layers differ in size")

// BrushInfo describes one brush layer of the brush texture array.
type BrushInfo struct {
	Name         string
	Categories   []string
	ID           int
	TextureIndex int
	DefaultSize  int
	Width        int
	Height       int
}

// layerSet accumulates equally sized RGBA layers.
type layerSet struct {
	width, height int
	layers        [][]byte
}

func (s *layerSet) add(name string, img []byte, width, height int) (int, error) {
	if len(s.layers) == 0 {
		s.width, s.height = width, height
	} else if width != s.width || height != s.height {
		return 0, fmt.Errorf("%w: %s is %dx%d, array is %dx%d", ErrLayerSize, name, width, height, s.width, s.height)
	}
	s.layers = append(s.layers, img)
	return len(s.layers) - 1, nil
}

// Cache holds the decoded brushes and tile textures of a map and, once
// uploaded, their texture arrays.
type Cache struct {
	Brushes []BrushInfo

	// TileScales holds the UV scale of every tile texture array layer.
	TileScales []float32
	// LayerTileTypes lists the tile types painted on each mask layer.
	LayerTileTypes [formats.MaskLayerCount][]string
	// TileTypeTexIndices maps a tile type to its tile texture array layers.
	TileTypeTexIndices map[string][]int32

	brushIndex  map[string]int
	brushes     layerSet
	tiles       layerSet
	tileNormals layerSet

	BrushArray      gpu.Texture
	TileArray       gpu.Texture
	TileNormalArray gpu.Texture
	Black           gpu.Texture
}

// Load reads the brush set and tile texture set from fsys and decodes every
// image they reference.
func Load(fsys fs.FS, brushSetPath, tileSetPath string) (*Cache, error) {
	c := &Cache{
		TileTypeTexIndices: make(map[string][]int32),
		brushIndex:         make(map[string]int),
	}

	if err := c.loadTiles(fsys, tileSetPath); err != nil {
		return nil, err
	}
	if err := c.loadBrushes(fsys, brushSetPath); err != nil {
		return nil, err
	}

	logger.Debug("texture cache loaded",
		zap.Int("brushes", len(c.Brushes)),
		zap.Int("tiles", len(c.tiles.layers)),
	)
	return c, nil
}

func (c *Cache) loadTiles(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("can't find %s to define tile textures: %w", path, err)
	}
	set, err := formats.ParseTileTextureSet(data)
	if err != nil {
		return err
	}

	for _, t := range set.Types {
		c.LayerTileTypes[t.Layer] = append(c.LayerTileTypes[t.Layer], t.Name)
		for _, tex := range t.Textures {
			img, err := readImage(fsys, tex.File+".png")
			if err != nil {
				return fmt.Errorf("tile %s: %w", tex.Name, err)
			}
			w, h := img.Rect.Dx(), img.Rect.Dy()
			idx, err := c.tiles.add(tex.Name, img.Pix, w, h)
			if err != nil {
				return err
			}

			normal := make([]byte, w*h*4)
			if n, err := readImage(fsys, tex.File+"_NORM.png"); err == nil {
				normal = n.Pix
			}
			if _, err := c.tileNormals.add(tex.Name+"_NORM", normal, w, h); err != nil {
				return err
			}

			c.TileTypeTexIndices[t.Name] = append(c.TileTypeTexIndices[t.Name], int32(idx))
			c.TileScales = append(c.TileScales, tex.Scale)
		}
	}
	return nil
}

func (c *Cache) loadBrushes(fsys fs.FS, path string) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("can't find %s to define brushes: %w", path, err)
	}
	defs, err := formats.ParseBrushSet(data)
	if err != nil {
		return err
	}

	for _, d := range defs {
		img, err := readImage(fsys, d.File)
		if err != nil {
			return fmt.Errorf("brush %s: %w", d.Name, err)
		}
		w, h := img.Rect.Dx(), img.Rect.Dy()
		idx, err := c.brushes.add(d.Name, img.Pix, w, h)
		if err != nil {
			return err
		}
		c.brushIndex[d.Name] = len(c.Brushes)
		c.Brushes = append(c.Brushes, BrushInfo{
			Name:         d.Name,
			Categories:   d.Categories,
			ID:           len(c.Brushes),
			TextureIndex: idx,
			DefaultSize:  d.Size,
			Width:        w,
			Height:       h,
		})
	}
	return nil
}

func readImage(fsys fs.FS, name string) (*image.RGBA, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	return DecodeImage(name, data)
}

// Brush returns the brush with the given name.
func (c *Cache) Brush(name string) (BrushInfo, bool) {
	i, ok := c.brushIndex[name]
	if !ok {
		return BrushInfo{}, false
	}
	return c.Brushes[i], true
}

// TileCount returns the number of tile texture array layers.
func (c *Cache) TileCount() int {
	return len(c.tiles.layers)
}

// RandomTile picks a tile texture layer for a mask layer: a random tile type
// of the layer, then a random texture of that type. Layers without tile
// types use layer 0.
func (c *Cache) RandomTile(layer int, rng *rand.Rand) int32 {
	if layer < 0 || layer >= formats.MaskLayerCount || len(c.LayerTileTypes[layer]) == 0 {
		return 0
	}
	types := c.LayerTileTypes[layer]
	indices := c.TileTypeTexIndices[types[rng.Intn(len(types))]]
	if len(indices) == 0 {
		return 0
	}
	return indices[rng.Intn(len(indices))]
}

// Upload creates the brush, tile and tile normal arrays plus a 1x1 black
// texture used when a mask has no initial image.
func (c *Cache) Upload(dev gpu.Device) error {
	var err error
	if len(c.brushes.layers) > 0 {
		if c.BrushArray, err = dev.CreateTextureArray(c.brushes.width, c.brushes.height, c.brushes.layers); err != nil {
			return fmt.Errorf("brush array: %w", err)
		}
	}
	if len(c.tiles.layers) > 0 {
		if c.TileArray, err = dev.CreateTextureArray(c.tiles.width, c.tiles.height, c.tiles.layers); err != nil {
			return fmt.Errorf("tile array: %w", err)
		}
		if c.TileNormalArray, err = dev.CreateTextureArray(c.tileNormals.width, c.tileNormals.height, c.tileNormals.layers); err != nil {
			return fmt.Errorf("tile normal array: %w", err)
		}
	}
	if c.Black, err = dev.CreateTexture(1, 1); err != nil {
		return err
	}
	return c.Black.SetData(Solid(1, 1, 0, 0, 0, 255), 1, 1)
}

// Destroy releases uploaded textures.
func (c *Cache) Destroy() {
	for _, t := range []gpu.Texture{c.BrushArray, c.TileArray, c.TileNormalArray, c.Black} {
		if t != nil {
			t.Destroy()
		}
	}
}
