// Package world draws a frame of the game world: terrain blocks, instanced
// meshes under the sun camera, then the sprite, shroud and UI layers, in that
// order.
package world

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/lighting"
	"github.com/Faultbox/midgard-rts/internal/engine/mesh"
	"github.com/Faultbox/midgard-rts/internal/engine/shadow"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/internal/engine/terrainblock"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

// Context owns the GPU state shared by every frame: the backend, terrain
// shaders and buffers, the mesh cache, the pose textures and the sun.
type Context struct {
	Device  gpu.Device
	Tiles   *texture.Cache
	Terrain *terrainblock.Resources
	Meshes  *mesh.Cache
	Shadow  *shadow.Map // nil when shadows are off
	Sun     lighting.Sun
	Lights  *lighting.LightSet

	WaterColor [4]float32
	ClearColor [4]float32

	skeletons []*skeleton.OrderedSkeleton
}

// NewContext creates the terrain resources and shadow target of cfg on dev.
// tiles must already be uploaded; meshes may be nil.
func NewContext(dev gpu.Device, tiles *texture.Cache, meshes *mesh.Cache, cfg *config.Config) (*Context, error) {
	res, err := terrainblock.NewResources(dev, tiles, terrainblock.OptionsFromConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "creating terrain resources")
	}
	c := &Context{
		Device:     dev,
		Tiles:      tiles,
		Terrain:    res,
		Meshes:     meshes,
		Sun:        lighting.SunFromConfig(cfg.Lighting),
		Lights:     lighting.NewLightSet(),
		WaterColor: cfg.Lighting.WaterColor,
	}
	if cfg.Lighting.Shadows {
		if c.Shadow, err = shadow.NewMap(dev, cfg.Lighting.ShadowResolution); err != nil {
			res.Destroy()
			return nil, err
		}
	}
	logger.Debug("world context created",
		zap.Bool("shadows", c.Shadow != nil),
		zap.Bool("meshes", meshes != nil),
	)
	return c, nil
}

// AddSkeleton creates the pose texture of o and includes it in every frame.
// Adding a skeleton twice is a no-op.
func (c *Context) AddSkeleton(o *skeleton.OrderedSkeleton) error {
	for _, s := range c.skeletons {
		if s == o {
			return nil
		}
	}
	if err := o.InitTexture(c.Device); err != nil {
		return err
	}
	c.skeletons = append(c.skeletons, o)
	return nil
}

// Skeletons returns the registered skeleton families.
func (c *Context) Skeletons() []*skeleton.OrderedSkeleton {
	return c.skeletons
}

// Destroy releases everything the context owns, including the mesh cache
// and pose textures.
func (c *Context) Destroy() {
	for _, s := range c.skeletons {
		s.Destroy()
	}
	c.skeletons = nil
	if c.Meshes != nil {
		c.Meshes.Destroy()
	}
	if c.Shadow != nil {
		c.Shadow.Destroy()
	}
	c.Terrain.Destroy()
}
