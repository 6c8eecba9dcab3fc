// Package config handles engine configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// MaxBlockSize is the largest terrain render block edge, in minicells.
const MaxBlockSize = 24

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all engine settings.
type Config struct {
	Graphics  GraphicsConfig  `yaml:"graphics"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Animation AnimationConfig `yaml:"animation"`
	Lighting  LightingConfig  `yaml:"lighting"`
	Data      DataConfig      `yaml:"data"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig holds asset locations.
type DataConfig struct {
	AssetPaths []string `yaml:"asset_paths"` // Searched in order for skeletons, clips and brushes
	MapDir     string   `yaml:"map_dir"`     // Directory holding map.bin, tileset and Terrain.tm
	Tileset    string   `yaml:"tileset"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`

	BlockSize        int `yaml:"block_size"`         // Terrain block edge in minicells
	BlockTextureSize int `yaml:"block_texture_size"` // Mask and blend target size per block
	TempBufferSize   int `yaml:"temp_buffer_size"`   // Brush vertices batched per draw
	SheetCount       int `yaml:"sheet_count"`        // Texture sheets bound per mesh batch
}

// TerrainConfig holds terrain baking settings.
type TerrainConfig struct {
	HeightStep          int     `yaml:"height_step"`    // World units per height level
	MaxHeight           uint8   `yaml:"maximum_height"` // Height levels; 0 disables heights
	ColorGain           float32 `yaml:"color_gain"`     // Applied to baked vertex colors before clamping
	CliffThreshold      int     `yaml:"cliff_threshold"`
	AlmostFlatTolerance int     `yaml:"almost_flat_tolerance"`
	ColorSeed           int64   `yaml:"color_seed"` // Seed of the vertex color jitter
}

// AnimationConfig holds skeletal animation limits.
type AnimationConfig struct {
	TextureWidth       int  `yaml:"texture_width"`
	TextureHeight      int  `yaml:"texture_height"` // Live skeletons drawn per frame
	MaxSkinBones       int  `yaml:"max_skin_bones"`
	MaxMeshInstances   int  `yaml:"max_mesh_instances"`
	DynamicAdjBonePose bool `yaml:"dynamic_adj_bone_pose"`
}

// LightingConfig holds sun and water settings of the world renderer.
type LightingConfig struct {
	SunLongitude     float32    `yaml:"sun_longitude"` // Degrees around the up axis
	SunLatitude      float32    `yaml:"sun_latitude"`  // Degrees above the horizon
	Ambient          [3]float32 `yaml:"ambient"`
	Diffuse          [3]float32 `yaml:"diffuse"`
	WaterColor       [4]float32 `yaml:"water_color"`
	Shadows          bool       `yaml:"shadows"`
	ShadowResolution int        `yaml:"shadow_resolution"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:            1280,
			Height:           720,
			Fullscreen:       false,
			VSync:            true,
			BlockSize:        MaxBlockSize,
			BlockTextureSize: 512,
			TempBufferSize:   8192,
			SheetCount:       4,
		},
		Terrain: TerrainConfig{
			HeightStep:          512,
			MaxHeight:           16,
			ColorGain:           4,
			CliffThreshold:      1024,
			AlmostFlatTolerance: 32,
			ColorSeed:           1,
		},
		Animation: AnimationConfig{
			TextureWidth:     512,
			TextureHeight:    512,
			MaxSkinBones:     128,
			MaxMeshInstances: 4096,
		},
		Lighting: LightingConfig{
			SunLongitude:     45,
			SunLatitude:      45,
			Ambient:          [3]float32{0.45, 0.45, 0.5},
			Diffuse:          [3]float32{0.6, 0.6, 0.55},
			WaterColor:       [4]float32{0.1, 0.25, 0.4, 0.8},
			Shadows:          true,
			ShadowResolution: 2048,
		},
		Data: DataConfig{
			AssetPaths: []string{"assets"},
			MapDir:     "maps/default",
			Tileset:    "tileset.yaml",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks limits the renderer relies on.
func (c *Config) Validate() error {
	g := c.Graphics
	if g.BlockSize <= 0 || g.BlockSize > MaxBlockSize {
		return fmt.Errorf("%w: block_size %d must be in [1, %d]", ErrInvalidConfig, g.BlockSize, MaxBlockSize)
	}
	if g.BlockTextureSize <= 0 {
		return fmt.Errorf("%w: block_texture_size %d", ErrInvalidConfig, g.BlockTextureSize)
	}
	if g.TempBufferSize < 6 {
		return fmt.Errorf("%w: temp_buffer_size %d can't hold one brush quad", ErrInvalidConfig, g.TempBufferSize)
	}
	if g.SheetCount <= 0 {
		return fmt.Errorf("%w: sheet_count %d", ErrInvalidConfig, g.SheetCount)
	}
	if c.Terrain.HeightStep <= 0 {
		return fmt.Errorf("%w: height_step %d", ErrInvalidConfig, c.Terrain.HeightStep)
	}
	a := c.Animation
	if a.TextureWidth <= 0 || a.TextureHeight <= 0 {
		return fmt.Errorf("%w: animation texture %dx%d", ErrInvalidConfig, a.TextureWidth, a.TextureHeight)
	}
	if a.MaxSkinBones <= 0 || a.MaxSkinBones*3 > a.TextureWidth {
		return fmt.Errorf("%w: %d skin bones don't fit a %d texel row", ErrInvalidConfig, a.MaxSkinBones, a.TextureWidth)
	}
	if a.MaxMeshInstances <= 0 {
		return fmt.Errorf("%w: max_mesh_instances %d", ErrInvalidConfig, a.MaxMeshInstances)
	}
	if l := c.Lighting; l.Shadows && l.ShadowResolution <= 0 {
		return fmt.Errorf("%w: shadow_resolution %d", ErrInvalidConfig, l.ShadowResolution)
	}
	return nil
}
