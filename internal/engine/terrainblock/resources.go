package terrainblock

import (
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/lighting"
	"github.com/Faultbox/midgard-rts/internal/engine/shader"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/logger"
)

// Defaults for zero Options fields.
const (
	DefaultTextureSize    = 512
	DefaultTempBufferSize = 8192
)

// maxTileScales is the size of the blend shader's tile scale array.
const maxTileScales = 64

// Errors.
var (
	ErrBlockSize          = errors.New("terrain block exceeds the block size limit")
	ErrMaskNotInitialized = errors.New("terrain block mask not initialized")
)

// Options sizes blocks and their render targets.
type Options struct {
	// BlockSize is the block edge in minicells.
	BlockSize int
	// TextureSize is the edge of each block's mask and blend targets.
	TextureSize int
	// TempBufferSize is the number of brush vertices batched per draw.
	TempBufferSize int
	// MaxHeight is the highest terrain level; views are widened by it.
	MaxHeight int
}

// OptionsFromConfig reads block options from the graphics and terrain
// settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BlockSize:      cfg.Graphics.BlockSize,
		TextureSize:    cfg.Graphics.BlockTextureSize,
		TempBufferSize: cfg.Graphics.TempBufferSize,
		MaxHeight:      int(cfg.Terrain.MaxHeight),
	}
}

func (o *Options) fill() error {
	if o.BlockSize <= 0 {
		o.BlockSize = config.MaxBlockSize
	}
	if o.BlockSize > config.MaxBlockSize {
		return errors.Wrapf(ErrBlockSize, "block size %d, limit %d", o.BlockSize, config.MaxBlockSize)
	}
	if o.TextureSize <= 0 {
		o.TextureSize = DefaultTextureSize
	}
	if o.TempBufferSize < 12 {
		o.TempBufferSize = DefaultTempBufferSize
	}
	return nil
}

// Resources holds what every block of a map shares: the three pass shaders,
// the full-screen quad of the mask init pass, the brush batch buffer and the
// brush and tile textures.
type Resources struct {
	dev   gpu.Device
	opts  Options
	tiles *texture.Cache

	maskShader  gpu.Shader
	blendShader gpu.Shader
	finalShader gpu.Shader

	quad       gpu.VertexBuffer
	batch      gpu.VertexBuffer
	pending    []float32
	count      int
	mode       gpu.BlendMode
	tileScales []float32
}

// NewResources compiles the terrain shaders. tiles must be uploaded before
// the first draw.
func NewResources(dev gpu.Device, tiles *texture.Cache, opts Options) (*Resources, error) {
	if err := opts.fill(); err != nil {
		return nil, err
	}
	r := &Resources{dev: dev, opts: opts, tiles: tiles, mode: gpu.BlendAdditive}

	var err error
	if r.maskShader, err = dev.CreateShader("terrain_mask", shader.TerrainMaskVertexShader, shader.TerrainMaskFragmentShader); err != nil {
		return nil, errors.Wrap(err, "compiling terrain mask shader")
	}
	blendSrc := shader.WithDefines(shader.TerrainBlendFragmentShader, shader.Defines{"MAX_TILE_SCALES": maxTileScales})
	if r.blendShader, err = dev.CreateShader("terrain_blend", shader.TerrainBlendVertexShader, blendSrc); err != nil {
		return nil, errors.Wrap(err, "compiling terrain blend shader")
	}
	finalSrc := shader.WithDefines(shader.TerrainFinalFragmentShader, shader.Defines{"MAX_LIGHTS": lighting.MaxPointLights})
	if r.finalShader, err = dev.CreateShader("terrain_final", shader.TerrainFinalVertexShader, finalSrc); err != nil {
		return nil, errors.Wrap(err, "compiling terrain shader")
	}

	if r.quad, err = dev.CreateVertexBuffer(MaskLayout, 6); err != nil {
		return nil, err
	}
	quad := make([]float32, 6*maskStride)
	for i, q := range [6][4]float32{
		{-1, 1, 0, 1}, {-1, -1, 0, 0}, {1, -1, 1, 0},
		{-1, 1, 0, 1}, {1, -1, 1, 0}, {1, 1, 1, 1},
	} {
		putMaskVertex(quad[i*maskStride:], q[0], q[1], q[2], q[3], 0, 0, 0)
	}
	if err := r.quad.SetData(quad, 6); err != nil {
		return nil, err
	}

	if r.batch, err = dev.CreateVertexBuffer(MaskLayout, opts.TempBufferSize); err != nil {
		return nil, err
	}
	r.pending = make([]float32, opts.TempBufferSize*maskStride)

	if tiles != nil {
		r.tileScales = tiles.TileScales
		if len(r.tileScales) > maxTileScales {
			logger.Warn("too many tile textures, extra scales ignored",
				zap.Int("tiles", len(r.tileScales)),
				zap.Int("max", maxTileScales))
			r.tileScales = r.tileScales[:maxTileScales]
		}
	}
	return r, nil
}

// Options returns the filled-in options.
func (r *Resources) Options() Options {
	return r.opts
}

// FinalShader returns the terrain shader, for camera and light uniforms.
func (r *Resources) FinalShader() gpu.Shader {
	return r.finalShader
}

func (r *Resources) cacheTexture(get func(c *texture.Cache) gpu.Texture) gpu.Texture {
	if r.tiles == nil {
		return nil
	}
	return get(r.tiles)
}

func (r *Resources) brushes() gpu.Texture {
	return r.cacheTexture(func(c *texture.Cache) gpu.Texture { return c.BrushArray })
}

func (r *Resources) black() gpu.Texture {
	return r.cacheTexture(func(c *texture.Cache) gpu.Texture { return c.Black })
}

func (r *Resources) randomTile(layer int, rng *rand.Rand) int32 {
	if r.tiles == nil {
		return 0
	}
	return r.tiles.RandomTile(layer, rng)
}

// beginMaskPass sets the state shared by every mask draw.
func (r *Resources) beginMaskPass() {
	r.dev.SetFaceCull(false)
	r.dev.SetDepthWrite(false)
	r.dev.SetDepthTest(false)
	r.dev.SetBlendMode(gpu.BlendNone)
	r.count = 0
	r.mode = gpu.BlendAdditive
}

func (r *Resources) endMaskPass() {
	r.dev.SetDepthTest(true)
	r.dev.SetDepthWrite(true)
	r.dev.SetBlendMode(gpu.BlendAlpha)
}

// paint queues the quad of one spot, flushing on a blend mode switch or a
// full batch.
func (r *Resources) paint(b *Block, s PaintSpot) error {
	mode := gpu.BlendAdditive
	intensity := s.Intensity
	if intensity < 0 {
		mode = gpu.BlendSubtractive
		intensity = -intensity
	}
	if mode != r.mode {
		if err := r.flush(); err != nil {
			return err
		}
		r.mode = mode
	}

	if (r.count+6)*maskStride > len(r.pending) {
		if err := r.flush(); err != nil {
			return err
		}
	}
	quad := s.Brush.appendVertices(r.pending[:r.count*maskStride], b, s.Pos, s.Size, s.Layer, intensity)
	r.count = len(quad) / maskStride
	return nil
}

// flush draws the queued brush quads with the current blend mode.
func (r *Resources) flush() error {
	if r.count == 0 {
		return nil
	}
	r.dev.SetBlendMode(r.mode)
	if err := r.batch.SetData(r.pending, r.count); err != nil {
		return errors.Wrap(err, "uploading brush batch")
	}
	r.dev.DrawBatch(r.maskShader, r.batch, 0, r.count, gpu.Triangles)
	r.count = 0
	return nil
}

// Destroy releases the shaders and buffers.
func (r *Resources) Destroy() {
	for _, s := range []gpu.Shader{r.maskShader, r.blendShader, r.finalShader} {
		s.Destroy()
	}
	r.quad.Destroy()
	r.batch.Destroy()
}
