package terrainblock

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

var (
	maskUniforms     = [3]string{"uMask123", "uMask456", "uMask789"}
	initMaskUniforms = [3]string{"uInitMask123", "uInitMask456", "uInitMask789"}
)

// View is a world-space rectangle blocks are culled against.
type View struct {
	Left, Right, Top, Bottom int
}

// Block renders a square of at most BlockSize x BlockSize minicells. Its
// mask framebuffer holds nine paint layers in three RGB targets; the blend
// framebuffer caches the tile mix (diffuse and normal) the final pass
// samples.
type Block struct {
	TopLeft, BottomRight math.Int2
	// World-space bounds used for culling and paint hit tests.
	Left, Right, Top, Bottom int

	grid *Grid
	// Top left corner relative to the vertex grid, in [0, 1].
	tlOffset math.Vec2

	mask  gpu.Framebuffer
	blend gpu.Framebuffer

	blendVerts  []float32
	finalVerts  []float32
	blendVB     gpu.VertexBuffer
	finalVB     gpu.VertexBuffer
	vertexIndex map[math.Int2]int

	spots         []PaintSpot
	textureDirty  bool
	verticesDirty bool
}

func newBlock(g *Grid, tl, br math.Int2, rng *rand.Rand) (*Block, error) {
	size := g.res.opts.BlockSize
	if br.X-tl.X+1 > size || br.Y-tl.Y+1 > size {
		return nil, errors.Wrapf(ErrBlockSize, "limit %d, block %v to %v", size, tl, br)
	}

	t := g.Terrain
	const w = terrain.MiniCellWidth
	b := &Block{
		TopLeft:     tl,
		BottomRight: br,
		Left:        (tl.X - 1) * w,
		Right:       (br.X + 1) * w,
		Top:         (tl.Y + 1) * w,
		Bottom:      (br.Y + 1) * w,
		grid:        g,
		tlOffset: math.Vec2{
			X: float32(tl.X) / float32(t.VertexWidth-1),
			Y: float32(tl.Y) / float32(t.VertexHeight-1),
		},
		vertexIndex:  make(map[math.Int2]int),
		textureDirty: true,
	}

	// The outer vertex ring is skipped.
	n := 0
	for y := max(tl.Y, 1); y <= min(br.Y, t.VertexHeight-3); y++ {
		for x := max(tl.X, 1); x <= min(br.X, t.VertexWidth-3); x++ {
			n++
		}
	}
	b.blendVerts = make([]float32, n*6*blendStride)
	b.finalVerts = make([]float32, n*6*finalStride)

	index := 0
	for y := max(tl.Y, 1); y <= min(br.Y, t.VertexHeight-3); y++ {
		for x := max(tl.X, 1); x <= min(br.X, t.VertexWidth-3); x++ {
			uv := math.Int2{X: x, Y: y}
			b.vertexIndex[uv] = index

			var tiles TileLayers
			for i := range tiles {
				tiles[i] = g.res.randomTile(i+1, rng)
			}
			b.writeMiniCell(uv, index, tiles)
			index += 6
		}
	}

	dev := g.res.dev
	var err error
	if b.blend, err = dev.CreateFramebuffer(g.res.opts.TextureSize, g.res.opts.TextureSize, 2); err != nil {
		return nil, errors.Wrap(err, "creating blend framebuffer")
	}
	if b.blendVB, err = dev.CreateVertexBuffer(BlendLayout, index); err != nil {
		return nil, err
	}
	if b.finalVB, err = dev.CreateVertexBuffer(FinalLayout, index); err != nil {
		return nil, err
	}
	if err := b.upload(); err != nil {
		return nil, err
	}
	return b, nil
}

// maskUV maps vertex grid coordinates into the block's mask texture.
func (b *Block) maskUV(x, y int) math.Vec2 {
	s := float32(b.grid.res.opts.BlockSize)
	return math.Vec2{X: float32(x-b.TopLeft.X) / s, Y: float32(y-b.TopLeft.Y) / s}
}

// writeMiniCell writes the six vertices of minicell uv at vertex index.
func (b *Block) writeMiniCell(uv math.Int2, index int, tiles TileLayers) {
	t := b.grid.Terrain
	mc, ok := t.MiniCell(uv.X, uv.Y)
	if !ok {
		return
	}
	for k, corner := range splitCorners[mc.Type] {
		v := &t.Vertices[cornerVertex(mc, corner)]
		off := cornerOffsets[corner]
		muv := b.maskUV(uv.X+off.X, uv.Y+off.Y)
		putBlendVertex(b.blendVerts[(index+k)*blendStride:], v, muv, tiles)
		putFinalVertex(b.finalVerts[(index+k)*finalStride:], v, muv)
	}
}

func (b *Block) upload() error {
	n := len(b.finalVerts) / finalStride
	if err := b.blendVB.SetData(b.blendVerts, n); err != nil {
		return errors.Wrap(err, "uploading blend vertices")
	}
	if err := b.finalVB.SetData(b.finalVerts, n); err != nil {
		return errors.Wrap(err, "uploading terrain vertices")
	}
	b.verticesDirty = false
	return nil
}

// VertexCount returns the number of vertices drawn by each pass.
func (b *Block) VertexCount() int {
	return len(b.finalVerts) / finalStride
}

// Visible reports whether the block overlaps v.
func (b *Block) Visible(v View) bool {
	if b.Left > v.Right || b.Right < v.Left {
		return false
	}
	return !(b.Bottom < v.Top || b.Top > v.Bottom)
}

// hit reports whether a brush of radius size at pos reaches the block.
func (b *Block) hit(pos terrain.WPos, size int) bool {
	return pos.X-size <= b.Right && pos.X+size >= b.Left &&
		pos.Y-size <= b.Bottom && pos.Y+size >= b.Top
}

// PendingSpots returns the paint spots not yet drawn into the mask.
func (b *Block) PendingSpots() []PaintSpot {
	return b.spots
}

// TextureDirty reports whether the blend targets need to be redrawn.
func (b *Block) TextureDirty() bool {
	return b.textureDirty
}

// Mask returns the mask framebuffer, nil before InitMask.
func (b *Block) Mask() gpu.Framebuffer {
	return b.mask
}

// Blend returns the blend framebuffer.
func (b *Block) Blend() gpu.Framebuffer {
	return b.blend
}

// InitMask creates the mask framebuffer and fills it from initial, the three
// mask targets saved with the map, or with black when initial is nil.
// Blocks with a mask are left untouched.
func (b *Block) InitMask(initial *[3]gpu.Texture) error {
	if b.mask != nil {
		return nil
	}
	r := b.grid.res
	fb, err := r.dev.CreateFramebuffer(r.opts.TextureSize, r.opts.TextureSize, 3)
	if err != nil {
		return errors.Wrap(err, "creating mask framebuffer")
	}
	b.mask = fb

	fb.Bind(true)
	r.beginMaskPass()
	sh := r.maskShader
	for i, name := range initMaskUniforms {
		tex := r.black()
		if initial != nil {
			tex = initial[i]
		}
		sh.SetTexture(name, tex)
	}
	sh.SetBool("uInitWithTextures", initial != nil)
	sh.SetBool("uInitPass", true)
	sh.SetTexture("uBrushes", r.brushes())
	r.dev.DrawBatch(sh, r.quad, 0, 6, gpu.Triangles)
	sh.SetBool("uInitPass", false)
	r.endMaskPass()
	fb.Unbind()

	b.textureDirty = true
	return nil
}

// UpdateMask draws the pending paint spots into the mask, keeping what it
// already holds. Blocks outside v are skipped unless force is set.
func (b *Block) UpdateMask(v View, force bool) error {
	if !force && !b.Visible(v) {
		return nil
	}
	if len(b.spots) == 0 {
		return nil
	}
	if b.mask == nil {
		return errors.Wrapf(ErrMaskNotInitialized, "block %v", b.TopLeft)
	}

	r := b.grid.res
	b.mask.Bind(false)
	r.beginMaskPass()
	r.maskShader.SetTexture("uBrushes", r.brushes())
	r.maskShader.SetBool("uInitWithTextures", false)
	r.maskShader.SetBool("uInitPass", false)

	var err error
	for _, s := range b.spots {
		if err = r.paint(b, s); err != nil {
			break
		}
	}
	if err == nil {
		err = r.flush()
	}
	r.endMaskPass()
	b.mask.Unbind()
	if err != nil {
		return err
	}

	b.textureDirty = true
	b.spots = b.spots[:0]
	return nil
}

// UpdateTexture uploads edited vertices and redraws the blend targets when
// the mask or vertices changed. Blocks outside v are skipped unless force is
// set.
func (b *Block) UpdateTexture(v View, force bool) error {
	if b.verticesDirty {
		if err := b.upload(); err != nil {
			return err
		}
	}
	if !force && !b.Visible(v) {
		return nil
	}
	if !b.textureDirty {
		return nil
	}
	if b.mask == nil {
		return errors.Wrapf(ErrMaskNotInitialized, "block %v", b.TopLeft)
	}
	b.textureDirty = false

	r := b.grid.res
	sh := r.blendShader
	b.blend.Bind(true)
	for i, name := range maskUniforms {
		sh.SetTexture(name, b.mask.Texture(i))
	}
	if r.tiles != nil {
		sh.SetTexture("uTiles", r.tiles.TileArray)
		sh.SetTexture("uTilesNorm", r.tiles.TileNormalArray)
	}
	if len(r.tileScales) > 0 {
		sh.SetVecArray("uTileScales", r.tileScales, 1)
	}
	r.dev.SetBlendMode(gpu.BlendNone)
	r.dev.DrawBatch(sh, b.blendVB, 0, b.VertexCount(), gpu.Triangles)
	r.dev.SetBlendMode(gpu.BlendAlpha)
	b.blend.Unbind()
	return nil
}

// Render draws the block with the final terrain shader if it overlaps v.
// tick animates the water.
func (b *Block) Render(v View, tick int) {
	if b.mask == nil || !b.Visible(v) {
		return
	}
	r := b.grid.res
	sh := r.finalShader
	sh.SetFloat("uWaterUVOffset", float32(tick%256)/256)
	sh.SetTexture("uMask123", b.mask.Texture(0))
	sh.SetTexture("uBakedTerrainTexture", b.blend.Texture(0))
	sh.SetTexture("uBakedTerrainNormalTexture", b.blend.Texture(1))

	r.dev.SetBlendMode(gpu.BlendNone)
	r.dev.DrawBatch(sh, b.finalVB, 0, b.VertexCount(), gpu.Triangles)
}

// updateMiniCell rewrites the vertices of minicell uv from the terrain,
// keeping their tile layers. It reports false for minicells the block
// doesn't draw.
func (b *Block) updateMiniCell(uv math.Int2) bool {
	index, ok := b.vertexIndex[uv]
	if !ok {
		return false
	}
	tiles := blendTiles(b.blendVerts[index*blendStride:])
	b.writeMiniCell(uv, index, tiles)
	b.textureDirty = true
	b.verticesDirty = true
	return true
}

// MaskLayerPNG encodes mask target i (layer / 3) as PNG.
func (b *Block) MaskLayerPNG(i int) ([]byte, error) {
	if b.mask == nil {
		return nil, errors.Wrapf(ErrMaskNotInitialized, "block %v", b.TopLeft)
	}
	if i < 0 || i >= b.mask.Targets() {
		return nil, errors.Errorf("mask target %d out of range", i)
	}
	tex := b.mask.Texture(i)
	pix, err := tex.Data()
	if err != nil {
		return nil, errors.Wrap(err, "reading mask")
	}
	w, h := tex.Size()
	return texture.EncodePNG(pix, w, h)
}

// Destroy releases the block's framebuffers and buffers.
func (b *Block) Destroy() {
	if b.mask != nil {
		b.mask.Destroy()
	}
	b.blend.Destroy()
	b.blendVB.Destroy()
	b.finalVB.Destroy()
}
