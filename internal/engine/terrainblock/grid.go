package terrainblock

import (
	"fmt"
	"io/fs"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Grid holds the render blocks covering a terrain, row by row.
type Grid struct {
	Terrain       *terrain.Terrain
	Width, Height int
	Blocks        []*Block

	res *Resources
	// Block extent as a fraction of the vertex grid.
	rangeX, rangeY float32
}

// NewGrid splits t into blocks of res' block size. rng picks the tile
// textures of every minicell.
func NewGrid(res *Resources, t *terrain.Terrain, rng *rand.Rand) (*Grid, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := res.opts.BlockSize
	w, h := t.VertexWidth-1, t.VertexHeight-1
	g := &Grid{
		Terrain: t,
		Width:   (w + s - 1) / s,
		Height:  (h + s - 1) / s,
		res:     res,
		rangeX:  float32(s) / float32(w),
		rangeY:  float32(s) / float32(h),
	}

	g.Blocks = make([]*Block, 0, g.Width*g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			tl := math.Int2{X: x * s, Y: y * s}
			br := math.Int2{
				X: min((x+1)*s, t.VertexWidth-2) - 1,
				Y: min((y+1)*s, t.VertexHeight-2) - 1,
			}
			b, err := newBlock(g, tl, br, rng)
			if err != nil {
				g.Destroy()
				return nil, err
			}
			g.Blocks = append(g.Blocks, b)
		}
	}

	logger.Debug("terrain blocks created",
		zap.Int("width", g.Width),
		zap.Int("height", g.Height),
		zap.Int("vertex_width", t.VertexWidth),
		zap.Int("vertex_height", t.VertexHeight),
	)
	return g, nil
}

// Block returns block (x, y), or nil outside the grid.
func (g *Grid) Block(x, y int) *Block {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return nil
	}
	return g.Blocks[y*g.Width+x]
}

// View returns the cull rectangle of a screen spanning [left, right] x
// [top, bottom] in world units, widened vertically by the tallest terrain
// so raised blocks near the screen edge are kept.
func (g *Grid) View(left, top, right, bottom int) View {
	pad := 2 * g.res.opts.MaxHeight * g.Terrain.Opts.HeightStep
	return View{Left: left, Right: right, Top: top - pad, Bottom: bottom + pad}
}

// PaintAt queues a brush stroke on every block it reaches. Blocks are
// searched in the 3x3 window around the block containing pos. A negative
// intensity erases. Nothing is drawn until UpdateMask.
func (g *Grid) PaintAt(brush *MaskBrush, pos terrain.WPos, size, layer, intensity int) {
	s := g.res.opts.BlockSize
	bx := pos.X / terrain.MiniCellWidth / s
	by := pos.Y / terrain.MiniCellWidth / s
	for y := by - 1; y <= by+1; y++ {
		for x := bx - 1; x <= bx+1; x++ {
			b := g.Block(x, y)
			if b == nil || !b.hit(pos, size) {
				continue
			}
			b.textureDirty = true
			b.spots = append(b.spots, PaintSpot{
				Brush:     brush,
				Pos:       pos,
				Size:      size,
				Layer:     layer,
				Intensity: intensity,
			})
		}
	}
}

// UpdateVerticesByMiniCell refreshes the block vertices of minicell uv after
// a terrain edit.
func (g *Grid) UpdateVerticesByMiniCell(uv math.Int2) {
	s := g.res.opts.BlockSize
	if uv.X < 0 || uv.Y < 0 {
		return
	}
	if b := g.Block(uv.X/s, uv.Y/s); b != nil {
		b.updateMiniCell(uv)
	}
}

// FlatCellWithHeight flattens terrain cell (x, y) to height h and refreshes
// every block vertex the edit moved.
func (g *Grid) FlatCellWithHeight(x, y, h int) {
	for _, uv := range g.Terrain.FlatCellWithHeight(x, y, h) {
		g.UpdateVerticesByMiniCell(uv)
	}
}

// MaskFileName is the file a block's mask target is saved to.
func MaskFileName(topLeft math.Int2, target int) string {
	return fmt.Sprintf("%d,%d_Mask%s.png", topLeft.X, topLeft.Y, [3]string{"123", "456", "789"}[target])
}

// InitMask creates every block's mask. When fsys holds all three saved mask
// images of every block they seed the masks and fromFiles is true; otherwise
// masks start black and callers paint them, e.g. with PaintFromTerrainTypes.
func (g *Grid) InitMask(fsys fs.FS) (fromFiles bool, err error) {
	var initial [][3]gpu.Texture
	if fsys != nil {
		initial, err = g.loadMasks(fsys)
		if err != nil {
			return false, err
		}
	}
	defer func() {
		for _, set := range initial {
			for _, tex := range set {
				tex.Destroy()
			}
		}
	}()

	for i, b := range g.Blocks {
		var set *[3]gpu.Texture
		if initial != nil {
			set = &initial[i]
		}
		if err := b.InitMask(set); err != nil {
			return false, err
		}
	}
	return initial != nil, nil
}

// loadMasks uploads the saved masks of every block. It returns nil when any
// image is missing.
func (g *Grid) loadMasks(fsys fs.FS) ([][3]gpu.Texture, error) {
	out := make([][3]gpu.Texture, 0, len(g.Blocks))
	release := func() {
		for _, set := range out {
			for _, tex := range set {
				if tex != nil {
					tex.Destroy()
				}
			}
		}
	}
	for _, b := range g.Blocks {
		var set [3]gpu.Texture
		out = append(out, set)
		for i := range set {
			name := MaskFileName(b.TopLeft, i)
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				release()
				return nil, nil
			}
			img, err := texture.DecodeImage(name, data)
			if err != nil {
				release()
				return nil, errors.Wrapf(err, "mask %s", name)
			}
			tex, err := g.res.dev.CreateTexture(img.Rect.Dx(), img.Rect.Dy())
			if err != nil {
				release()
				return nil, err
			}
			out[len(out)-1][i] = tex
			if err := tex.SetData(img.Pix, img.Rect.Dx(), img.Rect.Dy()); err != nil {
				release()
				return nil, errors.Wrapf(err, "mask %s", name)
			}
		}
	}
	return out, nil
}

// MaskFiles encodes every block's mask targets as PNG, keyed by MaskFileName.
func (g *Grid) MaskFiles() (map[string][]byte, error) {
	files := make(map[string][]byte, 3*len(g.Blocks))
	for _, b := range g.Blocks {
		for i := 0; i < 3; i++ {
			data, err := b.MaskLayerPNG(i)
			if err != nil {
				return nil, err
			}
			files[MaskFileName(b.TopLeft, i)] = data
		}
	}
	return files, nil
}

// UpdateMask draws pending paint spots into the masks of blocks in v, or of
// every block when force is set.
func (g *Grid) UpdateMask(v View, force bool) error {
	for _, b := range g.Blocks {
		if err := b.UpdateMask(v, force); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTexture redraws the dirty blend targets of blocks in v, or of every
// block when force is set.
func (g *Grid) UpdateTexture(v View, force bool) error {
	for _, b := range g.Blocks {
		if err := b.UpdateTexture(v, force); err != nil {
			return err
		}
	}
	return nil
}

// Render draws the blocks in v.
func (g *Grid) Render(v View, tick int) {
	for _, b := range g.Blocks {
		b.Render(v, tick)
	}
}

// Destroy releases every block.
func (g *Grid) Destroy() {
	for _, b := range g.Blocks {
		b.Destroy()
	}
	g.Blocks = nil
}
