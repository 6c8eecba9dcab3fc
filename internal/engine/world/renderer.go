package world

import (
	"io/fs"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/camera"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/engine/picking"
	"github.com/Faultbox/midgard-rts/internal/engine/shadow"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/terrainblock"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// WaterBrushName is the brush painted under water cells when a map has no
// saved masks. Other cells use the first brush of the set.
const WaterBrushName = "DefaultWaterBrush"

var (
	// ErrFrameOpen is returned by BeginFrame while a frame is open.
	ErrFrameOpen = errors.New("frame already open")
	// ErrNoFrame is returned by EndFrame and Scope outside a frame.
	ErrNoFrame = errors.New("no open frame")
	// ErrNoBrushes is returned by InitTerrain when masks must be painted
	// but the brush set is empty.
	ErrNoBrushes = errors.New("no brushes to paint terrain masks")
)

// Layer draws on top of the world after the mesh passes.
type Layer func(r *Renderer) error

// Renderer draws frames of one map.
type Renderer struct {
	ctx    *Context
	Grid   *terrainblock.Grid
	Camera *camera.RTSCamera

	// Optional layers drawn after meshes, in this order.
	Sprites Layer
	Shroud  Layer
	UI      Layer

	bounds terrain.Bounds
	tick   int
	open   bool
	scopes []*skeleton.FrameScope
	view   terrainblock.View

	viewProj, lightViewProj math.Mat4
}

// NewRenderer splits t into terrain blocks and frames it with a camera of
// the given screen size.
func NewRenderer(ctx *Context, t *terrain.Terrain, width, height int, rng *rand.Rand) (*Renderer, error) {
	grid, err := terrainblock.NewGrid(ctx.Terrain, t, rng)
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		ctx:    ctx,
		Grid:   grid,
		Camera: camera.NewRTSCamera(width, height),
		bounds: t.Bounds(),
	}
	r.Camera.FitToBounds(r.bounds)
	return r, nil
}

// Context returns the shared context.
func (r *Renderer) Context() *Context {
	return r.ctx
}

// Tick returns the number of frames drawn.
func (r *Renderer) Tick() int {
	return r.tick
}

// InitTerrain builds every block mask. Masks saved in fsys are loaded;
// otherwise they are painted from the terrain types. Every block is then
// drawn once regardless of the view.
func (r *Renderer) InitTerrain(fsys fs.FS, rng *rand.Rand) error {
	fromFiles, err := r.Grid.InitMask(fsys)
	if err != nil {
		return err
	}
	if !fromFiles {
		brush, water, err := r.paintBrushes()
		if err != nil {
			return err
		}
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		r.Grid.PaintFromTerrainTypes(rng, brush, water)
	}
	logger.Info("terrain masks initialized", zap.Bool("from_files", fromFiles))

	if err := r.Grid.UpdateMask(terrainblock.View{}, true); err != nil {
		return err
	}
	return r.Grid.UpdateTexture(terrainblock.View{}, true)
}

func (r *Renderer) defaultBrush() (*terrainblock.MaskBrush, error) {
	tiles := r.ctx.Tiles
	if tiles == nil || len(tiles.Brushes) == 0 {
		return nil, ErrNoBrushes
	}
	return terrainblock.NewMaskBrush(tiles.Brushes[0], r.Grid.Terrain), nil
}

func (r *Renderer) paintBrushes() (brush, water *terrainblock.MaskBrush, err error) {
	if brush, err = r.defaultBrush(); err != nil {
		return nil, nil, err
	}
	water = brush
	if info, ok := r.ctx.Tiles.Brush(WaterBrushName); ok {
		water = terrainblock.NewMaskBrush(info, r.Grid.Terrain)
	} else {
		logger.Warn("water brush missing, using default brush", zap.String("brush", WaterBrushName))
	}
	return brush, water, nil
}

// BeginFrame opens a pose texture scope on every skeleton family. Instances
// drawn this frame take a row from Scope before EndFrame.
func (r *Renderer) BeginFrame() error {
	if r.open {
		return ErrFrameOpen
	}
	r.open = true
	r.scopes = r.scopes[:0]
	for _, s := range r.ctx.skeletons {
		r.scopes = append(r.scopes, s.BeginFrame())
	}
	return nil
}

// Scope returns the open frame scope of skeleton family o.
func (r *Renderer) Scope(o *skeleton.OrderedSkeleton) (*skeleton.FrameScope, error) {
	if !r.open {
		return nil, ErrNoFrame
	}
	for i, s := range r.ctx.skeletons {
		if s == o && i < len(r.scopes) {
			return r.scopes[i], nil
		}
	}
	return nil, errors.Errorf("skeleton %s not registered", o.Name)
}

// Pick returns the terrain position under screen pixel (x, y).
func (r *Renderer) Pick(x, y int) (terrain.WPos, bool) {
	c := r.Camera
	ray := picking.ScreenToRay(float32(x), float32(y), float32(c.ScreenWidth), float32(c.ScreenHeight), c.ViewProj().Inverse())
	return picking.Terrain(ray, r.Grid.Terrain)
}

// Paint queues a stroke of the default brush at its default size. A
// negative intensity erases. The stroke is drawn by the next EndFrame.
func (r *Renderer) Paint(pos terrain.WPos, layer, intensity int) error {
	brush, err := r.defaultBrush()
	if err != nil {
		return err
	}
	r.Grid.PaintAt(brush, pos, brush.DefaultSize, layer, intensity)
	return nil
}

// View returns the terrain cull rectangle of the current camera.
func (r *Renderer) View() terrainblock.View {
	left, top, right, bottom := r.Camera.Viewport()
	return r.Grid.View(left, top, right, bottom)
}

// EndFrame publishes and uploads the poses of the frame, then draws terrain
// (mask, blend and final passes), the mesh sun and main passes and the
// sprite, shroud and UI layers. Scopes are closed and mesh queues dropped
// even when a step fails.
func (r *Renderer) EndFrame() error {
	if !r.open {
		return ErrNoFrame
	}
	defer func() {
		r.closeScopes()
		if r.ctx.Meshes != nil {
			r.ctx.Meshes.Flush()
		}
		r.open = false
		r.tick++
	}()

	for _, s := range r.scopes {
		if err := s.Publish(); err != nil {
			return err
		}
	}
	for i, s := range r.scopes {
		if err := r.ctx.skeletons[i].EndFrame(s); err != nil {
			return err
		}
	}

	r.view = r.View()
	if err := r.Grid.UpdateMask(r.view, false); err != nil {
		return err
	}
	if err := r.Grid.UpdateTexture(r.view, false); err != nil {
		return err
	}

	r.viewProj = r.Camera.ViewProj()
	r.lightViewProj = shadow.FocusLightMatrix(r.ctx.Sun.ToSun(), r.bounds, r.Camera.Focus, r.Camera.Distance)
	if err := r.sunPass(); err != nil {
		return err
	}

	dev := r.ctx.Device
	dev.Viewport(0, 0, r.Camera.ScreenWidth, r.Camera.ScreenHeight)
	dev.SetDepthTest(true)
	dev.SetDepthWrite(true)
	cc := r.ctx.ClearColor
	dev.Clear(cc[0], cc[1], cc[2], cc[3])

	r.drawTerrain()
	if err := r.drawMeshes(); err != nil {
		return err
	}

	for _, layer := range []Layer{r.Sprites, r.Shroud, r.UI} {
		if layer == nil {
			continue
		}
		if err := layer(r); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) closeScopes() {
	for i, s := range r.scopes {
		// Scopes ended above are skipped.
		if err := r.ctx.skeletons[i].EndFrame(s); err != nil {
			logger.Warn("closing skeleton scope failed",
				zap.String("skeleton", r.ctx.skeletons[i].Name), zap.Error(err))
		}
	}
	r.scopes = r.scopes[:0]
}

// sunPass draws mesh depth from the sun camera into the shadow map. The
// mesh queues are kept for the main pass.
func (r *Renderer) sunPass() error {
	m, sm := r.ctx.Meshes, r.ctx.Shadow
	if m == nil || sm == nil {
		return nil
	}
	sh := m.Shader()
	sh.SetBool("uShadowPass", true)
	sh.SetMatrix("uViewProj", r.lightViewProj)
	sm.Begin()
	err := m.DrawInstances(true)
	sm.End()
	sh.SetBool("uShadowPass", false)
	return errors.Wrap(err, "sun pass")
}

func (r *Renderer) drawTerrain() {
	c := r.ctx
	sh := c.Terrain.FinalShader()
	sh.SetMatrix("uViewProj", r.viewProj)
	sh.SetMatrix("uLightViewProj", r.lightViewProj)
	c.Sun.Apply(sh)
	sh.SetVec("uWaterColor", c.WaterColor[:]...)
	sh.SetBool("uShadowsEnabled", c.Shadow != nil)
	if c.Shadow != nil {
		sh.SetTexture("uShadowMap", c.Shadow.Texture())
	}
	left, top, right, bottom := r.Camera.Viewport()
	c.Lights.Upload(sh, left, top, right, bottom)

	c.Device.SetFaceCull(false)
	r.Grid.Render(r.view, r.tick)
	c.Device.SetBlendMode(gpu.BlendAlpha)
}

func (r *Renderer) drawMeshes() error {
	m := r.ctx.Meshes
	if m == nil {
		return nil
	}
	sh := m.Shader()
	sh.SetBool("uShadowPass", false)
	sh.SetMatrix("uViewProj", r.viewProj)
	r.ctx.Sun.Apply(sh)
	return errors.Wrap(m.DrawInstances(false), "mesh pass")
}

// Destroy releases the terrain blocks. The context is left to its owner.
func (r *Renderer) Destroy() {
	r.Grid.Destroy()
}
