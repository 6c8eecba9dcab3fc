package world

import (
	"bytes"
	"errors"
	"image/color"
	"math/rand"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/gpu/gputest"
	"github.com/Faultbox/midgard-rts/internal/engine/lighting"
	"github.com/Faultbox/midgard-rts/internal/engine/mesh"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/internal/engine/terrain"
	"github.com/Faultbox/midgard-rts/internal/engine/terrainblock"
	"github.com/Faultbox/midgard-rts/internal/engine/texture"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Graphics.BlockSize = 4
	cfg.Graphics.BlockTextureSize = 8
	cfg.Lighting.ShadowResolution = 16
	return cfg
}

func testTerrain(t *testing.T) *terrain.Terrain {
	t.Helper()
	ts, err := formats.NewTileset("test", []formats.TerrainType{
		{Type: "Clear", Colors: []color.RGBA{{R: 40, G: 80, B: 20, A: 255}}},
		{Type: "Water", Colors: []color.RGBA{{R: 0, G: 0, B: 40, A: 255}}},
	}, map[uint16]formats.Template{
		0: {Terrain: "Clear"},
		1: {Terrain: "Water"},
	})
	if err != nil {
		t.Fatal(err)
	}
	g := terrain.NewGrid(4, 4)
	g.Tiles[g.Index(1, 1)] = formats.MapTile{Type: 1}
	tr, err := terrain.Bake(g, ts, terrain.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func testMeshFS(t *testing.T) fstest.MapFS {
	t.Helper()
	var buf bytes.Buffer
	err := formats.WriteMMR(&buf, &formats.MMR{
		Version:   "1",
		Name:      "quad",
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Normals:   [][3]float32{{0, 0, 1}},
		Faces:     [][]formats.MMRCorner{{{0, 0, 0}, {1, 1, 0}, {2, 2, 0}, {3, 3, 0}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sheet, err := texture.EncodePNG(texture.Solid(2, 2, 255, 255, 255, 255), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	return fstest.MapFS{
		"units/quad.mmr":   {Data: buf.Bytes()},
		"units/white.png":  {Data: sheet},
		"units/knight.mat": {Data: []byte("sheets: [white.png]\n")},
	}
}

func testSkeleton(t *testing.T, rows int) *skeleton.OrderedSkeleton {
	t.Helper()
	asset, err := skeleton.NewAsset("knight", []formats.BoneRecord{{
		Name: "root", ID: 0, Skin: true, Anim: true,
		Parent: formats.NoParent, ParentID: -1,
		RestPose: formats.IdentityPose(), RestPoseInv: formats.IdentityPose(), BindPose: formats.IdentityPose(),
	}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	o, err := skeleton.NewOrderedSkeleton("knight", asset, nil, skeleton.Options{TextureWidth: 16, TextureHeight: rows})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

type fixture struct {
	dev    *gputest.Device
	ctx    *Context
	r      *Renderer
	tiles  *texture.Cache
	knight *mesh.OrderedMesh
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	dev := gputest.New()
	tiles := &texture.Cache{}
	if err := tiles.Upload(dev); err != nil {
		t.Fatal(err)
	}
	tiles.Brushes = []texture.BrushInfo{
		{Name: "round", TextureIndex: 0, DefaultSize: 724},
		{Name: WaterBrushName, TextureIndex: 1, DefaultSize: 724},
	}

	meshes, err := mesh.NewCache(dev, testMeshFS(t), mesh.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := meshes.CacheMesh("knight", "idle", mesh.Definition{Mesh: "units/quad", Material: "units/knight"}); err != nil {
		t.Fatal(err)
	}
	knight, err := meshes.GetMeshSequence("knight", "idle")
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := NewContext(dev, tiles, meshes, cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	r, err := NewRenderer(ctx, testTerrain(t), 800, 600, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	// Far enough to see the whole map.
	r.Camera.Pitch = 1.4
	r.Camera.Distance = 200
	return &fixture{dev: dev, ctx: ctx, r: r, tiles: tiles, knight: knight}
}

func (f *fixture) shader(name string) *gputest.Shader {
	for _, s := range f.dev.Shaders {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestNewContext(t *testing.T) {
	f := newFixture(t, testConfig())
	for _, name := range []string{"mesh", "terrain_mask", "terrain_blend", "terrain_final"} {
		if f.shader(name) == nil {
			t.Errorf("shader %s not created", name)
		}
	}
	if f.ctx.Shadow == nil || f.ctx.Shadow.Resolution() != 16 {
		t.Fatal("shadow map not created at the configured resolution")
	}

	cfg := testConfig()
	cfg.Lighting.Shadows = false
	if f := newFixture(t, cfg); f.ctx.Shadow != nil {
		t.Error("shadow map created with shadows off")
	}
}

func TestInitTerrain_Paints(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.InitTerrain(nil, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("InitTerrain: %v", err)
	}
	if len(f.dev.DrawsWith("terrain_mask")) <= len(f.r.Grid.Blocks) {
		t.Error("no brush strokes drawn after the init passes")
	}
	for _, b := range f.r.Grid.Blocks {
		if b.TextureDirty() || len(b.PendingSpots()) != 0 {
			t.Errorf("block %v left dirty", b.TopLeft)
		}
	}
	if f.shader("terrain_mask").Bools["uInitWithTextures"] {
		t.Error("painted masks must not sample saved textures")
	}
}

func TestInitTerrain_FromFiles(t *testing.T) {
	first := newFixture(t, testConfig())
	if err := first.r.InitTerrain(nil, nil); err != nil {
		t.Fatal(err)
	}
	files, err := first.r.Grid.MaskFiles()
	if err != nil {
		t.Fatal(err)
	}
	fsys := fstest.MapFS{}
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: data}
	}

	f := newFixture(t, testConfig())
	f.tiles.Brushes = nil
	if err := f.r.InitTerrain(fsys, nil); err != nil {
		t.Fatalf("InitTerrain: %v", err)
	}
	if got := len(f.dev.DrawsWith("terrain_mask")); got != len(f.r.Grid.Blocks) {
		t.Errorf("got %d mask draws, want one init pass per block (%d)", got, len(f.r.Grid.Blocks))
	}
	if !f.shader("terrain_mask").Bools["uInitWithTextures"] {
		t.Error("saved masks not sampled")
	}
}

func TestInitTerrain_NoBrushes(t *testing.T) {
	f := newFixture(t, testConfig())
	f.tiles.Brushes = nil
	if err := f.r.InitTerrain(nil, nil); !errors.Is(err, ErrNoBrushes) {
		t.Errorf("error = %v, want ErrNoBrushes", err)
	}
}

func TestFrameLifecycleErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.EndFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EndFrame without BeginFrame: %v", err)
	}
	o := testSkeleton(t, 4)
	if _, err := f.r.Scope(o); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Scope outside a frame: %v", err)
	}
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.r.BeginFrame(); !errors.Is(err, ErrFrameOpen) {
		t.Errorf("second BeginFrame: %v", err)
	}
	if _, err := f.r.Scope(o); err == nil {
		t.Error("Scope of an unregistered skeleton succeeded")
	}
}

// drawIndex returns the index of the first draw matching pred, or -1.
func drawIndex(draws []gputest.Draw, pred func(gputest.Draw) bool) int {
	for i, d := range draws {
		if pred(d) {
			return i
		}
	}
	return -1
}

func TestEndFrame_DrawOrder(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.InitTerrain(nil, nil); err != nil {
		t.Fatal(err)
	}
	brush := terrainblock.NewMaskBrush(f.tiles.Brushes[0], f.r.Grid.Terrain)
	cell, _ := f.r.Grid.Terrain.Cell(1, 1)
	f.r.Grid.PaintAt(brush, cell.Center, 724, 3, 100)
	if err := f.knight.AddInstance(mesh.NewInstanceData(math.Identity())); err != nil {
		t.Fatal(err)
	}

	var layers []string
	var layerDraws []int
	record := func(name string) Layer {
		return func(r *Renderer) error {
			layers = append(layers, name)
			layerDraws = append(layerDraws, len(f.dev.Draws))
			return nil
		}
	}
	f.r.Sprites, f.r.Shroud, f.r.UI = record("sprites"), record("shroud"), record("ui")

	f.dev.Reset()
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	draws := f.dev.Draws
	shadowTex := f.ctx.Shadow.Texture()
	mask := drawIndex(draws, func(d gputest.Draw) bool { return d.Shader == "terrain_mask" })
	blend := drawIndex(draws, func(d gputest.Draw) bool { return d.Shader == "terrain_blend" })
	sun := drawIndex(draws, func(d gputest.Draw) bool {
		return d.Shader == "mesh" && d.Target != nil && d.Target.Texture(0) == shadowTex
	})
	final := drawIndex(draws, func(d gputest.Draw) bool { return d.Shader == "terrain_final" })
	main := drawIndex(draws, func(d gputest.Draw) bool { return d.Shader == "mesh" && d.Target == nil })

	order := []struct {
		name  string
		index int
	}{{"mask", mask}, {"blend", blend}, {"sun", sun}, {"final", final}, {"main", main}}
	for i, o := range order {
		if o.index < 0 {
			t.Fatalf("no %s draw", o.name)
		}
		if i > 0 && o.index <= order[i-1].index {
			t.Errorf("%s draw at %d, before %s at %d", o.name, o.index, order[i-1].name, order[i-1].index)
		}
	}

	if len(layers) != 3 || layers[0] != "sprites" || layers[1] != "shroud" || layers[2] != "ui" {
		t.Fatalf("layers = %v", layers)
	}
	if layerDraws[0] != len(draws) {
		t.Error("layers must run after every world draw")
	}
	if f.knight.Count() != 0 {
		t.Error("mesh queue not flushed by the main pass")
	}
	if f.r.Tick() != 1 {
		t.Errorf("Tick() = %d, want 1", f.r.Tick())
	}
}

func TestEndFrame_Uniforms(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.InitTerrain(nil, nil); err != nil {
		t.Fatal(err)
	}
	cell, _ := f.r.Grid.Terrain.Cell(2, 2)
	f.ctx.Lights.Add(lighting.PointLight{Pos: cell.Center, Tint: [3]float32{1, 1, 1}, Range: 1024, Intensity: 1})

	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.r.EndFrame(); err != nil {
		t.Fatal(err)
	}

	vp := f.r.Camera.ViewProj()
	fs := f.shader("terrain_final")
	if fs.Matrices["uViewProj"] != [16]float32(vp) {
		t.Error("terrain uViewProj is not the camera matrix")
	}
	if !fs.Bools["uShadowsEnabled"] || fs.Textures["uShadowMap"] != f.ctx.Shadow.Texture() {
		t.Error("shadow map not bound to the terrain pass")
	}
	if got := fs.Floats["uWaterColor"]; len(got) != 4 || got[3] != testConfig().Lighting.WaterColor[3] {
		t.Errorf("uWaterColor = %v", got)
	}
	if fs.Ints["uLightCount"] != 1 {
		t.Errorf("uLightCount = %d, want 1", fs.Ints["uLightCount"])
	}
	if len(fs.Floats["uLightDir"]) != 3 {
		t.Error("sun not applied to the terrain pass")
	}

	ms := f.shader("mesh")
	if ms.Matrices["uViewProj"] != [16]float32(vp) {
		t.Error("mesh uViewProj must end on the camera matrix")
	}
	if ms.Bools["uShadowPass"] {
		t.Error("uShadowPass left on")
	}
}

func TestEndFrame_NoShadows(t *testing.T) {
	cfg := testConfig()
	cfg.Lighting.Shadows = false
	f := newFixture(t, cfg)
	if err := f.r.InitTerrain(nil, nil); err != nil {
		t.Fatal(err)
	}
	_ = f.knight.AddInstance(mesh.NewInstanceData(math.Identity()))

	f.dev.Reset()
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	meshDraws := f.dev.DrawsWith("mesh")
	if len(meshDraws) != 1 || meshDraws[0].Target != nil {
		t.Errorf("got %d mesh draws, want only the main pass", len(meshDraws))
	}
	if f.shader("terrain_final").Bools["uShadowsEnabled"] {
		t.Error("uShadowsEnabled set without a shadow map")
	}
}

func TestEndFrame_PublishesPoses(t *testing.T) {
	f := newFixture(t, testConfig())
	o := testSkeleton(t, 4)
	if err := f.ctx.AddSkeleton(o); err != nil {
		t.Fatal(err)
	}
	if err := f.ctx.AddSkeleton(o); err != nil || len(f.ctx.Skeletons()) != 1 {
		t.Fatal("adding a skeleton twice must be a no-op")
	}

	inst := o.CreateInstance()
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	scope, err := f.r.Scope(o)
	if err != nil {
		t.Fatal(err)
	}
	if err := scope.AddInstance(inst); err != nil {
		t.Fatal(err)
	}
	inst.UpdateOffset(nil, nil)
	if err := f.r.EndFrame(); err != nil {
		t.Fatal(err)
	}

	tex := o.Texture().(*gputest.Texture)
	if tex.Uploads != 1 {
		t.Errorf("pose texture uploads = %d, want 1", tex.Uploads)
	}
	if inst.DrawID != -1 {
		t.Errorf("DrawID = %d after EndFrame, want -1", inst.DrawID)
	}
}

// One instance more than the pose texture has rows fails the frame, and the
// scope is still closed.
func TestEndFrame_TooManyInstances(t *testing.T) {
	f := newFixture(t, testConfig())
	const rows = 2
	o := testSkeleton(t, rows)
	if err := f.ctx.AddSkeleton(o); err != nil {
		t.Fatal(err)
	}
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	scope, _ := f.r.Scope(o)
	instances := make([]*skeleton.Instance, rows+1)
	for i := range instances {
		instances[i] = o.CreateInstance()
		if err := scope.AddInstance(instances[i]); err != nil {
			t.Fatal(err)
		}
		instances[i].UpdateOffset(nil, nil)
	}

	if err := f.r.EndFrame(); !errors.Is(err, skeleton.ErrTooManySkeletons) {
		t.Fatalf("EndFrame error = %v, want ErrTooManySkeletons", err)
	}
	for _, inst := range instances {
		if inst.DrawID != -1 {
			t.Errorf("instance kept row %d", inst.DrawID)
		}
	}
	if err := f.r.BeginFrame(); err != nil {
		t.Errorf("BeginFrame after a failed frame: %v", err)
	}
}

// A frame that fails before the mesh pass drops its queued instances so the
// next frame only draws its own.
func TestEndFrame_FailedFrameDropsMeshQueues(t *testing.T) {
	f := newFixture(t, testConfig())
	o := testSkeleton(t, 1)
	if err := f.ctx.AddSkeleton(o); err != nil {
		t.Fatal(err)
	}
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	scope, _ := f.r.Scope(o)
	for i := 0; i < 2; i++ {
		inst := o.CreateInstance()
		if err := scope.AddInstance(inst); err != nil {
			t.Fatal(err)
		}
		inst.UpdateOffset(nil, nil)
	}
	if err := f.knight.AddInstance(mesh.NewInstanceData(math.Identity())); err != nil {
		t.Fatal(err)
	}

	if err := f.r.EndFrame(); !errors.Is(err, skeleton.ErrTooManySkeletons) {
		t.Fatalf("EndFrame error = %v, want ErrTooManySkeletons", err)
	}
	if n := f.ctx.Meshes.Queued(); n != 0 {
		t.Fatalf("instances queued after failed frame = %d, want 0", n)
	}

	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.knight.AddInstance(mesh.NewInstanceData(math.Identity())); err != nil {
		t.Fatal(err)
	}
	if n := f.knight.Count(); n != 1 {
		t.Errorf("queued in next frame = %d, want 1", n)
	}
	if err := f.r.EndFrame(); err != nil {
		t.Fatalf("next EndFrame: %v", err)
	}
	if n := f.ctx.Meshes.Queued(); n != 0 {
		t.Errorf("instances queued after drawn frame = %d, want 0", n)
	}
}

func TestEndFrame_LogsScopeCloseFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer logger.Replace(zap.New(core))()

	f := newFixture(t, testConfig())
	o := testSkeleton(t, 1)
	if err := f.ctx.AddSkeleton(o); err != nil {
		t.Fatal(err)
	}
	if err := f.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	scope, _ := f.r.Scope(o)
	for i := 0; i < 2; i++ {
		inst := o.CreateInstance()
		if err := scope.AddInstance(inst); err != nil {
			t.Fatal(err)
		}
		inst.UpdateOffset(nil, nil)
	}
	// The pose upload no longer matches the texture size.
	o.AnimTransformData = append(o.AnimTransformData, 0)

	if err := f.r.EndFrame(); !errors.Is(err, skeleton.ErrTooManySkeletons) {
		t.Fatalf("EndFrame error = %v, want ErrTooManySkeletons", err)
	}
	entries := logs.FilterMessage("closing skeleton scope failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d close warnings, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["skeleton"]; got != "knight" {
		t.Errorf("warning names skeleton %v", got)
	}
}

func TestDestroy(t *testing.T) {
	f := newFixture(t, testConfig())
	o := testSkeleton(t, 4)
	_ = f.ctx.AddSkeleton(o)
	tex := o.Texture().(*gputest.Texture)

	f.r.Destroy()
	f.ctx.Destroy()
	if !tex.Destroyed {
		t.Error("pose texture not destroyed")
	}
	for _, fb := range f.dev.Framebuffers {
		if !fb.Destroyed {
			t.Error("framebuffer left alive")
		}
	}
}

func TestPick(t *testing.T) {
	f := newFixture(t, testConfig())
	p, ok := f.r.Pick(400, 300)
	if !ok {
		t.Fatal("screen center missed the terrain")
	}
	focus := terrain.WorldPos(f.r.Camera.Focus)
	if d := p.X - focus.X; d < -32 || d > 32 {
		t.Errorf("picked x %d, focus x %d", p.X, focus.X)
	}
	if d := p.Y - focus.Y; d < -32 || d > 32 {
		t.Errorf("picked y %d, focus y %d", p.Y, focus.Y)
	}
}

func TestPaint(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.InitTerrain(nil, nil); err != nil {
		t.Fatal(err)
	}
	cell, _ := f.r.Grid.Terrain.Cell(2, 2)
	if err := f.r.Paint(cell.Center, terrainblock.LayerSand, -255); err != nil {
		t.Fatalf("Paint: %v", err)
	}
	var spots int
	for _, b := range f.r.Grid.Blocks {
		for _, s := range b.PendingSpots() {
			spots++
			if s.Layer != terrainblock.LayerSand || s.Intensity != -255 || s.Size != 724 {
				t.Errorf("spot %+v", s)
			}
		}
	}
	if spots == 0 {
		t.Fatal("no block took the stroke")
	}

	f.tiles.Brushes = nil
	if err := f.r.Paint(cell.Center, 0, 255); !errors.Is(err, ErrNoBrushes) {
		t.Errorf("Paint without brushes = %v", err)
	}
}
