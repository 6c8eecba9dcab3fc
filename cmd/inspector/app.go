package main

import (
	"fmt"
	"path/filepath"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/sqweek/dialog"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/config"
	"github.com/Faultbox/midgard-rts/internal/engine/blendtree"
	"github.com/Faultbox/midgard-rts/internal/engine/skeleton"
	"github.com/Faultbox/midgard-rts/internal/engine/ui"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
)

var playTypes = []blendtree.PlayType{blendtree.Loop, blendtree.Once, blendtree.PingPong}
var playNames = []string{"Loop", "Once", "PingPong"}

// pendingOpen is a file picked in a dialog, applied on the UI thread.
type pendingOpen struct {
	slot int // -1 for a skeleton, else the clip slot
	path string
}

// App is the inspector state.
type App struct {
	backend *ui.Backend
	opts    config.AnimationConfig

	asset    *skeleton.Asset
	family   *skeleton.OrderedSkeleton
	instance *skeleton.Instance

	clips  [2]*skeleton.SkeletalAnim
	tree   *blendtree.Tree
	leaves [2]blendtree.NodeID
	blend  blendtree.NodeID

	playing  bool
	play     int32
	factor   float32
	status   string
	pending  chan pendingOpen
	selected int
}

// NewApp returns an empty inspector.
func NewApp(b *ui.Backend, opts config.AnimationConfig) *App {
	return &App{
		backend:  b,
		opts:     opts,
		playing:  true,
		leaves:   [2]blendtree.NodeID{-1, -1},
		blend:    -1,
		pending:  make(chan pendingOpen, 4),
		selected: -1,
	}
}

// Run enters the UI loop.
func (a *App) Run() {
	a.backend.Run(a.render)
}

// OpenSkeleton loads a skeleton and drops the clips of the previous one.
func (a *App) OpenSkeleton(path string) {
	asset, err := skeleton.Load(path, a.opts.MaxSkinBones)
	if err != nil {
		a.fail("opening skeleton", err)
		return
	}
	family, err := skeleton.NewOrderedSkeleton(filepath.Base(path), asset, nil, skeleton.Options{
		TextureWidth:          a.opts.TextureWidth,
		TextureHeight:         a.opts.TextureHeight,
		UseDynamicAdjBonePose: a.opts.DynamicAdjBonePose,
	})
	if err != nil {
		a.fail("opening skeleton", err)
		return
	}
	a.asset, a.family = asset, family
	a.instance = family.CreateInstance()
	a.instance.UpdateOffset(nil, nil)
	a.clips = [2]*skeleton.SkeletalAnim{}
	a.tree, a.selected = nil, -1
	a.status = fmt.Sprintf("%s: %d bones", asset.Name, len(asset.Bones))
	a.backend.SetWindowTitle("Midgard RTS Inspector - " + filepath.Base(path))
	logger.Info("skeleton opened", zap.String("path", path), zap.Int("bones", len(asset.Bones)))
}

// OpenClip loads a clip into slot 0 (played) or 1 (blended in).
func (a *App) OpenClip(slot int, path string) {
	if a.asset == nil {
		a.status = "open a skeleton first"
		return
	}
	raw, err := formats.ParseAnimFile(path)
	if err != nil {
		a.fail("opening clip", err)
		return
	}
	a.clips[slot] = skeleton.NewSkeletalAnim(a.asset, raw, filepath.Base(path))
	a.rebuildTree()
	a.status = fmt.Sprintf("clip %s: %d frames", filepath.Base(path), a.clips[slot].Len())
}

func (a *App) fail(what string, err error) {
	a.status = fmt.Sprintf("%s: %v", what, err)
	logger.Warn(what+" failed", zap.Error(err))
}

// rebuildTree plays clip 0, blended toward clip 1 when both are loaded.
func (a *App) rebuildTree() {
	a.leaves = [2]blendtree.NodeID{-1, -1}
	a.blend = -1
	if a.clips[0] == nil {
		a.tree = nil
		a.instance.AttachTree(nil)
		return
	}
	t := blendtree.New("inspector", a.asset.AnimBoneCount())
	play := playTypes[a.play]
	a.leaves[0] = t.AddLeaf("a", a.clips[0], nil, play)
	final := a.leaves[0]
	if a.clips[1] != nil {
		a.leaves[1] = t.AddLeaf("b", a.clips[1], nil, play)
		var err error
		if a.blend, err = t.AddBlend2("mix", nil, a.leaves[0], a.leaves[1]); err != nil {
			a.fail("building blend tree", err)
			return
		}
		_ = t.SetBlendValue(a.blend, a.factor)
		final = a.blend
	}
	if err := t.SetFinal(final); err != nil {
		a.fail("building blend tree", err)
		return
	}
	a.tree = t
	a.instance.AttachTree(t)
}

func (a *App) openDialog(slot int) {
	title, filter, exts := "Open Skeleton", "Skeletons", []string{"skl", "yaml"}
	if slot >= 0 {
		title, filter, exts = "Open Animation", "Animations", []string{"ska", "anim"}
	}
	go func() {
		path, err := dialog.File().Filter(filter, exts...).Filter("All Files", "*").Title(title).Load()
		if err != nil {
			if err != dialog.ErrCancelled {
				logger.Warn("file dialog failed", zap.Error(err))
			}
			return
		}
		a.pending <- pendingOpen{slot: slot, path: path}
	}()
}

func (a *App) render() {
	select {
	case p := <-a.pending:
		if p.slot < 0 {
			a.OpenSkeleton(p.path)
		} else {
			a.OpenClip(p.slot, p.path)
		}
	default:
	}

	if ui.IsKeyPressed(imgui.KeySpace) {
		a.playing = !a.playing
	}
	if a.playing && a.tree != nil {
		if err := a.instance.UpdateOffsetWithTree(); err != nil {
			a.fail("posing", err)
			a.playing = false
		}
	}

	x, y, w, h := ui.WorkArea()
	imgui.SetNextWindowPos(imgui.NewVec2(x, y))
	imgui.SetNextWindowSize(imgui.NewVec2(w*0.35, h))
	if imgui.BeginV("Controls", nil, imgui.WindowFlagsNoMove|imgui.WindowFlagsNoCollapse) {
		a.renderControls()
	}
	imgui.End()

	imgui.SetNextWindowPos(imgui.NewVec2(x+w*0.35, y))
	imgui.SetNextWindowSize(imgui.NewVec2(w*0.65, h))
	if imgui.BeginV("Bones", nil, imgui.WindowFlagsNoMove|imgui.WindowFlagsNoCollapse) {
		a.renderBones()
	}
	imgui.End()
}

func (a *App) renderControls() {
	if imgui.Button("Open skeleton...") {
		a.openDialog(-1)
	}
	imgui.BeginDisabledV(a.asset == nil)
	if imgui.Button("Open clip...") {
		a.openDialog(0)
	}
	imgui.SameLine()
	if imgui.Button("Open blend clip...") {
		a.openDialog(1)
	}
	imgui.EndDisabled()
	imgui.Separator()

	if a.asset == nil {
		imgui.TextDisabled("No skeleton loaded")
		imgui.Separator()
		imgui.TextWrapped(a.status)
		return
	}
	imgui.Text(fmt.Sprintf("%s: %d bones, %d skin, %d animated",
		a.asset.Name, len(a.asset.Bones), a.asset.SkinBoneCount(), a.asset.AnimBoneCount()))
	for i, c := range a.clips {
		if c == nil {
			imgui.TextDisabled(fmt.Sprintf("clip %d: none", i))
			continue
		}
		imgui.Text(fmt.Sprintf("clip %d: %s, frame %d/%d", i, c.Name, a.tree.CurrentFrame(a.leaves[i]), c.Len()))
	}

	imgui.Spacing()
	imgui.Checkbox("Playing (Space)", &a.playing)
	if imgui.SliderIntV("Play", &a.play, 0, int32(len(playTypes)-1), playNames[a.play], imgui.SliderFlagsNone) && a.tree != nil {
		for _, id := range a.leaves {
			if id >= 0 {
				_ = a.tree.SetPlayType(id, playTypes[a.play])
			}
		}
	}
	imgui.BeginDisabledV(a.blend < 0)
	if imgui.SliderFloatV("Blend", &a.factor, 0, 1, "%.2f", imgui.SliderFlagsNone) {
		_ = a.tree.SetBlendValue(a.blend, a.factor)
	}
	imgui.EndDisabled()
	if imgui.Button("Rewind") && a.tree != nil {
		for _, id := range a.leaves {
			if id >= 0 {
				_ = a.tree.ResetFrame(id)
			}
		}
	}
	imgui.SameLine()
	if imgui.Button("Rest pose") {
		a.playing = false
		a.instance.UpdateOffset(nil, nil)
	}

	imgui.Separator()
	imgui.TextWrapped(a.status)
}

func (a *App) renderBones() {
	if a.asset == nil {
		return
	}
	a.renderBone(a.asset.Root)
	if a.selected >= 0 {
		imgui.Separator()
		b := a.asset.Bones[a.selected]
		m := a.instance.BonePose(a.selected)
		imgui.Text(fmt.Sprintf("%s (parent %s)", b.Name, b.ParentName))
		for r := 0; r < 4; r++ {
			imgui.Text(fmt.Sprintf("% 8.3f % 8.3f % 8.3f % 8.3f", m[r], m[4+r], m[8+r], m[12+r]))
		}
	}
}

func (a *App) renderBone(id int) {
	b := a.asset.Bones[id]
	var children []int
	for _, c := range a.asset.Order {
		if a.asset.Bones[c].ParentID == id {
			children = append(children, c)
		}
	}
	flags := imgui.TreeNodeFlagsDefaultOpen
	if len(children) == 0 {
		flags |= imgui.TreeNodeFlagsLeaf
	}
	if id == a.selected {
		flags |= imgui.TreeNodeFlagsSelected
	}
	p := a.instance.BonePose(id).Translation()
	open := imgui.TreeNodeExStrV(fmt.Sprintf("%s  (%.2f, %.2f, %.2f)##%d", b.Name, p.X, p.Y, p.Z, id), flags)
	if imgui.IsItemClicked() {
		a.selected = id
	}
	if open {
		for _, c := range children {
			a.renderBone(c)
		}
		imgui.TreePop()
	}
}
