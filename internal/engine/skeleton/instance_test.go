package skeleton

import (
	"errors"
	"testing"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu/gputest"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

const eps = 1e-4

func newTestSkeleton(t *testing.T, opts Options) *OrderedSkeleton {
	t.Helper()
	a, err := NewAsset("inf", testRecords(), 0)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOrderedSkeleton("inf", a, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func mustAdd(t *testing.T, scope *FrameScope, inst *Instance) {
	t.Helper()
	if err := scope.AddInstance(inst); err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
}

func translation(x, y, z float32) math.Transform {
	return math.NewTransformSRT(math.One3(), math.QuatIdentity(), math.Vec3{X: x, Y: y, Z: z})
}

// Root-only animation leaves every child at parent * rest.
func TestUpdateOffset_RootOnlyClip(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	inst := o.CreateInstance()
	inst.SetOffset(math.Vec3{X: 10}, math.QuatIdentity(), 1)

	frame := NewFrame(o.Asset.AnimBoneCount())
	frame.Set(0, translation(0, 5, 0))
	inst.UpdateOffset(frame, nil)

	root := inst.BonePose(0)
	if want := math.Translate(10, 5, 0); !root.ApproxEqual(want, eps) {
		t.Errorf("root pose = %v, want %v", root, want)
	}
	for _, id := range []int{1, 2, 3} {
		b := inst.Bones[id]
		want := inst.Bones[b.ParentID].CurrentPose.Mul(b.RestPose)
		if !b.CurrentPose.ApproxEqual(want, eps) {
			t.Errorf("bone %d pose = %v, want parent*rest %v", id, b.CurrentPose, want)
		}
	}
	if head := inst.BonePose(2).Translation(); !head.ApproxEqual(math.Vec3{X: 10, Y: 6, Z: 2}, eps) {
		t.Errorf("head position = %+v", head)
	}
}

func TestUpdateOffset_MaskAndRest(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	inst := o.CreateInstance()

	frame := NewFrame(o.Asset.AnimBoneCount())
	frame.Set(1, translation(3, 0, 0))

	mask := NewAnimMask(o.Asset.AnimBoneCount(), true)
	mask[1] = false
	inst.UpdateOffset(frame, mask)
	if got := inst.BonePose(1).Translation(); !got.ApproxEqual(math.Vec3{Z: 2}, eps) {
		t.Errorf("masked spine = %+v, want rest", got)
	}

	inst.UpdateOffset(frame, nil)
	if got := inst.BonePose(1).Translation(); !got.ApproxEqual(math.Vec3{X: 3}, eps) {
		t.Errorf("animated spine = %+v, want the clip transform", got)
	}

	inst.UpdateOffset(nil, nil)
	if got := inst.BonePose(2).Translation(); !got.ApproxEqual(math.Vec3{Y: 1, Z: 2}, eps) {
		t.Errorf("rest head = %+v", got)
	}
}

func TestUpdateOffset_ModifiedRest(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	inst := o.CreateInstance()

	taller := math.Translate(0, 0, 4)
	if err := inst.SetRestPose(1, taller); err != nil {
		t.Fatal(err)
	}
	frame := NewFrame(o.Asset.AnimBoneCount())
	anim := translation(1, 0, 2)
	frame.Set(1, anim)
	inst.UpdateOffset(frame, nil)

	want := anim.MustMatrix().Mul(inst.Bones[1].BaseRestPoseInv).Mul(taller)
	if got := inst.BonePose(1); !got.ApproxEqual(want, eps) {
		t.Errorf("modified spine = %v, want %v", got, want)
	}
	if got := inst.BonePose(1).Translation(); !got.ApproxEqual(math.Vec3{X: 1, Z: 4}, eps) {
		t.Errorf("modified spine translation = %+v", got)
	}

	if err := inst.SetRestPose(99, taller); !errors.Is(err, ErrBoneOutOfRange) {
		t.Errorf("out of range error = %v", err)
	}
}

func TestBoneOverride(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	inst := o.CreateInstance()
	pinned := math.Translate(7, 7, 7)
	if err := inst.SetBoneOverride(1, pinned); err != nil {
		t.Fatal(err)
	}
	inst.UpdateOffset(nil, nil)
	if inst.BonePose(1) != pinned {
		t.Error("override should survive UpdateOffset")
	}
	if got := inst.BonePose(2).Translation(); !got.ApproxEqual(math.Vec3{X: 7, Y: 8, Z: 7}, eps) {
		t.Errorf("child of pinned bone = %+v", got)
	}
	inst.ClearOverrides()
	inst.UpdateOffset(nil, nil)
	if inst.BonePose(1) == pinned {
		t.Error("ClearOverrides should release the bone")
	}
}

type fixedPose struct {
	frame *Frame
	calls int
}

func (p *fixedPose) Pose() (*Frame, AnimMask) {
	p.calls++
	return p.frame, nil
}

func TestUpdateOffsetWithTree(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	inst := o.CreateInstance()
	if err := inst.UpdateOffsetWithTree(); !errors.Is(err, ErrNoBlendTree) {
		t.Fatalf("error = %v, want ErrNoBlendTree", err)
	}

	frame := NewFrame(o.Asset.AnimBoneCount())
	frame.Set(0, translation(0, 0, 9))
	src := &fixedPose{frame: frame}
	inst.AttachTree(src)
	if err := inst.UpdateOffsetWithTree(); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 || inst.BonePose(0).Translation().Z != 9 {
		t.Errorf("calls = %d, root = %v", src.calls, inst.BonePose(0))
	}
}

func TestProcessManagerData_Layout(t *testing.T) {
	o := newTestSkeleton(t, Options{TextureWidth: 16, TextureHeight: 4})
	scope := o.BeginFrame()
	first, second := o.CreateInstance(), o.CreateInstance()
	mustAdd(t, scope, first)
	mustAdd(t, scope, second)
	if second.DrawID != 1 || !second.CanDraw() {
		t.Fatalf("draw id = %d", second.DrawID)
	}

	// Not posed yet: nothing to publish.
	if err := second.ProcessManagerData(); err != nil {
		t.Fatal(err)
	}
	for _, v := range o.AnimTransformData {
		if v != 0 {
			t.Fatal("unposed instance must not publish")
		}
	}

	second.SetOffset(math.Vec3{X: 1, Y: 2, Z: 3}, math.QuatIdentity(), 2)
	second.UpdateOffset(nil, nil)
	second.UpdateLastPose()
	if err := second.ProcessManagerData(); err != nil {
		t.Fatal(err)
	}

	row := o.AnimTransformData[1*16*4:]
	// Root: scale 2, translation (1, 2, 3); rows are (2 0 0 1) (0 2 0 2) (0 0 2 3).
	want := []float32{2, 0, 0, 1, 0, 2, 0, 2, 0, 0, 2, 3}
	for i, w := range want {
		if row[i] != w {
			t.Fatalf("root texels = %v, want %v", row[:12], want)
		}
	}
	// Spine sits 2 units up, scaled: z translation 3 + 2*2.
	if row[12+11] != 7 {
		t.Errorf("spine z = %v, want 7", row[12+11])
	}
	for _, v := range o.AnimTransformData[:16*4] {
		if v != 0 {
			t.Fatal("row 0 should be untouched")
		}
	}
}

// One instance more than the texture has rows fails on publish.
func TestProcessManagerData_TooManySkeletons(t *testing.T) {
	const height = 4
	o := newTestSkeleton(t, Options{TextureWidth: 16, TextureHeight: height})
	scope := o.BeginFrame()

	instances := make([]*Instance, height+1)
	for i := range instances {
		instances[i] = o.CreateInstance()
		mustAdd(t, scope, instances[i])
		instances[i].UpdateOffset(nil, nil)
		instances[i].UpdateLastPose()
	}
	for _, inst := range instances[:height] {
		if err := inst.ProcessManagerData(); err != nil {
			t.Fatalf("draw id %d: %v", inst.DrawID, err)
		}
	}
	if err := instances[height].ProcessManagerData(); !errors.Is(err, ErrTooManySkeletons) {
		t.Errorf("error = %v, want ErrTooManySkeletons", err)
	}
	if err := scope.Publish(); !errors.Is(err, ErrTooManySkeletons) {
		t.Errorf("Publish error = %v, want ErrTooManySkeletons", err)
	}
}

func TestFrameScope_EndFrame(t *testing.T) {
	dev := gputest.New()
	o := newTestSkeleton(t, Options{TextureWidth: 16, TextureHeight: 4})
	if err := o.InitTexture(dev); err != nil {
		t.Fatal(err)
	}

	scope := o.BeginFrame()
	inst := o.CreateInstance()
	mustAdd(t, scope, inst)
	inst.UpdateOffset(nil, nil)
	if err := scope.Publish(); err != nil {
		t.Fatal(err)
	}
	if err := o.EndFrame(scope); err != nil {
		t.Fatal(err)
	}

	tex := o.Texture().(*gputest.Texture)
	if tex.Uploads != 1 || len(tex.Floats) != 16*4*4 {
		t.Errorf("uploads = %d, floats = %d", tex.Uploads, len(tex.Floats))
	}
	if inst.CanDraw() || inst.DrawID != -1 {
		t.Error("closing the scope must invalidate the row")
	}

	// A closed scope can't publish, and closing twice uploads nothing.
	o.AnimTransformData[0] = 42
	if err := inst.ProcessManagerData(); err != nil || o.AnimTransformData[0] != 42 {
		t.Errorf("publish after EndFrame: %v", err)
	}
	if err := o.EndFrame(scope); err != nil || tex.Uploads != 1 {
		t.Errorf("second EndFrame: %v, uploads %d", err, tex.Uploads)
	}

	next := o.BeginFrame()
	mustAdd(t, next, inst)
	if inst.DrawID != 0 {
		t.Errorf("rows restart each frame, got %d", inst.DrawID)
	}
}

func TestNewOrderedSkeleton_TextureTooNarrow(t *testing.T) {
	a, err := NewAsset("inf", testRecords(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewOrderedSkeleton("inf", a, nil, Options{TextureWidth: 8}); !errors.Is(err, ErrTextureTooNarrow) {
		t.Errorf("error = %v", err)
	}
}

func TestModifiers(t *testing.T) {
	def, err := formats.ParseSkeletonDefine([]byte(`
BoneModifiers:
  tall:
    spine:
      FirstPoseTranslation: [0, 0, 0]
      LastPoseTranslation: [0, 0, 4]
`))
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAsset("inf", testRecords(), 0)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOrderedSkeleton("inf", a, def, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.BoneModifiedBy[1]) != 1 {
		t.Fatalf("spine modified by %d modifiers", len(o.BoneModifiedBy[1]))
	}

	inst := o.CreateInstance()
	if err := inst.ApplyModifier("tall", 0.5); err != nil {
		t.Fatal(err)
	}
	inst.UpdateOffset(nil, nil)
	if got := inst.BonePose(1).Translation(); !got.ApproxEqual(math.Vec3{Z: 4}, eps) {
		t.Errorf("half-tall spine = %+v, want z 4", got)
	}
	// Re-applying replaces the factor instead of stacking it.
	if err := inst.ApplyModifier("tall", 1); err != nil {
		t.Fatal(err)
	}
	inst.UpdateOffset(nil, nil)
	if got := inst.BonePose(1).Translation(); !got.ApproxEqual(math.Vec3{Z: 6}, eps) {
		t.Errorf("tall spine = %+v, want z 6", got)
	}

	if err := inst.ApplyModifier("short", 1); !errors.Is(err, ErrUnknownModifier) {
		t.Errorf("unknown modifier error = %v", err)
	}

	bad, _ := formats.ParseSkeletonDefine([]byte("BoneModifiers:\n  x:\n    wing:\n      FirstPoseAsRestPose: true\n"))
	if _, err := NewOrderedSkeleton("inf", a, bad, Options{}); !errors.Is(err, ErrUnknownBone) {
		t.Errorf("unknown bone error = %v", err)
	}

	mod := o.Modifiers["tall"].Bones[0]
	clip := NewModifierAnim(a, mod, "tall")
	if clip.Len() != 2 {
		t.Fatalf("modifier clip len = %d", clip.Len())
	}
	last, _ := clip.Frames[1].Transforms[1].Position()
	if last.Z != 4 {
		t.Errorf("modifier clip last spine = %+v", last)
	}
}

func TestPreBake(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	clip := &SkeletalAnim{Name: "bob"}
	for i := 0; i < 2; i++ {
		f := NewFrame(o.Asset.AnimBoneCount())
		f.Set(0, translation(0, 0, float32(i)))
		clip.Frames = append(clip.Frames, f)
	}
	if _, err := o.Asset.AddAnimation("e1", "idle", "bob", clip); err != nil {
		t.Fatal(err)
	}
	o.PreBake()

	baked := o.PreBaked["bob"]
	if baked == nil || len(baked.Frames) != 2 {
		t.Fatalf("baked = %+v", baked)
	}
	if got := baked.Frames[1].Poses[2].Translation(); !got.ApproxEqual(math.Vec3{Y: 1, Z: 3}, eps) {
		t.Errorf("baked head = %+v", got)
	}
}

func TestAdjustBonePublish(t *testing.T) {
	hat := bone("hat", 2, "head", 1, true, false)
	hat.Adjust = true
	hat.RestPose.Translation = [3]float32{0, 0, 1}
	records := []formats.BoneRecord{
		bone("root", 0, formats.NoParent, -1, true, true),
		bone("head", 1, "root", 0, true, true),
		hat,
	}
	a, err := NewAsset("adj", records, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, dynamic := range []bool{false, true} {
		o, err := NewOrderedSkeleton("adj", a, nil, Options{TextureWidth: 16, TextureHeight: 1, UseDynamicAdjBonePose: dynamic})
		if err != nil {
			t.Fatal(err)
		}
		inst := o.CreateInstance()
		frame := NewFrame(a.AnimBoneCount())
		frame.Set(1, translation(2, 0, 0))
		inst.UpdateOffset(frame, nil)
		inst.UpdateLastPose()
		// Both paths skin the hat at head * hatRest.
		if got := inst.LastPose(2).Translation(); !got.ApproxEqual(math.Vec3{X: 2, Z: 1}, eps) {
			t.Errorf("dynamic=%v hat = %+v", dynamic, got)
		}
	}
}

func TestFrameSetNone(t *testing.T) {
	f := NewFrame(2)
	f.Set(1, translation(1, 2, 3))
	if _, ok := f.Override(1); !ok {
		t.Fatal("override not set")
	}
	if !f.SetNone(1) {
		t.Fatal("SetNone(1) = false")
	}
	if _, ok := f.Override(1); ok {
		t.Error("override kept after SetNone")
	}
	if f.SetNone(2) || f.SetNone(-1) {
		t.Error("SetNone accepted an out of range id")
	}
}

func TestChangeBoneBindTransform(t *testing.T) {
	o := newTestSkeleton(t, Options{})
	head := o.Asset.BoneIDByName("head")
	skin := o.Asset.Bones[head].SkinID

	o.ChangeBoneBindTransform(head, math.Translate(4, 5, 6))
	if got := o.BindTransformData[skin*16+12 : skin*16+15]; got[0] != 4 || got[1] != 5 || got[2] != 6 {
		t.Errorf("head bind translation = %v", got)
	}

	before := append([]float32(nil), o.BindTransformData...)
	o.ChangeBoneBindTransform(o.Asset.BoneIDByName("tail"), math.Translate(9, 9, 9))
	for i := range before {
		if before[i] != o.BindTransformData[i] {
			t.Fatalf("non-skin bone changed bind data at %d", i)
		}
	}
}

func TestFrameScope_ForeignInstance(t *testing.T) {
	a := newTestSkeleton(t, Options{TextureWidth: 16, TextureHeight: 4})
	b := newTestSkeleton(t, Options{TextureWidth: 16, TextureHeight: 4})
	scope := a.BeginFrame()

	stray := b.CreateInstance()
	if err := scope.AddInstance(stray); !errors.Is(err, ErrForeignInstance) {
		t.Fatalf("error = %v, want ErrForeignInstance", err)
	}
	if stray.DrawID != -1 || scope.Count() != 0 {
		t.Errorf("rejected instance got row %d, scope count %d", stray.DrawID, scope.Count())
	}

	own := a.CreateInstance()
	mustAdd(t, scope, own)
	if own.DrawID != 0 {
		t.Errorf("first own instance row = %d, want 0", own.DrawID)
	}
}
