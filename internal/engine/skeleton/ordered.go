package skeleton

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/engine/gpu"
	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Default pose texture size in texels.
const (
	DefaultTextureWidth  = 512
	DefaultTextureHeight = 512
)

// ErrTextureTooNarrow is returned when a pose texture row can't hold every
// skin bone of the asset.
var ErrTextureTooNarrow = errors.New("pose texture too narrow for skeleton")

// Options sizes the pose texture of an OrderedSkeleton.
type Options struct {
	TextureWidth          int // texels per row
	TextureHeight         int // rows, one per drawn instance
	UseDynamicAdjBonePose bool
}

// OrderedSkeleton is the per-family owner of the pose texture. Instances get
// a texture row for each frame they are drawn in.
type OrderedSkeleton struct {
	Name  string
	Asset *Asset

	Modifiers      map[string]*RestPoseModifier
	BoneModifiedBy map[int][]*RestPoseModifier

	UseDynamicAdjBonePose bool
	TextureWidth          int
	TextureHeight         int

	// AnimTransformData is the CPU side of the pose texture, RGBA32F,
	// TextureWidth x TextureHeight texels.
	AnimTransformData []float32
	// BindTransformData holds 16 floats per skin bone.
	BindTransformData []float32

	PreBaked map[string]*PreBakedAnim

	texture gpu.Texture
	scope   *FrameScope
}

// NewOrderedSkeleton builds the skeleton family. def may be nil.
func NewOrderedSkeleton(name string, asset *Asset, def *formats.SkeletonDefine, opts Options) (*OrderedSkeleton, error) {
	if opts.TextureWidth <= 0 {
		opts.TextureWidth = DefaultTextureWidth
	}
	if opts.TextureHeight <= 0 {
		opts.TextureHeight = DefaultTextureHeight
	}
	if need := asset.SkinBoneCount() * TexelsPerSkinBone; need > opts.TextureWidth {
		return nil, errors.Wrapf(ErrTextureTooNarrow, "skeleton %s needs %d texels, row has %d", asset.Name, need, opts.TextureWidth)
	}

	o := &OrderedSkeleton{
		Name:                  name,
		Asset:                 asset,
		Modifiers:             make(map[string]*RestPoseModifier),
		BoneModifiedBy:        make(map[int][]*RestPoseModifier),
		UseDynamicAdjBonePose: opts.UseDynamicAdjBonePose,
		TextureWidth:          opts.TextureWidth,
		TextureHeight:         opts.TextureHeight,
		AnimTransformData:     make([]float32, opts.TextureWidth*opts.TextureHeight*floatsPerTexel),
		BindTransformData:     asset.BindTransformData(),
		PreBaked:              make(map[string]*PreBakedAnim),
	}

	if def != nil {
		if def.UseDynamicAdjBonePose {
			o.UseDynamicAdjBonePose = true
		}
		for _, md := range def.Modifiers {
			mod, err := newRestPoseModifier(asset, md)
			if err != nil {
				return nil, err
			}
			o.Modifiers[mod.Name] = mod
			for _, bm := range mod.Bones {
				o.BoneModifiedBy[bm.BoneID] = append(o.BoneModifiedBy[bm.BoneID], mod)
			}
		}
	}
	return o, nil
}

// InitTexture creates the pose texture on dev.
func (o *OrderedSkeleton) InitTexture(dev gpu.Device) error {
	if o.texture != nil {
		return nil
	}
	tex, err := dev.CreateFloatTexture(o.TextureWidth, o.TextureHeight)
	if err != nil {
		return errors.Wrapf(err, "skeleton %s: creating pose texture", o.Name)
	}
	o.texture = tex
	return nil
}

// Texture returns the pose texture, nil before InitTexture.
func (o *OrderedSkeleton) Texture() gpu.Texture {
	return o.texture
}

// Destroy releases the pose texture.
func (o *OrderedSkeleton) Destroy() {
	if o.texture != nil {
		o.texture.Destroy()
		o.texture = nil
	}
}

// ChangeBoneBindTransform replaces the bind matrix of a skin bone.
func (o *OrderedSkeleton) ChangeBoneBindTransform(id int, bind math.Mat4) {
	skin := o.Asset.Bones[id].SkinID
	if skin < 0 {
		return
	}
	copy(o.BindTransformData[skin*16:], bind[:])
}

// CreateInstance returns a new instance at rest with no draw row.
func (o *OrderedSkeleton) CreateInstance() *Instance {
	return newInstance(o)
}

// FrameScope hands out pose texture rows for one render frame. Rows are
// valid until EndFrame.
type FrameScope struct {
	skeleton  *OrderedSkeleton
	instances []*Instance
	closed    bool
}

// BeginFrame opens a new frame scope. A scope left open from the previous
// frame is closed without uploading.
func (o *OrderedSkeleton) BeginFrame() *FrameScope {
	if o.scope != nil && !o.scope.closed {
		o.scope.close()
	}
	o.scope = &FrameScope{skeleton: o}
	return o.scope
}

// AddInstance gives inst the next row. Rows past the texture height are
// handed out too; publishing from them fails. Instances of another skeleton
// are rejected with ErrForeignInstance.
func (f *FrameScope) AddInstance(inst *Instance) error {
	if inst.Skeleton != f.skeleton {
		return errors.Wrapf(ErrForeignInstance, "scope of %s", f.skeleton.Name)
	}
	inst.scope = f
	inst.DrawID = len(f.instances)
	f.instances = append(f.instances, inst)
	return nil
}

// Count returns the number of rows handed out.
func (f *FrameScope) Count() int {
	return len(f.instances)
}

// Publish snapshots and writes the pose of every instance in the scope.
func (f *FrameScope) Publish() error {
	for _, inst := range f.instances {
		inst.UpdateLastPose()
		if err := inst.ProcessManagerData(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FrameScope) close() {
	for _, inst := range f.instances {
		if inst.scope == f {
			inst.scope = nil
			inst.DrawID = -1
		}
	}
	f.closed = true
}

// EndFrame uploads the pose texture once and invalidates every row of the
// scope.
func (o *OrderedSkeleton) EndFrame(f *FrameScope) error {
	if f == nil || f.closed {
		return nil
	}
	defer func() {
		f.close()
		if o.scope == f {
			o.scope = nil
		}
	}()
	if o.texture == nil || len(f.instances) == 0 {
		return nil
	}
	if err := o.texture.SetFloatData(o.AnimTransformData, o.TextureWidth, o.TextureHeight); err != nil {
		return errors.Wrapf(err, "skeleton %s: uploading poses", o.Name)
	}
	return nil
}

// PreBake evaluates every loaded clip on an unplaced instance and stores the
// composed pose of each bone per frame.
func (o *OrderedSkeleton) PreBake() {
	inst := o.CreateInstance()
	for _, key := range o.Asset.ClipNames() {
		clip, _ := o.Asset.Clip(key)
		baked := &PreBakedAnim{Frames: make([]BakedFrame, clip.Len())}
		for i, frame := range clip.Frames {
			inst.UpdateOffset(frame, nil)
			poses := make([]math.Mat4, len(inst.Bones))
			for b := range inst.Bones {
				poses[b] = inst.Bones[b].CurrentPose
			}
			baked.Frames[i] = BakedFrame{Poses: poses}
		}
		o.PreBaked[key] = baked
	}
	logger.Debug("pre-baked skeleton clips",
		zap.String("skeleton", o.Name),
		zap.Int("clips", len(o.PreBaked)))
}
