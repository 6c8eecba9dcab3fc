package skeleton

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/pkg/math"
)

// Instance errors.
var (
	ErrNoBlendTree      = errors.New("skeleton instance has no blend tree")
	ErrTooManySkeletons = errors.New("too many skeletons to draw")
	ErrUnknownModifier  = errors.New("unknown rest pose modifier")
	ErrBoneOutOfRange   = errors.New("bone id out of range")
	ErrForeignInstance  = errors.New("instance belongs to another skeleton")
)

// Pose texture layout.
const (
	TexelsPerSkinBone = 3
	floatsPerTexel    = 4
	floatsPerSkinBone = TexelsPerSkinBone * floatsPerTexel
)

// PoseSource supplies the frame and mask an instance is posed with, usually a
// blend tree evaluated once per call.
type PoseSource interface {
	Pose() (*Frame, AnimMask)
}

// BoneInstance is the mutable per-actor state of one bone.
type BoneInstance struct {
	ID       int
	AnimID   int
	ParentID int

	RestPose        math.Mat4
	BaseRestPoseInv math.Mat4
	CurrentPose     math.Mat4

	// ModifiedRest is set once the rest pose differs from the asset's.
	ModifiedRest bool
	// OverridePose keeps CurrentPose untouched by UpdateOffset.
	OverridePose bool

	modifiers []appliedModifier
}

// Instance is one actor's posed skeleton.
type Instance struct {
	Asset    *Asset
	Skeleton *OrderedSkeleton
	Bones    []BoneInstance
	Offset   math.Mat4
	// DrawID is the pose texture row for the current frame, -1 outside a
	// frame scope.
	DrawID int

	scope    *FrameScope
	posed    bool
	lastPose []math.Mat4
	hasLast  bool
	tree     PoseSource
}

func newInstance(o *OrderedSkeleton) *Instance {
	a := o.Asset
	inst := &Instance{
		Asset:    a,
		Skeleton: o,
		Bones:    make([]BoneInstance, len(a.Bones)),
		Offset:   math.Identity(),
		DrawID:   -1,
		lastPose: make([]math.Mat4, a.SkinBoneCount()),
	}
	for i, b := range a.Bones {
		rest := b.RestPose.MustMatrix()
		inst.Bones[i] = BoneInstance{
			ID:              b.ID,
			AnimID:          b.AnimID,
			ParentID:        b.ParentID,
			RestPose:        rest,
			BaseRestPoseInv: b.RestPoseInv.MustMatrix(),
			CurrentPose:     rest,
		}
	}
	return inst
}

// SetOffset places the instance: offset = T * (S * R).
func (s *Instance) SetOffset(pos math.Vec3, rot math.Quat, scale float32) {
	s.Offset = math.TranslateVec(pos).Mul(math.Scale(scale, scale, scale).Mul(rot.ToMat4()))
}

// AttachTree sets the source used by UpdateOffsetWithTree.
func (s *Instance) AttachTree(src PoseSource) {
	s.tree = src
}

// UpdateOffset composes every bone's CurrentPose parent first. A bone takes
// an animation override when it has an anim id, the frame carries a
// transform for it, and the mask lets it through; the override replaces the
// rest pose. A nil frame poses the skeleton at rest; a nil mask passes all
// bones.
func (s *Instance) UpdateOffset(frame *Frame, mask AnimMask) {
	if mask == nil {
		mask = s.Asset.AllValidMask
	}
	for _, id := range s.Asset.Order {
		b := &s.Bones[id]
		if b.OverridePose {
			continue
		}
		parent := s.Offset
		if b.ParentID >= 0 {
			parent = s.Bones[b.ParentID].CurrentPose
		}

		var anim math.Transform
		ok := false
		if b.AnimID != -1 && mask.Get(b.AnimID) {
			anim, ok = frame.Override(b.AnimID)
		}
		switch {
		case !ok:
			b.CurrentPose = parent.Mul(b.RestPose)
		case b.ModifiedRest:
			b.CurrentPose = parent.Mul(anim.MustMatrix().Mul(b.BaseRestPoseInv)).Mul(b.RestPose)
		default:
			b.CurrentPose = parent.Mul(anim.MustMatrix())
		}
	}
	s.posed = true
}

// UpdateOffsetWithTree poses the instance from its attached blend tree.
func (s *Instance) UpdateOffsetWithTree() error {
	if s.tree == nil {
		return errors.WithStack(ErrNoBlendTree)
	}
	frame, mask := s.tree.Pose()
	s.UpdateOffset(frame, mask)
	return nil
}

// BonePose returns a bone's composed pose.
func (s *Instance) BonePose(id int) math.Mat4 {
	return s.Bones[id].CurrentPose
}

// SetRestPose replaces a bone's rest pose.
func (s *Instance) SetRestPose(id int, m math.Mat4) error {
	if id < 0 || id >= len(s.Bones) {
		return errors.Wrapf(ErrBoneOutOfRange, "bone %d", id)
	}
	s.Bones[id].RestPose = m
	s.Bones[id].ModifiedRest = true
	return nil
}

// ApplyModifier blends the named rest pose modifier by t. Modifiers stack:
// each bone's rest pose becomes the asset rest pose times the interpolated
// matrix of every modifier applied to it so far, in first-applied order.
func (s *Instance) ApplyModifier(name string, t float32) error {
	mod, ok := s.Skeleton.Modifiers[name]
	if !ok {
		return errors.Wrapf(ErrUnknownModifier, "skeleton %s: %s", s.Skeleton.Name, name)
	}
	for _, bm := range mod.Bones {
		b := &s.Bones[bm.BoneID]
		found := false
		for i := range b.modifiers {
			if b.modifiers[i].mod == bm {
				b.modifiers[i].t = t
				found = true
			}
		}
		if !found {
			b.modifiers = append(b.modifiers, appliedModifier{mod: bm, t: t})
		}

		m := s.Asset.Bones[bm.BoneID].RestPose.MustMatrix()
		for _, am := range b.modifiers {
			lerp, err := math.LerpTransformMatrix(am.mod.First, am.mod.Last, am.t)
			if err != nil {
				return errors.Wrapf(err, "modifier %s bone %s", name, bm.Name)
			}
			m = m.Mul(lerp)
		}
		if err := s.SetRestPose(bm.BoneID, m); err != nil {
			return err
		}
	}
	return nil
}

// SetBoneOverride pins a bone's pose until ClearOverrides.
func (s *Instance) SetBoneOverride(id int, m math.Mat4) error {
	if id < 0 || id >= len(s.Bones) {
		return errors.Wrapf(ErrBoneOutOfRange, "bone %d", id)
	}
	s.Bones[id].CurrentPose = m
	s.Bones[id].OverridePose = true
	return nil
}

// ClearOverrides releases every pinned bone.
func (s *Instance) ClearOverrides() {
	for i := range s.Bones {
		s.Bones[i].OverridePose = false
	}
}

// skinPose is the matrix published for skin slot i. Without dynamic adjust
// poses an adjust bone is skinned with its nearest non-adjust ancestor
// followed by the chain of adjust rest poses down to it.
func (s *Instance) skinPose(i int) math.Mat4 {
	id := s.Asset.SkinBonesIndices[i]
	if s.Skeleton.UseDynamicAdjBonePose || !s.Asset.Bones[id].IsAdjBone {
		return s.Bones[id].CurrentPose
	}
	chain := math.Identity()
	for b := id; s.Asset.Bones[b].IsAdjBone; b = s.Asset.Bones[b].ParentID {
		chain = s.Bones[b].RestPose.Mul(chain)
	}
	return s.Bones[s.Asset.SkinBonesMatchIndices[i]].CurrentPose.Mul(chain)
}

// UpdateLastPose snapshots the skin poses for publishing. It has no effect
// before the first UpdateOffset.
func (s *Instance) UpdateLastPose() {
	if !s.posed {
		return
	}
	for i := range s.lastPose {
		s.lastPose[i] = s.skinPose(i)
	}
	s.hasLast = true
}

// LastPose returns the snapshot of skin slot i.
func (s *Instance) LastPose(i int) math.Mat4 {
	return s.lastPose[i]
}

// CanDraw reports whether the instance holds a pose texture row this frame.
func (s *Instance) CanDraw() bool {
	return s.scope != nil && !s.scope.closed && s.DrawID >= 0
}

// ProcessManagerData writes the last pose snapshot into the skeleton's pose
// data at row DrawID: three RGBA32F texels per skin bone holding the first
// three rows of its matrix. Instances without a row or a snapshot publish
// nothing.
func (s *Instance) ProcessManagerData() error {
	if !s.CanDraw() || !s.hasLast {
		return nil
	}
	o := s.Skeleton
	if s.DrawID >= o.TextureHeight {
		return errors.Wrapf(ErrTooManySkeletons, "skeleton %s: draw id %d, limit %d", o.Name, s.DrawID, o.TextureHeight)
	}

	row := o.AnimTransformData[s.DrawID*o.TextureWidth*floatsPerTexel:]
	for i, m := range s.lastPose {
		dst := row[i*floatsPerSkinBone : (i+1)*floatsPerSkinBone]
		for r := 0; r < 3; r++ {
			dst[r*4+0] = m[0*4+r]
			dst[r*4+1] = m[1*4+r]
			dst[r*4+2] = m[2*4+r]
			dst[r*4+3] = m[3*4+r]
		}
	}
	return nil
}
