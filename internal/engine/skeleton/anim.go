package skeleton

import (
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-rts/internal/logger"
	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// AnimMask selects, per anim id, which bones a clip or blend output drives.
type AnimMask []bool

// NewAnimMask returns a mask of n entries all set to value.
func NewAnimMask(n int, value bool) AnimMask {
	m := make(AnimMask, n)
	if value {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

// Get reports the mask entry, false when i is out of range.
func (m AnimMask) Get(i int) bool {
	return i >= 0 && i < len(m) && m[i]
}

// Frame holds one local transform per anim id. Entries that were never set
// are identity and don't override the bone's rest pose.
type Frame struct {
	Transforms []math.Transform
	Has        []bool
}

// NewFrame returns a frame of n identity entries.
func NewFrame(n int) *Frame {
	f := &Frame{
		Transforms: make([]math.Transform, n),
		Has:        make([]bool, n),
	}
	id := math.IdentityTransform()
	for i := range f.Transforms {
		f.Transforms[i] = id
	}
	return f
}

// Len returns the number of anim ids the frame covers.
func (f *Frame) Len() int {
	return len(f.Transforms)
}

// Set stores t for anim id i.
func (f *Frame) Set(i int, t math.Transform) {
	f.Transforms[i] = t
	f.Has[i] = true
}

// SetNone clears anim id i back to identity. It returns false when i is out
// of range.
func (f *Frame) SetNone(i int) bool {
	if i < 0 || i >= len(f.Transforms) {
		return false
	}
	f.Transforms[i] = math.IdentityTransform()
	f.Has[i] = false
	return true
}

// Override returns the transform for anim id i if the frame carries one.
func (f *Frame) Override(i int) (math.Transform, bool) {
	if f == nil || i < 0 || i >= len(f.Transforms) || !f.Has[i] {
		return math.Transform{}, false
	}
	return f.Transforms[i], true
}

// SkeletalAnim is a clip: one Frame per tick.
type SkeletalAnim struct {
	Name     string
	Sequence string
	Frames   []*Frame
}

// Len returns the frame count.
func (s *SkeletalAnim) Len() int {
	return len(s.Frames)
}

// Frame returns frame i clamped to the clip, or nil for an empty clip.
func (s *SkeletalAnim) Frame(i int) *Frame {
	if len(s.Frames) == 0 {
		return nil
	}
	if i < 0 {
		i = 0
	}
	if i >= len(s.Frames) {
		i = len(s.Frames) - 1
	}
	return s.Frames[i]
}

// NewSkeletalAnim maps a parsed clip onto the asset's anim ids by bone name.
// Clip bones the skeleton doesn't animate are logged and dropped.
func NewSkeletalAnim(a *Asset, raw *formats.Anim, sequence string) *SkeletalAnim {
	clip := &SkeletalAnim{Name: raw.Name, Sequence: sequence, Frames: make([]*Frame, len(raw.Frames))}

	animIDs := make(map[int32]int, len(raw.Bones))
	for _, b := range raw.Bones {
		id := a.AnimBoneIDByName(b.Name)
		if id == -1 {
			logger.Warn("animation bone not in skeleton",
				zap.String("clip", raw.Name),
				zap.String("bone", b.Name),
				zap.String("skeleton", a.Name))
			continue
		}
		animIDs[b.ID] = id
	}

	for i, rf := range raw.Frames {
		f := NewFrame(a.AnimBoneCount())
		for _, k := range rf.Keys {
			id, ok := animIDs[k.ID]
			if !ok {
				continue
			}
			f.Set(id, math.NewTransformSRT(
				math.Vec3{X: k.Scale[0], Y: k.Scale[1], Z: k.Scale[2]},
				math.Quat{X: k.Rotation[0], Y: k.Rotation[1], Z: k.Rotation[2], W: k.Rotation[3]},
				math.Vec3{X: k.Translation[0], Y: k.Translation[1], Z: k.Translation[2]},
			))
		}
		clip.Frames[i] = f
	}
	return clip
}

// NewModifierAnim builds a two-frame clip that holds every anim bone at its
// rest pose except the modified bone, which moves from its first to its
// last pose.
func NewModifierAnim(a *Asset, mb *BoneModifier, name string) *SkeletalAnim {
	frames := [2]*Frame{NewFrame(a.AnimBoneCount()), NewFrame(a.AnimBoneCount())}
	for animID, boneID := range a.AnimBonesIndices {
		for _, f := range frames {
			f.Set(animID, a.Bones[boneID].RestPose)
		}
	}
	if mb.AnimID != -1 {
		frames[0].Set(mb.AnimID, mb.First)
		frames[1].Set(mb.AnimID, mb.Last)
	}
	return &SkeletalAnim{Name: name, Frames: frames[:]}
}

// BakedFrame holds the composed pose of every bone, indexed by bone id.
type BakedFrame struct {
	Poses []math.Mat4
}

// PreBakedAnim is a clip evaluated ahead of time on an unplaced instance.
type PreBakedAnim struct {
	Frames []BakedFrame
}
