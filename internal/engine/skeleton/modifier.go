package skeleton

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// BoneModifier morphs one bone's rest pose between two poses.
type BoneModifier struct {
	Name   string
	BoneID int
	AnimID int

	RestPose math.Mat4
	First    math.Transform
	Last     math.Transform
	// OnlyRestPose is set when first and last poses are the same.
	OnlyRestPose bool
}

// RestPoseModifier is a named set of bone modifiers, e.g. a taller variant
// of a unit.
type RestPoseModifier struct {
	Name  string
	Bones []*BoneModifier // sorted by bone id
}

func newRestPoseModifier(a *Asset, def formats.SkeletonModifier) (*RestPoseModifier, error) {
	m := &RestPoseModifier{Name: def.Name}
	for name, rec := range def.Bones {
		id := a.BoneIDByName(name)
		if id == -1 {
			return nil, errors.Wrapf(ErrUnknownBone, "skeleton %s has no bone %q (modifier %s)", a.Name, name, def.Name)
		}
		first := poseTransform(rec.FirstPose)
		rest := poseTransform(rec.RestPoseModify)
		if rec.FirstPoseAsRestPose {
			rest = first
		}
		m.Bones = append(m.Bones, &BoneModifier{
			Name:         name,
			BoneID:       id,
			AnimID:       a.Bones[id].AnimID,
			RestPose:     rest.MustMatrix(),
			First:        first,
			Last:         poseTransform(rec.LastPose),
			OnlyRestPose: rec.FirstPose == rec.LastPose,
		})
	}
	sort.Slice(m.Bones, func(i, j int) bool { return m.Bones[i].BoneID < m.Bones[j].BoneID })
	return m, nil
}

// appliedModifier records the blend factor last used for a bone modifier.
type appliedModifier struct {
	mod *BoneModifier
	t   float32
}
