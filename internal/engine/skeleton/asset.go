// Package skeleton holds the bone hierarchy shared by a unit family, its
// animation clips, and the per-actor instances whose poses are published to
// the GPU pose texture.
package skeleton

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/pkg/formats"
	"github.com/Faultbox/midgard-rts/pkg/math"
)

// DefaultMaxSkinBones is the bind pose capacity of one skeleton.
const DefaultMaxSkinBones = 128

// Skeleton errors.
var (
	ErrNoRootBone        = errors.New("skeleton has no root bone")
	ErrMultipleRootBones = errors.New("skeleton has more than one root bone")
	ErrDuplicateBone     = errors.New("duplicate bone")
	ErrInvalidParent     = errors.New("invalid bone parent")
	ErrBoneCycle         = errors.New("bone hierarchy has a cycle")
	ErrAdjustRoot        = errors.New("adjust bone can't be the root bone")
	ErrTooManySkinBones  = errors.New("too many skin bones")
	ErrUnknownBone       = errors.New("unknown bone")
)

// BoneAsset is the static description of one bone.
type BoneAsset struct {
	Name       string
	ID         int
	SkinID     int // -1 when the bone deforms no vertices
	AnimID     int // -1 when no clip animates the bone
	ParentName string
	ParentID   int // -1 for the root

	RestPose    math.Transform
	RestPoseInv math.Transform
	BindPose    math.Transform

	IsAdjBone bool
	// AdjParentID is the nearest non-adjust ancestor of an adjust bone; it
	// provides the pose an adjust bone is skinned with.
	AdjParentID int
}

// Asset is an immutable bone hierarchy with its clip and mask registries.
type Asset struct {
	Name string
	// Dir is prepended to relative clip and mask file names.
	Dir string

	Bones []BoneAsset
	// Order lists bone ids with every parent before its children.
	Order []int
	Root  int

	SkinBonesIndices      []int // skin id -> bone id
	SkinBonesMatchIndices []int // skin id -> bone id providing the pose
	AnimBonesIndices      []int // anim id -> bone id
	AllValidMask          AnimMask
	MaxSkinBones          int

	byName map[string]int

	clips    map[string]*SkeletalAnim
	clipRefs map[string]map[string]*SkeletalAnim
	masks    map[string]AnimMask
	maskRefs map[string]map[string]AnimMask
}

// Load reads a .skl file, trying path and then path.skl.
func Load(path string, maxSkinBones int) (*Asset, error) {
	records, err := formats.ParseSkeletonFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading skeleton %s", path)
	}
	a, err := NewAsset(path, records, maxSkinBones)
	if err != nil {
		return nil, err
	}
	a.Dir = filepath.Dir(path)
	return a, nil
}

// NewAsset builds an asset from parsed bone records. Records may come in any
// order; bones are renumbered densely by declared id, and skin and anim ids
// are reassigned sequentially in bone order.
func NewAsset(name string, records []formats.BoneRecord, maxSkinBones int) (*Asset, error) {
	if maxSkinBones <= 0 {
		maxSkinBones = DefaultMaxSkinBones
	}

	sorted := make([]formats.BoneRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	a := &Asset{
		Name:         name,
		Bones:        make([]BoneAsset, len(sorted)),
		Root:         -1,
		MaxSkinBones: maxSkinBones,
		byName:       make(map[string]int, len(sorted)),
		clips:        make(map[string]*SkeletalAnim),
		clipRefs:     make(map[string]map[string]*SkeletalAnim),
		masks:        make(map[string]AnimMask),
		maskRefs:     make(map[string]map[string]AnimMask),
	}

	declared := make(map[int]int, len(sorted))
	for i, rec := range sorted {
		if _, ok := a.byName[rec.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateBone, "skeleton %s: bone name %q", name, rec.Name)
		}
		if _, ok := declared[rec.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateBone, "skeleton %s: bone id %d", name, rec.ID)
		}
		a.byName[rec.Name] = i
		declared[rec.ID] = i

		if rec.IsRoot() {
			if a.Root != -1 {
				return nil, errors.Wrapf(ErrMultipleRootBones, "skeleton %s: %q and %q", name, sorted[a.Root].Name, rec.Name)
			}
			a.Root = i
		}
	}
	if a.Root == -1 {
		return nil, errors.Wrapf(ErrNoRootBone, "skeleton %s", name)
	}

	for i, rec := range sorted {
		b := BoneAsset{
			Name:        rec.Name,
			ID:          i,
			SkinID:      -1,
			AnimID:      -1,
			ParentName:  formats.NoParent,
			ParentID:    -1,
			RestPose:    poseTransform(rec.RestPose),
			RestPoseInv: poseTransform(rec.RestPoseInv),
			BindPose:    poseTransform(rec.BindPose),
			IsAdjBone:   rec.Adjust,
			AdjParentID: -1,
		}
		if rec.Skin {
			b.SkinID = 0
		}
		if rec.Anim {
			b.AnimID = 0
		}
		if rec.RestPoseInv == formats.IdentityPose() && rec.RestPose != formats.IdentityPose() {
			b.RestPoseInv, _ = b.RestPose.Inverse()
		}

		if i != a.Root {
			parent, err := a.resolveParent(rec, declared)
			if err != nil {
				return nil, err
			}
			if parent == i {
				return nil, errors.Wrapf(ErrInvalidParent, "skeleton %s: bone %q is its own parent", name, rec.Name)
			}
			b.ParentID = parent
			b.ParentName = sorted[parent].Name
		}
		a.Bones[i] = b
	}

	if err := a.buildOrder(); err != nil {
		return nil, err
	}
	if err := a.resolveAdjParents(); err != nil {
		return nil, err
	}
	if err := a.renumber(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Asset) resolveParent(rec formats.BoneRecord, declared map[int]int) (int, error) {
	if rec.ParentID != -1 {
		parent, ok := declared[rec.ParentID]
		if !ok {
			return -1, errors.Wrapf(ErrInvalidParent, "skeleton %s: bone %q has parent id %d", a.Name, rec.Name, rec.ParentID)
		}
		return parent, nil
	}
	if parent, ok := a.byName[rec.Parent]; ok && rec.Parent != formats.NoParent {
		return parent, nil
	}
	return -1, errors.Wrapf(ErrInvalidParent, "skeleton %s: bone %q has parent %q", a.Name, rec.Name, rec.Parent)
}

// buildOrder walks the hierarchy breadth first from the root. A bone the walk
// can't reach sits on a parent cycle.
func (a *Asset) buildOrder() error {
	children := make([][]int, len(a.Bones))
	for _, b := range a.Bones {
		if b.ParentID >= 0 {
			children[b.ParentID] = append(children[b.ParentID], b.ID)
		}
	}

	a.Order = make([]int, 0, len(a.Bones))
	a.Order = append(a.Order, a.Root)
	for i := 0; i < len(a.Order); i++ {
		a.Order = append(a.Order, children[a.Order[i]]...)
	}
	if len(a.Order) != len(a.Bones) {
		seen := make([]bool, len(a.Bones))
		for _, id := range a.Order {
			seen[id] = true
		}
		for id, ok := range seen {
			if !ok {
				return errors.Wrapf(ErrBoneCycle, "skeleton %s: bone %q", a.Name, a.Bones[id].Name)
			}
		}
	}
	return nil
}

func (a *Asset) resolveAdjParents() error {
	for i := range a.Bones {
		b := &a.Bones[i]
		if !b.IsAdjBone {
			continue
		}
		p := b.ParentID
		for p != -1 && a.Bones[p].IsAdjBone {
			p = a.Bones[p].ParentID
		}
		if p == -1 {
			return errors.Wrapf(ErrAdjustRoot, "skeleton %s: bone %q", a.Name, b.Name)
		}
		b.AdjParentID = p
	}
	return nil
}

func (a *Asset) renumber() error {
	anim, skin := 0, 0
	for i := range a.Bones {
		b := &a.Bones[i]
		if b.AnimID != -1 {
			b.AnimID = anim
			anim++
		}
		if b.SkinID != -1 {
			b.SkinID = skin
			skin++
		}
	}
	if skin > a.MaxSkinBones {
		return errors.Wrapf(ErrTooManySkinBones, "skeleton %s: %d skin bones, limit %d", a.Name, skin, a.MaxSkinBones)
	}

	a.SkinBonesIndices = make([]int, skin)
	a.SkinBonesMatchIndices = make([]int, skin)
	a.AnimBonesIndices = make([]int, anim)
	for _, b := range a.Bones {
		if b.SkinID != -1 {
			a.SkinBonesIndices[b.SkinID] = b.ID
			a.SkinBonesMatchIndices[b.SkinID] = b.ID
			if b.IsAdjBone {
				a.SkinBonesMatchIndices[b.SkinID] = b.AdjParentID
			}
		}
		if b.AnimID != -1 {
			a.AnimBonesIndices[b.AnimID] = b.ID
		}
	}
	a.AllValidMask = NewAnimMask(anim, true)
	return nil
}

// AnimBoneCount returns the number of animated bones, the length of every
// Frame of this skeleton.
func (a *Asset) AnimBoneCount() int {
	return len(a.AnimBonesIndices)
}

// SkinBoneCount returns the number of skinned bones.
func (a *Asset) SkinBoneCount() int {
	return len(a.SkinBonesIndices)
}

// BoneIDByName returns the bone id, or -1.
func (a *Asset) BoneIDByName(name string) int {
	if id, ok := a.byName[name]; ok {
		return id
	}
	return -1
}

// SkinBoneIDByName returns the skin id, or -1.
func (a *Asset) SkinBoneIDByName(name string) int {
	if id, ok := a.byName[name]; ok {
		return a.Bones[id].SkinID
	}
	return -1
}

// AnimBoneIDByName returns the anim id, or -1.
func (a *Asset) AnimBoneIDByName(name string) int {
	if id, ok := a.byName[name]; ok {
		return a.Bones[id].AnimID
	}
	return -1
}

// BindTransformData flattens the bind pose of every skin bone, 16 floats per
// bone in column-major order at offset SkinID*16. The slice always holds
// MaxSkinBones matrices.
func (a *Asset) BindTransformData() []float32 {
	data := make([]float32, a.MaxSkinBones*16)
	for _, id := range a.SkinBonesIndices {
		b := a.Bones[id]
		m := b.BindPose.MustMatrix()
		copy(data[b.SkinID*16:], m[:])
	}
	return data
}

func poseTransform(p formats.Pose) math.Transform {
	return math.NewTransformSRT(
		math.Vec3{X: p.Scale[0], Y: p.Scale[1], Z: p.Scale[2]},
		math.Quat{X: p.Rotation[0], Y: p.Rotation[1], Z: p.Rotation[2], W: p.Rotation[3]},
		math.Vec3{X: p.Translation[0], Y: p.Translation[1], Z: p.Translation[2]},
	)
}
