package formats

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NoParent is the parent name of the root bone.
const NoParent = "NO_Parent"

// Skeleton file errors.
var (
	ErrInvalidSkeleton = errors.New("invalid skeleton definition")
	ErrInvalidPose     = errors.New("invalid pose component")
)

// Pose is a scale/rotation/translation triple as stored in YAML.
type Pose struct {
	Scale       [3]float32
	Rotation    [4]float32 // x, y, z, w
	Translation [3]float32
}

// IdentityPose returns the pose used for absent YAML fields.
func IdentityPose() Pose {
	return Pose{Scale: [3]float32{1, 1, 1}, Rotation: [4]float32{0, 0, 0, 1}}
}

// poseFields is the flattened YAML form of a Pose under one key prefix.
type poseFields struct {
	Scale       []float32
	Rotation    []float32
	Translation []float32
}

func (p poseFields) pose(prefix string) (Pose, error) {
	out := IdentityPose()
	if err := copyComponent(out.Scale[:], p.Scale, prefix+"Scale"); err != nil {
		return Pose{}, err
	}
	if err := copyComponent(out.Rotation[:], p.Rotation, prefix+"Rotation"); err != nil {
		return Pose{}, err
	}
	if err := copyComponent(out.Translation[:], p.Translation, prefix+"Translation"); err != nil {
		return Pose{}, err
	}
	return out, nil
}

func copyComponent(dst, src []float32, key string) error {
	if src == nil {
		return nil
	}
	if len(src) != len(dst) {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrInvalidPose, key, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// BoneRecord is one bone entry of a .skl file.
type BoneRecord struct {
	Name     string
	ID       int
	Skin     bool
	Anim     bool
	Adjust   bool
	Parent   string
	ParentID int

	RestPose    Pose
	RestPoseInv Pose
	BindPose    Pose
}

// IsRoot reports whether the record declares no parent.
func (b BoneRecord) IsRoot() bool {
	return b.ParentID == -1 && b.Parent == NoParent
}

type boneYAML struct {
	ID       int    `yaml:"ID"`
	Skin     bool   `yaml:"Skin"`
	Anim     bool   `yaml:"Anim"`
	Adjust   bool   `yaml:"Adjust"`
	Parent   string `yaml:"Parent"`
	ParentID int    `yaml:"ParentID"`

	RestPoseScale          []float32 `yaml:"RestPoseScale"`
	RestPoseRotation       []float32 `yaml:"RestPoseRotation"`
	RestPoseTranslation    []float32 `yaml:"RestPoseTranslation"`
	RestPoseInvScale       []float32 `yaml:"RestPoseInvScale"`
	RestPoseInvRotation    []float32 `yaml:"RestPoseInvRotation"`
	RestPoseInvTranslation []float32 `yaml:"RestPoseInvTranslation"`
	BindPoseScale          []float32 `yaml:"BindPoseScale"`
	BindPoseRotation       []float32 `yaml:"BindPoseRotation"`
	BindPoseTranslation    []float32 `yaml:"BindPoseTranslation"`
}

func (y boneYAML) record(name string) (BoneRecord, error) {
	rec := BoneRecord{
		Name:     name,
		ID:       y.ID,
		Skin:     y.Skin,
		Anim:     y.Anim,
		Adjust:   y.Adjust,
		Parent:   y.Parent,
		ParentID: y.ParentID,
	}
	var err error
	if rec.RestPose, err = (poseFields{y.RestPoseScale, y.RestPoseRotation, y.RestPoseTranslation}).pose("RestPose"); err != nil {
		return BoneRecord{}, err
	}
	if rec.RestPoseInv, err = (poseFields{y.RestPoseInvScale, y.RestPoseInvRotation, y.RestPoseInvTranslation}).pose("RestPoseInv"); err != nil {
		return BoneRecord{}, err
	}
	if rec.BindPose, err = (poseFields{y.BindPoseScale, y.BindPoseRotation, y.BindPoseTranslation}).pose("BindPose"); err != nil {
		return BoneRecord{}, err
	}
	return rec, nil
}

// ParseSkeleton parses a .skl document: a mapping from bone name to bone
// record. Records are returned in document order.
func ParseSkeleton(data []byte) ([]BoneRecord, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSkeleton, err)
	}
	root := documentMapping(&doc)
	if root == nil {
		return nil, fmt.Errorf("%w: expected a mapping of bones", ErrInvalidSkeleton)
	}

	bones := make([]BoneRecord, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		raw := boneYAML{ID: -1, Parent: NoParent, ParentID: -1}
		if err := root.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: bone %q: %v", ErrInvalidSkeleton, name, err)
		}
		rec, err := raw.record(name)
		if err != nil {
			return nil, fmt.Errorf("bone %q: %w", name, err)
		}
		bones = append(bones, rec)
	}
	return bones, nil
}

// ResolveSkeletonPath tries path as given and then with the .skl extension.
func ResolveSkeletonPath(path string) (string, error) {
	return resolveWithExt(path, ".skl")
}

// ParseSkeletonFile resolves and parses a skeleton from disk.
func ParseSkeletonFile(path string) ([]BoneRecord, error) {
	resolved, err := ResolveSkeletonPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading skeleton file: %w", err)
	}
	return ParseSkeleton(data)
}

// BoneModifierRecord modifies the rest pose of one bone.
type BoneModifierRecord struct {
	FirstPoseAsRestPose bool
	RestPoseModify      Pose
	FirstPose           Pose
	LastPose            Pose
}

type boneModifierYAML struct {
	FirstPoseAsRestPose       bool      `yaml:"FirstPoseAsRestPose"`
	RestPoseModifyScale       []float32 `yaml:"RestPoseModifyScale"`
	RestPoseModifyRotation    []float32 `yaml:"RestPoseModifyRotation"`
	RestPoseModifyTranslation []float32 `yaml:"RestPoseModifyTranslation"`
	FirstPoseScale            []float32 `yaml:"FirstPoseScale"`
	FirstPoseRotation         []float32 `yaml:"FirstPoseRotation"`
	FirstPoseTranslation      []float32 `yaml:"FirstPoseTranslation"`
	LastPoseScale             []float32 `yaml:"LastPoseScale"`
	LastPoseRotation          []float32 `yaml:"LastPoseRotation"`
	LastPoseTranslation       []float32 `yaml:"LastPoseTranslation"`
}

// SkeletonModifier is a named set of bone rest-pose modifications, such as a
// taller variant of a unit.
type SkeletonModifier struct {
	Name  string
	Bones map[string]BoneModifierRecord
}

// SkeletonDefine is the per-unit skeleton block of a rules file.
type SkeletonDefine struct {
	Modifiers             []SkeletonModifier
	UseDynamicAdjBonePose bool
}

type skeletonDefineYAML struct {
	BoneModifiers         yaml.Node `yaml:"BoneModifiers"`
	UseDynamicAdjBonePose bool      `yaml:"UseDynamicAdjBonePose"`
}

// ParseSkeletonDefine parses the skeleton block of a rules file.
func ParseSkeletonDefine(data []byte) (*SkeletonDefine, error) {
	var raw skeletonDefineYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSkeleton, err)
	}

	def := &SkeletonDefine{UseDynamicAdjBonePose: raw.UseDynamicAdjBonePose}
	if raw.BoneModifiers.Kind != yaml.MappingNode {
		return def, nil
	}

	mods := raw.BoneModifiers.Content
	for i := 0; i+1 < len(mods); i += 2 {
		mod := SkeletonModifier{Name: mods[i].Value, Bones: make(map[string]BoneModifierRecord)}
		var bones map[string]boneModifierYAML
		if err := mods[i+1].Decode(&bones); err != nil {
			return nil, fmt.Errorf("%w: modifier %q: %v", ErrInvalidSkeleton, mod.Name, err)
		}
		for bone, y := range bones {
			rec := BoneModifierRecord{FirstPoseAsRestPose: y.FirstPoseAsRestPose}
			var err error
			if rec.RestPoseModify, err = (poseFields{y.RestPoseModifyScale, y.RestPoseModifyRotation, y.RestPoseModifyTranslation}).pose("RestPoseModify"); err != nil {
				return nil, fmt.Errorf("modifier %q bone %q: %w", mod.Name, bone, err)
			}
			if rec.FirstPose, err = (poseFields{y.FirstPoseScale, y.FirstPoseRotation, y.FirstPoseTranslation}).pose("FirstPose"); err != nil {
				return nil, fmt.Errorf("modifier %q bone %q: %w", mod.Name, bone, err)
			}
			if rec.LastPose, err = (poseFields{y.LastPoseScale, y.LastPoseRotation, y.LastPoseTranslation}).pose("LastPose"); err != nil {
				return nil, fmt.Errorf("modifier %q bone %q: %w", mod.Name, bone, err)
			}
			mod.Bones[bone] = rec
		}
		def.Modifiers = append(def.Modifiers, mod)
	}
	return def, nil
}

// MaskRecord selects whether a bone takes part in a masked animation.
type MaskRecord struct {
	Using bool `yaml:"Using"`
}

// ParseMask parses a .skm document: a mapping from bone name to MaskRecord.
func ParseMask(data []byte) (map[string]MaskRecord, error) {
	masks := make(map[string]MaskRecord)
	if err := yaml.Unmarshal(data, &masks); err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrInvalidSkeleton, err)
	}
	return masks, nil
}

// ResolveMaskPath tries path as given and then with the .skm extension.
func ResolveMaskPath(path string) (string, error) {
	return resolveWithExt(path, ".skm")
}

// ParseMaskFile resolves and parses a mask from disk.
func ParseMaskFile(path string) (map[string]MaskRecord, error) {
	resolved, err := ResolveMaskPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading mask file: %w", err)
	}
	return ParseMask(data)
}

func resolveWithExt(path, ext string) (string, error) {
	for _, p := range []string{path, path + ext} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("can't find file %s: %w", path+ext, os.ErrNotExist)
}

func documentMapping(doc *yaml.Node) *yaml.Node {
	n := doc
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	return n
}
