package skeleton

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-rts/pkg/formats"
)

// Registry errors.
var (
	ErrUnknownUnit       = errors.New("unit has no sequences")
	ErrUnknownSequence   = errors.New("unknown sequence")
	ErrDuplicateSequence = errors.New("sequence already registered")
	ErrEmptyFileName     = errors.New("empty file name")
)

// clipKey takes the first comma separated field of a sequence's file entry;
// the remaining fields carry playback options the registry ignores.
func clipKey(filename string) string {
	for _, f := range strings.Split(filename, ",") {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return ""
}

func (a *Asset) resolve(file string) string {
	if a.Dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(a.Dir, file)
}

// TryAddAnimation registers the clip named by filename under (unit,
// sequence). A clip already loaded by another sequence is shared. It reports
// whether the clip was read from disk.
func (a *Asset) TryAddAnimation(unit, sequence, filename string) (bool, error) {
	key := clipKey(filename)
	if key == "" {
		return false, errors.Wrapf(ErrEmptyFileName, "skeleton %s: animation for %s.%s", a.Name, unit, sequence)
	}
	if clip, ok := a.clips[key]; ok {
		return false, a.addClipRef(unit, sequence, clip)
	}

	raw, err := formats.ParseAnimFile(a.resolve(key))
	if err != nil {
		return false, errors.Wrapf(err, "skeleton %s: loading animation %s", a.Name, key)
	}
	clip := NewSkeletalAnim(a, raw, sequence)
	if err := a.addClipRef(unit, sequence, clip); err != nil {
		return false, err
	}
	a.clips[key] = clip
	return true, nil
}

// AddAnimation registers an in-memory clip under key and aliases it as
// (unit, sequence). It reports whether key was new.
func (a *Asset) AddAnimation(unit, sequence, key string, clip *SkeletalAnim) (bool, error) {
	if existing, ok := a.clips[key]; ok {
		return false, a.addClipRef(unit, sequence, existing)
	}
	if err := a.addClipRef(unit, sequence, clip); err != nil {
		return false, err
	}
	a.clips[key] = clip
	return true, nil
}

func (a *Asset) addClipRef(unit, sequence string, clip *SkeletalAnim) error {
	refs, ok := a.clipRefs[unit]
	if !ok {
		refs = make(map[string]*SkeletalAnim)
		a.clipRefs[unit] = refs
	}
	if _, ok := refs[sequence]; ok {
		return errors.Wrapf(ErrDuplicateSequence, "skeleton %s: animation %s.%s", a.Name, unit, sequence)
	}
	refs[sequence] = clip
	return nil
}

// SkeletalAnim returns the clip aliased as (unit, sequence).
func (a *Asset) SkeletalAnim(unit, sequence string) (*SkeletalAnim, error) {
	if unit == "" {
		return nil, errors.Wrap(ErrUnknownUnit, "unit is empty")
	}
	if sequence == "" {
		return nil, errors.Wrap(ErrUnknownSequence, "sequence is empty")
	}
	refs, ok := a.clipRefs[unit]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownUnit, "unit %s", unit)
	}
	clip, ok := refs[sequence]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSequence, "unit %s has no animation for %s", unit, sequence)
	}
	return clip, nil
}

// ClipNames returns the loaded clip keys in sorted order.
func (a *Asset) ClipNames() []string {
	names := make([]string, 0, len(a.clips))
	for k := range a.clips {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clip returns a loaded clip by key.
func (a *Asset) Clip(key string) (*SkeletalAnim, bool) {
	c, ok := a.clips[key]
	return c, ok
}

// TryAddMask registers the mask named by filename under (unit, sequence),
// trying the name as given and then with .skm. Masks are shared by file like
// clips. Bones that aren't animated are ignored; a bone missing from the
// skeleton fails the load.
func (a *Asset) TryAddMask(unit, sequence, filename string) (bool, error) {
	key := clipKey(filename)
	if key == "" {
		return false, errors.Wrapf(ErrEmptyFileName, "skeleton %s: mask for %s.%s", a.Name, unit, sequence)
	}
	if mask, ok := a.masks[key]; ok {
		return false, a.addMaskRef(unit, sequence, mask)
	}

	records, err := formats.ParseMaskFile(a.resolve(key))
	if err != nil {
		return false, errors.Wrapf(err, "skeleton %s: loading mask %s", a.Name, key)
	}
	mask, err := a.NewMask(records)
	if err != nil {
		return false, errors.Wrapf(err, "mask %s", key)
	}
	if err := a.addMaskRef(unit, sequence, mask); err != nil {
		return false, err
	}
	a.masks[key] = mask
	return true, nil
}

// NewMask builds a mask from per-bone records. Unlisted bones are off.
func (a *Asset) NewMask(records map[string]formats.MaskRecord) (AnimMask, error) {
	mask := NewAnimMask(a.AnimBoneCount(), false)
	for name, rec := range records {
		id, ok := a.byName[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownBone, "bone %q not in skeleton %s", name, a.Name)
		}
		if anim := a.Bones[id].AnimID; anim != -1 {
			mask[anim] = rec.Using
		}
	}
	return mask, nil
}

func (a *Asset) addMaskRef(unit, sequence string, mask AnimMask) error {
	refs, ok := a.maskRefs[unit]
	if !ok {
		refs = make(map[string]AnimMask)
		a.maskRefs[unit] = refs
	}
	if _, ok := refs[sequence]; ok {
		return errors.Wrapf(ErrDuplicateSequence, "skeleton %s: mask %s.%s", a.Name, unit, sequence)
	}
	refs[sequence] = mask
	return nil
}

// AnimMask returns the mask aliased as (unit, sequence).
func (a *Asset) AnimMask(unit, sequence string) (AnimMask, error) {
	refs, ok := a.maskRefs[unit]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownUnit, "unit %s has no masks", unit)
	}
	mask, ok := refs[sequence]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSequence, "unit %s has no mask for %s", unit, sequence)
	}
	return mask, nil
}
