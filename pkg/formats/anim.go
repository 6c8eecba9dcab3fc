package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// AnimMagic is the 8-byte header of every animation clip.
const AnimMagic = "ORA_ANIM"

// animNameTerminator ends every string in a clip file.
const animNameTerminator = '?'

// Animation file errors.
var (
	ErrInvalidAnimMagic  = errors.New("invalid animation magic: expected 'ORA_ANIM'")
	ErrTruncatedAnimData = errors.New("truncated animation data")
	ErrAnimNotFound      = errors.New("animation file not found")
)

// AnimBoneKey is one bone's local transform in one frame.
type AnimBoneKey struct {
	ID          int32
	Scale       [3]float32
	Rotation    [4]float32 // x, y, z, w
	Translation [3]float32
}

// AnimFrame holds the keys of a single frame.
type AnimFrame struct {
	Keys []AnimBoneKey
}

// AnimBoneName maps a file-local bone id to a bone name.
type AnimBoneName struct {
	ID   int32
	Name string
}

// Anim is a parsed ORA_ANIM clip. Bone ids are local to the file and are
// resolved against a skeleton by name.
type Anim struct {
	Name   string
	Bones  []AnimBoneName
	Frames []AnimFrame
}

// BoneName returns the name for a file-local bone id.
func (a *Anim) BoneName(id int32) (string, bool) {
	for _, b := range a.Bones {
		if b.ID == id {
			return b.Name, true
		}
	}
	return "", false
}

// ParseAnim parses an ORA_ANIM clip. In the old format bone keys carry no id
// and the key's position in the frame is its id.
func ParseAnim(data []byte, oldFormat bool) (*Anim, error) {
	if len(data) < len(AnimMagic) {
		return nil, ErrTruncatedAnimData
	}
	if string(data[:len(AnimMagic)]) != AnimMagic {
		return nil, ErrInvalidAnimMagic
	}

	r := bytes.NewReader(data[len(AnimMagic):])
	anim := &Anim{}

	name, err := readTerminated(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading clip name", ErrTruncatedAnimData)
	}
	anim.Name = name

	var dictSize uint32
	if err := binary.Read(r, binary.LittleEndian, &dictSize); err != nil {
		return nil, fmt.Errorf("%w: reading bone dictionary size", ErrTruncatedAnimData)
	}
	if int64(dictSize) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: bone dictionary size %d", ErrTruncatedAnimData, dictSize)
	}

	anim.Bones = make([]AnimBoneName, 0, dictSize)
	for i := uint32(0); i < dictSize; i++ {
		var entry AnimBoneName
		if err := binary.Read(r, binary.LittleEndian, &entry.ID); err != nil {
			return nil, fmt.Errorf("%w: reading bone %d id", ErrTruncatedAnimData, i)
		}
		if entry.Name, err = readTerminated(r); err != nil {
			return nil, fmt.Errorf("%w: reading bone %d name", ErrTruncatedAnimData, i)
		}
		anim.Bones = append(anim.Bones, entry)
	}

	var frameCount uint32
	if err := binary.Read(r, binary.LittleEndian, &frameCount); err != nil {
		return nil, fmt.Errorf("%w: reading frame count", ErrTruncatedAnimData)
	}
	if int64(frameCount)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: frame count %d", ErrTruncatedAnimData, frameCount)
	}

	anim.Frames = make([]AnimFrame, frameCount)
	for f := range anim.Frames {
		frame, err := parseAnimFrame(r, oldFormat)
		if err != nil {
			return nil, fmt.Errorf("parsing frame %d: %w", f, err)
		}
		anim.Frames[f] = frame
	}

	return anim, nil
}

func parseAnimFrame(r *bytes.Reader, oldFormat bool) (AnimFrame, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return AnimFrame{}, fmt.Errorf("%w: reading bone count", ErrTruncatedAnimData)
	}
	if int64(count)*40 > int64(r.Len()) {
		return AnimFrame{}, fmt.Errorf("%w: bone count %d", ErrTruncatedAnimData, count)
	}

	frame := AnimFrame{Keys: make([]AnimBoneKey, count)}
	for j := range frame.Keys {
		key := &frame.Keys[j]
		key.ID = int32(j)
		if !oldFormat {
			if err := binary.Read(r, binary.LittleEndian, &key.ID); err != nil {
				return AnimFrame{}, fmt.Errorf("%w: reading key %d id", ErrTruncatedAnimData, j)
			}
		}
		if err := binary.Read(r, binary.LittleEndian, &key.Scale); err != nil {
			return AnimFrame{}, fmt.Errorf("%w: reading key %d scale", ErrTruncatedAnimData, j)
		}
		if err := binary.Read(r, binary.LittleEndian, &key.Rotation); err != nil {
			return AnimFrame{}, fmt.Errorf("%w: reading key %d rotation", ErrTruncatedAnimData, j)
		}
		if err := binary.Read(r, binary.LittleEndian, &key.Translation); err != nil {
			return AnimFrame{}, fmt.Errorf("%w: reading key %d translation", ErrTruncatedAnimData, j)
		}
	}
	return frame, nil
}

func readTerminated(r *bytes.Reader) (string, error) {
	var sb []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == animNameTerminator {
			return string(sb), nil
		}
		sb = append(sb, b)
	}
}

// ResolveAnimPath finds a clip on disk. It tries name as given, then with the
// .ska extension, then .anim; the last one is the old keyless format.
func ResolveAnimPath(name string) (path string, oldFormat bool, err error) {
	candidates := []struct {
		path string
		old  bool
	}{
		{name, false},
		{name + ".ska", false},
		{name + ".anim", true},
	}
	for _, c := range candidates {
		if info, statErr := os.Stat(c.path); statErr == nil && !info.IsDir() {
			return c.path, c.old, nil
		}
	}
	return "", false, fmt.Errorf("%w: %s", ErrAnimNotFound, name)
}

// ParseAnimFile resolves and parses a clip from disk.
func ParseAnimFile(name string) (*Anim, error) {
	path, old, err := ResolveAnimPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading animation file: %w", err)
	}
	return ParseAnim(data, old)
}

// WriteAnim writes a in the current (keyed) format.
func WriteAnim(w io.Writer, a *Anim) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(AnimMagic); err != nil {
		return err
	}
	writeTerminated(bw, a.Name)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(a.Bones))); err != nil {
		return err
	}
	for _, b := range a.Bones {
		if err := binary.Write(bw, binary.LittleEndian, b.ID); err != nil {
			return err
		}
		writeTerminated(bw, b.Name)
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(a.Frames))); err != nil {
		return err
	}
	for _, f := range a.Frames {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(f.Keys))); err != nil {
			return err
		}
		for _, k := range f.Keys {
			if err := binary.Write(bw, binary.LittleEndian, k); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

func writeTerminated(w *bufio.Writer, s string) {
	w.WriteString(s)
	w.WriteByte(animNameTerminator)
}
