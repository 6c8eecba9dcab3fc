package math

import (
	"errors"
	"fmt"
	"math"
)

// ErrTransformUnset is returned when reading a Transform that was never given
// a scale/rotation/position triple or a matrix.
var ErrTransformUnset = errors.New("transform has no representation")

type transformKind uint8

const (
	kindUnset transformKind = iota
	kindSRT
	kindMatrix
	kindBoth
)

// Transform is a scale/rotation/position transform that may be backed by an
// SRT triple, a matrix, or both. The zero value has no representation and
// every getter on it fails.
type Transform struct {
	kind     transformKind
	scale    Vec3
	rotation Quat
	position Vec3
	matrix   Mat4
}

// NewTransformSRT builds a transform from scale, rotation and position.
// The matrix is derived immediately.
func NewTransformSRT(scale Vec3, rotation Quat, position Vec3) Transform {
	t := Transform{kind: kindSRT, scale: scale, rotation: rotation.Normalize(), position: position}
	t.matrix = composeSRT(t.scale, t.rotation, t.position)
	t.kind = kindBoth
	return t
}

// NewTransformMatrix builds a transform backed by m. SRT is derived on demand.
func NewTransformMatrix(m Mat4) Transform {
	return Transform{kind: kindMatrix, matrix: m}
}

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform {
	return NewTransformSRT(One3(), QuatIdentity(), Vec3{})
}

// IsSet reports whether t has any representation.
func (t Transform) IsSet() bool {
	return t.kind != kindUnset
}

// HasSRT reports whether the SRT triple is available without derivation.
func (t Transform) HasSRT() bool {
	return t.kind == kindSRT || t.kind == kindBoth
}

// Resolve derives whichever representation is missing and caches it.
func (t *Transform) Resolve() error {
	switch t.kind {
	case kindUnset:
		return fmt.Errorf("%w: can't resolve", ErrTransformUnset)
	case kindMatrix:
		t.scale, t.rotation, t.position = decompose(t.matrix)
	case kindSRT:
		t.matrix = composeSRT(t.scale, t.rotation, t.position)
	}
	t.kind = kindBoth
	return nil
}

// Scale returns the scale component.
func (t Transform) Scale() (Vec3, error) {
	switch t.kind {
	case kindUnset:
		return Vec3{}, fmt.Errorf("%w: can't update scale", ErrTransformUnset)
	case kindMatrix:
		s, _, _ := decompose(t.matrix)
		return s, nil
	}
	return t.scale, nil
}

// Rotation returns the rotation component.
func (t Transform) Rotation() (Quat, error) {
	switch t.kind {
	case kindUnset:
		return Quat{}, fmt.Errorf("%w: can't update rotation", ErrTransformUnset)
	case kindMatrix:
		_, r, _ := decompose(t.matrix)
		return r, nil
	}
	return t.rotation, nil
}

// Position returns the translation component.
func (t Transform) Position() (Vec3, error) {
	switch t.kind {
	case kindUnset:
		return Vec3{}, fmt.Errorf("%w: can't update position", ErrTransformUnset)
	case kindMatrix:
		return t.matrix.Translation(), nil
	}
	return t.position, nil
}

// Matrix returns the 4x4 matrix T * R * S.
func (t Transform) Matrix() (Mat4, error) {
	switch t.kind {
	case kindUnset:
		return Mat4{}, fmt.Errorf("%w: can't update matrix", ErrTransformUnset)
	case kindSRT:
		return composeSRT(t.scale, t.rotation, t.position), nil
	}
	return t.matrix, nil
}

// SRT returns all three components at once.
func (t Transform) SRT() (Vec3, Quat, Vec3, error) {
	switch t.kind {
	case kindUnset:
		return Vec3{}, Quat{}, Vec3{}, fmt.Errorf("%w: can't update scale/rotation/position", ErrTransformUnset)
	case kindMatrix:
		s, r, p := decompose(t.matrix)
		return s, r, p, nil
	}
	return t.scale, t.rotation, t.position, nil
}

// MustMatrix is like Matrix but panics on an unset transform.
func (t Transform) MustMatrix() Mat4 {
	m, err := t.Matrix()
	if err != nil {
		panic(err)
	}
	return m
}

// Then composes t (local) under parent: the result's matrix is parent * t.
func (t Transform) Then(parent Transform) (Transform, error) {
	local, err := t.Matrix()
	if err != nil {
		return Transform{}, err
	}
	pm, err := parent.Matrix()
	if err != nil {
		return Transform{}, err
	}
	out := NewTransformMatrix(pm.Mul(local))
	// Resolve only fails on an unset transform.
	_ = out.Resolve()
	return out, nil
}

// Inverse returns the inverse transform, backed by a matrix.
func (t Transform) Inverse() (Transform, error) {
	m, err := t.Matrix()
	if err != nil {
		return Transform{}, err
	}
	return NewTransformMatrix(m.Inverse()), nil
}

// WithScale returns t with its scale replaced.
func (t Transform) WithScale(s Vec3) (Transform, error) {
	_, r, p, err := t.SRT()
	if err != nil {
		return Transform{}, err
	}
	return NewTransformSRT(s, r, p), nil
}

// BlendTransforms interpolates scale and position linearly and rotation
// spherically.
func BlendTransforms(a, b Transform, t float32) (Transform, error) {
	sa, ra, pa, err := a.SRT()
	if err != nil {
		return Transform{}, err
	}
	sb, rb, pb, err := b.SRT()
	if err != nil {
		return Transform{}, err
	}
	return NewTransformSRT(sa.Lerp(sb, t), ra.Slerp(rb, t), pa.Lerp(pb, t)), nil
}

// MustBlend is like BlendTransforms but panics on an unset input.
func MustBlend(a, b Transform, t float32) Transform {
	out, err := BlendTransforms(a, b, t)
	if err != nil {
		panic(err)
	}
	return out
}

// LerpTransformMatrix interpolates the matrices of a and b element-wise.
func LerpTransformMatrix(a, b Transform, t float32) (Mat4, error) {
	ma, err := a.Matrix()
	if err != nil {
		return Mat4{}, err
	}
	mb, err := b.Matrix()
	if err != nil {
		return Mat4{}, err
	}
	return LerpMat4(ma, mb, t), nil
}

func composeSRT(s Vec3, r Quat, p Vec3) Mat4 {
	return TranslateVec(p).Mul(r.ToMat4()).Mul(ScaleVec(s))
}

// decompose splits an affine matrix into scale, rotation and translation.
// A negative determinant is folded into the X scale.
func decompose(m Mat4) (Vec3, Quat, Vec3) {
	c0 := m.Col(0).XYZ()
	c1 := m.Col(1).XYZ()
	c2 := m.Col(2).XYZ()

	s := Vec3{c0.Length(), c1.Length(), c2.Length()}
	if c0.Cross(c1).Dot(c2) < 0 {
		s.X = -s.X
	}

	r := QuatIdentity()
	if !nearZero(s.X) && !nearZero(s.Y) && !nearZero(s.Z) {
		basis := Identity()
		basis = basis.SetCol(0, c0.Scale(1/s.X).Vec4(0))
		basis = basis.SetCol(1, c1.Scale(1/s.Y).Vec4(0))
		basis = basis.SetCol(2, c2.Scale(1/s.Z).Vec4(0))
		r = QuatFromMat4(basis)
	}

	return s, r, m.Translation()
}

func nearZero(x float32) bool {
	return math.Abs(float64(x)) < 1e-8
}
