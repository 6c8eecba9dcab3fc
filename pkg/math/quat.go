package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Quat represents a quaternion for 3D rotations.
// Components are stored as X, Y, Z, W where W is the scalar part.
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity returns an identity quaternion (no rotation).
func QuatIdentity() Quat {
	return Quat{X: 0, Y: 0, Z: 0, W: 1}
}

// QuatFromAxisAngle creates a quaternion from axis-angle rotation.
// axis should be normalized, angle is in radians.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	return quatFromMgl(mgl32.QuatRotate(angle, axis.mgl()))
}

// QuatFromMat4 extracts the rotation of a pure rotation matrix.
func QuatFromMat4(m Mat4) Quat {
	return quatFromMgl(mgl32.Mat4ToQuat(mgl32.Mat4(m))).Normalize()
}

// QuatBetween returns the shortest rotation taking unit vector from onto unit vector to.
func QuatBetween(from, to Vec3) Quat {
	return quatFromMgl(mgl32.QuatBetweenVectors(from.mgl(), to.mgl()))
}

func quatFromMgl(q mgl32.Quat) Quat {
	return Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

func (q Quat) mgl() mgl32.Quat {
	return mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}}
}

// Normalize returns a normalized quaternion.
func (q Quat) Normalize() Quat {
	length := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if length < 0.0001 {
		return QuatIdentity()
	}
	invLen := 1.0 / length
	return Quat{X: q.X * invLen, Y: q.Y * invLen, Z: q.Z * invLen, W: q.W * invLen}
}

// Dot returns the dot product of two quaternions.
func (q Quat) Dot(other Quat) float32 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

// Neg returns -q, which encodes the same rotation.
func (q Quat) Neg() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// Slerp performs spherical linear interpolation along the shorter arc.
func (q Quat) Slerp(other Quat, t float32) Quat {
	if q.Dot(other) < 0 {
		other = other.Neg()
	}
	return quatFromMgl(mgl32.QuatSlerp(q.mgl(), other.mgl(), t)).Normalize()
}

// ToMat4 converts the quaternion to a 4x4 rotation matrix.
func (q Quat) ToMat4() Mat4 {
	return Mat4(q.Normalize().mgl().Mat4())
}

// Mul multiplies two quaternions (combines rotations).
func (q Quat) Mul(other Quat) Quat {
	return quatFromMgl(q.mgl().Mul(other.mgl()))
}

// Rotate rotates v by q.
func (q Quat) Rotate(v Vec3) Vec3 {
	return vec3FromMgl(q.Normalize().mgl().Rotate(v.mgl()))
}

// ApproxEqual reports whether q and other describe the same rotation within eps.
func (q Quat) ApproxEqual(other Quat, eps float32) bool {
	d := q.Dot(other)
	if d < 0 {
		d = -d
	}
	return 1-d <= eps
}
