package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix4 is a 4x4 homogeneous matrix in row-major order:
// m00,m01,m02,m03, m10,... (same layout as the sensor pose T).
type Matrix4 [16]float64

// Vector4 is a homogeneous 4-vector. Translations always have a zero last
// component.
type Vector4 [4]float64

// RigidTransform is the rotation and translation taking points recorded at a
// secondary pose into the primary pose's frame.
type RigidTransform struct {
	R Matrix4
	T Vector4
}

// Identity returns the 4x4 identity matrix.
func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// IdentityTransform is the no-op transform.
func IdentityTransform() RigidTransform {
	return RigidTransform{R: Identity()}
}

// At returns the element at row r, column c.
func (m Matrix4) At(r, c int) float64 {
	return m[r*4+c]
}

// Mul returns m·n.
func (m Matrix4) Mul(n Matrix4) Matrix4 {
	var out mat.Dense
	out.Mul(mat.NewDense(4, 4, m[:]), mat.NewDense(4, 4, n[:]))

	var res Matrix4
	raw := out.RawMatrix()
	for r := 0; r < 4; r++ {
		copy(res[r*4:r*4+4], raw.Data[r*raw.Stride:r*raw.Stride+4])
	}
	return res
}

// Transpose returns mᵗ.
func (m Matrix4) Transpose() Matrix4 {
	var res Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			res[c*4+r] = m[r*4+c]
		}
	}
	return res
}

// MulVec returns m·v.
func (m Matrix4) MulVec(v Vector4) Vector4 {
	var res Vector4
	for r := 0; r < 4; r++ {
		res[r] = m[r*4]*v[0] + m[r*4+1]*v[1] + m[r*4+2]*v[2] + m[r*4+3]*v[3]
	}
	return res
}

// RotX is the rotation about X by angle radians.
func RotX(angle float64) Matrix4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix4{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	}
}

// RotY is the rotation about Y by angle radians.
func RotY(angle float64) Matrix4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix4{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// RotZ is the rotation about Z by angle radians.
func RotZ(angle float64) Matrix4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix4{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Rotate returns the rotation from b's orientation into a's:
// Rz(dYaw)·Ry(dPitch)·Rx(dRoll) with each delta taken as b minus a.
// The order is fixed and the result is not re-orthonormalised; gimbal-lock
// angles are not special-cased.
func Rotate(a, b PoseRecord) Matrix4 {
	dYaw := b.Yaw() - a.Yaw()
	dPitch := b.Pitch() - a.Pitch()
	dRoll := b.Roll() - a.Roll()

	return RotZ(dYaw).Mul(RotY(dPitch)).Mul(RotX(dRoll))
}

// Translate returns the offset of b relative to a, with the planar part
// rotated into a's heading. Only a's yaw is used: the result is expressed in
// a's local frame.
func Translate(a, b PoseRecord) Vector4 {
	da := b.X() - a.X() // south -> north
	db := b.Y() - a.Y() // east -> west
	dz := b.Z() - a.Z()

	cosYaw, sinYaw := math.Cos(a.Yaw()), math.Sin(a.Yaw())
	dx := da*cosYaw + db*sinYaw
	dy := -da*sinYaw + db*cosYaw

	return Vector4{dx, dy, dz, 0}
}

// Derive computes both halves of the transform from b into a.
func Derive(a, b PoseRecord) RigidTransform {
	return RigidTransform{R: Rotate(a, b), T: Translate(a, b)}
}
