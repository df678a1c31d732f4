package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// IsValidTransformMatrix checks if m is a proper rigid transform:
// the rotation block has det ≈ 1 (no reflection or scale) and the last row
// is [0 0 0 1].
func IsValidTransformMatrix(m Matrix4) bool {
	rot := mat.NewDense(3, 3, []float64{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	})
	if math.Abs(mat.Det(rot)-1.0) > MatrixValidationTolerance {
		return false
	}

	if m[12] != 0 || m[13] != 0 || m[14] != 0 || math.Abs(m[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// PreservesIntensity reports whether multiplying a [x y z intensity] point by
// m leaves the fourth component untouched. That holds exactly when the last
// row and last column are those of the identity.
func PreservesIntensity(m Matrix4) bool {
	return m[3] == 0 && m[7] == 0 && m[11] == 0 &&
		m[12] == 0 && m[13] == 0 && m[14] == 0 && m[15] == 1
}
