package pose

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func assertMatrixNear(t *testing.T, want, got Matrix4, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "element (%d,%d)", i/4, i%4)
	}
}

func TestRotate_SamePoseIsIdentity(t *testing.T) {
	poses := []PoseRecord{
		{},
		{1, 2, 3, 0.1, -0.2, 0.3},
		{-40, 12.5, 0.7, math.Pi, math.Pi / 2, -7 * math.Pi},
	}
	for _, p := range poses {
		assert.Equal(t, Identity(), Rotate(p, p), "pose %v", p)
		assert.Equal(t, Vector4{}, Translate(p, p), "pose %v", p)
	}
}

func TestRotate_YawQuarterTurn(t *testing.T) {
	a := PoseRecord{0, 0, 0, 0, 0, 0}
	b := PoseRecord{1, 0, 0, 0, 0, 1.5708}

	r := Rotate(a, b)
	x := r.MulVec(Vector4{1, 0, 0, 0})
	assert.InDelta(t, 0, x[0], 1e-4)
	assert.InDelta(t, 1, x[1], 1e-4)
	assert.InDelta(t, 0, x[2], 1e-4)

	tr := Translate(a, b)
	assert.InDelta(t, 1, tr[0], tol)
	assert.InDelta(t, 0, tr[1], tol)
	assert.InDelta(t, 0, tr[2], tol)
	assert.Equal(t, 0.0, tr[3])
}

func TestRotate_CompositionOrder(t *testing.T) {
	a := PoseRecord{0, 0, 0, 0.2, -0.1, 0.4}
	b := PoseRecord{0, 0, 0, 0.7, 0.3, 1.1}

	dRoll, dPitch, dYaw := 0.5, 0.4, 0.7
	want := RotZ(dYaw).Mul(RotY(dPitch)).Mul(RotX(dRoll))
	assertMatrixNear(t, want, Rotate(a, b), tol)

	// Swapping the poses negates each elementary angle but keeps the order,
	// so the result is not the matrix inverse of Rotate(a, b).
	swapped := RotZ(-dYaw).Mul(RotY(-dPitch)).Mul(RotX(-dRoll))
	assertMatrixNear(t, swapped, Rotate(b, a), tol)

	product := Rotate(a, b).Mul(Rotate(b, a))
	maxDiff := 0.0
	id := Identity()
	for i := range product {
		maxDiff = math.Max(maxDiff, math.Abs(product[i]-id[i]))
	}
	assert.Greater(t, maxDiff, 1e-3)
}

func TestRotate_ElementaryMatrices(t *testing.T) {
	theta := 0.3
	c, s := math.Cos(theta), math.Sin(theta)

	assert.Equal(t, Matrix4{c, -s, 0, 0, s, c, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}, RotZ(theta))
	assert.Equal(t, Matrix4{c, 0, s, 0, 0, 1, 0, 0, -s, 0, c, 0, 0, 0, 0, 1}, RotY(theta))
	assert.Equal(t, Matrix4{1, 0, 0, 0, 0, c, -s, 0, 0, s, c, 0, 0, 0, 0, 1}, RotX(theta))
}

func TestRotate_Orthonormal(t *testing.T) {
	a := PoseRecord{3, 4, 5, 1.2, -2.3, 0.4}
	b := PoseRecord{-1, 8, 2, -0.6, 0.9, 12.8}

	r := Rotate(a, b)
	require.True(t, IsValidTransformMatrix(r))
	require.True(t, PreservesIntensity(r))
	assertMatrixNear(t, Identity(), r.Mul(r.Transpose()), 1e-12)
}

func TestTranslate_UsesPrimaryYawOnly(t *testing.T) {
	a := PoseRecord{10, 20, 1, 0, 0, math.Pi / 2}
	b := PoseRecord{12, 23, 4, 0, 0, 0}

	tr := Translate(a, b)
	// da=2, db=3, yawA=90°: dx = db, dy = -da.
	assert.InDelta(t, 3, tr[0], tol)
	assert.InDelta(t, -2, tr[1], tol)
	assert.InDelta(t, 3, tr[2], tol)
	assert.Equal(t, 0.0, tr[3])

	b[FieldYaw] = 2.5
	assert.Equal(t, tr, Translate(a, b))
}

func TestDerive(t *testing.T) {
	a := PoseRecord{1, 1, 1, 1, 1, 1}
	b := PoseRecord{2, 3, 4, 0.5, 0.25, 0.75}

	tf := Derive(a, b)
	assert.Equal(t, Rotate(a, b), tf.R)
	assert.Equal(t, Translate(a, b), tf.T)
	assert.Equal(t, 0.0, tf.T[3])
}

func TestMatrix4_MulIdentity(t *testing.T) {
	m := RotZ(0.5).Mul(RotX(-1.1))
	assert.Equal(t, m, m.Mul(Identity()))
	assert.Equal(t, m, Identity().Mul(m))
	assert.Equal(t, m, m.Transpose().Transpose())
	assert.Equal(t, m[6], m.At(1, 2))
}

func TestIsValidTransformMatrix(t *testing.T) {
	assert.True(t, IsValidTransformMatrix(Identity()))
	assert.True(t, IsValidTransformMatrix(RotZ(math.Pi/2)))

	badLastRow := Identity()
	badLastRow[12] = 1
	assert.False(t, IsValidTransformMatrix(badLastRow))

	reflection := Identity()
	reflection[0] = -1
	assert.False(t, IsValidTransformMatrix(reflection))

	scaled := Identity()
	scaled[0], scaled[5], scaled[10] = 2, 2, 2
	assert.False(t, IsValidTransformMatrix(scaled))
}

func TestPreservesIntensity(t *testing.T) {
	assert.True(t, PreservesIntensity(RotY(0.8)))

	leaky := Identity()
	leaky[3] = 0.5
	assert.False(t, PreservesIntensity(leaky))
}

func TestParsePoseString(t *testing.T) {
	p, err := ParsePoseString("  1.5 -2 3e1\t0.1 0.2\n0.3 ")
	require.NoError(t, err)
	assert.Equal(t, PoseRecord{1.5, -2, 30, 0.1, 0.2, 0.3}, p)
	assert.Equal(t, 0.3, p.Yaw())
	assert.Equal(t, 0.2, p.Pitch())
	assert.Equal(t, 0.1, p.Roll())
}

func TestParsePoseRecord_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too few", "1 2 3 4 5"},
		{"too many", "1 2 3 4 5 6 7"},
		{"not a number", "1 2 three 4 5 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePoseRecord(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPose))
		})
	}
}

func TestParseOXTS_Lenient(t *testing.T) {
	row := "49.01 8.43 116.4 0.03 -0.01 1.2 0.1 0.2 0.3"

	_, err := ParseOXTS(strings.NewReader(row), true)
	assert.ErrorIs(t, err, ErrMalformedPose)

	p, err := ParseOXTS(strings.NewReader(row), false)
	require.NoError(t, err)
	assert.Equal(t, PoseRecord{49.01, 8.43, 116.4, 0.03, -0.01, 1.2}, p)

	_, err = ParseOXTS(strings.NewReader("1 2 3"), false)
	assert.ErrorIs(t, err, ErrMalformedPose)
}

func TestPoseRecord_StringRoundTrip(t *testing.T) {
	p := PoseRecord{1.25, -3, 0, 0.5, 1e-7, 6.283185307179586}
	got, err := ParsePoseString(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
