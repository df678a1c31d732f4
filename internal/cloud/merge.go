package cloud

import (
	"fmt"

	"github.com/banshee-data/cloudmerge/internal/pose"
)

// applyPoint returns R·p + t. The fourth component goes through the matrix
// like the others; with an intensity-preserving R (last row and column of
// the identity) and t[3] == 0 it comes out unchanged. Zero coefficients are
// skipped so a NaN or Inf in one component does not leak into the others.
func applyPoint(p Point, r pose.Matrix4, t pose.Vector4) Point {
	var out Point
	for row := 0; row < PointDim; row++ {
		acc := t[row]
		for k := 0; k < PointDim; k++ {
			if c := r[row*4+k]; c != 0 {
				acc += c * float64(p[k])
			}
		}
		out[row] = float32(acc)
	}
	return out
}

func transformInto(dst, src PointCloud, r pose.Matrix4, t pose.Vector4) {
	for i, p := range src {
		dst[i] = applyPoint(p, r, t)
	}
}

// Transform returns a new cloud with every point of c mapped to R·p + t.
func Transform(c PointCloud, r pose.Matrix4, t pose.Vector4) PointCloud {
	out := make(PointCloud, len(c))
	transformInto(out, c, r, t)
	return out
}

// Merge returns primary followed by every secondary point mapped through
// R·p + t. Neither input is modified. No filtering is applied: NaN or
// out-of-range values pass through. Unlike a literal 4x4 matmul, a NaN or Inf
// in one component does not spread to the others (see applyPoint).
func Merge(primary, secondary PointCloud, r pose.Matrix4, t pose.Vector4) PointCloud {
	out := make(PointCloud, len(primary)+len(secondary))
	copy(out, primary)
	transformInto(out[len(primary):], secondary, r, t)
	return out
}

// MergeAll appends each secondary cloud, transformed by its paired transform,
// after primary. A nil primary yields only the transformed secondaries.
func MergeAll(primary PointCloud, secondaries []PointCloud, transforms []pose.RigidTransform) (PointCloud, error) {
	if len(secondaries) != len(transforms) {
		return nil, fmt.Errorf("%w: %d clouds, %d transforms", ErrLengthMismatch, len(secondaries), len(transforms))
	}

	total := len(primary)
	for _, s := range secondaries {
		total += len(s)
	}

	out := make(PointCloud, total)
	offset := copy(out, primary)
	for i, s := range secondaries {
		// out is sized for every secondary, so MergeInto cannot run short.
		offset, _ = MergeInto(out, offset, s, transforms[i].R, transforms[i].T)
	}
	return out, nil
}

// MergeInto writes the transformed secondary into dst starting at offset and
// returns the offset just past the last written point. dst is left untouched
// when it is too small.
func MergeInto(dst PointCloud, offset int, secondary PointCloud, r pose.Matrix4, t pose.Vector4) (int, error) {
	if offset < 0 || offset+len(secondary) > len(dst) {
		return offset, fmt.Errorf("%w: need %d points at offset %d, have %d",
			ErrBufferTooSmall, len(secondary), offset, len(dst))
	}
	transformInto(dst[offset:offset+len(secondary)], secondary, r, t)
	return offset + len(secondary), nil
}
