// Package cloud holds LiDAR point clouds, their binary file format and the
// merge of a transformed secondary cloud into a primary one.
package cloud

import (
	"errors"
	"math"
)

// PointDim is the number of float32 components per point.
const PointDim = 4

var (
	// ErrMalformedCloud is returned when a buffer is not a whole number of points.
	ErrMalformedCloud = errors.New("malformed point cloud")
	// ErrBufferTooSmall is returned by MergeInto when dst cannot hold the result.
	ErrBufferTooSmall = errors.New("destination buffer too small")
	// ErrLengthMismatch is returned when clouds and transforms are not paired.
	ErrLengthMismatch = errors.New("clouds and transforms length mismatch")
)

// Point is [x, y, z, intensity]. Intensity is the sensor reflectance value
// and is carried through transforms unchanged.
type Point [PointDim]float32

func (p Point) X() float32         { return p[0] }
func (p Point) Y() float32         { return p[1] }
func (p Point) Z() float32         { return p[2] }
func (p Point) Intensity() float32 { return p[3] }

// PointCloud is an ordered set of points. Order carries no meaning but is
// preserved so merges are reproducible.
type PointCloud []Point

// Clone returns an independent copy of c.
func (c PointCloud) Clone() PointCloud {
	if c == nil {
		return nil
	}
	out := make(PointCloud, len(c))
	copy(out, c)
	return out
}

// FromFloats reshapes a flat [x y z i x y z i ...] slice into points.
func FromFloats(flat []float32) (PointCloud, error) {
	if len(flat)%PointDim != 0 {
		return nil, ErrMalformedCloud
	}
	out := make(PointCloud, len(flat)/PointDim)
	for i := range out {
		copy(out[i][:], flat[i*PointDim:(i+1)*PointDim])
	}
	return out, nil
}

// Floats flattens c into [x y z i ...].
func (c PointCloud) Floats() []float32 {
	out := make([]float32, 0, len(c)*PointDim)
	for _, p := range c {
		out = append(out, p[:]...)
	}
	return out
}

// BoundingBox is the axis-aligned extent of a cloud.
type BoundingBox struct {
	Min, Max [3]float32
}

// Bounds returns the extent of c, skipping NaN coordinates. The second result
// is false when c has no finite point.
func Bounds(c PointCloud) (BoundingBox, bool) {
	var bb BoundingBox
	found := false
	for _, p := range c {
		if isNaN(p[0]) || isNaN(p[1]) || isNaN(p[2]) {
			continue
		}
		if !found {
			copy(bb.Min[:], p[:3])
			copy(bb.Max[:], p[:3])
			found = true
			continue
		}
		for k := 0; k < 3; k++ {
			bb.Min[k] = float32(math.Min(float64(bb.Min[k]), float64(p[k])))
			bb.Max[k] = float32(math.Max(float64(bb.Max[k]), float64(p[k])))
		}
	}
	return bb, found
}

func isNaN(v float32) bool { return v != v }
