package cloud

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// recordSize is the byte length of one encoded point.
const recordSize = PointDim * 4

// Decode parses a KITTI-style velodyne buffer: consecutive little-endian
// float32 records of [x y z intensity].
func Decode(data []byte) (PointCloud, error) {
	if len(data)%recordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedCloud, len(data), recordSize)
	}
	out := make(PointCloud, len(data)/recordSize)
	for i := range out {
		rec := data[i*recordSize:]
		for k := 0; k < PointDim; k++ {
			out[i][k] = math.Float32frombits(binary.LittleEndian.Uint32(rec[k*4:]))
		}
	}
	return out, nil
}

// Read decodes a whole cloud from r.
func Read(r io.Reader) (PointCloud, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read point cloud: %w", err)
	}
	return Decode(data)
}

// Encode is the inverse of Decode.
func Encode(c PointCloud) []byte {
	buf := make([]byte, len(c)*recordSize)
	for i, p := range c {
		rec := buf[i*recordSize:]
		for k := 0; k < PointDim; k++ {
			binary.LittleEndian.PutUint32(rec[k*4:], math.Float32bits(p[k]))
		}
	}
	return buf
}

// Write encodes c to w.
func Write(w io.Writer, c PointCloud) error {
	if _, err := w.Write(Encode(c)); err != nil {
		return fmt.Errorf("failed to write point cloud: %w", err)
	}
	return nil
}
