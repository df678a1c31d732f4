// Package pose derives the rigid transform between two OXTS pose records.
//
// A PoseRecord carries position and orientation of the vehicle at the time a
// LiDAR frame was captured. Rotate and Translate re-express geometry recorded
// from a secondary pose in the local frame of a primary pose.
package pose

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Field indices within a PoseRecord.
const (
	FieldX = iota
	FieldY
	FieldZ
	FieldRoll
	FieldPitch
	FieldYaw

	// RecordLen is the number of fields in a PoseRecord.
	RecordLen
)

// ErrMalformedPose is returned when a pose source does not hold exactly
// RecordLen numeric fields.
var ErrMalformedPose = errors.New("malformed pose record")

// PoseRecord is [x, y, z, roll, pitch, yaw]. Positions are in metres along
// north-south (x), east-west (y) and vertical (z); angles are radians and are
// never normalised.
type PoseRecord [RecordLen]float64

func (p PoseRecord) X() float64     { return p[FieldX] }
func (p PoseRecord) Y() float64     { return p[FieldY] }
func (p PoseRecord) Z() float64     { return p[FieldZ] }
func (p PoseRecord) Roll() float64  { return p[FieldRoll] }
func (p PoseRecord) Pitch() float64 { return p[FieldPitch] }
func (p PoseRecord) Yaw() float64   { return p[FieldYaw] }

// String formats the record the way it is stored in an OXTS text file.
func (p PoseRecord) String() string {
	parts := make([]string, RecordLen)
	for i, v := range p {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// ParsePoseString parses exactly six whitespace-separated reals.
func ParsePoseString(s string) (PoseRecord, error) {
	return parseFields(strings.Fields(s), true)
}

// ParsePoseRecord reads a pose record from r. The whole input must contain
// exactly six numeric fields.
func ParsePoseRecord(r io.Reader) (PoseRecord, error) {
	return ParseOXTS(r, true)
}

// ParseOXTS reads a pose from an OXTS text record. Full OXTS rows carry more
// than six values (velocities, accelerations, fix status); with strict unset
// the leading six are used and the rest ignored. Fewer than six is always an
// error.
func ParseOXTS(r io.Reader, strict bool) (PoseRecord, error) {
	var fields []string
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		fields = append(fields, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return PoseRecord{}, fmt.Errorf("failed to read pose record: %w", err)
	}
	return parseFields(fields, strict)
}

func parseFields(fields []string, strict bool) (PoseRecord, error) {
	var p PoseRecord
	if len(fields) < RecordLen || (strict && len(fields) != RecordLen) {
		return p, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPose, RecordLen, len(fields))
	}
	for i := 0; i < RecordLen; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return p, fmt.Errorf("%w: field %d: %v", ErrMalformedPose, i, err)
		}
		p[i] = v
	}
	return p, nil
}
