// Package merge packages pose derivation and cloud merging as a single
// callable that a harness or a remote service can invoke.
package merge

import (
	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/pose"
)

// Frame is one vehicle's LiDAR sweep with the pose it was captured at.
type Frame struct {
	ID    string
	Cloud cloud.PointCloud
	Pose  pose.PoseRecord
}

// Module is the deployable merge callable. It holds an optional cached
// transform for Execute; nothing is mutated after construction, so a Module
// is safe for concurrent use.
type Module struct {
	transform pose.RigidTransform
	logf      func(format string, v ...interface{})
}

// Option configures a Module.
type Option func(*Module)

// WithTransform caches a transform for Execute so callers that already
// derived R and t do not pay for it per call.
func WithTransform(tf pose.RigidTransform) Option {
	return func(m *Module) { m.transform = tf }
}

// WithPoses caches the transform from secondary into primary.
func WithPoses(primary, secondary pose.PoseRecord) Option {
	return func(m *Module) { m.transform = pose.Derive(primary, secondary) }
}

// WithLogger routes the module's debug output. Defaults to monitoring.Debugf.
func WithLogger(f func(format string, v ...interface{})) Option {
	return func(m *Module) { m.logf = f }
}

// NewModule returns a Module with an identity cached transform unless an
// option overrides it.
func NewModule(opts ...Option) *Module {
	m := &Module{
		transform: pose.IdentityTransform(),
		logf:      monitoring.Debugf,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Transform returns the cached transform.
func (m *Module) Transform() pose.RigidTransform {
	return m.transform
}

// Forward merges secondary into primary's frame using the given R and t.
func (m *Module) Forward(primary, secondary cloud.PointCloud, r pose.Matrix4, t pose.Vector4) cloud.PointCloud {
	out := cloud.Merge(primary, secondary, r, t)
	m.logf("merge: primary=%d secondary=%d merged=%d", len(primary), len(secondary), len(out))
	return out
}

// Execute is the single-cloud path: it maps c through the cached transform.
func (m *Module) Execute(c cloud.PointCloud) cloud.PointCloud {
	return cloud.Transform(c, m.transform.R, m.transform.T)
}

// MergeFrames derives a transform for every secondary relative to the
// primary pose and returns the primary cloud followed by each transformed
// secondary, in argument order.
func (m *Module) MergeFrames(primary Frame, secondaries ...Frame) cloud.PointCloud {
	clouds := make([]cloud.PointCloud, len(secondaries))
	transforms := make([]pose.RigidTransform, len(secondaries))
	for i, s := range secondaries {
		clouds[i] = s.Cloud
		transforms[i] = pose.Derive(primary.Pose, s.Pose)
	}

	// Lengths are paired above, so MergeAll cannot fail.
	out, _ := cloud.MergeAll(primary.Cloud, clouds, transforms)
	m.logf("merge frames: primary=%s vehicles=%d merged=%d", primary.ID, len(secondaries)+1, len(out))
	return out
}

// MergeFrames is a convenience wrapper around a default Module.
func MergeFrames(primary Frame, secondaries ...Frame) cloud.PointCloud {
	return NewModule().MergeFrames(primary, secondaries...)
}
