// Package dataset loads LiDAR frames and their OXTS poses from a
// KITTI-style directory tree:
//
//	<root>/<points>/<frame>.bin
//	<root>/<poses>/<frame>.txt
//	<root>/<alt>/<vehicle>/<points>/<frame>.bin
//	<root>/<alt>/<vehicle>/<poses>/<frame>.txt
//
// The ego vehicle lives at the root; cooperating vehicles live under the
// alternate-perspective directory.
package dataset

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/config"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/pose"
)

const (
	cloudExt = ".bin"
	poseExt  = ".txt"
)

// Layout names the directories of a dataset.
type Layout struct {
	Root      string
	PointsDir string
	PoseDir   string
	AltDir    string
	Vehicles  []string
}

// LayoutFromConfig builds a Layout from harness configuration.
func LayoutFromConfig(cfg *config.HarnessConfig) Layout {
	return Layout{
		Root:      cfg.GetDataRoot(),
		PointsDir: cfg.GetPointsDir(),
		PoseDir:   cfg.GetPoseDir(),
		AltDir:    cfg.GetAltDir(),
		Vehicles:  cfg.GetSecondaryVehicles(),
	}
}

// FrameID formats a frame index the way the dataset names its files.
func FrameID(i int) string {
	return fmt.Sprintf("%06d", i)
}

// Scene is the ego frame plus every cooperating vehicle that recorded the
// same frame index.
type Scene struct {
	ID          string
	Primary     merge.Frame
	Secondaries []merge.Frame
}

// Vehicles is the number of vehicles contributing to the scene.
func (s Scene) Vehicles() int {
	return len(s.Secondaries) + 1
}

// Points is the total number of points across all frames of the scene.
func (s Scene) Points() int {
	n := len(s.Primary.Cloud)
	for _, f := range s.Secondaries {
		n += len(f.Cloud)
	}
	return n
}

// Loader reads frames through a FileSystem.
type Loader struct {
	FS     fsutil.FileSystem
	Layout Layout
	// Strict requires pose files to hold exactly six values. When false,
	// full OXTS rows are accepted and truncated to the pose fields.
	Strict bool
}

// NewLoader returns a strict loader over the given filesystem.
func NewLoader(fsys fsutil.FileSystem, layout Layout) *Loader {
	return &Loader{FS: fsys, Layout: layout, Strict: true}
}

// LoadCloud reads and decodes a point-cloud file.
func (l *Loader) LoadCloud(path string) (cloud.PointCloud, error) {
	data, err := l.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read point cloud %s: %w", path, err)
	}
	c, err := cloud.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadPose reads and parses a pose file.
func (l *Loader) LoadPose(path string) (pose.PoseRecord, error) {
	data, err := l.FS.ReadFile(path)
	if err != nil {
		return pose.PoseRecord{}, fmt.Errorf("failed to read pose %s: %w", path, err)
	}
	p, err := pose.ParseOXTS(bytes.NewReader(data), l.Strict)
	if err != nil {
		return pose.PoseRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadFrame reads the cloud and pose of frame id below dir.
func (l *Loader) LoadFrame(dir, id string) (merge.Frame, error) {
	c, err := l.LoadCloud(l.cloudPath(dir, id))
	if err != nil {
		return merge.Frame{}, err
	}
	p, err := l.LoadPose(l.posePath(dir, id))
	if err != nil {
		return merge.Frame{}, err
	}
	return merge.Frame{ID: id, Cloud: c, Pose: p}, nil
}

// HasFrame reports whether a cloud for frame id exists below dir.
func (l *Loader) HasFrame(dir, id string) bool {
	return l.FS.Exists(l.cloudPath(dir, id))
}

// LoadScene reads the ego frame id and every configured vehicle that has a
// cloud for it. Vehicles without the frame are skipped; a vehicle that has
// the cloud but a broken pose is an error.
func (l *Loader) LoadScene(id string) (Scene, error) {
	primary, err := l.LoadFrame(l.Layout.Root, id)
	if err != nil {
		return Scene{}, err
	}

	scene := Scene{ID: id, Primary: primary}
	for _, v := range l.Layout.Vehicles {
		dir := filepath.Join(l.Layout.Root, l.Layout.AltDir, v)
		if !l.HasFrame(dir, id) {
			continue
		}
		f, err := l.LoadFrame(dir, id)
		if err != nil {
			return Scene{}, fmt.Errorf("vehicle %s: %w", v, err)
		}
		f.ID = v
		scene.Secondaries = append(scene.Secondaries, f)
	}
	return scene, nil
}

// ListFrames returns the sorted frame IDs available for the ego vehicle.
func (l *Loader) ListFrames() ([]string, error) {
	dir := filepath.Join(l.Layout.Root, l.Layout.PointsDir)
	names, err := l.FS.ListFiles(dir, cloudExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames in %s: %w", dir, err)
	}
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = strings.TrimSuffix(n, cloudExt)
	}
	return ids, nil
}

func (l *Loader) cloudPath(dir, id string) string {
	return filepath.Join(dir, l.Layout.PointsDir, id+cloudExt)
}

func (l *Loader) posePath(dir, id string) string {
	return filepath.Join(dir, l.Layout.PoseDir, id+poseExt)
}
