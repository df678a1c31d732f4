package bench

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/pose"
	"github.com/banshee-data/cloudmerge/internal/timeutil"
)

func fakeClock(step time.Duration) *timeutil.StepClock {
	return timeutil.NewStepClock(time.Unix(1700000000, 0), step)
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func writeFrame(t *testing.T, fsys fsutil.FileSystem, l dataset.Layout, dir, id string, n int, p pose.PoseRecord) {
	t.Helper()
	c := make(cloud.PointCloud, n)
	for i := range c {
		c[i] = cloud.Point{float32(i), 1, 2, 0.5}
	}
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, l.PointsDir, id+".bin"), cloud.Encode(c), 0644))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, l.PoseDir, id+".txt"), []byte(p.String()), 0644))
}

func testDataset(t *testing.T) *dataset.Loader {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	l := dataset.Layout{
		Root:      "/gta",
		PointsDir: "velodyne_2",
		PoseDir:   "oxts",
		AltDir:    "alt_perspective",
		Vehicles:  []string{"a", "b"},
	}

	writeFrame(t, fsys, l, l.Root, "000000", 4, pose.PoseRecord{})
	writeFrame(t, fsys, l, l.Root, "000001", 3, pose.PoseRecord{1, 1, 0, 0, 0, 0.2})
	writeFrame(t, fsys, l, filepath.Join(l.Root, l.AltDir, "a"), "000001", 5, pose.PoseRecord{2, 1, 0, 0, 0, 0.4})
	writeFrame(t, fsys, l, filepath.Join(l.Root, l.AltDir, "b"), "000001", 2, pose.PoseRecord{0, 3, 0, 0, 0, 1.0})
	return dataset.NewLoader(fsys, l)
}

func TestRunner_Run(t *testing.T) {
	muteLogs(t)

	r := NewRunner(testDataset(t), merge.NewModule(), FrameRange(0, 3))
	r.Iterations = 2
	r.Warmup = 1
	r.DeviceIndex = 1
	r.Clock = fakeClock(time.Millisecond)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.DeviceIndex)
	assert.Equal(t, []string{"000002"}, res.Skipped)
	require.Len(t, res.Samples, 4)

	assert.Equal(t, "000000", res.Samples[0].FrameID)
	assert.Equal(t, 1, res.Samples[0].Vehicles)
	assert.Equal(t, 4, res.Samples[0].Points)
	assert.Equal(t, 1, res.Samples[1].Iteration)
	assert.Equal(t, 3, res.Samples[2].Vehicles)
	assert.Equal(t, 10, res.Samples[2].Points)
	assert.Equal(t, time.Millisecond, res.Samples[2].Merge)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, GroupStats{Vehicles: 1, Samples: 2, Mean: 1, StdDev: 0, Min: 1, Max: 1}, res.Groups[0])
	assert.Equal(t, 3, res.Groups[1].Vehicles)
	assert.Equal(t, 4, res.Execute.Samples)
	assert.Equal(t, 1.0, res.Execute.Mean)
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestRunner_ExecuteTarget(t *testing.T) {
	loader := testDataset(t)
	r := NewRunner(loader, merge.NewModule(), nil)

	egoOnly, err := loader.LoadScene("000000")
	require.NoError(t, err)
	m, c := r.executeTarget(egoOnly)
	assert.Same(t, r.Module, m)
	assert.Equal(t, egoOnly.Primary.Cloud, c)

	scene, err := loader.LoadScene("000001")
	require.NoError(t, err)
	require.NotEmpty(t, scene.Secondaries)
	m, c = r.executeTarget(scene)
	assert.Equal(t, pose.Derive(scene.Primary.Pose, scene.Secondaries[0].Pose), m.Transform())
	assert.NotEqual(t, pose.IdentityTransform(), m.Transform())
	assert.Equal(t, scene.Secondaries[0].Cloud, c)
}

func TestRunner_Cancelled(t *testing.T) {
	muteLogs(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(testDataset(t), merge.NewModule(), FrameRange(0, 2))
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_InvalidIterations(t *testing.T) {
	r := NewRunner(testDataset(t), merge.NewModule(), nil)
	r.Iterations = 0
	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

func TestRunner_BrokenSecondaryAborts(t *testing.T) {
	muteLogs(t)

	loader := testDataset(t)
	require.NoError(t, loader.FS.WriteFile("/gta/alt_perspective/a/oxts/000001.txt", []byte("1 2"), 0644))

	_, err := NewRunner(loader, merge.NewModule(), FrameRange(1, 1)).Run(context.Background())
	assert.ErrorIs(t, err, pose.ErrMalformedPose)
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{Vehicles: 2, Merge: time.Millisecond},
		{Vehicles: 1, Merge: 5 * time.Millisecond},
		{Vehicles: 2, Merge: 3 * time.Millisecond},
	}

	groups := Summarize(samples)
	require.Len(t, groups, 2)

	assert.Equal(t, 1, groups[0].Vehicles)
	assert.Equal(t, 5.0, groups[0].Mean)
	assert.Equal(t, 0.0, groups[0].StdDev)

	assert.Equal(t, 2, groups[1].Vehicles)
	assert.Equal(t, 2, groups[1].Samples)
	assert.InDelta(t, 2.0, groups[1].Mean, 1e-12)
	assert.InDelta(t, math.Sqrt2, groups[1].StdDev, 1e-12)
	assert.Equal(t, 1.0, groups[1].Min)
	assert.Equal(t, 3.0, groups[1].Max)

	assert.Empty(t, Summarize(nil))
}

func TestResult_WriteSummary(t *testing.T) {
	res := &Result{
		RunID:   "run-1",
		Samples: []Sample{{}},
		Groups:  []GroupStats{{Vehicles: 2, Samples: 1, Mean: 1.5}},
		Execute: GroupStats{Samples: 1, Mean: 0.25},
	}
	var buf bytes.Buffer
	require.NoError(t, res.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "Run run-1")
	assert.Contains(t, buf.String(), "2: 1.500 ms")
	assert.Contains(t, buf.String(), "execute: 0.250 ms")
}

func TestFrameRange(t *testing.T) {
	assert.Equal(t, []string{"000218", "000219"}, FrameRange(218, 2))
	assert.Empty(t, FrameRange(0, 0))
}
