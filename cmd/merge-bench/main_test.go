package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/config"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/db"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
)

func writeFrame(t *testing.T, fsys *fsutil.MemoryFileSystem, dir, id string, c cloud.PointCloud, pose string) {
	t.Helper()
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "velodyne_2", id+".bin"), cloud.Encode(c), 0o644))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, "oxts", id+".txt"), []byte(pose), 0o644))
}

func TestParseRunFlags_Overrides(t *testing.T) {
	o, err := parseRunFlags([]string{"-data", "/data/gta", "-device", "2", "-iterations", "3"})
	require.NoError(t, err)

	cfg := config.EmptyHarnessConfig()
	o.applyOverrides(cfg)
	assert.Equal(t, "/data/gta", cfg.GetDataRoot())
	assert.Equal(t, 2, cfg.GetDeviceIndex())
	assert.Equal(t, 3, cfg.GetIterations())
	assert.Equal(t, "cloudmerge.db", cfg.GetDBPath())

	o, err = parseRunFlags(nil)
	require.NoError(t, err)
	cfg = config.EmptyHarnessConfig()
	o.applyOverrides(cfg)
	assert.Nil(t, cfg.DeviceIndex)
	assert.Nil(t, cfg.Iterations)
}

func TestRunBenchmark(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeFrame(t, fsys, "data", "000000", cloud.PointCloud{{0, 0, 0, 1}}, "0 0 0 0 0 0")
	writeFrame(t, fsys, "data/alt_perspective/0014850", "000000", cloud.PointCloud{{1, 0, 0, 1}}, "5 0 0 0 0 0")

	root, start, count, out := "data", 0, 2, "reports"
	cfg := &config.HarnessConfig{
		DataRoot:          &root,
		FrameStart:        &start,
		FrameCount:        &count,
		OutputDir:         &out,
		SecondaryVehicles: []string{"0014850"},
	}

	d, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	defer d.Close()
	store := db.NewRunStore(d)

	var stdout bytes.Buffer
	require.NoError(t, runBenchmark(context.Background(), cfg, fsys, store, &stdout))
	assert.Contains(t, stdout.String(), "Avg. merging time:")
	assert.Contains(t, stdout.String(), "1 skipped frames")

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].SampleCount)

	assert.True(t, fsys.Exists(filepath.Join("reports", runs[0].RunID+"_latency.png")))
	assert.True(t, fsys.Exists(filepath.Join("reports", runs[0].RunID+"_summary.html")))

	var listing bytes.Buffer
	require.NoError(t, listRuns(store, 10, &listing))
	assert.Contains(t, listing.String(), runs[0].RunID)
	assert.Contains(t, listing.String(), "    2: ")
}

func TestRunBenchmark_NoSamplesSkipsReports(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	root, count := "empty", 3
	cfg := &config.HarnessConfig{DataRoot: &root, FrameCount: &count}

	var stdout bytes.Buffer
	require.NoError(t, runBenchmark(context.Background(), cfg, fsys, nil, &stdout))
	assert.Contains(t, stdout.String(), "0 samples, 3 skipped frames")
	assert.False(t, fsys.Exists("bench-output"))
}

func TestRunBenchmark_AllFramesWalksDirectory(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	for _, id := range []string{"000003", "000007", "000010"} {
		writeFrame(t, fsys, "data", id, cloud.PointCloud{{0, 0, 0, 1}, {1, 1, 1, 1}}, "0 0 0 0 0 0")
	}
	writeFrame(t, fsys, "data/alt_perspective/0014850", "000007", cloud.PointCloud{{1, 0, 0, 1}}, "5 0 0 0 0 0")

	o, err := parseRunFlags([]string{"-all-frames", "-out", "reports"})
	require.NoError(t, err)
	root := "data"
	cfg := &config.HarnessConfig{DataRoot: &root, SecondaryVehicles: []string{"0014850"}}
	o.applyOverrides(cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.GetFrameCount())

	var stdout bytes.Buffer
	require.NoError(t, runBenchmark(context.Background(), cfg, fsys, nil, &stdout))
	assert.Contains(t, stdout.String(), "3 samples, 0 skipped frames")
	assert.Contains(t, stdout.String(), "1: ")
	assert.Contains(t, stdout.String(), "2: ")
}

func TestBenchFrames(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeFrame(t, fsys, "data", "000004", cloud.PointCloud{{0, 0, 0, 1}}, "0 0 0 0 0 0")
	writeFrame(t, fsys, "data", "000001", cloud.PointCloud{{0, 0, 0, 1}}, "0 0 0 0 0 0")

	root, zero, start, count := "data", 0, 5, 2
	cfg := &config.HarnessConfig{DataRoot: &root, FrameCount: &zero}
	loader := dataset.NewLoader(fsys, dataset.LayoutFromConfig(cfg))

	ids, err := benchFrames(cfg, loader)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001", "000004"}, ids)

	cfg.FrameStart, cfg.FrameCount = &start, &count
	ids, err = benchFrames(cfg, loader)
	require.NoError(t, err)
	assert.Equal(t, []string{"000005", "000006"}, ids)
}
