// Package bench times the merge pipeline over a dataset and summarises the
// latency per number of cooperating vehicles.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/timeutil"
)

// Sample is one timed merge of one scene.
type Sample struct {
	FrameID   string        `json:"frame_id"`
	Iteration int           `json:"iteration"`
	Vehicles  int           `json:"vehicles"`
	Points    int           `json:"points"`
	Merge     time.Duration `json:"merge_ns"`
	Execute   time.Duration `json:"execute_ns"`
}

// GroupStats summarises the samples that share a vehicle count. Latencies
// are in milliseconds; StdDev is the sample standard deviation.
type GroupStats struct {
	Vehicles int     `json:"vehicles"`
	Samples  int     `json:"samples"`
	Mean     float64 `json:"mean_ms"`
	StdDev   float64 `json:"stddev_ms"`
	Min      float64 `json:"min_ms"`
	Max      float64 `json:"max_ms"`
}

// Result is a complete benchmark run.
type Result struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	DeviceIndex int           `json:"device_index"`
	Skipped     []string      `json:"skipped,omitempty"`
	Samples     []Sample      `json:"samples"`
	// Groups holds two-cloud merge latency per vehicle count.
	Groups []GroupStats `json:"groups"`
	// Execute holds single-cloud execute latency over every sample.
	Execute GroupStats `json:"execute"`
}

// Runner drives the benchmark. Runs are sequential so timings are not
// disturbed by concurrent work.
type Runner struct {
	Loader      *dataset.Loader
	Module      *merge.Module
	FrameIDs    []string
	Iterations  int
	Warmup      int
	DeviceIndex int
	// Clock times each merge. Defaults to the wall clock.
	Clock timeutil.Clock
}

// NewRunner returns a Runner with one timed iteration per frame.
func NewRunner(loader *dataset.Loader, module *merge.Module, frameIDs []string) *Runner {
	return &Runner{
		Loader:     loader,
		Module:     module,
		FrameIDs:   frameIDs,
		Iterations: 1,
		Clock:      timeutil.RealClock{},
	}
}

// FrameRange returns count consecutive frame IDs starting at start.
func FrameRange(start, count int) []string {
	ids := make([]string, count)
	for i := range ids {
		ids[i] = dataset.FrameID(start + i)
	}
	return ids
}

// Run times every configured frame. Frames whose ego cloud is missing are
// skipped and listed in Result.Skipped; any other load error aborts the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", r.Iterations)
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now

	res := &Result{
		RunID:       uuid.New().String(),
		StartedAt:   now(),
		DeviceIndex: r.DeviceIndex,
	}
	monitoring.Logf("[bench] run %s: %d frames, %d iterations, device %d",
		res.RunID, len(r.FrameIDs), r.Iterations, r.DeviceIndex)

	for _, id := range r.FrameIDs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("benchmark cancelled at frame %s: %w", id, err)
		}

		scene, err := r.Loader.LoadScene(id)
		if errors.Is(err, fs.ErrNotExist) && !r.Loader.HasFrame(r.Loader.Layout.Root, id) {
			monitoring.Debugf("[bench] frame %s: no ego cloud, skipping", id)
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", id, err)
		}

		for i := 0; i < r.Warmup; i++ {
			r.Module.MergeFrames(scene.Primary, scene.Secondaries...)
		}
		exec, execCloud := r.executeTarget(scene)
		for i := 0; i < r.Iterations; i++ {
			res.Samples = append(res.Samples, r.timeScene(scene, exec, execCloud, i, now))
		}
	}

	res.Elapsed = now().Sub(res.StartedAt)
	res.Groups = Summarize(res.Samples)
	res.Execute = summarizeExecute(res.Samples)
	monitoring.Logf("[bench] run %s: %d samples, %d skipped, elapsed %s",
		res.RunID, len(res.Samples), len(res.Skipped), res.Elapsed)
	return res, nil
}

// executeTarget picks what the single-cloud Execute path is timed on. With a
// cooperating vehicle it is that vehicle's cloud through a module caching the
// transform into the ego frame; an ego-only scene uses the runner's module
// on the ego cloud.
func (r *Runner) executeTarget(scene dataset.Scene) (*merge.Module, cloud.PointCloud) {
	if len(scene.Secondaries) == 0 {
		return r.Module, scene.Primary.Cloud
	}
	first := scene.Secondaries[0]
	return merge.NewModule(merge.WithPoses(scene.Primary.Pose, first.Pose)), first.Cloud
}

func (r *Runner) timeScene(scene dataset.Scene, exec *merge.Module, execCloud cloud.PointCloud, iteration int, now func() time.Time) Sample {
	start := now()
	merged := r.Module.MergeFrames(scene.Primary, scene.Secondaries...)
	mergeDur := now().Sub(start)

	start = now()
	exec.Execute(execCloud)
	execDur := now().Sub(start)

	return Sample{
		FrameID:   scene.ID,
		Iteration: iteration,
		Vehicles:  scene.Vehicles(),
		Points:    len(merged),
		Merge:     mergeDur,
		Execute:   execDur,
	}
}

// Summarize groups merge latencies by vehicle count, ordered by count.
func Summarize(samples []Sample) []GroupStats {
	byVehicles := make(map[int][]float64)
	for _, s := range samples {
		byVehicles[s.Vehicles] = append(byVehicles[s.Vehicles], millis(s.Merge))
	}

	keys := make([]int, 0, len(byVehicles))
	for k := range byVehicles {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	groups := make([]GroupStats, 0, len(keys))
	for _, k := range keys {
		g := describe(byVehicles[k])
		g.Vehicles = k
		groups = append(groups, g)
	}
	return groups
}

func summarizeExecute(samples []Sample) GroupStats {
	xs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = millis(s.Execute)
	}
	return describe(xs)
}

func describe(xs []float64) GroupStats {
	g := GroupStats{Samples: len(xs)}
	if len(xs) == 0 {
		return g
	}
	g.Mean, g.StdDev = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		g.StdDev = 0
	}
	g.Min = floats.Min(xs)
	g.Max = floats.Max(xs)
	return g
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// WriteSummary prints the per-vehicle-count table.
func (r *Result) WriteSummary(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Run %s (device %d): %d samples, %d skipped frames\n",
		r.RunID, r.DeviceIndex, len(r.Samples), len(r.Skipped)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "Avg. merging time:"); err != nil {
		return err
	}
	for _, g := range r.Groups {
		if _, err := fmt.Fprintf(w, "%d: %.3f ms, stddev: %.3f ms, min: %.3f ms, max: %.3f ms, samples: %d\n",
			g.Vehicles, g.Mean, g.StdDev, g.Min, g.Max, g.Samples); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "execute: %.3f ms, stddev: %.3f ms, samples: %d\n",
		r.Execute.Mean, r.Execute.StdDev, r.Execute.Samples)
	return err
}
