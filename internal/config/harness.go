package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the checked-in benchmark defaults.
const DefaultConfigPath = "config/bench.defaults.json"

// DefaultSecondaryVehicles are the alternate-perspective vehicle IDs of the
// GTA merge dataset.
var DefaultSecondaryVehicles = []string{
	"0014850", "0023554", "0024066", "0025858", "0030466",
	"0032002", "0036610", "0113727", "0296223", "0413513",
}

// HarnessConfig configures the merge tools. Unset fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type HarnessConfig struct {
	// Dataset layout
	DataRoot          *string  `json:"data_root,omitempty"`
	PointsDir         *string  `json:"points_dir,omitempty"`
	PoseDir           *string  `json:"pose_dir,omitempty"`
	AltDir            *string  `json:"alt_dir,omitempty"`
	SecondaryVehicles []string `json:"secondary_vehicles,omitempty"`
	StrictPoses       *bool    `json:"strict_poses,omitempty"`

	// Benchmark params
	FrameStart *int    `json:"frame_start,omitempty"`
	FrameCount *int    `json:"frame_count,omitempty"` // 0 benchmarks every frame on disk
	Iterations *int    `json:"iterations,omitempty"`
	Warmup     *int    `json:"warmup,omitempty"`
	RunTimeout *string `json:"run_timeout,omitempty"` // duration string like "10m"

	// DeviceIndex selects the compute device. It is passed explicitly to
	// the harness rather than read from the process environment.
	DeviceIndex *int `json:"device_index,omitempty"`

	// Outputs
	DBPath     *string `json:"db_path,omitempty"`
	OutputDir  *string `json:"output_dir,omitempty"`
	ListenAddr *string `json:"listen_addr,omitempty"`
}

// EmptyHarnessConfig returns a HarnessConfig with every field unset.
func EmptyHarnessConfig() *HarnessConfig {
	return &HarnessConfig{}
}

// LoadHarnessConfig loads a HarnessConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadHarnessConfig(path string) (*HarnessConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyHarnessConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *HarnessConfig) Validate() error {
	if c.FrameStart != nil && *c.FrameStart < 0 {
		return fmt.Errorf("frame_start must be non-negative, got %d", *c.FrameStart)
	}
	if c.FrameCount != nil && *c.FrameCount < 0 {
		return fmt.Errorf("frame_count must be non-negative, got %d", *c.FrameCount)
	}
	if c.Iterations != nil && *c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", *c.Iterations)
	}
	if c.Warmup != nil && *c.Warmup < 0 {
		return fmt.Errorf("warmup must be non-negative, got %d", *c.Warmup)
	}
	if c.DeviceIndex != nil && *c.DeviceIndex < 0 {
		return fmt.Errorf("device_index must be non-negative, got %d", *c.DeviceIndex)
	}
	if c.RunTimeout != nil && *c.RunTimeout != "" {
		if _, err := time.ParseDuration(*c.RunTimeout); err != nil {
			return fmt.Errorf("invalid run_timeout '%s': %w", *c.RunTimeout, err)
		}
	}
	for i, v := range c.SecondaryVehicles {
		if v == "" || filepath.Base(v) != v {
			return fmt.Errorf("secondary_vehicles[%d] must be a plain directory name, got %q", i, v)
		}
	}
	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetDataRoot returns the dataset root or the default.
func (c *HarnessConfig) GetDataRoot() string { return stringOr(c.DataRoot, "data") }

// GetPointsDir returns the point-cloud subdirectory name or the default.
func (c *HarnessConfig) GetPointsDir() string { return stringOr(c.PointsDir, "velodyne_2") }

// GetPoseDir returns the pose subdirectory name or the default.
func (c *HarnessConfig) GetPoseDir() string { return stringOr(c.PoseDir, "oxts") }

// GetAltDir returns the alternate-perspective directory name or the default.
func (c *HarnessConfig) GetAltDir() string { return stringOr(c.AltDir, "alt_perspective") }

// GetSecondaryVehicles returns the configured vehicles or the GTA defaults.
func (c *HarnessConfig) GetSecondaryVehicles() []string {
	if len(c.SecondaryVehicles) == 0 {
		return append([]string(nil), DefaultSecondaryVehicles...)
	}
	return c.SecondaryVehicles
}

// GetStrictPoses reports whether pose files must hold exactly six values.
func (c *HarnessConfig) GetStrictPoses() bool {
	if c.StrictPoses == nil {
		return true
	}
	return *c.StrictPoses
}

// GetFrameStart returns the first frame index or the default.
func (c *HarnessConfig) GetFrameStart() int { return intOr(c.FrameStart, 0) }

// GetFrameCount returns the number of frames or the default.
func (c *HarnessConfig) GetFrameCount() int { return intOr(c.FrameCount, 220) }

// GetIterations returns the timed repetitions per frame or the default.
func (c *HarnessConfig) GetIterations() int { return intOr(c.Iterations, 1) }

// GetWarmup returns the discarded repetitions per frame or the default.
func (c *HarnessConfig) GetWarmup() int { return intOr(c.Warmup, 0) }

// GetDeviceIndex returns the compute device index or the default.
func (c *HarnessConfig) GetDeviceIndex() int { return intOr(c.DeviceIndex, 0) }

// GetRunTimeout returns the overall run timeout; zero means none.
func (c *HarnessConfig) GetRunTimeout() time.Duration {
	if c.RunTimeout == nil || *c.RunTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.RunTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetDBPath returns the SQLite path or the default.
func (c *HarnessConfig) GetDBPath() string { return stringOr(c.DBPath, "cloudmerge.db") }

// GetOutputDir returns the report directory or the default.
func (c *HarnessConfig) GetOutputDir() string { return stringOr(c.OutputDir, "bench-output") }

// GetListenAddr returns the gRPC listen address or the default.
func (c *HarnessConfig) GetListenAddr() string { return stringOr(c.ListenAddr, ":50061") }
