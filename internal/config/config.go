// Package config loads scan run configuration from YAML files.
//
// A configuration file describes one simulated run end to end: the scan
// strategy, the observation schedule, the focal plane, the output map
// geometry, and any sky targets to report crossings for. Every field is
// optional; missing fields keep the defaults from Default.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/westphae/quaternion"
	"gopkg.in/yaml.v3"

	"github.com/star/scanmap/internal/passes"
	"github.com/star/scanmap/internal/scan"
)

// ScanSection mirrors scan.Config in file-friendly units.
type ScanSection struct {
	SampleRateHz   float64 `yaml:"sample_rate_hz"`
	SpinPeriodMin  float64 `yaml:"spin_period_min"`
	SpinAngleDeg   float64 `yaml:"spin_angle_deg"`
	PrecPeriodMin  float64 `yaml:"prec_period_min"`
	PrecAngleDeg   float64 `yaml:"prec_angle_deg"`
	HWPRPM         float64 `yaml:"hwp_rpm"`
	HWPStepDeg     float64 `yaml:"hwp_step_deg"`
	HWPStepTimeMin float64 `yaml:"hwp_step_time_min"`
	Coord          string  `yaml:"coord"`
	FirstTimeS     float64 `yaml:"first_time_s"`
}

// ToScan converts the section to the generator's config type.
func (s ScanSection) ToScan() scan.Config {
	return scan.Config{
		SampleRate:     s.SampleRateHz,
		SpinPeriodMin:  s.SpinPeriodMin,
		SpinAngleDeg:   s.SpinAngleDeg,
		PrecPeriodMin:  s.PrecPeriodMin,
		PrecAngleDeg:   s.PrecAngleDeg,
		HWPRPM:         s.HWPRPM,
		HWPStepDeg:     s.HWPStepDeg,
		HWPStepTimeMin: s.HWPStepTimeMin,
		Coord:          s.Coord,
		FirstTime:      s.FirstTimeS,
	}
}

// ScheduleSection describes a contiguous block of equal-length
// observations.
type ScheduleSection struct {
	Observations          int   `yaml:"observations"`
	SamplesPerObservation int64 `yaml:"samples_per_observation"`
	FirstSample           int64 `yaml:"first_sample"`
}

// Ranges expands the schedule into per-observation sample ranges.
func (s ScheduleSection) Ranges() []scan.SampleRange {
	if s.Observations <= 0 {
		return nil
	}
	ranges := make([]scan.SampleRange, s.Observations)
	for i := range ranges {
		ranges[i] = scan.SampleRange{
			First: s.FirstSample + int64(i)*s.SamplesPerObservation,
			Count: s.SamplesPerObservation,
		}
	}
	return ranges
}

// AxisSection selects how the precession axis moves during the run.
type AxisSection struct {
	Source        string    `yaml:"source"`
	SlewDegPerDay float64   `yaml:"slew_deg_per_day"`
	FixedQuat     []float64 `yaml:"fixed_quat"`
	Epoch         time.Time `yaml:"epoch"`
}

// FixedQuaternion converts the fixed_quat list to a quaternion.
func (a AxisSection) FixedQuaternion() (quaternion.Quaternion, error) {
	if len(a.FixedQuat) != 4 {
		return quaternion.Quaternion{}, fmt.Errorf("fixed_quat needs 4 components [w x y z], got %d", len(a.FixedQuat))
	}
	return quaternion.Quaternion{W: a.FixedQuat[0], X: a.FixedQuat[1], Y: a.FixedQuat[2], Z: a.FixedQuat[3]}, nil
}

// FocalPlaneSection points at a detector layout file, or asks for a
// synthetic layout when File is empty.
type FocalPlaneSection struct {
	File               string  `yaml:"file"`
	SyntheticDetectors int     `yaml:"synthetic_detectors"`
	SyntheticFOVDeg    float64 `yaml:"synthetic_fov_deg"`
}

// MapSection controls output map geometry and retention.
type MapSection struct {
	Rings      int    `yaml:"rings"`
	SubmapSize int64  `yaml:"submap_size"`
	OutputDir  string `yaml:"output_dir"`
	Keep       int    `yaml:"keep"`
}

// MonitorSection configures the optional metrics/health listener. An
// empty address disables it.
type MonitorSection struct {
	Addr string `yaml:"addr"`
}

// Config is the root of a run configuration file.
type Config struct {
	Scan       ScanSection       `yaml:"scan"`
	Schedule   ScheduleSection   `yaml:"schedule"`
	Workers    int               `yaml:"workers"`
	Axis       AxisSection       `yaml:"axis"`
	FocalPlane FocalPlaneSection `yaml:"focalplane"`
	Map        MapSection        `yaml:"map"`
	Monitor    MonitorSection    `yaml:"monitor"`
	Targets    []passes.Target   `yaml:"targets"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Scan: ScanSection{
			SampleRateHz:  10,
			SpinPeriodMin: 10,
			SpinAngleDeg:  30,
			PrecPeriodMin: 50,
			PrecAngleDeg:  65,
			Coord:         scan.CoordEcliptic,
		},
		Schedule: ScheduleSection{
			Observations:          1,
			SamplesPerObservation: 864000,
		},
		Workers: runtime.NumCPU(),
		Axis: AxisSection{
			Source:        "default",
			SlewDegPerDay: 360.0 / 365.25,
		},
		FocalPlane: FocalPlaneSection{
			SyntheticDetectors: 2,
			SyntheticFOVDeg:    10,
		},
		Map: MapSection{
			Rings:     64,
			OutputDir: "maps",
			Keep:      5,
		},
	}
}

// LoadFile reads a YAML run configuration from path. Fields absent from
// the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load run config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse run config: %w", err)
	}
	return &cfg, nil
}
