// Package focalplane describes the detector layout of the instrument: one
// fixed offset quaternion per detector, rotating the boresight frame onto
// the detector's line of sight and polarization orientation. Layouts come
// from YAML files or from the synthetic hex-pack generator.
package focalplane

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/westphae/quaternion"
	"gopkg.in/yaml.v3"

	"github.com/star/scanmap/internal/quat"
)

// normTolerance bounds how far a configured offset may be from unit norm
// before the entry is considered malformed.
const normTolerance = 1e-6

// Detector is one detector's fixed offset from the boresight.
type Detector struct {
	Name string
	Quat quaternion.Quaternion
}

// fileFormat mirrors the YAML layout:
//
//	detectors:
//	  - name: d000A
//	    quat: [w, x, y, z]
type fileFormat struct {
	Detectors []fileDetector `yaml:"detectors"`
}

type fileDetector struct {
	Name string     `yaml:"name"`
	Quat [4]float64 `yaml:"quat"`
}

// Parse reads a YAML focal plane from r. Malformed entries (missing name,
// duplicate name, non-unit quaternion) are skipped with a warning; a layout
// with no usable detectors is an error.
func Parse(r io.Reader, logger *slog.Logger) ([]Detector, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading focal plane: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing focal plane: %w", err)
	}

	seen := make(map[string]bool, len(f.Detectors))
	dets := make([]Detector, 0, len(f.Detectors))
	for i, fd := range f.Detectors {
		if fd.Name == "" {
			logger.Warn("skipping detector without name", "index", i)
			continue
		}
		if seen[fd.Name] {
			logger.Warn("skipping duplicate detector", "name", fd.Name)
			continue
		}
		q := quaternion.Quaternion{W: fd.Quat[0], X: fd.Quat[1], Y: fd.Quat[2], Z: fd.Quat[3]}
		if n := quat.Norm(q); math.IsNaN(n) || math.Abs(n-1) > normTolerance {
			logger.Warn("skipping detector with non-unit offset", "name", fd.Name, "norm", quat.Norm(q))
			continue
		}
		seen[fd.Name] = true
		dets = append(dets, Detector{Name: fd.Name, Quat: q})
	}
	if len(dets) == 0 {
		return nil, fmt.Errorf("focal plane contains no usable detectors")
	}
	return dets, nil
}

// LoadFile parses the focal plane YAML at path.
func LoadFile(path string, logger *slog.Logger) ([]Detector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening focal plane: %w", err)
	}
	defer f.Close()
	dets, err := Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dets, nil
}

// Synthetic builds a hex-packed focal plane of n detectors inside a field
// of view of fovDeg degrees. Detector positions fill the center and then
// concentric hexagonal rings; each position carries an orthogonal A/B
// polarization pair, so detectors come out in pairs until n is reached.
// Output is deterministic in n and fovDeg.
func Synthetic(n int, fovDeg float64) ([]Detector, error) {
	if n < 1 {
		return nil, fmt.Errorf("detector count must be positive, got %d", n)
	}
	if !(fovDeg > 0 && fovDeg < 180) {
		return nil, fmt.Errorf("field of view must be in (0, 180) degrees, got %g", fovDeg)
	}

	positions := (n + 1) / 2
	// Hexagonal rings: 1 center position plus 6k per ring k. Find the ring
	// count covering all positions.
	rings := 0
	for 1+3*rings*(rings+1) < positions {
		rings++
	}
	radius := fovDeg / 2 * math.Pi / 180
	spacing := radius
	if rings > 0 {
		spacing = radius / float64(rings)
	}

	dets := make([]Detector, 0, n)
	pos := 0
	add := func(theta, phi float64) {
		for _, pol := range []struct {
			suffix string
			psi    float64
		}{{"A", 0}, {"B", math.Pi / 2}} {
			if len(dets) == n {
				return
			}
			dets = append(dets, Detector{
				Name: fmt.Sprintf("d%03d%s", pos, pol.suffix),
				Quat: quat.FromIsoAngles(theta, phi, pol.psi),
			})
		}
		pos++
	}

	add(0, 0)
	for k := 1; k <= rings && len(dets) < n; k++ {
		count := 6 * k
		for j := 0; j < count && len(dets) < n; j++ {
			add(float64(k)*spacing, 2*math.Pi*float64(j)/float64(count))
		}
	}
	return dets, nil
}
