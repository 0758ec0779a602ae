// Package scan generates time-ordered boresight orientations for a spinning,
// precessing survey telescope. The motion model is two nested cones: the
// boresight opens from the spin axis by the spin angle and rotates at the
// spin period, while the spin axis opens from a precession axis by the
// precession angle and rotates at the precession period. The precession axis
// itself is supplied per sample, either from the constant-rate slew generator
// in this package or from an ephemeris.
package scan

import (
	"errors"
	"fmt"
	"math"
)

// Coordinate frame tags recorded with generated pointing. The generator is
// frame-agnostic; the tag travels with the configuration so downstream
// consumers can rotate into the requested frame and label persisted maps.
const (
	CoordEcliptic   = "E"
	CoordEquatorial = "C"
	CoordGalactic   = "G"
)

// ErrInvalidConfig wraps all construction-time configuration failures.
var ErrInvalidConfig = errors.New("invalid scan configuration")

// ErrPrecessionLength reports a precession axis sequence whose length does
// not match the observation's sample range. Raised before any boresight
// sample is computed.
var ErrPrecessionLength = errors.New("precession sequence length mismatch")

// Config holds the scan strategy parameters for one observation. Values are
// read-only after Validate; the generator never mutates them.
type Config struct {
	// SampleRate is the detector sampling rate in Hz.
	SampleRate float64

	// SpinPeriodMin is the spin revolution period in minutes.
	SpinPeriodMin float64
	// SpinAngleDeg is the boresight opening angle from the spin axis in
	// degrees.
	SpinAngleDeg float64

	// PrecPeriodMin is the precession revolution period in minutes.
	PrecPeriodMin float64
	// PrecAngleDeg is the spin axis opening angle from the precession axis
	// in degrees.
	PrecAngleDeg float64

	// HWPRPM is the continuous half-wave-plate rotation rate in revolutions
	// per minute. Zero disables continuous rotation. Negative reverses it.
	HWPRPM float64
	// HWPStepDeg and HWPStepTimeMin describe a stepped half-wave plate that
	// advances by HWPStepDeg degrees every HWPStepTimeMin minutes. Stepped
	// and continuous operation are mutually exclusive.
	HWPStepDeg     float64
	HWPStepTimeMin float64

	// Coord tags the coordinate frame of the generated pointing. Empty is
	// treated as CoordEcliptic.
	Coord string

	// FirstTime is the mission elapsed time in seconds of global sample 0.
	// It offsets every sample timestamp and therefore every phase.
	FirstTime float64
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfig describing the first problem found.
func (c Config) Validate() error {
	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive and finite, got %g", ErrInvalidConfig, c.SampleRate)
	}
	if !(c.SpinPeriodMin > 0) || math.IsInf(c.SpinPeriodMin, 0) {
		return fmt.Errorf("%w: spin period must be positive and finite, got %g min", ErrInvalidConfig, c.SpinPeriodMin)
	}
	if !(c.PrecPeriodMin > 0) || math.IsInf(c.PrecPeriodMin, 0) {
		return fmt.Errorf("%w: precession period must be positive and finite, got %g min", ErrInvalidConfig, c.PrecPeriodMin)
	}
	if !(c.SpinAngleDeg >= 0 && c.SpinAngleDeg <= 180) {
		return fmt.Errorf("%w: spin angle must be in [0, 180] degrees, got %g", ErrInvalidConfig, c.SpinAngleDeg)
	}
	if !(c.PrecAngleDeg >= 0 && c.PrecAngleDeg <= 180) {
		return fmt.Errorf("%w: precession angle must be in [0, 180] degrees, got %g", ErrInvalidConfig, c.PrecAngleDeg)
	}
	if math.IsNaN(c.HWPRPM) || math.IsInf(c.HWPRPM, 0) {
		return fmt.Errorf("%w: half-wave-plate rate must be finite, got %g rpm", ErrInvalidConfig, c.HWPRPM)
	}
	if c.HWPRPM != 0 && c.HWPStepDeg != 0 {
		return fmt.Errorf("%w: continuous and stepped half-wave plate are mutually exclusive", ErrInvalidConfig)
	}
	if c.HWPStepDeg != 0 && !(c.HWPStepTimeMin > 0) {
		return fmt.Errorf("%w: half-wave-plate step time must be positive, got %g min", ErrInvalidConfig, c.HWPStepTimeMin)
	}
	if math.IsNaN(c.HWPStepDeg) || math.IsInf(c.HWPStepDeg, 0) {
		return fmt.Errorf("%w: half-wave-plate step must be finite, got %g deg", ErrInvalidConfig, c.HWPStepDeg)
	}
	if math.IsNaN(c.FirstTime) || math.IsInf(c.FirstTime, 0) {
		return fmt.Errorf("%w: first sample time must be finite, got %g s", ErrInvalidConfig, c.FirstTime)
	}
	switch c.Coord {
	case "", CoordEcliptic, CoordEquatorial, CoordGalactic:
	default:
		return fmt.Errorf("%w: unknown coordinate frame %q", ErrInvalidConfig, c.Coord)
	}
	return nil
}

// SampleRange is the half-open interval [First, First+Count) of global
// sample indices owned by one worker or observation.
type SampleRange struct {
	First int64
	Count int64
}

// Validate rejects negative starts and counts.
func (r SampleRange) Validate() error {
	if r.First < 0 {
		return fmt.Errorf("%w: first sample must be non-negative, got %d", ErrInvalidConfig, r.First)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: sample count must be non-negative, got %d", ErrInvalidConfig, r.Count)
	}
	return nil
}

// End returns the exclusive upper bound of the range.
func (r SampleRange) End() int64 { return r.First + r.Count }

// Split partitions the range into n contiguous, near-equal pieces covering
// it exactly. Earlier pieces get the remainder samples. n must be positive.
func (r SampleRange) Split(n int) []SampleRange {
	if n < 1 {
		n = 1
	}
	out := make([]SampleRange, n)
	base := r.Count / int64(n)
	rem := r.Count % int64(n)
	first := r.First
	for i := 0; i < n; i++ {
		count := base
		if int64(i) < rem {
			count++
		}
		out[i] = SampleRange{First: first, Count: count}
		first += count
	}
	return out
}
