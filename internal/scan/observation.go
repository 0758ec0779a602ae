package scan

import (
	"fmt"
	"math"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
)

// Observation owns the boresight quaternion sequence for one contiguous
// sample range. Construction is two-phase: NewObservation validates and
// stores the scan parameters, and a later SetPrecession (or
// SetFixedPrecession) call injects the precession axis and generates the
// pointing. The split allows a coordinator to compute axis sequences
// centrally and hand them to workers that each own a disjoint range.
type Observation struct {
	cfg   Config
	rng   SampleRange
	bore  []quaternion.Quaternion
	hwp   []float64
	ready bool
}

// NewObservation validates cfg and rng and returns an observation with no
// pointing generated yet.
func NewObservation(cfg Config, rng SampleRange) (*Observation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &Observation{cfg: cfg, rng: rng}, nil
}

// DefaultPrecessionAxis is the axis used when no precession sequence is
// injected: a quarter turn about y, placing the precession axis along +x in
// the coordinate frame.
func DefaultPrecessionAxis() quaternion.Quaternion {
	return quat.YRot(math.Pi / 2)
}

// SetPrecession injects the per-sample precession axis orientations and
// generates the boresight and half-wave-plate sequences. qs must have
// exactly Range().Count entries; the length is checked before any sample is
// computed and a mismatch returns ErrPrecessionLength. A nil qs uses
// DefaultPrecessionAxis for every sample. Calling it again regenerates the
// pointing from the new axis sequence.
func (o *Observation) SetPrecession(qs []quaternion.Quaternion) error {
	if qs == nil {
		return o.SetFixedPrecession(DefaultPrecessionAxis())
	}
	if int64(len(qs)) != o.rng.Count {
		return fmt.Errorf("%w: got %d precession samples for %d local samples",
			ErrPrecessionLength, len(qs), o.rng.Count)
	}
	o.generate(func(i int) quaternion.Quaternion { return qs[i] })
	return nil
}

// SetFixedPrecession generates pointing with the same precession axis
// orientation at every sample.
func (o *Observation) SetFixedPrecession(q quaternion.Quaternion) error {
	o.generate(func(int) quaternion.Quaternion { return q })
	return nil
}

// generate fills the boresight and half-wave-plate sequences. Sample i sits
// at t = (First+i)/SampleRate + FirstTime seconds. The boresight is the spin
// cone nested inside the precession cone:
//
//	bore(i) = axis(i) * R(z, precPhase) * R(x, precAngle) * R(z, spinPhase) * R(x, spinAngle)
//
// renormalized after composition.
func (o *Observation) generate(axisAt func(int) quaternion.Quaternion) {
	n := int(o.rng.Count)
	spinRate := 1 / (60 * o.cfg.SpinPeriodMin)
	precRate := 1 / (60 * o.cfg.PrecPeriodMin)
	spinOpen := quat.XRot(o.cfg.SpinAngleDeg * math.Pi / 180)
	precOpen := quat.XRot(o.cfg.PrecAngleDeg * math.Pi / 180)

	o.bore = make([]quaternion.Quaternion, n)
	for i := 0; i < n; i++ {
		t := o.SampleTime(i)
		spinPhase := 2 * math.Pi * frac(t*spinRate)
		precPhase := 2 * math.Pi * frac(t*precRate)
		q := quaternion.Prod(axisAt(i), quat.ZRot(precPhase), precOpen, quat.ZRot(spinPhase), spinOpen)
		o.bore[i] = q.Unit()
	}

	o.generateHWP()
	o.ready = true
}

// generateHWP fills the half-wave-plate angle sequence in radians, wrapped
// to [0, 2pi). With neither continuous nor stepped rotation configured the
// sequence stays nil, meaning zero angle everywhere.
func (o *Observation) generateHWP() {
	if o.cfg.HWPRPM == 0 && o.cfg.HWPStepDeg == 0 {
		o.hwp = nil
		return
	}
	n := int(o.rng.Count)
	o.hwp = make([]float64, n)
	if o.cfg.HWPRPM != 0 {
		rate := o.cfg.HWPRPM * 2 * math.Pi / 60
		for i := 0; i < n; i++ {
			o.hwp[i] = wrapTwoPi(rate * o.SampleTime(i))
		}
		return
	}
	step := o.cfg.HWPStepDeg * math.Pi / 180
	dwell := o.cfg.HWPStepTimeMin * 60
	for i := 0; i < n; i++ {
		steps := math.Floor(o.SampleTime(i) / dwell)
		o.hwp[i] = wrapTwoPi(step * steps)
	}
}

// SampleTime returns the timestamp in seconds of local sample i.
func (o *Observation) SampleTime(i int) float64 {
	return float64(o.rng.First+int64(i))/o.cfg.SampleRate + o.cfg.FirstTime
}

// Boresight returns the generated boresight sequence, nil until a
// SetPrecession call succeeds. The slice is owned by the observation;
// callers must not modify it.
func (o *Observation) Boresight() []quaternion.Quaternion { return o.bore }

// HWPAngles returns the generated half-wave-plate angles in radians, nil
// when the plate is disabled or pointing has not been generated.
func (o *Observation) HWPAngles() []float64 { return o.hwp }

// Ready reports whether pointing has been generated.
func (o *Observation) Ready() bool { return o.ready }

// Range returns the sample range this observation owns.
func (o *Observation) Range() SampleRange { return o.rng }

// Config returns the scan configuration.
func (o *Observation) Config() Config { return o.cfg }

// frac returns the fractional part of x in [0, 1), correct for negative x.
func frac(x float64) float64 { return x - math.Floor(x) }

// wrapTwoPi wraps an angle in radians to [0, 2pi). Rounding in the negative
// branch can land exactly on 2pi, which is folded back to zero.
func wrapTwoPi(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}
