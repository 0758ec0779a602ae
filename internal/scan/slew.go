package scan

import (
	"fmt"
	"math"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
)

// SlewAxis returns one precession axis orientation per sample in rng: a pure
// rotation about the coordinate frame z axis whose angle grows at degPerDay
// degrees per day of elapsed time, wrapped modulo a full revolution. Sample
// i is at elapsed time (rng.First+i)/sampleRate seconds, so disjoint ranges
// generated separately line up exactly with one long range.
//
// A negative degPerDay slews the opposite way. Count zero yields an empty
// sequence. The output depends only on the arguments; identical calls return
// bit-identical sequences.
func SlewAxis(rng SampleRange, sampleRate, degPerDay float64) ([]quaternion.Quaternion, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be positive and finite, got %g", ErrInvalidConfig, sampleRate)
	}
	if math.IsNaN(degPerDay) || math.IsInf(degPerDay, 0) {
		return nil, fmt.Errorf("%w: slew rate must be finite, got %g deg/day", ErrInvalidConfig, degPerDay)
	}

	radPerSec := degPerDay * (math.Pi / 180) / 86400
	qs := make([]quaternion.Quaternion, rng.Count)
	for i := range qs {
		t := float64(rng.First+int64(i)) / sampleRate
		qs[i] = quat.ZRot(math.Mod(radPerSec*t, 2*math.Pi))
	}
	return qs, nil
}
