// Package pointing turns boresight orientations and fixed detector offsets
// into sky pixel indices and polarization angles. The pixelization itself is
// injected through the Pixelizer interface, so the expansion works the same
// over any scheme that can map an orientation to a pixel.
package pointing

import (
	"github.com/westphae/quaternion"
)

// Pixelizer maps a full detector orientation to a pixel index in
// [0, NPix()) and the polarization angle about the line of sight in radians.
// An orientation that does not define a direction returns an error; the
// expansion treats such samples as invalid rather than failing.
//
// Implementations must be pure and safe for concurrent use.
type Pixelizer interface {
	Pixelize(q quaternion.Quaternion) (pix int64, psi float64, err error)
	NPix() int64
}

// InvalidPixel is stored at samples whose orientation could not be
// pixelized.
const InvalidPixel int64 = -1

// Result is the expansion of one detector over one boresight sequence.
// Slices are indexed by local sample. Pixels holds InvalidPixel and Angles
// zero wherever Valid is false.
type Result struct {
	Pixels  []int64
	Angles  []float64
	Valid   []bool
	Invalid int
}

// Expand composes each boresight orientation with the fixed detector offset
// and pixelizes the product. The offset is applied in the boresight frame:
// full(i) = bore(i) * det. Samples the pixelizer rejects are marked invalid
// and counted; expansion itself never fails.
//
// Expand is pure and elementwise, safe to call concurrently for different
// detectors or disjoint boresight ranges.
func Expand(bore []quaternion.Quaternion, det quaternion.Quaternion, pix Pixelizer) Result {
	res := Result{
		Pixels: make([]int64, len(bore)),
		Angles: make([]float64, len(bore)),
		Valid:  make([]bool, len(bore)),
	}
	for i, b := range bore {
		p, psi, err := pix.Pixelize(quaternion.Prod(b, det))
		if err != nil {
			res.Pixels[i] = InvalidPixel
			res.Invalid++
			continue
		}
		res.Pixels[i] = p
		res.Angles[i] = psi
		res.Valid[i] = true
	}
	return res
}
