// Package pixel provides an iso-latitude ring pixelization of the sphere.
// Pixels are laid out row-major by latitude ring; each ring holds a number
// of equal-width longitude cells proportional to its circumference, so cells
// are near-equal area everywhere including the poles.
package pixel

import (
	"errors"
	"fmt"
	"math"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
)

// ErrOrientation reports an orientation quaternion that does not define a
// sky direction (zero norm or non-finite components).
var ErrOrientation = errors.New("orientation does not define a direction")

// RingGrid is a fixed pixelization with a given number of latitude rings.
// Ring r spans colatitude [r, r+1) * pi/rings and holds round(2*rings*sin)
// longitude cells at its center colatitude. Construction precomputes the
// ring offsets; all methods are safe for concurrent use.
type RingGrid struct {
	rings    int
	rowStart []int64
	rowCols  []int64
	npix     int64
}

// NewRingGrid builds a grid with the given number of latitude rings.
func NewRingGrid(rings int) (*RingGrid, error) {
	if rings < 1 {
		return nil, fmt.Errorf("ring count must be positive, got %d", rings)
	}
	g := &RingGrid{
		rings:    rings,
		rowStart: make([]int64, rings),
		rowCols:  make([]int64, rings),
	}
	for r := 0; r < rings; r++ {
		center := (float64(r) + 0.5) * math.Pi / float64(rings)
		cols := int64(math.Round(2 * float64(rings) * math.Sin(center)))
		if cols < 1 {
			cols = 1
		}
		g.rowStart[r] = g.npix
		g.rowCols[r] = cols
		g.npix += cols
	}
	return g, nil
}

// NPix returns the total number of pixels.
func (g *RingGrid) NPix() int64 { return g.npix }

// Rings returns the number of latitude rings.
func (g *RingGrid) Rings() int { return g.rings }

// Pixelize maps a detector orientation to the pixel containing its line of
// sight and the orientation angle about it. The quaternion must be unit norm
// to within ordinary rounding; orientations without a defined direction
// return ErrOrientation.
func (g *RingGrid) Pixelize(q quaternion.Quaternion) (int64, float64, error) {
	n := quat.Norm(q)
	if math.IsNaN(n) || n < 0.9 || n > 1.1 {
		return 0, 0, fmt.Errorf("%w: norm %g", ErrOrientation, n)
	}
	theta, phi, psi := quat.IsoAngles(q)

	row := int(theta * float64(g.rings) / math.Pi)
	if row >= g.rings {
		row = g.rings - 1
	}
	if row < 0 {
		row = 0
	}

	// phi in (-pi, pi] -> cell in [0, cols).
	f := phi / (2 * math.Pi)
	f -= math.Floor(f)
	col := int64(f * float64(g.rowCols[row]))
	if col >= g.rowCols[row] {
		col = g.rowCols[row] - 1
	}
	return g.rowStart[row] + col, psi, nil
}

// Ring returns the latitude ring index containing the pixel.
func (g *RingGrid) Ring(pix int64) (int, error) {
	if pix < 0 || pix >= g.npix {
		return 0, fmt.Errorf("pixel %d out of range [0, %d)", pix, g.npix)
	}
	lo, hi := 0, g.rings-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if g.rowStart[mid] <= pix {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// Center returns the colatitude and longitude of the pixel's cell center.
func (g *RingGrid) Center(pix int64) (theta, phi float64, err error) {
	r, err := g.Ring(pix)
	if err != nil {
		return 0, 0, err
	}
	theta = (float64(r) + 0.5) * math.Pi / float64(g.rings)
	col := pix - g.rowStart[r]
	phi = (float64(col) + 0.5) * 2 * math.Pi / float64(g.rowCols[r])
	return theta, phi, nil
}
