package pixel

import (
	"errors"
	"math"
	"testing"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
)

// TestNewRingGridLayout verifies the ring layout is contiguous: offsets
// increase monotonically and the column counts sum to NPix.
func TestNewRingGridLayout(t *testing.T) {
	g, err := NewRingGrid(32)
	if err != nil {
		t.Fatalf("NewRingGrid failed: %v", err)
	}
	var total int64
	for r := 0; r < g.Rings(); r++ {
		if g.rowStart[r] != total {
			t.Fatalf("ring %d starts at %d, want %d", r, g.rowStart[r], total)
		}
		if g.rowCols[r] < 1 {
			t.Fatalf("ring %d has %d columns", r, g.rowCols[r])
		}
		total += g.rowCols[r]
	}
	if total != g.NPix() {
		t.Errorf("column counts sum to %d, NPix = %d", total, g.NPix())
	}
	// Polar rings are short, the equatorial ring is the longest.
	mid := g.rings / 2
	if g.rowCols[0] >= g.rowCols[mid] || g.rowCols[g.rings-1] >= g.rowCols[mid] {
		t.Errorf("ring lengths not peaked at the equator: pole %d/%d, equator %d",
			g.rowCols[0], g.rowCols[g.rings-1], g.rowCols[mid])
	}
}

func TestNewRingGridRejectsZeroRings(t *testing.T) {
	if _, err := NewRingGrid(0); err == nil {
		t.Fatal("expected error for zero rings")
	}
}

// TestPixelizeKnownDirections verifies pole and equator orientations land in
// the expected rings. The ring count is odd so the equator falls at a ring
// center rather than on a boundary.
func TestPixelizeKnownDirections(t *testing.T) {
	g, _ := NewRingGrid(15)

	// Identity points at the north pole: ring 0.
	pix, _, err := g.Pixelize(quaternion.Quaternion{W: 1})
	if err != nil {
		t.Fatalf("Pixelize failed: %v", err)
	}
	if r, _ := g.Ring(pix); r != 0 {
		t.Errorf("north pole in ring %d, want 0", r)
	}

	// A half turn about x points at the south pole: last ring.
	pix, _, err = g.Pixelize(quat.XRot(math.Pi))
	if err != nil {
		t.Fatalf("Pixelize failed: %v", err)
	}
	if r, _ := g.Ring(pix); r != g.Rings()-1 {
		t.Errorf("south pole in ring %d, want %d", r, g.Rings()-1)
	}

	// A quarter turn about y points along +x: the equatorial ring, cell 0.
	pix, _, err = g.Pixelize(quat.YRot(math.Pi / 2))
	if err != nil {
		t.Fatalf("Pixelize failed: %v", err)
	}
	r, _ := g.Ring(pix)
	if r != g.Rings()/2 {
		t.Errorf("+x direction in ring %d, want %d", r, g.Rings()/2)
	}
	if pix != g.rowStart[r] {
		t.Errorf("+x direction in cell %d of ring %d, want cell 0", pix-g.rowStart[r], r)
	}
}

// TestPixelizeLongitudeWrap verifies longitudes just below 2pi fall in the
// last cell of their ring rather than overflowing into the next ring.
func TestPixelizeLongitudeWrap(t *testing.T) {
	g, _ := NewRingGrid(15)
	q := quat.FromIsoAngles(math.Pi/2, -1e-9, 0) // phi just below 0 wraps high
	pix, _, err := g.Pixelize(q)
	if err != nil {
		t.Fatalf("Pixelize failed: %v", err)
	}
	r, _ := g.Ring(pix)
	if r != g.Rings()/2 {
		t.Fatalf("wrapped longitude left the equatorial ring: ring %d", r)
	}
	if got, want := pix-g.rowStart[r], g.rowCols[r]-1; got != want {
		t.Errorf("wrapped longitude in cell %d, want last cell %d", got, want)
	}
}

// TestPixelizeCenterRoundTrip verifies that pointing at a pixel's center
// returns that pixel, across all rings.
func TestPixelizeCenterRoundTrip(t *testing.T) {
	g, _ := NewRingGrid(24)
	for r := 0; r < g.Rings(); r++ {
		pix := g.rowStart[r] + g.rowCols[r]/2
		theta, phi, err := g.Center(pix)
		if err != nil {
			t.Fatalf("Center(%d) failed: %v", pix, err)
		}
		got, _, err := g.Pixelize(quat.FromIsoAngles(theta, phi, 0.3))
		if err != nil {
			t.Fatalf("Pixelize failed: %v", err)
		}
		if got != pix {
			t.Errorf("ring %d: center of pixel %d pixelizes to %d", r, pix, got)
		}
	}
}

// TestPixelizeReturnsOrientationAngle verifies psi passes through from the
// orientation: rotating the detector about its line of sight changes only
// the returned angle, not the pixel.
func TestPixelizeReturnsOrientationAngle(t *testing.T) {
	g, _ := NewRingGrid(16)
	base := quat.FromIsoAngles(1.0, 0.5, 0)
	for _, psi := range []float64{-2.5, -0.5, 0, 1.0, 3.0} {
		q := quaternion.Prod(base, quat.ZRot(psi))
		pix, gotPsi, err := g.Pixelize(q)
		if err != nil {
			t.Fatalf("Pixelize failed: %v", err)
		}
		basePix, _, _ := g.Pixelize(base)
		if pix != basePix {
			t.Errorf("psi = %g moved the pixel: %d -> %d", psi, basePix, pix)
		}
		if math.Abs(math.Remainder(gotPsi-psi, 2*math.Pi)) > 1e-9 {
			t.Errorf("psi = %g returned as %g", psi, gotPsi)
		}
	}
}

// TestPixelizeRejectsDegenerateOrientation verifies zero-norm and non-finite
// quaternions return ErrOrientation instead of a bogus pixel.
func TestPixelizeRejectsDegenerateOrientation(t *testing.T) {
	g, _ := NewRingGrid(8)
	bad := []quaternion.Quaternion{
		{},
		{W: math.NaN()},
		{W: 1, X: math.Inf(1)},
		{W: 0.1, X: 0.1},
	}
	for _, q := range bad {
		if _, _, err := g.Pixelize(q); !errors.Is(err, ErrOrientation) {
			t.Errorf("Pixelize(%+v) error = %v, want ErrOrientation", q, err)
		}
	}
}

// TestRingBounds verifies out-of-range pixels are rejected.
func TestRingBounds(t *testing.T) {
	g, _ := NewRingGrid(8)
	if _, err := g.Ring(-1); err == nil {
		t.Error("Ring(-1) succeeded")
	}
	if _, err := g.Ring(g.NPix()); err == nil {
		t.Error("Ring(NPix) succeeded")
	}
	if _, _, err := g.Center(g.NPix()); err == nil {
		t.Error("Center(NPix) succeeded")
	}
}

// BenchmarkPixelize measures single-orientation pixelization, the innermost
// operation of pointing expansion.
func BenchmarkPixelize(b *testing.B) {
	g, _ := NewRingGrid(256)
	q := quat.FromIsoAngles(1.1, 2.2, 0.3)
	for i := 0; i < b.N; i++ {
		if _, _, err := g.Pixelize(q); err != nil {
			b.Fatal(err)
		}
	}
}
