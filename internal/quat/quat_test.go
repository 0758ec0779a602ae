package quat

import (
	"math"
	"testing"

	"github.com/westphae/quaternion"
)

const eps = 1e-12

func vecsClose(ax, ay, az, bx, by, bz, tol float64) bool {
	return math.Abs(ax-bx) < tol && math.Abs(ay-by) < tol && math.Abs(az-bz) < tol
}

// TestAxisRotations verifies the basic right-handed axis rotations against
// hand-computed results: ZRot(90 deg) takes x to y, XRot(90 deg) takes y to z,
// YRot(90 deg) takes z to x.
func TestAxisRotations(t *testing.T) {
	x, y, z := Rotate(ZRot(math.Pi/2), 1, 0, 0)
	if !vecsClose(x, y, z, 0, 1, 0, eps) {
		t.Errorf("ZRot(pi/2) x = (%g, %g, %g), want (0, 1, 0)", x, y, z)
	}

	x, y, z = Rotate(XRot(math.Pi/2), 0, 1, 0)
	if !vecsClose(x, y, z, 0, 0, 1, eps) {
		t.Errorf("XRot(pi/2) y = (%g, %g, %g), want (0, 0, 1)", x, y, z)
	}

	x, y, z = Rotate(YRot(math.Pi/2), 0, 0, 1)
	if !vecsClose(x, y, z, 1, 0, 0, eps) {
		t.Errorf("YRot(pi/2) z = (%g, %g, %g), want (1, 0, 0)", x, y, z)
	}
}

// TestAxisAngleMatchesAxisHelpers verifies the general constructor agrees
// with the per-axis shortcuts.
func TestAxisAngleMatchesAxisHelpers(t *testing.T) {
	angles := []float64{0, 0.1, math.Pi / 3, math.Pi, 2.5}
	for _, a := range angles {
		got := AxisAngle(0, 0, 1, a)
		want := ZRot(a)
		if math.Abs(got.W-want.W) > eps || math.Abs(got.Z-want.Z) > eps {
			t.Errorf("AxisAngle(z, %g) = %+v, want %+v", a, got, want)
		}
	}
}

// TestRotationPreservesNorm verifies rotations are orthogonal: vector norms
// and quaternion norms survive composition.
func TestRotationPreservesNorm(t *testing.T) {
	q := quaternion.Prod(ZRot(0.7), YRot(1.1), XRot(-2.3))
	if math.Abs(Norm(q)-1) > eps {
		t.Fatalf("composed rotation norm = %g, want 1", Norm(q))
	}
	x, y, z := Rotate(q, 0.3, -0.4, 1.2)
	before := math.Sqrt(0.3*0.3 + 0.4*0.4 + 1.2*1.2)
	after := math.Sqrt(x*x + y*y + z*z)
	if math.Abs(before-after) > eps {
		t.Errorf("vector norm changed under rotation: %g -> %g", before, after)
	}
}

// TestIsoAnglesRoundTrip verifies FromIsoAngles and IsoAngles are inverse
// over a grid of pointing and orientation angles away from the poles.
func TestIsoAnglesRoundTrip(t *testing.T) {
	thetas := []float64{0.01, 0.5, math.Pi / 2, 2.5, math.Pi - 0.01}
	phis := []float64{-3.0, -1.2, 0, 0.4, 2.9}
	psis := []float64{-2.8, -0.9, 0, 1.3, 3.1}
	for _, th := range thetas {
		for _, ph := range phis {
			for _, ps := range psis {
				q := FromIsoAngles(th, ph, ps)
				gth, gph, gps := IsoAngles(q)
				if math.Abs(gth-th) > 1e-9 {
					t.Fatalf("theta: got %g, want %g", gth, th)
				}
				if math.Abs(math.Remainder(gph-ph, 2*math.Pi)) > 1e-9 {
					t.Fatalf("phi: got %g, want %g (theta=%g)", gph, ph, th)
				}
				if math.Abs(math.Remainder(gps-ps, 2*math.Pi)) > 1e-9 {
					t.Fatalf("psi: got %g, want %g (theta=%g)", gps, ps, th)
				}
			}
		}
	}
}

// TestIsoAnglesIdentity verifies the identity rotation points at the north
// pole with no residual angle.
func TestIsoAnglesIdentity(t *testing.T) {
	theta, _, psi := IsoAngles(quaternion.Quaternion{W: 1})
	if theta > eps {
		t.Errorf("identity theta = %g, want 0", theta)
	}
	if math.Abs(psi) > eps {
		t.Errorf("identity psi = %g, want 0", psi)
	}
}

// TestIsoAnglesPoleFold verifies that at the pole the longitude folds into
// psi rather than producing garbage: a pure z rotation reports its full angle
// through psi (phi is degenerate there).
func TestIsoAnglesPoleFold(t *testing.T) {
	const spin = 1.1
	theta, phi, psi := IsoAngles(ZRot(spin))
	if theta > 1e-9 {
		t.Fatalf("pole theta = %g, want 0", theta)
	}
	if math.Abs(math.Remainder(phi+psi-spin, 2*math.Pi)) > 1e-9 {
		t.Errorf("pole phi+psi = %g, want %g", phi+psi, spin)
	}
}

// TestAngle verifies angular separation for orthogonal, parallel and
// antiparallel unit vectors, including dot products pushed just outside
// [-1, 1] by rounding.
func TestAngle(t *testing.T) {
	if a := Angle(1, 0, 0, 0, 1, 0); math.Abs(a-math.Pi/2) > eps {
		t.Errorf("orthogonal separation = %g, want pi/2", a)
	}
	if a := Angle(0, 0, 1, 0, 0, 1); a != 0 {
		t.Errorf("parallel separation = %g, want 0", a)
	}
	if a := Angle(0, 0, 1, 0, 0, -1); math.Abs(a-math.Pi) > eps {
		t.Errorf("antiparallel separation = %g, want pi", a)
	}
	// Slightly denormalized inputs must clamp instead of returning NaN.
	n := 1 + 1e-16
	if a := Angle(n, 0, 0, n, 0, 0); math.IsNaN(a) {
		t.Error("separation of denormalized parallel vectors is NaN")
	}
}

// BenchmarkRotate measures the cost of a single vector rotation, the hot
// operation in pointing expansion.
func BenchmarkRotate(b *testing.B) {
	q := quaternion.Prod(ZRot(0.7), YRot(1.1), XRot(-2.3))
	for i := 0; i < b.N; i++ {
		Rotate(q, 0, 0, 1)
	}
}
