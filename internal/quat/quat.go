// Package quat provides the small set of rotation helpers the scan pipeline
// needs on top of github.com/westphae/quaternion: axis-angle constructors,
// vector rotation, and the iso-angle (ZYZ) decomposition used when turning an
// orientation into a sky direction plus an angle about the line of sight.
//
// Conventions: quaternions are unit rotations acting on column vectors as
// q v q*, rotations are right-handed about the named axis, and angles are in
// radians throughout.
package quat

import (
	"math"

	"github.com/westphae/quaternion"
)

// XRot returns the rotation by angle radians about the x axis.
func XRot(angle float64) quaternion.Quaternion {
	s, c := math.Sincos(angle / 2)
	return quaternion.Quaternion{W: c, X: s}
}

// YRot returns the rotation by angle radians about the y axis.
func YRot(angle float64) quaternion.Quaternion {
	s, c := math.Sincos(angle / 2)
	return quaternion.Quaternion{W: c, Y: s}
}

// ZRot returns the rotation by angle radians about the z axis.
func ZRot(angle float64) quaternion.Quaternion {
	s, c := math.Sincos(angle / 2)
	return quaternion.Quaternion{W: c, Z: s}
}

// AxisAngle returns the rotation by angle radians about the axis (x, y, z).
// The axis must be a unit vector; it is not normalized here.
func AxisAngle(x, y, z, angle float64) quaternion.Quaternion {
	s, c := math.Sincos(angle / 2)
	return quaternion.Quaternion{W: c, X: s * x, Y: s * y, Z: s * z}
}

// Rotate applies q to the vector (vx, vy, vz) as q v q*.
func Rotate(q quaternion.Quaternion, vx, vy, vz float64) (x, y, z float64) {
	v := quaternion.Quaternion{X: vx, Y: vy, Z: vz}
	r := quaternion.Prod(q, v, q.Conj())
	return r.X, r.Y, r.Z
}

// Norm returns the Euclidean norm of q.
func Norm(q quaternion.Quaternion) float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// IsoAngles decomposes an orientation quaternion into iso-latitude pointing
// angles: the colatitude theta in [0, pi] and longitude phi in (-pi, pi] of
// the rotated z axis, and the residual angle psi in (-pi, pi] about the line
// of sight, such that q == ZRot(phi) * YRot(theta) * ZRot(psi) up to the
// usual quaternion sign ambiguity.
//
// At the poles (theta == 0 or pi) the split between phi and psi is
// degenerate; the returned phi folds into psi, which is the standard
// convention for detector orientation angles there.
func IsoAngles(q quaternion.Quaternion) (theta, phi, psi float64) {
	dx, dy, dz := Rotate(q, 0, 0, 1)
	if dz > 1 {
		dz = 1
	} else if dz < -1 {
		dz = -1
	}
	theta = math.Acos(dz)
	phi = math.Atan2(dy, dx)

	// Residual rotation about z after undoing the pointing part.
	r := quaternion.Prod(YRot(theta).Conj(), ZRot(phi).Conj(), q)
	psi = 2 * math.Atan2(r.Z, r.W)
	if psi > math.Pi {
		psi -= 2 * math.Pi
	} else if psi <= -math.Pi {
		psi += 2 * math.Pi
	}
	return theta, phi, psi
}

// FromIsoAngles builds the orientation with the z axis at colatitude theta
// and longitude phi, rotated by psi about the line of sight. Inverse of
// IsoAngles for theta in (0, pi).
func FromIsoAngles(theta, phi, psi float64) quaternion.Quaternion {
	return quaternion.Prod(ZRot(phi), YRot(theta), ZRot(psi))
}

// Angle returns the angular separation in radians between the two unit
// vectors (ax, ay, az) and (bx, by, bz).
func Angle(ax, ay, az, bx, by, bz float64) float64 {
	dot := ax*bx + ay*by + az*bz
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}
