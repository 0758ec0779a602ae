// Package ephem supplies the small amount of ephemeris the scan pipeline
// needs: Julian dates, the Sun's ecliptic longitude, an anti-solar precession
// axis generator, and the fixed rotations between the ecliptic, equatorial
// and galactic frames.
package ephem

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
	"github.com/star/scanmap/internal/scan"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// obliquityJ2000 is the mean obliquity of the ecliptic at J2000.0 in degrees
// (IAU 1980, 23 deg 26' 21.448").
const obliquityJ2000 = 23.4392911

// J2000 orientation of the galactic frame with respect to the equatorial one
// (Murray 1989): pole right ascension and declination, and the galactic
// longitude of the north celestial pole.
const (
	galPoleRADeg  = 192.85948
	galPoleDecDeg = 27.12825
	galNodeLonDeg = 122.93192
)

// JulianDate converts a UTC time to Julian Date. Calendar conversion is done
// by the SGP4 library's JDay; sub-second precision is restored from the
// nanosecond field.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/1e9/86400
}

// SolarLongitude returns the Sun's geometric ecliptic longitude in radians,
// in [0, 2pi), for the given Julian Date.
//
// Low-precision series from Meeus "Astronomical Algorithms" ch. 25 (mean
// longitude plus equation of center), accurate to about 0.01 degrees over
// several centuries around J2000, far below a survey's pointing requirements.
func SolarLongitude(jd float64) float64 {
	T := (jd - j2000) / 36525.0

	// Mean longitude and mean anomaly in degrees.
	L0 := 280.46646 + 36000.76983*T + 0.0003032*T*T
	M := (357.52911 + 35999.05029*T - 0.0001537*T*T) * math.Pi / 180

	// Equation of center in degrees.
	C := (1.914602-0.004817*T-0.000014*T*T)*math.Sin(M) +
		(0.019993-0.000101*T)*math.Sin(2*M) +
		0.000289*math.Sin(3*M)

	lon := math.Mod((L0+C)*math.Pi/180, 2*math.Pi)
	if lon < 0 {
		lon += 2 * math.Pi
	}
	return lon
}

// SolarAxis returns one precession axis orientation per sample in rng, each
// carrying the frame z axis onto the anti-solar direction in the ecliptic
// plane. epoch is the UTC time of global sample index 0; sample i of the
// range sits (rng.First+i)/sampleRate seconds later.
//
// This is the physically accurate axis a constant-rate slew approximates:
// the axis completes one revolution per year with the slightly uneven speed
// of the true Sun.
func SolarAxis(rng scan.SampleRange, sampleRate float64, epoch time.Time) ([]quaternion.Quaternion, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be positive and finite, got %g", scan.ErrInvalidConfig, sampleRate)
	}

	jd0 := JulianDate(epoch)
	qs := make([]quaternion.Quaternion, rng.Count)
	for i := range qs {
		t := float64(rng.First+int64(i)) / sampleRate
		lon := SolarLongitude(jd0 + t/86400)
		qs[i] = quaternion.Prod(quat.ZRot(lon+math.Pi), quat.YRot(math.Pi/2))
	}
	return qs, nil
}

// FrameRotation returns the fixed rotation taking ecliptic-frame vectors to
// the requested frame. The ecliptic frame itself (or an empty tag) yields
// the identity.
func FrameRotation(coord string) (quaternion.Quaternion, error) {
	switch coord {
	case "", scan.CoordEcliptic:
		return quaternion.Quaternion{W: 1}, nil
	case scan.CoordEquatorial:
		return eclipticToEquatorial(), nil
	case scan.CoordGalactic:
		return quaternion.Prod(equatorialToGalactic(), eclipticToEquatorial()), nil
	default:
		return quaternion.Quaternion{}, fmt.Errorf("%w: unknown coordinate frame %q", scan.ErrInvalidConfig, coord)
	}
}

// eclipticToEquatorial rotates ecliptic rectangular coordinates onto
// equatorial ones: both frames share the x axis toward the vernal equinox,
// separated by the mean obliquity about it.
func eclipticToEquatorial() quaternion.Quaternion {
	return quat.XRot(obliquityJ2000 * math.Pi / 180)
}

// equatorialToGalactic rotates equatorial rectangular coordinates onto
// galactic ones. The forward rotation carries the equatorial frame onto the
// galactic frame (z axis to the galactic pole, x axis to the galactic
// center); component vectors transform by its inverse.
func equatorialToGalactic() quaternion.Quaternion {
	ra := galPoleRADeg * math.Pi / 180
	dec := galPoleDecDeg * math.Pi / 180
	node := galNodeLonDeg * math.Pi / 180
	frame := quaternion.Prod(quat.ZRot(ra), quat.YRot(math.Pi/2-dec), quat.ZRot(math.Pi-node))
	return frame.Conj()
}
