// Package transform provides the coordinate frames debriswatch moves objects through.
//
// SGP4 produces TEME (True Equator Mean Equinox) state vectors, which are rotated into
// ECEF (Earth-Centered Earth-Fixed) using GMST only (TEME → PEF ≈ ECEF). Polar motion and
// the equation of equinoxes are ignored, which costs ~50m at most. ECEF positions are then
// reduced to geodetic latitude/longitude/altitude for the catalog, and the conjunction
// estimator lifts latitude/longitude back onto a fixed-radius scene sphere.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// StateVector is a position/velocity pair in a single frame.
// TEME vectors are km and km/s; ECEF vectors are m and m/s.
type StateVector struct {
	Position Vec3
	Velocity Vec3
}

// JulianDate converts a UTC time to Julian Date.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	dayFrac := (float64(t.Hour()) + float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	// January and February count as months 13 and 14 of the previous year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians, IAU-82 model (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// with T in Julian centuries of UT1 from J2000.0 and θ in seconds of time.
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t) - j2000) / 36525.0

	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	sec = math.Mod(sec, 86400.0)
	if sec < 0 {
		sec += 86400.0
	}
	return sec / 86400.0 * 2.0 * math.Pi
}

// TEMEToECEF rotates a TEME state (km, km/s) into ECEF (m, m/s) at time t.
func TEMEToECEF(teme StateVector, t time.Time) StateVector {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST is TEMEToECEF with a precomputed GMST angle, for batches that share
// one target time.
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(teme StateVector, gmst float64) StateVector {
	pos := rotateZ(teme.Position, gmst)
	vel := rotateZ(teme.Velocity, gmst)

	// ω × r = [-ω y, ω x, 0]
	vel.X += OmegaEarth * pos.Y
	vel.Y -= OmegaEarth * pos.X

	return StateVector{
		Position: pos.Scale(1000.0),
		Velocity: vel.Scale(1000.0),
	}
}

func rotateZ(v Vec3, angle float64) Vec3 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Vec3{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// ValidateECEF reports whether an ECEF position (metres) is plausible for an
// Earth-orbiting object: finite, and between 6200 km and 50000 km from the centre.
func ValidateECEF(pos Vec3) bool {
	if !pos.IsFinite() {
		return false
	}
	const (
		minRadius = 6200.0 * 1000.0
		maxRadius = 50000.0 * 1000.0
	)
	mag := pos.Norm()
	return mag >= minRadius && mag <= maxRadius
}
