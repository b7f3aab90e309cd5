package transform

import "math"

// SphereProjection places a latitude/longitude (degrees) on a sphere of the given
// radius, in the y-up scene frame the dashboard globe uses:
//
//	φ = (90° - lat), θ = (lon + 180°)
//	x = -r sin φ cos θ,  y = r cos φ,  z = r sin φ sin θ
//
// Altitude is not an input: every object sits on the same shell.
func SphereProjection(latDeg, lonDeg, radius float64) Vec3 {
	phi := (90 - latDeg) * math.Pi / 180.0
	theta := (lonDeg + 180) * math.Pi / 180.0

	return Vec3{
		X: -radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}
