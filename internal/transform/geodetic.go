package transform

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Geodetic is a WGS-84 position: latitude/longitude in degrees, altitude in metres
// above the ellipsoid.
type Geodetic struct {
	LatDeg, LonDeg, AltM float64
}

// AltKm returns the altitude in kilometres.
func (g Geodetic) AltKm() float64 {
	return g.AltM / 1000.0
}

// GeodeticToECEF converts a geodetic position to ECEF metres.
func GeodeticToECEF(g Geodetic) Vec3 {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vec3{
		X: (n + g.AltM) * cosLat * math.Cos(lon),
		Y: (n + g.AltM) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.AltM) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF metres to geodetic coordinates with Bowring's
// iteration, which settles in 2-3 rounds for orbital altitudes.
func ECEFToGeodetic(p Vec3) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Sqrt(p.X*p.X + p.Y*p.Y)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}
