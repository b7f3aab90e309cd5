package catalog

import (
	"math"

	"github.com/star/debriswatch/internal/conjunction"
)

// Altitude bands below which an object is reported as decaying.
const (
	DangerAltitudeKm  = 300.0
	WarningAltitudeKm = 450.0
)

// StatusForAltitude derives an operational status from altitude in km.
func StatusForAltitude(altKm float64) conjunction.Status {
	switch {
	case altKm < DangerAltitudeKm:
		return conjunction.StatusDanger
	case altKm < WarningAltitudeKm:
		return conjunction.StatusWarning
	default:
		return conjunction.StatusOperational
	}
}

func asinDeg(x float64) float64 {
	return math.Asin(x) * 180 / math.Pi
}
