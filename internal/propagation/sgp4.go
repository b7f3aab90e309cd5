package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/debriswatch/internal/transform"
)

// SGP4 propagates one element set with github.com/joshuaferrara/go-satellite.
//
// The library takes Satellite by value and hides SGP4 error codes after initialisation,
// so failures are detected from the output instead: non-finite values or a radius no
// Earth orbit can have.
type SGP4 struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4 initialises SGP4 from the two element lines.
//
// The lines are checked before they reach the library, because go-satellite calls
// log.Fatal on malformed input.
func NewSGP4(line1, line2 string, noradID int) (*SGP4, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, noradID: noradID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	for i, l := range []string{line1, line2} {
		if len(l) != 69 {
			return fmt.Errorf("line%d length %d, expected 69", i+1, len(l))
		}
		if want := byte('1' + i); l[0] != want {
			return fmt.Errorf("line%d must start with '%c', got '%c'", i+1, want, l[0])
		}
	}
	return nil
}

// NORADID returns the catalog number this propagator was built for.
func (p *SGP4) NORADID() int {
	return p.noradID
}

// PropagateTEME returns the TEME state (km, km/s) at t, to whole-second resolution.
func (p *SGP4) PropagateTEME(t time.Time) (transform.StateVector, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	sv := transform.StateVector{
		Position: transform.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: transform.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if !sv.Position.IsFinite() || !sv.Velocity.IsFinite() {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}
	if mag := sv.Position.Norm(); mag < 6200.0 || mag > 50000.0 {
		return transform.StateVector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}
	return sv, nil
}

// PropagateECEF returns the ECEF state (m, m/s) at t.
func (p *SGP4) PropagateECEF(t time.Time) (transform.StateVector, error) {
	return p.propagateECEF(t, transform.GMST(t))
}

func (p *SGP4) propagateECEF(t time.Time, gmst float64) (transform.StateVector, error) {
	teme, err := p.PropagateTEME(t)
	if err != nil {
		return transform.StateVector{}, err
	}
	return transform.TEMEToECEFWithGMST(teme, gmst), nil
}
