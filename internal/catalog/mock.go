package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/star/debriswatch/internal/conjunction"
)

// MockSource generates a reproducible synthetic catalog for demos and tests.
type MockSource struct {
	Count int
	Seed  uint64
}

// Name implements Source.
func (m MockSource) Name() string { return "mock" }

// Load implements Source. The same Count and Seed always produce the same objects.
func (m MockSource) Load(ctx context.Context) (Contents, error) {
	if err := ctx.Err(); err != nil {
		return Contents{}, err
	}
	return Contents{Objects: Generate(m.Count, m.Seed)}, nil
}

// Generate returns n objects: roughly 60% satellites, the rest debris, spread uniformly
// over the globe at LEO altitudes.
func Generate(n int, seed uint64) []conjunction.SpaceObject {
	rng := rand.New(rand.NewPCG(seed, seed+1))

	objects := make([]conjunction.SpaceObject, 0, max(n, 0))
	var sats, debris int
	for i := 0; i < n; i++ {
		var obj conjunction.SpaceObject
		if rng.Float64() < 0.6 {
			sats++
			obj.Category = conjunction.CategorySatellite
			obj.ID = fmt.Sprintf("sat-%03d", sats)
			obj.Name = fmt.Sprintf("SAT-%03d", sats)
		} else {
			debris++
			obj.Category = conjunction.CategoryDebris
			obj.ID = fmt.Sprintf("deb-%03d", debris)
			obj.Name = fmt.Sprintf("DEBRIS %03d", debris)
		}

		// Uniform on the sphere rather than uniform in latitude.
		obj.Latitude = asinDeg(2*rng.Float64() - 1)
		obj.Longitude = rng.Float64()*360 - 180

		alt := 250 + rng.Float64()*950
		obj.Altitude = &alt
		obj.Status = StatusForAltitude(alt)

		objects = append(objects, obj)
	}
	return objects
}
