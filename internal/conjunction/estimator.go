// Package conjunction estimates close approaches between tracked objects.
//
// The model is deliberately simple and only meant to drive a dashboard overlay:
//
//  1. Every object is projected from latitude/longitude onto one sphere of fixed
//     radius (altitude is ignored).
//  2. Each object gets a velocity from an injected VelocityProvider.
//  3. Every unordered pair is extrapolated in a straight line to its time of closest
//     approach t* = -(Δp·Δv)/(Δv·Δv). Pairs with Δv = 0, t* ≤ 0, or a miss distance of
//     at least five combined radii are dropped.
//  4. Survivors are tiered by miss distance / combined radius (<1 High and a
//     collision, <2 High, <3 Medium, <5 Low), ranked, and capped.
//  5. Each object is annotated with the worst tier among its surviving pairs.
//
// The scan is O(n²) and recomputed from scratch on every call; it is sized for tens of
// objects, not a full catalog. Nothing here keeps state between calls.
package conjunction

import (
	"sort"

	"github.com/star/debriswatch/internal/transform"
)

// Risk tier thresholds, in multiples of the combined radius.
const (
	collisionFactor = 1.0
	highFactor      = 2.0
	mediumFactor    = 3.0
	cutoffFactor    = 5.0
)

// DefaultMaxPairs bounds the ranked output.
const DefaultMaxPairs = 15

// Radii holds the notional collision radius per category, in scene units.
type Radii struct {
	Satellite float64 `json:"satellite"`
	Debris    float64 `json:"debris"`
}

// For returns the radius for c, or zero for an unknown category.
func (r Radii) For(c Category) float64 {
	switch c {
	case CategorySatellite:
		return r.Satellite
	case CategoryDebris:
		return r.Debris
	default:
		return 0
	}
}

// Config holds estimator parameters.
type Config struct {
	ReferenceRadius float64 // scene sphere radius
	Radii           Radii
	MaxPairs        int
}

// DefaultConfig returns the scene scale the dashboard globe is drawn at.
func DefaultConfig() Config {
	return Config{
		ReferenceRadius: 5.0,
		Radii: Radii{
			Satellite: 0.08,
			Debris:    0.04,
		},
		MaxPairs: DefaultMaxPairs,
	}
}

// Estimator runs the pipeline with a fixed configuration. It holds no mutable state
// and is safe for concurrent use.
type Estimator struct {
	cfg Config
}

// New returns an Estimator. Zero or negative fields fall back to DefaultConfig.
func New(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.ReferenceRadius <= 0 {
		cfg.ReferenceRadius = def.ReferenceRadius
	}
	if cfg.Radii.Satellite <= 0 {
		cfg.Radii.Satellite = def.Radii.Satellite
	}
	if cfg.Radii.Debris <= 0 {
		cfg.Radii.Debris = def.Radii.Debris
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = def.MaxPairs
	}
	return &Estimator{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate runs the full pipeline over objects. The input slice is not modified.
func (e *Estimator) Estimate(objects []SpaceObject, velocities VelocityProvider) Result {
	bodies := Project(objects, velocities, e.cfg.ReferenceRadius, e.cfg.Radii)
	pairs := Rank(FindConjunctions(bodies), e.cfg.MaxPairs)
	return Result{
		Pairs:       pairs,
		Annotations: Annotate(pairs),
	}
}

// Estimate runs the pipeline with the default scene scale and pair cap.
func Estimate(objects []SpaceObject, velocities VelocityProvider, radii Radii) Result {
	cfg := DefaultConfig()
	cfg.Radii = radii
	return New(cfg).Estimate(objects, velocities)
}

// Project lifts objects onto the scene sphere and assigns velocity and radius.
// Velocities are requested in input order.
func Project(objects []SpaceObject, velocities VelocityProvider, referenceRadius float64, radii Radii) []PhysicalObject {
	bodies := make([]PhysicalObject, len(objects))
	for i, obj := range objects {
		bodies[i] = PhysicalObject{
			SpaceObject: obj,
			Position:    transform.SphereProjection(obj.Latitude, obj.Longitude, referenceRadius),
			Velocity:    velocities.Velocity(obj),
			Radius:      radii.For(obj.Category),
		}
	}
	return bodies
}

// FindConjunctions tests every unordered pair i<j once and returns the significant
// approaches in scan order.
func FindConjunctions(bodies []PhysicalObject) []Pair {
	var pairs []Pair
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			if p, ok := ClosestApproach(bodies[i], bodies[j]); ok {
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

// ClosestApproach extrapolates a and b at constant velocity and reports their future
// closest approach. ok is false when there is none worth reporting: equal velocities,
// an approach already in the past, or a miss of five combined radii or more.
func ClosestApproach(a, b PhysicalObject) (Pair, bool) {
	dp := b.Position.Sub(a.Position)
	dv := b.Velocity.Sub(a.Velocity)

	vv := dv.Dot(dv)
	if vv == 0 {
		return Pair{}, false
	}

	tca := -dp.Dot(dv) / vv
	if !(tca > 0) {
		return Pair{}, false
	}

	miss := dp.Add(dv.Scale(tca)).Norm()
	combined := a.Radius + b.Radius

	risk, collision := Classify(miss, combined)
	if risk == RiskNone {
		return Pair{}, false
	}

	p := Pair{
		A:                     a.ID,
		AName:                 a.Name,
		B:                     b.ID,
		BName:                 b.Name,
		MissDistance:          miss,
		TimeToClosestApproach: tca,
		CombinedRadius:        combined,
		Risk:                  risk,
	}
	if collision {
		ttc := tca
		p.TimeToCollision = &ttc
	}
	return p, true
}

// Classify maps a miss distance to a tier. collision is true only inside the
// combined radius. NaN distances classify as RiskNone.
func Classify(miss, combinedRadius float64) (risk Risk, collision bool) {
	switch {
	case miss < combinedRadius*collisionFactor:
		return RiskHigh, true
	case miss < combinedRadius*highFactor:
		return RiskHigh, false
	case miss < combinedRadius*mediumFactor:
		return RiskMedium, false
	case miss < combinedRadius*cutoffFactor:
		return RiskLow, false
	default:
		return RiskNone, false
	}
}

// Rank orders pairs by tier (High first), then collisions before near misses, then
// ascending miss distance, and keeps at most maxPairs (a negative cap keeps all).
// The input slice is not modified.
func Rank(pairs []Pair, maxPairs int) []Pair {
	ranked := make([]Pair, len(pairs))
	copy(ranked, pairs)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(ranked[i], ranked[j])
	})

	if maxPairs >= 0 && len(ranked) > maxPairs {
		ranked = ranked[:maxPairs]
	}
	return ranked
}

// Less reports whether a ranks strictly ahead of b.
func Less(a, b Pair) bool {
	if a.Risk != b.Risk {
		return a.Risk > b.Risk
	}
	if a.Collision() != b.Collision() {
		return a.Collision()
	}
	return a.MissDistance < b.MissDistance
}

// Annotate builds the per-object overlay from ranked pairs. Objects that appear in no
// pair are absent from the map.
func Annotate(pairs []Pair) map[string]Annotation {
	annotations := make(map[string]Annotation)

	add := func(id, otherID, otherName string, risk Risk) {
		a := annotations[id]
		if risk > a.Risk {
			a.Risk = risk
		}
		a.ConflictIDs = append(a.ConflictIDs, otherID)
		a.ConflictNames = append(a.ConflictNames, otherName)
		annotations[id] = a
	}

	for _, p := range pairs {
		add(p.A, p.B, p.BName, p.Risk)
		add(p.B, p.A, p.AName, p.Risk)
	}
	return annotations
}
