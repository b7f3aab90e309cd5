package conjunction

import (
	"math/rand/v2"
	"sync"

	"github.com/star/debriswatch/internal/transform"
)

// VelocityProvider assigns a scene-frame velocity to an object for one estimator run.
type VelocityProvider interface {
	Velocity(obj SpaceObject) transform.Vec3
}

// VelocityFunc adapts a function to VelocityProvider.
type VelocityFunc func(obj SpaceObject) transform.Vec3

// Velocity calls f(obj).
func (f VelocityFunc) Velocity(obj SpaceObject) transform.Vec3 {
	return f(obj)
}

// FixedVelocity returns a preset velocity per object ID and zero for unknown IDs.
type FixedVelocity map[string]transform.Vec3

// Velocity looks obj.ID up in the map.
func (f FixedVelocity) Velocity(obj SpaceObject) transform.Vec3 {
	return f[obj.ID]
}

// RandomVelocity draws every axis independently and uniformly from [-Max, Max).
//
// This is placeholder motion, not orbital mechanics: it exists so the scene has
// something to extrapolate. Each call samples afresh, so two runs over the same
// catalog only agree when the provider was built from the same seed and asked
// in the same order.
type RandomVelocity struct {
	Max float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomVelocity returns a provider whose sequence is fixed by seed.
func NewRandomVelocity(vmax float64, seed uint64) *RandomVelocity {
	return &RandomVelocity{
		Max: vmax,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NewEntropyVelocity returns a provider seeded from the runtime's random source.
func NewEntropyVelocity(vmax float64) *RandomVelocity {
	return NewRandomVelocity(vmax, rand.Uint64())
}

// Velocity samples a new vector. Safe for concurrent use.
func (r *RandomVelocity) Velocity(SpaceObject) transform.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return transform.Vec3{
		X: r.uniform(),
		Y: r.uniform(),
		Z: r.uniform(),
	}
}

func (r *RandomVelocity) uniform() float64 {
	return (r.rng.Float64()*2 - 1) * r.Max
}
