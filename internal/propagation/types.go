package propagation

import "github.com/star/debriswatch/internal/transform"

// State is one object's ECEF position (m) and velocity (m/s) at a single instant.
type State struct {
	NORADID  int
	Name     string
	Position transform.Vec3
	Velocity transform.Vec3
}

// Config holds propagation settings.
type Config struct {
	Workers int // worker pool size, default runtime.NumCPU()
}
