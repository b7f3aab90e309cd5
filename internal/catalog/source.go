package catalog

import (
	"context"

	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/tle"
)

// Contents is what a Source produced on one load.
type Contents struct {
	Objects  []conjunction.SpaceObject
	Elements *tle.Set // nil unless the source works from orbital elements
}

// Source produces the objects of a catalog.
type Source interface {
	Name() string
	Load(ctx context.Context) (Contents, error)
}
