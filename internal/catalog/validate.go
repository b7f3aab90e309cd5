package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/debriswatch/internal/conjunction"
)

var (
	// ErrInvalidObject marks an object that cannot be placed on the globe.
	ErrInvalidObject = errors.New("invalid object")

	// ErrDuplicateID marks a second object with an ID already seen.
	ErrDuplicateID = errors.New("duplicate object id")
)

// Validate checks every object and returns all problems joined. The estimator itself
// does not validate; anything that reaches it must have passed through here.
func Validate(objects []conjunction.SpaceObject) error {
	var errs []error
	seen := make(map[string]int, len(objects))

	for i, o := range objects {
		if err := validateObject(o); err != nil {
			errs = append(errs, fmt.Errorf("object %d (%q): %w", i, o.ID, err))
			continue
		}
		if first, dup := seen[o.ID]; dup {
			errs = append(errs, fmt.Errorf("object %d (%q) repeats object %d: %w", i, o.ID, first, ErrDuplicateID))
			continue
		}
		seen[o.ID] = i
	}
	return errors.Join(errs...)
}

func validateObject(o conjunction.SpaceObject) error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidObject)
	case !finite(o.Latitude) || o.Latitude < -90 || o.Latitude > 90:
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidObject, o.Latitude)
	case !finite(o.Longitude) || o.Longitude < -180 || o.Longitude > 180:
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidObject, o.Longitude)
	case !o.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidObject, o.Category)
	case !o.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidObject, o.Status)
	case o.Altitude != nil && (!finite(*o.Altitude) || *o.Altitude < 0):
		return fmt.Errorf("%w: altitude %v", ErrInvalidObject, *o.Altitude)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
