package conjunction

import (
	"fmt"

	"github.com/star/debriswatch/internal/transform"
)

// Category is the kind of tracked object.
type Category string

const (
	CategorySatellite Category = "satellite"
	CategoryDebris    Category = "debris"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategorySatellite || c == CategoryDebris
}

// Status is the operational status reported for an object by its data source.
type Status string

const (
	StatusOperational Status = "operational"
	StatusWarning     Status = "warning"
	StatusDanger      Status = "danger"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOperational || s == StatusWarning || s == StatusDanger
}

// SpaceObject is one tracked object as delivered by a catalog source.
type SpaceObject struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Latitude  float64  `json:"latitude" yaml:"latitude"`
	Longitude float64  `json:"longitude" yaml:"longitude"`
	Category  Category `json:"category" yaml:"category"`
	Status    Status   `json:"status" yaml:"status"`
	Altitude  *float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"` // km
	NORADID   int      `json:"norad_id,omitempty" yaml:"norad_id,omitempty"`
}

// PhysicalObject is a SpaceObject lifted into the scene frame for one estimator run.
type PhysicalObject struct {
	SpaceObject
	Position transform.Vec3
	Velocity transform.Vec3
	Radius   float64
}

// Risk is the severity tier of a conjunction. The zero value means no risk.
type Risk int

const (
	RiskNone Risk = iota
	RiskLow
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	default:
		return ""
	}
}

// MarshalText encodes the tier as its display name.
func (r Risk) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a display name produced by MarshalText.
func (r *Risk) UnmarshalText(b []byte) error {
	switch string(b) {
	case "High":
		*r = RiskHigh
	case "Medium":
		*r = RiskMedium
	case "Low":
		*r = RiskLow
	case "":
		*r = RiskNone
	default:
		return fmt.Errorf("unknown risk tier %q", string(b))
	}
	return nil
}

// Pair is one predicted close approach between two objects. A and B keep the order the
// objects had in the input.
type Pair struct {
	A                     string  `json:"a_id"`
	AName                 string  `json:"a_name"`
	B                     string  `json:"b_id"`
	BName                 string  `json:"b_name"`
	MissDistance          float64 `json:"miss_distance"`
	TimeToClosestApproach float64 `json:"time_to_closest_approach"`
	CombinedRadius        float64 `json:"combined_radius"`
	Risk                  Risk    `json:"risk"`

	// TimeToCollision is set only when the miss distance is inside the combined radius.
	TimeToCollision *float64 `json:"time_to_collision,omitempty"`
}

// Collision reports whether the pair is an actual collision rather than a near miss.
func (p Pair) Collision() bool {
	return p.TimeToCollision != nil
}

// Ratio returns the miss distance in units of the combined radius.
func (p Pair) Ratio() float64 {
	return p.MissDistance / p.CombinedRadius
}

// Annotation is the per-object overlay: the worst risk among the object's pairs and
// who it conflicts with, in ranked order.
type Annotation struct {
	Risk          Risk     `json:"risk"`
	ConflictIDs   []string `json:"conflict_ids"`
	ConflictNames []string `json:"conflicts"`
}

// Result is the output of one estimator run.
type Result struct {
	Pairs       []Pair                `json:"pairs"`
	Annotations map[string]Annotation `json:"annotations"`
}
