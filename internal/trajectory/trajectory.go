// Package trajectory samples ground tracks for objects backed by orbital elements.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/star/debriswatch/internal/metrics"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/transform"
)

// Defaults and limits for a request.
const (
	DefaultHorizon   = 90 * time.Minute
	DefaultStep      = 60 * time.Second
	MaxHorizon       = 24 * time.Hour
	MinStep          = 5 * time.Second
	DefaultMaxPoints = 20000
)

// ErrBudget is returned when a request would sample more points than allowed.
var ErrBudget = errors.New("trajectory request exceeds point budget")

// Point is a sub-satellite position at one instant.
type Point struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"` // km
}

// Track is the sampled ground track of one object.
type Track struct {
	NORADID int     `json:"norad_id"`
	Name    string  `json:"name"`
	Points  []Point `json:"points"`
	Error   string  `json:"error,omitempty"`
}

// Request describes what to sample.
type Request struct {
	Entries   []tle.Entry
	Start     time.Time
	Horizon   time.Duration
	Step      time.Duration
	MaxPoints int // across all entries; 0 uses DefaultMaxPoints

	// Models may supply warm SGP4 models; entries it misses are initialised here.
	Models func(noradID int) (*propagation.SGP4, bool)
}

// Normalize fills defaults and rejects out-of-range parameters.
func (r *Request) Normalize() error {
	if r.Horizon == 0 {
		r.Horizon = DefaultHorizon
	}
	if r.Step == 0 {
		r.Step = DefaultStep
	}
	if r.MaxPoints <= 0 {
		r.MaxPoints = DefaultMaxPoints
	}
	if r.Horizon < 0 || r.Horizon > MaxHorizon {
		return fmt.Errorf("horizon %s outside (0, %s]", r.Horizon, MaxHorizon)
	}
	if r.Step < MinStep {
		return fmt.Errorf("step %s below minimum %s", r.Step, MinStep)
	}
	if n := r.PointsPerEntry() * len(r.Entries); n > r.MaxPoints {
		return fmt.Errorf("%w: %d points requested, limit %d", ErrBudget, n, r.MaxPoints)
	}
	return nil
}

// PointsPerEntry is the number of samples per object, both ends included.
func (r *Request) PointsPerEntry() int {
	return int(r.Horizon/r.Step) + 1
}

// Sample propagates every entry across the window. Each entry runs in its own goroutine,
// bounded by the CPU count. Per-entry failures are reported in Track.Error; the error
// return is only for invalid requests.
func Sample(ctx context.Context, req Request) ([]Track, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	tracks := make([]Track, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.Entry) {
			defer wg.Done()

			tracks[idx] = Track{NORADID: e.NORADID, Name: e.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				tracks[idx].Error = "cancelled"
				return
			}

			points, err := sampleEntry(ctx, req, e)
			tracks[idx].Points = points
			if err != nil {
				tracks[idx].Error = err.Error()
			}
		}(i, entry)
	}

	wg.Wait()

	var total int
	for _, tr := range tracks {
		total += len(tr.Points)
	}
	metrics.RecordTrajectoryPoints(total)

	return tracks, nil
}

func sampleEntry(ctx context.Context, req Request, e tle.Entry) ([]Point, error) {
	var prop *propagation.SGP4
	if req.Models != nil {
		prop, _ = req.Models(e.NORADID)
	}
	if prop == nil {
		var err error
		if prop, err = propagation.NewSGP4(e.Line1, e.Line2, e.NORADID); err != nil {
			return nil, err
		}
	}

	n := req.PointsPerEntry()
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return points, err
		}

		t := req.Start.Add(time.Duration(i) * req.Step)
		sv, err := prop.PropagateECEF(t)
		if err != nil {
			// Decayed or diverged; the rest of the window will not recover.
			return points, err
		}

		geo := transform.ECEFToGeodetic(sv.Position)
		points = append(points, Point{
			Time:      t,
			Latitude:  geo.LatDeg,
			Longitude: geo.LonDeg,
			Altitude:  geo.AltKm(),
		})
	}
	return points, nil
}
