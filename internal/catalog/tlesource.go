package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/transform"
)

// Fetcher downloads raw TLE text.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
	SourceURL() string
}

// TLESource builds a catalog from live orbital elements: every entry is propagated to
// the load time with SGP4 and reduced to a sub-satellite point and altitude.
type TLESource struct {
	Fetcher    Fetcher
	Cache      *tle.Cache // optional; fallback when the fetch fails
	Propagator *propagation.Propagator
	MaxObjects int // 0 keeps every entry
	Logger     *slog.Logger

	now func() time.Time
}

// Name implements Source.
func (s *TLESource) Name() string { return "tle" }

// Load implements Source.
func (s *TLESource) Load(ctx context.Context) (Contents, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	data, source, fetchedAt, err := s.download(ctx, now())
	if err != nil {
		return Contents{}, err
	}

	entries, err := tle.Parse(bytes.NewReader(data), s.Logger)
	if err != nil {
		return Contents{}, err
	}
	if len(entries) == 0 {
		return Contents{}, fmt.Errorf("no TLE entries in %s", source)
	}
	entries = dedupe(entries)
	if s.MaxObjects > 0 && len(entries) > s.MaxObjects {
		s.Logger.Info("truncating TLE set", "entries", len(entries), "max_objects", s.MaxObjects)
		entries = entries[:s.MaxObjects]
	}

	set := &tle.Set{Source: source, FetchedAt: fetchedAt, Entries: entries}
	states, err := s.Propagator.Propagate(ctx, set, now())
	if err != nil {
		return Contents{}, fmt.Errorf("propagating TLE set: %w", err)
	}

	byID := make(map[int]tle.Entry, len(entries))
	for _, e := range entries {
		byID[e.NORADID] = e
	}

	objects := make([]conjunction.SpaceObject, 0, len(states))
	for _, st := range states {
		obj, ok := objectFromState(st, byID[st.NORADID])
		if !ok {
			s.Logger.Warn("dropping object below the surface", "norad_id", st.NORADID)
			continue
		}
		objects = append(objects, obj)
	}

	return Contents{Objects: objects, Elements: set}, nil
}

// download fetches the feed, falling back to the newest cached snapshot.
func (s *TLESource) download(ctx context.Context, now time.Time) ([]byte, string, time.Time, error) {
	data, err := s.Fetcher.Fetch(ctx)
	if err == nil {
		if s.Cache != nil {
			if cerr := s.Cache.Write(data, now); cerr != nil {
				s.Logger.Warn("writing TLE cache failed", "dir", s.Cache.Dir(), "error", cerr)
			}
		}
		return data, s.Fetcher.SourceURL(), now, nil
	}

	if s.Cache == nil || ctx.Err() != nil {
		return nil, "", time.Time{}, fmt.Errorf("fetching TLE data: %w", err)
	}

	cached, ts, cerr := s.Cache.LoadLatest()
	if cerr != nil {
		if errors.Is(cerr, tle.ErrNoCache) {
			return nil, "", time.Time{}, fmt.Errorf("fetching TLE data: %w (no cached copy)", err)
		}
		return nil, "", time.Time{}, fmt.Errorf("fetching TLE data: %w; cache: %v", err, cerr)
	}

	s.Logger.Warn("TLE fetch failed, using cached snapshot",
		"error", err,
		"cached_at", ts.Format(time.RFC3339),
	)
	return cached, "cache:" + s.Cache.Dir(), ts, nil
}

func objectFromState(st propagation.State, e tle.Entry) (conjunction.SpaceObject, bool) {
	geo := transform.ECEFToGeodetic(st.Position)
	alt := geo.AltKm()
	if math.IsNaN(alt) || alt < 0 {
		return conjunction.SpaceObject{}, false
	}

	cat := conjunction.CategorySatellite
	if e.IsDebris() {
		cat = conjunction.CategoryDebris
	}

	name := st.Name
	if name == "" {
		name = fmt.Sprintf("NORAD %d", st.NORADID)
	}

	return conjunction.SpaceObject{
		ID:        objectID(st.NORADID),
		Name:      name,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Category:  cat,
		Status:    StatusForAltitude(alt),
		Altitude:  &alt,
		NORADID:   st.NORADID,
	}, true
}

// dedupe keeps the first entry per catalog number; merged feeds overlap.
func dedupe(entries []tle.Entry) []tle.Entry {
	seen := make(map[int]bool, len(entries))
	out := make([]tle.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.NORADID] {
			continue
		}
		seen[e.NORADID] = true
		out = append(out, e)
	}
	return out
}
