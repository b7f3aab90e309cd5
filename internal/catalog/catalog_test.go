package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/star/debriswatch/internal/conjunction"
	"github.com/star/debriswatch/internal/propagation"
	"github.com/star/debriswatch/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func ptr(f float64) *float64 { return &f }

func validObject(id string) conjunction.SpaceObject {
	return conjunction.SpaceObject{
		ID:        id,
		Name:      strings.ToUpper(id),
		Latitude:  10,
		Longitude: 20,
		Category:  conjunction.CategorySatellite,
		Status:    conjunction.StatusOperational,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *conjunction.SpaceObject)
		wantErr error
	}{
		{"valid", func(o *conjunction.SpaceObject) {}, nil},
		{"empty id", func(o *conjunction.SpaceObject) { o.ID = "" }, ErrInvalidObject},
		{"latitude high", func(o *conjunction.SpaceObject) { o.Latitude = 90.5 }, ErrInvalidObject},
		{"latitude NaN", func(o *conjunction.SpaceObject) { o.Latitude = math.NaN() }, ErrInvalidObject},
		{"longitude Inf", func(o *conjunction.SpaceObject) { o.Longitude = math.Inf(1) }, ErrInvalidObject},
		{"longitude edge", func(o *conjunction.SpaceObject) { o.Longitude = -180 }, nil},
		{"unknown category", func(o *conjunction.SpaceObject) { o.Category = "rocket" }, ErrInvalidObject},
		{"unknown status", func(o *conjunction.SpaceObject) { o.Status = "" }, ErrInvalidObject},
		{"negative altitude", func(o *conjunction.SpaceObject) { o.Altitude = ptr(-1) }, ErrInvalidObject},
		{"zero altitude", func(o *conjunction.SpaceObject) { o.Altitude = ptr(0) }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validObject("a")
			tt.mutate(&o)
			err := Validate([]conjunction.SpaceObject{o})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDuplicatesAndJoin(t *testing.T) {
	bad := validObject("b")
	bad.Latitude = 100
	err := Validate([]conjunction.SpaceObject{validObject("a"), validObject("a"), bad})
	if !errors.Is(err, ErrDuplicateID) || !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("expected both sentinels, got %v", err)
	}

	if err := Validate(nil); err != nil {
		t.Errorf("empty catalog should be valid: %v", err)
	}
}

func TestStatusForAltitude(t *testing.T) {
	tests := []struct {
		alt  float64
		want conjunction.Status
	}{
		{200, conjunction.StatusDanger},
		{299.9, conjunction.StatusDanger},
		{300, conjunction.StatusWarning},
		{449.9, conjunction.StatusWarning},
		{450, conjunction.StatusOperational},
		{35786, conjunction.StatusOperational},
	}
	for _, tt := range tests {
		if got := StatusForAltitude(tt.alt); got != tt.want {
			t.Errorf("StatusForAltitude(%v) = %q, want %q", tt.alt, got, tt.want)
		}
	}
}

func TestGenerateDeterministicAndValid(t *testing.T) {
	a := Generate(50, 42)
	b := Generate(50, 42)
	if len(a) != 50 {
		t.Fatalf("got %d objects, want 50", len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Latitude != b[i].Latitude || *a[i].Altitude != *b[i].Altitude {
			t.Fatalf("object %d differs between runs with the same seed", i)
		}
	}
	if err := Validate(a); err != nil {
		t.Fatalf("generated catalog invalid: %v", err)
	}

	var sats, debris int
	for _, o := range a {
		switch o.Category {
		case conjunction.CategorySatellite:
			sats++
		case conjunction.CategoryDebris:
			debris++
		}
	}
	if sats == 0 || debris == 0 {
		t.Errorf("expected a mix of categories, got %d satellites, %d debris", sats, debris)
	}

	if c := Generate(50, 43); c[0].Latitude == a[0].Latitude {
		t.Error("different seeds produced the same first object")
	}
	if len(Generate(0, 1)) != 0 || len(Generate(-3, 1)) != 0 {
		t.Error("non-positive count should produce nothing")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	objects := Generate(5, 7)
	var buf bytes.Buffer
	if err := Encode(&buf, objects); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "objects:") {
		t.Errorf("unexpected document:\n%s", buf.String())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(objects) || got[3].ID != objects[3].ID || *got[3].Altitude != *objects[3].Altitude {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestDecodeForms(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    int
		wantErr bool
	}{
		{"bare list", "- {id: a, name: A, latitude: 1, longitude: 2, category: debris, status: warning}\n", 1, false},
		{"json", `{"objects":[{"id":"a","latitude":1,"longitude":2,"category":"satellite","status":"operational"},{"id":"b","category":"debris","status":"danger"}]}`, 2, false},
		{"empty", "", 0, false},
		{"scalar", "hello", 0, true},
		{"bad field type", "- {id: a, latitude: north}\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d objects, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	var buf bytes.Buffer
	if err := Encode(&buf, Generate(3, 1)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	contents, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(contents.Objects) != 3 || contents.Elements != nil {
		t.Errorf("contents = %+v", contents)
	}

	if _, err := (FileSource{Path: path + ".missing"}).Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get() != nil || s.Version() != 0 || s.AgeSeconds() != -1 {
		t.Fatal("new store should be empty")
	}

	c := New("mock", time.Now().Add(-2*time.Second), Generate(3, 1), nil)
	s.Set(c)
	if s.Get() != c || s.Version() != 1 {
		t.Error("Set did not publish")
	}
	if age := s.AgeSeconds(); age < 2 {
		t.Errorf("age = %v, want >= 2", age)
	}

	obj, ok := c.Object(c.Objects[1].ID)
	if !ok || obj.Name != c.Objects[1].Name {
		t.Error("Object lookup failed")
	}
	if _, ok := c.Object("nope"); ok {
		t.Error("Object found an unknown id")
	}
	if _, ok := c.ElementsFor(c.Objects[0].ID); ok {
		t.Error("mock catalog should have no elements")
	}
}

type failingSource struct{ objects []conjunction.SpaceObject }

func (f failingSource) Name() string { return "fixture" }
func (f failingSource) Load(ctx context.Context) (Contents, error) {
	if f.objects == nil {
		return Contents{}, errors.New("upstream down")
	}
	return Contents{Objects: f.objects}, nil
}

func TestLoaderKeepsPreviousOnFailure(t *testing.T) {
	store := NewStore()
	first, err := NewLoader(MockSource{Count: 10, Seed: 1}, store, testLogger).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Get() != first || len(first.Objects) != 10 {
		t.Fatal("first load not published")
	}

	if _, err := NewLoader(failingSource{}, store, testLogger).Load(context.Background()); err == nil {
		t.Fatal("expected source error")
	}

	dup := []conjunction.SpaceObject{validObject("x"), validObject("x")}
	_, err = NewLoader(failingSource{objects: dup}, store, testLogger).Load(context.Background())
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}

	if store.Get() != first || store.Version() != 1 {
		t.Error("failed loads must not replace the catalog")
	}
}

const (
	issTLE = "ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"
	debTLE = "FENGYUN 1C DEB\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05\n"
)

type stubFetcher struct {
	data []byte
	err  error
}

func (f stubFetcher) Fetch(context.Context) ([]byte, error) { return f.data, f.err }
func (f stubFetcher) SourceURL() string                     { return "stub://tle" }

func newTLESource(f Fetcher, cache *tle.Cache) *TLESource {
	return &TLESource{
		Fetcher:    f,
		Cache:      cache,
		Propagator: propagation.NewPropagator(propagation.Config{Workers: 2}, testLogger),
		Logger:     testLogger,
		now:        func() time.Time { return time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC) },
	}
}

func TestTLESource(t *testing.T) {
	cache := tle.NewCache(t.TempDir(), 2)
	src := newTLESource(stubFetcher{data: []byte(issTLE + debTLE + issTLE)}, cache)

	contents, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(contents.Objects) != 2 {
		t.Fatalf("got %d objects, want 2 (duplicate entry dropped)", len(contents.Objects))
	}
	if err := Validate(contents.Objects); err != nil {
		t.Fatalf("TLE catalog invalid: %v", err)
	}

	iss, deb := contents.Objects[0], contents.Objects[1]
	if iss.ID != "25544" || iss.Category != conjunction.CategorySatellite || iss.NORADID != 25544 {
		t.Errorf("iss = %+v", iss)
	}
	if alt := *iss.Altitude; alt < 300 || alt > 500 {
		t.Errorf("iss altitude = %.1f km", alt)
	}
	if math.Abs(iss.Latitude) > 52 {
		t.Errorf("iss latitude %.2f exceeds inclination", iss.Latitude)
	}
	if deb.Category != conjunction.CategoryDebris {
		t.Errorf("deb category = %q", deb.Category)
	}
	if contents.Elements == nil || contents.Elements.Source != "stub://tle" {
		t.Errorf("elements = %+v", contents.Elements)
	}

	if _, _, err := cache.LoadLatest(); err != nil {
		t.Errorf("successful fetch was not cached: %v", err)
	}
}

func TestTLESourceFallsBackToCache(t *testing.T) {
	cache := tle.NewCache(t.TempDir(), 2)
	if err := cache.Write([]byte(issTLE), time.Date(2024, 4, 10, 11, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	src := newTLESource(stubFetcher{err: errors.New("offline")}, cache)
	contents, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(contents.Objects) != 1 || !strings.HasPrefix(contents.Elements.Source, "cache:") {
		t.Errorf("contents = %+v", contents)
	}

	empty := newTLESource(stubFetcher{err: errors.New("offline")}, tle.NewCache(t.TempDir(), 2))
	if _, err := empty.Load(context.Background()); err == nil {
		t.Error("expected error with no network and no cache")
	}
}

func TestTLESourceMaxObjects(t *testing.T) {
	src := newTLESource(stubFetcher{data: []byte(issTLE + debTLE)}, nil)
	src.MaxObjects = 1

	contents, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(contents.Objects) != 1 || len(contents.Elements.Entries) != 1 {
		t.Errorf("MaxObjects not applied: %d objects", len(contents.Objects))
	}
}

func TestTLECatalogElementsFor(t *testing.T) {
	src := newTLESource(stubFetcher{data: []byte(issTLE)}, nil)
	contents, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	c := New(src.Name(), time.Now(), contents.Objects, contents.Elements)

	e, ok := c.ElementsFor("25544")
	if !ok || e.NORADID != 25544 {
		t.Errorf("ElementsFor = %+v, %v", e, ok)
	}
}
