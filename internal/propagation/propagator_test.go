package propagation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/star/debriswatch/internal/tle"
	"github.com/star/debriswatch/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

var target = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testSet() *tle.Set {
	return &tle.Set{
		Source:    "test",
		FetchedAt: target,
		Entries: []tle.Entry{
			{NORADID: 25544, Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2},
			{NORADID: 44713, Name: "STARLINK-1007", Line1: starlinkLine1, Line2: starlinkLine2},
		},
	}
}

func TestSGP4Propagate(t *testing.T) {
	prop, err := NewSGP4(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4: %v", err)
	}

	teme, err := prop.PropagateTEME(target)
	if err != nil {
		t.Fatalf("PropagateTEME: %v", err)
	}

	// ISS at ~420 km: |r| ≈ 6791 km.
	mag := teme.Position.Norm()
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME magnitude = %.1f km, expected ~6791 km", mag)
	}

	ecef, err := prop.PropagateECEF(target)
	if err != nil {
		t.Fatalf("PropagateECEF: %v", err)
	}
	if !transform.ValidateECEF(ecef.Position) {
		t.Errorf("ECEF position failed validation: %+v", ecef.Position)
	}
	if got := ecef.Position.Norm() / 1000.0; math.Abs(got-mag) > 0.01 {
		t.Errorf("ECEF magnitude = %.3f km, TEME = %.3f km", got, mag)
	}
}

func TestNewSGP4Invalid(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"garbage", "invalid line 1", "invalid line 2"},
		{"swapped", issLine2, issLine1},
		{"short line2", issLine1, issLine2[:60]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSGP4(tt.line1, tt.line2, 99999); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWorkerPoolBatchKeepsOrder(t *testing.T) {
	pool := NewWorkerPool(4, testLogger())
	set := testSet()
	set.Entries = append(set.Entries, tle.Entry{NORADID: 1, Name: "BROKEN", Line1: "1 x", Line2: "2 y"})

	states, ok, failed := pool.PropagateBatch(context.Background(), set.Entries, target, nil)
	if ok != 2 || failed != 1 {
		t.Fatalf("ok=%d failed=%d, want 2/1", ok, failed)
	}
	if states[0].NORADID != 25544 || states[1].NORADID != 44713 {
		t.Errorf("states out of entry order: %d, %d", states[0].NORADID, states[1].NORADID)
	}
	for _, s := range states {
		if !transform.ValidateECEF(s.Position) {
			t.Errorf("NORAD %d: implausible ECEF position %+v", s.NORADID, s.Position)
		}
		if s.Name == "" {
			t.Errorf("NORAD %d: name not carried through", s.NORADID)
		}
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())

	entries := make([]tle.Entry, 100)
	for i := range entries {
		entries[i] = tle.Entry{NORADID: 25544 + i, Name: "TEST", Line1: issLine1, Line2: issLine2}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	states, _, _ := pool.PropagateBatch(ctx, entries, target, nil)
	if len(states) >= len(entries) {
		t.Errorf("expected fewer results with cancelled context, got %d/%d", len(states), len(entries))
	}
}

func TestPropagatorUsesModelCache(t *testing.T) {
	p := NewPropagator(Config{Workers: 2}, testLogger())
	set := testSet()

	states, err := p.Propagate(context.Background(), set, target)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}

	first, ok := p.Lookup(set, 25544)
	if !ok {
		t.Fatal("Lookup missed a propagated object")
	}
	again, _ := p.Lookup(set, 25544)
	if first != again {
		t.Error("same set should reuse the cached model")
	}

	other := testSet()
	rebuilt, _ := p.Lookup(other, 25544)
	if rebuilt == first {
		t.Error("a new set should rebuild the cache")
	}

	if _, ok := p.Lookup(set, 12345); ok {
		t.Error("Lookup found an unknown object")
	}
}

func TestPropagatorNoSet(t *testing.T) {
	p := NewPropagator(Config{}, testLogger())
	if _, err := p.Propagate(context.Background(), nil, target); !errors.Is(err, ErrNoElements) {
		t.Fatalf("err = %v, want ErrNoElements", err)
	}
	if _, ok := p.Lookup(nil, 25544); ok {
		t.Error("Lookup on nil set should miss")
	}
}

func BenchmarkPropagate1000(b *testing.B) {
	entries := make([]tle.Entry, 1000)
	for i := range entries {
		entries[i] = tle.Entry{NORADID: 25544 + i, Name: "TEST", Line1: issLine1, Line2: issLine2}
	}
	set := &tle.Set{Source: "bench", FetchedAt: target, Entries: entries}
	p := NewPropagator(Config{Workers: 4}, testLogger())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Propagate(ctx, set, target); err != nil {
			b.Fatal(err)
		}
	}
}
