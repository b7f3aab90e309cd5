package transform

import (
	"math"
	"testing"
)

func TestSphereProjection(t *testing.T) {
	const r = 5.0
	tests := []struct {
		name     string
		lat, lon float64
		want     Vec3
	}{
		{"north pole", 90, 0, Vec3{Y: r}},
		{"south pole", -90, 0, Vec3{Y: -r}},
		{"equator prime meridian", 0, 0, Vec3{X: r}},
		{"equator 90E", 0, 90, Vec3{Z: -r}},
		{"equator 90W", 0, -90, Vec3{Z: r}},
		{"antimeridian", 0, 180, Vec3{X: -r}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SphereProjection(tt.lat, tt.lon, r)
			if d := got.DistanceTo(tt.want); d > 1e-9 {
				t.Errorf("SphereProjection(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func TestSphereProjectionStaysOnShell(t *testing.T) {
	const r = 2.5
	for lat := -90.0; lat <= 90; lat += 15 {
		for lon := -180.0; lon <= 180; lon += 30 {
			if n := SphereProjection(lat, lon, r).Norm(); math.Abs(n-r) > 1e-9 {
				t.Fatalf("|p(%v,%v)| = %v, want %v", lat, lon, n, r)
			}
		}
	}
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -2, Y: 0.5, Z: 4}

	if got := a.Add(b); got != (Vec3{X: -1, Y: 2.5, Z: 7}) {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got != (Vec3{X: 3, Y: 1.5, Z: -1}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Dot(b); got != 11 {
		t.Errorf("Dot = %v, want 11", got)
	}
	if got := (Vec3{X: 3, Y: 4}).Norm(); got != 5 {
		t.Errorf("Norm = %v, want 5", got)
	}
	if (Vec3{X: math.NaN()}).IsFinite() {
		t.Error("NaN vector reported finite")
	}
}
