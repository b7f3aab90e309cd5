package conjunction

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/star/debriswatch/internal/transform"
)

const satRadius = 0.08

func body(id string, pos, vel transform.Vec3) PhysicalObject {
	return PhysicalObject{
		SpaceObject: SpaceObject{ID: id, Name: strings.ToUpper(id), Category: CategorySatellite, Status: StatusOperational},
		Position:    pos,
		Velocity:    vel,
		Radius:      satRadius,
	}
}

// crossing returns two bodies whose straight-line paths pass offset apart at t=10.
func crossing(offset float64) []PhysicalObject {
	return []PhysicalObject{
		body("a", transform.Vec3{}, transform.Vec3{}),
		body("b", transform.Vec3{X: -10, Y: offset}, transform.Vec3{X: 1}),
	}
}

func TestClosestApproachScenarios(t *testing.T) {
	combined := 2 * satRadius

	tests := []struct {
		name          string
		bodies        []PhysicalObject
		wantPairs     int
		wantRisk      Risk
		wantCollision bool
	}{
		{
			name:          "collision at half combined radius",
			bodies:        crossing(0.5 * combined),
			wantPairs:     1,
			wantRisk:      RiskHigh,
			wantCollision: true,
		},
		{
			name:      "near miss at 1.5x",
			bodies:    crossing(1.5 * combined),
			wantPairs: 1,
			wantRisk:  RiskHigh,
		},
		{
			name:      "medium at 2.5x",
			bodies:    crossing(2.5 * combined),
			wantPairs: 1,
			wantRisk:  RiskMedium,
		},
		{
			name:      "low at 4.5x",
			bodies:    crossing(4.5 * combined),
			wantPairs: 1,
			wantRisk:  RiskLow,
		},
		{
			name:      "excluded at 5.5x",
			bodies:    crossing(5.5 * combined),
			wantPairs: 0,
		},
		{
			name: "identical position and velocity",
			bodies: []PhysicalObject{
				body("a", transform.Vec3{X: 1}, transform.Vec3{Y: 0.01}),
				body("b", transform.Vec3{X: 1}, transform.Vec3{Y: 0.01}),
			},
			wantPairs: 0,
		},
		{
			name: "approach already passed",
			bodies: []PhysicalObject{
				body("a", transform.Vec3{}, transform.Vec3{}),
				body("b", transform.Vec3{X: 10}, transform.Vec3{X: 1}),
			},
			wantPairs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := FindConjunctions(tt.bodies)
			if len(pairs) != tt.wantPairs {
				t.Fatalf("got %d pairs, want %d: %+v", len(pairs), tt.wantPairs, pairs)
			}
			if tt.wantPairs == 0 {
				return
			}

			p := pairs[0]
			if p.Risk != tt.wantRisk {
				t.Errorf("risk = %v, want %v", p.Risk, tt.wantRisk)
			}
			if p.Collision() != tt.wantCollision {
				t.Errorf("collision = %v, want %v", p.Collision(), tt.wantCollision)
			}
			if math.Abs(p.TimeToClosestApproach-10) > 1e-9 {
				t.Errorf("t* = %v, want 10", p.TimeToClosestApproach)
			}
			if tt.wantCollision && *p.TimeToCollision != 10 {
				t.Errorf("time to collision = %v, want 10", *p.TimeToCollision)
			}
			if p.A != "a" || p.B != "b" {
				t.Errorf("pair ids = (%s, %s), want (a, b)", p.A, p.B)
			}
		})
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		miss          float64
		wantRisk      Risk
		wantCollision bool
	}{
		{0, RiskHigh, true},
		{0.999, RiskHigh, true},
		{1, RiskHigh, false},
		{1.999, RiskHigh, false},
		{2, RiskMedium, false},
		{3, RiskLow, false},
		{4.999, RiskLow, false},
		{5, RiskNone, false},
		{math.NaN(), RiskNone, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.miss), func(t *testing.T) {
			risk, collision := Classify(tt.miss, 1)
			if risk != tt.wantRisk || collision != tt.wantCollision {
				t.Errorf("Classify(%v, 1) = (%v, %v), want (%v, %v)", tt.miss, risk, collision, tt.wantRisk, tt.wantCollision)
			}
		})
	}
}

func TestRankOrdering(t *testing.T) {
	ttc := 5.0
	pairs := []Pair{
		{A: "low", Risk: RiskLow, MissDistance: 0.1},
		{A: "high-near", Risk: RiskHigh, MissDistance: 0.2},
		{A: "high-coll-far", Risk: RiskHigh, MissDistance: 0.15, TimeToCollision: &ttc},
		{A: "medium", Risk: RiskMedium, MissDistance: 0.05},
		{A: "high-coll-near", Risk: RiskHigh, MissDistance: 0.05, TimeToCollision: &ttc},
	}

	ranked := Rank(pairs, -1)
	var got []string
	for _, p := range ranked {
		got = append(got, p.A)
	}
	want := []string{"high-coll-near", "high-coll-far", "high-near", "medium", "low"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	if pairs[0].A != "low" {
		t.Error("Rank modified its input")
	}

	capped := Rank(pairs, 2)
	if len(capped) != 2 || capped[0].A != "high-coll-near" || capped[1].A != "high-coll-far" {
		t.Errorf("capped = %+v", capped)
	}
}

func TestAnnotateMaxSeverityWins(t *testing.T) {
	pairs := []Pair{
		{A: "a", AName: "A", B: "c", BName: "C", Risk: RiskHigh},
		{A: "a", AName: "A", B: "b", BName: "B", Risk: RiskLow},
		{A: "b", AName: "B", B: "d", BName: "D", Risk: RiskMedium},
	}

	ann := Annotate(pairs)

	if got := ann["a"]; got.Risk != RiskHigh || !reflect.DeepEqual(got.ConflictNames, []string{"C", "B"}) {
		t.Errorf("a = %+v", got)
	}
	if got := ann["b"]; got.Risk != RiskMedium || !reflect.DeepEqual(got.ConflictIDs, []string{"a", "d"}) {
		t.Errorf("b = %+v", got)
	}
	if got := ann["c"]; got.Risk != RiskHigh {
		t.Errorf("c = %+v", got)
	}
	if _, ok := ann["e"]; ok {
		t.Error("object without pairs must not be annotated")
	}
}

func TestEstimateEmptyAndSingle(t *testing.T) {
	vp := NewRandomVelocity(0.02, 1)
	for _, objects := range [][]SpaceObject{nil, {{ID: "only", Category: CategoryDebris}}} {
		res := Estimate(objects, vp, DefaultConfig().Radii)
		if len(res.Pairs) != 0 || len(res.Annotations) != 0 {
			t.Errorf("n=%d: got %d pairs, %d annotations", len(objects), len(res.Pairs), len(res.Annotations))
		}
		if res.Pairs == nil || res.Annotations == nil {
			t.Errorf("n=%d: result fields must be non-nil for JSON", len(objects))
		}
	}
}

func TestEstimateCoLocatedStationaryObjects(t *testing.T) {
	objects := []SpaceObject{
		{ID: "s1", Name: "SAT-1", Latitude: 12, Longitude: 34, Category: CategorySatellite},
		{ID: "d1", Name: "DEB-1", Latitude: 12, Longitude: 34, Category: CategoryDebris},
	}
	res := Estimate(objects, FixedVelocity{}, DefaultConfig().Radii)
	if len(res.Pairs) != 0 {
		t.Errorf("expected no pairs for zero relative velocity, got %+v", res.Pairs)
	}
}

func TestEstimateUsesCategoryRadii(t *testing.T) {
	// One degree apart on the equator, with d1 drifting toward s1.
	objects := []SpaceObject{
		{ID: "s1", Name: "SAT-1", Latitude: 0, Longitude: 0, Category: CategorySatellite},
		{ID: "d1", Name: "DEB-1", Latitude: 0, Longitude: 1, Category: CategoryDebris},
	}
	vp := FixedVelocity{"d1": {Z: 0.01}}
	est := New(Config{ReferenceRadius: 5, Radii: Radii{Satellite: 0.3, Debris: 0.2}})

	res := est.Estimate(objects, vp)
	if len(res.Pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(res.Pairs))
	}
	if got := res.Pairs[0].CombinedRadius; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("combined radius = %v, want 0.5", got)
	}
	if !res.Pairs[0].Collision() {
		t.Errorf("expected collision, got %+v", res.Pairs[0])
	}
}

func TestEstimateDeterministicWithSeed(t *testing.T) {
	objects := randomObjects(rand.New(rand.NewPCG(7, 7)), 30)
	est := New(Config{ReferenceRadius: 1, Radii: Radii{Satellite: 0.05, Debris: 0.03}})

	first := est.Estimate(objects, NewRandomVelocity(0.05, 99))
	second := est.Estimate(objects, NewRandomVelocity(0.05, 99))

	if !reflect.DeepEqual(first, second) {
		t.Error("same seed produced different results")
	}
}

func TestRandomVelocityBounds(t *testing.T) {
	const vmax = 0.02
	vp := NewRandomVelocity(vmax, 3)
	for i := 0; i < 1000; i++ {
		v := vp.Velocity(SpaceObject{})
		for _, c := range v.Array() {
			if c < -vmax || c >= vmax {
				t.Fatalf("component %v outside [-%v, %v)", c, vmax, vmax)
			}
		}
	}
}

// TestEstimateProperties checks the output invariants over many random catalogs.
func TestEstimateProperties(t *testing.T) {
	const n = 40
	cfg := Config{ReferenceRadius: 1, Radii: Radii{Satellite: 0.05, Debris: 0.03}, MaxPairs: 15}
	est := New(cfg)

	total := 0
	for seed := uint64(1); seed <= 20; seed++ {
		objects := randomObjects(rand.New(rand.NewPCG(seed, 1)), n)

		// Same seed for both so the unranked scan sees the same velocities.
		all := FindConjunctions(Project(objects, NewRandomVelocity(0.05, seed), cfg.ReferenceRadius, cfg.Radii))
		res := est.Estimate(objects, NewRandomVelocity(0.05, seed))
		total += len(all)

		if limit := min(cfg.MaxPairs, n*(n-1)/2); len(res.Pairs) > limit {
			t.Fatalf("seed %d: %d pairs exceeds cap %d", seed, len(res.Pairs), limit)
		}
		if want := min(cfg.MaxPairs, len(all)); len(res.Pairs) != want {
			t.Fatalf("seed %d: got %d pairs, want %d", seed, len(res.Pairs), want)
		}

		seen := make(map[string]bool)
		for i, p := range res.Pairs {
			key := unorderedKey(p.A, p.B)
			if seen[key] {
				t.Fatalf("seed %d: duplicate pair %s", seed, key)
			}
			seen[key] = true

			if !(p.MissDistance < cutoffFactor*p.CombinedRadius) {
				t.Fatalf("seed %d: pair %s miss %.4f beyond cutoff", seed, key, p.MissDistance)
			}
			if i > 0 && Less(p, res.Pairs[i-1]) {
				t.Fatalf("seed %d: entry %d ranks ahead of entry %d", seed, i, i-1)
			}
		}

		// Tier never increases as the normalised miss distance grows.
		sort.Slice(all, func(i, j int) bool { return all[i].Ratio() < all[j].Ratio() })
		for i := 1; i < len(all); i++ {
			if all[i].Risk > all[i-1].Risk {
				t.Fatalf("seed %d: tier not monotonic at ratio %.3f", seed, all[i].Ratio())
			}
		}

		for id, ann := range res.Annotations {
			worst := RiskNone
			for _, p := range res.Pairs {
				if (p.A == id || p.B == id) && p.Risk > worst {
					worst = p.Risk
				}
			}
			if ann.Risk != worst {
				t.Fatalf("seed %d: %s annotated %v, worst pair is %v", seed, id, ann.Risk, worst)
			}
		}
		for _, p := range res.Pairs {
			if _, ok := res.Annotations[p.A]; !ok {
				t.Fatalf("seed %d: %s missing annotation", seed, p.A)
			}
		}
	}

	if total == 0 {
		t.Fatal("no conjunctions found across any seed; fixture is too sparse to test anything")
	}
}

func TestPairJSON(t *testing.T) {
	ttc := 10.0
	data, err := json.Marshal(Pair{A: "a", B: "b", Risk: RiskHigh, TimeToCollision: &ttc})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"risk":"High"`) || !strings.Contains(string(data), `"time_to_collision":10`) {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back Pair
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Risk != RiskHigh {
		t.Errorf("risk round trip = %v", back.Risk)
	}
}

func randomObjects(rng *rand.Rand, n int) []SpaceObject {
	objects := make([]SpaceObject, n)
	for i := range objects {
		cat := CategorySatellite
		if i%2 == 1 {
			cat = CategoryDebris
		}
		objects[i] = SpaceObject{
			ID:        fmt.Sprintf("obj-%02d", i),
			Name:      fmt.Sprintf("OBJ %02d", i),
			Latitude:  rng.Float64()*180 - 90,
			Longitude: rng.Float64()*360 - 180,
			Category:  cat,
			Status:    StatusOperational,
		}
	}
	return objects
}

func unorderedKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
