package match

import (
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

func newTestSet(ids ...*identity.Identity) *identity.Set {
	set := identity.NewSet()
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func TestEuclidean(t *testing.T) {
	dist := Euclidean([]float32{3, 0}, []float32{0, 4})
	if dist != 5 {
		t.Errorf("expected distance 5, got %f", dist)
	}

	if d := Euclidean([]float32{1, 2}, []float32{1, 2, 3}); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for mismatched lengths, got %f", d)
	}

	if d := Euclidean(nil, nil); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for empty vectors, got %f", d)
	}
}

func TestMinDistance(t *testing.T) {
	refs := [][]float32{{0, 0}, {0, 3}, {0, 1}}
	if d := MinDistance([]float32{0, 1.5}, refs); d != 0.5 {
		t.Errorf("expected min distance 0.5, got %f", d)
	}

	if d := MinDistance([]float32{0, 0}, nil); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for no references, got %f", d)
	}
}

func TestMatch_ToleranceBoundary(t *testing.T) {
	set := newTestSet(&identity.Identity{
		Name:       "alice",
		Embeddings: [][]float32{{0}},
	})
	m := New(set)
	query := []float32{0.5} // distance exactly 0.5

	r := m.Match(query, Options{Tolerance: 0.5})
	if !r.Matched() {
		t.Fatal("expected distance at tolerance to match")
	}
	if r.Identity != "alice" {
		t.Errorf("expected alice, got %q", r.Identity)
	}
	if r.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %f", r.Confidence)
	}

	r = m.Match(query, Options{Tolerance: 0.49})
	if r.Matched() {
		t.Errorf("expected distance above tolerance to be rejected, got %q", r.Identity)
	}
}

func TestMatch_HighestConfidenceWins(t *testing.T) {
	set := newTestSet(
		&identity.Identity{Name: "alice", Embeddings: [][]float32{{0, 0.4}}},
		&identity.Identity{Name: "bob", Embeddings: [][]float32{{0, 0.1}}},
	)
	m := New(set)

	r := m.Match([]float32{0, 0}, Options{Tolerance: 0.6})
	if r.Identity != "bob" {
		t.Errorf("expected bob (closer reference), got %q", r.Identity)
	}
	if math.Abs(r.Confidence-0.9) > 1e-6 {
		t.Errorf("expected confidence 0.9, got %f", r.Confidence)
	}
}

func TestMatch_EnrollmentOrderBreaksTies(t *testing.T) {
	set := newTestSet(
		&identity.Identity{Name: "first", Embeddings: [][]float32{{0, 0.2}}},
		&identity.Identity{Name: "second", Embeddings: [][]float32{{0, 0.2}}},
	)
	m := New(set)

	r := m.Match([]float32{0, 0}, Options{Tolerance: 0.6})
	if r.Identity != "first" {
		t.Errorf("expected the first enrolled identity on a tie, got %q", r.Identity)
	}
}

func TestMatch_EmptySet(t *testing.T) {
	m := New(identity.NewSet())
	if r := m.Match([]float32{0}, Options{Tolerance: 0.6}); r.Matched() {
		t.Errorf("expected no match against an empty set, got %q", r.Identity)
	}
}

func TestMatch_PriorityWinsOverConfidence(t *testing.T) {
	set := newTestSet(
		&identity.Identity{Name: "alice", Embeddings: [][]float32{{0, 0.3}}},
		&identity.Identity{Name: "bob", Embeddings: [][]float32{{0, 0.1}}},
	)
	m := New(set)

	// bob is closer, but alice ranks higher in the priority order.
	r := m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Priority:  []string{"alice", "bob"},
	})
	if r.Identity != "alice" {
		t.Errorf("expected priority rank to win over confidence, got %q", r.Identity)
	}
	if math.Abs(r.Confidence-0.7) > 1e-6 {
		t.Errorf("expected alice's own confidence 0.7, got %f", r.Confidence)
	}
}

func TestMatch_PriorityIsHardFilter(t *testing.T) {
	set := newTestSet(
		&identity.Identity{Name: "alice", Embeddings: [][]float32{{0, 0.1}}},
	)
	m := New(set)

	// alice matches comfortably but is not in the priority order, so the
	// result must be no match, not a fallback to her.
	r := m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Priority:  []string{"bob"},
	})
	if r.Matched() {
		t.Errorf("expected no match when the only candidate is outside the priority order, got %q", r.Identity)
	}
}

func TestMatch_AgeImplausibleHalvesConfidence(t *testing.T) {
	birthdate := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	set := newTestSet(&identity.Identity{
		Name:       "kid",
		Embeddings: [][]float32{{0, 0.2}},
		Birthdate:  birthdate,
	})
	m := New(set)
	photoDate := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC) // expected age 8

	// Estimated age 15 is outside 8 ± (3 + 2 child bonus).
	r := m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Age:       &AgeContext{PhotoDate: photoDate, EstimatedAge: 15, Tolerance: 3},
	})
	if !r.Matched() {
		t.Fatal("age must not filter a candidate, only penalize it")
	}
	if math.Abs(r.Confidence-0.4) > 1e-6 {
		t.Errorf("expected halved confidence 0.4, got %f", r.Confidence)
	}

	// Estimated age 12 is inside the widened window (diff 4 <= 5).
	r = m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Age:       &AgeContext{PhotoDate: photoDate, EstimatedAge: 12, Tolerance: 3},
	})
	if math.Abs(r.Confidence-0.8) > 1e-6 {
		t.Errorf("expected full confidence 0.8 inside the window, got %f", r.Confidence)
	}
}

func TestMatch_AgeMissingDataPasses(t *testing.T) {
	set := newTestSet(&identity.Identity{
		Name:       "alice",
		Embeddings: [][]float32{{0, 0.2}},
		// no birthdate
	})
	m := New(set)

	r := m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Age:       &AgeContext{PhotoDate: time.Now(), EstimatedAge: 40, Tolerance: 3},
	})
	if math.Abs(r.Confidence-0.8) > 1e-6 {
		t.Errorf("expected no penalty without a birthdate, got confidence %f", r.Confidence)
	}
}

func TestMatch_PhotoBeforeBirthIsImplausible(t *testing.T) {
	set := newTestSet(&identity.Identity{
		Name:       "alice",
		Embeddings: [][]float32{{0, 0.2}},
		Birthdate:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	m := New(set)

	r := m.Match([]float32{0, 0}, Options{
		Tolerance: 0.6,
		Age: &AgeContext{
			PhotoDate:    time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
			EstimatedAge: 5,
			Tolerance:    3,
		},
	})
	if !r.Matched() {
		t.Fatal("expected a penalized match, not a filtered one")
	}
	if math.Abs(r.Confidence-0.4) > 1e-6 {
		t.Errorf("expected halved confidence 0.4, got %f", r.Confidence)
	}
}

func TestAgeAt(t *testing.T) {
	birthdate := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"day before anniversary", time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC), 7},
		{"on anniversary", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 8},
		{"after anniversary", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), 8},
		{"before birth", time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC), -1},
		{"months before birth", time.Date(2014, 8, 1, 0, 0, 0, 0, time.UTC), -1},
		{"years before birth", time.Date(2012, 3, 15, 0, 0, 0, 0, time.UTC), -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeAt(birthdate, tt.date); got != tt.want {
				t.Errorf("AgeAt(%s) = %d, want %d", tt.date.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}
