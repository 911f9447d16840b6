package best

import (
	"testing"
	"testing/quick"

	"goalpace/internal/domain"
)

func TestEmptyHistoryIsAlwaysBest(t *testing.T) {
	prop := func(x float64) bool {
		return IsNewBest(nil, x, domain.Maximize) && IsNewBest([]float64{}, x, domain.Minimize)
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestIsNewBestExamples(t *testing.T) {
	cases := []struct {
		history   []float64
		candidate float64
		dir       domain.Direction
		want      bool
	}{
		{[]float64{10, 20, 15}, 20, domain.Maximize, false},
		{[]float64{10, 20, 15}, 21, domain.Maximize, true},
		{[]float64{30, 25}, 25, domain.Minimize, false},
		{[]float64{30, 25}, 24, domain.Minimize, true},
		{[]float64{30, 25}, 31, domain.Maximize, true},
		{[]float64{-5}, -4, domain.Maximize, true},
	}
	for _, tc := range cases {
		if got := IsNewBest(tc.history, tc.candidate, tc.dir); got != tc.want {
			t.Fatalf("IsNewBest(%v, %v, %s) = %v, want %v", tc.history, tc.candidate, tc.dir, got, tc.want)
		}
	}
}

func TestEvaluateDoesNotMutateHistory(t *testing.T) {
	history := []float64{12.5, 14, 13}
	res := Evaluate("run_distance", history, 15.2, domain.Maximize)
	if !res.IsNewBest || res.Previous == nil || res.Previous.BestValue != 14 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(history) != 3 || history[2] != 13 {
		t.Fatalf("history mutated: %v", history)
	}
	first := Evaluate("5k_time", nil, 1500, domain.Minimize)
	if !first.IsNewBest || first.Previous != nil {
		t.Fatalf("first observation should be a best without previous: %+v", first)
	}
}

func TestBest(t *testing.T) {
	rec, ok := Best("5k_time", []float64{1620, 1540, 1580}, domain.Minimize)
	if !ok || rec.BestValue != 1540 || rec.Direction != domain.Minimize {
		t.Fatalf("unexpected best %+v", rec)
	}
	if _, ok := Best("x", nil, domain.Maximize); ok {
		t.Fatal("empty history has no best")
	}
}
