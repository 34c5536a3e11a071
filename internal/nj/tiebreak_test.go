package nj

import (
	"testing"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

func TestMetricFlag(t *testing.T) {
	var m Metric
	if err := m.Set("quartet"); err != nil || m != QuartetAgreement {
		t.Errorf("Set(quartet) = %v, %v", m, err)
	}
	if err := m.Set("bipartition"); err != nil || m != BipartitionAgreement {
		t.Errorf("Set(bipartition) = %v, %v", m, err)
	}
	if err := m.Set("nope"); err == nil {
		t.Error("invalid metric accepted")
	}
	if BipartitionAgreement.String() != "bipartition" || QuartetAgreement.String() != "quartet" {
		t.Error("metric String roundtrip wrong")
	}
}

func TestSharedBipartitions(t *testing.T) {
	pairAB := &gr.Refinement{K: 4, Joins: [][2]int{{0, 1}, {2, 3}, {4, 5}}}
	caterpillarAB := &gr.Refinement{K: 4, Joins: [][2]int{{0, 1}, {4, 2}, {5, 3}}}
	pairAC := &gr.Refinement{K: 4, Joins: [][2]int{{0, 2}, {1, 3}, {4, 5}}}
	if got := sharedBipartitions(pairAB, pairAB); got != 1 {
		t.Errorf("self agreement = %d, expected 1", got)
	}
	// same unrooted topology, different rooted shape
	if got := sharedBipartitions(caterpillarAB, pairAB); got != 1 {
		t.Errorf("caterpillar vs balanced = %d, expected 1", got)
	}
	if got := sharedBipartitions(pairAB, pairAC); got != 0 {
		t.Errorf("conflicting pairings = %d, expected 0", got)
	}
}

func TestSharedQuartets(t *testing.T) {
	// caterpillars over 5 slots differing in one internal edge
	a := &gr.Refinement{K: 5, Joins: [][2]int{{0, 1}, {5, 2}, {6, 3}, {7, 4}}}
	b := &gr.Refinement{K: 5, Joins: [][2]int{{0, 2}, {5, 1}, {6, 3}, {7, 4}}}
	if got := sharedQuartets(a, a); got != 5 {
		t.Errorf("self agreement = %d, expected all 5 quartets", got)
	}
	if got := sharedQuartets(a, b); got >= 5 {
		t.Errorf("different topologies agree on all quartets (%d)", got)
	}
}

func TestChoose(t *testing.T) {
	children := []Child{
		{Rep: "A_1", Leaves: []string{"A_1"}},
		{Rep: "A_2", Leaves: []string{"A_2"}},
		{Rep: "B_1", Leaves: []string{"B_1"}},
		{Rep: "B_2", Leaves: []string{"B_2"}},
	}
	cands := []*gr.Refinement{
		{K: 4, Joins: [][2]int{{0, 2}, {1, 3}, {4, 5}}}, // (A_1,B_1),(A_2,B_2)
		{K: 4, Joins: [][2]int{{0, 3}, {1, 2}, {4, 5}}}, // (A_1,B_2),(A_2,B_1)
	}
	d := symFromRows(4, [][]float64{
		{0, 1, 1, 0.1},
		{1, 0, 0.1, 1},
		{1, 0.1, 0, 1},
		{0.1, 1, 1, 0},
	})
	dm, err := NewDistanceMatrix([]string{"A_1", "A_2", "B_1", "B_2"}, d)
	if err != nil {
		t.Fatal(err)
	}
	for _, metric := range []Metric{BipartitionAgreement, QuartetAgreement} {
		pick, used := Choose(cands, children, dm, metric)
		if !used {
			t.Errorf("%s: tie breaker did not run", metric)
		}
		if pick != 1 {
			t.Errorf("%s: picked candidate %d, distances favor candidate 1", metric, pick)
		}
	}
}

func TestChooseFallsBack(t *testing.T) {
	children := []Child{
		{Rep: "a", Leaves: []string{"a"}},
		{Rep: "b", Leaves: []string{"b"}},
		{Rep: "c", Leaves: []string{"c"}},
	}
	cands := []*gr.Refinement{
		{K: 3, Joins: [][2]int{{0, 1}, {3, 2}}},
		{K: 3, Joins: [][2]int{{0, 2}, {3, 1}}},
	}
	if pick, used := Choose(cands, children, nil, BipartitionAgreement); pick != 0 || used {
		t.Errorf("nil matrix should fall back to the first candidate, got %d %v", pick, used)
	}
	dm, err := NewDistanceMatrix([]string{"a", "b"}, symFromRows(2, [][]float64{{0, 1}, {1, 0}}))
	if err != nil {
		t.Fatal(err)
	}
	if pick, used := Choose(cands, children, dm, BipartitionAgreement); pick != 0 || used {
		t.Errorf("uncovered taxon should fall back, got %d %v", pick, used)
	}
	if pick, used := Choose(cands[:1], children, dm, BipartitionAgreement); pick != 0 || used {
		t.Errorf("single candidate never invokes the tie breaker, got %d %v", pick, used)
	}
}
