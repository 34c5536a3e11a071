package graphs

import (
	"testing"
)

func TestCanonical(t *testing.T) {
	testCases := []struct {
		name   string
		ref    Refinement
		labels []string
		want   string
	}{
		{
			name:   "cherry",
			ref:    Refinement{K: 2, Joins: [][2]int{{0, 1}}},
			labels: []string{"b", "a"},
			want:   "(a,b)",
		},
		{
			name:   "caterpillar",
			ref:    Refinement{K: 3, Joins: [][2]int{{0, 1}, {3, 2}}},
			labels: []string{"a", "b", "c"},
			want:   "((a,b),c)",
		},
		{
			name:   "join order irrelevant",
			ref:    Refinement{K: 3, Joins: [][2]int{{1, 0}, {2, 3}}},
			labels: []string{"a", "b", "c"},
			want:   "((a,b),c)",
		},
		{
			name:   "balanced",
			ref:    Refinement{K: 4, Joins: [][2]int{{2, 3}, {0, 1}, {5, 4}}},
			labels: []string{"a", "b", "c", "d"},
			want:   "((a,b),(c,d))",
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			if got := test.ref.Canonical(test.labels); got != test.want {
				t.Errorf("Canonical = %q, expected %q", got, test.want)
			}
		})
	}
}

func TestCanonicalDistinguishesTopologies(t *testing.T) {
	labels := []string{"a", "b", "c"}
	refs := []Refinement{
		{K: 3, Joins: [][2]int{{0, 1}, {3, 2}}},
		{K: 3, Joins: [][2]int{{0, 2}, {3, 1}}},
		{K: 3, Joins: [][2]int{{1, 2}, {3, 0}}},
	}
	seen := make(map[string]bool)
	for _, ref := range refs {
		seen[ref.Canonical(labels)] = true
	}
	if len(seen) != 3 {
		t.Errorf("3 topologies gave %d canonical strings", len(seen))
	}
}

func TestCanonicalPanicsOnLabelMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Canonical should panic when label count does not match")
		}
	}()
	ref := Refinement{K: 3, Joins: [][2]int{{0, 1}, {3, 2}}}
	ref.Canonical([]string{"a", "b"})
}

func TestClusters(t *testing.T) {
	ref := Refinement{K: 4, Joins: [][2]int{{0, 1}, {4, 2}, {5, 3}}}
	clusters := ref.Clusters()
	want := [][]uint{{0, 1}, {0, 1, 2}, {0, 1, 2, 3}}
	if len(clusters) != len(want) {
		t.Fatalf("got %d clusters, expected %d", len(clusters), len(want))
	}
	for i, slots := range want {
		if int(clusters[i].Count()) != len(slots) {
			t.Errorf("cluster %d has %d slots, expected %d", i, clusters[i].Count(), len(slots))
		}
		for _, s := range slots {
			if !clusters[i].Test(s) {
				t.Errorf("cluster %d missing slot %d", i, s)
			}
		}
	}
}

func TestQuartetTopology(t *testing.T) {
	testCases := []struct {
		name string
		ref  Refinement
		want uint8
	}{
		{
			name: "ab|cd",
			ref:  Refinement{K: 4, Joins: [][2]int{{0, 1}, {2, 3}, {4, 5}}},
			want: QTopoAB,
		},
		{
			name: "ac|bd",
			ref:  Refinement{K: 4, Joins: [][2]int{{0, 2}, {1, 3}, {4, 5}}},
			want: QTopoAC,
		},
		{
			name: "ad|bc",
			ref:  Refinement{K: 4, Joins: [][2]int{{0, 3}, {1, 2}, {4, 5}}},
			want: QTopoAD,
		},
		{
			name: "caterpillar ab|cd",
			ref:  Refinement{K: 4, Joins: [][2]int{{0, 1}, {4, 2}, {5, 3}}},
			want: QTopoAB,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			if got := test.ref.QuartetTopology(0, 1, 2, 3); got != test.want {
				t.Errorf("QuartetTopology = %d, expected %d", got, test.want)
			}
		})
	}
}

func TestQuartetTopologyLargerRefinement(t *testing.T) {
	// caterpillar ((((0,1),2),3),4)
	ref := Refinement{K: 5, Joins: [][2]int{{0, 1}, {5, 2}, {6, 3}, {7, 4}}}
	if got := ref.QuartetTopology(0, 1, 3, 4); got != QTopoAB {
		t.Errorf("expected 01|34 pairing, got %d", got)
	}
	if got := ref.QuartetTopology(1, 2, 3, 4); got != QTopoAB {
		t.Errorf("expected 12|34 pairing on a caterpillar, got %d", got)
	}
}
