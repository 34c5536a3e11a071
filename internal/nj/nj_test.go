package nj

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

func symFromRows(n int, rows [][]float64) *mat.SymDense {
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, rows[i][j])
		}
	}
	return d
}

func TestNewDistanceMatrix(t *testing.T) {
	good := symFromRows(2, [][]float64{{0, 1}, {1, 0}})
	if _, err := NewDistanceMatrix([]string{"a", "b"}, good); err != nil {
		t.Errorf("valid matrix rejected: %v", err)
	}
	if _, err := NewDistanceMatrix([]string{"a", "b", "c"}, good); !errors.Is(err, ErrMatrixShape) {
		t.Errorf("expected ErrMatrixShape, got %v", err)
	}
	if _, err := NewDistanceMatrix([]string{"a", "a"}, good); !errors.Is(err, ErrMatrixShape) {
		t.Errorf("expected ErrMatrixShape for duplicate taxon, got %v", err)
	}
	neg := symFromRows(2, [][]float64{{0, -1}, {-1, 0}})
	if _, err := NewDistanceMatrix([]string{"a", "b"}, neg); !errors.Is(err, ErrNegativeDist) {
		t.Errorf("expected ErrNegativeDist, got %v", err)
	}
}

func TestDistanceLookup(t *testing.T) {
	dm, err := NewDistanceMatrix([]string{"a", "b"}, symFromRows(2, [][]float64{{0, 2.5}, {2.5, 0}}))
	if err != nil {
		t.Fatal(err)
	}
	if !dm.Has("a") || dm.Has("z") {
		t.Error("Has lookup wrong")
	}
	if d, err := dm.Distance("b", "a"); err != nil || d != 2.5 {
		t.Errorf("Distance(b, a) = %f, %v", d, err)
	}
	if _, err := dm.Distance("a", "z"); !errors.Is(err, ErrUnknownTaxon) {
		t.Errorf("expected ErrUnknownTaxon, got %v", err)
	}
	if !reflect.DeepEqual(dm.Taxa(), []string{"a", "b"}) {
		t.Errorf("Taxa = %v", dm.Taxa())
	}
}

func TestJoinRecoversAdditiveTree(t *testing.T) {
	// additive distances on ((w,x),(y,z)) with unit external branches and an
	// internal branch of length 2
	d := symFromRows(4, [][]float64{
		{0, 2, 4, 4},
		{2, 0, 4, 4},
		{4, 4, 0, 2},
		{4, 4, 2, 0},
	})
	ref, lengths, err := Join(d)
	if err != nil {
		t.Fatal(err)
	}
	if ref.K != 4 || len(ref.Joins) != 3 {
		t.Fatalf("bad refinement %+v", ref)
	}
	if got := ref.QuartetTopology(0, 1, 2, 3); got != gr.QTopoAB {
		t.Errorf("expected wx|yz topology, got %d", got)
	}
	for slot := 0; slot < 4; slot++ {
		if math.Abs(lengths[slot]-1) > 1e-9 {
			t.Errorf("external branch %d has length %f, expected 1", slot, lengths[slot])
		}
	}
}

func TestJoinCaterpillar(t *testing.T) {
	// additive distances on (((a,b),c),d) with unit branches
	d := symFromRows(4, [][]float64{
		{0, 2, 3, 4},
		{2, 0, 3, 4},
		{3, 3, 0, 3},
		{4, 4, 3, 0},
	})
	ref, _, err := Join(d)
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.QuartetTopology(0, 1, 2, 3); got != gr.QTopoAB {
		t.Errorf("expected ab|cd topology, got %d", got)
	}
	first := ref.Joins[0]
	if first != [2]int{0, 1} {
		t.Errorf("closest pair should join first, got %v", first)
	}
}

func TestJoinDeterministic(t *testing.T) {
	// all distances equal, every Q tied; lowest-id pairs must win
	d := symFromRows(4, [][]float64{
		{0, 1, 1, 1},
		{1, 0, 1, 1},
		{1, 1, 0, 1},
		{1, 1, 1, 0},
	})
	ref1, len1, err := Join(d)
	if err != nil {
		t.Fatal(err)
	}
	ref2, len2, err := Join(d)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ref1, ref2) || !reflect.DeepEqual(len1, len2) {
		t.Error("Join is not deterministic")
	}
	if ref1.Joins[0] != [2]int{0, 1} {
		t.Errorf("expected lowest-id pair to join first, got %v", ref1.Joins[0])
	}
}

func TestJoinTooFewClusters(t *testing.T) {
	if _, _, err := Join(mat.NewSymDense(1, nil)); !errors.Is(err, ErrTooFewTaxa) {
		t.Errorf("expected ErrTooFewTaxa, got %v", err)
	}
	ref, lengths, err := Join(symFromRows(2, [][]float64{{0, 3}, {3, 0}}))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ref.Joins, [][2]int{{0, 1}}) {
		t.Errorf("two clusters should join directly, got %v", ref.Joins)
	}
	if lengths[0] != 1.5 || lengths[1] != 1.5 {
		t.Errorf("final pair lengths = %v", lengths[:2])
	}
}
