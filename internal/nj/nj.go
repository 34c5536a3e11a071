// Package nj implements classical neighbor joining and the distance-based
// tie breaker used to pick among cost-tied polytomy refinements.
package nj

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

var (
	ErrNoMatrix     = errors.New("no distance matrix supplied")
	ErrMatrixShape  = errors.New("bad distance matrix shape")
	ErrNegativeDist = errors.New("negative distance")
	ErrUnknownTaxon = errors.New("taxon missing from distance matrix")
	ErrTooFewTaxa   = errors.New("too few taxa")
)

// DistanceMatrix is a symmetric non-negative distance lookup over named
// taxa. It is never mutated after construction; the clusterer works on its
// own copies.
type DistanceMatrix struct {
	index map[string]int
	taxa  []string
	d     *mat.SymDense
}

func NewDistanceMatrix(taxa []string, d *mat.SymDense) (*DistanceMatrix, error) {
	n := d.SymmetricDim()
	if n != len(taxa) {
		return nil, fmt.Errorf("%w, %d taxa for a %dx%d matrix", ErrMatrixShape, len(taxa), n, n)
	}
	index := make(map[string]int, n)
	for i, t := range taxa {
		if _, ok := index[t]; ok {
			return nil, fmt.Errorf("%w, duplicate taxon %q", ErrMatrixShape, t)
		}
		index[t] = i
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if d.At(i, j) < 0 {
				return nil, fmt.Errorf("%w, d(%s,%s) = %f", ErrNegativeDist, taxa[i], taxa[j], d.At(i, j))
			}
		}
	}
	return &DistanceMatrix{index: index, taxa: taxa, d: d}, nil
}

func (dm *DistanceMatrix) Has(taxon string) bool {
	_, ok := dm.index[taxon]
	return ok
}

func (dm *DistanceMatrix) Distance(a, b string) (float64, error) {
	i, ok := dm.index[a]
	if !ok {
		return 0, fmt.Errorf("%w, %q", ErrUnknownTaxon, a)
	}
	j, ok := dm.index[b]
	if !ok {
		return 0, fmt.Errorf("%w, %q", ErrUnknownTaxon, b)
	}
	return dm.d.At(i, j), nil
}

func (dm *DistanceMatrix) Taxa() []string {
	return dm.taxa
}

// Join runs classical neighbor joining over the k slots of the given
// distance matrix. At each of the k-2 iterations the minimum-Q pair is
// joined (lowest-id pair on exact Q ties, for reproducibility) and the
// matrix is updated with the standard averaging formula. The join sequence
// is returned as a refinement over the slots together with the branch
// length assigned to every cluster below its join.
func Join(d *mat.SymDense) (*gr.Refinement, []float64, error) {
	k := d.SymmetricDim()
	if k < 2 {
		return nil, nil, fmt.Errorf("%w, %d cluster(s)", ErrTooFewTaxa, k)
	}
	// work matrix indexed by cluster id; joins allocate ids k..2k-2
	work := mat.NewSymDense(2*k-1, nil)
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			work.SetSym(i, j, d.At(i, j))
		}
	}
	active := make([]int, k)
	for i := 0; i < k; i++ {
		active[i] = i
	}
	joins := make([][2]int, 0, k-1)
	lengths := make([]float64, 2*k-1)
	for len(active) > 2 {
		m := len(active)
		r := make(map[int]float64, m)
		for _, i := range active {
			for _, j := range active {
				if i != j {
					r[i] += work.At(i, j)
				}
			}
		}
		bestA, bestB, bestQ := -1, -1, 0.0
		for ai, i := range active {
			for _, j := range active[ai+1:] {
				q := float64(m-2)*work.At(i, j) - r[i] - r[j]
				if bestA == -1 || q < bestQ {
					bestA, bestB, bestQ = i, j, q
				}
			}
		}
		u := k + len(joins)
		dab := work.At(bestA, bestB)
		lengths[bestA] = dab/2 + (r[bestA]-r[bestB])/(2*float64(m-2))
		lengths[bestB] = dab - lengths[bestA]
		next := make([]int, 0, m-1)
		for _, x := range active {
			if x == bestA || x == bestB {
				continue
			}
			work.SetSym(u, x, (work.At(bestA, x)+work.At(bestB, x)-dab)/2)
			next = append(next, x)
		}
		joins = append(joins, [2]int{bestA, bestB})
		active = append(next, u)
	}
	a, b := active[0], active[1]
	lengths[a] = work.At(a, b) / 2
	lengths[b] = lengths[a]
	joins = append(joins, [2]int{a, b})
	return &gr.Refinement{K: k, Joins: joins}, lengths, nil
}
