package nj

import (
	"fmt"
	"log"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/mat"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

// Metric selects the topological agreement score used against the NJ
// reference tree.
type Metric int

const (
	BipartitionAgreement Metric = iota // shared nontrivial bipartitions
	QuartetAgreement                   // matching induced quartet topologies
)

var ParseMetric = map[string]Metric{
	"bipartition": BipartitionAgreement,
	"quartet":     QuartetAgreement,
}

func (m *Metric) Set(s string) error {
	if metric, ok := ParseMetric[s]; ok {
		*m = metric
		return nil
	}
	return fmt.Errorf("\"%s\" is not a valid tie-break metric", s)
}

func (m Metric) String() string {
	for s, metric := range ParseMetric {
		if metric == m {
			return s
		}
	}
	panic(fmt.Sprintf("metric (%d) does not exist", m))
}

// Child describes one polytomy child for the tie breaker.
type Child struct {
	Rep    string   // representative label (smallest leaf label below the child)
	Leaves []string // all leaf labels below the child
}

// Choose selects one refinement among the cost-tied candidates, which must
// be sorted in canonical order. It builds the NJ reference tree over the
// polytomy children (child-to-child distance = mean leaf cross-pair
// distance) and returns the candidate with the highest topological
// agreement; equal agreement falls back to canonical order. The second
// return reports whether the NJ reference was actually used: false means the
// matrix was missing or did not cover all children, and the first candidate
// in canonical order was chosen instead.
func Choose(cands []*gr.Refinement, children []Child, dm *DistanceMatrix, metric Metric) (int, bool) {
	if len(cands) == 0 {
		panic("tie breaker called without candidates")
	}
	if len(cands) == 1 {
		return 0, false
	}
	d, err := childDistances(children, dm)
	if err != nil {
		log.Printf("WARNING: falling back to canonical candidate order: %s\n", err)
		return 0, false
	}
	ref, _, err := Join(d)
	if err != nil {
		log.Printf("WARNING: falling back to canonical candidate order: %s\n", err)
		return 0, false
	}
	best, bestScore := 0, -1
	for i, cand := range cands {
		var score int
		switch metric {
		case BipartitionAgreement:
			score = sharedBipartitions(cand, ref)
		case QuartetAgreement:
			score = sharedQuartets(cand, ref)
		default:
			panic(fmt.Sprintf("invalid metric (%d)", metric))
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, true
}

// childDistances builds the k x k matrix of mean leaf cross-pair distances
// between polytomy children. Errors if the matrix does not cover some leaf.
func childDistances(children []Child, dm *DistanceMatrix) (*mat.SymDense, error) {
	if dm == nil {
		return nil, ErrNoMatrix
	}
	k := len(children)
	d := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			sum, count := 0.0, 0
			for _, a := range children[i].Leaves {
				for _, b := range children[j].Leaves {
					dist, err := dm.Distance(a, b)
					if err != nil {
						return nil, err
					}
					sum += dist
					count++
				}
			}
			d.SetSym(i, j, sum/float64(count))
		}
	}
	return d, nil
}

// sharedBipartitions counts the nontrivial bipartitions of the child slots
// that two refinements have in common. Clusters are canonicalized to the
// side not containing slot 0, so rooted join structures compare as unrooted
// topologies.
func sharedBipartitions(a, b *gr.Refinement) int {
	refSplits := nontrivialSplits(b)
	count := 0
	for s := range nontrivialSplits(a) {
		if refSplits[s] {
			count++
		}
	}
	return count
}

func nontrivialSplits(r *gr.Refinement) map[string]bool {
	splits := make(map[string]bool, len(r.Joins))
	for _, cl := range r.Clusters() {
		side := cl
		if side.Test(0) {
			side = complement(cl, r.K)
		}
		if n := side.Count(); n < 2 || int(n) > r.K-2 {
			continue
		}
		splits[side.String()] = true
	}
	return splits
}

func complement(b *bitset.BitSet, k int) *bitset.BitSet {
	c := b.Clone()
	c.FlipRange(0, uint(k))
	return c
}

// sharedQuartets counts the four-slot subsets on which two refinements
// induce the same unrooted topology.
func sharedQuartets(a, b *gr.Refinement) int {
	count := 0
	k := a.K
	for w := 0; w < k; w++ {
		for x := w + 1; x < k; x++ {
			for y := x + 1; y < k; y++ {
				for z := y + 1; z < k; z++ {
					if a.QuartetTopology(w, x, y, z) == b.QuartetTopology(w, x, y, z) {
						count++
					}
				}
			}
		}
	}
	return count
}
