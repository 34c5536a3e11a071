package graphs

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// The three unrooted topologies a refinement can induce on four child slots
// a < b < c < d.
const (
	QTopoAB = uint8(iota) // ab|cd
	QTopoAC               // ac|bd
	QTopoAD               // ad|bc
)

// Refinement is a binary join structure over the k children of one polytomy.
// Slots 0..k-1 stand for the original children; join j merges two existing
// clusters into cluster k+j. The last join is the refinement root. A
// refinement describes internal structure only: its leaves are the original
// child subtrees, attached under freshly introduced binary nodes when the
// refinement is spliced into the gene tree.
type Refinement struct {
	K     int
	Joins [][2]int
}

// Clusters returns the slot set created by each join, in join order.
func (r *Refinement) Clusters() []*bitset.BitSet {
	clusters := make([]*bitset.BitSet, len(r.Joins))
	slotSet := func(cluster int) *bitset.BitSet {
		if cluster < r.K {
			b := bitset.New(uint(r.K))
			b.Set(uint(cluster))
			return b
		}
		return clusters[cluster-r.K]
	}
	for j, join := range r.Joins {
		b := slotSet(join[0]).Clone()
		b.InPlaceUnion(slotSet(join[1]))
		clusters[j] = b
	}
	return clusters
}

// Canonical returns a deterministic encoding of the refinement topology:
// the nested grouping of the per-slot labels with the two sides of every
// join ordered lexicographically. Two refinements describe the same
// unordered topology iff their canonical strings are equal.
func (r *Refinement) Canonical(labels []string) string {
	if len(labels) != r.K {
		panic(fmt.Sprintf("refinement over %d slots given %d labels", r.K, len(labels)))
	}
	repr := make([]string, 2*r.K-1)
	copy(repr, labels)
	for j, join := range r.Joins {
		a, b := repr[join[0]], repr[join[1]]
		if a > b {
			a, b = b, a
		}
		repr[r.K+j] = "(" + a + "," + b + ")"
	}
	return repr[2*r.K-2]
}

// QuartetTopology returns the unrooted topology the refinement induces on
// slots a < b < c < d, as one of QTopoAB, QTopoAC, QTopoAD.
func (r *Refinement) QuartetTopology(a, b, c, d int) uint8 {
	clusters := r.Clusters()
	meet := func(x, y int) *bitset.BitSet {
		// joins are created bottom-up, so the first cluster holding both
		// slots is their minimal common cluster
		for _, cl := range clusters {
			if cl.Test(uint(x)) && cl.Test(uint(y)) {
				return cl
			}
		}
		panic("slots never joined; refinement is incomplete")
	}
	pairedOff := func(x, y, u, w int) bool {
		m := meet(x, y)
		return !m.Test(uint(u)) && !m.Test(uint(w))
	}
	switch {
	case pairedOff(a, b, c, d) || pairedOff(c, d, a, b):
		return QTopoAB
	case pairedOff(a, c, b, d) || pairedOff(b, d, a, c):
		return QTopoAC
	default:
		return QTopoAD
	}
}
