package recon

import (
	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

// Weights configures the relative cost of each event type. Passed explicitly
// through all calls; there is no global configuration.
type Weights struct {
	Dup  float64
	Loss float64
}

func DefaultWeights() Weights {
	return Weights{Dup: 1, Loss: 1}
}

// Cost is a duplication/loss event count pair.
type Cost struct {
	Duplications int
	Losses       int
}

func (c Cost) Add(o Cost) Cost {
	return Cost{Duplications: c.Duplications + o.Duplications, Losses: c.Losses + o.Losses}
}

func (c Cost) Weighted(w Weights) float64 {
	return float64(c.Duplications)*w.Dup + float64(c.Losses)*w.Loss
}

// EdgeLosses counts the species tree edges strictly between images anc and
// desc (0 if equal or adjacent).
func EdgeLosses(td *gr.TreeData, anc, desc int) int {
	if anc == desc {
		return 0
	}
	return td.PathLen(anc, desc) - 1
}

// NodeCost returns the cost contributed by a single internal node: one
// duplication if some child image equals the node image, plus the losses
// along each child edge.
func NodeCost(td *gr.TreeData, img int, childImgs []int) Cost {
	var c Cost
	for _, ci := range childImgs {
		if ci == img {
			c.Duplications = 1
		}
		c.Losses += EdgeLosses(td, img, ci)
	}
	return c
}

// TreeCost computes the reconciliation cost of a fully mapped gene tree in
// one bottom-up pass.
func TreeCost(gt *gr.GeneTree, td *gr.TreeData, m *Mapping) Cost {
	var total Cost
	gt.PostOrder(func(v int) bool {
		if gt.IsLeaf(v) {
			return true
		}
		childImgs := make([]int, len(gt.Nodes[v].Children))
		for i, c := range gt.Nodes[v].Children {
			childImgs[i] = m.Images[c]
		}
		total = total.Add(NodeCost(td, m.Images[v], childImgs))
		return true
	})
	return total
}
