package resolve

import (
	"fmt"
	"log"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
	"github.com/UdeM-LBIT/profileNJ/internal/nj"
	rc "github.com/UdeM-LBIT/profileNJ/internal/recon"
)

const DefaultCeiling = 10000

type Options struct {
	Weights     rc.Weights         // duplication/loss event weights
	Ceiling     int                // max resolutions examined per polytomy
	Metric      nj.Metric          // tie-break agreement metric
	NProcs      int                // number of parallel processes
	SpeciesName rc.SpeciesNameFunc // species name extraction from leaf labels
	DistMatrix  *nj.DistanceMatrix // optional, enables the NJ tie breaker
}

func DefaultOptions() Options {
	return Options{
		Weights: rc.DefaultWeights(),
		Ceiling: DefaultCeiling,
		Metric:  nj.BipartitionAgreement,
		NProcs:  1,
	}
}

// PolytomyStats records what happened at one multifurcating node.
type PolytomyStats struct {
	Node       int     // arena index of the polytomy vertex
	Arity      int     // number of children before resolution
	LocalCost  rc.Cost // cost of the chosen refinement's internal nodes
	Candidates int     // cost-optimal candidates found
	TieBroken  bool    // NJ reference tree used to pick among candidates
	Fallback   bool    // tie present but broken by canonical order instead
	Truncated  bool    // search stopped at the candidate ceiling
}

// Result of resolving one gene tree.
type Result struct {
	Tree       *gr.GeneTree
	Cost       rc.Cost // reconciliation cost of the resolved tree
	Polytomies []PolytomyStats
}

type chosen struct {
	node     int
	childIDs []int
	ref      *gr.Refinement
	stats    PolytomyStats
}

// Resolve replaces every multifurcating node of the gene tree with a
// minimum duplication/loss binary refinement and returns the resolved tree
// with its total reconciliation cost. The input tree is not modified.
//
// A refinement never changes the species image of the polytomy vertex
// itself, so the searches at different polytomies are independent; they run
// in parallel and the winning refinements are spliced in afterwards, in
// post order.
func Resolve(gt *gr.GeneTree, td *gr.TreeData, opts Options) (*Result, error) {
	gt = gt.Clone()
	m, err := rc.MapGeneTree(gt, td, opts.SpeciesName)
	if err != nil {
		return nil, err
	}
	polys := gt.Polytomies()
	picks := make([]chosen, len(polys))
	var eg errgroup.Group
	eg.SetLimit(max(opts.NProcs, 1))
	for i, v := range polys {
		i, v := i, v
		eg.Go(func() error {
			pick, err := resolvePolytomy(gt, td, m, v, opts)
			if err != nil {
				return fmt.Errorf("polytomy at node %d: %w", v, err)
			}
			picks[i] = pick
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	stats := make([]PolytomyStats, len(picks))
	for i, pick := range picks {
		if err := gt.Splice(pick.node, pick.childIDs, pick.ref); err != nil {
			return nil, err
		}
		stats[i] = pick.stats
	}
	m, err = rc.MapGeneTree(gt, td, opts.SpeciesName)
	if err != nil {
		return nil, err
	}
	return &Result{Tree: gt, Cost: rc.TreeCost(gt, td, m), Polytomies: stats}, nil
}

// resolvePolytomy enumerates the cost-optimal refinements of node v and
// picks one. Candidates are put in canonical order first, so the choice is
// deterministic whether or not a distance matrix is available.
func resolvePolytomy(gt *gr.GeneTree, td *gr.TreeData, m *rc.Mapping, v int, opts Options) (chosen, error) {
	childIDs := slices.Clone(gt.Nodes[v].Children)
	childImgs := make([]int, len(childIDs))
	children := make([]nj.Child, len(childIDs))
	labels := make([]string, len(childIDs))
	for i, c := range childIDs {
		childImgs[i] = m.Image(c)
		leaves := gt.SubtreeLeafLabels(c)
		children[i] = nj.Child{Rep: leaves[0], Leaves: leaves}
		labels[i] = leaves[0]
	}
	cands, truncated, err := enumerateResolutions(td, childImgs, opts.Weights, opts.Ceiling)
	if err != nil {
		return chosen{}, err
	}
	if truncated {
		log.Printf("WARNING: stopped after %d resolutions of %d-ary polytomy at node %d; result may be suboptimal\n",
			opts.Ceiling, len(childIDs), v)
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		return strings.Compare(a.ref.Canonical(labels), b.ref.Canonical(labels))
	})
	refs := make([]*gr.Refinement, len(cands))
	for i, c := range cands {
		refs[i] = c.ref
	}
	pick, njUsed := nj.Choose(refs, children, opts.DistMatrix, opts.Metric)
	return chosen{
		node:     v,
		childIDs: childIDs,
		ref:      cands[pick].ref,
		stats: PolytomyStats{
			Node:       v,
			Arity:      len(childIDs),
			LocalCost:  cands[pick].cost,
			Candidates: len(cands),
			TieBroken:  njUsed,
			Fallback:   len(cands) > 1 && !njUsed,
			Truncated:  truncated,
		},
	}, nil
}

// ResolveAll resolves a batch of gene trees against one species tree. Trees
// run in parallel (one worker per tree); a failing tree yields a nil result
// and its error at the same index instead of aborting the batch.
func ResolveAll(gts []*gr.GeneTree, td *gr.TreeData, opts Options) ([]*Result, []error) {
	results := make([]*Result, len(gts))
	errs := make([]error, len(gts))
	inner := opts
	inner.NProcs = 1
	var eg errgroup.Group
	eg.SetLimit(max(opts.NProcs, 1))
	for i, gt := range gts {
		i, gt := i, gt
		eg.Go(func() error {
			res, err := Resolve(gt, td, inner)
			if err != nil {
				errs[i] = fmt.Errorf("gene tree %d: %w", i, err)
				log.Printf("WARNING: skipping gene tree %d: %s\n", i, err)
				return nil
			}
			results[i] = res
			logEveryNPercent(i, 10, len(gts), fmt.Sprintf("resolved %d out of %d gene trees", i+1, len(gts)))
			return nil
		})
	}
	eg.Wait() // workers never return errors
	return results, errs
}

// logs message when i is at every n percent interval of total
func logEveryNPercent(i, n, total int, message string) {
	if interval := (total * n) / 100; interval == 0 || (i+1)%interval == 0 {
		log.Print(message)
	}
}
