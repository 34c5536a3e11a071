// Package resolve implements the cost-guided polytomy resolver: enumeration
// of binary refinements of multifurcating gene tree nodes, branch-and-bound
// search for the minimum duplication/loss cost, and tie handling.
//
// Shapes are generated by sequential leaf insertion: the partial binary tree
// over the first m children grows by inserting child m on any of its 2m-3
// edges (counting the edge above the root), which yields every unordered
// binary topology over k leaves exactly once, (2k-3)!! in total.
package resolve

import (
	"errors"
	"fmt"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
	rc "github.com/UdeM-LBIT/profileNJ/internal/recon"
)

var ErrDegenerateInput = errors.New("not a polytomy")

// shape is a partial binary tree over child slots, stored as a fixed-size
// arena so that insertions can be undone by truncation. img and cost track
// the species image and local cost contribution of every internal node;
// they are maintained incrementally along the insertion path only, since
// images of the original child subtrees never change.
type shape struct {
	left, right []int     // child node indices (-1 below leaves)
	parent      []int     // parent node index (-1 at root)
	slot        []int     // child slot for leaves, -1 for internal nodes
	img         []int     // species image per node
	cost        []rc.Cost // cost contribution per internal node
	root        int
	n           int     // nodes in use
	total       rc.Cost // sum of internal node costs
}

// state of one node before an insertion touched it
type nodeState struct {
	node int
	img  int
	cost rc.Cost
}

type insertUndo struct {
	e       int // node the new leaf was inserted above
	eParent int
	oldRoot int
	changed []nodeState
}

// newShape starts the insertion sequence with the cherry over slots 0 and 1.
// A nil td disables image/cost tracking (pure shape enumeration).
func newShape(k int, td *gr.TreeData, imgs []int) *shape {
	cap := 2*k - 1
	s := &shape{
		left:   make([]int, cap),
		right:  make([]int, cap),
		parent: make([]int, cap),
		slot:   make([]int, cap),
		img:    make([]int, cap),
		cost:   make([]rc.Cost, cap),
	}
	l0 := s.addLeaf(0)
	l1 := s.addLeaf(1)
	root := s.addInternal()
	s.left[root], s.right[root] = l0, l1
	s.parent[l0], s.parent[l1] = root, root
	s.root = root
	if td != nil {
		s.img[l0], s.img[l1] = imgs[0], imgs[1]
		s.refresh(root, td)
	}
	return s
}

func (s *shape) addLeaf(slot int) int {
	v := s.addInternal()
	s.slot[v] = slot
	return v
}

func (s *shape) addInternal() int {
	v := s.n
	s.n++
	s.left[v], s.right[v], s.parent[v] = -1, -1, -1
	s.slot[v] = -1
	s.img[v] = -1
	s.cost[v] = rc.Cost{}
	return v
}

// refresh recomputes the image and cost of internal node v from its
// children, keeping the running total consistent.
func (s *shape) refresh(v int, td *gr.TreeData) {
	li, ri := s.img[s.left[v]], s.img[s.right[v]]
	img := td.LCA(li, ri)
	cost := rc.NodeCost(td, img, []int{li, ri})
	s.total = rc.Cost{
		Duplications: s.total.Duplications - s.cost[v].Duplications + cost.Duplications,
		Losses:       s.total.Losses - s.cost[v].Losses + cost.Losses,
	}
	s.img[v], s.cost[v] = img, cost
}

func (s *shape) setState(v, img int, cost rc.Cost) {
	s.total = rc.Cost{
		Duplications: s.total.Duplications - s.cost[v].Duplications + cost.Duplications,
		Losses:       s.total.Losses - s.cost[v].Losses + cost.Losses,
	}
	s.img[v], s.cost[v] = img, cost
}

func (s *shape) replaceChild(p, old, new int) {
	switch {
	case s.left[p] == old:
		s.left[p] = new
	case s.right[p] == old:
		s.right[p] = new
	default:
		panic("replaceChild: old is not a child of p")
	}
}

// insert grafts a new leaf for the given slot onto the edge above node e,
// updating images and costs along the path to the root.
func (s *shape) insert(e, slot int, td *gr.TreeData, imgs []int) insertUndo {
	undo := insertUndo{e: e, eParent: s.parent[e], oldRoot: s.root}
	l := s.addLeaf(slot)
	v := s.addInternal()
	s.left[v], s.right[v] = e, l
	s.parent[e], s.parent[l] = v, v
	if undo.eParent == -1 {
		s.root = v
	} else {
		s.replaceChild(undo.eParent, e, v)
		s.parent[v] = undo.eParent
	}
	if td != nil {
		s.img[l] = imgs[slot]
		for cur := v; cur != -1; cur = s.parent[cur] {
			undo.changed = append(undo.changed, nodeState{node: cur, img: s.img[cur], cost: s.cost[cur]})
			s.refresh(cur, td)
		}
	}
	return undo
}

func (s *shape) undoInsert(u insertUndo, td *gr.TreeData) {
	if td != nil {
		for i := len(u.changed) - 1; i >= 0; i-- {
			st := u.changed[i]
			s.setState(st.node, st.img, st.cost)
		}
	}
	v := s.n - 1 // internal node added by insert
	s.parent[u.e] = u.eParent
	if u.eParent == -1 {
		s.root = u.oldRoot
	} else {
		s.replaceChild(u.eParent, v, u.e)
	}
	s.n -= 2
}

// refinement extracts the completed shape as a join sequence (root last).
func (s *shape) refinement(k int) *gr.Refinement {
	joins := make([][2]int, 0, k-1)
	var walk func(v int) int
	walk = func(v int) int {
		if s.slot[v] >= 0 {
			return s.slot[v]
		}
		a := walk(s.left[v])
		b := walk(s.right[v])
		joins = append(joins, [2]int{a, b})
		return k + len(joins) - 1
	}
	walk(s.root)
	return &gr.Refinement{K: k, Joins: joins}
}

type candidate struct {
	ref  *gr.Refinement
	cost rc.Cost
}

type enumerator struct {
	s         *shape
	td        *gr.TreeData
	imgs      []int
	weights   rc.Weights
	ceiling   int
	examined  int
	truncated bool
	found     bool
	best      float64
	ties      []candidate
}

// enumerateResolutions searches the binary resolutions of a polytomy whose
// children carry the given species images, and returns every candidate
// achieving the minimum weighted cost (in generation order), plus whether
// the search was truncated by the candidate ceiling. A partial shape is
// abandoned when even the maximum loss reduction the remaining insertions
// could achieve cannot bring it back down to the best complete cost; the
// bound is strict so that cost ties are never lost.
func enumerateResolutions(td *gr.TreeData, childImgs []int, w rc.Weights, ceiling int) ([]candidate, bool, error) {
	k := len(childImgs)
	if k < 2 {
		return nil, false, fmt.Errorf("%w, node with %d children reached the enumerator", ErrDegenerateInput, k)
	}
	en := &enumerator{
		s:       newShape(k, td, childImgs),
		td:      td,
		imgs:    childImgs,
		weights: w,
		ceiling: ceiling,
	}
	en.insertAll(2)
	return en.ties, en.truncated, nil
}

func (en *enumerator) insertAll(m int) {
	if m == len(en.imgs) {
		en.visit()
		return
	}
	limit := en.s.n
	for e := 0; e < limit && !en.truncated; e++ {
		undo := en.s.insert(e, m, en.td, en.imgs)
		if !en.prune(m + 1) {
			en.insertAll(m + 1)
		}
		en.s.undoInsert(undo, en.td)
	}
}

// The running total is not monotone under leaf insertion: grafting a leaf
// onto a loss path splits one loss edge into two and recovers one loss.
// Every other term only grows (duplications never net-decrease, and image
// rises add at least as many losses below as they remove above), so the
// total minus one loss per remaining insertion is a valid lower bound on
// any completion.
func (en *enumerator) prune(placed int) bool {
	if en.td == nil || !en.found {
		return false
	}
	slack := float64(len(en.imgs)-placed) * en.weights.Loss
	return en.s.total.Weighted(en.weights)-slack > en.best
}

func (en *enumerator) visit() {
	if en.examined == en.ceiling {
		en.truncated = true
		return
	}
	en.examined++
	if en.td == nil {
		en.ties = append(en.ties, candidate{ref: en.s.refinement(len(en.imgs))})
		return
	}
	wc := en.s.total.Weighted(en.weights)
	switch {
	case !en.found || wc < en.best:
		en.found = true
		en.best = wc
		en.ties = append(en.ties[:0], candidate{ref: en.s.refinement(len(en.imgs)), cost: en.s.total})
	case wc == en.best:
		en.ties = append(en.ties, candidate{ref: en.s.refinement(len(en.imgs)), cost: en.s.total})
	}
}

// allResolutions generates every binary shape over k slots without cost
// tracking. Used by tests and the brute-force oracle.
func allResolutions(k int) []*gr.Refinement {
	if k < 2 {
		panic(fmt.Sprintf("allResolutions called with k = %d", k))
	}
	en := &enumerator{
		s:       newShape(k, nil, nil),
		imgs:    make([]int, k),
		ceiling: -1, // never reached
	}
	en.insertAll(2)
	refs := make([]*gr.Refinement, len(en.ties))
	for i, c := range en.ties {
		refs[i] = c.ref
	}
	return refs
}
