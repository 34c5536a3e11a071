package graphs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/evolbioinfo/gotree/tree"
)

var ErrStructure = errors.New("invalid tree structure")

// GeneNode is one slot of the gene tree arena. Parent and Children are
// indices into GeneTree.Nodes; the arena is append-only, so indices stay
// stable across splices.
type GeneNode struct {
	Parent   int    // index of parent node (-1 for root)
	Children []int  // indices of child nodes (empty for leaves)
	Label    string // taxon label for leaves
}

// GeneTree is a rooted, possibly multifurcating gene tree stored as an arena
// of nodes addressed by index.
type GeneTree struct {
	Nodes []GeneNode
	Root  int
}

// Convert a parsed gotree tree into an arena gene tree. The gotree root is
// taken as the root; a trifurcating root is kept as a (root) polytomy.
func GeneTreeFromTree(tre *tree.Tree) (*GeneTree, error) {
	gt := &GeneTree{}
	ids := make(map[*tree.Node]int)
	var convErr error
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if convErr != nil {
			return false
		}
		id := gt.NewNode(cur.Name())
		ids[cur] = id
		if cur.Tip() {
			if cur.Name() == "" {
				convErr = fmt.Errorf("%w, unlabeled leaf", ErrStructure)
				return false
			}
			return true
		}
		for _, c := range GetChildren(cur) {
			cid, ok := ids[c]
			if !ok {
				panic("post order visited parent before child")
			}
			gt.Nodes[id].Children = append(gt.Nodes[id].Children, cid)
			gt.Nodes[cid].Parent = id
		}
		return true
	})
	if convErr != nil {
		return nil, convErr
	}
	gt.Root = ids[tre.Root()]
	if err := gt.Validate(); err != nil {
		return nil, err
	}
	return gt, nil
}

// Append a new unattached node to the arena, returning its index
func (gt *GeneTree) NewNode(label string) int {
	gt.Nodes = append(gt.Nodes, GeneNode{Parent: -1, Label: label})
	return len(gt.Nodes) - 1
}

func (gt *GeneTree) IsLeaf(v int) bool {
	return len(gt.Nodes[v].Children) == 0
}

func (gt *GeneTree) NumNodes() int {
	return len(gt.Nodes)
}

func (gt *GeneTree) NumLeaves() int {
	count := 0
	for v := range gt.Nodes {
		if gt.IsLeaf(v) {
			count++
		}
	}
	return count
}

// PostOrder visits every node with children before parents, using an
// explicit stack so that deep trees cannot exhaust the goroutine stack.
// Traversal stops early if f returns false.
func (gt *GeneTree) PostOrder(f func(v int) bool) {
	stack := []int{gt.Root}
	order := make([]int, 0, len(gt.Nodes))
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		stack = append(stack, gt.Nodes[v].Children...)
	}
	for i := len(order) - 1; i >= 0; i-- {
		if !f(order[i]) {
			return
		}
	}
}

// Polytomies returns the indices of all nodes with more than two children,
// in post order (descendant polytomies before ancestor polytomies).
func (gt *GeneTree) Polytomies() []int {
	polys := make([]int, 0)
	gt.PostOrder(func(v int) bool {
		if len(gt.Nodes[v].Children) > 2 {
			polys = append(polys, v)
		}
		return true
	})
	return polys
}

// Validate checks the arena invariants: a single root without parent,
// consistent parent/child links, no cycles, no unreachable nodes, no
// internal node with fewer than two children, and labeled leaves.
func (gt *GeneTree) Validate() error {
	if gt.Root < 0 || gt.Root >= len(gt.Nodes) {
		return fmt.Errorf("%w, root index %d out of range", ErrStructure, gt.Root)
	}
	if gt.Nodes[gt.Root].Parent != -1 {
		return fmt.Errorf("%w, root has a parent", ErrStructure)
	}
	visited := make([]bool, len(gt.Nodes))
	stack := []int{gt.Root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[v] {
			return fmt.Errorf("%w, node %d reached twice", ErrStructure, v)
		}
		visited[v] = true
		node := gt.Nodes[v]
		if len(node.Children) == 1 {
			return fmt.Errorf("%w, node %d has exactly one child", ErrStructure, v)
		}
		if len(node.Children) == 0 && node.Label == "" {
			return fmt.Errorf("%w, unlabeled leaf %d", ErrStructure, v)
		}
		for _, c := range node.Children {
			if c < 0 || c >= len(gt.Nodes) {
				return fmt.Errorf("%w, child index %d out of range", ErrStructure, c)
			}
			if gt.Nodes[c].Parent != v {
				return fmt.Errorf("%w, node %d is not the parent of its child %d", ErrStructure, v, c)
			}
			stack = append(stack, c)
		}
	}
	for v := range gt.Nodes {
		if !visited[v] {
			return fmt.Errorf("%w, node %d disconnected from root", ErrStructure, v)
		}
	}
	return nil
}

func (gt *GeneTree) Clone() *GeneTree {
	nodes := make([]GeneNode, len(gt.Nodes))
	for i, n := range gt.Nodes {
		nodes[i] = GeneNode{Parent: n.Parent, Children: slices.Clone(n.Children), Label: n.Label}
	}
	return &GeneTree{Nodes: nodes, Root: gt.Root}
}

// SubtreeLeafLabels returns the sorted labels of all leaves below v
// (including v itself if it is a leaf).
func (gt *GeneTree) SubtreeLeafLabels(v int) []string {
	labels := make([]string, 0)
	stack := []int{v}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if gt.IsLeaf(u) {
			labels = append(labels, gt.Nodes[u].Label)
		}
		stack = append(stack, gt.Nodes[u].Children...)
	}
	slices.Sort(labels)
	return labels
}

// Splice replaces the polytomy at v, whose current children are childIDs
// (slot order of the refinement), with the binary structure of ref. The
// vertex v is reused as the refinement root so that its own parent edge and
// species image are untouched; every other join becomes a fresh internal
// node. The tree is re-validated after the mutation.
func (gt *GeneTree) Splice(v int, childIDs []int, ref *Refinement) error {
	if !slices.Equal(gt.Nodes[v].Children, childIDs) {
		return fmt.Errorf("%w, splice child list does not match node %d", ErrStructure, v)
	}
	if ref.K != len(childIDs) || len(ref.Joins) != ref.K-1 {
		return fmt.Errorf("%w, refinement does not cover %d children", ErrStructure, len(childIDs))
	}
	clusterNode := make([]int, 2*ref.K-1)
	copy(clusterNode, childIDs)
	for j, join := range ref.Joins {
		var n int
		if j == len(ref.Joins)-1 {
			n = v // final join is the refinement root
		} else {
			n = gt.NewNode("")
		}
		clusterNode[ref.K+j] = n
		a, b := clusterNode[join[0]], clusterNode[join[1]]
		gt.Nodes[n].Children = []int{a, b}
		gt.Nodes[a].Parent = n
		gt.Nodes[b].Parent = n
	}
	if gt.Nodes[v].Parent == -1 && v != gt.Root {
		return fmt.Errorf("%w, spliced vertex %d lost its parent", ErrStructure, v)
	}
	return gt.Validate()
}

// ToTree builds a gotree tree from the arena for serialization.
func (gt *GeneTree) ToTree() *tree.Tree {
	t := tree.NewTree()
	nodes := make([]*tree.Node, len(gt.Nodes))
	stack := []int{gt.Root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.NewNode()
		if gt.Nodes[v].Label != "" {
			n.SetName(gt.Nodes[v].Label)
		}
		nodes[v] = n
		if v == gt.Root {
			t.SetRoot(n)
		} else {
			t.ConnectNodes(nodes[gt.Nodes[v].Parent], n)
		}
		for i := len(gt.Nodes[v].Children) - 1; i >= 0; i-- {
			stack = append(stack, gt.Nodes[v].Children[i])
		}
	}
	t.ReinitIndexes()
	return t
}

func (gt *GeneTree) Newick() string {
	return gt.ToTree().Newick()
}
