// Package containing the tree data structures shared by the resolver: the
// preprocessed species tree, the arena-based gene tree, and binary
// refinements of polytomies.
package graphs

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/evolbioinfo/gotree/tree"
)

// Expanded species tree struct containing preprocessed reconciliation data
type TreeData struct {
	tree.Tree
	Children  [][]*tree.Node   // children for each node id
	Parents   []int            // parent id for each node id (-1 for root)
	IdToNodes []*tree.Node     // mapping between id and node pointer
	Depths    []int            // distance from all nodes to the root
	NLeaves   int              // number of leaves
	leafsets  []*bitset.BitSet // leaves under each node
	lca       [][]int          // LCA for each pair of node ids
	nameToID  map[string]int   // species (tip) name to node id
}

// Preprocess species tree and make TreeData struct.
func MakeTreeData(tre *tree.Tree) *TreeData {
	children := children(tre)
	return &TreeData{
		Tree:      *tre,
		Children:  children,
		Parents:   calcParents(tre),
		IdToNodes: mapIdToNodes(tre),
		Depths:    calcDepths(tre),
		leafsets:  calcLeafset(tre, children),
		lca:       calcLCAs(tre, children),
		nameToID:  mapNamesToIds(tre),
		NLeaves:   len(tre.AllTipNames()),
	}
}

// Create mapping from id to node pointer
func mapIdToNodes(tre *tree.Tree) []*tree.Node {
	idMap := make([]*tree.Node, len(tre.Nodes()))
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		idMap[cur.Id()] = cur
		return true
	})
	return idMap
}

// Calculate children for each node for quick access (as gotree's Tree only
// stores neighbors)
func children(tre *tree.Tree) [][]*tree.Node {
	children := make([][]*tree.Node, len(tre.Nodes()))
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur.Tip() {
			children[cur.Id()] = []*tree.Node{}
		} else {
			children[cur.Id()] = GetChildren(cur)
		}
		return true
	})
	return children
}

// Get children of node
func GetChildren(node *tree.Node) []*tree.Node {
	children := make([]*tree.Node, 0)
	p, err := node.Parent()
	if err != nil && err.Error() == "The node has more than one parent" {
		panic(err)
	}
	for _, u := range node.Neigh() {
		if u != p {
			children = append(children, u)
		}
	}
	return children
}

// Calculate parent id for each node (-1 for the root)
func calcParents(tre *tree.Tree) []int {
	parents := make([]int, len(tre.Nodes()))
	parents[tre.Root().Id()] = -1
	tre.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur != tre.Root() {
			parents[cur.Id()] = prev.Id()
		}
		return true
	})
	return parents
}

// Calculates the leafset for every node
func calcLeafset(tre *tree.Tree, children [][]*tree.Node) []*bitset.BitSet {
	nLeaves, err := tre.NbTips()
	if err != nil {
		panic(err)
	}
	leafset := make([]*bitset.BitSet, len(tre.Nodes()))
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		leafset[cur.Id()] = bitset.New(uint(nLeaves))
		if cur.Tip() {
			leafset[cur.Id()].Set(uint(cur.TipIndex()))
		} else {
			for _, c := range children[cur.Id()] {
				leafset[cur.Id()].InPlaceUnion(leafset[c.Id()])
			}
		}
		return true
	})
	return leafset
}

// Calculates the LCA for every pair of nodes
func calcLCAs(tre *tree.Tree, children [][]*tree.Node) [][]int {
	nNodes := len(tre.Nodes())
	lca, below := make([][]int, nNodes), make([][]bool, nNodes) // below[i][j] = true means node j is below node i
	for i := 0; i < nNodes; i++ {
		lca[i] = make([]int, nNodes)
		below[i] = make([]bool, nNodes)
	}
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		id := cur.Id()
		below[id][id] = true
		lca[id][id] = id
		for _, child := range children[id] {
			for i := 0; i < nNodes; i++ {
				below[id][i] = below[id][i] || below[child.Id()][i]
			}
		}
		for c1 := range children[id] {
			for c2 := c1 + 1; c2 < len(children[id]); c2++ {
				childId1 := children[id][c1].Id()
				childId2 := children[id][c2].Id()
				for i := 0; i < nNodes; i++ {
					if !below[childId1][i] {
						continue
					}
					for j := 0; j < nNodes; j++ {
						if below[childId2][j] {
							lca[i][j] = id
							lca[j][i] = id
						}
					}
				}
			}
		}
		for _, child := range children[id] {
			for j := 0; j < nNodes; j++ {
				if below[child.Id()][j] {
					lca[id][j] = id
					lca[j][id] = id
				}
			}
		}
		return true
	})
	return lca
}

// Calculate depths for all nodes in tree (slice index = node id)
func calcDepths(tre *tree.Tree) []int {
	depths := make([]int, len(tre.Nodes()))
	tre.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur != tre.Root() {
			depths[cur.Id()] = depths[prev.Id()] + 1
		}
		return true
	})
	return depths
}

func mapNamesToIds(tre *tree.Tree) map[string]int {
	tips := tre.Tips()
	nameMap := make(map[string]int, len(tips))
	for _, t := range tips {
		nameMap[t.Name()] = t.Id()
	}
	return nameMap
}

// Takes in the node ids of two nodes and returns the id of the LCA
func (td *TreeData) LCA(n1ID, n2ID int) int {
	return td.lca[n1ID][n2ID]
}

// n2 is strictly under n1
func (td *TreeData) Under(n1ID, n2ID int) bool {
	return td.LCA(n1ID, n2ID) == n1ID && n1ID != n2ID
}

// n2 is under or equal to n1
func (td *TreeData) AncestorOrEqual(n1ID, n2ID int) bool {
	return td.LCA(n1ID, n2ID) == n1ID
}

// Number of edges on the species tree path from ancestor anc down to desc.
// Panics if anc is not an ancestor of desc; callers guarantee ancestry via
// the LCA mapping.
func (td *TreeData) PathLen(anc, desc int) int {
	if !td.AncestorOrEqual(anc, desc) {
		panic("PathLen called on nodes without ancestry relation")
	}
	return td.Depths[desc] - td.Depths[anc]
}

// Node id of the species tree tip with the given name
func (td *TreeData) SpeciesID(name string) (int, bool) {
	id, ok := td.nameToID[name]
	return id, ok
}

// tipIndex is in the leafset of node id
func (td *TreeData) InLeafset(id int, tipIndex uint) bool {
	return td.leafsets[id].Test(tipIndex)
}

// Returns leafset as string for printing/testing
func (td *TreeData) LeafsetAsString(n *tree.Node) string {
	result := "{"
	tips := td.AllTipNames()
	for i := 0; i < len(tips); i++ {
		if td.leafsets[n.Id()].Test(uint(i)) {
			result += tips[i] + ","
		}
	}
	return result[:len(result)-1] + "}"
}
