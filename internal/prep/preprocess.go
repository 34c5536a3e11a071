// Package used for reading inputs and preparing the data structures the
// resolver works on.
package prep

import (
	"errors"
	"fmt"
	"log"

	"github.com/evolbioinfo/gotree/tree"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

var (
	ErrUnrooted = errors.New("not rooted")
	ErrMulTree  = errors.New("contains duplicate labels")
)

// Preprocess validates the species tree, builds its lookup tables, and
// converts the gene trees into arena form. Returns an error if the species
// tree is not valid (unrooted, duplicate labels) or some gene tree is
// malformed.
func Preprocess(tre *tree.Tree, geneTrees []*tree.Tree) (*gr.TreeData, []*gr.GeneTree, error) {
	if err := tre.UpdateTipIndex(); err != nil {
		return nil, nil, fmt.Errorf("species tree %w", ErrMulTree)
	}
	if !tre.Rooted() {
		return nil, nil, fmt.Errorf("species tree is %w", ErrUnrooted)
	}
	log.Printf("analyzing species tree")
	td := gr.MakeTreeData(tre)
	gts := make([]*gr.GeneTree, len(geneTrees))
	for i, gtre := range geneTrees {
		gt, err := gr.GeneTreeFromTree(gtre)
		if err != nil {
			return nil, nil, fmt.Errorf("gene tree %d: %w", i+1, err)
		}
		gts[i] = gt
	}
	log.Printf("%d gene trees provided\n", len(geneTrees))
	return td, gts, nil
}
