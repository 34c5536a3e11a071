// Package recon maps gene tree nodes onto the species tree and evaluates
// duplication/loss reconciliation costs.
package recon

import (
	"errors"
	"fmt"
	"strings"

	gr "github.com/UdeM-LBIT/profileNJ/internal/graphs"
)

var ErrNoSpeciesMatch = errors.New("no matching species for gene tree leaf")

// SpeciesNameFunc extracts the species name from a gene tree leaf label.
type SpeciesNameFunc func(label string) string

// PrefixSpeciesName returns a SpeciesNameFunc taking the label prefix before
// sep (e.g. "HUMAN_gene1" -> "HUMAN" for sep "_"). An empty sep means the
// whole label is the species name.
func PrefixSpeciesName(sep string) SpeciesNameFunc {
	if sep == "" {
		return func(label string) string { return label }
	}
	return func(label string) string {
		name, _, _ := strings.Cut(label, sep)
		return name
	}
}

// Mapping stores the species image of every gene tree node (indexed by gene
// node id). Leaf images come from species name lookup; internal images are
// the species tree LCA of the child images, which makes the mapping monotone
// with respect to ancestry.
type Mapping struct {
	Images []int
}

// MapGeneTree computes the full gene-to-species mapping in one bottom-up
// pass. Returns ErrNoSpeciesMatch (with the offending label) if a leaf's
// species is not in the species tree.
func MapGeneTree(gt *gr.GeneTree, td *gr.TreeData, speciesName SpeciesNameFunc) (*Mapping, error) {
	if speciesName == nil {
		speciesName = PrefixSpeciesName("")
	}
	images := make([]int, gt.NumNodes())
	var mapErr error
	gt.PostOrder(func(v int) bool {
		if gt.IsLeaf(v) {
			label := gt.Nodes[v].Label
			id, ok := td.SpeciesID(speciesName(label))
			if !ok {
				mapErr = fmt.Errorf("%w, leaf %q (species %q)", ErrNoSpeciesMatch, label, speciesName(label))
				return false
			}
			images[v] = id
			return true
		}
		img := images[gt.Nodes[v].Children[0]]
		for _, c := range gt.Nodes[v].Children[1:] {
			img = td.LCA(img, images[c])
		}
		images[v] = img
		return true
	})
	if mapErr != nil {
		return nil, mapErr
	}
	return &Mapping{Images: images}, nil
}

func (m *Mapping) Image(v int) int {
	return m.Images[v]
}

// IsDuplication reports whether internal gene node v is a duplication:
// its image equals the image of at least one child (the mapping does not
// strictly descend).
func (m *Mapping) IsDuplication(gt *gr.GeneTree, v int) bool {
	for _, c := range gt.Nodes[v].Children {
		if m.Images[c] == m.Images[v] {
			return true
		}
	}
	return false
}
