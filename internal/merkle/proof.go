package merkle

import (
	"encoding/json"
	"fmt"

	"github.com/provenancekit/fossilforest/internal/canonical"
)

// Sides of a proof step: the position of the sibling relative to the node
// being proven at that level.
const (
	SideLeft  = "L"
	SideRight = "R"
)

// ProofStep is one level of an inclusion proof. On the wire it is the
// two-element tuple ["<sibling hex hash>", "L"|"R"].
type ProofStep struct {
	Sibling string
	Side    string
}

// Proof is an inclusion proof, ordered from the leaf's immediate sibling up
// to the sibling just below the root. A proof is a function of the tree
// shape at generation time; it is invalidated by any later leaf addition.
type Proof []ProofStep

// MarshalJSON encodes the step as the wire tuple.
func (s ProofStep) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.Sibling, s.Side})
}

// UnmarshalJSON decodes the wire tuple form.
func (s *ProofStep) UnmarshalJSON(data []byte) error {
	var tuple [2]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("proof step: %w", err)
	}
	if tuple[1] != SideLeft && tuple[1] != SideRight {
		return fmt.Errorf("proof step: side %q is not %q or %q", tuple[1], SideLeft, SideRight)
	}
	s.Sibling = tuple[0]
	s.Side = tuple[1]
	return nil
}

// InclusionProof builds the sibling path for the leaf with the given id.
// The second return is false when no leaf carries the id (or the tree is
// empty). With duplicate ids, the first leaf in tree order wins.
func (t *Tree) InclusionProof(leafID string) (Proof, bool) {
	if t.root == nil {
		return nil, false
	}
	var path Proof
	if !findLeaf(t.root, leafID, &path) {
		return nil, false
	}
	return path, true
}

// findLeaf depth-first searches for the target leaf. As the recursion
// unwinds, each ancestor pairing appends its sibling to the path, so the
// path ends up ordered leaf-to-root.
func findLeaf(node *Node, leafID string, path *Proof) bool {
	if node.Leaf {
		return node.LeafID == leafID
	}
	if node.Left == nil || node.Right == nil {
		return false
	}
	if findLeaf(node.Left, leafID, path) {
		*path = append(*path, ProofStep{Sibling: node.Right.Hash, Side: SideRight})
		return true
	}
	if findLeaf(node.Right, leafID, path) {
		*path = append(*path, ProofStep{Sibling: node.Left.Hash, Side: SideLeft})
		return true
	}
	return false
}

// VerifyInclusion folds a proof starting from leafHash and reports whether
// the result equals rootHash. It is a pure check: any external verifier can
// run it against a published root and a leaf's recomputed hash, with no
// access to the tree.
func VerifyInclusion(leafHash, rootHash string, proof Proof) bool {
	h := leafHash
	for _, step := range proof {
		if step.Side == SideRight {
			h = canonical.Sum256Hex([]byte(h + step.Sibling))
		} else {
			h = canonical.Sum256Hex([]byte(step.Sibling + h))
		}
	}
	return h == rootHash
}
