// Package merkle implements a binary hash tree over an ordered sequence of
// payload leaves, with inclusion-proof construction and verification.
//
// Hashes are lowercase hex SHA-256 strings. A parent's hash is the SHA-256
// of its children's hex strings concatenated. When a level holds an odd
// number of nodes, the last node is paired with itself rather than promoted
// unchanged; that pairing rule is part of the hash format and must not
// change, or previously published roots stop verifying.
package merkle

import (
	"fmt"
	"time"

	"github.com/provenancekit/fossilforest/internal/canonical"
)

// Node is a single node in the tree. Leaves carry the caller-supplied
// LeafID; internal nodes own exactly two children (possibly the same node,
// for odd levels). A node graph is exclusively owned by one tree.
type Node struct {
	Hash   string
	Left   *Node
	Right  *Node
	Leaf   bool
	LeafID string
}

// Tree is a Merkle tree over an append-only sequence of leaves. Leaf order
// is significant: it determines the tree shape and therefore the root.
//
// A Tree has no internal locking; callers (such as forest.Forest) must
// serialize mutations.
type Tree struct {
	id          string
	leaves      []*Node
	root        *Node
	createdAt   time.Time
	lastUpdated time.Time
	now         func() time.Time
}

// Option configures a Tree.
type Option func(*Tree)

// WithClock overrides the time source used for the created/last-updated
// timestamps. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// NewTree creates an empty tree identified by id (the branch id).
func NewTree(id string, opts ...Option) *Tree {
	t := &Tree{id: id, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.createdAt = t.now()
	t.lastUpdated = t.createdAt
	return t
}

// ID returns the tree's identifier.
func (t *Tree) ID() string { return t.id }

// Size returns the number of leaves.
func (t *Tree) Size() int { return len(t.leaves) }

// CreatedAt returns the tree's creation time.
func (t *Tree) CreatedAt() time.Time { return t.createdAt }

// LastUpdated returns the time of the most recent leaf addition.
func (t *Tree) LastUpdated() time.Time { return t.lastUpdated }

// AddLeaf hashes the payload (see canonical.LeafHash), appends a leaf node
// tagged with leafID, and rebuilds the root over the full leaf sequence.
//
// leafID should be unique within the tree; duplicates are not rejected, but
// InclusionProof then resolves to the first leaf in tree order.
func (t *Tree) AddLeaf(leafID string, payload map[string]any) error {
	leafHash, err := canonical.LeafHash(payload)
	if err != nil {
		return fmt.Errorf("hash leaf %q: %w", leafID, err)
	}
	t.leaves = append(t.leaves, &Node{Hash: leafHash, Leaf: true, LeafID: leafID})
	t.lastUpdated = t.now()
	t.root = buildTree(t.leaves)
	return nil
}

// RootHash returns the current root hash. The second return is false when
// the tree has no leaves.
func (t *Tree) RootHash() (string, bool) {
	if t.root == nil {
		return "", false
	}
	return t.root.Hash, true
}

// buildTree computes the root node over an ordered leaf sequence. Nodes are
// paired left-to-right; an odd trailing node is paired with itself.
func buildTree(leaves []*Node) *Node {
	if len(leaves) == 0 {
		return nil
	}
	level := make([]*Node, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, &Node{
				Hash:  canonical.Sum256Hex([]byte(left.Hash + right.Hash)),
				Left:  left,
				Right: right,
			})
		}
		level = next
	}
	return level[0]
}
