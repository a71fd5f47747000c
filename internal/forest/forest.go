// Package forest maintains a set of independent Merkle trees ("threads"),
// keyed by branch id, with staleness- and capacity-driven eviction.
//
// Eviction is LRU-by-last-write: only appending a leaf refreshes a branch's
// staleness clock. Reading a root or generating a proof does not, so two runs
// with identical write sequences always evict in the same order.
package forest

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/merkle"
)

// Config bounds the forest's lifecycle.
type Config struct {
	// Stale is how long a branch may go without a leaf addition before it
	// becomes eligible for eviction.
	Stale time.Duration
	// MaxTrees is the hard cap on branch count after a pruning pass.
	MaxTrees int
}

// DefaultConfig returns the standard lifecycle bounds: branches idle for a
// day are stale, and at most 128 branches are kept.
func DefaultConfig() Config {
	return Config{Stale: 24 * time.Hour, MaxTrees: 128}
}

// Forest maps branch ids to their Merkle trees. All methods are safe for
// concurrent use; a single mutex serializes mutations so a tree rebuild can
// never race with a pruning pass.
type Forest struct {
	mu     sync.Mutex
	cfg    Config
	trees  map[string]*merkle.Tree
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Forest.
type Option func(*Forest)

// WithClock overrides the time source used for staleness decisions and for
// stamping new trees. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Forest) { f.now = now }
}

// New creates an empty forest. A nil logger disables eviction logging.
// A non-positive MaxTrees falls back to the default cap; zero would evict
// every branch the moment it is written.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Forest {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTrees <= 0 {
		cfg.MaxTrees = DefaultConfig().MaxTrees
	}
	f := &Forest{
		cfg:    cfg,
		trees:  make(map[string]*merkle.Tree),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddFossil appends a payload as a leaf of the branch's tree, creating the
// tree if the branch is new. A pruning pass runs before any creation, so the
// forest never exceeds its cap by growing. Returns the updated tree.
//
// The returned tree is owned by the forest and may be destroyed by a later
// pruning pass; callers must not retain it across writes to other branches.
func (f *Forest) AddFossil(threadID, leafID string, payload map[string]any) (*merkle.Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tree, ok := f.trees[threadID]
	if !ok {
		f.prune()
		tree = merkle.NewTree(threadID, merkle.WithClock(f.now))
		f.trees[threadID] = tree
	}
	if err := tree.AddLeaf(leafID, payload); err != nil {
		if !ok {
			// Do not leave behind an empty branch for a rejected payload.
			delete(f.trees, threadID)
		}
		return nil, err
	}
	if !ok {
		// A new branch may have pushed the forest over its cap; the branch
		// just written is the newest, so it is never the one evicted.
		f.enforceCap()
	}
	leavesTotal.Inc()
	treesGauge.Set(float64(len(f.trees)))
	return tree, nil
}

// prune removes stale branches, then evicts oldest-by-last-write branches
// until the count is within MaxTrees. Pruning is best-effort maintenance
// and never fails; an empty forest is a valid state.
// Callers must hold f.mu.
func (f *Forest) prune() {
	now := f.now()
	for id, t := range f.trees {
		if now.Sub(t.LastUpdated()) > f.cfg.Stale {
			delete(f.trees, id)
			f.logger.Info("pruned stale branch",
				zap.String("thread", id),
				zap.Time("last_updated", t.LastUpdated()),
			)
			prunesTotal.WithLabelValues("stale").Inc()
		}
	}

	f.enforceCap()
}

// enforceCap evicts oldest-by-last-write branches until the count is within
// MaxTrees. Callers must hold f.mu.
func (f *Forest) enforceCap() {
	if len(f.trees) <= f.cfg.MaxTrees {
		return
	}
	ordered := make([]*merkle.Tree, 0, len(f.trees))
	for _, t := range f.trees {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].LastUpdated().Before(ordered[j].LastUpdated())
	})
	for _, t := range ordered[:len(f.trees)-f.cfg.MaxTrees] {
		delete(f.trees, t.ID())
		f.logger.Info("pruned branch over capacity", zap.String("thread", t.ID()))
		prunesTotal.WithLabelValues("capacity").Inc()
	}
}

// RootFor returns the root hash of one branch. The second return is false
// when the branch is absent or holds no leaves.
func (f *Forest) RootFor(threadID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.trees[threadID]
	if !ok {
		return "", false
	}
	return tree.RootHash()
}

// Roots returns a snapshot of every branch holding a non-empty tree,
// as thread id → root hash.
func (f *Forest) Roots() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	roots := make(map[string]string, len(f.trees))
	for id, t := range f.trees {
		if root, ok := t.RootHash(); ok {
			roots[id] = root
		}
	}
	return roots
}

// Proof generates an inclusion proof for one leaf of one branch, together
// with the branch's current root. The second return is false when the
// branch or leaf is unknown.
func (f *Forest) Proof(threadID, leafID string) (merkle.Proof, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.trees[threadID]
	if !ok {
		return nil, "", false
	}
	proof, ok := tree.InclusionProof(leafID)
	if !ok {
		return nil, "", false
	}
	root, _ := tree.RootHash()
	return proof, root, true
}

// PruneThread unconditionally removes one branch. Idempotent when absent.
func (f *Forest) PruneThread(threadID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.trees[threadID]; ok {
		delete(f.trees, threadID)
		f.logger.Info("pruned branch", zap.String("thread", threadID))
		prunesTotal.WithLabelValues("manual").Inc()
		treesGauge.Set(float64(len(f.trees)))
	}
}

// Len returns the current branch count.
func (f *Forest) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trees)
}

// Threads returns the current branch ids in no particular order.
func (f *Forest) Threads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.trees))
	for id := range f.trees {
		ids = append(ids, id)
	}
	return ids
}
