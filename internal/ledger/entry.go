package ledger

import (
	"fmt"
	"time"

	"github.com/provenancekit/fossilforest/internal/canonical"
)

// GenesisHash is the well-known prev-hash of the first chain entry. An empty
// chain reports it as its root; all entry hashes transitively chain from it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is the hashed portion of a single audit record.
type Entry struct {
	Op   string         `json:"op"`
	Ts   float64        `json:"ts"` // seconds since epoch
	Prev string         `json:"prev"`
	Data map[string]any `json:"data"`
}

// Record is a stored chain element: an entry plus its computed hash.
type Record struct {
	Hash  string `json:"hash"`
	Entry Entry  `json:"entry"`
}

// hashEntry computes the canonical SHA-256 hash over an entry's fields.
// The hash covers exactly the wire shape {op, ts, prev, data}.
func hashEntry(e Entry) (string, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return canonical.ComputeHash(map[string]any{
		"op":   e.Op,
		"ts":   e.Ts,
		"prev": e.Prev,
		"data": data,
	})
}

// epochSeconds converts a timestamp to the float seconds used in entries.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// VerifyChain replays a chain of records and checks its integrity: each
// entry's Prev must equal the preceding record's Hash (GenesisHash for the
// first), and recomputing each entry's hash must reproduce the stored Hash.
// It needs no ledger instance and can be run against a dumped chain.
func VerifyChain(chain []Record) error {
	prev := GenesisHash
	for i, rec := range chain {
		if rec.Entry.Prev != prev {
			return fmt.Errorf("%w: entry %d prev is %q, want %q", ErrChainIntegrity, i, rec.Entry.Prev, prev)
		}
		h, err := hashEntry(rec.Entry)
		if err != nil {
			return fmt.Errorf("rehash entry %d: %w", i, err)
		}
		if h != rec.Hash {
			return fmt.Errorf("%w: entry %d hash is %q, recomputed %q", ErrChainIntegrity, i, rec.Hash, h)
		}
		prev = rec.Hash
	}
	return nil
}
