// Package ledger implements an append-only hash-chain audit log.
//
// Every entry records the hash of its predecessor, so replaying the chain
// from the first entry detects any tampering with a stored record. The chain
// starts from GenesisHash (64 hex zeros) rather than a stored genesis entry.
//
// MemoryLedger is the in-process implementation; the Ledger interface keeps
// it swappable for a durable one without semantic change.
package ledger

import (
	"context"
	"errors"
)

// ErrChainIntegrity indicates that replay verification found a hash or
// prev-hash mismatch. It signals tampering or corruption and is always
// surfaced to the caller.
var ErrChainIntegrity = errors.New("ledger chain integrity violation")

// Ledger is the interface for the append-only hash-chain audit log.
type Ledger interface {
	// Record appends a new entry chained to the previous one. data must be
	// JSON-representable; it is embedded in the entry and covered by its hash.
	Record(ctx context.Context, operation string, data map[string]any) (*Record, error)

	// Get returns the record at the given zero-based index.
	Get(ctx context.Context, index int) (*Record, error)

	// Len returns the total number of records in the chain.
	Len(ctx context.Context) (int, error)

	// Root returns the hash of the most recent entry (the chain tip),
	// or GenesisHash for an empty chain.
	Root(ctx context.Context) (string, error)

	// Entries returns a snapshot of the full chain, oldest first.
	Entries(ctx context.Context) ([]Record, error)

	// Verify replays the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error
}
