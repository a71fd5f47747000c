package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. It is
// suitable for single-process deployments that do not require durable
// persistence across restarts.
type MemoryLedger struct {
	mu       sync.RWMutex
	chain    []Record
	lastHash string
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an empty MemoryLedger whose chain tip is GenesisHash.
// A nil logger disables append logging.
func New(logger *zap.Logger) *MemoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryLedger{
		lastHash: GenesisHash,
		logger:   logger,
		now:      time.Now,
	}
}

// Record implements Ledger.
func (l *MemoryLedger) Record(_ context.Context, operation string, data map[string]any) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Op:   operation,
		Ts:   epochSeconds(l.now().UTC()),
		Prev: l.lastHash,
		Data: cloneData(data),
	}
	hash, err := hashEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("hash ledger entry: %w", err)
	}

	rec := Record{Hash: hash, Entry: entry}
	l.chain = append(l.chain, rec)
	l.lastHash = hash
	entriesTotal.Inc()

	l.logger.Info("ledger append",
		zap.String("op", operation),
		zap.String("hash", hash[:8]),
		zap.Int("index", len(l.chain)-1),
	)
	return &rec, nil
}

// cloneData deep-copies the JSON-shaped parts of a payload. Entries are
// immutable once appended, so the chain must not alias caller-owned maps.
// A nil payload clones to an empty map.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneData(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.chain) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	rec := l.chain[index]
	return &rec, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain), nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastHash, nil
}

// Entries implements Ledger.
func (l *MemoryLedger) Entries(_ context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.chain))
	copy(out, l.chain)
	return out, nil
}

// Verify implements Ledger by replaying the chain with VerifyChain.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.chain)
}
