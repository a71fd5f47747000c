// Package snapshot reads fossil records from JSON-lines streams and replays
// them through a forest and a ledger.
//
// A fossil line is one JSON object: {"thread_id": ..., "leaf_id": ...,
// "payload": {...}}. Lines are applied in order, and each applied fossil is
// also recorded as a "fossil.append" ledger entry, so a replayed snapshot
// yields both the forest roots and a verifiable audit chain.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/provenancekit/fossilforest/internal/forest"
	"github.com/provenancekit/fossilforest/internal/ledger"
)

// Fossil is one payload destined for one branch.
type Fossil struct {
	ThreadID string         `json:"thread_id"`
	LeafID   string         `json:"leaf_id"`
	Payload  map[string]any `json:"payload"`
}

// Read parses a JSON-lines fossil stream. Blank lines are skipped. Records
// without a leaf_id get a generated UUID so every leaf stays addressable in
// proofs.
func Read(r io.Reader) ([]Fossil, error) {
	var fossils []Fossil
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var f Fossil
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if f.ThreadID == "" {
			return nil, fmt.Errorf("line %d: missing thread_id", line)
		}
		if f.LeafID == "" {
			f.LeafID = uuid.NewString()
		}
		if f.Payload == nil {
			f.Payload = map[string]any{}
		}
		fossils = append(fossils, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return fossils, nil
}

// Replay applies fossils in order: each is appended to its branch's tree and
// then recorded in the ledger with the branch's resulting root. l may be nil
// to rebuild a forest without auditing.
func Replay(ctx context.Context, f *forest.Forest, l ledger.Ledger, fossils []Fossil) error {
	for _, fossil := range fossils {
		tree, err := f.AddFossil(fossil.ThreadID, fossil.LeafID, fossil.Payload)
		if err != nil {
			return fmt.Errorf("append fossil %q to thread %q: %w", fossil.LeafID, fossil.ThreadID, err)
		}
		if l == nil {
			continue
		}
		root, _ := tree.RootHash()
		_, err = l.Record(ctx, "fossil.append", map[string]any{
			"thread_id": fossil.ThreadID,
			"leaf_id":   fossil.LeafID,
			"root":      root,
		})
		if err != nil {
			return fmt.Errorf("record fossil %q: %w", fossil.LeafID, err)
		}
	}
	return nil
}
