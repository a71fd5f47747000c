package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/canonical"
	"github.com/provenancekit/fossilforest/internal/forestd/handler"
	"github.com/provenancekit/fossilforest/internal/ledger"
)

// leafHashFor recomputes a payload's leaf hash for use in verify requests.
func leafHashFor(t *testing.T, payload map[string]any) string {
	t.Helper()
	h, err := canonical.LeafHash(payload)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func setupLedgerRouter(t *testing.T) (*gin.Engine, *ledger.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	l := ledger.New(zap.NewNop())
	h := handler.NewLedgerHandler(l, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, l
}

func TestLedgerOverview_200(t *testing.T) {
	router, l := setupLedgerRouter(t)
	_, _ = l.Record(context.Background(), "fossil.append", map[string]any{"thread_id": "t1"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["entries"].(float64)) != 1 {
		t.Errorf("expected 1 entry, got %v", resp["entries"])
	}
	root, _ := l.Root(context.Background())
	if resp["root"] != root {
		t.Errorf("root: got %v, want %s", resp["root"], root)
	}
}

func TestLedgerVerify_200_valid(t *testing.T) {
	router, l := setupLedgerRouter(t)
	_, _ = l.Record(context.Background(), "a", nil)
	_, _ = l.Record(context.Background(), "b", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp["valid"])
	}
}

func TestLedgerGetEntry_200(t *testing.T) {
	router, l := setupLedgerRouter(t)
	rec, _ := l.Record(context.Background(), "fossil.append", map[string]any{"leaf_id": "a"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/entries/0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got ledger.Record
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Hash != rec.Hash {
		t.Errorf("hash: got %s, want %s", got.Hash, rec.Hash)
	}
	if got.Entry.Op != "fossil.append" {
		t.Errorf("op: got %q", got.Entry.Op)
	}
}

func TestLedgerGetEntry_404_outOfRange(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/entries/5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestLedgerGetEntry_400_badIndex(t *testing.T) {
	router, _ := setupLedgerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/entries/notanumber", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
