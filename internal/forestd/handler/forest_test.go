package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/provenancekit/fossilforest/internal/forest"
	"github.com/provenancekit/fossilforest/internal/forestd/handler"
)

func setupForestRouter(t *testing.T) (*gin.Engine, *forest.Forest) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	f := forest.New(forest.DefaultConfig(), zap.NewNop())
	h := handler.NewForestHandler(f, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, f
}

func seedThread(t *testing.T, f *forest.Forest, threadID string, leaves int) {
	t.Helper()
	for i := 0; i < leaves; i++ {
		if _, err := f.AddFossil(threadID, fmt.Sprintf("leaf-%d", i), map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestForestRoots_200(t *testing.T) {
	router, f := setupForestRouter(t)
	seedThread(t, f, "t1", 2)
	seedThread(t, f, "t2", 1)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forest/roots", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Threads int               `json:"threads"`
		Roots   map[string]string `json:"roots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Threads != 2 || len(resp.Roots) != 2 {
		t.Errorf("expected 2 roots, got %+v", resp)
	}
	if want, _ := f.RootFor("t1"); resp.Roots["t1"] != want {
		t.Errorf("t1 root: got %s, want %s", resp.Roots["t1"], want)
	}
}

func TestForestThreadRoot_404_unknown(t *testing.T) {
	router, _ := setupForestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forest/threads/nope/root", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestForestProofAndVerify_roundTrip(t *testing.T) {
	router, f := setupForestRouter(t)
	seedThread(t, f, "t1", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forest/threads/t1/proof/leaf-2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var proofResp struct {
		Root  string          `json:"root"`
		Proof json.RawMessage `json:"proof"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &proofResp); err != nil {
		t.Fatal(err)
	}

	// Feed the emitted proof straight back into the verify endpoint.
	leafHash := leafHashFor(t, map[string]any{"n": 2})
	body, _ := json.Marshal(map[string]any{
		"leaf_hash": leafHash,
		"root_hash": proofResp.Root,
		"proof":     json.RawMessage(proofResp.Proof),
	})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/forest/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var verifyResp map[string]any
	json.Unmarshal(w.Body.Bytes(), &verifyResp)
	if verifyResp["valid"] != true {
		t.Errorf("expected valid=true, got %v", verifyResp)
	}
}

func TestForestVerify_invalidProof(t *testing.T) {
	router, _ := setupForestRouter(t)

	body := []byte(`{"leaf_hash":"aa","root_hash":"bb","proof":[["cc","R"]]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forest/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != false {
		t.Errorf("expected valid=false, got %v", resp)
	}
}

func TestForestVerify_400_missingFields(t *testing.T) {
	router, _ := setupForestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forest/verify", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestForestProof_404_unknownLeaf(t *testing.T) {
	router, f := setupForestRouter(t)
	seedThread(t, f, "t1", 2)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forest/threads/t1/proof/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestForestPruneThread_removesBranch(t *testing.T) {
	router, f := setupForestRouter(t)
	seedThread(t, f, "t1", 1)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/forest/threads/t1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := f.RootFor("t1"); ok {
		t.Error("t1 should be gone after DELETE")
	}

	// Pruning again is idempotent.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/forest/threads/t1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 on repeat prune, got %d", w.Code)
	}
}
