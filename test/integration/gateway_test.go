// Package integration contains tests that verify the interaction between
// multiple platform components. These tests wire the real HTTP router,
// handler, manager, and auth stack together, using a real PostgreSQL
// database for the API key validator and an in-memory KV store for
// collection persistence, so the only external dependency is Postgres.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/monishk/shardsearch/internal/api"
	"github.com/monishk/shardsearch/internal/auth/apikey"
	"github.com/monishk/shardsearch/internal/auth/ratelimit"
	"github.com/monishk/shardsearch/internal/manager"
	"github.com/monishk/shardsearch/internal/store"
	"github.com/monishk/shardsearch/pkg/config"
	"github.com/monishk/shardsearch/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := testStoreConfig()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStoreConfig() config.StoreConfig {
	return config.StoreConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "shardsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "shardsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// newAPIServer wires a real Manager (backed by an in-memory KV store, so
// document and collection state never leaks between tests) with a real
// apikey.Validator (backed by db) behind the production router, and returns
// an httptest.Server fronting the whole stack.
func newAPIServer(t *testing.T, db *postgres.Client) (*httptest.Server, *apikey.Validator) {
	t.Helper()

	validator, err := apikey.NewValidator(db)
	if err != nil {
		t.Fatalf("creating api key validator: %v", err)
	}
	limiter := ratelimit.New(time.Minute)

	kv := store.NewMemoryKV()
	mgr := manager.New(kv, validator, 0, "test-bootstrap-key", nil, nil)

	h := api.New(mgr)
	chain := api.NewRouter(h, limiter, 1000, nil)
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv, validator
}

func createTestCollection(t *testing.T, srv *httptest.Server, bootstrapKey, name string) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"name": name,
		"fields": []map[string]any{
			{"name": "title", "type": "string"},
			{"name": "body", "type": "string"},
		},
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/collections", bytes.NewReader(body))
	req.Header.Set("X-API-Key", bootstrapKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201 creating collection, got %d: %s", resp.StatusCode, respBody)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestHealthEndpoint verifies the health check is accessible without auth.
func TestHealthEndpoint(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, _ := newAPIServer(t, db)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var respBody map[string]string
	json.NewDecoder(resp.Body).Decode(&respBody)
	if respBody["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", respBody["status"])
	}
}

// TestUnauthenticatedRequestRejected verifies that scoped endpoints reject
// requests without an API key.
func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, _ := newAPIServer(t, db)

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/collections"},
		{http.MethodPost, "/collections"},
		{http.MethodGet, "/collections/products/documents/search?q=test&query_by=title"},
	}

	for _, ep := range endpoints {
		req, _ := http.NewRequest(ep.method, srv.URL+ep.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: request failed: %v", ep.method, ep.path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", ep.method, ep.path, resp.StatusCode)
		}
	}
}

// TestAPIKeyLifecycle tests creating, using, and revoking an API key scoped
// to search actions.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newAPIServer(t, db)
	createTestCollection(t, srv, "test-bootstrap-key", "articles")

	rawKey, err := validator.CreateKey(t.Context(), "integration-test", 100, []string{"documents:search"}, []string{"*"}, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/collections/articles/documents/search?q=hello&query_by=title", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	if err := validator.RevokeKey(t.Context(), rawKey); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/collections/articles/documents/search?q=hello&query_by=title", nil)
	req2.Header.Set("X-API-Key", rawKey)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("search request after revoke failed: %v", err)
	}
	resp2.Body.Close()

	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoke, got %d", resp2.StatusCode)
	}
}

// TestAPIKeyScopeRejectsWrongCollection verifies that a key scoped to one
// collection cannot be used against another.
func TestAPIKeyScopeRejectsWrongCollection(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newAPIServer(t, db)
	createTestCollection(t, srv, "test-bootstrap-key", "scoped-a")
	createTestCollection(t, srv, "test-bootstrap-key", "scoped-b")

	rawKey, err := validator.CreateKey(t.Context(), "scoped-test", 100, []string{"documents:search"}, []string{"scoped-a"}, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/collections/scoped-b/documents/search?q=hello&query_by=title", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for out-of-scope collection, got %d", resp.StatusCode)
	}
}

// TestDocumentIngestAndSearch verifies a document created through the API
// becomes visible to a subsequent search against the same collection.
func TestDocumentIngestAndSearch(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newAPIServer(t, db)
	createTestCollection(t, srv, "test-bootstrap-key", "ingest-test")

	rawKey, err := validator.CreateKey(t.Context(), "ingest-test-key", 100, nil, nil, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	payload := map[string]string{
		"title": "Integration Test Document",
		"body":  "this document verifies the ingest-then-search round trip",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/collections/ingest-test/documents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", rawKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, respBody)
	}

	searchReq, _ := http.NewRequest(http.MethodGet,
		srv.URL+"/collections/ingest-test/documents/search?q=verifies&query_by=title,body", nil)
	searchReq.Header.Set("X-API-Key", rawKey)
	searchResp, err := http.DefaultClient.Do(searchReq)
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(searchResp.Body)
		t.Fatalf("expected 200, got %d: %s", searchResp.StatusCode, respBody)
	}

	var result struct {
		Found int `json:"found"`
	}
	if err := json.NewDecoder(searchResp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding search response: %v", err)
	}
	if result.Found != 1 {
		t.Errorf("expected found=1, got %d", result.Found)
	}
}

// TestRateLimiting verifies that the router enforces the per-key request
// budget passed to api.NewRouter.
func TestRateLimiting(t *testing.T) {
	db := skipIfNoPostgres(t)

	validator, err := apikey.NewValidator(db)
	if err != nil {
		t.Fatalf("creating api key validator: %v", err)
	}
	limiter := ratelimit.New(time.Minute)
	kv := store.NewMemoryKV()
	mgr := manager.New(kv, validator, 0, "test-bootstrap-key", nil, nil)
	h := api.New(mgr)
	chain := api.NewRouter(h, limiter, 2, nil) // 2 requests per window
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)

	rawKey, err := validator.CreateKey(t.Context(), "ratelimit-test", 100, []string{"*"}, []string{"*"}, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/collections", nil)
		req.Header.Set("X-API-Key", rawKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/collections", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("rate limit request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

// TestSymlinkLifecycle verifies alias upsert and deletion.
func TestSymlinkLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, _ := newAPIServer(t, db)
	createTestCollection(t, srv, "test-bootstrap-key", "aliased")

	body, _ := json.Marshal(map[string]string{"collection_name": "aliased"})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/aliases/aliased-alias", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-bootstrap-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upserting symlink: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, respBody)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/aliases/aliased-alias", nil)
	delReq.Header.Set("X-API-Key", "test-bootstrap-key")
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("deleting symlink: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 deleting symlink, got %d", delResp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
