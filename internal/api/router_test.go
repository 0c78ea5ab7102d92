package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/monishk/shardsearch/internal/auth/ratelimit"
	"github.com/monishk/shardsearch/internal/manager"
	"github.com/monishk/shardsearch/internal/store"
)

func TestRouterHealthIsUnauthenticated(t *testing.T) {
	mgr := manager.New(store.NewMemoryKV(), nil, 0, "bootstrap", nil, nil)
	h := New(mgr)
	router := NewRouter(h, ratelimit.New(time.Minute), 1000, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterRejectsUnauthenticatedCollectionCreate(t *testing.T) {
	mgr := manager.New(store.NewMemoryKV(), nil, 0, "bootstrap", nil, nil)
	h := New(mgr)
	router := NewRouter(h, ratelimit.New(time.Minute), 1000, nil)

	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(`{"name":"books"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterEndToEndCreateSearchWithBootstrapKey(t *testing.T) {
	mgr := manager.New(store.NewMemoryKV(), nil, 0, "bootstrap", nil, nil)
	h := New(mgr)
	router := NewRouter(h, ratelimit.New(time.Minute), 1000, nil)

	createReq := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(
		`{"name":"books","default_sorting_field":"rating","fields":[{"name":"title","type":"string"},{"name":"rating","type":"int32"}]}`))
	createReq.Header.Set("X-API-Key", "bootstrap")
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createRec.Code, createRec.Body.String())
	}

	addReq := httptest.NewRequest(http.MethodPost, "/collections/books/documents", bytes.NewBufferString(
		`{"title":"hello world","rating":5}`))
	addReq.Header.Set("X-API-Key", "bootstrap")
	addRec := httptest.NewRecorder()
	router.ServeHTTP(addRec, addReq)
	if addRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", addRec.Code, addRec.Body.String())
	}

	searchReq := httptest.NewRequest(http.MethodGet, "/collections/books/documents/search?q=hello&query_by=title", nil)
	searchReq.Header.Set("X-API-Key", "bootstrap")
	searchRec := httptest.NewRecorder()
	router.ServeHTTP(searchRec, searchReq)
	if searchRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", searchRec.Code, searchRec.Body.String())
	}
}

func TestRouterSetsRequestIDHeader(t *testing.T) {
	mgr := manager.New(store.NewMemoryKV(), nil, 0, "bootstrap", nil, nil)
	h := New(mgr)
	router := NewRouter(h, ratelimit.New(time.Minute), 1000, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected the RequestID middleware to stamp a request id header")
	}
}
