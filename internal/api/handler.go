// Package api is the thin net/http surface over internal/manager: it
// marshals url.Values into the manager's string-keyed parameter contract
// and calls DoSearch / Collection.Add / Collection.Remove /
// Manager.CreateCollection / Manager.DropCollection / symlink CRUD. No
// business logic lives here — every invariant and edge case lives in the
// manager/collection/planner/shard-index core, per the searcher/handler +
// gateway/router style this is modeled on.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/monishk/shardsearch/internal/manager"
	"github.com/monishk/shardsearch/internal/schema"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
	pkgmw "github.com/monishk/shardsearch/pkg/middleware"
	"github.com/monishk/shardsearch/pkg/tracing"
)

type Handler struct {
	mgr    *manager.Manager
	logger *slog.Logger
}

func New(mgr *manager.Manager) *Handler {
	return &Handler{mgr: mgr, logger: slog.Default().With("component", "api-handler")}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Search handles GET /collections/{collection}/documents/search: every
// query string parameter is forwarded verbatim into DoSearch's
// string-keyed contract.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	collName := r.PathValue("collection")
	ctx, span := tracing.StartSpan(r.Context(), "documents:search", pkgmw.GetRequestID(r.Context()))
	span.SetAttr("collection", collName)
	defer func() {
		span.End()
		span.Log()
	}()

	raw := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			raw[k] = v[0]
		}
	}
	for k, v := range scopedParams(ctx) {
		if _, set := raw[k]; !set {
			raw[k] = v
		}
	}
	span.SetAttr("q", raw["q"])
	result, err := h.mgr.DoSearch(ctx, collName, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.SetAttr("found", result.Found)
	h.writeJSON(w, http.StatusOK, toSearchResultJSON(result))
}

// CreateCollection handles POST /collections.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.BadRequest("malformed request body: %v", err))
		return
	}
	fields := make([]schema.Field, 0, len(req.Fields))
	for _, fj := range req.Fields {
		ft, arr, err := schema.ParseFieldType(fj.Type)
		if err != nil {
			h.writeError(w, err)
			return
		}
		fields = append(fields, schema.Field{
			Name: fj.Name, Type: ft, Array: arr, Facet: fj.Facet,
			Optional: fj.Optional, GeoResolution: fj.GeoResolution,
		})
	}
	numShards := req.NumShards
	if numShards == 0 {
		numShards = 4
	}
	coll, err := h.mgr.CreateCollection(r.Context(), req.Name, numShards, fields, req.DefaultSortingField, time.Now().Unix(), req.IndexAllFields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id": coll.ID, "name": coll.Name, "num_documents": coll.DocCount(),
	})
}

// GetCollection handles GET /collections/{collection}.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	coll, err := h.mgr.GetCollection(r.PathValue("collection"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id": coll.ID, "name": coll.Name, "num_documents": coll.DocCount(),
	})
}

// ListCollections handles GET /collections.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	colls := h.mgr.Collections()
	out := make([]map[string]any, 0, len(colls))
	for _, c := range colls {
		out = append(out, map[string]any{"id": c.ID, "name": c.Name, "num_documents": c.DocCount()})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// DropCollection handles DELETE /collections/{collection}.
func (h *Handler) DropCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.DropCollection(r.Context(), r.PathValue("collection"), true); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

// AddDocument handles POST /collections/{collection}/documents.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	coll, err := h.mgr.GetCollection(r.PathValue("collection"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, apperrors.BadRequest("reading request body: %v", err))
		return
	}
	raw, err := schema.Decode(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	_, id, err := coll.Add(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	raw["id"] = id
	h.writeJSON(w, http.StatusCreated, raw)
}

// GetDocument handles GET /collections/{collection}/documents/{id}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	coll, err := h.mgr.GetCollection(r.PathValue("collection"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := coll.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// RemoveDocument handles DELETE /collections/{collection}/documents/{id}.
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	coll, err := h.mgr.GetCollection(r.PathValue("collection"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := coll.Remove(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// UpsertSymlink handles PUT /aliases/{alias}.
func (h *Handler) UpsertSymlink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionName string `json:"collection_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.BadRequest("malformed request body: %v", err))
		return
	}
	if err := h.mgr.UpsertSymlink(r.Context(), r.PathValue("alias"), req.CollectionName); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"name": r.PathValue("alias"), "collection_name": req.CollectionName})
}

// DeleteSymlink handles DELETE /aliases/{alias}.
func (h *Handler) DeleteSymlink(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.DeleteSymlink(r.Context(), r.PathValue("alias")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	h.writeJSON(w, status, map[string]string{"message": err.Error()})
}

type fieldJSON struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Facet         bool   `json:"facet"`
	Optional      bool   `json:"optional"`
	GeoResolution int    `json:"geo_resolution,omitempty"`
}

type createCollectionRequest struct {
	Name                string      `json:"name"`
	NumShards           int         `json:"num_memory_shards"`
	DefaultSortingField string      `json:"default_sorting_field"`
	Fields              []fieldJSON `json:"fields"`
	IndexAllFields      bool        `json:"index_all_fields"`
}
