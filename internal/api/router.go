package api

import (
	"net/http"

	"github.com/monishk/shardsearch/internal/auth/ratelimit"
	gwmw "github.com/monishk/shardsearch/internal/gateway/middleware"
	pkgmw "github.com/monishk/shardsearch/pkg/middleware"
	"github.com/monishk/shardsearch/pkg/metrics"
)

// NewRouter builds the collection-manager's HTTP surface: net/http's
// method-tagged ServeMux patterns, wrapped per-route in the auth
// middleware scoped to that route's action, then the shared
// RequestID → Metrics → CORS → RateLimit chain, per gateway/router's style.
//
// Route table:
//
//	GET    /health                                   → health (unauthenticated)
//	POST   /collections                               → collections:create
//	GET    /collections                                → collections:list
//	GET    /collections/{collection}                   → collections:get
//	DELETE /collections/{collection}                   → collections:delete
//	POST   /collections/{collection}/documents         → documents:create
//	GET    /collections/{collection}/documents/search  → documents:search
//	GET    /collections/{collection}/documents/{id}    → documents:get
//	DELETE /collections/{collection}/documents/{id}    → documents:delete
//	PUT    /aliases/{alias}                            → aliases:upsert
//	DELETE /aliases/{alias}                            → aliases:delete
func NewRouter(h *Handler, limiter *ratelimit.Limiter, requestsPerWindow int, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	route := func(pattern, action string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.Auth(action)(fn))
	}

	route("POST /collections", "collections:create", h.CreateCollection)
	route("GET /collections", "collections:list", h.ListCollections)
	route("GET /collections/{collection}", "collections:get", h.GetCollection)
	route("DELETE /collections/{collection}", "collections:delete", h.DropCollection)
	route("POST /collections/{collection}/documents", "documents:create", h.AddDocument)
	route("GET /collections/{collection}/documents/search", "documents:search", h.Search)
	route("GET /collections/{collection}/documents/{id}", "documents:get", h.GetDocument)
	route("DELETE /collections/{collection}/documents/{id}", "documents:delete", h.RemoveDocument)
	route("PUT /aliases/{alias}", "aliases:upsert", h.UpsertSymlink)
	route("DELETE /aliases/{alias}", "aliases:delete", h.DeleteSymlink)

	var chain http.Handler = mux
	chain = RateLimit(limiter, requestsPerWindow)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
