package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/monishk/shardsearch/internal/auth/ratelimit"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

type contextKey string

const outParamsKey contextKey = "api_out_params"

// Auth validates the request's API key against mgr.AuthKeyMatches, which
// checks the bootstrap key before delegating to the scoped-key validator —
// unlike gateway/middleware's Auth, which only ever talks to
// apikey.Validator directly. action follows Typesense's "resource:verb"
// convention (e.g. "documents:search", "collections:create").
func (h *Handler) Auth(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			collections := []string{r.PathValue("collection")}
			outParams := make(map[string]string)
			ok, err := h.mgr.AuthKeyMatches(r.Context(), key, action, collections, outParams)
			if err != nil {
				h.writeError(w, err)
				return
			}
			if !ok {
				h.writeError(w, apperrors.Unauthorized("Invalid API key or insufficient scope."))
				return
			}
			ctx := context.WithValue(r.Context(), outParamsKey, outParams)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// scopedParams returns the parameter overrides a scoped API key injected
// into the request, if any (e.g. a key scoped to filter_by=user_id:123).
func scopedParams(ctx context.Context) map[string]string {
	params, _ := ctx.Value(outParamsKey).(map[string]string)
	return params
}

// RateLimit enforces a fixed per-key request budget. Unlike
// gateway/middleware's RateLimit, which reads a per-key limit out of
// KeyInfo stashed in context by its own Auth, this keys directly off the
// raw API key string since AuthManager.KeyMatches never returns per-key
// rate-limit configuration to this package.
func RateLimit(limiter *ratelimit.Limiter, requestsPerWindow int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(key, requestsPerWindow) {
				w.Header().Set("Retry-After", "60")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"Rate limit exceeded."}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}
