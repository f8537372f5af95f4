package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/configkv/internal/configstore"
	"github.com/kalambet/configkv/internal/storage"
)

// HistoryReader lists recorded config changes. Implemented by storage.Store.
type HistoryReader interface {
	History(key string, limit int) ([]storage.Change, error)
}

type Deps struct {
	Store   *configstore.Store
	History HistoryReader // optional; /v1/history returns 501 when nil
	Token   string        // optional; bearer auth on /v1 is disabled when empty
}

// Entry is the wire form of a single key/value pair.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// SetRequest is the body of PUT /v1/config/{key}.
type SetRequest struct {
	Value *string `json:"value"`
}

// NewHandler returns the HTTP surface over deps.Store.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/config", handleAll(deps))
		r.Get("/config/{key}", handleGet(deps))
		r.Put("/config/{key}", handleSet(deps))
		r.Delete("/config/{key}", handleDelete(deps))
		r.Get("/history", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// keyParam returns the {key} route parameter as the client sent it. chi
// routes on RawPath when one is set (e.g. the key holds an escaped '/'), and
// only then is the parameter still encoded.
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}

func handleAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := deps.Store.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list config: %v", err)
			return
		}
		writeJSON(w, all)
	}
}

func handleGet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := keyParam(r)
		if err != nil || key == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid key")
			return
		}

		v, ok, err := deps.Store.Get(key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get %q: %v", key, err)
			return
		}
		if !ok {
			q := r.URL.Query()
			if !q.Has("default") {
				httpError(w, http.StatusNotFound, "not_found", "key %q not found", key)
				return
			}
			writeJSON(w, Entry{Key: key, Value: q.Get("default"), Found: false})
			return
		}

		writeJSON(w, Entry{Key: key, Value: v, Found: true})
	}
}

func handleSet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := keyParam(r)
		if err != nil || key == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid key")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Value == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value is required")
			return
		}

		if err := deps.Store.Set(key, *req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set %q: %v", key, err)
			return
		}

		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := keyParam(r)
		if err != nil || key == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid key")
			return
		}

		removed, err := deps.Store.Remove(key)
		if errors.Is(err, configstore.ErrUnsupported) {
			httpError(w, http.StatusNotImplemented, "not_supported", "backend does not support delete")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete %q: %v", key, err)
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "key %q not found", key)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotImplemented, "not_supported", "history is not available for this backend")
			return
		}

		limit := parseIntParam(r, "limit", 50, 1000)
		changes, err := deps.History.History(r.URL.Query().Get("key"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read history: %v", err)
			return
		}
		if changes == nil {
			changes = []storage.Change{}
		}
		writeJSON(w, changes)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
