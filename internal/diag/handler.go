package diag

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"tiercache/internal/common/logging"
	"tiercache/pkg/tiercache"
)

// Handler serves the cache's monitoring endpoints.
type Handler struct {
	cache *tiercache.Cache
	log   logging.Logger
}

// NewHandler creates a diagnostics handler for the given cache.
func NewHandler(cache *tiercache.Cache, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handler{cache: cache, log: logger}
}

// Router builds the diagnostics routes.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.handleStats).Methods("GET")
	api.HandleFunc("/selftest", h.handleSelfTest).Methods("POST")
	return router
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats reports both tiers and the facade counters. Read-only; safe
// for a monitoring UI to poll.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// handleSelfTest runs the behavioral checks against sandbox caches. The
// live cache is never touched, but the run still costs some CPU, hence
// POST rather than GET.
func (h *Handler) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	results := SelfTest(r.Context())

	status := http.StatusOK
	if !AllPassed(results) {
		status = http.StatusInternalServerError
		h.log.Warn("self-test failed", logging.Any("results", results))
	}
	writeJSON(w, status, map[string]any{
		"passed": AllPassed(results),
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
