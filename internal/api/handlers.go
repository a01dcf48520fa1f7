package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler methods for routerHandlers.
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.catalog.All())
}

func (h *routerHandlers) handleGetWeapon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.catalog.Known(id) {
		writeError(w, "unknown weapon", http.StatusNotFound)
		return
	}
	writeJSON(w, h.catalog.Get(id))
}

func (h *routerHandlers) handleGetActors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.auth.Snapshot())
}

func (h *routerHandlers) handleGetActor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, s := range h.auth.Snapshot() {
		if s.ActorID == id {
			writeJSON(w, s)
			return
		}
	}
	writeError(w, "unknown actor", http.StatusNotFound)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"tick":      h.auth.Tick(),
		"sessions":  h.auth.SessionCount(),
		"rateLimit": h.limiter.GetStats(),
	}
	if h.audit != nil {
		stats["audit"] = h.audit.Stats()
	}
	writeJSON(w, stats)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
