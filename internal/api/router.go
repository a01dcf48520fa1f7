package api

import (
	"net/http"

	"ironsight/internal/authority"
	"ironsight/internal/weapon"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AuthorityInterface defines the authority methods used by the HTTP
// surface. Keep this minimal - only include methods the API layer
// actually calls.
type AuthorityInterface interface {
	// Snapshot returns the session table for API responses
	Snapshot() []authority.SessionSnapshot
	// SessionCount returns the number of connected actors
	SessionCount() int
	// Tick returns the current authority tick
	Tick() uint64
}

// AuditInterface exposes audit trail counters for the stats endpoint.
type AuditInterface interface {
	Stats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Authority: auth,
//	    Catalog:   weapon.DefaultCatalog(),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Authority is the canonical combat state (required)
	Authority AuthorityInterface

	// Catalog is the server-side weapon catalog (required)
	Catalog *weapon.Catalog

	// Audit is optional; nil hides audit counters from /api/stats
	Audit AuditInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses the default localhost origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	auth    AuthorityInterface
	catalog *weapon.Catalog
	audit   AuditInterface
	limiter *IPRateLimiter
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE apart from the rate limiter's
// cleanup goroutine when one is constructed here:
//   - No network listeners are opened
//   - No background workers beyond the limiter cleanup are launched
//
// This makes it safe to use in tests with httptest.NewServer.
// WebSocket routes live on the Server, which owns the Hub.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		auth:    cfg.Authority,
		catalog: cfg.Catalog,
		audit:   cfg.Audit,
		limiter: rateLimiter,
	}

	// API routes. The read-only surface is for spectators and ops
	// tooling; gameplay goes over the WebSocket.
	r.Route("/api", func(r chi.Router) {
		r.Get("/weapons", h.handleGetWeapons)
		r.Get("/weapons/{id}", h.handleGetWeapon)
		r.Get("/actors", h.handleGetActors)
		r.Get("/actors/{id}", h.handleGetActor)
		r.Get("/stats", h.handleGetStats)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
