package api

import (
	"log"
	"net/http"

	"ironsight/internal/authority"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"

	"github.com/go-chi/chi/v5"
)

// ServerConfig wires the full HTTP/WebSocket front end.
type ServerConfig struct {
	Authority *authority.Authority
	Catalog   *weapon.Catalog
	Audit     *authority.AuditLog

	// Per-connection WebSocket limits, zero values use Hub defaults.
	MaxMessageBytes  int64
	ActionsPerSecond float64
	ActionBurst      int

	SpawnPoints []scene.Vec3
	CORSOrigins []string

	DisableLogging bool
}

// Server is the HTTP API server with WebSocket support. It combines
// the read-only HTTP surface with the action-routing hub.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		hub: NewHub(HubConfig{
			Authority:        cfg.Authority,
			MaxMessageBytes:  cfg.MaxMessageBytes,
			ActionsPerSecond: cfg.ActionsPerSecond,
			ActionBurst:      cfg.ActionBurst,
			SpawnPoints:      cfg.SpawnPoints,
		}),
	}

	// Create rate limiter (we track it for cleanup on Stop)
	s.rateLimiter = NewIPRateLimiter(DefaultRateLimitConfig)

	var audit AuditInterface
	if cfg.Audit != nil {
		audit = cfg.Audit
	}
	s.router = NewRouter(RouterConfig{
		Authority:      cfg.Authority,
		Catalog:        cfg.Catalog,
		Audit:          audit,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		DisableLogging: cfg.DisableLogging,
	})

	// WebSocket route needs the hub instance, so it can't be part of
	// the generic NewRouter factory.
	s.router.Get("/ws", s.hub.HandleWebSocket)

	return s
}

// Hub returns the WebSocket hub, the authority's broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins the HTTP server AND starts background workers.
// This is the ONLY method that starts goroutines or opens network listeners.
//
// Call this method only once. To stop the server, signal the process.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	log.Printf("api server starting on %s", addr)

	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(cfg)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/actors")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop performs graceful shutdown of background workers.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
