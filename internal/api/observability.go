package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"ironsight/internal/authority"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-actor labels to prevent DoS)
var (
	// Authority tick metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authority_tick_duration_seconds",
		Help:    "Time spent in one authority tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authority_sessions_active",
		Help: "Currently connected actor sessions",
	})

	// Action metrics - labels are the fixed action type set plus the
	// fixed rejection reason strings emitted by the authority
	actionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_accepted_total",
		Help: "Declared actions accepted by the authority",
	}, []string{"action"})

	actionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_rejected_total",
		Help: "Declared actions silently rejected by the authority",
	}, []string{"action", "reason"})

	hitsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hits_confirmed_total",
		Help: "Hit claims that survived server validation",
	})

	hitDamage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hit_damage",
		Help:    "Server-computed damage per confirmed hit",
		Buckets: []float64{5, 10, 20, 40, 60, 100, 160},
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "session_cap", "no_actor"

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // Bounded: "in", "out"
)

// MetricsObserver bridges authority outcomes into Prometheus. It is
// safe for concurrent use; all state lives in the package-level
// collectors.
type MetricsObserver struct{}

// NewMetricsObserver returns the Prometheus-backed authority observer.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (m *MetricsObserver) ActionAccepted(action authority.ActionType) {
	actionsAccepted.WithLabelValues(string(action)).Inc()
}

func (m *MetricsObserver) ActionRejected(action authority.ActionType, reason string) {
	actionsRejected.WithLabelValues(string(action), reason).Inc()
}

func (m *MetricsObserver) HitConfirmed(damage float64) {
	hitsConfirmed.Inc()
	hitDamage.Observe(damage)
}

func (m *MetricsObserver) SessionsChanged(count int) {
	sessionsActive.Set(float64(count))
}

func (m *MetricsObserver) TickDuration(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Optional basic auth wrapper
	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("debug server starting on %s", cfg.ListenAddr)
		log.Printf("  - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("  - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of the bounded values listed on the metric.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts one WebSocket message in the given
// direction ("in" or "out").
func IncrementWSMessages(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}
