package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ironsight/internal/authority"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"
)

// testRouterConfig builds a router around a live authority with limits
// high enough that tests never trip the rate limiter.
func testRouterConfig(t *testing.T) (RouterConfig, *authority.Authority) {
	t.Helper()
	world := scene.NewWorld(-100, -100, 100, 100, 25)
	auth := authority.New(authority.Config{World: world})
	return RouterConfig{
		Authority: auth,
		Catalog:   weapon.DefaultCatalog(),
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   DefaultRateLimitConfig.CleanupInterval,
		},
		DisableLogging: true,
	}, auth
}

func TestWeaponsEndpoint(t *testing.T) {
	cfg, _ := testRouterConfig(t)
	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/weapons")
	if err != nil {
		t.Fatalf("GET /api/weapons: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var defs []weapon.Definition
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(defs) == 0 {
		t.Fatal("expected a non-empty catalog")
	}
	found := false
	for _, d := range defs {
		if d.ID == "ar-77" {
			found = true
		}
	}
	if !found {
		t.Error("catalog listing missing ar-77")
	}
}

func TestWeaponByIDEndpoint(t *testing.T) {
	cfg, _ := testRouterConfig(t)
	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/weapons/ar-77")
	if err != nil {
		t.Fatalf("GET /api/weapons/ar-77: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var def weapon.Definition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if def.ID != "ar-77" {
		t.Errorf("ID = %q, want ar-77", def.ID)
	}

	resp2, err := http.Get(ts.URL + "/api/weapons/no-such-gun")
	if err != nil {
		t.Fatalf("GET unknown weapon: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown weapon status = %d, want 404", resp2.StatusCode)
	}
}

func TestActorsEndpoint(t *testing.T) {
	cfg, auth := testRouterConfig(t)
	if _, err := auth.Connect("alice", scene.Vec3{}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/actors")
	if err != nil {
		t.Fatalf("GET /api/actors: %v", err)
	}
	defer resp.Body.Close()

	var snaps []authority.SessionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ActorID != "alice" {
		t.Fatalf("snapshot = %+v, want single entry for alice", snaps)
	}
	if !snaps[0].Alive {
		t.Error("freshly connected actor should be alive")
	}

	resp2, err := http.Get(ts.URL + "/api/actors/alice")
	if err != nil {
		t.Fatalf("GET /api/actors/alice: %v", err)
	}
	defer resp2.Body.Close()
	var snap authority.SessionSnapshot
	if err := json.NewDecoder(resp2.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ActorID != "alice" {
		t.Errorf("ActorID = %q, want alice", snap.ActorID)
	}

	resp3, err := http.Get(ts.URL + "/api/actors/ghost")
	if err != nil {
		t.Fatalf("GET unknown actor: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("unknown actor status = %d, want 404", resp3.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	cfg, auth := testRouterConfig(t)
	auth.Connect("alice", scene.Vec3{})
	auth.Connect("bob", scene.Vec3{X: 5})

	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := stats["sessions"]; got != float64(2) {
		t.Errorf("sessions = %v, want 2", got)
	}
	if _, ok := stats["rateLimit"]; !ok {
		t.Error("stats missing rateLimit block")
	}
}

func TestRateLimitRejects(t *testing.T) {
	cfg, _ := testRouterConfig(t)
	cfg.RateLimitConfig = &RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		CleanupInterval:   DefaultRateLimitConfig.CleanupInterval,
	}
	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	var last int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("fifth burst request status = %d, want 429", last)
	}
}

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // native clients send no Origin header
		{"http://localhost:3000", true},
		{"http://localhost:9999", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example.com", false},
		{"http://localhost.evil.com", false},
	}
	for _, tt := range tests {
		if got := IsAllowedOrigin(tt.origin); got != tt.want {
			t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"remote addr", "10.0.0.1:5123", "", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:5123", "203.0.113.9", "", "203.0.113.9"},
		{"forwarded chain", "10.0.0.1:5123", "203.0.113.9, 198.51.100.2", "", "203.0.113.9"},
		{"real ip", "10.0.0.1:5123", "", "203.0.113.7", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWebSocketLimiterPerIP(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	if !wrl.Allow("1.2.3.4") || !wrl.Allow("1.2.3.4") {
		t.Fatal("first two connections should be allowed")
	}
	if wrl.Allow("1.2.3.4") {
		t.Error("third connection from same IP should be rejected")
	}
	if !wrl.Allow("5.6.7.8") {
		t.Error("different IP should not be affected")
	}

	wrl.Release("1.2.3.4")
	if !wrl.Allow("1.2.3.4") {
		t.Error("released slot should be reusable")
	}
}
