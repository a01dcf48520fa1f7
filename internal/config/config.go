// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, simulation, and limit
// settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port      int
	DebugPort int // localhost-only pprof/debug server, 0 disables
	TickRate  int // authority ticks per second
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      3000,
		DebugPort: 6060,
		TickRate:  30,
	}
}

// ServerFromEnv returns server configuration with environment variable
// overrides. Environment variables take precedence over defaults.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if p := getEnvInt("DEBUG_PORT", -1); p >= 0 {
		cfg.DebugPort = p
	}
	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig tunes the ballistics march and damage multipliers.
type SimulationConfig struct {
	MaxDistance        float64 // total shot travel in world units
	Segments           int     // ray segments across MaxDistance
	MaxPenetrations    int     // walls one round may pass through
	PenetrationDecay   float64 // power multiplier per penetration
	DamageDecay        float64 // damage multiplier per penetration
	HeadshotMultiplier float64
	BackstabMultiplier float64
}

// DefaultSimulation returns the default simulation tuning.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		MaxDistance:        1000,
		Segments:           10,
		MaxPenetrations:    3,
		PenetrationDecay:   0.7,
		DamageDecay:        0.8,
		HeadshotMultiplier: 2.0,
		BackstabMultiplier: 2.0,
	}
}

// SimulationFromEnv returns simulation configuration with environment
// variable overrides.
func SimulationFromEnv() SimulationConfig {
	cfg := DefaultSimulation()

	if d := getEnvFloat("SIM_MAX_DISTANCE", 0); d > 0 {
		cfg.MaxDistance = d
	}
	if s := getEnvInt("SIM_SEGMENTS", 0); s > 0 {
		cfg.Segments = s
	}
	if p := getEnvInt("SIM_MAX_PENETRATIONS", 0); p > 0 {
		cfg.MaxPenetrations = p
	}

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds arena bounds and broad-phase grid settings.
type WorldConfig struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
	CellSize   float64 // broad-phase grid cell size in world units
}

// DefaultWorld returns the default arena configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		MinX:     -200,
		MinZ:     -200,
		MaxX:     1200,
		MaxZ:     200,
		CellSize: 25,
	}
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection caps.
type ResourceLimits struct {
	MaxSessions      int // hard cap on connected actors
	MaxColliders     int // hit sampler tracked-set cap
	MaxMessageBytes  int64
	ActionsPerSecond int // per-connection inbound action rate
	ActionBurst      int
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxSessions:      64,
		MaxColliders:     64,
		MaxMessageBytes:  4096,
		ActionsPerSecond: 60,
		ActionBurst:      30,
	}
}

// LimitsFromEnv returns resource limits with environment variable
// overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if s := getEnvInt("MAX_SESSIONS", 0); s > 0 {
		cfg.MaxSessions = s
	}
	if r := getEnvInt("ACTIONS_PER_SECOND", 0); r > 0 {
		cfg.ActionsPerSecond = r
	}

	return cfg
}

// =============================================================================
// AUDIT CONFIGURATION
// =============================================================================

// AuditConfig holds combat audit trail settings.
type AuditConfig struct {
	FilePath string // JSONL sink, empty disables disk output
}

// AuditFromEnv returns audit configuration with environment variable
// overrides.
func AuditFromEnv() AuditConfig {
	return AuditConfig{
		FilePath: os.Getenv("AUDIT_LOG_PATH"),
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server     ServerConfig
	Simulation SimulationConfig
	World      WorldConfig
	Limits     ResourceLimits
	Audit      AuditConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:     ServerFromEnv(),
		Simulation: SimulationFromEnv(),
		World:      DefaultWorld(),
		Limits:     LimitsFromEnv(),
		Audit:      AuditFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
