package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ironsight/internal/api"
	"ironsight/internal/authority"
	"ironsight/internal/ballistics"
	"ironsight/internal/config"
	"ironsight/internal/hitsampler"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	log.Println("================================")
	log.Println(" IRONSIGHT COMBAT AUTHORITY")
	log.Println("================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	serverCfg := appConfig.Server
	simCfg := appConfig.Simulation
	limits := appConfig.Limits

	log.Printf("config: %d TPS, %d max sessions, %.0f unit range, %d segments",
		serverCfg.TickRate, limits.MaxSessions, simCfg.MaxDistance, simCfg.Segments)

	// Collision world with static arena geometry
	world := scene.NewWorld(
		appConfig.World.MinX, appConfig.World.MinZ,
		appConfig.World.MaxX, appConfig.World.MaxZ,
		appConfig.World.CellSize,
	)
	buildArena(world)

	catalog := weapon.DefaultCatalog()
	log.Printf("weapon catalog: %d definitions", len(catalog.All()))

	simulator := ballistics.NewSimulator(ballistics.Config{
		MaxDistance:        simCfg.MaxDistance,
		Segments:           simCfg.Segments,
		MaxPenetrations:    simCfg.MaxPenetrations,
		PenetrationDecay:   simCfg.PenetrationDecay,
		DamageDecay:        simCfg.DamageDecay,
		HeadshotMultiplier: simCfg.HeadshotMultiplier,
	})

	// Combat audit trail
	audit := authority.NewAuditLog()
	if err := audit.Start(appConfig.Audit.FilePath); err != nil {
		log.Printf("audit log disabled: %v", err)
	} else if appConfig.Audit.FilePath != "" {
		log.Printf("audit log: %s", appConfig.Audit.FilePath)
	}

	// Melee contact detection. The authority registers a swing volume
	// per actor holding a melee weapon; contacts come back as hit claims
	// and face the same validation as ranged claims: the swing must have
	// been declared as a fire action first, and damage is recomputed
	// server-side.
	sampler := hitsampler.NewSampler(world, hitsampler.Config{
		MaxColliders: limits.MaxColliders,
		Mode:         hitsampler.Adaptive,
	})

	auth := authority.New(authority.Config{
		TickRate:           serverCfg.TickRate,
		MaxSessions:        limits.MaxSessions,
		HeadshotMultiplier: simCfg.HeadshotMultiplier,
		BackstabMultiplier: simCfg.BackstabMultiplier,
		Catalog:            catalog,
		World:              world,
		Simulator:          simulator,
		Audit:              audit,
		Observer:           api.NewMetricsObserver(),
		Melee:              sampler,
	})

	server := api.NewServer(api.ServerConfig{
		Authority:        auth,
		Catalog:          catalog,
		Audit:            audit,
		MaxMessageBytes:  limits.MaxMessageBytes,
		ActionsPerSecond: float64(limits.ActionsPerSecond),
		ActionBurst:      limits.ActionBurst,
		SpawnPoints:      spawnPoints(appConfig.World),
	})
	auth.SetBroadcaster(server.Hub())

	sampler.Subscribe(func(h hitsampler.Hit) {
		claim := authority.HitClaim{
			TargetID: h.TargetID,
			Part:     h.Part,
			Distance: meleeDistance(world, h),
		}
		payload, err := json.Marshal(claim)
		if err != nil {
			return
		}
		auth.HandleAction(authority.ActionEnvelope{
			Type:    authority.ActionHitClaim,
			ActorID: h.OwnerID,
			Payload: payload,
		})
	})

	// Debug server (pprof + metrics), localhost only
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" && serverCfg.DebugPort > 0 {
		debugCfg := api.DefaultObservabilityConfig()
		debugCfg.ListenAddr = fmt.Sprintf("127.0.0.1:%d", serverCfg.DebugPort)
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("debug server disabled: %v", err)
		}
	}

	auth.Start()
	sampler.Start()
	log.Println("authority tick loop started")

	go func() {
		addr := fmt.Sprintf(":%d", serverCfg.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("server ready, press Ctrl+C to stop")
	<-quit

	log.Println("shutting down...")
	sampler.Stop()
	auth.Stop()
	server.Stop()
	audit.Stop()
	log.Println("goodbye")
}

// buildArena places the static cover geometry. IDs are stable so the
// audit trail can name what a round stopped in.
func buildArena(w *scene.World) {
	boxes := []scene.Box{
		{ID: "wall-north", Min: scene.Vec3{X: -200, Y: 0, Z: 195}, Max: scene.Vec3{X: 1200, Y: 6, Z: 200}, Material: scene.MaterialConcrete},
		{ID: "wall-south", Min: scene.Vec3{X: -200, Y: 0, Z: -200}, Max: scene.Vec3{X: 1200, Y: 6, Z: -195}, Material: scene.MaterialConcrete},
		{ID: "wall-east", Min: scene.Vec3{X: 1195, Y: 0, Z: -200}, Max: scene.Vec3{X: 1200, Y: 6, Z: 200}, Material: scene.MaterialConcrete},
		{ID: "wall-west", Min: scene.Vec3{X: -200, Y: 0, Z: -200}, Max: scene.Vec3{X: -195, Y: 6, Z: 200}, Material: scene.MaterialConcrete},

		{ID: "mid-barrier", Min: scene.Vec3{X: 495, Y: 0, Z: -40}, Max: scene.Vec3{X: 497, Y: 2.5, Z: 40}, Material: scene.MaterialMetal},
		{ID: "crate-a", Min: scene.Vec3{X: 240, Y: 0, Z: -15}, Max: scene.Vec3{X: 243, Y: 2, Z: -12}, Material: scene.MaterialWood},
		{ID: "crate-b", Min: scene.Vec3{X: 760, Y: 0, Z: 10}, Max: scene.Vec3{X: 763, Y: 2, Z: 13}, Material: scene.MaterialWood},
		{ID: "office-pane", Min: scene.Vec3{X: 350, Y: 0, Z: 60}, Max: scene.Vec3{X: 350.2, Y: 3, Z: 90}, Material: scene.MaterialGlass},
		{ID: "office-wall", Min: scene.Vec3{X: 650, Y: 0, Z: -90}, Max: scene.Vec3{X: 650.4, Y: 3, Z: -60}, Material: scene.MaterialDrywall},
	}
	for _, b := range boxes {
		w.Upsert(b)
	}
	log.Printf("arena built: %d static volumes", len(boxes))
}

// spawnPoints spreads connecting actors along the arena's long axis.
func spawnPoints(w config.WorldConfig) []scene.Vec3 {
	span := w.MaxX - w.MinX
	pts := make([]scene.Vec3, 0, 8)
	for i := 0; i < 8; i++ {
		pts = append(pts, scene.Vec3{
			X: w.MinX + span*float64(i+1)/9,
			Z: 0,
		})
	}
	return pts
}

// meleeDistance is the reach the damage table is evaluated at, taken
// from the attacker's volume to the contact point.
func meleeDistance(w *scene.World, h hitsampler.Hit) float64 {
	box, ok := w.Box(h.OwnerID)
	if !ok {
		return 0
	}
	return h.Position.Sub(box.Center()).Length()
}
