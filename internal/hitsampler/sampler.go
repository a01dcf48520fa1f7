// Package hitsampler is a swept-collision detector for melee weapons and
// other fast colliders. Each tracked collider carries generated local
// sample offsets; every tick a ray is cast from each offset along the
// collider's velocity, approximating continuous collision without full
// CCD math. Hits against the same target are debounced per
// (collider, target) pair.
package hitsampler

import (
	"sync"
	"time"

	"ironsight/internal/scene"
)

// SampleMode selects how many sample offsets a collider gets.
type SampleMode int

const (
	// Standard samples the 8 box corners.
	Standard SampleMode = iota
	// Precise adds a 27-point interior grid to the corners.
	Precise
	// Adaptive adds an interior grid whose density scales with the
	// collider's extent.
	Adaptive
)

// Collider is one tracked swept volume. Center and Velocity are read
// every tick; Extent is read once on Add.
type Collider interface {
	ID() string
	OwnerID() string
	Center() scene.Vec3
	Extent() scene.Vec3 // half extents
	Velocity() scene.Vec3
}

// World is the scene surface the sampler needs. *scene.World satisfies
// it.
type World interface {
	Raycast(origin, dir scene.Vec3, maxDist float64, exclude string) (scene.RayHit, bool)
	Contains(id string) bool
}

// Hit is one debounced detection event.
type Hit struct {
	ColliderID string         `json:"colliderId"`
	OwnerID    string         `json:"ownerId"`
	TargetID   string         `json:"targetId"`
	Part       scene.BodyPart `json:"part,omitempty"`
	Position   scene.Vec3     `json:"position"`
	Normal     scene.Vec3     `json:"normal"`
}

// Config tunes the sampler. Zero values fall back to defaults.
type Config struct {
	TickInterval time.Duration // default 20ms
	Debounce     time.Duration // default 100ms
	Mode         SampleMode
	MaxColliders int        // tracked-set cap, default 64
	Fallback     scene.Vec3 // sweep direction when velocity is near zero
}

const (
	defaultTickInterval = 20 * time.Millisecond
	defaultDebounce     = 100 * time.Millisecond
	defaultMaxColliders = 64
)

type tracked struct {
	collider Collider
	offsets  []scene.Vec3
	extent   float64
}

type debounceKey struct {
	colliderID string
	targetID   string
}

// Sampler tracks colliders and emits debounced hit events.
type Sampler struct {
	mu       sync.Mutex
	cfg      Config
	world    World
	tracked  map[string]*tracked
	expiry   map[debounceKey]time.Time
	handlers []func(Hit)

	running bool
	stop    chan struct{}
	clock   func() time.Time
}

// NewSampler builds a sampler over the given world.
func NewSampler(world World, cfg Config) *Sampler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.MaxColliders <= 0 {
		cfg.MaxColliders = defaultMaxColliders
	}
	if (cfg.Fallback == scene.Vec3{}) {
		cfg.Fallback = scene.Vec3{X: 1}
	}
	return &Sampler{
		cfg:     cfg,
		world:   world,
		tracked: make(map[string]*tracked),
		expiry:  make(map[debounceKey]time.Time),
		clock:   time.Now,
	}
}

// Subscribe registers a handler invoked for every emitted hit. Handlers
// run on the sampling goroutine and must not block.
func (s *Sampler) Subscribe(fn func(Hit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// AddCollider starts tracking a collider; the tracked-set cap bounds
// per-tick work. Re-adding an ID refreshes its offsets.
func (s *Sampler) AddCollider(c Collider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracked[c.ID()]; !ok && len(s.tracked) >= s.cfg.MaxColliders {
		return false
	}
	ext := c.Extent()
	s.tracked[c.ID()] = &tracked{
		collider: c,
		offsets:  offsetsFor(s.cfg.Mode, ext),
		extent:   ext.Length(),
	}
	return true
}

// RemoveCollider stops tracking the given collider ID.
func (s *Sampler) RemoveCollider(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, id)
	for k := range s.expiry {
		if k.colliderID == id {
			delete(s.expiry, k)
		}
	}
}

// Tracked returns the number of tracked colliders.
func (s *Sampler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Start launches the sampling loop. Idempotent.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.loop(s.stop)
}

// Stop halts the sampling loop. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *Sampler) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.step(s.clock())
		}
	}
}

// step runs one sampling pass at the given time. Exposed to the loop and
// to tests, which drive it with a synthetic clock.
func (s *Sampler) step(now time.Time) {
	hits, handlers := s.collect(now)
	for _, h := range hits {
		for _, fn := range handlers {
			fn(h)
		}
	}
}

// collect runs the sampling pass under the lock and returns the emitted
// hits; handlers run outside the lock so they may call back in.
func (s *Sampler) collect(now time.Time) ([]Hit, []func(Hit)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []Hit
	for id, tr := range s.tracked {
		owner := tr.collider.OwnerID()
		// Prune colliders whose owner left the scene.
		if owner != "" && !s.world.Contains(owner) {
			delete(s.tracked, id)
			continue
		}

		vel := tr.collider.Velocity()
		dir, moving := vel.Normalized()
		if !moving {
			dir = s.cfg.Fallback
		}
		length := vel.Length() * s.cfg.TickInterval.Seconds()
		if length < tr.extent {
			length = tr.extent
		}

		center := tr.collider.Center()
		seen := make(map[string]bool)
		for _, off := range tr.offsets {
			hit, found := s.world.Raycast(center.Add(off), dir, length, owner)
			if !found {
				continue
			}
			target := hit.OwnerID
			if target == "" {
				target = hit.ObjectID
			}
			if seen[target] {
				continue
			}
			seen[target] = true

			key := debounceKey{colliderID: id, targetID: target}
			if until, ok := s.expiry[key]; ok && now.Before(until) {
				continue
			}
			s.expiry[key] = now.Add(s.cfg.Debounce)
			hits = append(hits, Hit{
				ColliderID: id,
				OwnerID:    owner,
				TargetID:   target,
				Part:       hit.Part,
				Position:   hit.Point,
				Normal:     hit.Normal,
			})
		}
	}

	// Keep the debounce map from accumulating dead pairs.
	for k, until := range s.expiry {
		if now.After(until) {
			delete(s.expiry, k)
		}
	}

	return hits, s.handlers
}

// offsetsFor generates local sample offsets for a half-extent box.
func offsetsFor(mode SampleMode, ext scene.Vec3) []scene.Vec3 {
	offsets := corners(ext)
	switch mode {
	case Precise:
		offsets = append(offsets, grid(ext, 3)...)
	case Adaptive:
		offsets = append(offsets, grid(ext, adaptiveDensity(ext))...)
	}
	return offsets
}

func corners(ext scene.Vec3) []scene.Vec3 {
	out := make([]scene.Vec3, 0, 8)
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				out = append(out, scene.Vec3{X: sx * ext.X, Y: sy * ext.Y, Z: sz * ext.Z})
			}
		}
	}
	return out
}

// grid builds an n x n x n interior lattice spanning half the extent.
func grid(ext scene.Vec3, n int) []scene.Vec3 {
	if n < 2 {
		return []scene.Vec3{{}}
	}
	out := make([]scene.Vec3, 0, n*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				fx := float64(i)/float64(n-1) - 0.5
				fy := float64(j)/float64(n-1) - 0.5
				fz := float64(k)/float64(n-1) - 0.5
				out = append(out, scene.Vec3{X: fx * ext.X, Y: fy * ext.Y, Z: fz * ext.Z})
			}
		}
	}
	return out
}

// adaptiveDensity maps collider size to interior lattice resolution:
// small colliders get a sparse grid, large ones up to 4 per axis.
func adaptiveDensity(ext scene.Vec3) int {
	switch size := ext.Length(); {
	case size < 0.5:
		return 2
	case size < 2:
		return 3
	default:
		return 4
	}
}
