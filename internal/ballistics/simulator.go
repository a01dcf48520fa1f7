// Package ballistics turns one shot declaration into at most one hit via a
// segmented ray march with approximate drop and wall penetration. The
// simulator is pure: it has no knowledge of fire modes, ammo, or
// networking, and the same inputs against the same scene always produce
// the same output.
package ballistics

import (
	"math"

	"ironsight/internal/scene"
	"ironsight/internal/weapon"
)

// Scene is the ray-intersection capability the simulator needs. The
// canonical implementation is *scene.World.
type Scene interface {
	Raycast(origin, dir scene.Vec3, maxDist float64, exclude string) (scene.RayHit, bool)
	Thickness(objectID string, entry, dir scene.Vec3, maxProbe float64) (float64, bool)
	Extent(objectID string) (float64, bool)
}

// ShotDeclaration describes one fired round with spread already applied to
// the direction. Declarations are ephemeral: built, simulated, discarded.
type ShotDeclaration struct {
	ShooterID        string               `json:"shooterId"`
	WeaponID         string               `json:"weaponId"`
	Origin           scene.Vec3           `json:"origin"`
	Direction        scene.Vec3           `json:"direction"`
	Velocity         float64              `json:"velocity"`
	Damage           float64              `json:"damage"`
	PenetrationPower float64              `json:"penetration"`
	DropCoefficient  float64              `json:"bulletDrop"`
	DamageRanges     []weapon.DamageRange `json:"damageRanges,omitempty"`
}

// DeclareShot builds a declaration from a weapon definition.
func DeclareShot(shooterID string, def weapon.Definition, origin, dir scene.Vec3) ShotDeclaration {
	return ShotDeclaration{
		ShooterID:        shooterID,
		WeaponID:         def.ID,
		Origin:           origin,
		Direction:        dir,
		Velocity:         def.MuzzleVelocity,
		Damage:           def.Damage,
		PenetrationPower: def.PenetrationPower,
		DropCoefficient:  def.BulletDropCoefficient,
		DamageRanges:     def.DamageRanges,
	}
}

// damageAt evaluates the declaration's damage table at a travel distance.
func (s ShotDeclaration) damageAt(dist float64) float64 {
	d := weapon.Definition{Damage: s.Damage, DamageRanges: s.DamageRanges}
	return d.DamageAtDistance(dist)
}

// HitResult is the outcome of a simulated shot. TargetID is empty when the
// round stopped in non-living geometry.
type HitResult struct {
	TargetID     string         `json:"targetId,omitempty"`
	ObjectID     string         `json:"objectId"`
	Point        scene.Vec3     `json:"point"`
	Normal       scene.Vec3     `json:"normal"`
	Material     scene.Material `json:"material"`
	Part         scene.BodyPart `json:"part,omitempty"`
	Headshot     bool           `json:"headshot"`
	Backstab     bool           `json:"backstab"`
	Damage       float64        `json:"damage"`
	Distance     float64        `json:"distance"`
	Penetrations int            `json:"penetrations"`
}

// Config tunes the segmented simulation.
type Config struct {
	MaxDistance        float64 // total travel budget in world units
	Segments           int     // ray segments across MaxDistance
	MaxPenetrations    int     // walls a round may pass through
	PenetrationDecay   float64 // power multiplier per penetration
	DamageDecay        float64 // damage multiplier per penetration
	HeadshotMultiplier float64
	ExitEpsilon        float64 // advance past an exit point before resuming
}

// DefaultConfig returns the standard simulation tuning.
func DefaultConfig() Config {
	return Config{
		MaxDistance:        1000,
		Segments:           10,
		MaxPenetrations:    3,
		PenetrationDecay:   0.7,
		DamageDecay:        0.8,
		HeadshotMultiplier: 2.0,
		ExitEpsilon:        0.01,
	}
}

// Simulator runs segmented shot simulations against a scene.
type Simulator struct {
	cfg Config
}

// NewSimulator creates a simulator; zero-valued config fields fall back to
// defaults.
func NewSimulator(cfg Config) *Simulator {
	def := DefaultConfig()
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = def.MaxDistance
	}
	if cfg.Segments <= 0 {
		cfg.Segments = def.Segments
	}
	if cfg.MaxPenetrations <= 0 {
		cfg.MaxPenetrations = def.MaxPenetrations
	}
	if cfg.PenetrationDecay <= 0 {
		cfg.PenetrationDecay = def.PenetrationDecay
	}
	if cfg.DamageDecay <= 0 {
		cfg.DamageDecay = def.DamageDecay
	}
	if cfg.HeadshotMultiplier <= 0 {
		cfg.HeadshotMultiplier = def.HeadshotMultiplier
	}
	if cfg.ExitEpsilon <= 0 {
		cfg.ExitEpsilon = def.ExitEpsilon
	}
	return &Simulator{cfg: cfg}
}

// Config returns the effective simulation tuning.
func (s *Simulator) Config() Config { return s.cfg }

// Simulate marches the declared shot through the scene in equal segments,
// biasing each segment downward by drop, penetrating thin non-living
// geometry until the penetration budget runs out. Returns the final hit
// and true, or a zero result and false when the round hit nothing.
func (s *Simulator) Simulate(sc Scene, shot ShotDeclaration) (HitResult, bool) {
	dir, ok := shot.Direction.Normalized()
	if !ok {
		return HitResult{}, false
	}

	segLen := s.cfg.MaxDistance / float64(s.cfg.Segments)
	origin := shot.Origin
	traveled := 0.0
	power := shot.PenetrationPower
	decay := 1.0
	penetrations := 0

	var lastBlock HitResult
	haveBlock := false
	lastSurface := ""

	for i := 0; i < s.cfg.Segments; i++ {
		// Downward bias grows with travel, approximating drop without
		// integrating a trajectory.
		segDir := dir.Add(scene.Down.Scale(shot.DropCoefficient * float64(i) / float64(s.cfg.Segments)))
		segDir, ok := segDir.Normalized()
		if !ok {
			segDir = dir
		}

		hit, found := sc.Raycast(origin, segDir, segLen, shot.ShooterID)
		if !found {
			origin = origin.Add(segDir.Scale(segLen))
			traveled += segLen
			continue
		}

		impactDist := traveled + hit.Distance

		// Degenerate geometry guard: striking the same surface twice in a
		// row means the ray is not making progress.
		if hit.ObjectID == lastSurface {
			if haveBlock {
				return lastBlock, true
			}
			return HitResult{}, false
		}
		lastSurface = hit.ObjectID

		if hit.Living {
			// Living targets are never penetrated.
			dmg := shot.damageAt(impactDist) * decay
			headshot := hit.Part == scene.PartHead
			if headshot {
				dmg *= s.cfg.HeadshotMultiplier
			}
			return HitResult{
				TargetID:     hit.OwnerID,
				ObjectID:     hit.ObjectID,
				Point:        hit.Point,
				Normal:       hit.Normal,
				Material:     hit.Material,
				Part:         hit.Part,
				Headshot:     headshot,
				Damage:       dmg,
				Distance:     impactDist,
				Penetrations: penetrations,
			}, true
		}

		block := HitResult{
			ObjectID:     hit.ObjectID,
			Point:        hit.Point,
			Normal:       hit.Normal,
			Material:     hit.Material,
			Damage:       shot.damageAt(impactDist) * decay,
			Distance:     impactDist,
			Penetrations: penetrations,
		}

		if penetrations >= s.cfg.MaxPenetrations {
			return block, true
		}

		probe, extOK := sc.Extent(hit.ObjectID)
		if !extOK {
			probe = segLen
		}
		thickness, thickOK := sc.Thickness(hit.ObjectID, hit.Point, segDir, probe)
		if !thickOK || power*hit.Material.Factor() <= thickness {
			return block, true
		}

		// Punch through: decay the budget and resume just past the exit.
		penetrations++
		power *= s.cfg.PenetrationDecay
		decay *= s.cfg.DamageDecay
		lastBlock = block
		haveBlock = true

		exit := hit.Point.Add(segDir.Scale(thickness + s.cfg.ExitEpsilon))
		consumed := hit.Distance + thickness + s.cfg.ExitEpsilon
		if consumed > segLen {
			consumed = segLen
		}
		traveled += consumed
		origin = exit
		if traveled >= s.cfg.MaxDistance-1e-9 {
			break
		}
	}

	// Distance or penetration budget exhausted: report the last wall hit
	// if there was one.
	if haveBlock {
		return lastBlock, true
	}
	return HitResult{}, false
}

// PowerAfter returns the penetration power remaining after k penetrations
// for an initial power, matching the simulator's decay schedule.
func (s *Simulator) PowerAfter(initial float64, k int) float64 {
	return initial * math.Pow(s.cfg.PenetrationDecay, float64(k))
}
