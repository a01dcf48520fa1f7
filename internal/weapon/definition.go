// Package weapon holds the immutable weapon configuration catalog: damage
// tables, fire-mode policies, magazine and handling timings. Everything
// downstream (ballistics, fire control, server authority) reads from here
// and never writes.
package weapon

import (
	"encoding/json"
	"fmt"
)

// FireMode is the policy mapping trigger input to discrete shots.
type FireMode int

const (
	FullAuto FireMode = iota
	SemiAuto
	Burst
	BoltAction
	PumpAction
)

// String returns the wire name of the fire mode.
func (m FireMode) String() string {
	switch m {
	case FullAuto:
		return "full_auto"
	case SemiAuto:
		return "semi_auto"
	case Burst:
		return "burst"
	case BoltAction:
		return "bolt_action"
	case PumpAction:
		return "pump_action"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the fire mode as its wire name.
func (m FireMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a fire mode from its wire name.
func (m *FireMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "full_auto":
		*m = FullAuto
	case "semi_auto":
		*m = SemiAuto
	case "burst":
		*m = Burst
	case "bolt_action":
		*m = BoltAction
	case "pump_action":
		*m = PumpAction
	default:
		return fmt.Errorf("unknown fire mode %q", s)
	}
	return nil
}

// Cycled reports whether the mode requires a manual cycling step after
// each shot (bolt or pump).
func (m FireMode) Cycled() bool {
	return m == BoltAction || m == PumpAction
}

// DamageRange is one entry of the piecewise-linear distance-to-damage table.
type DamageRange struct {
	Distance float64 `json:"distance"`
	Damage   float64 `json:"damage"`
}

// RecoilSpec controls the view impulse applied per shot.
type RecoilSpec struct {
	Vertical     float64 `json:"vertical"`
	Horizontal   float64 `json:"horizontal"`
	RecoveryRate float64 `json:"recovery"` // exponential decay per second
}

// SpreadSpec controls shot dispersion.
type SpreadSpec struct {
	Base               float64 `json:"base"`
	MovingMultiplier   float64 `json:"moving"`
	JumpingMultiplier  float64 `json:"jumping"`
	AimReduction       float64 `json:"aimReduction"` // multiplier while aiming, <1
	SustainedIncrement float64 `json:"sustained"`    // added per shot while firing
	MaxSustained       float64 `json:"maxSustained"`
	RecoveryRate       float64 `json:"recovery"` // sustained decay per second
}

// MagazineSpec controls ammo capacity and reload timing.
type MagazineSpec struct {
	Size            int     `json:"size"`
	MaxReserve      int     `json:"maxAmmo"`
	ReloadTime      float64 `json:"reloadTime"`      // seconds, round chambered
	ReloadTimeEmpty float64 `json:"reloadTimeEmpty"` // seconds, empty magazine
}

// Definition is one immutable weapon configuration.
type Definition struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Damage         float64       `json:"damage"`
	FireRate       float64       `json:"firerate"` // shots per minute
	MuzzleVelocity float64       `json:"velocity"`
	DamageRanges   []DamageRange `json:"damageRanges"` // sorted ascending by distance
	Recoil         RecoilSpec    `json:"recoil"`
	Spread         SpreadSpec    `json:"spread"`
	Magazine       MagazineSpec  `json:"magazine"`
	FireMode       FireMode      `json:"firingMode"`

	// Melee weapons carry no ammo; swings still obey the fire-rate
	// cooldown and the hit sampler detects their contacts.
	Melee bool `json:"melee,omitempty"`

	// BurstCount and BurstInterval only apply to Burst mode.
	BurstCount    int     `json:"burstCount,omitempty"`
	BurstInterval float64 `json:"burstInterval,omitempty"` // seconds between burst shots

	// CycleTime only applies to bolt/pump modes; it is distinct from the
	// fire-rate cooldown.
	CycleTime float64 `json:"cycleTime,omitempty"`

	// DeployTime and StowTime govern equip/unequip duration.
	DeployTime float64 `json:"deployTime"`
	StowTime   float64 `json:"stowTime"`

	PenetrationPower      float64 `json:"penetration"`
	BulletDropCoefficient float64 `json:"bulletDrop"`
}

// Cooldown returns the seconds between consecutive shots.
func (d Definition) Cooldown() float64 {
	if d.FireRate <= 0 {
		return 1
	}
	return 60.0 / d.FireRate
}

// ReloadDuration returns the reload time given the current magazine fill.
func (d Definition) ReloadDuration(currentAmmo int) float64 {
	if currentAmmo == 0 {
		return d.Magazine.ReloadTimeEmpty
	}
	return d.Magazine.ReloadTime
}

// DamageAtDistance evaluates the piecewise-linear damage table.
// At or before the first entry it returns that entry's damage exactly;
// beyond the last entry it extrapolates flat using the last value.
// An empty table falls back to the base damage.
func (d Definition) DamageAtDistance(dist float64) float64 {
	ranges := d.DamageRanges
	if len(ranges) == 0 {
		return d.Damage
	}
	if dist <= ranges[0].Distance {
		return ranges[0].Damage
	}
	for i := 1; i < len(ranges); i++ {
		lo, hi := ranges[i-1], ranges[i]
		if dist <= hi.Distance {
			span := hi.Distance - lo.Distance
			if span <= 0 {
				return hi.Damage
			}
			frac := (dist - lo.Distance) / span
			return lo.Damage + (hi.Damage-lo.Damage)*frac
		}
	}
	return ranges[len(ranges)-1].Damage
}

// AmmoState is the mutable per-instance ammo ledger. The invariants
// 0 <= Current <= magazine size and Reserve >= 0 hold after every
// mutation helper.
type AmmoState struct {
	Current int `json:"current"`
	Reserve int `json:"reserve"`
}

// FullAmmo returns an ammo state at capacity for the given magazine.
func FullAmmo(mag MagazineSpec) AmmoState {
	return AmmoState{Current: mag.Size, Reserve: mag.MaxReserve}
}

// Consume removes one round from the magazine. Returns false when empty.
func (a *AmmoState) Consume() bool {
	if a.Current <= 0 {
		return false
	}
	a.Current--
	return true
}

// Refill moves rounds from reserve into the magazine atomically and
// returns the number transferred.
func (a *AmmoState) Refill(mag MagazineSpec) int {
	transfer := mag.Size - a.Current
	if transfer > a.Reserve {
		transfer = a.Reserve
	}
	if transfer <= 0 {
		return 0
	}
	a.Current += transfer
	a.Reserve -= transfer
	return transfer
}
