package firecontrol

import "ironsight/internal/weapon"

// SpreadTracker accumulates sustained-fire bloom for one weapon instance
// and evaluates the effective spread cone for the current stance.
type SpreadTracker struct {
	spec      weapon.SpreadSpec
	sustained float64
}

func NewSpreadTracker(spec weapon.SpreadSpec) SpreadTracker {
	return SpreadTracker{spec: spec}
}

// OnShot bumps the sustained accumulator, capped at the weapon's maximum.
func (t *SpreadTracker) OnShot() {
	t.sustained += t.spec.SustainedIncrement
	if t.sustained > t.spec.MaxSustained {
		t.sustained = t.spec.MaxSustained
	}
}

// Decay recovers the accumulator toward zero while not firing.
func (t *SpreadTracker) Decay(dt float64) {
	t.sustained -= t.spec.RecoveryRate * dt
	if t.sustained < 0 {
		t.sustained = 0
	}
}

// Sustained returns the current accumulator value.
func (t *SpreadTracker) Sustained() float64 { return t.sustained }

// Effective computes the spread cone in degrees for the given stance:
// base scaled by movement and aiming multipliers, plus the sustained
// accumulator.
func (t *SpreadTracker) Effective(moving, airborne, aiming bool) float64 {
	spread := t.spec.Base
	if moving {
		spread *= t.spec.MovingMultiplier
	}
	if airborne {
		spread *= t.spec.JumpingMultiplier
	}
	if aiming {
		spread *= t.spec.AimReduction
	}
	return spread + t.sustained
}
