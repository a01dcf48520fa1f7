package firecontrol

import (
	"math"
	"math/rand"

	"ironsight/internal/weapon"
)

// ViewKicker receives recoil impulses. The view/camera layer implements
// it; tests substitute a recorder.
type ViewKicker interface {
	ApplyRecoil(vertical, horizontal float64)
}

// aimRecoilFactor scales recoil impulses while aiming down sights.
const aimRecoilFactor = 0.6

// RecoilTracker holds the accumulated view offset for one weapon instance
// and decays it exponentially toward zero.
type RecoilTracker struct {
	spec       weapon.RecoilSpec
	rng        *rand.Rand
	vertical   float64
	horizontal float64
}

// NewRecoilTracker builds a tracker with its own jitter source so two
// instances never share a stream.
func NewRecoilTracker(spec weapon.RecoilSpec, seed int64) RecoilTracker {
	return RecoilTracker{spec: spec, rng: rand.New(rand.NewSource(seed))}
}

// Kick produces one shot's impulse: full vertical, horizontal jittered
// in [-horizontal, +horizontal], both reduced while aiming.
func (t *RecoilTracker) Kick(aiming bool) (vertical, horizontal float64) {
	vertical = t.spec.Vertical
	horizontal = (t.rng.Float64()*2 - 1) * t.spec.Horizontal
	if aiming {
		vertical *= aimRecoilFactor
		horizontal *= aimRecoilFactor
	}
	t.vertical += vertical
	t.horizontal += horizontal
	return vertical, horizontal
}

// Decay pulls the accumulated offset exponentially toward zero at the
// spec recovery rate.
func (t *RecoilTracker) Decay(dt float64) {
	if t.spec.RecoveryRate <= 0 {
		return
	}
	factor := math.Exp(-t.spec.RecoveryRate * dt)
	t.vertical *= factor
	t.horizontal *= factor
	if math.Abs(t.vertical) < 1e-6 {
		t.vertical = 0
	}
	if math.Abs(t.horizontal) < 1e-6 {
		t.horizontal = 0
	}
}

// Offset returns the accumulated (vertical, horizontal) view displacement.
func (t *RecoilTracker) Offset() (vertical, horizontal float64) {
	return t.vertical, t.horizontal
}
