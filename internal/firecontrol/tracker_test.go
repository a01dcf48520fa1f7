package firecontrol

import (
	"math"
	"testing"

	"ironsight/internal/weapon"
)

func TestSpreadEffectiveStances(t *testing.T) {
	tr := NewSpreadTracker(weapon.SpreadSpec{
		Base: 1.0, MovingMultiplier: 1.5, JumpingMultiplier: 2.0,
		AimReduction: 0.5, SustainedIncrement: 0.1, MaxSustained: 0.3,
		RecoveryRate: 1.0,
	})

	tests := []struct {
		name                     string
		moving, airborne, aiming bool
		want                     float64
	}{
		{"standing", false, false, false, 1.0},
		{"moving", true, false, false, 1.5},
		{"airborne", false, true, false, 2.0},
		{"moving airborne", true, true, false, 3.0},
		{"aiming", false, false, true, 0.5},
		{"moving aiming", true, false, true, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Effective(tt.moving, tt.airborne, tt.aiming); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSpreadSustainedCapAndDecay(t *testing.T) {
	tr := NewSpreadTracker(weapon.SpreadSpec{
		Base: 1.0, SustainedIncrement: 0.1, MaxSustained: 0.25, RecoveryRate: 0.5,
	})

	for i := 0; i < 10; i++ {
		tr.OnShot()
	}
	if got := tr.Sustained(); got != 0.25 {
		t.Errorf("sustained should cap at 0.25, got %v", got)
	}

	tr.Decay(0.2)
	if got := tr.Sustained(); math.Abs(got-0.15) > 1e-9 {
		t.Errorf("expected 0.15 after decay, got %v", got)
	}
	tr.Decay(10)
	if got := tr.Sustained(); got != 0 {
		t.Errorf("sustained should floor at zero, got %v", got)
	}
}

func TestRecoilKickAimingReduction(t *testing.T) {
	spec := weapon.RecoilSpec{Vertical: 2.0, Horizontal: 0.5, RecoveryRate: 8}

	hip := NewRecoilTracker(spec, 1)
	v, h := hip.Kick(false)
	if v != 2.0 {
		t.Errorf("hip-fire vertical should be the full impulse, got %v", v)
	}
	if math.Abs(h) > 0.5 {
		t.Errorf("horizontal jitter out of range: %v", h)
	}

	ads := NewRecoilTracker(spec, 1)
	av, _ := ads.Kick(true)
	if math.Abs(av-2.0*aimRecoilFactor) > 1e-9 {
		t.Errorf("aimed vertical should be reduced, got %v", av)
	}
}

func TestRecoilDecayReachesZero(t *testing.T) {
	tr := NewRecoilTracker(weapon.RecoilSpec{Vertical: 3.0, Horizontal: 1.0, RecoveryRate: 6}, 7)
	tr.Kick(false)

	v0, _ := tr.Offset()
	tr.Decay(0.1)
	v1, _ := tr.Offset()
	if v1 >= v0 {
		t.Errorf("offset should decay, got %v then %v", v0, v1)
	}

	tr.Decay(10)
	v, h := tr.Offset()
	if v != 0 || h != 0 {
		t.Errorf("offset should settle to zero, got (%v, %v)", v, h)
	}
}
