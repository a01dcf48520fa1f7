package weapon

import (
	"sort"
	"strings"
)

// defaultDefinitions is the built-in weapon set. Damage-range tables must
// stay sorted ascending by distance.
var defaultDefinitions = map[string]Definition{
	"ar-77": {
		ID:             "ar-77",
		Name:           "AR-77 Rifle",
		Damage:         26,
		FireRate:       600,
		MuzzleVelocity: 880,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 26},
			{Distance: 60, Damage: 22},
			{Distance: 180, Damage: 17},
		},
		Recoil: RecoilSpec{Vertical: 1.4, Horizontal: 0.5, RecoveryRate: 8},
		Spread: SpreadSpec{
			Base: 0.8, MovingMultiplier: 1.6, JumpingMultiplier: 3.0,
			AimReduction: 0.4, SustainedIncrement: 0.12, MaxSustained: 1.5,
			RecoveryRate: 2.0,
		},
		Magazine:              MagazineSpec{Size: 30, MaxReserve: 120, ReloadTime: 2.2, ReloadTimeEmpty: 2.9},
		FireMode:              FullAuto,
		DeployTime:            0.6,
		StowTime:              0.4,
		PenetrationPower:      1.8,
		BulletDropCoefficient: 0.02,
	},
	"mk9": {
		ID:             "mk9",
		Name:           "MK9 Pistol",
		Damage:         20,
		FireRate:       320,
		MuzzleVelocity: 380,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 20},
			{Distance: 35, Damage: 15},
			{Distance: 90, Damage: 9},
		},
		Recoil: RecoilSpec{Vertical: 1.0, Horizontal: 0.35, RecoveryRate: 10},
		Spread: SpreadSpec{
			Base: 0.6, MovingMultiplier: 1.4, JumpingMultiplier: 2.5,
			AimReduction: 0.5, SustainedIncrement: 0.08, MaxSustained: 0.9,
			RecoveryRate: 3.0,
		},
		Magazine:              MagazineSpec{Size: 15, MaxReserve: 60, ReloadTime: 1.6, ReloadTimeEmpty: 2.1},
		FireMode:              SemiAuto,
		DeployTime:            0.35,
		StowTime:              0.25,
		PenetrationPower:      0.9,
		BulletDropCoefficient: 0.035,
	},
	"viper-smg": {
		ID:             "viper-smg",
		Name:           "Viper SMG",
		Damage:         19,
		FireRate:       850,
		MuzzleVelocity: 400,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 19},
			{Distance: 30, Damage: 16},
			{Distance: 80, Damage: 10},
		},
		Recoil: RecoilSpec{Vertical: 0.9, Horizontal: 0.7, RecoveryRate: 9},
		Spread: SpreadSpec{
			Base: 1.1, MovingMultiplier: 1.3, JumpingMultiplier: 2.4,
			AimReduction: 0.55, SustainedIncrement: 0.15, MaxSustained: 2.0,
			RecoveryRate: 2.5,
		},
		Magazine:              MagazineSpec{Size: 32, MaxReserve: 128, ReloadTime: 1.9, ReloadTimeEmpty: 2.4},
		FireMode:              FullAuto,
		DeployTime:            0.4,
		StowTime:              0.3,
		PenetrationPower:      0.8,
		BulletDropCoefficient: 0.03,
	},
	"longbore": {
		ID:             "longbore",
		Name:           "Longbore Sniper",
		Damage:         95,
		FireRate:       45,
		MuzzleVelocity: 1050,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 95},
			{Distance: 150, Damage: 90},
			{Distance: 400, Damage: 80},
		},
		Recoil: RecoilSpec{Vertical: 4.5, Horizontal: 1.2, RecoveryRate: 4},
		Spread: SpreadSpec{
			Base: 2.5, MovingMultiplier: 3.0, JumpingMultiplier: 6.0,
			AimReduction: 0.05, SustainedIncrement: 0.3, MaxSustained: 3.0,
			RecoveryRate: 1.5,
		},
		Magazine:              MagazineSpec{Size: 5, MaxReserve: 30, ReloadTime: 2.8, ReloadTimeEmpty: 3.4},
		FireMode:              BoltAction,
		CycleTime:             1.1,
		DeployTime:            0.9,
		StowTime:              0.6,
		PenetrationPower:      3.2,
		BulletDropCoefficient: 0.01,
	},
	"mastiff-12": {
		ID:             "mastiff-12",
		Name:           "Mastiff-12 Shotgun",
		Damage:         110,
		FireRate:       70,
		MuzzleVelocity: 320,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 110},
			{Distance: 12, Damage: 70},
			{Distance: 30, Damage: 25},
		},
		Recoil: RecoilSpec{Vertical: 3.8, Horizontal: 1.0, RecoveryRate: 5},
		Spread: SpreadSpec{
			Base: 3.0, MovingMultiplier: 1.3, JumpingMultiplier: 2.0,
			AimReduction: 0.7, SustainedIncrement: 0.2, MaxSustained: 2.0,
			RecoveryRate: 2.0,
		},
		Magazine:              MagazineSpec{Size: 6, MaxReserve: 36, ReloadTime: 2.6, ReloadTimeEmpty: 3.0},
		FireMode:              PumpAction,
		CycleTime:             0.8,
		DeployTime:            0.7,
		StowTime:              0.5,
		PenetrationPower:      0.5,
		BulletDropCoefficient: 0.06,
	},
	"trench-knife": {
		ID:       "trench-knife",
		Name:     "Trench Knife",
		Damage:   55,
		FireRate: 75,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 55},
			{Distance: 1.8, Damage: 30},
		},
		Recoil: RecoilSpec{Vertical: 0.2, Horizontal: 0.1, RecoveryRate: 12},
		Spread: SpreadSpec{
			Base: 0, MovingMultiplier: 1, JumpingMultiplier: 1,
			AimReduction: 1, SustainedIncrement: 0, MaxSustained: 0,
			RecoveryRate: 1,
		},
		FireMode:   SemiAuto,
		Melee:      true,
		DeployTime: 0.3,
		StowTime:   0.2,
	},
	"trident": {
		ID:             "trident",
		Name:           "Trident Burst Rifle",
		Damage:         24,
		FireRate:       500,
		MuzzleVelocity: 820,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 24},
			{Distance: 70, Damage: 20},
			{Distance: 200, Damage: 15},
		},
		Recoil: RecoilSpec{Vertical: 1.2, Horizontal: 0.45, RecoveryRate: 8},
		Spread: SpreadSpec{
			Base: 0.7, MovingMultiplier: 1.5, JumpingMultiplier: 2.8,
			AimReduction: 0.4, SustainedIncrement: 0.1, MaxSustained: 1.2,
			RecoveryRate: 2.2,
		},
		Magazine:              MagazineSpec{Size: 24, MaxReserve: 96, ReloadTime: 2.1, ReloadTimeEmpty: 2.7},
		FireMode:              Burst,
		BurstCount:            3,
		BurstInterval:         0.07,
		DeployTime:            0.6,
		StowTime:              0.4,
		PenetrationPower:      1.6,
		BulletDropCoefficient: 0.022,
	},
}

// Catalog is the read-only weapon definition store. Lookups for unknown
// IDs never fail: a default definition is generated from the ID's name.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog builds a catalog from explicit definitions.
func NewCatalog(defs map[string]Definition) *Catalog {
	copied := make(map[string]Definition, len(defs))
	for id, d := range defs {
		copied[id] = d
	}
	return &Catalog{defs: copied}
}

// DefaultCatalog returns a catalog with the built-in weapon set.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultDefinitions)
}

// Get returns the definition for id. Unknown IDs produce a generated
// default configuration based on name heuristics; this is never fatal.
func (c *Catalog) Get(id string) Definition {
	if d, ok := c.defs[id]; ok {
		return d
	}
	return GenerateDefault(id)
}

// Known reports whether id is an explicitly configured weapon.
func (c *Catalog) Known(id string) bool {
	_, ok := c.defs[id]
	return ok
}

// All returns the configured definitions sorted by ID.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GenerateDefault builds a fallback definition for an unconfigured weapon
// ID. The fire mode and rough stats are guessed from the name so a missing
// config entry degrades to something playable instead of an error.
func GenerateDefault(id string) Definition {
	d := Definition{
		ID:             id,
		Name:           id,
		Damage:         25,
		FireRate:       450,
		MuzzleVelocity: 600,
		DamageRanges: []DamageRange{
			{Distance: 0, Damage: 25},
			{Distance: 50, Damage: 20},
			{Distance: 150, Damage: 14},
		},
		Recoil: RecoilSpec{Vertical: 1.2, Horizontal: 0.5, RecoveryRate: 8},
		Spread: SpreadSpec{
			Base: 1.0, MovingMultiplier: 1.5, JumpingMultiplier: 2.5,
			AimReduction: 0.5, SustainedIncrement: 0.1, MaxSustained: 1.5,
			RecoveryRate: 2.0,
		},
		Magazine:              MagazineSpec{Size: 30, MaxReserve: 90, ReloadTime: 2.2, ReloadTimeEmpty: 2.8},
		FireMode:              FullAuto,
		DeployTime:            0.6,
		StowTime:              0.4,
		PenetrationPower:      1.0,
		BulletDropCoefficient: 0.025,
	}

	name := strings.ToLower(id)
	switch {
	case strings.Contains(name, "sniper"), strings.Contains(name, "bolt"):
		d.FireMode = BoltAction
		d.FireRate = 50
		d.Damage = 90
		d.CycleTime = 1.0
		d.Magazine = MagazineSpec{Size: 5, MaxReserve: 25, ReloadTime: 2.8, ReloadTimeEmpty: 3.4}
		d.PenetrationPower = 3.0
		d.DamageRanges = []DamageRange{{Distance: 0, Damage: 90}, {Distance: 300, Damage: 80}}
	case strings.Contains(name, "shotgun"), strings.Contains(name, "pump"):
		d.FireMode = PumpAction
		d.FireRate = 70
		d.Damage = 100
		d.CycleTime = 0.8
		d.Magazine = MagazineSpec{Size: 6, MaxReserve: 30, ReloadTime: 2.6, ReloadTimeEmpty: 3.0}
		d.PenetrationPower = 0.5
		d.DamageRanges = []DamageRange{{Distance: 0, Damage: 100}, {Distance: 25, Damage: 25}}
	case strings.Contains(name, "pistol"), strings.Contains(name, "revolver"):
		d.FireMode = SemiAuto
		d.FireRate = 300
		d.Damage = 20
		d.Magazine = MagazineSpec{Size: 12, MaxReserve: 48, ReloadTime: 1.6, ReloadTimeEmpty: 2.0}
		d.DamageRanges = []DamageRange{{Distance: 0, Damage: 20}, {Distance: 60, Damage: 10}}
	case strings.Contains(name, "knife"), strings.Contains(name, "blade"):
		d.FireMode = SemiAuto
		d.Melee = true
		d.FireRate = 75
		d.Damage = 50
		d.MuzzleVelocity = 0
		d.Magazine = MagazineSpec{}
		d.PenetrationPower = 0
		d.DamageRanges = []DamageRange{{Distance: 0, Damage: 50}, {Distance: 1.8, Damage: 25}}
	case strings.Contains(name, "burst"):
		d.FireMode = Burst
		d.BurstCount = 3
		d.BurstInterval = 0.08
	case strings.Contains(name, "smg"):
		d.FireRate = 800
		d.Damage = 18
		d.DamageRanges = []DamageRange{{Distance: 0, Damage: 18}, {Distance: 60, Damage: 10}}
	}
	return d
}
