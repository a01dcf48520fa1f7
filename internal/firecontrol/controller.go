// Package firecontrol is the per-actor weapon state machine: it turns
// trigger edges, reload requests, and slot switches into fired shots,
// scheduled continuations, and state transitions under each weapon's
// fire-mode policy. Transitions are table lookups (states.go) and every
// deferred continuation carries a cancellation token tied to its weapon
// instance, so weapon-switch races resolve to dropped callbacks instead
// of stale-state mutations.
package firecontrol

import (
	"math"
	"math/rand"

	"ironsight/internal/ballistics"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"
)

// cooldownEpsilon absorbs accumulated tick-time float error so a shot
// due exactly on a tick boundary is not rejected.
const cooldownEpsilon = 1e-9

// Movement exposes the stance inputs the spread model needs. The actor's
// movement layer implements it; a nil Movement reads as standing still.
type Movement interface {
	Moving() bool
	Airborne() bool
}

// Callbacks are the controller's outbound edges. All are optional.
type Callbacks struct {
	// OnShot fires for every accepted round with the declaration and the
	// locally predicted result. hitFound is false on a clean miss.
	OnShot func(shot ballistics.ShotDeclaration, hit ballistics.HitResult, hitFound bool)
	// OnEmpty is the dry-fire cue for a trigger pull on an empty magazine.
	OnEmpty func(weaponID string)

	OnReloadStarted  func(weaponID string, duration float64)
	OnReloadComplete func(weaponID string, transferred int)
	OnEquipped       func(weaponID string)
	OnStateChange    func(state State, modifier Modifier)
}

// weaponInstance is the per-slot mutable weapon: ammo ledger, spread and
// recoil accumulators, and the token guarding its scheduled continuations.
type weaponInstance struct {
	def       weapon.Definition
	ammo      weapon.AmmoState
	spread    SpreadTracker
	recoil    RecoilTracker
	token     *Token
	lastShot  float64
	hasFired  bool
	canFire   bool
	burstLeft int
}

// Config wires a controller's collaborators. Zero-value fields get
// defaults; View and Movement may stay nil.
type Config struct {
	ActorID   string
	Catalog   *weapon.Catalog
	Simulator *ballistics.Simulator
	Scene     ballistics.Scene
	Scheduler *Scheduler
	View      ViewKicker
	Movement  Movement
	Callbacks Callbacks
	Seed      int64
}

// Controller is one actor's fire-control state machine. It is
// tick-confined: all methods must be called from the actor's control
// loop goroutine.
type Controller struct {
	actorID string
	catalog *weapon.Catalog
	sim     *ballistics.Simulator
	scene   ballistics.Scene
	sched   *Scheduler
	view    ViewKicker
	move    Movement
	cb      Callbacks
	rng     *rand.Rand

	state    State
	modifier Modifier

	slots      map[int]*weaponInstance
	activeSlot int
	active     *weaponInstance

	// modifier held when the current reload began, restored on completion
	modBeforeReload Modifier

	triggerHeld bool
	aimOrigin   scene.Vec3
	aimDir      scene.Vec3
}

// NewController builds a controller. The scheduler is shared with the
// owning control loop so continuations run on its ticks.
func NewController(cfg Config) *Controller {
	if cfg.Catalog == nil {
		cfg.Catalog = weapon.DefaultCatalog()
	}
	if cfg.Simulator == nil {
		cfg.Simulator = ballistics.NewSimulator(ballistics.Config{})
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewScheduler()
	}
	return &Controller{
		actorID:    cfg.ActorID,
		catalog:    cfg.Catalog,
		sim:        cfg.Simulator,
		scene:      cfg.Scene,
		sched:      cfg.Scheduler,
		view:       cfg.View,
		move:       cfg.Movement,
		cb:         cfg.Callbacks,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		slots:      make(map[int]*weaponInstance),
		activeSlot: -1,
		aimDir:     scene.Vec3{X: 1},
	}
}

// State returns the primary state.
func (c *Controller) State() State { return c.state }

// Modifier returns the stance modifier.
func (c *Controller) Modifier() Modifier { return c.modifier }

// Ammo returns the active weapon's ammo ledger; the zero state when no
// weapon is equipped.
func (c *Controller) Ammo() weapon.AmmoState {
	if c.active == nil {
		return weapon.AmmoState{}
	}
	return c.active.ammo
}

// ActiveWeapon returns the equipped definition, false when bare-handed
// or mid-switch toward a first weapon.
func (c *Controller) ActiveWeapon() (weapon.Definition, bool) {
	if c.active == nil {
		return weapon.Definition{}, false
	}
	return c.active.def, true
}

// SetAim updates the muzzle origin and aim direction used by subsequent
// shots.
func (c *Controller) SetAim(origin, dir scene.Vec3) {
	c.aimOrigin = origin
	if _, ok := dir.Normalized(); ok {
		c.aimDir = dir
	}
}

// SetAiming toggles the aiming modifier. Aiming cancels sprinting.
func (c *Controller) SetAiming(on bool) {
	if on {
		c.setModifier(ModAiming)
		return
	}
	if c.modifier == ModAiming {
		c.setModifier(ModNone)
	}
}

// SetSprinting toggles the sprinting modifier. Sprinting cancels aiming.
func (c *Controller) SetSprinting(on bool) {
	if on {
		c.setModifier(ModSprinting)
		return
	}
	if c.modifier == ModSprinting {
		c.setModifier(ModNone)
	}
}

func (c *Controller) setModifier(m Modifier) {
	if c.modifier == m {
		return
	}
	c.modifier = m
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(c.state, c.modifier)
	}
}

// apply runs one table transition; illegal events are rejected.
func (c *Controller) apply(event Event) bool {
	next, ok := Next(c.state, event)
	if !ok {
		return false
	}
	if next != c.state {
		c.state = next
		if c.cb.OnStateChange != nil {
			c.cb.OnStateChange(c.state, c.modifier)
		}
	}
	return true
}

// EquipSlot switches to weaponID in the given slot. The old weapon is
// stowed fully before the new one deploys; switching while a switch is
// already in flight is rejected. Pending continuations of the old
// instance are cancelled through its token.
func (c *Controller) EquipSlot(slot int, weaponID string) bool {
	if c.state == Equipping || c.state == Unequipping {
		return false
	}
	if c.active != nil && c.activeSlot == slot && c.active.def.ID == weaponID {
		return false
	}

	def := c.catalog.Get(weaponID)
	inst := c.slots[slot]
	if inst == nil || inst.def.ID != weaponID {
		inst = c.newInstance(def)
		c.slots[slot] = inst
	}

	if c.active == nil {
		if !c.apply(EventStowDone) {
			return false
		}
		c.activate(slot, inst)
		return true
	}

	old := c.active
	stow := old.def.StowTime
	if !c.apply(EventStow) {
		return false
	}
	old.token.Cancel()
	c.triggerHeld = false

	c.sched.After(stow, nil, func() {
		if c.state != Unequipping {
			return
		}
		c.apply(EventStowDone)
		c.activate(slot, inst)
	})
	return true
}

// activate installs the instance and schedules deploy completion.
// Caller has already transitioned to Equipping. The instance gets a fresh
// token: its old one was cancelled when it was last stowed.
func (c *Controller) activate(slot int, inst *weaponInstance) {
	c.activeSlot = slot
	c.active = inst
	inst.token = &Token{}
	inst.canFire = true
	inst.burstLeft = 0
	c.sched.After(inst.def.DeployTime, inst.token, func() {
		if c.active != inst || c.state != Equipping {
			return
		}
		c.apply(EventEquipDone)
		if c.cb.OnEquipped != nil {
			c.cb.OnEquipped(inst.def.ID)
		}
	})
}

func (c *Controller) newInstance(def weapon.Definition) *weaponInstance {
	return &weaponInstance{
		def:     def,
		ammo:    weapon.FullAmmo(def.Magazine),
		spread:  NewSpreadTracker(def.Spread),
		recoil:  NewRecoilTracker(def.Recoil, c.rng.Int63()),
		token:   &Token{},
		canFire: true,
	}
}

// TriggerDown is the discrete trigger edge. Semi, bolt, pump, and burst
// weapons fire at most once per edge; full-auto continues on ticks while
// held.
func (c *Controller) TriggerDown() {
	c.triggerHeld = true
	c.tryFire(true)
}

// TriggerUp releases the trigger.
func (c *Controller) TriggerUp() {
	c.triggerHeld = false
}

// tryFire runs the full fire gate: state, cycling, cooldown, ammo.
func (c *Controller) tryFire(edge bool) bool {
	inst := c.active
	if inst == nil {
		return false
	}
	if _, ok := Next(c.state, EventFire); !ok {
		return false
	}
	if !edge && inst.def.FireMode != weapon.FullAuto {
		return false
	}
	if inst.def.FireMode.Cycled() && !inst.canFire {
		return false
	}
	if inst.hasFired && c.sched.Now()-inst.lastShot < inst.def.Cooldown()-cooldownEpsilon {
		return false
	}
	if !inst.def.Melee && inst.ammo.Current == 0 {
		c.emptyCue(inst)
		return false
	}

	c.fireShot(inst)

	switch inst.def.FireMode {
	case weapon.BoltAction, weapon.PumpAction:
		inst.canFire = false
		c.sched.After(inst.def.CycleTime, inst.token, func() {
			inst.canFire = true
		})
	case weapon.Burst:
		if edge && inst.def.BurstCount > 1 {
			inst.burstLeft = inst.def.BurstCount - 1
			c.scheduleBurst(inst)
		}
	}
	return true
}

// fireShot consumes a round and resolves it. Gating has already passed;
// burst continuations call this directly to bypass the cooldown.
func (c *Controller) fireShot(inst *weaponInstance) {
	c.apply(EventFire)
	if !inst.def.Melee {
		inst.ammo.Consume()
	}

	aiming := c.modifier == ModAiming
	moving, airborne := false, false
	if c.move != nil {
		moving, airborne = c.move.Moving(), c.move.Airborne()
	}
	dir := c.applySpread(c.aimDir, inst.spread.Effective(moving, airborne, aiming))

	shot := ballistics.DeclareShot(c.actorID, inst.def, c.aimOrigin, dir)

	var hit ballistics.HitResult
	hitFound := false
	if c.scene != nil {
		hit, hitFound = c.sim.Simulate(c.scene, shot)
	}

	inst.spread.OnShot()
	v, h := inst.recoil.Kick(aiming)
	if c.view != nil {
		c.view.ApplyRecoil(v, h)
	}

	inst.lastShot = c.sched.Now()
	inst.hasFired = true

	if c.cb.OnShot != nil {
		c.cb.OnShot(shot, hit, hitFound)
	}
}

// scheduleBurst chains the remaining burst shots. Each continuation
// re-checks the live instance, the counter, and ammo before firing.
func (c *Controller) scheduleBurst(inst *weaponInstance) {
	var step func()
	step = func() {
		if c.active != inst || inst.burstLeft <= 0 {
			return
		}
		if _, ok := Next(c.state, EventFire); !ok {
			inst.burstLeft = 0
			return
		}
		if inst.ammo.Current == 0 {
			inst.burstLeft = 0
			c.emptyCue(inst)
			return
		}
		inst.burstLeft--
		c.fireShot(inst)
		if inst.burstLeft > 0 {
			c.sched.After(inst.def.BurstInterval, inst.token, step)
		}
	}
	c.sched.After(inst.def.BurstInterval, inst.token, step)
}

// emptyCue plays the dry-fire cue and auto-reloads when reserve remains.
func (c *Controller) emptyCue(inst *weaponInstance) {
	if c.cb.OnEmpty != nil {
		c.cb.OnEmpty(inst.def.ID)
	}
	if inst.ammo.Reserve > 0 {
		c.Reload()
	}
}

// Reload starts a magazine refill. A second request while already
// Reloading is a no-op, as is reloading a full magazine or an empty
// reserve. Completion re-validates state so a weapon switched away
// mid-reload gains nothing.
func (c *Controller) Reload() bool {
	inst := c.active
	if inst == nil || c.state == Reloading {
		return false
	}
	if inst.ammo.Current >= inst.def.Magazine.Size || inst.ammo.Reserve <= 0 {
		return false
	}
	if _, ok := Next(c.state, EventReload); !ok {
		return false
	}

	c.modBeforeReload = c.modifier
	if c.modifier == ModAiming {
		c.setModifier(ModNone)
	}
	c.apply(EventReload)

	duration := inst.def.ReloadDuration(inst.ammo.Current)
	if c.cb.OnReloadStarted != nil {
		c.cb.OnReloadStarted(inst.def.ID, duration)
	}

	c.sched.After(duration, inst.token, func() {
		if c.active != inst || c.state != Reloading {
			return
		}
		transferred := inst.ammo.Refill(inst.def.Magazine)
		c.apply(EventReloadDone)
		c.setModifier(c.modBeforeReload)
		if c.cb.OnReloadComplete != nil {
			c.cb.OnReloadComplete(inst.def.ID, transferred)
		}
	})
	return true
}

// Tick advances scheduler time, decays spread and recoil, sustains
// full-auto fire, and releases the Firing state once the trigger is up
// and the cooldown has passed.
func (c *Controller) Tick(dt float64) {
	c.sched.Advance(dt)

	if inst := c.active; inst != nil {
		if c.state != Firing {
			inst.spread.Decay(dt)
		}
		inst.recoil.Decay(dt)

		if c.triggerHeld && inst.def.FireMode == weapon.FullAuto {
			c.tryFire(false)
		}

		if c.state == Firing && !c.triggerHeld && inst.burstLeft == 0 &&
			c.sched.Now()-inst.lastShot >= inst.def.Cooldown()-cooldownEpsilon {
			c.apply(EventFireDone)
		}
	}
}

// Reset tears the controller down to spawn state: pending continuations
// cancelled, all weapon instances discarded.
func (c *Controller) Reset() {
	for _, inst := range c.slots {
		inst.token.Cancel()
	}
	c.slots = make(map[int]*weaponInstance)
	c.active = nil
	c.activeSlot = -1
	c.triggerHeld = false
	c.apply(EventReset)
	c.setModifier(ModNone)
}

// applySpread perturbs dir inside a cone of spreadDeg degrees.
func (c *Controller) applySpread(dir scene.Vec3, spreadDeg float64) scene.Vec3 {
	if spreadDeg <= 0 {
		return dir
	}
	rad := spreadDeg * math.Pi / 180

	up := scene.Vec3{Y: 1}
	if math.Abs(dir.Y) > 0.99 {
		up = scene.Vec3{X: 1}
	}
	right, ok := dir.Cross(up).Normalized()
	if !ok {
		return dir
	}
	coneUp := right.Cross(dir)

	yaw := (c.rng.Float64()*2 - 1) * rad
	pitch := (c.rng.Float64()*2 - 1) * rad
	out, ok := dir.Add(right.Scale(math.Tan(yaw))).Add(coneUp.Scale(math.Tan(pitch))).Normalized()
	if !ok {
		return dir
	}
	return out
}
