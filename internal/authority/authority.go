// Package authority is the server-side trust boundary: it keeps the
// canonical AmmoState and FireState for every connected actor, validates
// each declared client action against that state, and recomputes all
// gameplay-affecting numbers from its own catalog. Invalid actions are
// rejected silently. Clients only ever see outcomes the server computed.
package authority

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ironsight/internal/ballistics"
	"ironsight/internal/firecontrol"
	"ironsight/internal/hitsampler"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"
)

// Observer receives acceptance and outcome signals for metrics wiring.
type Observer interface {
	ActionAccepted(action ActionType)
	ActionRejected(action ActionType, reason string)
	HitConfirmed(damage float64)
	SessionsChanged(count int)
	TickDuration(d time.Duration)
}

// MeleeTracker follows swing volumes for contact sampling. The hit
// sampler implements it; nil disables melee contact detection.
type MeleeTracker interface {
	AddCollider(c hitsampler.Collider) bool
	RemoveCollider(id string)
}

// Config wires the authority's collaborators. Zero values get defaults.
type Config struct {
	TickRate           int     // server ticks per second, default 30
	MaxSessions        int     // connected-actor cap, default 64
	StartHealth        float64 // default 100
	HeadshotMultiplier float64 // default 2
	BackstabMultiplier float64 // default 2
	// FireWindow is how long after an accepted shot a hit claim for it
	// is still considered, in seconds. Default 1.
	FireWindow float64

	Catalog     *weapon.Catalog
	World       *scene.World
	Simulator   *ballistics.Simulator
	Broadcaster Broadcaster
	Audit       *AuditLog
	Observer    Observer
	Melee       MeleeTracker
}

// slotState is the canonical per-slot weapon ledger.
type slotState struct {
	def       weapon.Definition
	ammo      weapon.AmmoState
	token     *firecontrol.Token
	canFire   bool
	hasFired  bool
	lastShot  float64
	burstLeft int
}

// Session is one connected actor's canonical state. Fields are guarded
// by the owning Authority's lock.
type Session struct {
	ID      string
	ActorID string

	state      firecontrol.State
	modifier   firecontrol.Modifier
	slots      map[int]*slotState
	activeSlot int
	active     *slotState

	health float64
	alive  bool
}

// actorHalfExtent and actorHeight define the spawned hit volume.
const (
	actorHalfExtent = 0.4
	actorHeight     = 1.8
)

var (
	ErrServerFull = errors.New("authority: session limit reached")
)

// Authority owns the canonical combat state and the server tick loop.
type Authority struct {
	mu       sync.Mutex
	cfg      Config
	sched    *firecontrol.Scheduler
	sessions map[string]*Session
	tick     uint64

	running  bool
	stopChan chan struct{}
}

// New builds an authority. World and Broadcaster may be nil in tests.
func New(cfg Config) *Authority {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 30
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.StartHealth <= 0 {
		cfg.StartHealth = 100
	}
	if cfg.HeadshotMultiplier <= 0 {
		cfg.HeadshotMultiplier = 2
	}
	if cfg.BackstabMultiplier <= 0 {
		cfg.BackstabMultiplier = 2
	}
	if cfg.FireWindow <= 0 {
		cfg.FireWindow = 1
	}
	if cfg.Catalog == nil {
		cfg.Catalog = weapon.DefaultCatalog()
	}
	if cfg.Simulator == nil {
		cfg.Simulator = ballistics.NewSimulator(ballistics.Config{})
	}
	return &Authority{
		cfg:      cfg,
		sched:    firecontrol.NewScheduler(),
		sessions: make(map[string]*Session),
	}
}

// SetBroadcaster wires the outbound transport after construction. The
// hub needs the authority to route inbound actions, so the two are
// built in sequence and joined here.
func (a *Authority) SetBroadcaster(b Broadcaster) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Broadcaster = b
}

// Start launches the tick loop. Idempotent.
func (a *Authority) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.stopChan = make(chan struct{})
	stop := a.stopChan
	a.mu.Unlock()

	go a.loop(stop)
}

// Stop halts the tick loop. Idempotent.
func (a *Authority) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	close(a.stopChan)
}

func (a *Authority) loop(stop chan struct{}) {
	interval := time.Second / time.Duration(a.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			start := time.Now()
			a.Advance(now.Sub(last).Seconds())
			last = now
			if a.cfg.Observer != nil {
				a.cfg.Observer.TickDuration(time.Since(start))
			}
		}
	}
}

// Advance moves server time forward and runs due continuations. The
// tick loop calls it; tests drive it directly for determinism.
func (a *Authority) Advance(dt float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tick++
	a.sched.Advance(dt)
}

// Tick returns the current tick number.
func (a *Authority) Tick() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tick
}

// SessionCount returns the number of connected actors.
func (a *Authority) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Connect registers an actor, spawns its hit volume, and returns the
// session. A reconnect discards the previous session first.
func (a *Authority) Connect(actorID string, spawn scene.Vec3) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.sessions[actorID]; ok {
		a.teardown(old)
	}
	if len(a.sessions) >= a.cfg.MaxSessions {
		return nil, ErrServerFull
	}

	s := &Session{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		state:      firecontrol.Idle,
		slots:      make(map[int]*slotState),
		activeSlot: -1,
		health:     a.cfg.StartHealth,
		alive:      true,
	}
	a.sessions[actorID] = s

	if a.cfg.World != nil {
		a.cfg.World.Upsert(scene.Box{
			ID:       actorID,
			OwnerID:  actorID,
			Min:      scene.Vec3{X: spawn.X - actorHalfExtent, Y: spawn.Y, Z: spawn.Z - actorHalfExtent},
			Max:      scene.Vec3{X: spawn.X + actorHalfExtent, Y: spawn.Y + actorHeight, Z: spawn.Z + actorHalfExtent},
			Material: scene.MaterialFlesh,
			Living:   true,
		})
	}

	a.audit(AuditConnect, actorID, map[string]string{"session": s.ID})
	a.notifySessions()
	return s, nil
}

// Disconnect tears down an actor's canonical state. Nothing is
// persisted or replayed.
func (a *Authority) Disconnect(actorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[actorID]
	if !ok {
		return
	}
	a.teardown(s)
	a.audit(AuditDisconnect, actorID, map[string]string{"session": s.ID})
	a.notifySessions()
}

func (a *Authority) teardown(s *Session) {
	for _, slot := range s.slots {
		slot.token.Cancel()
	}
	a.untrackMelee(s)
	delete(a.sessions, s.ActorID)
	if a.cfg.World != nil {
		a.cfg.World.Remove(s.ActorID)
	}
}

func (a *Authority) notifySessions() {
	if a.cfg.Observer != nil {
		a.cfg.Observer.SessionsChanged(len(a.sessions))
	}
}

// HandleAction validates and applies one untrusted client action.
// Returns true when the action was accepted; rejection is otherwise
// silent by design.
func (a *Authority) HandleAction(env ActionEnvelope) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[env.ActorID]
	if !ok {
		return a.reject(env.ActorID, env.Type, "unknown actor")
	}

	switch env.Type {
	case ActionFire:
		var act FireAction
		if json.Unmarshal(env.Payload, &act) != nil {
			return a.reject(s.ActorID, env.Type, "malformed payload")
		}
		return a.handleFire(s, act)
	case ActionReload:
		var act ReloadAction
		if json.Unmarshal(env.Payload, &act) != nil {
			return a.reject(s.ActorID, env.Type, "malformed payload")
		}
		return a.handleReload(s, act)
	case ActionEquip:
		var act EquipAction
		if json.Unmarshal(env.Payload, &act) != nil {
			return a.reject(s.ActorID, env.Type, "malformed payload")
		}
		return a.handleEquip(s, act)
	case ActionHitClaim:
		var claim HitClaim
		if json.Unmarshal(env.Payload, &claim) != nil {
			return a.reject(s.ActorID, env.Type, "malformed payload")
		}
		return a.handleHitClaim(s, claim)
	case ActionStateChange:
		var change StateChange
		if json.Unmarshal(env.Payload, &change) != nil {
			return a.reject(s.ActorID, env.Type, "malformed payload")
		}
		return a.handleStateChange(s, change)
	default:
		return a.reject(s.ActorID, env.Type, "unknown action")
	}
}

func (a *Authority) reject(actorID string, action ActionType, reason string) bool {
	a.audit(AuditActionRejected, actorID, map[string]string{
		"action": string(action),
		"reason": reason,
	})
	if a.cfg.Observer != nil {
		a.cfg.Observer.ActionRejected(action, reason)
	}
	return false
}

func (a *Authority) accept(action ActionType) bool {
	if a.cfg.Observer != nil {
		a.cfg.Observer.ActionAccepted(action)
	}
	return true
}

func (a *Authority) audit(t AuditEventType, actorID string, detail interface{}) {
	if a.cfg.Audit != nil {
		a.cfg.Audit.Record(t, a.tick, actorID, detail)
	}
}

func (a *Authority) broadcast(msg Outbound) {
	if a.cfg.Broadcaster != nil {
		a.cfg.Broadcaster.Broadcast(msg)
	}
}

// handleFire checks the canonical ledger, decrements it, and replicates
// the shot. The client's ballistic numbers are discarded: the outbound
// declaration is rebuilt from the server's own definition.
func (a *Authority) handleFire(s *Session, act FireAction) bool {
	if !s.alive {
		return a.reject(s.ActorID, ActionFire, "dead")
	}
	slot := s.active
	if slot == nil || slot.def.ID != act.WeaponID {
		return a.reject(s.ActorID, ActionFire, "weapon not equipped")
	}
	if _, ok := firecontrol.Next(s.state, firecontrol.EventFire); !ok {
		return a.reject(s.ActorID, ActionFire, "state "+s.state.String())
	}
	if slot.def.FireMode.Cycled() && !slot.canFire {
		return a.reject(s.ActorID, ActionFire, "cycling")
	}

	// A shot opens a new window once the cooldown has passed. Inside a
	// window only burst weapons may continue, at the burst interval, and
	// for at most BurstCount rounds.
	now := a.sched.Now()
	burst := slot.def.FireMode == weapon.Burst && slot.def.BurstCount > 1
	newWindow := !slot.hasFired || now-slot.lastShot >= slot.def.Cooldown()-1e-9
	if !newWindow {
		if !burst || slot.burstLeft <= 0 {
			return a.reject(s.ActorID, ActionFire, "cooldown")
		}
		if now-slot.lastShot < slot.def.BurstInterval-1e-9 {
			return a.reject(s.ActorID, ActionFire, "cooldown")
		}
	}
	// Melee swings draw from no magazine.
	if !slot.def.Melee && !slot.ammo.Consume() {
		return a.reject(s.ActorID, ActionFire, "empty magazine")
	}

	if burst {
		if newWindow {
			slot.burstLeft = slot.def.BurstCount
		}
		slot.burstLeft--
	}
	slot.hasFired = true
	slot.lastShot = now
	a.setState(s, firecontrol.EventFire)

	// Release Firing once the cooldown has passed, unless something
	// else already moved the state.
	cooldown := slot.def.Cooldown()
	a.sched.After(cooldown, slot.token, func() {
		if s.active == slot && s.state == firecontrol.Firing {
			a.setState(s, firecontrol.EventFireDone)
		}
	})
	if slot.def.FireMode.Cycled() {
		slot.canFire = false
		a.sched.After(slot.def.CycleTime, slot.token, func() {
			slot.canFire = true
		})
	}

	shot := ballistics.DeclareShot(s.ActorID, slot.def, act.Shot.Origin, act.Shot.Direction)
	a.broadcast(Outbound{Type: OutFireObserved, Payload: FireObserved{
		ActorID:  s.ActorID,
		WeaponID: slot.def.ID,
		Shot:     shot,
	}})
	if !slot.def.Melee {
		a.syncAmmo(s, slot)
	}
	a.audit(AuditFire, s.ActorID, map[string]interface{}{
		"weapon": slot.def.ID,
		"ammo":   slot.ammo,
	})
	return a.accept(ActionFire)
}

// handleReload schedules a server-owned refill. The completion
// re-validates state, so a client cannot shorten the reload or bank it
// across a weapon switch.
func (a *Authority) handleReload(s *Session, act ReloadAction) bool {
	if !s.alive {
		return a.reject(s.ActorID, ActionReload, "dead")
	}
	slot := s.active
	if slot == nil || slot.def.ID != act.WeaponID {
		return a.reject(s.ActorID, ActionReload, "weapon not equipped")
	}
	if s.state == firecontrol.Reloading {
		// Idempotent: the in-flight reload stands, nothing extra happens.
		return a.reject(s.ActorID, ActionReload, "already reloading")
	}
	if _, ok := firecontrol.Next(s.state, firecontrol.EventReload); !ok {
		return a.reject(s.ActorID, ActionReload, "state "+s.state.String())
	}
	if slot.ammo.Current >= slot.def.Magazine.Size {
		return a.reject(s.ActorID, ActionReload, "magazine full")
	}
	if slot.ammo.Reserve <= 0 {
		return a.reject(s.ActorID, ActionReload, "no reserve")
	}

	if s.modifier == firecontrol.ModAiming {
		s.modifier = firecontrol.ModNone
	}
	a.setState(s, firecontrol.EventReload)

	duration := slot.def.ReloadDuration(slot.ammo.Current)
	a.sched.After(duration, slot.token, func() {
		if a.sessions[s.ActorID] != s || !s.alive || s.active != slot || s.state != firecontrol.Reloading {
			return
		}
		transferred := slot.ammo.Refill(slot.def.Magazine)
		a.setState(s, firecontrol.EventReloadDone)
		a.syncAmmo(s, slot)
		a.audit(AuditReload, s.ActorID, map[string]interface{}{
			"weapon":      slot.def.ID,
			"transferred": transferred,
		})
	})
	return a.accept(ActionReload)
}

// handleEquip runs the stow-then-deploy sequence on server timing.
func (a *Authority) handleEquip(s *Session, act EquipAction) bool {
	if !s.alive {
		return a.reject(s.ActorID, ActionEquip, "dead")
	}
	if s.state == firecontrol.Equipping || s.state == firecontrol.Unequipping {
		return a.reject(s.ActorID, ActionEquip, "switch in flight")
	}
	if s.active != nil && s.activeSlot == act.Slot && s.active.def.ID == act.WeaponID {
		return a.reject(s.ActorID, ActionEquip, "already equipped")
	}

	def := a.cfg.Catalog.Get(act.WeaponID)
	slot := s.slots[act.Slot]
	if slot == nil || slot.def.ID != act.WeaponID {
		slot = &slotState{
			def:     def,
			ammo:    weapon.FullAmmo(def.Magazine),
			canFire: true,
		}
		s.slots[act.Slot] = slot
	}

	if s.active == nil {
		if _, ok := firecontrol.Next(s.state, firecontrol.EventStowDone); !ok {
			return a.reject(s.ActorID, ActionEquip, "state "+s.state.String())
		}
		a.setState(s, firecontrol.EventStowDone)
		a.deploy(s, act.Slot, slot)
		return a.accept(ActionEquip)
	}

	old := s.active
	if _, ok := firecontrol.Next(s.state, firecontrol.EventStow); !ok {
		return a.reject(s.ActorID, ActionEquip, "state "+s.state.String())
	}
	a.setState(s, firecontrol.EventStow)
	old.token.Cancel()
	if old.def.Melee {
		a.untrackMelee(s)
	}

	a.sched.After(old.def.StowTime, nil, func() {
		if a.sessions[s.ActorID] != s || !s.alive || s.state != firecontrol.Unequipping {
			return
		}
		a.setState(s, firecontrol.EventStowDone)
		a.deploy(s, act.Slot, slot)
	})
	return a.accept(ActionEquip)
}

// deploy installs the slot and schedules equip completion. Caller has
// already transitioned to Equipping.
func (a *Authority) deploy(s *Session, slotIdx int, slot *slotState) {
	s.activeSlot = slotIdx
	s.active = slot
	slot.token = &firecontrol.Token{}
	slot.canFire = true
	slot.burstLeft = 0

	a.sched.After(slot.def.DeployTime, slot.token, func() {
		if a.sessions[s.ActorID] != s || !s.alive || s.active != slot || s.state != firecontrol.Equipping {
			return
		}
		a.setState(s, firecontrol.EventEquipDone)
		if slot.def.Melee {
			a.trackMelee(s)
		} else {
			a.syncAmmo(s, slot)
		}
		a.audit(AuditEquip, s.ActorID, map[string]string{"weapon": slot.def.ID})
	})
}

// trackMelee registers the actor's swing volume with the contact
// sampler. The volume reads its center from the live hit box, so it
// follows the actor without per-tick updates here.
func (a *Authority) trackMelee(s *Session) {
	if a.cfg.Melee == nil {
		return
	}
	a.cfg.Melee.AddCollider(&swingVolume{
		id:    s.ActorID + "/swing",
		owner: s.ActorID,
		world: a.cfg.World,
	})
}

func (a *Authority) untrackMelee(s *Session) {
	if a.cfg.Melee == nil {
		return
	}
	a.cfg.Melee.RemoveCollider(s.ActorID + "/swing")
}

// handleHitClaim recomputes damage from the canonical definition and
// the claimed metadata; the claimed damage number is never used.
func (a *Authority) handleHitClaim(s *Session, claim HitClaim) bool {
	if !s.alive {
		return a.reject(s.ActorID, ActionHitClaim, "dead")
	}
	slot := s.active
	if slot == nil {
		return a.reject(s.ActorID, ActionHitClaim, "no weapon")
	}
	if !slot.hasFired || a.sched.Now()-slot.lastShot > a.cfg.FireWindow {
		return a.reject(s.ActorID, ActionHitClaim, "no recent shot")
	}
	if claim.Distance < 0 || claim.Distance > a.cfg.Simulator.Config().MaxDistance {
		return a.reject(s.ActorID, ActionHitClaim, "distance out of range")
	}
	target, ok := a.sessions[claim.TargetID]
	if !ok || claim.TargetID == s.ActorID {
		return a.reject(s.ActorID, ActionHitClaim, "invalid target")
	}
	if !target.alive {
		return a.reject(s.ActorID, ActionHitClaim, "target down")
	}

	damage := slot.def.DamageAtDistance(claim.Distance)
	headshot := claim.Headshot || claim.Part == scene.PartHead
	if headshot {
		damage *= a.cfg.HeadshotMultiplier
	}
	if claim.Backstab {
		damage *= a.cfg.BackstabMultiplier
	}

	target.health -= damage
	killed := target.health <= 0
	if killed {
		target.health = 0
		a.down(target)
	}

	a.broadcast(Outbound{Type: OutHitConfirmed, Payload: HitConfirmed{
		AttackerID:   s.ActorID,
		TargetID:     target.ActorID,
		Damage:       damage,
		Headshot:     headshot,
		Backstab:     claim.Backstab,
		TargetHealth: target.health,
		Killed:       killed,
	}})
	a.audit(AuditHitConfirmed, s.ActorID, map[string]interface{}{
		"target":   target.ActorID,
		"damage":   damage,
		"headshot": headshot,
		"backstab": claim.Backstab,
	})
	if a.cfg.Observer != nil {
		a.cfg.Observer.HitConfirmed(damage)
	}
	if killed {
		a.broadcast(Outbound{Type: OutActorDown, Payload: ActorDown{
			ActorID:  target.ActorID,
			KillerID: s.ActorID,
		}})
		a.audit(AuditKill, s.ActorID, map[string]string{"target": target.ActorID})
	}
	return a.accept(ActionHitClaim)
}

// down clears a killed actor's combat state. Pending continuations are
// cancelled and the hit volume leaves the world; the session itself
// stays visible until disconnect.
func (a *Authority) down(s *Session) {
	s.alive = false
	s.modifier = firecontrol.ModNone
	a.setState(s, firecontrol.EventReset)
	for _, slot := range s.slots {
		slot.token.Cancel()
	}
	a.untrackMelee(s)
	if a.cfg.World != nil {
		a.cfg.World.Remove(s.ActorID)
	}
}

// handleStateChange applies a stance declaration. Aiming is rejected
// while reloading; primary states never move through this path.
func (a *Authority) handleStateChange(s *Session, change StateChange) bool {
	if !s.alive {
		return a.reject(s.ActorID, ActionStateChange, "dead")
	}
	switch change.Stance {
	case "none":
		s.modifier = firecontrol.ModNone
	case "aiming":
		if s.state == firecontrol.Reloading {
			return a.reject(s.ActorID, ActionStateChange, "reloading")
		}
		s.modifier = firecontrol.ModAiming
	case "sprinting":
		s.modifier = firecontrol.ModSprinting
	default:
		return a.reject(s.ActorID, ActionStateChange, "unknown stance")
	}
	return a.accept(ActionStateChange)
}

func (a *Authority) setState(s *Session, event firecontrol.Event) {
	if next, ok := firecontrol.Next(s.state, event); ok {
		s.state = next
	}
}

func (a *Authority) syncAmmo(s *Session, slot *slotState) {
	a.broadcast(Outbound{Type: OutAmmoSync, Payload: AmmoSync{
		ActorID:  s.ActorID,
		WeaponID: slot.def.ID,
		Current:  slot.ammo.Current,
		Reserve:  slot.ammo.Reserve,
	}})
}

// swingVolume is the melee contact box the sampler sweeps. It reads its
// center from the actor's live hit box so it tracks movement.
type swingVolume struct {
	id    string
	owner string
	world *scene.World
}

func (v *swingVolume) ID() string      { return v.id }
func (v *swingVolume) OwnerID() string { return v.owner }

func (v *swingVolume) Center() scene.Vec3 {
	if v.world == nil {
		return scene.Vec3{}
	}
	box, ok := v.world.Box(v.owner)
	if !ok {
		return scene.Vec3{}
	}
	return box.Center()
}

// Extent covers arm reach around the actor; height stays near the torso.
func (v *swingVolume) Extent() scene.Vec3 {
	return scene.Vec3{X: actorHalfExtent + meleeReach, Y: 0.4, Z: actorHalfExtent + meleeReach}
}

func (v *swingVolume) Velocity() scene.Vec3 { return scene.Vec3{} }

// meleeReach extends the swing volume past the actor's own hit box.
const meleeReach = 0.9

// SessionSnapshot is a read-only view for the HTTP surface.
type SessionSnapshot struct {
	SessionID string  `json:"sessionId"`
	ActorID   string  `json:"actorId"`
	State     string  `json:"state"`
	Modifier  string  `json:"modifier"`
	Weapon    string  `json:"weapon,omitempty"`
	Current   int     `json:"current"`
	Reserve   int     `json:"reserve"`
	Health    float64 `json:"health"`
	Alive     bool    `json:"alive"`
}

// Snapshot returns the current session table sorted by actor ID.
func (a *Authority) Snapshot() []SessionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]SessionSnapshot, 0, len(a.sessions))
	for _, s := range a.sessions {
		snap := SessionSnapshot{
			SessionID: s.ID,
			ActorID:   s.ActorID,
			State:     s.state.String(),
			Modifier:  s.modifier.String(),
			Health:    s.health,
			Alive:     s.alive,
		}
		if s.active != nil {
			snap.Weapon = s.active.def.ID
			snap.Current = s.active.ammo.Current
			snap.Reserve = s.active.ammo.Reserve
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}
