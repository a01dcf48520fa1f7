package authority

import (
	"encoding/json"
	"math"
	"testing"

	"ironsight/internal/ballistics"
	"ironsight/internal/firecontrol"
	"ironsight/internal/hitsampler"
	"ironsight/internal/scene"
	"ironsight/internal/weapon"
)

type recorder struct {
	msgs []Outbound
}

func (r *recorder) Broadcast(m Outbound) { r.msgs = append(r.msgs, m) }

func (r *recorder) count(t OutboundType) int {
	n := 0
	for _, m := range r.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t OutboundType) (Outbound, bool) {
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == t {
			return r.msgs[i], true
		}
	}
	return Outbound{}, false
}

func env(t *testing.T, actor string, typ ActionType, payload interface{}) ActionEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return ActionEnvelope{Type: typ, ActorID: actor, Payload: data}
}

// newArena connects two actors and equips p1 with the ar-77, advancing
// past the deploy so p1 sits in Idle.
func newArena(t *testing.T, cfg Config) (*Authority, *recorder) {
	t.Helper()
	rec := &recorder{}
	cfg.Broadcaster = rec
	a := New(cfg)

	if _, err := a.Connect("p1", scene.Vec3{}); err != nil {
		t.Fatalf("connect p1: %v", err)
	}
	if _, err := a.Connect("p2", scene.Vec3{X: 30}); err != nil {
		t.Fatalf("connect p2: %v", err)
	}
	if !a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 0, WeaponID: "ar-77"})) {
		t.Fatal("equip rejected")
	}
	a.Advance(1)
	if s := a.sessions["p1"]; s.state != firecontrol.Idle {
		t.Fatalf("expected p1 idle after deploy, got %v", s.state)
	}
	return a, rec
}

func fire(t *testing.T, a *Authority, actor, weaponID string) bool {
	t.Helper()
	return a.HandleAction(env(t, actor, ActionFire, FireAction{
		WeaponID: weaponID,
		Shot:     ballistics.ShotDeclaration{Direction: scene.Vec3{X: 1}},
	}))
}

func TestFireDecrementsCanonicalLedger(t *testing.T) {
	a, rec := newArena(t, Config{})

	if !fire(t, a, "p1", "ar-77") {
		t.Fatal("fire rejected")
	}
	s := a.sessions["p1"]
	if s.active.ammo.Current != 29 {
		t.Errorf("expected 29 rounds, got %d", s.active.ammo.Current)
	}
	if rec.count(OutFireObserved) != 1 {
		t.Errorf("expected one FireObserved, got %d", rec.count(OutFireObserved))
	}
	msg, ok := rec.last(OutAmmoSync)
	if !ok {
		t.Fatal("expected an ammo sync")
	}
	sync := msg.Payload.(AmmoSync)
	if sync.Current != 29 || sync.Reserve != 120 {
		t.Errorf("sync should carry the canonical ledger, got %+v", sync)
	}
}

// TestFireWhileReloadingRejected: a Fire declared
// against a Reloading server state is silently dropped with no ledger
// change and no confirmation of any kind.
func TestFireWhileReloadingRejected(t *testing.T) {
	a, rec := newArena(t, Config{})

	fire(t, a, "p1", "ar-77")
	a.Advance(0.2)
	if !a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"})) {
		t.Fatal("reload rejected")
	}

	before := a.sessions["p1"].active.ammo
	observed := rec.count(OutFireObserved)

	if fire(t, a, "p1", "ar-77") {
		t.Fatal("fire while reloading must be rejected")
	}
	if got := a.sessions["p1"].active.ammo; got != before {
		t.Errorf("rejected fire must not touch the ledger: %+v -> %+v", before, got)
	}
	if rec.count(OutFireObserved) != observed {
		t.Error("rejected fire must not be broadcast")
	}
	if rec.count(OutHitConfirmed) != 0 {
		t.Error("no HitConfirmed may follow a rejected fire")
	}
}

func TestFireCooldownEnforced(t *testing.T) {
	a, _ := newArena(t, Config{})

	if !fire(t, a, "p1", "ar-77") {
		t.Fatal("first fire rejected")
	}
	if fire(t, a, "p1", "ar-77") {
		t.Error("immediate second fire must hit the cooldown")
	}
	a.Advance(0.11) // ar-77 at 600 rpm cools down in 0.1s
	if !fire(t, a, "p1", "ar-77") {
		t.Error("fire after cooldown should be accepted")
	}
}

func TestFireWrongWeaponRejected(t *testing.T) {
	a, _ := newArena(t, Config{})
	if fire(t, a, "p1", "mk9") {
		t.Error("firing a weapon that is not equipped must be rejected")
	}
}

// TestHitClaimDamageRecomputed: the claimed damage number is discarded;
// the broadcast carries the server's own interpolation.
func TestHitClaimDamageRecomputed(t *testing.T) {
	a, rec := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")

	if !a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{
		TargetID: "p2",
		Damage:   9999,
		Distance: 20,
	})) {
		t.Fatal("hit claim rejected")
	}

	want := weapon.DefaultCatalog().Get("ar-77").DamageAtDistance(20)
	msg, ok := rec.last(OutHitConfirmed)
	if !ok {
		t.Fatal("expected a HitConfirmed")
	}
	confirmed := msg.Payload.(HitConfirmed)
	if math.Abs(confirmed.Damage-want) > 1e-9 {
		t.Errorf("expected recomputed damage %v, got %v", want, confirmed.Damage)
	}
	if confirmed.Damage == 9999 {
		t.Error("claimed damage must never pass through")
	}
	if health := a.sessions["p2"].health; math.Abs(health-(100-want)) > 1e-9 {
		t.Errorf("target health should drop by the server number, got %v", health)
	}
}

func TestHitClaimMultipliers(t *testing.T) {
	a, rec := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")

	a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{
		TargetID: "p2",
		Distance: 0,
		Headshot: true,
		Backstab: true,
	}))

	want := weapon.DefaultCatalog().Get("ar-77").DamageAtDistance(0) * 2 * 2
	msg, ok := rec.last(OutHitConfirmed)
	if !ok {
		t.Fatal("expected a HitConfirmed")
	}
	if got := msg.Payload.(HitConfirmed).Damage; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected stacked multipliers %v, got %v", want, got)
	}
}

func TestHitClaimGuards(t *testing.T) {
	a, _ := newArena(t, Config{})

	// No shot fired yet.
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p2", Distance: 10})) {
		t.Error("claim without a recent shot must be rejected")
	}

	fire(t, a, "p1", "ar-77")
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p2", Distance: 5000})) {
		t.Error("claim beyond max travel distance must be rejected")
	}
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p1", Distance: 10})) {
		t.Error("self-hit claims must be rejected")
	}
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "ghost", Distance: 10})) {
		t.Error("claims against unknown targets must be rejected")
	}

	// The shot goes stale after the fire window.
	a.Advance(2)
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p2", Distance: 10})) {
		t.Error("stale claims must be rejected")
	}
}

func TestKillFlow(t *testing.T) {
	a, rec := newArena(t, Config{StartHealth: 30})
	fire(t, a, "p1", "ar-77")

	a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{
		TargetID: "p2",
		Distance: 0,
		Headshot: true, // 26 * 2 = 52, enough to down a 30hp target
	}))

	p2 := a.sessions["p2"]
	if p2.alive || p2.health != 0 {
		t.Errorf("expected p2 down at 0hp, got alive=%v health=%v", p2.alive, p2.health)
	}
	if rec.count(OutActorDown) != 1 {
		t.Errorf("expected one ActorDown, got %d", rec.count(OutActorDown))
	}

	// Further claims against a downed target go nowhere.
	a.Advance(0.11)
	fire(t, a, "p1", "ar-77")
	if a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p2", Distance: 0})) {
		t.Error("claims against a downed target must be rejected")
	}
}

// TestKillStopsPendingReload: death cancels in-flight continuations, so
// a victim killed mid-reload stays at the pre-reload ledger and its
// state resets to idle.
func TestKillStopsPendingReload(t *testing.T) {
	a, rec := newArena(t, Config{StartHealth: 30})

	// p2 equips, fires, and starts a reload.
	if !a.HandleAction(env(t, "p2", ActionEquip, EquipAction{Slot: 0, WeaponID: "ar-77"})) {
		t.Fatal("p2 equip rejected")
	}
	a.Advance(1)
	if !fire(t, a, "p2", "ar-77") {
		t.Fatal("p2 fire rejected")
	}
	a.Advance(0.2)
	if !a.HandleAction(env(t, "p2", ActionReload, ReloadAction{WeaponID: "ar-77"})) {
		t.Fatal("p2 reload rejected")
	}

	// p1 downs p2 while the reload timer is pending.
	fire(t, a, "p1", "ar-77")
	a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{
		TargetID: "p2",
		Distance: 0,
		Headshot: true,
	}))

	p2 := a.sessions["p2"]
	if p2.alive {
		t.Fatal("expected p2 down")
	}
	if p2.state != firecontrol.Idle || p2.modifier != firecontrol.ModNone {
		t.Errorf("death must reset combat state, got %v/%v", p2.state, p2.modifier)
	}

	syncs := rec.count(OutAmmoSync)
	a.Advance(5) // well past the 2.2s reload timer
	if got := p2.slots[0].ammo; got.Current != 29 || got.Reserve != 120 {
		t.Errorf("a dead actor's reload must not land, got %d/%d", got.Current, got.Reserve)
	}
	if rec.count(OutAmmoSync) != syncs {
		t.Error("no AmmoSync may follow a dead actor's cancelled reload")
	}
	if a.HandleAction(env(t, "p2", ActionStateChange, StateChange{Stance: "aiming"})) {
		t.Error("stance changes from a dead actor must be rejected")
	}
}

// TestBurstWindowBounded: a burst weapon may send rounds at the burst
// interval, but at most BurstCount of them per cooldown window.
func TestBurstWindowBounded(t *testing.T) {
	a, _ := newArena(t, Config{})
	a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 1, WeaponID: "trident"}))
	a.Advance(2) // ar-77 stows in 0.4s, trident deploys in 0.6s

	if !fire(t, a, "p1", "trident") {
		t.Fatal("first burst round rejected")
	}
	for i := 0; i < 2; i++ {
		a.Advance(0.07) // trident burst interval
		if !fire(t, a, "p1", "trident") {
			t.Fatalf("burst round %d rejected", i+2)
		}
	}

	// A fourth round at the burst interval overruns the window.
	a.Advance(0.07)
	if fire(t, a, "p1", "trident") {
		t.Error("rounds beyond the burst count must wait for the cooldown")
	}

	// The next burst opens once the full cooldown since the last shot
	// has passed (trident at 500 rpm cools down in 0.12s).
	a.Advance(0.06)
	if !fire(t, a, "p1", "trident") {
		t.Error("a new burst after the cooldown should be accepted")
	}
	if got := a.sessions["p1"].active.ammo.Current; got != 20 {
		t.Errorf("expected 20 rounds after four accepted shots, got %d", got)
	}
}

// TestServerOwnedReloadTiming: the refill lands when the server timer
// fires, and re-declaring early neither shortens nor duplicates it.
func TestServerOwnedReloadTiming(t *testing.T) {
	a, _ := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")
	a.Advance(0.2)

	if !a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"})) {
		t.Fatal("reload rejected")
	}
	if a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"})) {
		t.Error("re-declared reload must be a no-op")
	}

	a.Advance(1.0) // ar-77 partial reload takes 2.2s
	if got := a.sessions["p1"].active.ammo.Current; got != 29 {
		t.Fatalf("reload must not land early, ammo %d", got)
	}
	a.Advance(1.3)
	if got := a.sessions["p1"].active.ammo; got.Current != 30 || got.Reserve != 119 {
		t.Errorf("expected 30/119 after the server timer, got %d/%d", got.Current, got.Reserve)
	}
	if s := a.sessions["p1"]; s.state != firecontrol.Idle {
		t.Errorf("expected idle after reload, got %v", s.state)
	}
}

func TestEquipSequenceServerTimed(t *testing.T) {
	a, _ := newArena(t, Config{})

	if !a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 1, WeaponID: "mk9"})) {
		t.Fatal("switch rejected")
	}
	s := a.sessions["p1"]
	if s.state != firecontrol.Unequipping {
		t.Fatalf("expected unequipping, got %v", s.state)
	}
	if a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 0, WeaponID: "ar-77"})) {
		t.Error("switch while a switch is in flight must be rejected")
	}
	if fire(t, a, "p1", "mk9") {
		t.Error("firing mid-switch must be rejected")
	}

	a.Advance(0.41) // ar-77 stows in 0.4s
	if s.state != firecontrol.Equipping {
		t.Fatalf("expected equipping after stow, got %v", s.state)
	}
	a.Advance(0.36) // mk9 deploys in 0.35s
	if s.state != firecontrol.Idle || s.active.def.ID != "mk9" {
		t.Errorf("expected the mk9 deployed and idle, got %v with %q", s.state, s.active.def.ID)
	}
}

// TestSwitchDiscardsPendingReload: the reload completion re-validates
// state, so switching away mid-reload forfeits the transfer.
func TestSwitchDiscardsPendingReload(t *testing.T) {
	a, _ := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")
	a.Advance(0.2)
	a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"}))
	a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 1, WeaponID: "mk9"}))

	a.Advance(10)
	if got := a.sessions["p1"].slots[0].ammo; got.Current != 29 || got.Reserve != 120 {
		t.Errorf("cancelled reload must not transfer, got %d/%d", got.Current, got.Reserve)
	}
}

func TestStanceChanges(t *testing.T) {
	a, _ := newArena(t, Config{})
	s := a.sessions["p1"]

	a.HandleAction(env(t, "p1", ActionStateChange, StateChange{Stance: "aiming"}))
	if s.modifier != firecontrol.ModAiming {
		t.Fatalf("expected aiming, got %v", s.modifier)
	}
	a.HandleAction(env(t, "p1", ActionStateChange, StateChange{Stance: "sprinting"}))
	if s.modifier != firecontrol.ModSprinting {
		t.Fatalf("sprinting should replace aiming, got %v", s.modifier)
	}

	fire(t, a, "p1", "ar-77")
	a.Advance(0.2)
	a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"}))
	if a.HandleAction(env(t, "p1", ActionStateChange, StateChange{Stance: "aiming"})) {
		t.Error("aiming while reloading must be rejected")
	}
	if a.HandleAction(env(t, "p1", ActionStateChange, StateChange{Stance: "warp"})) {
		t.Error("unknown stances must be rejected")
	}
}

func TestDisconnectDiscardsState(t *testing.T) {
	a, _ := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")
	a.Advance(0.2)
	a.HandleAction(env(t, "p1", ActionReload, ReloadAction{WeaponID: "ar-77"}))

	a.Disconnect("p1")
	a.Advance(10) // pending reload must not resurrect anything
	if a.SessionCount() != 1 {
		t.Fatalf("expected only p2 left, got %d sessions", a.SessionCount())
	}

	// Reconnecting starts from scratch.
	if _, err := a.Connect("p1", scene.Vec3{}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 0, WeaponID: "ar-77"}))
	a.Advance(1)
	if got := a.sessions["p1"].active.ammo; got.Current != 30 || got.Reserve != 120 {
		t.Errorf("reconnected actor should start with full ammo, got %d/%d", got.Current, got.Reserve)
	}
}

type meleeRecorder struct {
	added   []string
	removed []string
}

func (m *meleeRecorder) AddCollider(c hitsampler.Collider) bool {
	m.added = append(m.added, c.ID())
	return true
}

func (m *meleeRecorder) RemoveCollider(id string) {
	m.removed = append(m.removed, id)
}

// TestMeleeSwingLifecycle: deploying a melee weapon registers the
// actor's swing volume with the contact sampler, swings consume no
// ammo, contact claims resolve through the normal hit path, and
// stowing the weapon unregisters the volume.
func TestMeleeSwingLifecycle(t *testing.T) {
	tracker := &meleeRecorder{}
	a, rec := newArena(t, Config{Melee: tracker})

	if len(tracker.added) != 0 {
		t.Fatalf("a rifle must not register a swing volume: %v", tracker.added)
	}

	if !a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 1, WeaponID: "trench-knife"})) {
		t.Fatal("knife equip rejected")
	}
	a.Advance(1) // ar-77 stows in 0.4s, the knife deploys in 0.3s
	if len(tracker.added) != 1 || tracker.added[0] != "p1/swing" {
		t.Fatalf("knife deploy should register the swing volume, got %v", tracker.added)
	}

	syncs := rec.count(OutAmmoSync)
	if !fire(t, a, "p1", "trench-knife") {
		t.Fatal("swing rejected")
	}
	if got := a.sessions["p1"].active.ammo; got.Current != 0 || got.Reserve != 0 {
		t.Errorf("a swing must not touch ammo, got %+v", got)
	}
	if rec.count(OutAmmoSync) != syncs {
		t.Error("swings have no ledger to sync")
	}

	// Contact claims face the same validation as ranged hits: damage
	// comes from the knife's own table at the contact distance.
	if !a.HandleAction(env(t, "p1", ActionHitClaim, HitClaim{TargetID: "p2", Distance: 1.0})) {
		t.Fatal("melee hit claim rejected")
	}
	want := weapon.DefaultCatalog().Get("trench-knife").DamageAtDistance(1.0)
	msg, ok := rec.last(OutHitConfirmed)
	if !ok {
		t.Fatal("expected a HitConfirmed")
	}
	if got := msg.Payload.(HitConfirmed).Damage; math.Abs(got-want) > 1e-9 {
		t.Errorf("expected knife damage %v, got %v", want, got)
	}

	// Switching away unregisters the volume at stow time.
	a.HandleAction(env(t, "p1", ActionEquip, EquipAction{Slot: 0, WeaponID: "ar-77"}))
	if len(tracker.removed) != 1 || tracker.removed[0] != "p1/swing" {
		t.Errorf("stowing the knife should unregister the swing volume, got %v", tracker.removed)
	}
}

func TestSessionCap(t *testing.T) {
	a := New(Config{MaxSessions: 2})
	if _, err := a.Connect("p1", scene.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Connect("p2", scene.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Connect("p3", scene.Vec3{}); err != ErrServerFull {
		t.Errorf("expected ErrServerFull, got %v", err)
	}
}

func TestUnknownActorAndMalformedPayload(t *testing.T) {
	a, _ := newArena(t, Config{})

	if a.HandleAction(env(t, "ghost", ActionFire, FireAction{WeaponID: "ar-77"})) {
		t.Error("actions from unknown actors must be rejected")
	}
	if a.HandleAction(ActionEnvelope{Type: ActionFire, ActorID: "p1", Payload: []byte("{broken")}) {
		t.Error("malformed payloads must be rejected")
	}
}

func TestSnapshot(t *testing.T) {
	a, _ := newArena(t, Config{})
	fire(t, a, "p1", "ar-77")

	snaps := a.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("expected two sessions, got %d", len(snaps))
	}
	if snaps[0].ActorID != "p1" || snaps[1].ActorID != "p2" {
		t.Errorf("snapshot should be sorted by actor: %+v", snaps)
	}
	if snaps[0].Weapon != "ar-77" || snaps[0].Current != 29 {
		t.Errorf("snapshot should carry the canonical ledger: %+v", snaps[0])
	}
	if snaps[0].SessionID == "" || snaps[1].SessionID == "" {
		t.Error("snapshots should carry the session ID")
	}
}

// TestSessionIDRotatesOnReconnect: every Connect issues a fresh session
// ID, so audit entries and snapshots can tell one sitting apart from
// the next under the same actor ID.
func TestSessionIDRotatesOnReconnect(t *testing.T) {
	a := New(Config{})

	first, err := a.Connect("p1", scene.Vec3{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if first.ID == "" {
		t.Fatal("session needs an ID")
	}

	second, err := a.Connect("p1", scene.Vec3{})
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if second.ID == first.ID {
		t.Error("reconnect must issue a fresh session ID")
	}

	snaps := a.Snapshot()
	if len(snaps) != 1 || snaps[0].SessionID != second.ID {
		t.Errorf("snapshot should carry the live session ID: %+v", snaps)
	}
}
