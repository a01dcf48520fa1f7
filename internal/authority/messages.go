package authority

import (
	"encoding/json"

	"ironsight/internal/ballistics"
	"ironsight/internal/scene"
)

// ActionType tags an inbound declared action.
type ActionType string

const (
	ActionFire        ActionType = "fire"
	ActionReload      ActionType = "reload"
	ActionEquip       ActionType = "equip"
	ActionHitClaim    ActionType = "hit_claim"
	ActionStateChange ActionType = "state_change"
)

// ActionEnvelope is one untrusted client message. ActorID is stamped by
// the transport from the authenticated connection, never read from the
// wire.
type ActionEnvelope struct {
	Type    ActionType      `json:"type"`
	ActorID string          `json:"-"`
	Payload json.RawMessage `json:"payload"`
}

// FireAction declares one fired round. Everything in Shot except origin
// and direction is advisory: the server rebuilds ballistic parameters
// from its own catalog.
type FireAction struct {
	WeaponID string                     `json:"weaponId"`
	Shot     ballistics.ShotDeclaration `json:"shot"`
}

// ReloadAction requests a magazine refill for the named weapon.
type ReloadAction struct {
	WeaponID string `json:"weaponId"`
}

// EquipAction requests a slot switch.
type EquipAction struct {
	Slot     int    `json:"slot"`
	WeaponID string `json:"weaponId"`
}

// HitClaim reports a client-predicted hit. Damage is what the client
// computed and is always discarded; distance, part, and the flag set are
// the metadata the server recomputes from.
type HitClaim struct {
	TargetID string         `json:"targetId"`
	Damage   float64        `json:"damage"`
	Distance float64        `json:"distance"`
	Part     scene.BodyPart `json:"part"`
	Headshot bool           `json:"headshot"`
	Backstab bool           `json:"backstab"`
}

// StateChange declares a stance change. Only stances are accepted;
// primary states move through Fire/Reload/Equip actions.
type StateChange struct {
	Stance string `json:"stance"` // "none", "aiming", "sprinting"
}

// OutboundType tags a server broadcast.
type OutboundType string

const (
	OutFireObserved OutboundType = "fire_observed"
	OutHitConfirmed OutboundType = "hit_confirmed"
	OutAmmoSync     OutboundType = "ammo_sync"
	OutActorDown    OutboundType = "actor_down"
)

// Outbound is one server-to-observer message.
type Outbound struct {
	Type    OutboundType `json:"type"`
	Payload interface{}  `json:"payload"`
}

// FireObserved replicates a shot for remote rendering. It carries no
// damage authority.
type FireObserved struct {
	ActorID  string                     `json:"actorId"`
	WeaponID string                     `json:"weaponId"`
	Shot     ballistics.ShotDeclaration `json:"shot"`
}

// HitConfirmed carries the server-computed damage, the only number that
// affects gameplay.
type HitConfirmed struct {
	AttackerID   string  `json:"attackerId"`
	TargetID     string  `json:"targetId"`
	Damage       float64 `json:"damage"`
	Headshot     bool    `json:"headshot"`
	Backstab     bool    `json:"backstab"`
	TargetHealth float64 `json:"targetHealth"`
	Killed       bool    `json:"killed"`
}

// AmmoSync publishes the canonical ammo ledger after the server mutates
// it, correcting any client-side drift.
type AmmoSync struct {
	ActorID  string `json:"actorId"`
	WeaponID string `json:"weaponId"`
	Current  int    `json:"current"`
	Reserve  int    `json:"reserve"`
}

// ActorDown announces a death resolved by the server.
type ActorDown struct {
	ActorID  string `json:"actorId"`
	KillerID string `json:"killerId"`
}

// Broadcaster delivers authoritative outcomes to observers. The
// websocket hub implements it.
type Broadcaster interface {
	Broadcast(msg Outbound)
}
