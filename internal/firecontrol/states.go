package firecontrol

// State is an actor's primary weapon-handling state. States are mutually
// exclusive; modifiers layer on top.
type State int

const (
	Idle State = iota
	Firing
	Reloading
	Equipping
	Unequipping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Firing:
		return "firing"
	case Reloading:
		return "reloading"
	case Equipping:
		return "equipping"
	case Unequipping:
		return "unequipping"
	default:
		return "unknown"
	}
}

// Modifier is the secondary stance flag. Aiming and Sprinting are mutually
// exclusive with each other.
type Modifier int

const (
	ModNone Modifier = iota
	ModAiming
	ModSprinting
)

func (m Modifier) String() string {
	switch m {
	case ModAiming:
		return "aiming"
	case ModSprinting:
		return "sprinting"
	default:
		return "none"
	}
}

// Event is a state-machine input. Transitions are pure table lookups so
// weapon-switch races and cancellations stay inspectable.
type Event int

const (
	EventFire Event = iota
	EventFireDone
	EventReload
	EventReloadDone
	EventStow
	EventStowDone
	EventEquipDone
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventFire:
		return "fire"
	case EventFireDone:
		return "fire_done"
	case EventReload:
		return "reload"
	case EventReloadDone:
		return "reload_done"
	case EventStow:
		return "stow"
	case EventStowDone:
		return "stow_done"
	case EventEquipDone:
		return "equip_done"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from  State
	event Event
}

// transitions is the full legal transition set. A missing entry means the
// event is rejected in that state.
var transitions = map[transitionKey]State{
	{Idle, EventFire}:   Firing,
	{Firing, EventFire}: Firing,

	{Firing, EventFireDone}: Idle,

	{Idle, EventReload}:   Reloading,
	{Firing, EventReload}: Reloading,

	{Reloading, EventReloadDone}: Idle,

	{Idle, EventStow}:      Unequipping,
	{Firing, EventStow}:    Unequipping,
	{Reloading, EventStow}: Unequipping,

	{Unequipping, EventStowDone}: Equipping,
	{Equipping, EventEquipDone}:  Idle,

	// Spawn or bare-handed actors equip directly.
	{Idle, EventStowDone}: Equipping,

	{Idle, EventReset}:        Idle,
	{Firing, EventReset}:      Idle,
	{Reloading, EventReset}:   Idle,
	{Equipping, EventReset}:   Idle,
	{Unequipping, EventReset}: Idle,
}

// Next looks up the transition for (from, event). ok is false when the
// event is not legal in that state.
func Next(from State, event Event) (State, bool) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	return to, ok
}
