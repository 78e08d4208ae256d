package combat

import "errors"

// Rejections surfaced to callers as typed errors.
var (
	ErrAlreadyInCombat   = errors.New("combat: already in an active session")
	ErrTargetUnavailable = errors.New("combat: target is not available")
	ErrInvalidSession    = errors.New("combat: no such active session")
	ErrNotYourTurn       = errors.New("combat: not your turn")
	ErrInsufficientMana  = errors.New("combat: insufficient mana")
	ErrUnknownKind       = errors.New("combat: unknown weapon or magic school")
)

// Action type labels on the combat log.
const (
	ActionAttack = "attack"
	ActionSpell  = "spell"
	ActionFlee   = "flee"
)

// Payload is the action a player submits. Exactly one variant exists per
// action type; anything else is rejected before resolution starts.
type Payload interface {
	actionType() string
}

// AttackPayload is a weapon strike.
type AttackPayload struct {
	Weapon string
}

// SpellPayload is a spell cast from one school. ManaCost zero means the
// default cost.
type SpellPayload struct {
	School   string
	ManaCost int
}

// FleePayload is an escape attempt.
type FleePayload struct{}

func (AttackPayload) actionType() string { return ActionAttack }
func (SpellPayload) actionType() string  { return ActionSpell }
func (FleePayload) actionType() string   { return ActionFlee }
