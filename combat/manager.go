// Package combat runs bounded combat sessions: spawn claiming, turn-based
// action resolution, the append-only combat log, and settlement of victory,
// defeat and flight.
package combat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"riftbound/server/affinity"
	"riftbound/server/balance"
	"riftbound/server/cooldown"
	"riftbound/server/progression"
	"riftbound/server/store"
)

// Swappable for deterministic tests.
var (
	randIntn    = rand.Intn
	randFloat64 = rand.Float64
)

// MonsterResult is what a monster's response turn did.
type MonsterResult struct {
	SessionID    string
	Damage       int
	PlayerHealth int
	PlayerDown   bool
}

// ActionResult is the full outcome of one resolved player action.
type ActionResult struct {
	// Gate is set instead of everything else when pacing rejected the
	// action.
	Gate *cooldown.Decision

	SessionID  string
	ActionType string

	Damage       int
	Critical     bool
	TargetHealth int

	FleeSuccess bool
	FleeFailed  bool

	AffinityKind   string
	AffinityValue  float64
	SkillsUnlocked []string

	Victory          bool
	SessionOver      bool
	ExperienceGained int64
	GoldGained       int64
	Progress         *progression.AwardResult

	Monster *MonsterResult
}

// Manager owns all session mutation.
type Manager struct {
	store *store.Store
	gate  *cooldown.Gate
	prog  *progression.Service

	// think-time before a monster answers; zero or below resolves the
	// monster turn synchronously
	monsterDelay time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager builds a manager. gate may be nil to disable pacing.
func NewManager(st *store.Store, gate *cooldown.Gate, prog *progression.Service, monsterDelay time.Duration) *Manager {
	return &Manager{
		store:        st,
		gate:         gate,
		prog:         prog,
		monsterDelay: monsterDelay,
		locks:        make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// StartCombat claims an alive spawn for the attacker and opens a session.
// The claim and the session insert share one transaction, so two attackers
// racing for the same spawn cannot both win it.
func (m *Manager) StartCombat(ctx context.Context, attackerID, spawnID string) (*store.Session, error) {
	l := m.lockFor("start:" + attackerID)
	l.Lock()
	defer l.Unlock()

	var sess *store.Session
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		active, err := m.store.ActiveSessionTx(tx, attackerID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrAlreadyInCombat
		}

		sp, err := m.store.SpawnTx(tx, spawnID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrTargetUnavailable
		}
		if err != nil {
			return err
		}
		ok, err := m.store.ClaimSpawnTx(tx, sp.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTargetUnavailable
		}

		sess = &store.Session{
			ID:           uuid.NewString(),
			AttackerID:   attackerID,
			DefenderID:   sp.MonsterID,
			DefenderType: store.DefenderMonster,
			SpawnID:      sp.ID,
			Status:       store.SessionActive,
			StartedAt:    m.now(),
		}
		return m.store.InsertSessionTx(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("combat %s: %s engaged spawn %s", sess.ID, attackerID, spawnID)
	return sess, nil
}

// StartDuel opens a player-versus-player session. Neither side may already
// be attacking someone.
func (m *Manager) StartDuel(ctx context.Context, attackerID, defenderID string) (*store.Session, error) {
	if attackerID == defenderID {
		return nil, ErrTargetUnavailable
	}
	l := m.lockFor("start:" + attackerID)
	l.Lock()
	defer l.Unlock()

	var sess *store.Session
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{attackerID, defenderID} {
			active, err := m.store.ActiveSessionTx(tx, id)
			if err != nil {
				return err
			}
			if active != nil {
				if id == attackerID {
					return ErrAlreadyInCombat
				}
				return ErrTargetUnavailable
			}
		}
		if _, _, err := m.store.CharacterTx(tx, defenderID); errors.Is(err, store.ErrNotFound) {
			return ErrTargetUnavailable
		} else if err != nil {
			return err
		}

		sess = &store.Session{
			ID:           uuid.NewString(),
			AttackerID:   attackerID,
			DefenderID:   defenderID,
			DefenderType: store.DefenderPlayer,
			Status:       store.SessionActive,
			StartedAt:    m.now(),
		}
		return m.store.InsertSessionTx(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("duel %s: %s challenged %s", sess.ID, attackerID, defenderID)
	return sess, nil
}

// resolveContext carries one action through the resolution pipeline.
type resolveContext struct {
	tx      *sql.Tx
	now     time.Time
	actorID string
	payload Payload

	session *store.Session
	actor   *store.Character
	race    *store.Race
	spawn   *store.Spawn
	monster *store.Monster
	aff     *store.AffinityRow
	cost    int

	res *ActionResult
}

type resolveStep func(m *Manager, rc *resolveContext) error

// The pipeline order is fixed: every validation runs before any write.
var resolveSteps = []resolveStep{
	(*Manager).loadActor,
	(*Manager).checkTurn,
	(*Manager).checkResources,
	(*Manager).applyAction,
	(*Manager).recordAction,
	(*Manager).advanceTurn,
	(*Manager).settleOutcome,
}

// ResolveAction resolves one player action against an active session. Pacing
// is checked first; a gated action returns a result whose Gate field carries
// the rejection and nothing is written. Actions from one character are
// serialized so the gate's check and commit cannot interleave with a second
// in-flight action from the same character.
func (m *Manager) ResolveAction(ctx context.Context, sessionID, actorID string, p Payload) (*ActionResult, error) {
	al := m.lockFor("actor:" + actorID)
	al.Lock()
	defer al.Unlock()

	if m.gate != nil {
		d, err := m.gate.Check(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !d.CanAct {
			return &ActionResult{Gate: &d, SessionID: sessionID}, nil
		}
	}

	rc := &resolveContext{
		now:     m.now(),
		actorID: actorID,
		payload: p,
		res:     &ActionResult{SessionID: sessionID, ActionType: p.actionType()},
	}
	if err := m.resolveLocked(ctx, sessionID, rc); err != nil {
		return nil, err
	}

	if m.gate != nil {
		d, err := m.gate.Commit(ctx, actorID)
		if err != nil {
			log.Printf("combat %s: cooldown commit failed: %v", sessionID, err)
		} else if !d.CanAct {
			log.Printf("combat %s: cooldown commit rejected after admission (%s)", sessionID, d.Reason)
		}
	}
	m.afterAction(ctx, rc)
	return rc.res, nil
}

// resolveLocked runs the pipeline under the session lock and releases it
// before returning, so the monster's answer can take the lock itself.
func (m *Manager) resolveLocked(ctx context.Context, sessionID string, rc *resolveContext) error {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	return m.store.WithTx(ctx, func(tx *sql.Tx) error {
		rc.tx = tx
		sess, err := m.store.SessionTx(tx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidSession
		}
		if err != nil {
			return err
		}
		if sess.Status != store.SessionActive {
			return ErrInvalidSession
		}
		rc.session = sess
		for _, step := range resolveSteps {
			if err := step(m, rc); err != nil {
				return err
			}
		}
		return nil
	})
}

// afterAction runs post-commit work: leaderboard refresh on victory, the
// monster's answer while the fight goes on.
func (m *Manager) afterAction(ctx context.Context, rc *resolveContext) {
	if rc.res.Victory && rc.res.Progress != nil {
		m.prog.RefreshLeaderboard(ctx, rc.session.AttackerID)
	}
	if rc.res.SessionOver || rc.session.DefenderType != store.DefenderMonster {
		return
	}
	if m.monsterDelay <= 0 {
		mr, err := m.MonsterTurn(ctx, rc.session.ID)
		if err != nil {
			log.Printf("combat %s: monster turn failed: %v", rc.session.ID, err)
			return
		}
		rc.res.Monster = mr
		if mr != nil && mr.PlayerDown {
			rc.res.SessionOver = true
		}
		return
	}
	go func(id string) {
		time.Sleep(m.monsterDelay)
		if _, err := m.MonsterTurn(context.Background(), id); err != nil {
			log.Printf("combat %s: monster turn failed: %v", id, err)
		}
	}(rc.session.ID)
}

func (m *Manager) loadActor(rc *resolveContext) error {
	char, race, err := m.store.CharacterTx(rc.tx, rc.actorID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidSession
	}
	if err != nil {
		return err
	}
	rc.actor, rc.race = char, race

	if rc.session.DefenderType == store.DefenderMonster {
		sp, err := m.store.SpawnTx(rc.tx, rc.session.SpawnID)
		if err != nil {
			return err
		}
		mon, err := m.store.MonsterTx(rc.tx, sp.MonsterID)
		if err != nil {
			return err
		}
		rc.spawn, rc.monster = sp, mon
	}
	return nil
}

func (m *Manager) checkTurn(rc *resolveContext) error {
	sess := rc.session
	if sess.DefenderType == store.DefenderMonster {
		// Only the claiming attacker is party to a monster fight.
		if rc.actorID != sess.AttackerID {
			return ErrInvalidSession
		}
		return nil
	}
	// Duels alternate on turn parity, attacker first.
	expected := sess.AttackerID
	if sess.TurnCount%2 == 1 {
		expected = sess.DefenderID
	}
	if rc.actorID != sess.AttackerID && rc.actorID != sess.DefenderID {
		return ErrInvalidSession
	}
	if rc.actorID != expected {
		return ErrNotYourTurn
	}
	return nil
}

// checkResources validates the payload's kind and, for spells, that the
// actor can pay the affinity-reduced mana cost. Nothing is deducted yet.
func (m *Manager) checkResources(rc *resolveContext) error {
	switch p := rc.payload.(type) {
	case AttackPayload:
		if _, ok := affinity.BaseGain(affinity.CategoryWeapon, p.Weapon); !ok {
			return fmt.Errorf("%w: weapon %q", ErrUnknownKind, p.Weapon)
		}
		row, err := m.store.AffinityTx(rc.tx, rc.actorID, string(affinity.CategoryWeapon), p.Weapon)
		if err != nil {
			return err
		}
		rc.aff = row
	case SpellPayload:
		if _, ok := affinity.BaseGain(affinity.CategoryMagic, p.School); !ok {
			return fmt.Errorf("%w: school %q", ErrUnknownKind, p.School)
		}
		row, err := m.store.AffinityTx(rc.tx, rc.actorID, string(affinity.CategoryMagic), p.School)
		if err != nil {
			return err
		}
		rc.aff = row
		cost := p.ManaCost
		if cost <= 0 {
			cost = balance.DefaultManaCost
		}
		cost = int(float64(cost) * affinity.ManaCostReduction(row.Percentage))
		if cost < 1 {
			cost = 1
		}
		if rc.actor.ManaCurrent < cost {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientMana, cost, rc.actor.ManaCurrent)
		}
		rc.cost = cost
	case FleePayload:
	default:
		return fmt.Errorf("combat: unsupported action %T", rc.payload)
	}
	return nil
}

func (m *Manager) applyAction(rc *resolveContext) error {
	// Racial modifiers count toward the effective attribute in every roll.
	str := rc.actor.Str + rc.race.StrMod
	intl := rc.actor.Int + rc.race.IntMod
	dex := rc.actor.Dex + rc.race.DexMod

	switch p := rc.payload.(type) {
	case AttackPayload:
		dmg := int(float64(str)*balance.AttackStrScale) + randIntn(balance.AttackVariance+1)
		if randFloat64() < balance.BaseCritChance+float64(dex)*balance.CritChancePerDex {
			dmg *= 2
			rc.res.Critical = true
		}
		return m.dealDamage(rc, dmg, affinity.CategoryWeapon, p.Weapon, rc.race.WeaponAffinityBonus)
	case SpellPayload:
		if err := m.store.SpendManaTx(rc.tx, rc.actorID, rc.cost); err != nil {
			return err
		}
		dmg := int(float64(intl)*balance.SpellIntScale) + randIntn(balance.SpellVariance+1)
		return m.dealDamage(rc, dmg, affinity.CategoryMagic, p.School, rc.race.MagicAffinityBonus)
	case FleePayload:
		chance := balance.BaseFleeChance + float64(dex)*balance.FleeChancePerDex
		if randFloat64() < chance {
			rc.res.FleeSuccess = true
		} else {
			rc.res.FleeFailed = true
		}
		return nil
	}
	return nil
}

// dealDamage applies the affinity tier multiplier, damages the defender and
// grows the used affinity, all inside the action's transaction.
func (m *Manager) dealDamage(rc *resolveContext, dmg int, cat affinity.Category, kind string, racialBonus float64) error {
	tier := affinity.TierFor(rc.aff.Percentage)
	dmg = int(float64(dmg) * tier.DamageMult)
	rc.res.Damage = dmg

	var (
		hp  int
		err error
	)
	if rc.session.DefenderType == store.DefenderMonster {
		hp, err = m.store.DamageSpawnTx(rc.tx, rc.spawn.ID, dmg)
	} else {
		target := rc.session.DefenderID
		if rc.actorID == target {
			target = rc.session.AttackerID
		}
		hp, err = m.store.DamageCharacterTx(rc.tx, target, dmg)
	}
	if err != nil {
		return err
	}
	rc.res.TargetHealth = hp
	rc.res.Victory = hp == 0

	base, _ := affinity.BaseGain(cat, kind)
	gain := affinity.Gain(rc.aff.Percentage, base, 1.0, 1+racialBonus)
	next := affinity.Apply(rc.aff.Percentage, gain)
	rc.res.SkillsUnlocked = affinity.SkillsCrossed(kind, rc.aff.Percentage, next)
	rc.res.AffinityKind = kind
	rc.res.AffinityValue = next

	rc.aff.Percentage = next
	rc.aff.LastUsed = rc.now
	return m.store.UpsertAffinityTx(rc.tx, rc.aff)
}

func (m *Manager) recordAction(rc *resolveContext) error {
	return m.store.AppendActionTx(rc.tx, &store.ActionRecord{
		SessionID:  rc.session.ID,
		ActorID:    rc.actorID,
		ActorType:  store.ActorPlayer,
		ActionType: rc.res.ActionType,
		Damage:     rc.res.Damage,
		Critical:   rc.res.Critical,
		At:         rc.now,
	})
}

func (m *Manager) advanceTurn(rc *resolveContext) error {
	return m.store.IncrementTurnTx(rc.tx, rc.session.ID)
}

func (m *Manager) settleOutcome(rc *resolveContext) error {
	switch {
	case rc.res.FleeSuccess:
		if rc.session.DefenderType == store.DefenderMonster {
			if err := m.store.ReleaseSpawnTx(rc.tx, rc.spawn.ID); err != nil {
				return err
			}
		}
		rc.res.SessionOver = true
		return m.store.CompleteSessionTx(rc.tx, rc.session.ID, store.SessionFled, "", 0, 0, rc.now)

	case rc.res.Victory && rc.session.DefenderType == store.DefenderMonster:
		ok, err := m.store.MarkSpawnDeadTx(rc.tx, rc.spawn.ID, rc.now.Add(rc.monster.RespawnDelay))
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidSession
		}
		exp, gold := rc.monster.ExperienceReward, rc.monster.GoldReward
		if err := m.store.CompleteSessionTx(rc.tx, rc.session.ID, store.SessionCompleted, rc.session.AttackerID, exp, gold, rc.now); err != nil {
			return err
		}
		if exp > 0 {
			prog, err := m.prog.AwardExperienceTx(rc.tx, rc.session.AttackerID, exp)
			if err != nil {
				return err
			}
			rc.res.Progress = prog
		}
		if gold > 0 {
			if err := m.store.AddGoldTx(rc.tx, rc.session.AttackerID, gold); err != nil {
				return err
			}
		}
		rc.res.SessionOver = true
		rc.res.ExperienceGained = exp
		rc.res.GoldGained = gold
		return nil

	case rc.res.Victory:
		rc.res.SessionOver = true
		return m.store.CompleteSessionTx(rc.tx, rc.session.ID, store.SessionCompleted, rc.actorID, 0, 0, rc.now)
	}
	return nil
}

// MonsterTurn resolves the monster's answer for an active session. It is a
// no-op returning nil when the session ended before the monster got to act.
func (m *Manager) MonsterTurn(ctx context.Context, sessionID string) (*MonsterResult, error) {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	var out *MonsterResult
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := m.store.SessionTx(tx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidSession
		}
		if err != nil {
			return err
		}
		if sess.Status != store.SessionActive || sess.DefenderType != store.DefenderMonster {
			return nil
		}
		mon, err := m.store.MonsterTx(tx, sess.DefenderID)
		if err != nil {
			return err
		}

		now := m.now()
		dmg := mon.BaseDamage + randIntn(balance.MonsterVariance+1)
		hp, err := m.store.DamageCharacterTx(tx, sess.AttackerID, dmg)
		if err != nil {
			return err
		}
		if err := m.store.AppendActionTx(tx, &store.ActionRecord{
			SessionID:  sess.ID,
			ActorID:    sess.DefenderID,
			ActorType:  store.ActorMonster,
			ActionType: ActionAttack,
			Damage:     dmg,
			At:         now,
		}); err != nil {
			return err
		}
		if err := m.store.IncrementTurnTx(tx, sess.ID); err != nil {
			return err
		}

		out = &MonsterResult{SessionID: sess.ID, Damage: dmg, PlayerHealth: hp}
		if hp == 0 {
			out.PlayerDown = true
			if err := m.store.ReleaseSpawnTx(tx, sess.SpawnID); err != nil {
				return err
			}
			return m.store.CompleteSessionTx(tx, sess.ID, store.SessionCompleted, sess.DefenderID, 0, 0, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetActiveCombat returns the attacker's active session with its recent log,
// or nil when the attacker is idle.
func (m *Manager) GetActiveCombat(ctx context.Context, attackerID string) (*store.Session, []store.ActionRecord, error) {
	sess, err := m.store.ActiveSession(ctx, attackerID)
	if err != nil || sess == nil {
		return nil, nil, err
	}
	actions, err := m.store.Actions(ctx, sess.ID, 10)
	if err != nil {
		return nil, nil, err
	}
	return sess, actions, nil
}

// CombatLog returns up to limit entries for a session, newest first.
func (m *Manager) CombatLog(ctx context.Context, sessionID string, limit int) ([]store.ActionRecord, error) {
	return m.store.Actions(ctx, sessionID, limit)
}

// RunRespawnLoop periodically revives dead spawns whose timer has passed,
// until ctx ends.
func (m *Manager) RunRespawnLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := m.store.ReviveDueSpawns(ctx, now)
			if err != nil {
				log.Printf("respawn sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("respawn sweep: %d spawns revived", n)
			}
		}
	}
}
