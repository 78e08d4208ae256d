// Package cooldown enforces server-side action pacing: a fixed global
// cooldown between actions, latency compensation so clients on slow links
// are not punished, and a spam lock for clients that hammer the window.
package cooldown

import (
	"context"
	"sync"
	"time"

	"riftbound/server/balance"
	"riftbound/server/store"
)

// Rejection reasons reported on a Decision.
const (
	ReasonCooldown = "cooldown"
	ReasonSpamLock = "spam_lock"
)

// Decision is the outcome of a gate check.
type Decision struct {
	CanAct     bool
	Reason     string
	RetryAfter time.Duration
}

// Config tunes the gate.
type Config struct {
	GlobalCooldown      time.Duration
	LatencyCompensation time.Duration
	SpamWindow          time.Duration
	MaxActionsPerWindow int
	SpamLockDuration    time.Duration
}

// DefaultConfig returns the standard pacing values.
func DefaultConfig() Config {
	return Config{
		GlobalCooldown:      balance.GlobalCooldown,
		LatencyCompensation: balance.LatencyCompensation,
		SpamWindow:          balance.SpamWindow,
		MaxActionsPerWindow: balance.MaxActionsPerWindow,
		SpamLockDuration:    balance.SpamLockDuration,
	}
}

// Gate checks and commits action timestamps against persisted cooldown state.
// All timing decisions happen here, never on the client.
type Gate struct {
	store *store.Store
	cfg   Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New builds a gate over the store. A zero-value Config gets the defaults;
// any populated Config is taken as given, so a zero global cooldown is a
// valid deliberate setting.
func New(st *store.Store, cfg Config) *Gate {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Gate{
		store: st,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (g *Gate) lockFor(characterID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[characterID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[characterID] = l
	}
	return l
}

// effectiveCooldown is the global cooldown minus latency compensation,
// never negative.
func (g *Gate) effectiveCooldown() time.Duration {
	d := g.cfg.GlobalCooldown - g.cfg.LatencyCompensation
	if d < 0 {
		d = 0
	}
	return d
}

// Check reports whether the character may act right now. A burst past the
// window limit arms the spam lock here, so the rejected attempt itself pays
// the penalty.
func (g *Gate) Check(ctx context.Context, characterID string) (Decision, error) {
	l := g.lockFor(characterID)
	l.Lock()
	defer l.Unlock()
	return g.check(ctx, characterID)
}

func (g *Gate) check(ctx context.Context, characterID string) (Decision, error) {
	rec, err := g.store.Cooldown(ctx, characterID)
	if err != nil {
		return Decision{}, err
	}
	now := g.now()
	if rec.SpamLockedUntil.After(now) {
		return Decision{Reason: ReasonSpamLock, RetryAfter: rec.SpamLockedUntil.Sub(now)}, nil
	}
	if rec.CooldownUntil.After(now) {
		return Decision{Reason: ReasonCooldown, RetryAfter: rec.CooldownUntil.Sub(now)}, nil
	}
	if !rec.LastActionAt.IsZero() &&
		now.Sub(rec.LastActionAt) < g.cfg.SpamWindow &&
		rec.ActionCount >= g.cfg.MaxActionsPerWindow {
		rec.CharacterID = characterID
		rec.SpamLockedUntil = now.Add(g.cfg.SpamLockDuration)
		rec.SpamWarnings++
		rec.ActionCount = 0
		if err := g.store.SaveCooldown(ctx, rec); err != nil {
			return Decision{}, err
		}
		return Decision{Reason: ReasonSpamLock, RetryAfter: g.cfg.SpamLockDuration}, nil
	}
	return Decision{CanAct: true}, nil
}

// Commit records an action the character just performed. It re-checks the
// gate under the per-character lock so two concurrent callers cannot both
// pass, then advances the cooldown and the spam window.
func (g *Gate) Commit(ctx context.Context, characterID string) (Decision, error) {
	l := g.lockFor(characterID)
	l.Lock()
	defer l.Unlock()

	d, err := g.check(ctx, characterID)
	if err != nil || !d.CanAct {
		return d, err
	}

	rec, err := g.store.Cooldown(ctx, characterID)
	if err != nil {
		return Decision{}, err
	}
	now := g.now()

	// A gap longer than the window opens a fresh one.
	if rec.LastActionAt.IsZero() || now.Sub(rec.LastActionAt) >= g.cfg.SpamWindow {
		rec.ActionCount = 0
	}
	rec.ActionCount++
	rec.LastActionAt = now
	rec.CooldownUntil = now.Add(g.effectiveCooldown())

	rec.CharacterID = characterID
	if err := g.store.SaveCooldown(ctx, rec); err != nil {
		return Decision{}, err
	}
	return Decision{CanAct: true}, nil
}
