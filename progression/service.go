// Package progression turns experience awards into levels, stats, milestone
// rewards and prestige, and maintains the leaderboard projection.
package progression

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"riftbound/server/balance"
	"riftbound/server/curve"
	"riftbound/server/store"
)

var (
	// ErrInvalidAmount rejects non-positive awards and awards above the
	// single-award ceiling.
	ErrInvalidAmount = errors.New("progression: invalid experience amount")
	// ErrCharacterNotFound marks an award against an unknown character.
	ErrCharacterNotFound = errors.New("progression: character not found")
)

const leaderboardCacheKey = "lb:top"

// MilestoneAward is one milestone crossed by an award. Granted is false when
// the milestone had been claimed before, in which case no gold was paid.
type MilestoneAward struct {
	Level   int    `json:"level"`
	Gold    int64  `json:"gold"`
	Label   string `json:"label"`
	Granted bool   `json:"granted"`
}

// AwardResult describes everything one experience award changed.
type AwardResult struct {
	CharacterID       string
	ExperienceAwarded int64
	TotalExperience   *big.Int
	OldLevel          int
	NewLevel          int
	StatGains         curve.StatGains
	Milestones        []MilestoneAward
	PrestigeMarker    string
	UnlockedContent   []string
	HealthMax         int
	ManaMax           int
}

// LeveledUp reports whether the award crossed at least one level.
func (r *AwardResult) LeveledUp() bool { return r.NewLevel > r.OldLevel }

// Service owns all progression writes for a character.
type Service struct {
	store *store.Store
	curve *curve.Calculator
	rdb   *redis.Client
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New builds the service. rdb may be nil; the leaderboard then serves
// straight from SQLite.
func New(st *store.Store, calc *curve.Calculator, rdb *redis.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Service{
		store: st,
		curve: calc,
		rdb:   rdb,
		ttl:   cacheTTL,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *Service) lockFor(characterID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[characterID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[characterID] = l
	}
	return l
}

func raceModifiers(r *store.Race) curve.RaceModifiers {
	return curve.RaceModifiers{
		Str: r.StrMod, Int: r.IntMod, Vit: r.VitMod, Dex: r.DexMod, Wis: r.WisMod,
		ExperienceBonus:     r.ExperienceBonus,
		WeaponAffinityBonus: r.WeaponAffinityBonus,
		MagicAffinityBonus:  r.MagicAffinityBonus,
	}
}

// AwardExperience applies an award in its own transaction, then refreshes
// the leaderboard projection best-effort.
func (s *Service) AwardExperience(ctx context.Context, characterID string, amount int64) (*AwardResult, error) {
	l := s.lockFor(characterID)
	l.Lock()
	defer l.Unlock()

	var res *AwardResult
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = s.AwardExperienceTx(tx, characterID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refreshLeaderboard(ctx, characterID)
	return res, nil
}

// AwardExperienceTx applies an award inside the caller's transaction, so a
// combat victory and its experience land or roll back together. The caller
// serializes writes per character.
func (s *Service) AwardExperienceTx(tx *sql.Tx, characterID string, amount int64) (*AwardResult, error) {
	if amount <= 0 || amount > balance.MaxExperiencePerAward {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	char, race, err := s.store.CharacterTx(tx, characterID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, characterID)
	}
	if err != nil {
		return nil, err
	}
	mods := raceModifiers(race)

	final := int64(math.Floor(float64(amount) * (1 + mods.ExperienceBonus)))
	total := new(big.Int).Add(char.Experience, big.NewInt(final))

	res := &AwardResult{
		CharacterID:       characterID,
		ExperienceAwarded: final,
		TotalExperience:   total,
		OldLevel:          char.Level,
		NewLevel:          char.Level,
		PrestigeMarker:    char.PrestigeMarker,
		HealthMax:         char.HealthMax,
		ManaMax:           char.ManaMax,
	}

	newLevel := s.curve.LevelFromExperience(total)
	if newLevel < char.Level {
		// Totals never shrink, so the derived level cannot drop.
		newLevel = char.Level
	}
	if newLevel == char.Level {
		if err := s.store.SetExperienceTx(tx, characterID, total); err != nil {
			return nil, err
		}
		return res, nil
	}

	res.NewLevel = newLevel
	for l := char.Level + 1; l <= newLevel; l++ {
		res.StatGains.Add(s.curve.StatGainsForLevel(l, mods))
		res.UnlockedContent = append(res.UnlockedContent, curve.UnlocksAtLevel(l)...)

		reward := s.curve.MilestoneRewardFor(l)
		if reward == nil {
			continue
		}
		granted, err := s.store.InsertMilestoneTx(tx, &store.MilestoneGrant{
			CharacterID: characterID,
			Level:       reward.Level,
			Gold:        reward.Gold,
			Special:     reward.Label,
			Phase:       reward.Phase,
			ClaimedAt:   s.now(),
		})
		if err != nil {
			return nil, err
		}
		if granted {
			if err := s.store.AddGoldTx(tx, characterID, reward.Gold); err != nil {
				return nil, err
			}
		}
		res.Milestones = append(res.Milestones, MilestoneAward{
			Level: reward.Level, Gold: reward.Gold, Label: reward.Label, Granted: granted,
		})
	}

	newStr := char.Str + res.StatGains.Str
	newInt := char.Int + res.StatGains.Int
	newVit := char.Vit + res.StatGains.Vit
	newDex := char.Dex + res.StatGains.Dex
	newWis := char.Wis + res.StatGains.Wis

	newHealthMax := balance.HealthBase + newVit*balance.HealthPerVit
	newManaMax := balance.ManaBase + newInt*balance.ManaPerInt
	res.HealthMax = newHealthMax
	res.ManaMax = newManaMax
	res.PrestigeMarker = curve.PrestigeMarker(newLevel)

	upd := store.ProgressUpdate{
		Level:          newLevel,
		Experience:     total,
		Str:            newStr,
		Int:            newInt,
		Vit:            newVit,
		Dex:            newDex,
		Wis:            newWis,
		HealthMax:      newHealthMax,
		ManaMax:        newManaMax,
		PrestigeMarker: res.PrestigeMarker,
	}
	if d := newHealthMax - char.HealthMax; d > 0 {
		upd.HealthRecover = d
	}
	if d := newManaMax - char.ManaMax; d > 0 {
		upd.ManaRecover = d
	}
	if err := s.store.ApplyProgressTx(tx, characterID, upd); err != nil {
		return nil, err
	}
	return res, nil
}

// Info is a read-only progression snapshot.
type Info struct {
	CharacterID    string
	Name           string
	Race           string
	Level          int
	Progress       curve.Progress
	PrestigeMarker string
	NextMilestone  *curve.MilestoneReward
	Unlocked       []string
}

// GetProgressionInfo reports where a character stands on the curve.
func (s *Service) GetProgressionInfo(ctx context.Context, characterID string) (*Info, error) {
	char, race, err := s.store.Character(ctx, characterID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, characterID)
	}
	if err != nil {
		return nil, err
	}

	next := (char.Level/balance.MilestoneInterval + 1) * balance.MilestoneInterval
	return &Info{
		CharacterID:    char.ID,
		Name:           char.Name,
		Race:           race.Name,
		Level:          char.Level,
		Progress:       s.curve.ProgressFor(char.Level, char.Experience),
		PrestigeMarker: char.PrestigeMarker,
		NextMilestone:  s.curve.MilestoneRewardFor(next),
		Unlocked:       curve.ContentUnlocks(char.Level),
	}, nil
}

// MilestoneHistory lists a character's claimed milestones, highest first.
func (s *Service) MilestoneHistory(ctx context.Context, characterID string) ([]store.MilestoneGrant, error) {
	return s.store.Milestones(ctx, characterID)
}

// GetLeaderboard returns the top limit standings, serving the default page
// from redis when available.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("%s:%d", leaderboardCacheKey, limit)

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var cached []store.LeaderboardEntry
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("leaderboard cache read failed: %v", err)
		}
	}

	entries, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(entries); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				log.Printf("leaderboard cache write failed: %v", err)
			}
		}
	}
	return entries, nil
}

// refreshLeaderboard re-projects one character's standing after a committed
// award. Failures are logged and never unwind the award.
func (s *Service) refreshLeaderboard(ctx context.Context, characterID string) {
	char, race, err := s.store.Character(ctx, characterID)
	if err != nil {
		log.Printf("leaderboard refresh: load %s: %v", characterID, err)
		return
	}
	err = s.store.UpsertLeaderboardRow(ctx, &store.LeaderboardEntry{
		CharacterID:    char.ID,
		Name:           char.Name,
		Race:           race.Name,
		Level:          char.Level,
		Experience:     char.Experience,
		PrestigeMarker: char.PrestigeMarker,
	}, s.now())
	if err != nil {
		log.Printf("leaderboard refresh: upsert %s: %v", characterID, err)
		return
	}
	if s.rdb != nil {
		// Drop the common page sizes so the next read re-projects.
		for _, n := range []int{10, 25, 50, 100} {
			key := fmt.Sprintf("%s:%d", leaderboardCacheKey, n)
			if err := s.rdb.Del(ctx, key).Err(); err != nil {
				log.Printf("leaderboard cache invalidate %s: %v", key, err)
			}
		}
	}
}

// RefreshLeaderboard re-projects one character synchronously. Exposed for
// callers that settle experience inside their own transaction.
func (s *Service) RefreshLeaderboard(ctx context.Context, characterID string) {
	s.refreshLeaderboard(ctx, characterID)
}

// RunAffinityDecayLoop periodically decays idle affinities until ctx ends.
func (s *Service) RunAffinityDecayLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.store.DecayIdleAffinities(ctx, balance.AffinityDecayStep, balance.AffinityGracePeriod, now)
			if err != nil {
				log.Printf("affinity decay sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("affinity decay: %d affinities reduced", n)
			}
		}
	}
}
