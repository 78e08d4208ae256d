package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Race carries the per-race growth modifiers.
type Race struct {
	ID   int64
	Name string

	StrMod int
	IntMod int
	VitMod int
	DexMod int
	WisMod int

	ExperienceBonus     float64
	WeaponAffinityBonus float64
	MagicAffinityBonus  float64
}

// Character is an actor's persisted state. Experience is exact and unbounded.
type Character struct {
	ID     string
	Name   string
	RaceID int64

	Level      int
	Experience *big.Int

	Str int
	Int int
	Vit int
	Dex int
	Wis int

	HealthCurrent int
	HealthMax     int
	ManaCurrent   int
	ManaMax       int

	Gold           int64
	PrestigeMarker string
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseExperience(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed experience value %q", s)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const characterColumns = `
  c.id, c.name, c.race_id, c.level, c.experience,
  c.str_base, c.int_base, c.vit_base, c.dex_base, c.wis_base,
  c.health_current, c.health_max, c.mana_current, c.mana_max,
  c.gold, c.prestige_marker,
  r.id, r.name, r.str_modifier, r.int_modifier, r.vit_modifier,
  r.dex_modifier, r.wis_modifier, r.experience_bonus,
  r.weapon_affinity_bonus, r.magic_affinity_bonus`

func scanCharacter(row rowScanner) (*Character, *Race, error) {
	var (
		c   Character
		r   Race
		exp string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.RaceID, &c.Level, &exp,
		&c.Str, &c.Int, &c.Vit, &c.Dex, &c.Wis,
		&c.HealthCurrent, &c.HealthMax, &c.ManaCurrent, &c.ManaMax,
		&c.Gold, &c.PrestigeMarker,
		&r.ID, &r.Name, &r.StrMod, &r.IntMod, &r.VitMod,
		&r.DexMod, &r.WisMod, &r.ExperienceBonus,
		&r.WeaponAffinityBonus, &r.MagicAffinityBonus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan character: %w", err)
	}
	if c.Experience, err = parseExperience(exp); err != nil {
		return nil, nil, err
	}
	return &c, &r, nil
}

const characterByID = `SELECT` + characterColumns + `
  FROM characters c JOIN races r ON c.race_id = r.id WHERE c.id = ?`

// Character loads a character and its race.
func (s *Store) Character(ctx context.Context, id string) (*Character, *Race, error) {
	return scanCharacter(s.db.QueryRowContext(ctx, characterByID, id))
}

// CharacterTx is Character inside a transaction.
func (s *Store) CharacterTx(tx *sql.Tx, id string) (*Character, *Race, error) {
	return scanCharacter(tx.QueryRow(characterByID, id))
}

// CreateCharacter inserts a fresh character row.
func (s *Store) CreateCharacter(ctx context.Context, c *Character) error {
	exp := "0"
	if c.Experience != nil {
		exp = c.Experience.String()
	}
	now := toMillis(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO characters (
		  id, name, race_id, level, experience,
		  str_base, int_base, vit_base, dex_base, wis_base,
		  health_current, health_max, mana_current, mana_max,
		  gold, prestige_marker, created_at, last_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.RaceID, c.Level, exp,
		c.Str, c.Int, c.Vit, c.Dex, c.Wis,
		c.HealthCurrent, c.HealthMax, c.ManaCurrent, c.ManaMax,
		c.Gold, c.PrestigeMarker, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

// ProgressUpdate is the level-up write applied by the progression service.
type ProgressUpdate struct {
	Level          int
	Experience     *big.Int
	Str            int
	Int            int
	Vit            int
	Dex            int
	Wis            int
	HealthMax      int
	ManaMax        int
	HealthRecover  int
	ManaRecover    int
	PrestigeMarker string
}

// ApplyProgressTx persists a progression update. Current pools rise by the
// recovered headroom but never past the new maxima.
func (s *Store) ApplyProgressTx(tx *sql.Tx, id string, u ProgressUpdate) error {
	_, err := tx.Exec(`
		UPDATE characters SET
		  level = ?,
		  experience = ?,
		  str_base = ?, int_base = ?, vit_base = ?, dex_base = ?, wis_base = ?,
		  health_max = ?, mana_max = ?,
		  health_current = MIN(health_current + ?, ?),
		  mana_current = MIN(mana_current + ?, ?),
		  prestige_marker = ?,
		  last_active = ?
		WHERE id = ?`,
		u.Level, u.Experience.String(),
		u.Str, u.Int, u.Vit, u.Dex, u.Wis,
		u.HealthMax, u.ManaMax,
		u.HealthRecover, u.HealthMax,
		u.ManaRecover, u.ManaMax,
		u.PrestigeMarker,
		toMillis(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("apply progress: %w", err)
	}
	return nil
}

// SetExperienceTx updates only the experience total (an award with no
// level-up).
func (s *Store) SetExperienceTx(tx *sql.Tx, id string, total *big.Int) error {
	_, err := tx.Exec(
		`UPDATE characters SET experience = ?, last_active = ? WHERE id = ?`,
		total.String(), toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set experience: %w", err)
	}
	return nil
}

// AddGoldTx credits gold to a character.
func (s *Store) AddGoldTx(tx *sql.Tx, id string, delta int64) error {
	_, err := tx.Exec(`UPDATE characters SET gold = gold + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("add gold: %w", err)
	}
	return nil
}

// DamageCharacterTx applies damage to a character's health pool, floored at
// zero, and returns the remaining health.
func (s *Store) DamageCharacterTx(tx *sql.Tx, id string, damage int) (int, error) {
	if _, err := tx.Exec(
		`UPDATE characters SET health_current = MAX(0, health_current - ?) WHERE id = ?`,
		damage, id,
	); err != nil {
		return 0, fmt.Errorf("damage character: %w", err)
	}
	var hp int
	err := tx.QueryRow(`SELECT health_current FROM characters WHERE id = ?`, id).Scan(&hp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read character health: %w", err)
	}
	return hp, nil
}

// SpendManaTx deducts a mana cost, floored at zero.
func (s *Store) SpendManaTx(tx *sql.Tx, id string, cost int) error {
	_, err := tx.Exec(
		`UPDATE characters SET mana_current = MAX(0, mana_current - ?) WHERE id = ?`,
		cost, id,
	)
	if err != nil {
		return fmt.Errorf("spend mana: %w", err)
	}
	return nil
}

// RaceByName looks a race up by name.
func (s *Store) RaceByName(ctx context.Context, name string) (*Race, error) {
	var r Race
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, str_modifier, int_modifier, vit_modifier, dex_modifier,
		       wis_modifier, experience_bonus, weapon_affinity_bonus, magic_affinity_bonus
		FROM races WHERE name = ?`, name,
	).Scan(
		&r.ID, &r.Name, &r.StrMod, &r.IntMod, &r.VitMod, &r.DexMod,
		&r.WisMod, &r.ExperienceBonus, &r.WeaponAffinityBonus, &r.MagicAffinityBonus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("race by name: %w", err)
	}
	return &r, nil
}
