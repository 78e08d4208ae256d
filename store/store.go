// Package store persists the game's authoritative records in SQLite:
// characters, cooldowns, combat sessions, monster spawns, affinities,
// milestone grants and the leaderboard projection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound marks a record that was expected to exist.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps SQLite transactions serialized.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction, rolling back fully on any error so no
// partial mutation is ever observed.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS races (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL,
  str_modifier INTEGER NOT NULL DEFAULT 0,
  int_modifier INTEGER NOT NULL DEFAULT 0,
  vit_modifier INTEGER NOT NULL DEFAULT 0,
  dex_modifier INTEGER NOT NULL DEFAULT 0,
  wis_modifier INTEGER NOT NULL DEFAULT 0,
  experience_bonus REAL NOT NULL DEFAULT 0,
  weapon_affinity_bonus REAL NOT NULL DEFAULT 0,
  magic_affinity_bonus REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS characters (
  id TEXT PRIMARY KEY,
  name TEXT UNIQUE NOT NULL,
  race_id INTEGER NOT NULL REFERENCES races(id),
  level INTEGER NOT NULL DEFAULT 1,
  experience TEXT NOT NULL DEFAULT '0',
  str_base INTEGER NOT NULL DEFAULT 10,
  int_base INTEGER NOT NULL DEFAULT 10,
  vit_base INTEGER NOT NULL DEFAULT 10,
  dex_base INTEGER NOT NULL DEFAULT 10,
  wis_base INTEGER NOT NULL DEFAULT 10,
  health_current INTEGER NOT NULL DEFAULT 100,
  health_max INTEGER NOT NULL DEFAULT 100,
  mana_current INTEGER NOT NULL DEFAULT 50,
  mana_max INTEGER NOT NULL DEFAULT 50,
  gold INTEGER NOT NULL DEFAULT 100,
  prestige_marker TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL DEFAULT 0,
  last_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS player_cooldowns (
  character_id TEXT PRIMARY KEY REFERENCES characters(id) ON DELETE CASCADE,
  last_action_at INTEGER NOT NULL DEFAULT 0,
  cooldown_until INTEGER NOT NULL DEFAULT 0,
  action_count INTEGER NOT NULL DEFAULT 0,
  spam_locked_until INTEGER NOT NULL DEFAULT 0,
  spam_warnings INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS monsters (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  level INTEGER NOT NULL DEFAULT 1,
  max_health INTEGER NOT NULL,
  base_damage INTEGER NOT NULL,
  experience_reward INTEGER NOT NULL DEFAULT 0,
  gold_reward INTEGER NOT NULL DEFAULT 0,
  respawn_delay_sec INTEGER NOT NULL DEFAULT 30
);

CREATE TABLE IF NOT EXISTS monster_spawns (
  id TEXT PRIMARY KEY,
  monster_id TEXT NOT NULL REFERENCES monsters(id),
  zone TEXT NOT NULL DEFAULT '',
  current_health INTEGER NOT NULL,
  max_health INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'alive' CHECK (status IN ('alive','in_combat','dead')),
  respawn_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS combat_sessions (
  id TEXT PRIMARY KEY,
  attacker_id TEXT NOT NULL REFERENCES characters(id),
  defender_id TEXT NOT NULL DEFAULT '',
  defender_type TEXT NOT NULL CHECK (defender_type IN ('monster','player')),
  spawn_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed','fled')),
  turn_count INTEGER NOT NULL DEFAULT 0,
  started_at INTEGER NOT NULL DEFAULT 0,
  ended_at INTEGER NOT NULL DEFAULT 0,
  winner_id TEXT NOT NULL DEFAULT '',
  experience_gained INTEGER NOT NULL DEFAULT 0,
  gold_gained INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_active
  ON combat_sessions (attacker_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS combat_actions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL REFERENCES combat_sessions(id),
  actor_id TEXT NOT NULL,
  actor_type TEXT NOT NULL CHECK (actor_type IN ('player','monster')),
  action_type TEXT NOT NULL,
  damage INTEGER NOT NULL DEFAULT 0,
  critical INTEGER NOT NULL DEFAULT 0,
  dodged INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS affinities (
  character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
  category TEXT NOT NULL CHECK (category IN ('weapon','magic')),
  kind TEXT NOT NULL,
  percentage REAL NOT NULL DEFAULT 0,
  last_used INTEGER NOT NULL DEFAULT 0,
  UNIQUE (character_id, category, kind)
);

CREATE TABLE IF NOT EXISTS milestone_rewards (
  character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
  milestone_level INTEGER NOT NULL,
  gold_reward INTEGER NOT NULL,
  special_reward TEXT NOT NULL DEFAULT '',
  phase TEXT NOT NULL DEFAULT '',
  claimed_at INTEGER NOT NULL DEFAULT 0,
  UNIQUE (character_id, milestone_level)
);

CREATE TABLE IF NOT EXISTS leaderboard_cache (
  character_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  race_name TEXT NOT NULL DEFAULT '',
  level INTEGER NOT NULL,
  experience TEXT NOT NULL DEFAULT '0',
  prestige_marker TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL DEFAULT 0
);
`
