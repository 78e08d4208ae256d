package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Monster is a template shared by its spawns.
type Monster struct {
	ID               string
	Name             string
	Level            int
	MaxHealth        int
	BaseDamage       int
	ExperienceReward int64
	GoldReward       int64
	RespawnDelay     time.Duration
}

// Spawn statuses.
const (
	SpawnAlive    = "alive"
	SpawnInCombat = "in_combat"
	SpawnDead     = "dead"
)

// Spawn is a live occurrence of a monster template.
type Spawn struct {
	ID            string
	MonsterID     string
	Zone          string
	CurrentHealth int
	MaxHealth     int
	Status        string
	RespawnAt     time.Time
}

// Session statuses and defender types.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionFled      = "fled"

	DefenderMonster = "monster"
	DefenderPlayer  = "player"
)

// Session is one bounded engagement between an attacker and a defender.
type Session struct {
	ID           string
	AttackerID   string
	DefenderID   string
	DefenderType string
	SpawnID      string
	Status       string
	TurnCount    int
	StartedAt    time.Time
	EndedAt      time.Time
	WinnerID     string
	ExpGained    int64
	GoldGained   int64
}

// Actor types on the combat log.
const (
	ActorPlayer  = "player"
	ActorMonster = "monster"
)

// ActionRecord is one immutable combat-log entry.
type ActionRecord struct {
	ID         int64
	SessionID  string
	ActorID    string
	ActorType  string
	ActionType string
	Damage     int
	Critical   bool
	Dodged     bool
	At         time.Time
}

// InsertMonster stores a monster template.
func (s *Store) InsertMonster(ctx context.Context, m *Monster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monsters (id, name, level, max_health, base_damage,
		  experience_reward, gold_reward, respawn_delay_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.Name, m.Level, m.MaxHealth, m.BaseDamage,
		m.ExperienceReward, m.GoldReward, int(m.RespawnDelay/time.Second),
	)
	if err != nil {
		return fmt.Errorf("insert monster: %w", err)
	}
	return nil
}

// MonsterTx loads a monster template inside a transaction.
func (s *Store) MonsterTx(tx *sql.Tx, id string) (*Monster, error) {
	var (
		m   Monster
		sec int64
	)
	err := tx.QueryRow(`
		SELECT id, name, level, max_health, base_damage, experience_reward,
		       gold_reward, respawn_delay_sec
		FROM monsters WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Level, &m.MaxHealth, &m.BaseDamage,
		&m.ExperienceReward, &m.GoldReward, &sec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load monster: %w", err)
	}
	m.RespawnDelay = time.Duration(sec) * time.Second
	return &m, nil
}

// InsertSpawn stores a spawn instance.
func (s *Store) InsertSpawn(ctx context.Context, sp *Spawn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monster_spawns (id, monster_id, zone, current_health, max_health, status, respawn_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sp.ID, sp.MonsterID, sp.Zone, sp.CurrentHealth, sp.MaxHealth, sp.Status, toMillis(sp.RespawnAt),
	)
	if err != nil {
		return fmt.Errorf("insert spawn: %w", err)
	}
	return nil
}

func scanSpawn(row rowScanner) (*Spawn, error) {
	var (
		sp Spawn
		at int64
	)
	err := row.Scan(&sp.ID, &sp.MonsterID, &sp.Zone, &sp.CurrentHealth,
		&sp.MaxHealth, &sp.Status, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan spawn: %w", err)
	}
	sp.RespawnAt = fromMillis(at)
	return &sp, nil
}

const spawnByID = `
	SELECT id, monster_id, zone, current_health, max_health, status, respawn_at
	FROM monster_spawns WHERE id = ?`

// Spawn loads a spawn instance.
func (s *Store) Spawn(ctx context.Context, id string) (*Spawn, error) {
	return scanSpawn(s.db.QueryRowContext(ctx, spawnByID, id))
}

// SpawnTx is Spawn inside a transaction.
func (s *Store) SpawnTx(tx *sql.Tx, id string) (*Spawn, error) {
	return scanSpawn(tx.QueryRow(spawnByID, id))
}

// ClaimSpawnTx atomically moves a spawn from alive to in_combat. It reports
// false when the spawn was not alive, so no two sessions can claim it.
func (s *Store) ClaimSpawnTx(tx *sql.Tx, id string) (bool, error) {
	res, err := tx.Exec(
		`UPDATE monster_spawns SET status = ? WHERE id = ? AND status = ?`,
		SpawnInCombat, id, SpawnAlive,
	)
	if err != nil {
		return false, fmt.Errorf("claim spawn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim spawn rows: %w", err)
	}
	return n == 1, nil
}

// DamageSpawnTx applies damage to a spawn, floored at zero, and returns the
// remaining health.
func (s *Store) DamageSpawnTx(tx *sql.Tx, id string, damage int) (int, error) {
	if _, err := tx.Exec(
		`UPDATE monster_spawns SET current_health = MAX(0, current_health - ?) WHERE id = ?`,
		damage, id,
	); err != nil {
		return 0, fmt.Errorf("damage spawn: %w", err)
	}
	var hp int
	err := tx.QueryRow(`SELECT current_health FROM monster_spawns WHERE id = ?`, id).Scan(&hp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read spawn health: %w", err)
	}
	return hp, nil
}

// MarkSpawnDeadTx moves a claimed spawn to dead with a scheduled respawn.
// The conditional guard makes a victory idempotent: only the session holding
// the claim performs the transition.
func (s *Store) MarkSpawnDeadTx(tx *sql.Tx, id string, respawnAt time.Time) (bool, error) {
	res, err := tx.Exec(
		`UPDATE monster_spawns SET status = ?, respawn_at = ? WHERE id = ? AND status = ?`,
		SpawnDead, toMillis(respawnAt), id, SpawnInCombat,
	)
	if err != nil {
		return false, fmt.Errorf("mark spawn dead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark spawn dead rows: %w", err)
	}
	return n == 1, nil
}

// ReleaseSpawnTx returns a claimed spawn to the world (flee, defeat of the
// player).
func (s *Store) ReleaseSpawnTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(
		`UPDATE monster_spawns SET status = ? WHERE id = ? AND status = ?`,
		SpawnAlive, id, SpawnInCombat,
	)
	if err != nil {
		return fmt.Errorf("release spawn: %w", err)
	}
	return nil
}

// ReviveDueSpawns brings dead spawns whose respawn time has passed back to
// life at full health. Returns how many were revived.
func (s *Store) ReviveDueSpawns(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monster_spawns
		SET status = ?, current_health = max_health, respawn_at = 0
		WHERE status = ? AND respawn_at > 0 AND respawn_at <= ?`,
		SpawnAlive, SpawnDead, toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("revive spawns: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess           Session
		started, ended int64
	)
	err := row.Scan(&sess.ID, &sess.AttackerID, &sess.DefenderID, &sess.DefenderType,
		&sess.SpawnID, &sess.Status, &sess.TurnCount, &started, &ended,
		&sess.WinnerID, &sess.ExpGained, &sess.GoldGained)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = fromMillis(started)
	sess.EndedAt = fromMillis(ended)
	return &sess, nil
}

const sessionColumns = `
	id, attacker_id, defender_id, defender_type, spawn_id, status, turn_count,
	started_at, ended_at, winner_id, experience_gained, gold_gained`

// InsertSessionTx stores a new active session.
func (s *Store) InsertSessionTx(tx *sql.Tx, sess *Session) error {
	_, err := tx.Exec(`
		INSERT INTO combat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AttackerID, sess.DefenderID, sess.DefenderType, sess.SpawnID,
		sess.Status, sess.TurnCount, toMillis(sess.StartedAt), toMillis(sess.EndedAt),
		sess.WinnerID, sess.ExpGained, sess.GoldGained,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionTx loads a session by id inside a transaction.
func (s *Store) SessionTx(tx *sql.Tx, id string) (*Session, error) {
	return scanSession(tx.QueryRow(
		`SELECT`+sessionColumns+` FROM combat_sessions WHERE id = ?`, id))
}

// ActiveSessionTx returns the attacker's active session, or nil.
func (s *Store) ActiveSessionTx(tx *sql.Tx, attackerID string) (*Session, error) {
	sess, err := scanSession(tx.QueryRow(
		`SELECT`+sessionColumns+` FROM combat_sessions WHERE attacker_id = ? AND status = ?`,
		attackerID, SessionActive))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// ActiveSession returns the attacker's active session, or nil.
func (s *Store) ActiveSession(ctx context.Context, attackerID string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT`+sessionColumns+` FROM combat_sessions WHERE attacker_id = ? AND status = ?`,
		attackerID, SessionActive))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// IncrementTurnTx bumps a session's turn counter.
func (s *Store) IncrementTurnTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`UPDATE combat_sessions SET turn_count = turn_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment turn: %w", err)
	}
	return nil
}

// CompleteSessionTx terminates a session exactly once.
func (s *Store) CompleteSessionTx(tx *sql.Tx, id, status, winnerID string, exp, gold int64, endedAt time.Time) error {
	res, err := tx.Exec(`
		UPDATE combat_sessions
		SET status = ?, winner_id = ?, experience_gained = ?, gold_gained = ?, ended_at = ?
		WHERE id = ? AND status = ?`,
		status, winnerID, exp, gold, toMillis(endedAt), id, SessionActive,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendActionTx writes one combat-log entry.
func (s *Store) AppendActionTx(tx *sql.Tx, rec *ActionRecord) error {
	_, err := tx.Exec(`
		INSERT INTO combat_actions (session_id, actor_id, actor_type, action_type,
		  damage, critical, dodged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ActorID, rec.ActorType, rec.ActionType,
		rec.Damage, rec.Critical, rec.Dodged, toMillis(rec.At),
	)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// Actions returns up to limit log entries for a session, newest first.
func (s *Store) Actions(ctx context.Context, sessionID string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, actor_id, actor_type, action_type, damage, critical, dodged, created_at
		FROM combat_actions WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			rec ActionRecord
			at  int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ActorID, &rec.ActorType,
			&rec.ActionType, &rec.Damage, &rec.Critical, &rec.Dodged, &at); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.At = fromMillis(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
