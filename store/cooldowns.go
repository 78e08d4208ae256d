package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CooldownRecord tracks one actor's action gating state. At most one record
// per actor; zero times mean "not set".
type CooldownRecord struct {
	CharacterID     string
	LastActionAt    time.Time
	CooldownUntil   time.Time
	ActionCount     int
	SpamLockedUntil time.Time
	SpamWarnings    int
}

// Cooldown loads an actor's record, returning a zero record when none exists
// yet.
func (s *Store) Cooldown(ctx context.Context, characterID string) (*CooldownRecord, error) {
	rec := CooldownRecord{CharacterID: characterID}
	var last, cd, locked int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_action_at, cooldown_until, action_count, spam_locked_until, spam_warnings
		FROM player_cooldowns WHERE character_id = ?`, characterID,
	).Scan(&last, &cd, &rec.ActionCount, &locked, &rec.SpamWarnings)
	if errors.Is(err, sql.ErrNoRows) {
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cooldown: %w", err)
	}
	rec.LastActionAt = fromMillis(last)
	rec.CooldownUntil = fromMillis(cd)
	rec.SpamLockedUntil = fromMillis(locked)
	return &rec, nil
}

// SaveCooldown upserts an actor's record.
func (s *Store) SaveCooldown(ctx context.Context, rec *CooldownRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_cooldowns (
		  character_id, last_action_at, cooldown_until, action_count,
		  spam_locked_until, spam_warnings
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
		  last_action_at = excluded.last_action_at,
		  cooldown_until = excluded.cooldown_until,
		  action_count = excluded.action_count,
		  spam_locked_until = excluded.spam_locked_until,
		  spam_warnings = excluded.spam_warnings`,
		rec.CharacterID, toMillis(rec.LastActionAt), toMillis(rec.CooldownUntil),
		rec.ActionCount, toMillis(rec.SpamLockedUntil), rec.SpamWarnings,
	)
	if err != nil {
		return fmt.Errorf("save cooldown: %w", err)
	}
	return nil
}
