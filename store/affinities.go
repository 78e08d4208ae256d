package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AffinityRow is one character's proficiency in one weapon kind or magic
// school.
type AffinityRow struct {
	CharacterID string
	Category    string
	Kind        string
	Percentage  float64
	LastUsed    time.Time
}

// AffinityTx loads one affinity row inside a transaction. Returns a zero row
// when the character has never used the kind.
func (s *Store) AffinityTx(tx *sql.Tx, characterID, category, kind string) (*AffinityRow, error) {
	row := AffinityRow{CharacterID: characterID, Category: category, Kind: kind}
	var last int64
	err := tx.QueryRow(`
		SELECT percentage, last_used FROM affinities
		WHERE character_id = ? AND category = ? AND kind = ?`,
		characterID, category, kind,
	).Scan(&row.Percentage, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return &row, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load affinity: %w", err)
	}
	row.LastUsed = fromMillis(last)
	return &row, nil
}

// UpsertAffinityTx writes an affinity value and refreshes its usage time.
func (s *Store) UpsertAffinityTx(tx *sql.Tx, row *AffinityRow) error {
	_, err := tx.Exec(`
		INSERT INTO affinities (character_id, category, kind, percentage, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(character_id, category, kind) DO UPDATE SET
		  percentage = excluded.percentage,
		  last_used = excluded.last_used`,
		row.CharacterID, row.Category, row.Kind, row.Percentage, toMillis(row.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("upsert affinity: %w", err)
	}
	return nil
}

// Affinities lists a character's affinities, strongest first.
func (s *Store) Affinities(ctx context.Context, characterID string) ([]AffinityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, category, kind, percentage, last_used
		FROM affinities WHERE character_id = ?
		ORDER BY percentage DESC, kind ASC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("list affinities: %w", err)
	}
	defer rows.Close()

	var out []AffinityRow
	for rows.Next() {
		var (
			row  AffinityRow
			last int64
		)
		if err := rows.Scan(&row.CharacterID, &row.Category, &row.Kind, &row.Percentage, &last); err != nil {
			return nil, fmt.Errorf("scan affinity: %w", err)
		}
		row.LastUsed = fromMillis(last)
		out = append(out, row)
	}
	return out, rows.Err()
}

// DecayIdleAffinities lowers every affinity idle for at least one grace
// period by step per elapsed period, floored at zero. last_used is advanced
// by the decayed periods so a row is never charged twice for the same idle
// span. Returns how many rows decayed.
func (s *Store) DecayIdleAffinities(ctx context.Context, step float64, grace time.Duration, now time.Time) (int64, error) {
	graceMs := grace.Milliseconds()
	if graceMs <= 0 {
		return 0, fmt.Errorf("decay grace period must be positive")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE affinities
		SET percentage = MAX(0, percentage - ? * ((? - last_used) / ?)),
		    last_used = last_used + ? * ((? - last_used) / ?)
		WHERE last_used > 0 AND percentage > 0 AND (? - last_used) >= ?`,
		step, toMillis(now), graceMs,
		graceMs, toMillis(now), graceMs,
		toMillis(now), graceMs,
	)
	if err != nil {
		return 0, fmt.Errorf("decay affinities: %w", err)
	}
	return res.RowsAffected()
}
