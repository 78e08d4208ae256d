package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"
)

// MilestoneGrant is one claimed milestone reward.
type MilestoneGrant struct {
	CharacterID string
	Level       int
	Gold        int64
	Special     string
	Phase       string
	ClaimedAt   time.Time
}

// InsertMilestoneTx records a milestone grant. The unique constraint makes
// the grant idempotent: it reports false when the milestone was already
// claimed, and no gold is paid twice.
func (s *Store) InsertMilestoneTx(tx *sql.Tx, g *MilestoneGrant) (bool, error) {
	res, err := tx.Exec(`
		INSERT INTO milestone_rewards (character_id, milestone_level, gold_reward, special_reward, phase, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id, milestone_level) DO NOTHING`,
		g.CharacterID, g.Level, g.Gold, g.Special, g.Phase, toMillis(g.ClaimedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert milestone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert milestone rows: %w", err)
	}
	return n == 1, nil
}

// Milestones lists a character's claimed milestones, highest first.
func (s *Store) Milestones(ctx context.Context, characterID string) ([]MilestoneGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, milestone_level, gold_reward, special_reward, phase, claimed_at
		FROM milestone_rewards WHERE character_id = ?
		ORDER BY milestone_level DESC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []MilestoneGrant
	for rows.Next() {
		var (
			g  MilestoneGrant
			at int64
		)
		if err := rows.Scan(&g.CharacterID, &g.Level, &g.Gold, &g.Special, &g.Phase, &at); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		g.ClaimedAt = fromMillis(at)
		out = append(out, g)
	}
	return out, rows.Err()
}

// LeaderboardEntry is one projected standing.
type LeaderboardEntry struct {
	Rank           int      `json:"rank"`
	CharacterID    string   `json:"characterId"`
	Name           string   `json:"name"`
	Race           string   `json:"race"`
	Level          int      `json:"level"`
	Experience     *big.Int `json:"-"`
	PrestigeMarker string   `json:"prestigeMarker,omitempty"`
}

// UpsertLeaderboardRow refreshes one character's projected standing.
func (s *Store) UpsertLeaderboardRow(ctx context.Context, e *LeaderboardEntry, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_cache (character_id, name, race_name, level, experience, prestige_marker, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
		  name = excluded.name,
		  race_name = excluded.race_name,
		  level = excluded.level,
		  experience = excluded.experience,
		  prestige_marker = excluded.prestige_marker,
		  updated_at = excluded.updated_at`,
		e.CharacterID, e.Name, e.Race, e.Level, e.Experience.String(), e.PrestigeMarker, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard row: %w", err)
	}
	return nil
}

// Leaderboard returns the top standings. Experience is stored as unpadded
// decimal text, so ordering by length before value yields numeric order
// without parsing.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, name, race_name, level, experience, prestige_marker
		FROM leaderboard_cache
		ORDER BY level DESC, LENGTH(experience) DESC, experience DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var (
			e   LeaderboardEntry
			exp string
		)
		if err := rows.Scan(&e.CharacterID, &e.Name, &e.Race, &e.Level, &exp, &e.PrestigeMarker); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		n, err := parseExperience(exp)
		if err != nil {
			return nil, err
		}
		e.Experience = n
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}
