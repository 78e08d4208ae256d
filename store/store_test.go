package store

import (
	"context"
	"database/sql"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Seed(context.Background()))
	return st
}

func createTestCharacter(t *testing.T, st *Store, id, name string) {
	t.Helper()
	race, err := st.RaceByName(context.Background(), "Human")
	require.NoError(t, err)
	require.NoError(t, st.CreateCharacter(context.Background(), &Character{
		ID: id, Name: name, RaceID: race.ID, Level: 1,
		Str: 10, Int: 10, Vit: 10, Dex: 10, Wis: 10,
		HealthCurrent: 100, HealthMax: 100, ManaCurrent: 50, ManaMax: 50,
		Gold: 100,
	}))
}

func TestSeedIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Seed(context.Background()))

	race, err := st.RaceByName(context.Background(), "Dwarf")
	require.NoError(t, err)
	assert.Equal(t, 3, race.StrMod)
	assert.Equal(t, 0.2, race.WeaponAffinityBonus)
}

func TestCharacterRoundTripWithHugeExperience(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")

	// Well past 64-bit range.
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.SetExperienceTx(tx, "c1", huge)
	}))

	char, race, err := st.Character(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, char.Experience.Cmp(huge))
	assert.Equal(t, "Human", race.Name)

	_, _, err = st.Character(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimSpawnOnlyOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := st.ClaimSpawnTx(tx, "spawn-goblin-1")
		require.NoError(t, err)
		assert.True(t, ok, "first claim wins")

		ok, err = st.ClaimSpawnTx(tx, "spawn-goblin-1")
		require.NoError(t, err)
		assert.False(t, ok, "second claim loses")
		return nil
	}))

	sp, err := st.Spawn(ctx, "spawn-goblin-1")
	require.NoError(t, err)
	assert.Equal(t, SpawnInCombat, sp.Status)
}

func TestReviveDueSpawns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := st.ClaimSpawnTx(tx, "spawn-wolf-1")
		require.NoError(t, err)
		require.True(t, ok)
		if _, err := st.DamageSpawnTx(tx, "spawn-wolf-1", 1000); err != nil {
			return err
		}
		ok, err = st.MarkSpawnDeadTx(tx, "spawn-wolf-1", now.Add(-time.Second))
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	}))

	n, err := st.ReviveDueSpawns(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sp, err := st.Spawn(ctx, "spawn-wolf-1")
	require.NoError(t, err)
	assert.Equal(t, SpawnAlive, sp.Status)
	assert.Equal(t, sp.MaxHealth, sp.CurrentHealth)

	// Nothing else is due.
	n, err = st.ReviveDueSpawns(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkSpawnDeadRequiresClaim(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.WithTx(context.Background(), func(tx *sql.Tx) error {
		ok, err := st.MarkSpawnDeadTx(tx, "spawn-spider-1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok, "an unclaimed spawn cannot die")
		return nil
	}))
}

func TestMilestoneGrantIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")

	grant := &MilestoneGrant{
		CharacterID: "c1", Level: 100, Gold: 1500,
		Special: "Journeyman Phase Achievement", Phase: "Journeyman",
		ClaimedAt: time.Now(),
	}
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		granted, err := st.InsertMilestoneTx(tx, grant)
		require.NoError(t, err)
		assert.True(t, granted)

		granted, err = st.InsertMilestoneTx(tx, grant)
		require.NoError(t, err)
		assert.False(t, granted, "replay must not grant twice")
		return nil
	}))

	got, err := st.Milestones(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Level)
	assert.Equal(t, int64(1500), got[0].Gold)
}

func TestLeaderboardOrdersByLevelThenExperience(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	big1, _ := new(big.Int).SetString("99999999999999999999", 10)
	big2, _ := new(big.Int).SetString("100000000000000000000", 10)

	rows := []LeaderboardEntry{
		{CharacterID: "a", Name: "A", Race: "Human", Level: 50, Experience: big.NewInt(7)},
		{CharacterID: "b", Name: "B", Race: "Elf", Level: 120, Experience: big1},
		{CharacterID: "c", Name: "C", Race: "Orc", Level: 120, Experience: big2},
		{CharacterID: "d", Name: "D", Race: "Gnome", Level: 119, Experience: big.NewInt(5)},
	}
	for i := range rows {
		require.NoError(t, st.UpsertLeaderboardRow(ctx, &rows[i], now))
	}

	got, err := st.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].CharacterID, "longer decimal string is the larger total")
	assert.Equal(t, "b", got[1].CharacterID)
	assert.Equal(t, "d", got[2].CharacterID)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 3, got[2].Rank)
}

func TestAffinityUpsertAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")
	now := time.Now()

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := st.AffinityTx(tx, "c1", "weapon", "sword")
		require.NoError(t, err)
		assert.Zero(t, row.Percentage, "unknown kind starts at zero")

		row.Percentage = 12.5
		row.LastUsed = now
		return st.UpsertAffinityTx(tx, row)
	}))

	rows, err := st.Affinities(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12.5, rows[0].Percentage)
}

func TestDecayIdleAffinities(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")
	now := time.Now().Truncate(time.Millisecond)
	week := 7 * 24 * time.Hour

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.UpsertAffinityTx(tx, &AffinityRow{
			CharacterID: "c1", Category: "weapon", Kind: "sword",
			Percentage: 40, LastUsed: now.Add(-15 * 24 * time.Hour),
		})
	}))

	n, err := st.DecayIdleAffinities(ctx, 0.1, week, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := st.Affinities(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 39.8, rows[0].Percentage, 1e-9, "two idle weeks cost two steps")

	// Running the sweep again within the same period charges nothing more.
	_, err = st.DecayIdleAffinities(ctx, 0.1, week, now)
	require.NoError(t, err)
	rows, err = st.Affinities(ctx, "c1")
	require.NoError(t, err)
	assert.InDelta(t, 39.8, rows[0].Percentage, 1e-9)
}

func TestCooldownZeroRecordWhenAbsent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")

	rec, err := st.Cooldown(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.LastActionAt.IsZero())
	assert.Zero(t, rec.ActionCount)

	rec.CharacterID = "c1"
	rec.ActionCount = 3
	rec.LastActionAt = time.Now().Truncate(time.Millisecond)
	require.NoError(t, st.SaveCooldown(ctx, rec))

	got, err := st.Cooldown(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ActionCount)
	assert.True(t, got.LastActionAt.Equal(rec.LastActionAt))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	createTestCharacter(t, st, "c1", "Aria")

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.AddGoldTx(tx, "c1", 500); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	char, _, err := st.Character(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), char.Gold, "failed transaction must leave gold untouched")
}
