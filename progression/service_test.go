package progression

import (
	"context"
	"database/sql"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftbound/server/curve"
	"riftbound/server/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "prog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Seed(context.Background()))

	return New(st, curve.New(curve.DefaultConfig()), nil, 0), st
}

func createCharacter(t *testing.T, st *store.Store, id, name, raceName string, level int) {
	t.Helper()
	race, err := st.RaceByName(context.Background(), raceName)
	require.NoError(t, err)
	require.NoError(t, st.CreateCharacter(context.Background(), &store.Character{
		ID: id, Name: name, RaceID: race.ID, Level: level,
		Str: 10, Int: 10, Vit: 10, Dex: 10, Wis: 10,
		HealthCurrent: 150, HealthMax: 150, ManaCurrent: 80, ManaMax: 80,
		Gold: 100,
	}))
}

func TestAwardRejectsInvalidAmounts(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 1)

	for _, amount := range []int64{0, -5, 1_000_001} {
		_, err := svc.AwardExperience(ctx, "c1", amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}
}

func TestAwardUnknownCharacter(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AwardExperience(context.Background(), "ghost", 100)
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

func TestSmallAwardAccumulatesWithoutLevelUp(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 1)

	res, err := svc.AwardExperience(ctx, "c1", 25)
	require.NoError(t, err)
	assert.False(t, res.LeveledUp())
	assert.Equal(t, int64(25), res.ExperienceAwarded)
	assert.Equal(t, 1, res.NewLevel)
	assert.Zero(t, res.StatGains.Total())

	char, _, err := st.Character(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, char.Level)
	assert.Equal(t, int64(25), char.Experience.Int64())
}

func TestLevelUpGrantsStatsAndPools(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 1)

	// 105 is exactly the level 2 boundary.
	res, err := svc.AwardExperience(ctx, "c1", 105)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp())
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, curve.StatGains{Str: 2, Int: 2, Vit: 2, Dex: 2, Wis: 2}, res.StatGains)

	char, _, err := st.Character(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, char.Level)
	assert.Equal(t, 12, char.Vit)
	assert.Equal(t, 50+12*10, char.HealthMax)
	assert.Equal(t, 30+12*5, char.ManaMax)
	// The gained headroom recovers the pools.
	assert.Equal(t, char.HealthMax, char.HealthCurrent)
}

func TestRacialExperienceBonusFloored(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Scale", "Dragonborn", 1)

	res, err := svc.AwardExperience(ctx, "c1", 33)
	require.NoError(t, err)
	// 33 * 1.05 = 34.65, floored.
	assert.Equal(t, int64(34), res.ExperienceAwarded)
}

func TestMilestoneGrantedOnceWithGoldAndPrestige(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 99)

	calc := curve.New(curve.DefaultConfig())
	boundary := calc.TotalExpForLevel(100)
	start := new(big.Int).Sub(boundary, big.NewInt(10))
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.SetExperienceTx(tx, "c1", start)
	}))

	res, err := svc.AwardExperience(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, 100, res.NewLevel)
	require.Len(t, res.Milestones, 1)
	assert.True(t, res.Milestones[0].Granted)
	assert.Equal(t, int64(1500), res.Milestones[0].Gold)
	assert.Equal(t, "bronze", res.PrestigeMarker)
	assert.Contains(t, res.UnlockedContent, "Frozen Tundra")

	char, _, err := st.Character(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(100+1500), char.Gold)
	assert.Equal(t, "bronze", char.PrestigeMarker)

	history, err := svc.MilestoneHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 100, history[0].Level)
}

func TestAwardRefreshesLeaderboard(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 1)
	createCharacter(t, st, "c2", "Borin", "Dwarf", 1)

	_, err := svc.AwardExperience(ctx, "c1", 200)
	require.NoError(t, err)
	_, err = svc.AwardExperience(ctx, "c2", 50)
	require.NoError(t, err)

	top, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Aria", top[0].Name)
	assert.Equal(t, 1, top[0].Rank)
}

func TestGetProgressionInfo(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	createCharacter(t, st, "c1", "Aria", "Human", 1)

	_, err := svc.AwardExperience(ctx, "c1", 25)
	require.NoError(t, err)

	info, err := svc.GetProgressionInfo(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Level)
	assert.Equal(t, "Novice", info.Progress.Phase)
	assert.Equal(t, int64(25), info.Progress.IntoLevel.Int64())
	require.NotNil(t, info.NextMilestone)
	assert.Equal(t, 100, info.NextMilestone.Level)
}
