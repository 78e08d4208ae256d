package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpToNextStrictlyIncreases(t *testing.T) {
	c := New(DefaultConfig())
	prev := c.ExpToNext(1)
	for l := 2; l <= 300; l++ {
		cur := c.ExpToNext(l)
		require.Equal(t, 1, cur.Cmp(prev), "requirement for level %d did not grow", l)
		prev = cur
	}
}

func TestRequirementNeverBelowLinearFloor(t *testing.T) {
	c := New(DefaultConfig())
	for l := 1; l <= 200; l++ {
		floor := big.NewInt(int64(100 * l))
		assert.True(t, c.ExpToNext(l).Cmp(floor) >= 0, "level %d below floor", l)
	}
}

func TestLevelOneRequirement(t *testing.T) {
	c := New(DefaultConfig())
	// base 100 with only the dampener applied at level 1
	assert.Equal(t, int64(105), c.ExpToNext(1).Int64())
	assert.Equal(t, int64(0), c.TotalExpForLevel(1).Int64())
}

func TestSmallAwardKeepsLevelOne(t *testing.T) {
	c := New(DefaultConfig())
	assert.Equal(t, 1, c.LevelFromExperience(big.NewInt(25)))
	assert.Equal(t, 1, c.LevelFromExperience(big.NewInt(0)))
	assert.Equal(t, 1, c.LevelFromExperience(nil))
}

func TestLevelRoundTripAtBoundaries(t *testing.T) {
	c := New(DefaultConfig())
	for _, level := range []int{2, 10, 25, 26, 75, 76, 100, 150, 151} {
		total := c.TotalExpForLevel(level)
		assert.Equal(t, level, c.LevelFromExperience(total), "exact boundary of %d", level)

		under := new(big.Int).Sub(total, big.NewInt(1))
		assert.Equal(t, level-1, c.LevelFromExperience(under), "one below boundary of %d", level)
	}
}

func TestCumulativeMatchesRequirementSum(t *testing.T) {
	c := New(DefaultConfig())
	sum := big.NewInt(0)
	for l := 1; l < 50; l++ {
		sum.Add(sum, c.ExpToNext(l))
		require.Equal(t, 0, sum.Cmp(c.TotalExpForLevel(l+1)), "mismatch at level %d", l+1)
	}
}

func TestPhaseForLevel(t *testing.T) {
	c := New(DefaultConfig())
	cases := []struct {
		level int
		want  string
	}{
		{1, "Novice"},
		{25, "Novice"},
		{26, "Apprentice"},
		{75, "Apprentice"},
		{150, "Journeyman"},
		{500, "Master"},
		{1000, "Champion"},
		{10000, "Transcendent"},
		{10001, "Infinite"},
		{5_000_000, "Infinite"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.PhaseForLevel(tc.level).Name, "level %d", tc.level)
	}
}

func TestSoftCapDampsRequirementGrowth(t *testing.T) {
	cfg := DefaultConfig()
	capped := New(cfg)

	cfg.SoftCaps = nil
	uncapped := New(cfg)

	// Above the first cap the capped curve must demand less per level.
	lvl := 1200
	assert.Equal(t, -1, capped.ExpToNext(lvl).Cmp(uncapped.ExpToNext(lvl)))

	// Below every cap the two curves agree.
	lvl = 900
	assert.Equal(t, 0, capped.ExpToNext(lvl).Cmp(uncapped.ExpToNext(lvl)))
}

func TestProgressFor(t *testing.T) {
	c := New(DefaultConfig())

	p := c.ProgressFor(1, big.NewInt(25))
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "Novice", p.Phase)
	assert.Equal(t, int64(25), p.IntoLevel.Int64())
	assert.Equal(t, int64(105), p.NeededForNext.Int64())
	assert.Equal(t, int64(80), p.Remaining.Int64())
	assert.Equal(t, 23, p.Percent)

	full := c.ProgressFor(1, c.TotalExpForLevel(2))
	assert.Equal(t, 100, full.Percent)
	assert.Equal(t, int64(0), full.Remaining.Int64())
}

func TestCalculatorConcurrentReads(t *testing.T) {
	c := New(DefaultConfig())
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for l := 1; l <= 100; l++ {
				c.ExpToNext(l)
				c.TotalExpForLevel(l)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 100, c.LevelFromExperience(c.TotalExpForLevel(100)))
}
