package affinity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseGainKnownKinds(t *testing.T) {
	g, ok := BaseGain(CategoryWeapon, "sword")
	assert.True(t, ok)
	assert.Equal(t, 0.05, g)

	g, ok = BaseGain(CategoryMagic, "arcane")
	assert.True(t, ok)
	assert.Equal(t, 0.02, g)

	_, ok = BaseGain(CategoryWeapon, "fire")
	assert.False(t, ok)
	_, ok = BaseGain(CategoryMagic, "sword")
	assert.False(t, ok)
}

func TestGainDiminishesAsAffinityGrows(t *testing.T) {
	prev := Gain(0, 0.05, 1, 1)
	for _, cur := range []float64{10, 25, 50, 75, 90, 99} {
		g := Gain(cur, 0.05, 1, 1)
		assert.Less(t, g, prev, "gain at %.0f should be below gain at lower affinity", cur)
		prev = g
	}
}

func TestGainNeverBelowMinimumFraction(t *testing.T) {
	// Past the diminish span the factor bottoms out at 10% of base.
	g := Gain(100, 0.05, 1, 1)
	assert.InDelta(t, 0.05*1.0/3.0, g, 1e-9)

	g = Gain(145, 0.05, 1, 1)
	assert.InDelta(t, 0.05*0.1, g, 1e-9)
}

func TestApplyClampsToRange(t *testing.T) {
	assert.Equal(t, 100.0, Apply(99.9, 5))
	assert.Equal(t, 0.0, Apply(0.05, -1))
	assert.InDelta(t, 50.1, Apply(50, 0.1), 1e-9)
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		value  float64
		mult   float64
		chance float64
	}{
		{0, 1.0, 0},
		{25.9, 1.0, 0},
		{26, 1.1, 0.05},
		{51, 1.25, 0.15},
		{76, 1.4, 0.25},
		{99, 1.4, 0.25},
		{100, 1.6, 0.40},
	}
	for _, tc := range cases {
		tier := TierFor(tc.value)
		assert.Equal(t, tc.mult, tier.DamageMult, "value %.1f", tc.value)
		assert.Equal(t, tc.chance, tier.SpecialChance, "value %.1f", tc.value)
	}
}

func TestManaCostReduction(t *testing.T) {
	assert.Equal(t, 1.0, ManaCostReduction(0))
	assert.Equal(t, 0.75, ManaCostReduction(50))
	assert.Equal(t, 0.5, ManaCostReduction(100))
}

func TestSkillsCrossed(t *testing.T) {
	crossed := SkillsCrossed("sword", 24.9, 25.2)
	assert.Equal(t, []string{"sword_basic_combo"}, crossed)

	crossed = SkillsCrossed("fire", 40, 80)
	assert.Equal(t, []string{"fire_power_attack", "fire_master_technique"}, crossed)

	assert.Empty(t, SkillsCrossed("sword", 25, 40))
}

func TestDecay(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Inside the grace period nothing decays.
	assert.Equal(t, 40.0, Decay(40, now.Add(-3*24*time.Hour), now))

	// One full idle week costs one step.
	assert.InDelta(t, 39.9, Decay(40, now.Add(-8*24*time.Hour), now), 1e-9)

	// Three idle weeks cost three.
	assert.InDelta(t, 39.7, Decay(40, now.Add(-21*24*time.Hour), now), 1e-9)

	// Decay never goes below zero.
	assert.Equal(t, 0.0, Decay(0.05, now.Add(-365*24*time.Hour), now))
}
