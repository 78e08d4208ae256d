// Package affinity models per-category mastery: a bounded percentage that
// grows with use under diminishing returns, grants tiered combat bonuses and
// unlocks skills at fixed thresholds, and decays when left unused.
package affinity

import (
	"math"
	"time"

	"riftbound/server/balance"
)

// Category separates the two trainable families.
type Category string

const (
	CategoryWeapon Category = "weapon"
	CategoryMagic  Category = "magic"
)

var weaponKinds = map[string]float64{
	"sword":   0.05,
	"axe":     0.05,
	"mace":    0.05,
	"dagger":  0.06,
	"staff":   0.04,
	"bow":     0.04,
	"unarmed": 0.07,
}

var magicSchools = map[string]float64{
	"fire":      0.03,
	"ice":       0.03,
	"lightning": 0.03,
	"earth":     0.03,
	"holy":      0.025,
	"dark":      0.025,
	"arcane":    0.02,
	"nature":    0.035,
}

// BaseGain returns the per-use base gain rate for a kind, and whether the
// kind is trainable at all.
func BaseGain(category Category, kind string) (float64, bool) {
	switch category {
	case CategoryWeapon:
		g, ok := weaponKinds[kind]
		return g, ok
	case CategoryMagic:
		g, ok := magicSchools[kind]
		return g, ok
	}
	return 0, false
}

// Kinds lists the trainable kinds of a category.
func Kinds(category Category) []string {
	var src map[string]float64
	switch category {
	case CategoryWeapon:
		src = weaponKinds
	case CategoryMagic:
		src = magicSchools
	default:
		return nil
	}
	names := make([]string, 0, len(src))
	for k := range src {
		names = append(names, k)
	}
	return names
}

// Gain computes the affinity awarded by one use. Growth slows continuously as
// mastery approaches the cap and never stalls entirely.
func Gain(current, base, intensity, racialMult float64) float64 {
	if base <= 0 || intensity <= 0 {
		return 0
	}
	if racialMult <= 0 {
		racialMult = 1
	}
	diminish := math.Max(balance.AffinityMinDiminish, 1-current/balance.AffinityDiminishSpan)
	return base * intensity * racialMult * diminish
}

// Apply adds a gain to the current value, clamped to [0, cap].
func Apply(current, gain float64) float64 {
	v := current + gain
	if v < 0 {
		return 0
	}
	if v > balance.AffinityCap {
		return balance.AffinityCap
	}
	return v
}

// Tier maps an affinity range onto combat bonuses.
type Tier struct {
	Name          string
	DamageMult    float64
	SpecialChance float64
}

var tiers = []struct {
	Min  float64
	Tier Tier
}{
	{100, Tier{Name: "master", DamageMult: 1.6, SpecialChance: 0.40}},
	{76, Tier{Name: "expert", DamageMult: 1.4, SpecialChance: 0.25}},
	{51, Tier{Name: "journeyman", DamageMult: 1.25, SpecialChance: 0.15}},
	{26, Tier{Name: "apprentice", DamageMult: 1.1, SpecialChance: 0.05}},
	{0, Tier{Name: "novice", DamageMult: 1.0, SpecialChance: 0}},
}

// TierFor returns the tier containing v.
func TierFor(v float64) Tier {
	for _, t := range tiers {
		if v >= t.Min {
			return t.Tier
		}
	}
	return tiers[len(tiers)-1].Tier
}

// ManaCostReduction returns the multiplier applied to spell mana costs; up to
// half price at full mastery.
func ManaCostReduction(v float64) float64 {
	return 1 - v/200
}

var skillThresholds = []struct {
	Min    float64
	Suffix string
}{
	{25, "_basic_combo"},
	{50, "_power_attack"},
	{75, "_master_technique"},
	{100, "_legendary_skill"},
}

// Skills lists every skill unlocked for kind at affinity v.
func Skills(kind string, v float64) []string {
	var names []string
	for _, s := range skillThresholds {
		if v >= s.Min {
			names = append(names, kind+s.Suffix)
		}
	}
	return names
}

// SkillsCrossed lists the skills newly unlocked when moving from old to new.
func SkillsCrossed(kind string, old, new float64) []string {
	var names []string
	for _, s := range skillThresholds {
		if old < s.Min && new >= s.Min {
			names = append(names, kind+s.Suffix)
		}
	}
	return names
}

// Decay reduces an unused value, one fixed step per elapsed grace period.
// It never pushes a value below zero.
func Decay(current float64, lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() || !now.After(lastUsed) {
		return current
	}
	periods := int(now.Sub(lastUsed) / balance.AffinityGracePeriod)
	if periods <= 0 {
		return current
	}
	v := current - balance.AffinityDecayStep*float64(periods)
	if v < 0 {
		return 0
	}
	return v
}
