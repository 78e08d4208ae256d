package curve

import (
	"math"

	"riftbound/server/balance"
)

// StatGains is the per-attribute growth from one or more level-ups.
type StatGains struct {
	Str int
	Int int
	Vit int
	Dex int
	Wis int
}

// Add accumulates g2 into g.
func (g *StatGains) Add(g2 StatGains) {
	g.Str += g2.Str
	g.Int += g2.Int
	g.Vit += g2.Vit
	g.Dex += g2.Dex
	g.Wis += g2.Wis
}

// Total returns the sum across attributes.
func (g StatGains) Total() int {
	return g.Str + g.Int + g.Vit + g.Dex + g.Wis
}

// RaceModifiers scale growth and rewards per race.
type RaceModifiers struct {
	Str int
	Int int
	Vit int
	Dex int
	Wis int

	ExperienceBonus     float64
	WeaponAffinityBonus float64
	MagicAffinityBonus  float64
}

const baseStatGain = 2

// StatGainsForLevel computes the gains granted by reaching level.
func (c *Calculator) StatGainsForLevel(level int, race RaceModifiers) StatGains {
	gain := baseStatGain + c.PhaseForLevel(level).StatBonus
	if c.IsMilestoneLevel(level) {
		gain += level / c.cfg.MilestoneInterval
	}
	scale := func(mod int) int {
		return int(math.Floor(float64(gain) * (1 + float64(mod)*0.02)))
	}
	return StatGains{
		Str: scale(race.Str),
		Int: scale(race.Int),
		Vit: scale(race.Vit),
		Dex: scale(race.Dex),
		Wis: scale(race.Wis),
	}
}

var prestigeMarkers = []struct {
	Name  string
	Level int
}{
	{"bronze", 100},
	{"silver", 500},
	{"gold", 1000},
	{"platinum", 2500},
	{"diamond", 5000},
	{"legendary", 10000},
}

// PrestigeMarker returns the marker for a level, or "" below the lowest
// threshold. The highest threshold met wins.
func PrestigeMarker(level int) string {
	marker := ""
	for _, p := range prestigeMarkers {
		if level >= p.Level {
			marker = p.Name
		}
	}
	return marker
}

// IsMilestoneLevel reports whether level sits on a milestone boundary.
func (c *Calculator) IsMilestoneLevel(level int) bool {
	return level > 0 && level%c.cfg.MilestoneInterval == 0
}

// MilestoneReward is the one-time grant for crossing a milestone level.
type MilestoneReward struct {
	Level  int
	Number int
	Gold   int64
	Label  string
	Phase  string
}

// MilestoneRewardFor returns the reward for a milestone level, or nil when
// level is not a milestone.
func (c *Calculator) MilestoneRewardFor(level int) *MilestoneReward {
	if !c.IsMilestoneLevel(level) {
		return nil
	}
	n := level / c.cfg.MilestoneInterval
	phase := c.PhaseForLevel(level)
	label := phase.Name + " Phase Achievement"
	if level >= 1000 {
		label += " + Affinity Mastery Bonus"
	}
	if level >= 5000 {
		label += " + Legendary Weapon Unlock"
	}
	return &MilestoneReward{
		Level:  level,
		Number: n,
		Gold:   int64(math.Floor(balance.MilestoneBaseGold * math.Pow(balance.MilestoneGoldGrowth, float64(n)))),
		Label:  label,
		Phase:  phase.Name,
	}
}

var contentUnlocks = []struct {
	Level int
	Name  string
}{
	{10, "Forest Depths"},
	{15, "Weapon Affinity Training"},
	{25, "Mountain Caves"},
	{30, "Magic Affinity Training"},
	{50, "Desert Wastelands"},
	{75, "Advanced Combat Techniques"},
	{100, "Frozen Tundra"},
	{150, "Elemental Mastery"},
	{250, "Volcanic Peaks"},
	{500, "Shadow Realm"},
	{500, "Legendary Abilities"},
	{1000, "Celestial Planes"},
	{2500, "Void Dimensions"},
}

// ContentUnlocks lists every content identifier available at level.
func ContentUnlocks(level int) []string {
	var names []string
	for _, u := range contentUnlocks {
		if level >= u.Level {
			names = append(names, u.Name)
		}
	}
	return names
}

// UnlocksAtLevel lists content identifiers whose threshold is exactly level,
// used to report what a single level-up made available.
func UnlocksAtLevel(level int) []string {
	var names []string
	for _, u := range contentUnlocks {
		if u.Level == level {
			names = append(names, u.Name)
		}
	}
	return names
}
