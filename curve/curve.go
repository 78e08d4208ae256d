// Package curve defines the experience/level relationship: a compounding
// per-level requirement partitioned into named growth phases, with smoothing
// across phase boundaries, soft caps at very high levels and a logarithmic
// dampener. All totals are arbitrary precision so the curve keeps working far
// past 64-bit range.
package curve

import (
	"math"
	"math/big"
	"sync"

	"riftbound/server/balance"
)

// Phase is one segment of the growth curve. MaxLevel of zero means unbounded.
type Phase struct {
	Name         string
	MinLevel     int
	MaxLevel     int
	GrowthFactor float64
	StatBonus    int
}

// SoftCap damps the requirement growth above Level; Strength < 1 compounds
// per 100 levels over the threshold.
type SoftCap struct {
	Level    int
	Strength float64
}

// Config holds the curve constants.
type Config struct {
	BaseExp           int64
	SmoothingRange    int
	MilestoneInterval int
	Phases            []Phase
	SoftCaps          []SoftCap
}

// DefaultConfig returns the live curve tuning.
func DefaultConfig() Config {
	return Config{
		BaseExp:           balance.BaseExp,
		SmoothingRange:    balance.SmoothingRange,
		MilestoneInterval: balance.MilestoneInterval,
		Phases: []Phase{
			{Name: "Novice", MinLevel: 1, MaxLevel: 25, GrowthFactor: 1.25, StatBonus: 0},
			{Name: "Apprentice", MinLevel: 26, MaxLevel: 75, GrowthFactor: 1.20, StatBonus: 1},
			{Name: "Journeyman", MinLevel: 76, MaxLevel: 150, GrowthFactor: 1.16, StatBonus: 2},
			{Name: "Expert", MinLevel: 151, MaxLevel: 300, GrowthFactor: 1.12, StatBonus: 3},
			{Name: "Master", MinLevel: 301, MaxLevel: 500, GrowthFactor: 1.09, StatBonus: 5},
			{Name: "Grandmaster", MinLevel: 501, MaxLevel: 750, GrowthFactor: 1.07, StatBonus: 7},
			{Name: "Champion", MinLevel: 751, MaxLevel: 1000, GrowthFactor: 1.05, StatBonus: 10},
			{Name: "Legend", MinLevel: 1001, MaxLevel: 1500, GrowthFactor: 1.04, StatBonus: 15},
			{Name: "Mythic", MinLevel: 1501, MaxLevel: 2000, GrowthFactor: 1.03, StatBonus: 20},
			{Name: "Eternal", MinLevel: 2001, MaxLevel: 3000, GrowthFactor: 1.025, StatBonus: 30},
			{Name: "Cosmic", MinLevel: 3001, MaxLevel: 5000, GrowthFactor: 1.02, StatBonus: 40},
			{Name: "Transcendent", MinLevel: 5001, MaxLevel: 10000, GrowthFactor: 1.015, StatBonus: 60},
			{Name: "Infinite", MinLevel: 10001, MaxLevel: 0, GrowthFactor: 1.01, StatBonus: 100},
		},
		SoftCaps: []SoftCap{
			{Level: 1000, Strength: 0.95},
			{Level: 2500, Strength: 0.90},
			{Level: 5000, Strength: 0.85},
			{Level: 10000, Strength: 0.80},
		},
	}
}

// Calculator answers level/experience queries. Requirements are memoized, so
// repeated lookups are incremental. Safe for concurrent use.
type Calculator struct {
	cfg Config

	mu sync.Mutex
	// toNext[l] is the requirement for level l -> l+1; index 0 unused.
	toNext []*big.Int
	// cumulative[l] is the total experience to reach level l; index 0 unused.
	cumulative []*big.Int
	// product compounds the smoothed growth factors up to the last cached level.
	product *big.Float
}

const floatPrec = 128

// New returns a Calculator for cfg.
func New(cfg Config) *Calculator {
	return &Calculator{
		cfg:        cfg,
		toNext:     []*big.Int{nil},
		cumulative: []*big.Int{nil, big.NewInt(0)},
		product:    big.NewFloat(1).SetPrec(floatPrec),
	}
}

// PhaseForLevel returns the phase containing level.
func (c *Calculator) PhaseForLevel(level int) Phase {
	for _, p := range c.cfg.Phases {
		if p.MaxLevel == 0 || level <= p.MaxLevel {
			return p
		}
	}
	return c.cfg.Phases[len(c.cfg.Phases)-1]
}

func (c *Calculator) phaseIndex(level int) int {
	for i, p := range c.cfg.Phases {
		if p.MaxLevel == 0 || level <= p.MaxLevel {
			return i
		}
	}
	return len(c.cfg.Phases) - 1
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func smoothstep(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return t * t * (3 - 2*t)
}

// smoothedGrowthFactor eases the growth factor across the tail of a phase so
// the requirement series has no visible kink at a boundary.
func (c *Calculator) smoothedGrowthFactor(level int) float64 {
	idx := c.phaseIndex(level)
	phase := c.cfg.Phases[idx]
	if idx == len(c.cfg.Phases)-1 || level <= phase.MinLevel+c.cfg.SmoothingRange {
		return phase.GrowthFactor
	}
	if level >= phase.MaxLevel-c.cfg.SmoothingRange {
		next := c.cfg.Phases[idx+1]
		start := phase.MaxLevel - c.cfg.SmoothingRange
		end := phase.MaxLevel + c.cfg.SmoothingRange
		if level <= end {
			progress := float64(level-start) / float64(2*c.cfg.SmoothingRange)
			return lerp(phase.GrowthFactor, next.GrowthFactor, smoothstep(progress))
		}
	}
	return phase.GrowthFactor
}

// softCapFactor compounds every configured cap the level sits above.
func (c *Calculator) softCapFactor(level int) float64 {
	factor := 1.0
	for _, sc := range c.cfg.SoftCaps {
		if level > sc.Level {
			over := float64(level-sc.Level) / 100
			factor *= math.Pow(sc.Strength, over)
		}
	}
	return factor
}

// ensure extends the memo tables so toNext[level] and cumulative[level+1]
// exist. Caller holds c.mu.
func (c *Calculator) ensure(level int) {
	for l := len(c.toNext); l <= level; l++ {
		req := new(big.Float).SetPrec(floatPrec).SetInt64(c.cfg.BaseExp)
		req.Mul(req, c.product)

		adjust := c.softCapFactor(l) * (1 + math.Log10(float64(l)+10)/20)
		req.Mul(req, big.NewFloat(adjust).SetPrec(floatPrec))

		need, _ := req.Int(nil)
		floor := new(big.Int).Mul(big.NewInt(c.cfg.BaseExp), big.NewInt(int64(l)))
		if need.Cmp(floor) < 0 {
			need = floor
		}

		c.toNext = append(c.toNext, need)
		total := new(big.Int).Add(c.cumulative[l], need)
		c.cumulative = append(c.cumulative, total)

		// Fold level l's factor in for the next iteration.
		c.product.Mul(c.product, big.NewFloat(c.smoothedGrowthFactor(l)).SetPrec(floatPrec))
	}
}

// ExpToNext returns the experience required to advance from level to level+1.
func (c *Calculator) ExpToNext(level int) *big.Int {
	if level < 1 {
		return big.NewInt(c.cfg.BaseExp)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure(level)
	return new(big.Int).Set(c.toNext[level])
}

// TotalExpForLevel returns the cumulative experience needed to reach level.
func (c *Calculator) TotalExpForLevel(level int) *big.Int {
	if level <= 1 {
		return big.NewInt(0)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure(level - 1)
	return new(big.Int).Set(c.cumulative[level])
}

// LevelFromExperience returns the highest level whose cumulative requirement
// does not exceed total.
func (c *Calculator) LevelFromExperience(total *big.Int) int {
	if total == nil || total.Sign() < 0 {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	level := 1
	for {
		c.ensure(level)
		if c.cumulative[level+1].Cmp(total) > 0 {
			return level
		}
		level++
	}
}

// Progress describes where a total sits within its level.
type Progress struct {
	Level         int
	IntoLevel     *big.Int
	NeededForNext *big.Int
	Remaining     *big.Int
	Percent       int
	Phase         string
}

// ProgressFor reports progress through the given level for a total.
func (c *Calculator) ProgressFor(level int, total *big.Int) Progress {
	if total == nil {
		total = big.NewInt(0)
	}
	start := c.TotalExpForLevel(level)
	end := c.TotalExpForLevel(level + 1)

	into := new(big.Int).Sub(total, start)
	if into.Sign() < 0 {
		into = big.NewInt(0)
	}
	needed := new(big.Int).Sub(end, start)
	remaining := new(big.Int).Sub(end, total)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}

	percent := 0
	if needed.Sign() > 0 {
		p := new(big.Int).Mul(into, big.NewInt(100))
		p.Quo(p, needed)
		percent = int(p.Int64())
		if percent > 100 {
			percent = 100
		}
	}

	return Progress{
		Level:         level,
		IntoLevel:     into,
		NeededForNext: needed,
		Remaining:     remaining,
		Percent:       percent,
		Phase:         c.PhaseForLevel(level).Name,
	}
}
