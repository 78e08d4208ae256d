package balance

import "time"

// Action gating.
const (
	GlobalCooldown      = 1500 * time.Millisecond
	SpamWindow          = 5 * time.Second
	MaxActionsPerWindow = 5
	SpamLockDuration    = 30 * time.Second
	LatencyCompensation = 100 * time.Millisecond
)

// Combat formulas.
const (
	AttackStrScale   = 1.5
	AttackVariance   = 10
	BaseCritChance   = 0.05
	CritChancePerDex = 0.001
	SpellIntScale    = 2.0
	SpellVariance    = 15
	DefaultManaCost  = 10
	BaseFleeChance   = 0.3
	FleeChancePerDex = 0.01
	MonsterVariance  = 10
)

// Progression curve.
const (
	BaseExp               = 100
	SmoothingRange        = 5
	MilestoneInterval     = 100
	MilestoneBaseGold     = 1000
	MilestoneGoldGrowth   = 1.5
	MaxExperiencePerAward = 1_000_000
)

// Derived pools.
const (
	HealthBase   = 50
	HealthPerVit = 10
	ManaBase     = 30
	ManaPerInt   = 5
)

// Affinity growth.
const (
	AffinityCap          = 100.0
	AffinityDiminishSpan = 150.0
	AffinityMinDiminish  = 0.1
	AffinityDecayStep    = 0.1
	AffinityGracePeriod  = 7 * 24 * time.Hour
)
