// Package config reads the daemon's settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is everything the daemon needs to start.
type Config struct {
	// DBPath locates the SQLite database file.
	DBPath string `env:"RIFT_DB_PATH" envDefault:"data/riftbound.db"`

	// RedisAddr enables the leaderboard cache when non-empty.
	RedisAddr     string `env:"RIFT_REDIS_ADDR"`
	RedisPassword string `env:"RIFT_REDIS_PASSWORD"`

	LeaderboardTTL time.Duration `env:"RIFT_LEADERBOARD_TTL" envDefault:"1m"`

	// MonsterTurnDelay is the think-time before a monster answers an
	// action. Zero resolves monster turns synchronously.
	MonsterTurnDelay time.Duration `env:"RIFT_MONSTER_TURN_DELAY" envDefault:"2s"`

	RespawnSweep       time.Duration `env:"RIFT_RESPAWN_SWEEP" envDefault:"10s"`
	AffinityDecaySweep time.Duration `env:"RIFT_AFFINITY_DECAY_SWEEP" envDefault:"1h"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
