package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"riftbound/server/combat"
	"riftbound/server/config"
	"riftbound/server/cooldown"
	"riftbound/server/curve"
	"riftbound/server/progression"
	"riftbound/server/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("riftbound: ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Seed(ctx); err != nil {
		log.Fatalf("seed: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, leaderboard served from sqlite: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	calc := curve.New(curve.DefaultConfig())
	prog := progression.New(st, calc, rdb, cfg.LeaderboardTTL)
	gate := cooldown.New(st, cooldown.DefaultConfig())
	mgr := combat.NewManager(st, gate, prog, cfg.MonsterTurnDelay)

	go mgr.RunRespawnLoop(ctx, cfg.RespawnSweep)
	go prog.RunAffinityDecayLoop(ctx, cfg.AffinityDecaySweep)

	log.Printf("world online, db=%s", cfg.DBPath)
	<-ctx.Done()
	log.Printf("shutting down")
}
