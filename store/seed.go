package store

import (
	"context"
	"fmt"
	"time"
)

var seedRaces = []Race{
	{Name: "Human"},
	{Name: "Elf", StrMod: -2, IntMod: 3, VitMod: -1, DexMod: 2, WisMod: 3, MagicAffinityBonus: 0.2},
	{Name: "Dwarf", StrMod: 3, IntMod: 1, VitMod: 4, DexMod: -2, WisMod: 1, WeaponAffinityBonus: 0.2},
	{Name: "Orc", StrMod: 4, IntMod: -2, VitMod: 3, WisMod: -2},
	{Name: "Halfling", StrMod: -2, IntMod: 1, VitMod: 1, DexMod: 4, WisMod: 2},
	{Name: "Gnome", StrMod: -3, IntMod: 4, VitMod: -1, DexMod: 1, WisMod: 4},
	{Name: "Dark Elf", StrMod: 1, IntMod: 2, DexMod: 3, WisMod: 1, MagicAffinityBonus: 0.1},
	{Name: "Dragonborn", StrMod: 2, IntMod: 2, VitMod: 2, DexMod: 1, WisMod: 2, ExperienceBonus: 0.05},
}

var seedMonsters = []Monster{
	{ID: "goblin-scout", Name: "Goblin Scout", Level: 1, MaxHealth: 30, BaseDamage: 4, ExperienceReward: 25, GoldReward: 5, RespawnDelay: 30 * time.Second},
	{ID: "forest-wolf", Name: "Forest Wolf", Level: 3, MaxHealth: 55, BaseDamage: 7, ExperienceReward: 60, GoldReward: 12, RespawnDelay: 45 * time.Second},
	{ID: "cave-spider", Name: "Cave Spider", Level: 5, MaxHealth: 80, BaseDamage: 10, ExperienceReward: 110, GoldReward: 20, RespawnDelay: 60 * time.Second},
	{ID: "restless-skeleton", Name: "Restless Skeleton", Level: 8, MaxHealth: 130, BaseDamage: 15, ExperienceReward: 220, GoldReward: 40, RespawnDelay: 90 * time.Second},
	{ID: "marsh-troll", Name: "Marsh Troll", Level: 12, MaxHealth: 240, BaseDamage: 24, ExperienceReward: 500, GoldReward: 90, RespawnDelay: 2 * time.Minute},
}

var seedSpawns = []Spawn{
	{ID: "spawn-goblin-1", MonsterID: "goblin-scout", Zone: "human_village"},
	{ID: "spawn-goblin-2", MonsterID: "goblin-scout", Zone: "human_village"},
	{ID: "spawn-wolf-1", MonsterID: "forest-wolf", Zone: "elven_forest"},
	{ID: "spawn-wolf-2", MonsterID: "forest-wolf", Zone: "elven_forest"},
	{ID: "spawn-spider-1", MonsterID: "cave-spider", Zone: "dark_caverns"},
	{ID: "spawn-skeleton-1", MonsterID: "restless-skeleton", Zone: "dark_caverns"},
	{ID: "spawn-troll-1", MonsterID: "marsh-troll", Zone: "halfling_shire"},
}

// Seed inserts the default races, monster templates and world spawns. Every
// insert is conflict-tolerant so Seed is safe to run on every start.
func (s *Store) Seed(ctx context.Context) error {
	for i := range seedRaces {
		r := &seedRaces[i]
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO races (name, str_modifier, int_modifier, vit_modifier, dex_modifier, wis_modifier,
			  experience_bonus, weapon_affinity_bonus, magic_affinity_bonus)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING`,
			r.Name, r.StrMod, r.IntMod, r.VitMod, r.DexMod, r.WisMod,
			r.ExperienceBonus, r.WeaponAffinityBonus, r.MagicAffinityBonus,
		); err != nil {
			return fmt.Errorf("seed race %s: %w", r.Name, err)
		}
	}
	for i := range seedMonsters {
		if err := s.InsertMonster(ctx, &seedMonsters[i]); err != nil {
			return err
		}
	}
	for i := range seedSpawns {
		sp := seedSpawns[i]
		m, ok := seedMonsterByID(sp.MonsterID)
		if !ok {
			return fmt.Errorf("seed spawn %s: unknown monster %s", sp.ID, sp.MonsterID)
		}
		sp.CurrentHealth = m.MaxHealth
		sp.MaxHealth = m.MaxHealth
		sp.Status = SpawnAlive
		if err := s.InsertSpawn(ctx, &sp); err != nil {
			return err
		}
	}
	return nil
}

func seedMonsterByID(id string) (*Monster, bool) {
	for i := range seedMonsters {
		if seedMonsters[i].ID == id {
			return &seedMonsters[i], true
		}
	}
	return nil, false
}
