package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/battlezone/internal/backend"
)

// DemoTournaments is the catalogue a fresh local database starts with.
func DemoTournaments(now time.Time) []backend.Tournament {
	return []backend.Tournament{
		{
			ID: "t1", Title: "Erangel Elite Championship", Game: backend.GamePUBG, Map: "Erangel",
			Mode: backend.ModeSquad, EntryFee: decimal.NewFromInt(50), PrizePool: decimal.NewFromInt(5000),
			StartTime: now.Add(24 * time.Hour), Status: backend.StatusFillingFast, MaxSlots: 25, FilledSlots: 18,
			Image:       "https://picsum.photos/800/400?random=1",
			Description: "The ultimate squad showdown on the classic Erangel map. High stakes, intense rotations.",
		},
		{
			ID: "t2", Title: "Bermuda Blitz", Game: backend.GameFreeFire, Map: "Bermuda",
			Mode: backend.ModeSolo, EntryFee: decimal.NewFromInt(20), PrizePool: decimal.NewFromInt(1500),
			StartTime: now.Add(time.Hour), Status: backend.StatusOpen, MaxSlots: 48, FilledSlots: 12,
			Image:       "https://picsum.photos/800/400?random=2",
			Description: "Fast-paced solo action. Only the quickest survive the Bermuda triangle.",
		},
		{
			ID: "t3", Title: "Miramar Snipers Only", Game: backend.GamePUBG, Map: "Miramar",
			Mode: backend.ModeDuo, EntryFee: decimal.NewFromInt(100), PrizePool: decimal.NewFromInt(10000),
			StartTime: now.Add(48 * time.Hour), Status: backend.StatusOpen, MaxSlots: 50, FilledSlots: 5,
			Image:       "https://picsum.photos/800/400?random=3",
			Description: "Long range battles only. Bring your A-game and your 8x scopes.",
		},
		{
			ID: "t4", Title: "Purgatory Survival", Game: backend.GameFreeFire, Map: "Purgatory",
			Mode: backend.ModeSquad, EntryFee: decimal.Zero, PrizePool: decimal.NewFromInt(500),
			StartTime: now.Add(-time.Hour), Status: backend.StatusLive, MaxSlots: 12, FilledSlots: 12,
			Image:       "https://picsum.photos/800/400?random=4",
			Description: "Free entry tournament for beginners. Prove your worth.",
		},
		{
			ID: "t5", Title: "Sanhok Rush", Game: backend.GamePUBG, Map: "Sanhok",
			Mode: backend.ModeSquad, EntryFee: decimal.NewFromInt(200), PrizePool: decimal.NewFromInt(20000),
			StartTime: now.Add(-24 * time.Hour), Status: backend.StatusCompleted, MaxSlots: 20, FilledSlots: 20,
			Image:       "https://picsum.photos/800/400?random=5",
			Description: "Close quarters combat in the rain forests of Sanhok.",
		},
	}
}

// SeedTournaments inserts the demo catalogue when no tournament exists yet.
func (s *Store) SeedTournaments(ctx context.Context, now time.Time) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&backend.Tournament{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count tournaments: %w", err)
	}
	if n > 0 {
		return nil
	}
	ts := DemoTournaments(now)
	if err := s.db.WithContext(ctx).Create(&ts).Error; err != nil {
		return fmt.Errorf("seed tournaments: %w", err)
	}
	return nil
}
