package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

func (s *Store) GetProfile(ctx context.Context, userID string) (backend.Profile, error) {
	var p backend.Profile
	err := s.db.WithContext(ctx).First(&p, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("profile %s: %w", userID, backend.ErrNotFound)
	}
	return p, err
}

// ListTournaments returns tournaments ordered by start time.
func (s *Store) ListTournaments(ctx context.Context, f backend.TournamentFilter) ([]backend.Tournament, error) {
	var out []backend.Tournament
	q := s.db.WithContext(ctx).Order("start_time asc")
	if f.Game != "" {
		q = q.Where("game = ?", f.Game)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return out, nil
}

func (s *Store) GetTournament(ctx context.Context, id string) (backend.Tournament, error) {
	var t backend.Tournament
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, fmt.Errorf("tournament %s: %w", id, backend.ErrNotFound)
	}
	return t, err
}

// SaveTournament inserts t when it has no id, otherwise updates it.
func (s *Store) SaveTournament(ctx context.Context, t backend.Tournament) (backend.Tournament, error) {
	db := s.db.WithContext(ctx)
	if t.ID == "" {
		t.ID = uuid.NewString()
		if err := db.Create(&t).Error; err != nil {
			return t, fmt.Errorf("insert tournament: %w", err)
		}
		return t, nil
	}

	res := db.Model(&backend.Tournament{}).Where("id = ?", t.ID).Select(
		"title", "game", "map", "mode", "entry_fee", "prize_pool", "start_time",
		"status", "max_slots", "image", "description", "rules",
	).Updates(&t)
	if res.Error != nil {
		return t, fmt.Errorf("update tournament: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return t, fmt.Errorf("tournament %s: %w", t.ID, backend.ErrNotFound)
	}
	return s.GetTournament(ctx, t.ID)
}

func (s *Store) DeleteTournament(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", id).Delete(&backend.Registration{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&backend.Tournament{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("tournament %s: %w", id, backend.ErrNotFound)
		}
		return nil
	})
}

// ListTransactions returns newest first. Rows carry the requesting
// username.
func (s *Store) ListTransactions(ctx context.Context, f backend.TransactionFilter) ([]backend.Transaction, error) {
	var out []backend.Transaction
	q := s.db.WithContext(ctx).
		Model(&backend.Transaction{}).
		Select("transactions.*, profiles.username AS username").
		Joins("LEFT JOIN profiles ON profiles.id = transactions.user_id").
		Order("transactions.created_at desc")
	if f.UserID != "" {
		q = q.Where("transactions.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("transactions.status = ?", f.Status)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) ListRegistrations(ctx context.Context, userID string) ([]backend.Registration, error) {
	var out []backend.Registration
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

func ptrSnapshot(p wallet.Profile) *wallet.Snapshot {
	snap := wallet.SnapshotOf(p)
	return &snap
}
