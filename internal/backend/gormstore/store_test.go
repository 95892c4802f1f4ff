package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

type recorder struct {
	mu      sync.Mutex
	changes []backend.Change
}

func (r *recorder) Publish(c backend.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) last(t *testing.T) backend.Change {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.changes, "no change published")
	return r.changes[len(r.changes)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	rec := &recorder{}
	s := New(db, Options{Publisher: rec, StartingBalance: decimal.NewFromInt(450)})
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.SeedTournaments(context.Background(), time.Now()))
	return s, rec
}

func addProfile(t *testing.T, s *Store, id string, balance int64) {
	t.Helper()
	require.NoError(t, s.db.Create(&backend.Profile{ID: id, Username: id, Balance: decimal.NewFromInt(balance)}).Error)
}

func balanceOf(t *testing.T, s *Store, id string) decimal.Decimal {
	t.Helper()
	p, err := s.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p.Balance
}

func requireRemote(t *testing.T, err error, msg string) {
	t.Helper()
	var re *backend.RemoteError
	require.True(t, errors.As(err, &re), "want RemoteError, got %v", err)
	require.Equal(t, msg, re.Message)
}

func TestJoinTournament_DebitsAndRegisters(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "u1", 450)

	err := s.Call(ctx, backend.ProcJoinTournament, backend.Args{"user_id": "u1", "tournament_id": "t1", "transaction_id": "tx-join"})
	require.NoError(t, err)

	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(400)))

	regs, err := s.ListRegistrations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, "t1", regs[0].TournamentID)

	tour, err := s.GetTournament(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 19, tour.FilledSlots)

	txs, err := s.ListTransactions(ctx, backend.TransactionFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "tx-join", txs[0].ID)
	require.Equal(t, wallet.StatusCompleted, txs[0].Status)
	require.Equal(t, "u1", txs[0].Username)

	c := rec.last(t)
	require.Equal(t, "u1", c.RowID)
	require.True(t, c.Profile.Balance.Equal(decimal.NewFromInt(400)))
}

func TestJoinTournament_Failures(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "poor", 10)
	addProfile(t, s, "rich", 1000)

	cases := []struct {
		name    string
		user    string
		tourney string
		wantMsg string
	}{
		{name: "insufficient", user: "poor", tourney: "t1", wantMsg: "insufficient balance"},
		{name: "completed", user: "rich", tourney: "t5", wantMsg: "registration closed"},
		{name: "full", user: "rich", tourney: "t4", wantMsg: "tournament is full"},
		{name: "missing", user: "rich", tourney: "nope", wantMsg: "tournament not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := balanceOf(t, s, tc.user)
			err := s.Call(ctx, backend.ProcJoinTournament, backend.Args{"user_id": tc.user, "tournament_id": tc.tourney})
			requireRemote(t, err, tc.wantMsg)
			require.True(t, balanceOf(t, s, tc.user).Equal(before), "failed join must not move balance")
		})
	}

	// the failed insufficient join must not have claimed a slot
	tour, err := s.GetTournament(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 18, tour.FilledSlots)
}

func TestJoinTournament_Twice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "u1", 450)

	args := backend.Args{"user_id": "u1", "tournament_id": "t2"}
	require.NoError(t, s.Call(ctx, backend.ProcJoinTournament, args))
	requireRemote(t, s.Call(ctx, backend.ProcJoinTournament, args), "already registered for this tournament")
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(430)))
}

func TestDepositApproveFlow(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "u1", 450)

	require.NoError(t, s.Call(ctx, backend.ProcRequestDeposit, backend.Args{
		"user_id": "u1", "amount": decimal.NewFromInt(100), "transaction_id": "dep1",
	}))
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(450)), "deposit waits for approval")
	require.Equal(t, 0, rec.count())

	pending, err := s.ListTransactions(ctx, backend.TransactionFilter{Status: wallet.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.Call(ctx, backend.ProcApproveTransaction, backend.Args{"transaction_id": "dep1"}))
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(550)))
	require.Equal(t, "u1", rec.last(t).RowID)

	// the settled row is published to its owner along with the new balance
	require.Equal(t, 2, rec.count())
	settled := rec.changes[0]
	require.Equal(t, backend.TableProfiles, settled.Table)
	require.Equal(t, "u1", settled.RowID)
	require.NotNil(t, settled.Entry)
	require.Equal(t, "dep1", settled.Entry.ID)
	require.Equal(t, wallet.StatusCompleted, settled.Entry.Status)

	requireRemote(t, s.Call(ctx, backend.ProcApproveTransaction, backend.Args{"transaction_id": "dep1"}), "transaction is not pending")
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(550)), "approval is applied once")
}

func TestWithdrawalRejectReleasesHold(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "u1", 450)

	require.NoError(t, s.Call(ctx, backend.ProcRequestWithdrawal, backend.Args{
		"user_id": "u1", "amount": "120", "transaction_id": "w1",
	}))
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(330)))

	before := rec.count()
	require.NoError(t, s.Call(ctx, backend.ProcRejectTransaction, backend.Args{"transaction_id": "w1"}))
	require.True(t, balanceOf(t, s, "u1").Equal(decimal.NewFromInt(450)))
	rec.mu.Lock()
	rejected := rec.changes[before]
	rec.mu.Unlock()
	require.NotNil(t, rejected.Entry)
	require.Equal(t, wallet.StatusFailed, rejected.Entry.Status)

	requireRemote(t, s.Call(ctx, backend.ProcRequestWithdrawal, backend.Args{"user_id": "u1", "amount": "500"}), "insufficient balance")
	requireRemote(t, s.Call(ctx, backend.ProcRequestWithdrawal, backend.Args{"user_id": "u1", "amount": "-1"}), "amount must be greater than zero")
}

func TestCall_UnknownAndMissingArgs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	requireRemote(t, s.Call(ctx, "drop_tables", nil), "unknown procedure")

	err := s.Call(ctx, backend.ProcUpdateProfile, backend.Args{"username": "x"})
	var re *backend.RemoteError
	require.ErrorAs(t, err, &re)
	require.Contains(t, re.Message, "user_id")
}

func TestUpdateProfile(t *testing.T) {
	s, rec := newTestStore(t)
	ctx := context.Background()
	addProfile(t, s, "u1", 450)

	require.NoError(t, s.Call(ctx, backend.ProcUpdateProfile, backend.Args{"user_id": "u1", "username": "Renamed", "avatar": "b.png"}))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", p.Username)
	require.Equal(t, "b.png", p.Avatar)
	require.Equal(t, "Renamed", *rec.last(t).Profile.Username)
}

func TestTournaments_ListSaveDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	all, err := s.ListTournaments(ctx, backend.TournamentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].StartTime.Before(all[i-1].StartTime), "not ordered by start time")
	}

	pubg, err := s.ListTournaments(ctx, backend.TournamentFilter{Game: backend.GamePUBG})
	require.NoError(t, err)
	require.Len(t, pubg, 3)

	created, err := s.SaveTournament(ctx, backend.Tournament{Title: "Night Cup", Game: backend.GameFreeFire, MaxSlots: 10, StartTime: time.Now()})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	created.Title = "Night Cup II"
	created.EntryFee = decimal.NewFromInt(5)
	updated, err := s.SaveTournament(ctx, created)
	require.NoError(t, err)
	require.Equal(t, "Night Cup II", updated.Title)
	require.True(t, updated.EntryFee.Equal(decimal.NewFromInt(5)))

	require.NoError(t, s.DeleteTournament(ctx, created.ID))
	_, err = s.GetTournament(ctx, created.ID)
	require.ErrorIs(t, err, backend.ErrNotFound)
	require.ErrorIs(t, s.DeleteTournament(ctx, created.ID), backend.ErrNotFound)
}

func TestSeedTournaments_OnlyOnce(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SeedTournaments(context.Background(), time.Now()))

	all, err := s.ListTournaments(context.Background(), backend.TournamentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
}
