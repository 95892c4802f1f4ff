package hub

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/reconciler"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

type FactoryDeps struct {
	Tables   backend.Tables
	Remote   session.Remote
	Realtime backend.Realtime
	Policy   wallet.MergePolicy
	Logger   *zap.Logger
}

// NewFactory subscribes to the user's profile row, loads the profile, ledger
// and registrations, and starts the session. Changes delivered while the
// load runs are held back and merged once the session exists, so nothing
// committed in between is lost. The subscription is attached to the session
// so shutting the session down releases it.
func NewFactory(d FactoryDeps) Factory {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, userID string) (*session.Session, error) {
		var s *session.Session
		ready := make(chan struct{})
		sub, err := reconciler.Subscribe(ctx, d.Realtime, userID, func(snap wallet.Snapshot) {
			<-ready
			if s != nil {
				s.Send(session.Merge{Snapshot: snap})
			}
		}, log)
		if err != nil {
			return nil, err
		}

		initial, err := LoadState(ctx, d.Tables, userID)
		if err != nil {
			close(ready)
			sub.Release()
			return nil, err
		}

		s = session.New(ctx, userID, initial, session.Options{
			Remote: d.Remote,
			Policy: d.Policy,
			Logger: log,
		})
		close(ready)
		if !s.Send(session.Attach{Release: sub.Release}) {
			sub.Release()
		}
		return s, nil
	}
}

func LoadState(ctx context.Context, tables backend.Tables, userID string) (wallet.State, error) {
	p, err := tables.GetProfile(ctx, userID)
	if err != nil {
		return wallet.State{}, fmt.Errorf("load profile: %w", err)
	}
	txs, err := tables.ListTransactions(ctx, backend.TransactionFilter{UserID: userID})
	if err != nil {
		return wallet.State{}, fmt.Errorf("load transactions: %w", err)
	}
	regs, err := tables.ListRegistrations(ctx, userID)
	if err != nil {
		return wallet.State{}, fmt.Errorf("load registrations: %w", err)
	}

	log := make([]wallet.Entry, 0, len(txs))
	for _, t := range txs {
		log = append(log, t.Entry())
	}
	joined := make([]string, 0, len(regs))
	for _, r := range regs {
		joined = append(joined, r.TournamentID)
	}
	return wallet.NewState(p.Wallet(), log, joined), nil
}
