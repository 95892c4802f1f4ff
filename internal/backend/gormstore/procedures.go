package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// errProc errors carry a message that is safe to show the user.
type errProc string

func (e errProc) Error() string { return string(e) }

const (
	errInsufficient    errProc = "insufficient balance"
	errInvalidAmount   errProc = "amount must be greater than zero"
	errNoTournament    errProc = "tournament not found"
	errClosed          errProc = "registration closed"
	errFull            errProc = "tournament is full"
	errRegistered      errProc = "already registered for this tournament"
	errNoProfile       errProc = "profile not found"
	errNoTransaction   errProc = "transaction not found"
	errNotPending      errProc = "transaction is not pending"
	errUsernameMissing errProc = "username is required"
)

// procedure runs one remote procedure and returns the users whose profile
// it changed.
type procedure func(ctx context.Context, args backend.Args) ([]string, error)

func (s *Store) Call(ctx context.Context, name string, args backend.Args) error {
	proc, ok := s.procs[name]
	if !ok {
		return &backend.RemoteError{Procedure: name, Message: "unknown procedure"}
	}

	changed, err := proc(ctx, args)
	if err != nil {
		var pe errProc
		if errors.As(err, &pe) {
			return &backend.RemoteError{Procedure: name, Message: pe.Error()}
		}
		if errors.Is(err, backend.ErrMissingArgument) {
			return &backend.RemoteError{Procedure: name, Message: err.Error()}
		}
		s.log.Error("procedure failed", zap.String("procedure", name), zap.Error(err))
		return &backend.RemoteError{Procedure: name, Message: "server error"}
	}

	s.publishProfiles(ctx, changed...)
	return nil
}

func amountArg(args backend.Args) (decimal.Decimal, error) {
	switch v := args["amount"].(type) {
	case decimal.Decimal:
		if !v.IsPositive() {
			return v, errInvalidAmount
		}
		return v, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() {
			return d, errInvalidAmount
		}
		return d, nil
	default:
		return decimal.Zero, errInvalidAmount
	}
}

// transactionID uses the client's id when given so the ledger row and the
// optimistic log entry share it.
func transactionID(args backend.Args) string {
	if id := args.Optional("transaction_id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// debit moves amount out of a profile if the balance covers it.
func debit(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	res := tx.Model(&backend.Profile{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&backend.Profile{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return errNoProfile
		}
		return errInsufficient
	}
	return nil
}

func credit(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	res := tx.Model(&backend.Profile{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNoProfile
	}
	return nil
}

func (s *Store) joinTournament(ctx context.Context, args backend.Args) ([]string, error) {
	userID, err := args.String("user_id")
	if err != nil {
		return nil, err
	}
	tournamentID, err := args.String("tournament_id")
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t backend.Tournament
		if err := tx.First(&t, "id = ?", tournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoTournament
			}
			return err
		}
		if t.Status == backend.StatusClosed || t.Status == backend.StatusCompleted {
			return errClosed
		}

		var n int64
		if err := tx.Model(&backend.Registration{}).
			Where("user_id = ? AND tournament_id = ?", userID, tournamentID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errRegistered
		}

		// slot claim is conditional so two joins cannot overfill
		res := tx.Model(&backend.Tournament{}).
			Where("id = ? AND (max_slots = 0 OR filled_slots < max_slots)", tournamentID).
			Update("filled_slots", gorm.Expr("filled_slots + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errFull
		}

		if t.EntryFee.IsPositive() {
			if err := debit(tx, userID, t.EntryFee); err != nil {
				return err
			}
		}
		if err := tx.Create(&backend.Registration{UserID: userID, TournamentID: tournamentID}).Error; err != nil {
			return err
		}
		return tx.Create(&backend.Transaction{
			ID:          transactionID(args),
			UserID:      userID,
			Type:        wallet.KindEntryFee,
			Amount:      t.EntryFee,
			Description: "Entry Fee: " + t.Title,
			Status:      wallet.StatusCompleted,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return []string{userID}, nil
}

// requestDeposit records a pending deposit; the balance moves on approval.
func (s *Store) requestDeposit(ctx context.Context, args backend.Args) ([]string, error) {
	userID, err := args.String("user_id")
	if err != nil {
		return nil, err
	}
	amount, err := amountArg(args)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&backend.Profile{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return errNoProfile
		}
		return tx.Create(&backend.Transaction{
			ID:          transactionID(args),
			UserID:      userID,
			Type:        wallet.KindDeposit,
			Amount:      amount,
			Description: "Deposit Request",
			Status:      wallet.StatusPending,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// requestWithdrawal holds the funds at once and records a pending request.
func (s *Store) requestWithdrawal(ctx context.Context, args backend.Args) ([]string, error) {
	userID, err := args.String("user_id")
	if err != nil {
		return nil, err
	}
	amount, err := amountArg(args)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, userID, amount); err != nil {
			return err
		}
		return tx.Create(&backend.Transaction{
			ID:          transactionID(args),
			UserID:      userID,
			Type:        wallet.KindWithdrawal,
			Amount:      amount,
			Description: "Withdrawal Request",
			Status:      wallet.StatusPending,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return []string{userID}, nil
}

func (s *Store) updateProfile(ctx context.Context, args backend.Args) ([]string, error) {
	userID, err := args.String("user_id")
	if err != nil {
		return nil, err
	}
	username := args.Optional("username")
	if username == "" {
		return nil, errUsernameMissing
	}
	updates := map[string]any{"username": username}
	if avatar := args.Optional("avatar"); avatar != "" {
		updates["avatar"] = avatar
	}

	res := s.db.WithContext(ctx).Model(&backend.Profile{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errNoProfile
	}
	return []string{userID}, nil
}

func (s *Store) approveTransaction(ctx context.Context, args backend.Args) ([]string, error) {
	return s.settleTransaction(ctx, args, wallet.StatusCompleted)
}

func (s *Store) rejectTransaction(ctx context.Context, args backend.Args) ([]string, error) {
	return s.settleTransaction(ctx, args, wallet.StatusFailed)
}

// settleTransaction moves a pending request to its final status. Approved
// deposits credit the balance; rejected withdrawals release the hold.
func (s *Store) settleTransaction(ctx context.Context, args backend.Args, to wallet.Status) ([]string, error) {
	id, err := args.String("transaction_id")
	if err != nil {
		return nil, err
	}

	var t backend.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoTransaction
			}
			return err
		}
		res := tx.Model(&backend.Transaction{}).
			Where("id = ? AND status = ?", id, wallet.StatusPending).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotPending
		}

		switch {
		case to == wallet.StatusCompleted && t.Type == wallet.KindDeposit:
			return credit(tx, t.UserID, t.Amount)
		case to == wallet.StatusFailed && t.Type == wallet.KindWithdrawal:
			return credit(tx, t.UserID, t.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", id, err)
	}
	t.Status = to
	s.publishEntry(t)
	return []string{t.UserID}, nil
}
