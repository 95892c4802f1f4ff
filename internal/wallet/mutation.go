package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TournamentRef is the part of a tournament the entry-fee precondition needs.
type TournamentRef struct {
	ID    string
	Title string
	Fee   decimal.Decimal
	Open  bool
}

// Mutation is a user action that changes session state and has a remote
// counterpart.
type Mutation struct {
	Kind       Kind
	Amount     decimal.Decimal
	Tournament TournamentRef // KindEntryFee
	Username   string        // KindProfileEdit
	Avatar     string        // KindProfileEdit
}

func EntryFee(t TournamentRef) Mutation {
	return Mutation{Kind: KindEntryFee, Amount: t.Fee, Tournament: t}
}

func Deposit(amount decimal.Decimal) Mutation {
	return Mutation{Kind: KindDeposit, Amount: amount}
}

func Withdrawal(amount decimal.Decimal) Mutation {
	return Mutation{Kind: KindWithdrawal, Amount: amount}
}

func ProfileEdit(username, avatar string) Mutation {
	return Mutation{Kind: KindProfileEdit, Username: username, Avatar: avatar}
}

/*
	EntryFee    -> balance -fee, joined += id, entry COMPLETED
	Deposit     -> balance unchanged until an admin approves, entry PENDING
	Withdrawal  -> balance -amount (held), entry PENDING
	ProfileEdit -> username/avatar replaced, no entry
*/

// Pending is an optimistic mutation awaiting its remote result.
type Pending struct {
	ID       string
	Mutation Mutation
	Delta    decimal.Decimal

	undo    func(s *State, revertBalance bool)
	rebased bool
}

// Rebase records that an authoritative balance replaced the optimistic one
// while this mutation was in flight. A later Undo then leaves the balance
// alone, since the authoritative value never contained the delta.
func (p *Pending) Rebase() { p.rebased = true }

func (p *Pending) Rebased() bool { return p.rebased }

// Undo reverses the optimistic change: the balance moves by exactly -Delta
// (unless rebased), side effects are removed and the log entry is marked
// failed.
func (p *Pending) Undo(s State) State {
	next := s.Clone()
	if p.undo != nil {
		p.undo(&next, !p.rebased)
	}
	return next
}

// Prepare checks the precondition for m against s. On success it returns the
// pending record and the optimistic state; on failure s is returned as-is.
func Prepare(s State, m Mutation, now time.Time, id string) (Pending, State, error) {
	switch m.Kind {
	case KindEntryFee:
		return prepareEntryFee(s, m, now, id)
	case KindDeposit:
		return prepareDeposit(s, m, now, id)
	case KindWithdrawal:
		return prepareWithdrawal(s, m, now, id)
	case KindProfileEdit:
		return prepareProfileEdit(s, m, id)
	default:
		return Pending{}, s, ErrUnsupportedMutation
	}
}

func prepareEntryFee(s State, m Mutation, now time.Time, id string) (Pending, State, error) {
	t := m.Tournament
	if t.ID == "" {
		return Pending{}, s, ErrUnsupportedMutation
	}
	if s.HasJoined(t.ID) {
		return Pending{}, s, ErrAlreadyJoined
	}
	if !t.Open {
		return Pending{}, s, ErrRegistrationClosed
	}
	if m.Amount.IsNegative() {
		return Pending{}, s, ErrInvalidAmount
	}
	if s.Balance().LessThan(m.Amount) {
		return Pending{}, s, ErrInsufficientFunds
	}

	next := s.Clone()
	next.Joined[t.ID] = true
	next.Profile.Balance = next.Profile.Balance.Sub(m.Amount)
	next.prepend(Entry{
		ID:          id,
		Kind:        KindEntryFee,
		Amount:      m.Amount,
		Date:        now,
		Description: entryFeeDescription(t),
		Status:      StatusCompleted,
	})

	p := Pending{ID: id, Mutation: m, Delta: m.Amount.Neg()}
	p.undo = func(st *State, revertBalance bool) {
		if revertBalance {
			st.Profile.Balance = st.Profile.Balance.Add(m.Amount)
		}
		delete(st.Joined, t.ID)
		st.setStatus(id, StatusFailed)
	}
	return p, next, nil
}

func prepareDeposit(s State, m Mutation, now time.Time, id string) (Pending, State, error) {
	if !m.Amount.IsPositive() {
		return Pending{}, s, ErrInvalidAmount
	}

	next := s.Clone()
	next.prepend(Entry{
		ID:          id,
		Kind:        KindDeposit,
		Amount:      m.Amount,
		Date:        now,
		Description: "Deposit Request",
		Status:      StatusPending,
	})

	p := Pending{ID: id, Mutation: m, Delta: decimal.Zero}
	p.undo = func(st *State, _ bool) {
		st.setStatus(id, StatusFailed)
	}
	return p, next, nil
}

func prepareWithdrawal(s State, m Mutation, now time.Time, id string) (Pending, State, error) {
	if !m.Amount.IsPositive() {
		return Pending{}, s, ErrInvalidAmount
	}
	if s.Balance().LessThan(m.Amount) {
		return Pending{}, s, ErrInsufficientFunds
	}

	next := s.Clone()
	next.Profile.Balance = next.Profile.Balance.Sub(m.Amount)
	next.prepend(Entry{
		ID:          id,
		Kind:        KindWithdrawal,
		Amount:      m.Amount,
		Date:        now,
		Description: "Withdrawal Request",
		Status:      StatusPending,
	})

	p := Pending{ID: id, Mutation: m, Delta: m.Amount.Neg()}
	p.undo = func(st *State, revertBalance bool) {
		if revertBalance {
			st.Profile.Balance = st.Profile.Balance.Add(m.Amount)
		}
		st.setStatus(id, StatusFailed)
	}
	return p, next, nil
}

func prepareProfileEdit(s State, m Mutation, id string) (Pending, State, error) {
	username := strings.TrimSpace(m.Username)
	if username == "" {
		return Pending{}, s, ErrInvalidUsername
	}
	m.Username = username

	prevName, prevAvatar := s.Profile.Username, s.Profile.Avatar
	next := s.Clone()
	next.Profile.Username = username
	if m.Avatar != "" {
		next.Profile.Avatar = m.Avatar
	}

	p := Pending{ID: id, Mutation: m, Delta: decimal.Zero}
	p.undo = func(st *State, _ bool) {
		st.Profile.Username = prevName
		st.Profile.Avatar = prevAvatar
	}
	return p, next, nil
}

func entryFeeDescription(t TournamentRef) string {
	if t.Title != "" {
		return "Entry Fee: " + t.Title
	}
	return fmt.Sprintf("Entry Fee: Tournament #%s", t.ID)
}
