// Package backend declares the contracts of the managed backend the portal
// runs on: auth, table access, remote procedures and realtime change feeds.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/battlezone/internal/wallet"
)

var ErrUnauthenticated = errors.New("not signed in")
var ErrInvalidCredentials = errors.New("invalid email or password")
var ErrEmailTaken = errors.New("email already registered")
var ErrNotFound = errors.New("not found")
var ErrMissingArgument = errors.New("missing argument")
var ErrInvalidInput = errors.New("invalid input")

// RemoteError is the structured failure a remote procedure reports. Message
// is meant for the user.
type RemoteError struct {
	Procedure string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Procedure, e.Message)
}

// UserMessage extracts the human-readable part of a remote failure.
func UserMessage(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

// Procedure names.
const (
	ProcJoinTournament     = "join_tournament"
	ProcRequestDeposit     = "request_deposit"
	ProcRequestWithdrawal  = "request_withdrawal"
	ProcUpdateProfile      = "update_profile"
	ProcApproveTransaction = "approve_transaction"
	ProcRejectTransaction  = "reject_transaction"
)

type AuthSession struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type AuthEventType string

const (
	SignedIn  AuthEventType = "SIGNED_IN"
	SignedOut AuthEventType = "SIGNED_OUT"
)

type AuthEvent struct {
	Type   AuthEventType
	UserID string
}

type Auth interface {
	SignUp(ctx context.Context, email, password string) (AuthSession, error)
	SignIn(ctx context.Context, email, password string) (AuthSession, error)
	SignOut(ctx context.Context, token string) error
	Current(ctx context.Context, token string) (AuthSession, error)
	// Events delivers session changes until the returned func is called.
	Events() (<-chan AuthEvent, func())
}

type TournamentFilter struct {
	Game GameType // empty = all games
}

type TransactionFilter struct {
	UserID string
	Status wallet.Status
}

type Tables interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	ListTournaments(ctx context.Context, f TournamentFilter) ([]Tournament, error)
	GetTournament(ctx context.Context, id string) (Tournament, error)
	SaveTournament(ctx context.Context, t Tournament) (Tournament, error)
	DeleteTournament(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	ListRegistrations(ctx context.Context, userID string) ([]Registration, error)
}

// Args are named procedure arguments.
type Args map[string]any

func (a Args) String(key string) (string, error) {
	v, ok := a[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w %q", ErrMissingArgument, key)
	}
	return v, nil
}

func (a Args) Optional(key string) string {
	v, _ := a[key].(string)
	return v
}

type Procedures interface {
	// Call invokes a named procedure. Failures are *RemoteError.
	Call(ctx context.Context, name string, args Args) error
}

const TableProfiles = "profiles"

type Filter struct {
	Table string
	RowID string
}

func (f Filter) Matches(c Change) bool {
	return f.Table == c.Table && (f.RowID == "" || f.RowID == c.RowID)
}

// Change is one row-change notification.
type Change struct {
	Table   string
	RowID   string
	Profile *wallet.Snapshot
	// Entry is set when one of the user's ledger rows changed status.
	Entry   *wallet.Entry
}

type Subscription interface {
	// Changes is closed when the subscription is released or dropped.
	Changes() <-chan Change
	Close()
}

type Realtime interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}
