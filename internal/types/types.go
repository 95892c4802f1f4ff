package types

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

type ClientMessage struct {
	Type         string          `json:"type"` // "JoinTournament" | "Deposit" | "Withdraw" | "UpdateProfile"
	RequestID    string          `json:"request_id,omitempty"`
	TournamentID string          `json:"tournament_id,omitempty"`
	Amount       decimal.Decimal `json:"amount,omitempty"`
	Username     string          `json:"username,omitempty"`
	Avatar       string          `json:"avatar,omitempty"`
}

type ServerMessage struct {
	Type      string     `json:"type"` // "StateSnapshot" | "Result" | "Error"
	Version   int        `json:"version,omitempty"`
	State     *StateView `json:"state,omitempty"`
	Notice    string     `json:"notice,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type ProfileView struct {
	wallet.Profile
	KDRatio float64 `json:"kd_ratio"`
}

type StateView struct {
	Profile      ProfileView    `json:"profile"`
	Joined       []string       `json:"joined_tournaments"`
	Transactions []wallet.Entry `json:"transactions"`
}

func NewStateView(s wallet.State) *StateView {
	log := s.Log
	if log == nil {
		log = []wallet.Entry{}
	}
	return &StateView{
		Profile:      ProfileView{Profile: s.Profile, KDRatio: s.Profile.KDRatio()},
		Joined:       s.JoinedIDs(),
		Transactions: log,
	}
}

func Snapshot(snap session.Snapshot) ServerMessage {
	return ServerMessage{
		Type:    "StateSnapshot",
		Version: snap.Version,
		State:   NewStateView(snap.State),
		Notice:  snap.Notice,
	}
}

var ErrUnknownType = errors.New("unknown message type")

// Mutation resolves a client command into a wallet mutation. Joins look the
// tournament up so the fee and registration window come from the server.
func (m ClientMessage) Mutation(ctx context.Context, tables backend.Tables) (wallet.Mutation, error) {
	switch m.Type {
	case "JoinTournament":
		t, err := tables.GetTournament(ctx, m.TournamentID)
		if err != nil {
			return wallet.Mutation{}, fmt.Errorf("tournament %q: %w", m.TournamentID, err)
		}
		return wallet.EntryFee(t.Ref()), nil
	case "Deposit":
		return wallet.Deposit(m.Amount), nil
	case "Withdraw":
		return wallet.Withdrawal(m.Amount), nil
	case "UpdateProfile":
		return wallet.ProfileEdit(m.Username, m.Avatar), nil
	default:
		return wallet.Mutation{}, fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
}
