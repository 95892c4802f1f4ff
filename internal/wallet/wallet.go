package wallet

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient balance")
var ErrInvalidAmount = errors.New("amount must be greater than zero")
var ErrAlreadyJoined = errors.New("already registered for this tournament")
var ErrRegistrationClosed = errors.New("registration closed")
var ErrInvalidUsername = errors.New("username is required")
var ErrUnsupportedMutation = errors.New("unsupported mutation")

// Kind is the ledger type of a transaction log entry.
type Kind string

const (
	KindDeposit     Kind = "DEPOSIT"
	KindWithdrawal  Kind = "WITHDRAWAL"
	KindEntryFee    Kind = "ENTRY_FEE"
	KindPrizeWin    Kind = "PRIZE_WIN"
	KindProfileEdit Kind = "PROFILE_EDIT"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Entry is one row of the session's transaction log. Entries are values:
// a status change produces a new Entry in the same slot.
type Entry struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`
}

type Profile struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Avatar      string          `json:"avatar"`
	Balance     decimal.Decimal `json:"wallet_balance"`
	GamesPlayed int             `json:"games_played"`
	Wins        int             `json:"wins"`
	Kills       int             `json:"kills"`
	IsAdmin     bool            `json:"is_admin"`
}

// KDRatio is kills per death, where every game not won counts as a death.
func (p Profile) KDRatio() float64 {
	deaths := p.GamesPlayed - p.Wins
	if deaths < 1 {
		deaths = 1
	}
	return float64(p.Kills) / float64(deaths)
}

// State is everything a player session holds locally.
type State struct {
	Profile Profile
	Joined  map[string]bool
	Log     []Entry // newest first
}

func NewState(p Profile, log []Entry, joined []string) State {
	s := State{
		Profile: p,
		Joined:  make(map[string]bool, len(joined)),
		Log:     slices.Clone(log),
	}
	for _, id := range joined {
		s.Joined[id] = true
	}
	return s
}

// Clone returns a copy that shares no maps or slices with s.
func (s State) Clone() State {
	c := s
	c.Joined = maps.Clone(s.Joined)
	if c.Joined == nil {
		c.Joined = map[string]bool{}
	}
	c.Log = slices.Clone(s.Log)
	return c
}

func (s State) Balance() decimal.Decimal { return s.Profile.Balance }

func (s State) HasJoined(tournamentID string) bool { return s.Joined[tournamentID] }

// JoinedIDs returns the joined tournament ids in sorted order.
func (s State) JoinedIDs() []string {
	ids := make([]string, 0, len(s.Joined))
	for id, ok := range s.Joined {
		if ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Entry looks up a log entry by id.
func (s State) Entry(id string) (Entry, bool) {
	i := slices.IndexFunc(s.Log, func(e Entry) bool { return e.ID == id })
	if i < 0 {
		return Entry{}, false
	}
	return s.Log[i], true
}

func (s *State) prepend(e Entry) {
	s.Log = append([]Entry{e}, s.Log...)
}

func (s *State) setStatus(id string, status Status) {
	for i := range s.Log {
		if s.Log[i].ID == id {
			e := s.Log[i]
			e.Status = status
			s.Log[i] = e
			return
		}
	}
}
