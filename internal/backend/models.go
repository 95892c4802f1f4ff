package backend

import (
	"strings"
	"time"

	"github.com/DoyleJ11/battlezone/internal/wallet"
	"github.com/shopspring/decimal"
)

type GameType string

const (
	GamePUBG     GameType = "PUBG Mobile"
	GameFreeFire GameType = "Free Fire"
)

type TournamentStatus string

const (
	StatusOpen        TournamentStatus = "Registration Open"
	StatusFillingFast TournamentStatus = "Filling Fast"
	StatusClosed      TournamentStatus = "Closed"
	StatusLive        TournamentStatus = "Live Now"
	StatusCompleted   TournamentStatus = "Completed"
)

type TournamentMode string

const (
	ModeSolo  TournamentMode = "Solo"
	ModeDuo   TournamentMode = "Duo"
	ModeSquad TournamentMode = "Squad"
)

// DefaultRules apply to every tournament that does not carry its own.
var DefaultRules = []string{
	"No teaming up with other squads.",
	"Emulators are strictly prohibited for mobile tournaments.",
	"Screenshots of results must be uploaded within 10 minutes of match end.",
	"Toxic behavior in voice chat results in immediate disqualification.",
}

type Profile struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username    string          `gorm:"not null" json:"username"`
	Avatar      string          `json:"avatar"`
	Balance     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`
	GamesPlayed int             `json:"games_played"`
	Wins        int             `json:"wins"`
	Kills       int             `json:"kills"`
	IsAdmin     bool            `gorm:"default:false" json:"is_admin"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p Profile) Wallet() wallet.Profile {
	return wallet.Profile{
		ID:          p.ID,
		Username:    p.Username,
		Avatar:      p.Avatar,
		Balance:     p.Balance,
		GamesPlayed: p.GamesPlayed,
		Wins:        p.Wins,
		Kills:       p.Kills,
		IsAdmin:     p.IsAdmin,
	}
}

type Tournament struct {
	ID          string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title       string           `gorm:"not null" json:"title"`
	Game        GameType         `gorm:"index" json:"game"`
	Map         string           `json:"map"`
	Mode        TournamentMode   `json:"mode"`
	EntryFee    decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0" json:"entry_fee"`
	PrizePool   decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0" json:"prize_pool"`
	StartTime   time.Time        `gorm:"index" json:"start_time"`
	Status      TournamentStatus `json:"status"`
	MaxSlots    int              `json:"max_slots"`
	FilledSlots int              `json:"filled_slots"`
	Image       string           `json:"image"`
	Description string           `json:"description"`
	Rules       string           `json:"-"` // newline separated
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Open reports whether the tournament still accepts registrations.
func (t Tournament) Open() bool {
	switch t.Status {
	case StatusClosed, StatusCompleted:
		return false
	}
	return t.MaxSlots == 0 || t.FilledSlots < t.MaxSlots
}

func (t Tournament) RuleList() []string {
	if strings.TrimSpace(t.Rules) == "" {
		return DefaultRules
	}
	var out []string
	for _, r := range strings.Split(t.Rules, "\n") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (t Tournament) Ref() wallet.TournamentRef {
	return wallet.TournamentRef{ID: t.ID, Title: t.Title, Fee: t.EntryFee, Open: t.Open()}
}

type Transaction struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string          `gorm:"index;not null" json:"user_id"`
	Type        wallet.Kind     `gorm:"not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Description string          `json:"description"`
	Status      wallet.Status   `gorm:"index;not null" json:"status"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	// Username is filled by admin listings only.
	Username string `gorm:"->;-:migration" json:"username,omitempty"`
}

func (t Transaction) Entry() wallet.Entry {
	return wallet.Entry{
		ID:          t.ID,
		Kind:        t.Type,
		Amount:      t.Amount,
		Date:        t.CreatedAt,
		Description: t.Description,
		Status:      t.Status,
	}
}

type Registration struct {
	UserID       string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	TournamentID string    `gorm:"primaryKey;type:varchar(64)" json:"tournament_id"`
	CreatedAt    time.Time `json:"created_at"`
}
