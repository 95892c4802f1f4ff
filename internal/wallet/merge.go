package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Snapshot is an authoritative profile record pushed by the backend. Nil
// fields were not part of the notification.
type Snapshot struct {
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	Username    *string          `json:"username,omitempty"`
	Avatar      *string          `json:"avatar,omitempty"`
	IsAdmin     *bool            `json:"is_admin,omitempty"`
	GamesPlayed *int             `json:"games_played,omitempty"`
	Wins        *int             `json:"wins,omitempty"`
	Kills       *int             `json:"kills,omitempty"`
	// Entry is a ledger row the backend settled. Only its status is merged,
	// and only into an entry the log already holds.
	Entry       *Entry           `json:"entry,omitempty"`
}

// SnapshotOf builds a snapshot carrying every field of p.
func SnapshotOf(p Profile) Snapshot {
	return Snapshot{
		Balance:     &p.Balance,
		Username:    &p.Username,
		Avatar:      &p.Avatar,
		IsAdmin:     &p.IsAdmin,
		GamesPlayed: &p.GamesPlayed,
		Wins:        &p.Wins,
		Kills:       &p.Kills,
	}
}

// Overlay returns s with every profile field newer carries replaced by
// newer's value. Entry is not carried over.
func (s Snapshot) Overlay(newer Snapshot) Snapshot {
	out := s
	out.Entry = nil
	overlay(&out.Balance, newer.Balance)
	overlay(&out.Username, newer.Username)
	overlay(&out.Avatar, newer.Avatar)
	overlay(&out.IsAdmin, newer.IsAdmin)
	overlay(&out.GamesPlayed, newer.GamesPlayed)
	overlay(&out.Wins, newer.Wins)
	overlay(&out.Kills, newer.Kills)
	return out
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// MergePolicy decides what a snapshot may overwrite while a mutation is
// pending.
type MergePolicy string

const (
	// AuthoritativeWins merges every provided field, including over an
	// optimistic delta that is still in flight.
	AuthoritativeWins MergePolicy = "authoritative"
	// PreservePending skips the fields the in-flight mutation touched.
	PreservePending MergePolicy = "preserve-pending"
)

func ParseMergePolicy(v string) (MergePolicy, error) {
	switch MergePolicy(v) {
	case AuthoritativeWins, "":
		return AuthoritativeWins, nil
	case PreservePending:
		return PreservePending, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", v)
	}
}

// MergeResult reports what a merge did.
type MergeResult struct {
	Changed bool
	// BalanceOverwritten is set when the balance was replaced while a
	// balance-moving mutation was pending.
	BalanceOverwritten bool
}

// Merge folds snap into s under policy. pending is the in-flight mutation,
// or nil. Merging the same snapshot twice leaves the state unchanged the
// second time.
func Merge(s State, snap Snapshot, policy MergePolicy, pending *Pending) (State, MergeResult) {
	next := s.Clone()
	var res MergeResult

	skipBalance, skipProfile := false, false
	if policy == PreservePending && pending != nil {
		skipBalance = !pending.Delta.IsZero()
		skipProfile = pending.Mutation.Kind == KindProfileEdit
	}

	if snap.Balance != nil && !skipBalance && !snap.Balance.Equal(next.Profile.Balance) {
		next.Profile.Balance = *snap.Balance
		res.Changed = true
		if pending != nil && !pending.Delta.IsZero() {
			res.BalanceOverwritten = true
		}
	}
	if !skipProfile {
		res.Changed = set(&next.Profile.Username, snap.Username) || res.Changed
		res.Changed = set(&next.Profile.Avatar, snap.Avatar) || res.Changed
	}
	res.Changed = set(&next.Profile.IsAdmin, snap.IsAdmin) || res.Changed
	res.Changed = set(&next.Profile.GamesPlayed, snap.GamesPlayed) || res.Changed
	res.Changed = set(&next.Profile.Wins, snap.Wins) || res.Changed
	res.Changed = set(&next.Profile.Kills, snap.Kills) || res.Changed
	if snap.Entry != nil {
		if e, ok := next.Entry(snap.Entry.ID); ok && e.Status != snap.Entry.Status {
			next.setStatus(e.ID, snap.Entry.Status)
			res.Changed = true
		}
	}

	if !res.Changed {
		return s, res
	}
	return next, res
}

func set[T comparable](dst *T, src *T) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}
