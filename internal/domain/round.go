package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus tracks the round lifecycle: OPEN -> LIVE -> COMPLETED.
type RoundStatus string

const (
	RoundStatusOpen      RoundStatus = "OPEN"
	RoundStatusLive      RoundStatus = "LIVE"
	RoundStatusCompleted RoundStatus = "COMPLETED"
)

// Next returns the only status s may move to, or "" for a terminal status.
func (s RoundStatus) Next() RoundStatus {
	switch s {
	case RoundStatusOpen:
		return RoundStatusLive
	case RoundStatusLive:
		return RoundStatusCompleted
	default:
		return ""
	}
}

// CanTransitionTo reports whether s may move to next. Transitions are
// monotonic and never skip a status.
func (s RoundStatus) CanTransitionTo(next RoundStatus) bool {
	return next != "" && s.Next() == next
}

// Active reports whether the round still counts against the single
// open-or-live round allowance.
func (s RoundStatus) Active() bool {
	return s == RoundStatusOpen || s == RoundStatusLive
}

// Round is one open-bet, lock, determine, settle cycle.
type Round struct {
	ID        string          `json:"id"`
	Status    RoundStatus     `json:"status"`
	Payout    decimal.Decimal `json:"payout"` // fixed at creation
	Winner    Verdict         `json:"winner,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
}

// RoundSummary pairs a round with its wager count for listings.
type RoundSummary struct {
	Round
	TotalWagers int64 `json:"total_wagers"`
}
