package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WagerStatus is PENDING until settlement sets WON or LOST, once.
type WagerStatus string

const (
	WagerStatusPending WagerStatus = "PENDING"
	WagerStatusWon     WagerStatus = "WON"
	WagerStatusLost    WagerStatus = "LOST"
)

// Terminal reports whether the status can no longer change.
func (s WagerStatus) Terminal() bool {
	return s == WagerStatusWon || s == WagerStatusLost
}

// Wager is one bettor's stake on a zone for a round.
type Wager struct {
	ID        string          `json:"id"`
	RoundID   string          `json:"round_id"`
	Bettor    string          `json:"bettor"`
	Stake     decimal.Decimal `json:"stake"`
	Zone      Zone            `json:"zone"`
	Status    WagerStatus     `json:"status"`
	Winnings  decimal.Decimal `json:"winnings"`
	PlacedAt  time.Time       `json:"placed_at"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
}

// MaxStakeDecimals is the number of fractional digits a stake may carry.
const MaxStakeDecimals = 4
