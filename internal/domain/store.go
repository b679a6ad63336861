package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries. An empty
// RoundID matches every round.
type ListOpts struct {
	Limit   int
	Offset  int
	Since   *time.Time
	Until   *time.Time
	RoundID string
}

// RoundStore persists rounds. Create refuses a new round while another is
// OPEN or LIVE.
type RoundStore interface {
	Create(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id string) (Round, error)
	GetActive(ctx context.Context) (Round, error)
	GetLatestCompleted(ctx context.Context) (Round, error)
	CloseBetting(ctx context.Context, id string, at time.Time) error
}

// WagerStore persists wagers. Place must check, atomically with the insert,
// that the round is still OPEN.
type WagerStore interface {
	Place(ctx context.Context, wager Wager) error
	ListByRound(ctx context.Context, roundID string) ([]Wager, error)
	CountByRound(ctx context.Context, roundID string) (int64, error)
}

// WagerResult is the final state settlement assigns to one wager.
type WagerResult struct {
	WagerID  string
	Status   WagerStatus
	Winnings decimal.Decimal
}

// SettlementTx is the view of the store inside one settlement unit.
type SettlementTx interface {
	// LockRound reads the round and holds it against concurrent writers
	// until the unit ends.
	LockRound(ctx context.Context, id string) (Round, error)
	PendingWagers(ctx context.Context, roundID string) ([]Wager, error)
	FinalizeWager(ctx context.Context, res WagerResult, at time.Time) error
	CompleteRound(ctx context.Context, id string, winner Verdict, at time.Time) error
}

// SettlementStore runs fn as a single atomic unit: either everything fn
// wrote becomes visible, or nothing does.
type SettlementStore interface {
	InSettlementTx(ctx context.Context, fn func(tx SettlementTx) error) error
}

// AuditEntry records one lifecycle transition of a round.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     EventType      `json:"event"`
	RoundID   string         `json:"round_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore keeps the append-only history of round transitions, newest
// first on List.
type AuditStore interface {
	Log(ctx context.Context, event EventType, roundID string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// CaptureStore records classification attempts. Captures are informational
// and never feed back into round state.
type CaptureStore interface {
	Save(ctx context.Context, c Capture) error
	ListByRound(ctx context.Context, roundID string) ([]Capture, error)
}
