// Package settlement closes out a LIVE round against a verdict: every pending
// wager becomes WON or LOST and the round becomes COMPLETED, as one unit.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// Result describes what a Settle call did.
type Result struct {
	Round  domain.Round   `json:"round"`
	Wagers []domain.Wager `json:"wagers"`
	// AlreadySettled is set when the round was COMPLETED before the call and
	// nothing was written.
	AlreadySettled bool            `json:"already_settled"`
	Winners        int             `json:"winners"`
	TotalStake     decimal.Decimal `json:"total_stake"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

// Engine settles rounds through a SettlementStore.
type Engine struct {
	store  domain.SettlementStore
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store domain.SettlementStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// Resolve computes the outcome of a single wager against verdict. Only a
// wager on the winning zone wins; it pays stake multiplied by payout.
func Resolve(w domain.Wager, verdict domain.Verdict, payout decimal.Decimal) domain.WagerResult {
	if domain.VerdictFor(w.Zone) == verdict && verdict.Playable() {
		return domain.WagerResult{
			WagerID:  w.ID,
			Status:   domain.WagerStatusWon,
			Winnings: w.Stake.Mul(payout),
		}
	}
	return domain.WagerResult{
		WagerID:  w.ID,
		Status:   domain.WagerStatusLost,
		Winnings: decimal.Zero,
	}
}

// Settle resolves every pending wager of roundID against verdict and marks
// the round COMPLETED. A COMPLETED round is reported as already settled
// without error whatever the verdict; an OPEN round is refused with
// domain.ErrRoundNotLive. The verdict is checked only for a LIVE round.
// Either every write lands or none does.
func (e *Engine) Settle(ctx context.Context, roundID string, verdict domain.Verdict) (Result, error) {
	var res Result
	err := e.store.InSettlementTx(ctx, func(tx domain.SettlementTx) error {
		res = Result{TotalStake: decimal.Zero, TotalPaid: decimal.Zero}

		round, err := tx.LockRound(ctx, roundID)
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		res.Round = round

		switch round.Status {
		case domain.RoundStatusCompleted:
			res.AlreadySettled = true
			return nil
		case domain.RoundStatusLive:
		default:
			return fmt.Errorf("%w: round %s is %s", domain.ErrRoundNotLive, round.ID, round.Status)
		}

		// The round state decides first: a settled round is a no-op for any
		// verdict.
		if !verdict.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidVerdict, verdict)
		}
		if !verdict.Settleable() {
			return fmt.Errorf("%w: %s", domain.ErrVerdictNotSettleable, verdict)
		}

		pending, err := tx.PendingWagers(ctx, round.ID)
		if err != nil {
			return fmt.Errorf("pending wagers: %w", err)
		}

		at := e.now()
		res.Wagers = make([]domain.Wager, 0, len(pending))
		for _, w := range pending {
			r := Resolve(w, verdict, round.Payout)
			if err := tx.FinalizeWager(ctx, r, at); err != nil {
				return fmt.Errorf("finalize wager %s: %w", w.ID, err)
			}
			w.Status = r.Status
			w.Winnings = r.Winnings
			settledAt := at
			w.SettledAt = &settledAt
			res.Wagers = append(res.Wagers, w)

			res.TotalStake = res.TotalStake.Add(w.Stake)
			res.TotalPaid = res.TotalPaid.Add(r.Winnings)
			if r.Status == domain.WagerStatusWon {
				res.Winners++
			}
		}

		if err := tx.CompleteRound(ctx, round.ID, verdict, at); err != nil {
			return fmt.Errorf("complete round: %w", err)
		}
		res.Round.Status = domain.RoundStatusCompleted
		res.Round.Winner = verdict
		settledAt := at
		res.Round.SettledAt = &settledAt
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoundNotLive) || errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "settlement: refused",
				slog.String("round_id", roundID),
				slog.String("verdict", string(verdict)),
				slog.String("error", err.Error()),
			)
		}
		return Result{}, fmt.Errorf("settlement: %w", err)
	}

	if res.AlreadySettled {
		e.logger.InfoContext(ctx, "settlement: round already settled",
			slog.String("round_id", roundID),
			slog.String("winner", string(res.Round.Winner)),
		)
		return res, nil
	}

	e.logger.InfoContext(ctx, "settlement: round settled",
		slog.String("round_id", roundID),
		slog.String("winner", string(verdict)),
		slog.Int("wagers", len(res.Wagers)),
		slog.Int("winners", res.Winners),
		slog.String("total_stake", res.TotalStake.String()),
		slog.String("total_paid", res.TotalPaid.String()),
	)
	return res, nil
}

// Totals sums settled wagers: the number of winners, the total staked and the
// total paid out.
func Totals(wagers []domain.Wager) (winners int, stake, paid decimal.Decimal) {
	stake, paid = decimal.Zero, decimal.Zero
	for _, w := range wagers {
		stake = stake.Add(w.Stake)
		paid = paid.Add(w.Winnings)
		if w.Status == domain.WagerStatusWon {
			winners++
		}
	}
	return winners, stake, paid
}
