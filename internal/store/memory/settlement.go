package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// InSettlementTx runs fn while holding the store lock. Writes are staged and
// applied only when fn returns nil, so a failed settlement leaves no trace.
func (s *Store) InSettlementTx(ctx context.Context, fn func(tx domain.SettlementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &settlementTx{
		s:      s,
		rounds: make(map[string]domain.Round),
		wagers: make(map[string]domain.Wager),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: settlement: %w", err)
	}

	for id, r := range tx.rounds {
		s.rounds[id] = r
	}
	for id, w := range tx.wagers {
		s.wagers[id] = w
	}
	return nil
}

// settlementTx overlays staged writes on the store. The store mutex is held
// by InSettlementTx for the lifetime of the tx.
type settlementTx struct {
	s      *Store
	rounds map[string]domain.Round
	wagers map[string]domain.Wager
}

func (t *settlementTx) round(id string) (domain.Round, bool) {
	if r, ok := t.rounds[id]; ok {
		return r, true
	}
	r, ok := t.s.rounds[id]
	return r, ok
}

func (t *settlementTx) wager(id string) (domain.Wager, bool) {
	if w, ok := t.wagers[id]; ok {
		return w, true
	}
	w, ok := t.s.wagers[id]
	return w, ok
}

func (t *settlementTx) LockRound(_ context.Context, id string) (domain.Round, error) {
	r, ok := t.round(id)
	if !ok {
		return domain.Round{}, fmt.Errorf("memory: lock round %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (t *settlementTx) PendingWagers(_ context.Context, roundID string) ([]domain.Wager, error) {
	var out []domain.Wager
	for _, id := range t.s.wagerOrder[roundID] {
		w, _ := t.wager(id)
		if w.Status == domain.WagerStatusPending {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *settlementTx) FinalizeWager(_ context.Context, res domain.WagerResult, at time.Time) error {
	w, ok := t.wager(res.WagerID)
	if !ok {
		return fmt.Errorf("memory: finalize wager %s: %w", res.WagerID, domain.ErrNotFound)
	}
	if w.Status.Terminal() {
		return fmt.Errorf("memory: finalize wager %s: already %s", w.ID, w.Status)
	}
	w.Status = res.Status
	w.Winnings = res.Winnings
	w.SettledAt = &at
	t.wagers[w.ID] = w
	return nil
}

func (t *settlementTx) CompleteRound(_ context.Context, id string, winner domain.Verdict, at time.Time) error {
	r, ok := t.round(id)
	if !ok {
		return fmt.Errorf("memory: complete round %s: %w", id, domain.ErrNotFound)
	}
	if !r.Status.CanTransitionTo(domain.RoundStatusCompleted) {
		return fmt.Errorf("memory: complete round %s from %s: %w", id, r.Status, domain.ErrInvalidTransition)
	}
	r.Status = domain.RoundStatusCompleted
	r.Winner = winner
	r.SettledAt = &at
	t.rounds[id] = r
	return nil
}
