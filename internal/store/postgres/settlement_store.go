package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.SettlementStore = (*SettlementStore)(nil)

// SettlementStore runs settlement units as PostgreSQL transactions. The
// round row is held with FOR UPDATE for the whole unit.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// InSettlementTx runs fn in a transaction and commits only if fn succeeds.
func (s *SettlementStore) InSettlementTx(ctx context.Context, fn func(tx domain.SettlementTx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&settlementTx{tx: tx})
	})
}

type settlementTx struct {
	tx pgx.Tx
}

func (t *settlementTx) LockRound(ctx context.Context, id string) (domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1 FOR UPDATE`

	r, err := scanRound(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, fmt.Errorf("postgres: lock round %s: %w", id, domain.ErrNotFound)
		}
		return domain.Round{}, fmt.Errorf("postgres: lock round %s: %w", id, err)
	}
	return r, nil
}

func (t *settlementTx) PendingWagers(ctx context.Context, roundID string) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers
		WHERE round_id = $1 AND status = 'PENDING'
		ORDER BY placed_at, id
		FOR UPDATE`

	rows, err := t.tx.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending wagers %s: %w", roundID, err)
	}
	ws, err := collectWagers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending wagers %s: %w", roundID, err)
	}
	return ws, nil
}

func (t *settlementTx) FinalizeWager(ctx context.Context, res domain.WagerResult, at time.Time) error {
	const query = `
		UPDATE wagers SET status = $2, winnings = $3::numeric, settled_at = $4
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := t.tx.Exec(ctx, query, res.WagerID, string(res.Status), res.Winnings.String(), at)
	if err != nil {
		return fmt.Errorf("postgres: finalize wager %s: %w", res.WagerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finalize wager %s: not pending", res.WagerID)
	}
	return nil
}

func (t *settlementTx) CompleteRound(ctx context.Context, id string, winner domain.Verdict, at time.Time) error {
	const query = `
		UPDATE rounds SET status = 'COMPLETED', winner = $2, settled_at = $3
		WHERE id = $1 AND status = 'LIVE'`

	tag, err := t.tx.Exec(ctx, query, id, string(winner), at)
	if err != nil {
		return fmt.Errorf("postgres: complete round %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: complete round %s: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}
