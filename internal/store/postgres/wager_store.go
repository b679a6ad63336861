package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.WagerStore = (*WagerStore)(nil)

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

const wagerColumns = `id, round_id, bettor, stake::text, zone, status, winnings::text, placed_at, settled_at`

func scanWager(row scanner) (domain.Wager, error) {
	var (
		w               domain.Wager
		stake, winnings string
		zone, status    string
	)
	if err := row.Scan(&w.ID, &w.RoundID, &w.Bettor, &stake, &zone, &status, &winnings, &w.PlacedAt, &w.SettledAt); err != nil {
		return domain.Wager{}, err
	}
	var err error
	if w.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.Wager{}, fmt.Errorf("parse stake %q: %w", stake, err)
	}
	if w.Winnings, err = decimal.NewFromString(winnings); err != nil {
		return domain.Wager{}, fmt.Errorf("parse winnings %q: %w", winnings, err)
	}
	w.Zone = domain.Zone(zone)
	w.Status = domain.WagerStatus(status)
	return w, nil
}

func collectWagers(rows pgx.Rows) ([]domain.Wager, error) {
	defer rows.Close()
	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wager: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Place inserts a wager after confirming, under a shared lock on the round
// row, that the round is still OPEN.
func (s *WagerStore) Place(ctx context.Context, w domain.Wager) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM rounds WHERE id = $1 FOR SHARE`, w.RoundID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("postgres: place wager: round %s: %w", w.RoundID, domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: place wager: lock round %s: %w", w.RoundID, err)
		}
		if domain.RoundStatus(status) != domain.RoundStatusOpen {
			return fmt.Errorf("postgres: place wager: round %s: %w", w.RoundID, domain.ErrRoundNotOpen)
		}

		const query = `
			INSERT INTO wagers (id, round_id, bettor, stake, zone, status, winnings, placed_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, 0, $7)`
		_, err = tx.Exec(ctx, query,
			w.ID, w.RoundID, w.Bettor, w.Stake.String(),
			string(w.Zone), string(domain.WagerStatusPending), w.PlacedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: place wager %s: %w", w.ID, err)
		}
		return nil
	})
}

// ListByRound returns a round's wagers in placement order.
func (s *WagerStore) ListByRound(ctx context.Context, roundID string) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE round_id = $1 ORDER BY placed_at, id`

	rows, err := s.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers %s: %w", roundID, err)
	}
	ws, err := collectWagers(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers %s: %w", roundID, err)
	}
	return ws, nil
}

// CountByRound returns the number of wagers on a round.
func (s *WagerStore) CountByRound(ctx context.Context, roundID string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wagers WHERE round_id = $1`, roundID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count wagers %s: %w", roundID, err)
	}
	return n, nil
}
