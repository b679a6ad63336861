package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.RoundStore = (*RoundStore)(nil)

// RoundStore implements domain.RoundStore using PostgreSQL. The partial
// unique index rounds_single_active enforces the single active round.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a new RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Money columns are read as text and parsed with decimal to avoid float
// rounding.
const roundColumns = `id, status, payout::text, winner, created_at, closed_at, settled_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(row scanner) (domain.Round, error) {
	var (
		r      domain.Round
		status string
		payout string
		winner *string
	)
	if err := row.Scan(&r.ID, &status, &payout, &winner, &r.CreatedAt, &r.ClosedAt, &r.SettledAt); err != nil {
		return domain.Round{}, err
	}
	p, err := decimal.NewFromString(payout)
	if err != nil {
		return domain.Round{}, fmt.Errorf("parse payout %q: %w", payout, err)
	}
	r.Status = domain.RoundStatus(status)
	r.Payout = p
	if winner != nil {
		r.Winner = domain.Verdict(*winner)
	}
	return r, nil
}

// Create inserts a new round. A concurrent active round surfaces as
// domain.ErrActiveRoundExists.
func (s *RoundStore) Create(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (id, status, payout, created_at)
		VALUES ($1, $2, $3::numeric, $4)`

	_, err := s.pool.Exec(ctx, query, r.ID, string(r.Status), r.Payout.String(), r.CreatedAt)
	if err != nil {
		switch {
		case uniqueViolationOn(err, activeRoundIndex):
			return fmt.Errorf("postgres: create round %s: %w", r.ID, domain.ErrActiveRoundExists)
		case isUniqueViolation(err):
			return fmt.Errorf("postgres: create round %s: duplicate id: %w", r.ID, err)
		}
		return fmt.Errorf("postgres: create round %s: %w", r.ID, err)
	}
	return nil
}

// GetByID retrieves a round by its ID.
func (s *RoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`

	r, err := scanRound(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, domain.ErrNotFound)
		}
		return domain.Round{}, fmt.Errorf("postgres: get round %s: %w", id, err)
	}
	return r, nil
}

// GetActive returns the round that is OPEN or LIVE.
func (s *RoundStore) GetActive(ctx context.Context) (domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE status IN ('OPEN', 'LIVE') LIMIT 1`

	r, err := scanRound(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, fmt.Errorf("postgres: active round: %w", domain.ErrNotFound)
		}
		return domain.Round{}, fmt.Errorf("postgres: active round: %w", err)
	}
	return r, nil
}

// GetLatestCompleted returns the most recently settled round.
func (s *RoundStore) GetLatestCompleted(ctx context.Context) (domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds
		WHERE status = 'COMPLETED'
		ORDER BY settled_at DESC
		LIMIT 1`

	r, err := scanRound(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, fmt.Errorf("postgres: latest completed round: %w", domain.ErrNotFound)
		}
		return domain.Round{}, fmt.Errorf("postgres: latest completed round: %w", err)
	}
	return r, nil
}

// CloseBetting moves an OPEN round to LIVE. The conditional update
// serializes against wager inserts holding FOR SHARE on the round row.
func (s *RoundStore) CloseBetting(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE rounds SET status = 'LIVE', closed_at = $2 WHERE id = $1 AND status = 'OPEN'`

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("postgres: close betting %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rounds WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: close betting %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("postgres: close betting %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: close betting %s: %w", id, domain.ErrRoundNotOpen)
}
