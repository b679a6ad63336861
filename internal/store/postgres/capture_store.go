package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.CaptureStore = (*CaptureStore)(nil)

// CaptureStore implements domain.CaptureStore using PostgreSQL.
type CaptureStore struct {
	pool *pgxpool.Pool
}

// NewCaptureStore creates a new CaptureStore backed by the given pool.
func NewCaptureStore(pool *pgxpool.Pool) *CaptureStore {
	return &CaptureStore{pool: pool}
}

// Save inserts a capture record.
func (s *CaptureStore) Save(ctx context.Context, c domain.Capture) error {
	var cx, cy *float64
	if c.Centroid != nil {
		cx, cy = &c.Centroid.X, &c.Centroid.Y
	}
	zones := make([]string, len(c.ZonesFound))
	for i, z := range c.ZonesFound {
		zones[i] = string(z)
	}

	const query = `
		INSERT INTO captures (
			id, round_id, verdict, centroid_x, centroid_y,
			marker_vertices, zones_found, image_path, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.RoundID, string(c.Verdict), cx, cy,
		c.MarkerVertices, zones, c.ImagePath, c.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save capture %s: %w", c.ID, err)
	}
	return nil
}

// ListByRound returns a round's captures, oldest first.
func (s *CaptureStore) ListByRound(ctx context.Context, roundID string) ([]domain.Capture, error) {
	const query = `
		SELECT id, round_id, verdict, centroid_x, centroid_y,
		       marker_vertices, zones_found, image_path, captured_at
		FROM captures WHERE round_id = $1 ORDER BY captured_at, id`

	rows, err := s.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list captures %s: %w", roundID, err)
	}
	defer rows.Close()

	var out []domain.Capture
	for rows.Next() {
		var (
			c       domain.Capture
			verdict string
			cx, cy  *float64
			zones   []string
		)
		if err := rows.Scan(&c.ID, &c.RoundID, &verdict, &cx, &cy,
			&c.MarkerVertices, &zones, &c.ImagePath, &c.CapturedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan capture: %w", err)
		}
		c.Verdict = domain.Verdict(verdict)
		if cx != nil && cy != nil {
			c.Centroid = &domain.Point{X: *cx, Y: *cy}
		}
		for _, z := range zones {
			c.ZonesFound = append(c.ZonesFound, domain.Zone(z))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list captures rows: %w", err)
	}
	return out, nil
}
