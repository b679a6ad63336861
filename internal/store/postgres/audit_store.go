package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.AuditStore = (*AuditStore)(nil)

// AuditStore keeps the round transition history in audit_log.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log records event for roundID. detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event domain.EventType, roundID string, detail map[string]any) error {
	var detailJSON []byte
	if len(detail) > 0 {
		var err error
		if detailJSON, err = json.Marshal(detail); err != nil {
			return fmt.Errorf("postgres: audit %s: marshal detail: %w", event, err)
		}
	}

	const query = `
		INSERT INTO audit_log (event, round_id, detail)
		VALUES ($1, NULLIF($2, ''), $3)`
	if _, err := s.pool.Exec(ctx, query, string(event), roundID, detailJSON); err != nil {
		return fmt.Errorf("postgres: audit %s round %s: %w", event, roundID, err)
	}
	return nil
}

// auditFilter builds the WHERE clause and arguments for opts.
func auditFilter(opts domain.ListOpts) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if opts.RoundID != "" {
		add("round_id = $%d", opts.RoundID)
	}
	if opts.Since != nil {
		add("created_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		add("created_at <= $%d", *opts.Until)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns entries newest first, filtered by round and time range.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	where, args := auditFilter(opts)
	query := `SELECT id, event, COALESCE(round_id, ''), detail, created_at FROM audit_log` +
		where + ` ORDER BY id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e          domain.AuditEntry
			event      string
			detailJSON []byte
		)
		if err := rows.Scan(&e.ID, &event, &e.RoundID, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit: %w", err)
		}
		e.Event = domain.EventType(event)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: audit %d: unmarshal detail: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}
