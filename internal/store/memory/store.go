// Package memory is an in-process implementation of the round, wager,
// settlement, capture and audit stores. It backs the "memory" store driver
// and the package tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.RoundStore      = (*Store)(nil)
	_ domain.WagerStore      = (*Store)(nil)
	_ domain.SettlementStore = (*Store)(nil)
	_ domain.AuditStore      = (*Store)(nil)
)

// Store keeps all state in maps guarded by one mutex. Slices preserve
// insertion order.
type Store struct {
	mu sync.Mutex

	rounds     map[string]domain.Round
	roundOrder []string

	wagers     map[string]domain.Wager
	wagerOrder map[string][]string // round ID -> wager IDs

	audit  []domain.AuditEntry
	nextID int64

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rounds:     make(map[string]domain.Round),
		wagers:     make(map[string]domain.Wager),
		wagerOrder: make(map[string][]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---------------------------------------------------------------------------
// Rounds
// ---------------------------------------------------------------------------

// Create inserts a new round. It fails with domain.ErrActiveRoundExists
// while another round is OPEN or LIVE.
func (s *Store) Create(_ context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[round.ID]; ok {
		return fmt.Errorf("memory: create round %s: duplicate id", round.ID)
	}
	for _, r := range s.rounds {
		if r.Status.Active() {
			return fmt.Errorf("memory: create round: %w (%s)", domain.ErrActiveRoundExists, r.ID)
		}
	}
	s.rounds[round.ID] = round
	s.roundOrder = append(s.roundOrder, round.ID)
	return nil
}

// GetByID returns the round with the given ID.
func (s *Store) GetByID(_ context.Context, id string) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, fmt.Errorf("memory: get round %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// GetActive returns the OPEN or LIVE round, if any.
func (s *Store) GetActive(_ context.Context) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.roundOrder {
		if r := s.rounds[id]; r.Status.Active() {
			return r, nil
		}
	}
	return domain.Round{}, fmt.Errorf("memory: active round: %w", domain.ErrNotFound)
}

// GetLatestCompleted returns the most recently settled round.
func (s *Store) GetLatestCompleted(_ context.Context) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  domain.Round
		found bool
	)
	for _, id := range s.roundOrder {
		r := s.rounds[id]
		if r.Status != domain.RoundStatusCompleted || r.SettledAt == nil {
			continue
		}
		if !found || !r.SettledAt.Before(*best.SettledAt) {
			best, found = r, true
		}
	}
	if !found {
		return domain.Round{}, fmt.Errorf("memory: latest completed round: %w", domain.ErrNotFound)
	}
	return best, nil
}

// CloseBetting moves an OPEN round to LIVE.
func (s *Store) CloseBetting(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return fmt.Errorf("memory: close betting %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != domain.RoundStatusOpen {
		return fmt.Errorf("memory: close betting %s: %w", id, domain.ErrRoundNotOpen)
	}
	r.Status = domain.RoundStatusLive
	r.ClosedAt = &at
	s.rounds[id] = r
	return nil
}

// ---------------------------------------------------------------------------
// Wagers
// ---------------------------------------------------------------------------

// Place appends a wager to an OPEN round.
func (s *Store) Place(_ context.Context, w domain.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[w.RoundID]
	if !ok {
		return fmt.Errorf("memory: place wager: round %s: %w", w.RoundID, domain.ErrNotFound)
	}
	if r.Status != domain.RoundStatusOpen {
		return fmt.Errorf("memory: place wager: round %s: %w", w.RoundID, domain.ErrRoundNotOpen)
	}
	if _, dup := s.wagers[w.ID]; dup {
		return fmt.Errorf("memory: place wager %s: duplicate id", w.ID)
	}
	s.wagers[w.ID] = w
	s.wagerOrder[w.RoundID] = append(s.wagerOrder[w.RoundID], w.ID)
	return nil
}

// ListByRound returns the wagers of a round in placement order.
func (s *Store) ListByRound(_ context.Context, roundID string) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.wagerOrder[roundID]
	out := make([]domain.Wager, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.wagers[id])
	}
	return out, nil
}

// CountByRound returns the number of wagers placed on a round.
func (s *Store) CountByRound(_ context.Context, roundID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.wagerOrder[roundID])), nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// Log appends an audit entry for roundID.
func (s *Store) Log(_ context.Context, event domain.EventType, roundID string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		RoundID:   roundID,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

// List returns audit entries newest first, honouring the round and time
// filters and pagination in opts.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditEntry
	for _, e := range s.audit {
		if opts.RoundID != "" && e.RoundID != opts.RoundID {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}
