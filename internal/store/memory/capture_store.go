package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

var _ domain.CaptureStore = (*CaptureStore)(nil)

// CaptureStore keeps captures per round in arrival order.
type CaptureStore struct {
	mu      sync.Mutex
	byRound map[string][]domain.Capture
}

// NewCaptureStore returns an empty CaptureStore.
func NewCaptureStore() *CaptureStore {
	return &CaptureStore{byRound: make(map[string][]domain.Capture)}
}

// Save appends a capture.
func (s *CaptureStore) Save(_ context.Context, c domain.Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRound[c.RoundID] = append(s.byRound[c.RoundID], c)
	return nil
}

// ListByRound returns the captures of a round, oldest first.
func (s *CaptureStore) ListByRound(_ context.Context, roundID string) ([]domain.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Capture, len(s.byRound[roundID]))
	copy(out, s.byRound[roundID])
	return out, nil
}
