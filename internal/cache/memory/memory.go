// Package memory provides in-process stand-ins for the Redis lock, rate
// limiter and signal bus, used when Redis is disabled.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
)

// LockManager is a process-local keyed lock with expiry.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]uint64 // key -> holder generation
	until map[string]time.Time
	gen   uint64
	now   func() time.Time
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Acquire takes the lock for key for at most ttl.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok && lm.now().Before(lm.until[key]) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.gen++
	gen := lm.gen
	lm.held[key] = gen
	lm.until[key] = lm.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.held[key] == gen {
				delete(lm.held, key)
				delete(lm.until, key)
			}
		})
	}, nil
}

// RateLimiter is a process-local sliding-window limiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewRateLimiter returns an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow reports whether another request for key fits within limit requests
// per window. An allowed request is counted.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)
	kept := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		rl.hits[key] = kept
		return false, nil
	}
	rl.hits[key] = append(kept, now)
	return true, nil
}

// SignalBus fans published payloads out to subscribers of the same channel
// and keeps bounded in-memory streams.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]domain.StreamMessage
	seq     map[string]int64
	maxLen  int
}

// NewSignalBus returns a SignalBus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SignalBus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int64),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to current subscribers. Slow subscribers miss
// messages rather than block the publisher.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel until ctx is
// cancelled, at which point the channel is closed.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to stream with a monotonically increasing ID.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq[stream]++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq[stream], 10),
		Payload: payload,
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages with IDs after lastID. "0" reads
// from the beginning.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := strconv.ParseInt(lastID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("memory: stream read %s: bad id %q", stream, lastID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseInt(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}
