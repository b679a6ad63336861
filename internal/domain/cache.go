package domain

import (
	"context"
	"time"
)

// Keys shared by the lock manager and rate limiter. Backends may add their
// own namespace prefix.

// SettleLockKey guards settlement of one round across processes.
func SettleLockKey(roundID string) string { return "settle:" + roundID }

// WagerRateKey buckets wager placements per bettor.
func WagerRateKey(bettor string) string { return "wagers:" + bettor }

// APIRateKey buckets HTTP requests per client address.
func APIRateKey(clientIP string) string { return "api:" + clientIP }

// RateLimiter admits at most limit calls per key within a sliding window.
// Wager placement and the HTTP API use it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out exclusive, expiring locks. Settlement holds one per
// round so two referee hosts cannot settle concurrently. Acquire fails with
// ErrLockHeld when another holder has the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry read back from the durable event stream. ID is
// the backend's cursor and is passed as lastID to resume after it.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus relays round lifecycle events: Publish fans them out live to
// WebSocket clients, and the stream keeps them so reconnecting clients can
// replay what they missed.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
