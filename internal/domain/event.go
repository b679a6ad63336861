package domain

import "time"

// EventType names a round lifecycle event broadcast to listeners.
type EventType string

const (
	EventRoundCreated    EventType = "round_created"
	EventBettingClosed   EventType = "betting_closed"
	EventWagerPlaced     EventType = "wager_placed"
	EventVerdictDetected EventType = "verdict_detected"
	EventRoundSettled    EventType = "round_settled"
)

// Bus channels carrying lifecycle events.
const (
	ChannelRounds   = "rounds"
	ChannelWagers   = "wagers"
	ChannelCaptures = "captures"

	// EventStream is the durable stream every event is appended to.
	EventStream = "stream:events"
)

// Event is the JSON envelope published on the signal bus.
type Event struct {
	Type    EventType      `json:"type"`
	RoundID string         `json:"round_id"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Channel returns the bus channel the event belongs on.
func (e Event) Channel() string {
	switch e.Type {
	case EventWagerPlaced:
		return ChannelWagers
	case EventVerdictDetected:
		return ChannelCaptures
	default:
		return ChannelRounds
	}
}
