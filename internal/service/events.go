package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// Notifier forwards lifecycle events to operators.
type Notifier interface {
	Enabled() bool
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventPublisher broadcasts lifecycle events on the signal bus, appends them
// to the durable event stream and forwards them to the operator notifier.
// Delivery failures are logged and never returned: the state change that
// produced the event has already been committed.
type EventPublisher struct {
	bus      domain.SignalBus
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher. notifier may be nil.
func NewEventPublisher(bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:      bus,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Publish delivers one event of type t for roundID.
func (p *EventPublisher) Publish(ctx context.Context, t domain.EventType, roundID string, payload map[string]any) {
	if p == nil {
		return
	}
	ev := domain.Event{Type: t, RoundID: roundID, Payload: payload, At: p.now()}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "events: marshal failed",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.bus != nil {
		if err := p.bus.Publish(ctx, ev.Channel(), data); err != nil {
			p.logger.WarnContext(ctx, "events: publish failed",
				slog.String("type", string(t)),
				slog.String("channel", ev.Channel()),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, domain.EventStream, data); err != nil {
			p.logger.WarnContext(ctx, "events: stream append failed",
				slog.String("type", string(t)),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.notifier != nil && p.notifier.Enabled() {
		if err := p.notifier.NotifyEvent(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "events: notify failed",
				slog.String("type", string(t)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// audit records a round transition. Failures are logged, never returned:
// the transition has already been committed.
func audit(ctx context.Context, store domain.AuditStore, logger *slog.Logger, event domain.EventType, roundID string, detail map[string]any) {
	if store == nil {
		return
	}
	if err := store.Log(ctx, event, roundID, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", string(event)),
			slog.String("round_id", roundID),
			slog.String("error", err.Error()),
		)
	}
}
