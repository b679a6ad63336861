// Package notify tells operators about round lifecycle events over chat
// channels (Telegram, Discord). Events can be filtered by type so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events whose type is in the allowed set; NotifyAll bypasses the
// filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. If
// events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyEvent formats a lifecycle event and sends it through Notify.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	title, message := FormatEvent(ev)
	return n.Notify(ctx, string(ev.Type), title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the others; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// FormatEvent renders an event as a notification title and body.
func FormatEvent(ev domain.Event) (string, string) {
	var title string
	switch ev.Type {
	case domain.EventRoundCreated:
		title = "Round " + ev.RoundID + " open for wagers"
	case domain.EventBettingClosed:
		title = "Round " + ev.RoundID + " is live"
	case domain.EventWagerPlaced:
		title = "Wager on round " + ev.RoundID
	case domain.EventVerdictDetected:
		title = "Verdict detected for round " + ev.RoundID
	case domain.EventRoundSettled:
		title = "Round " + ev.RoundID + " settled"
	default:
		title = string(ev.Type) + " " + ev.RoundID
	}

	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Payload[k])
	}
	return title, strings.TrimRight(b.String(), "\n")
}
