// Package notify pushes engine alerts to operator channels. A Notifier fans
// one alert out to every configured sender and drops events the operator did
// not subscribe to, so a noisy detector never pages anyone who only asked for
// poll failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one rendered alert over a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and joined errors.
	Name() string
}

// Notifier filters engine events against a subscription set and fans the
// surviving alerts out to all senders.
type Notifier struct {
	senders    []Sender
	subscribed map[string]struct{}
	logger     *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. events lists the
// event types to forward; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subs := make(map[string]struct{}, len(events))
	for _, e := range events {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		subs[e] = struct{}{}
	}
	return &Notifier{
		senders:    senders,
		subscribed: subs,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender if the event type is subscribed.
// Sender failures are joined, not short-circuited: one dead webhook must not
// silence the remaining channels.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.subscribed) > 0 {
		if _, ok := n.subscribed[strings.ToLower(event)]; !ok {
			return nil
		}
	}

	var errs []error
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
