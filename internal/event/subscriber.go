package event

import (
	"context"
	"log/slog"
)

// Observer receives every event consumed by Consume.
type Observer interface {
	Observe(e Event)
}

// Consume drains the bus until ctx is done, logging each event and passing it to observers.
// Payloads never contain secrets, so they are logged as-is.
func Consume(ctx context.Context, bus Bus, observers ...Observer) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}

			attrs := []any{"event_id", e.ID, "type", string(e.Type)}
			if e.ActorID != "" {
				attrs = append(attrs, "actor_id", e.ActorID)
			}
			for k, v := range e.Payload {
				attrs = append(attrs, k, v)
			}

			if e.Type == TypeLoginFailed || e.Type == TypeAccessDenied {
				slog.Warn("auth event", attrs...)
			} else {
				slog.Info("auth event", attrs...)
			}

			for _, o := range observers {
				o.Observe(e)
			}
		}
	}
}
