package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const defaultBuffer = 256

// Publisher accepts events from request handlers without blocking them.
// Events are buffered in a channel drained by the worker; when the buffer is
// full the event is dropped and logged, because audit must never stall a
// login.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher creates a Publisher with the default buffer.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, defaultBuffer),
		logger: logger,
	}
}

// Emit records an event. Missing ID/timestamp are filled in here so callers
// only set the fields they know.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"request_id", event.RequestID,
		)
	}
}

// Events exposes the inbox to the worker.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}
