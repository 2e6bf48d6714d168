// Package worker drains the audit publisher into the configured sinks.
package worker

import (
	"context"
	"log/slog"

	"agora/pkg/platform/audit"
)

// Worker consumes audit events from a channel and appends them to every
// sink. Sink failures are logged and skipped; the trail is best-effort and
// must not take the server down.
type Worker struct {
	inbox  <-chan audit.Event
	sinks  []audit.Store
	logger *slog.Logger
}

// New creates a worker over the given sinks.
func New(inbox <-chan audit.Event, logger *slog.Logger, sinks ...audit.Store) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

// Run processes events until ctx is cancelled. It drains synchronously; the
// publisher's buffer absorbs bursts.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			for _, sink := range w.sinks {
				if err := sink.Append(ctx, event); err != nil {
					w.logger.ErrorContext(ctx, "audit append failed",
						"action", event.Action,
						"event_id", event.ID.String(),
						"error", err,
					)
				}
			}
		}
	}
}
