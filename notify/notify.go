/*
Package notify provides workflow.Emitter adapters.

ADAPTERS:
  Log     writes each event as a structured log line
  Queue   bounded buffer drained by a worker goroutine; Emit never blocks
  Fanout  delivers to several emitters and joins their errors

Delivery is best effort. Nothing here retries, and a dropped event never
affects the request it describes.
*/
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/warp/leave-workflow/workflow"
)

var (
	_ workflow.Emitter = (*Log)(nil)
	_ workflow.Emitter = (*Queue)(nil)
	_ workflow.Emitter = Fanout(nil)
)

// =============================================================================
// LOG SINK
// =============================================================================

type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Emit(ctx context.Context, ev workflow.Event) error {
	level := slog.LevelInfo
	if ev.Type == workflow.EventWarning {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, ev.Message,
		"recipient_id", ev.RecipientID,
		"sender_id", ev.SenderID,
		"request_id", ev.RequestID,
		"step", ev.Step.String(),
		"outcome", string(ev.Outcome),
		"link", ev.Link,
	)
	return nil
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout emits to every emitter even when an earlier one fails.
type Fanout []workflow.Emitter

func (f Fanout) Emit(ctx context.Context, ev workflow.Event) error {
	var errs []error
	for _, em := range f {
		if err := em.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
