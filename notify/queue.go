package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/warp/leave-workflow/workflow"
)

// ErrQueueFull is returned by Queue.Emit when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

const DefaultQueueSize = 256

// Queue decouples the workflow engine from slow sinks. Emit enqueues without
// blocking; Run delivers to the sink until its context is cancelled and then
// drains what is left.
type Queue struct {
	events chan workflow.Event
	sink   workflow.Emitter
	logger *slog.Logger
	depth  func(int)
}

type QueueOption func(*Queue)

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// WithDepthGauge reports the number of buffered events after every change.
func WithDepthGauge(report func(int)) QueueOption {
	return func(q *Queue) { q.depth = report }
}

func NewQueue(sink workflow.Emitter, size int, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		events: make(chan workflow.Event, size),
		sink:   sink,
		logger: slog.Default(),
		depth:  func(int) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Emit(_ context.Context, ev workflow.Event) error {
	select {
	case q.events <- ev:
		q.depth(len(q.events))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of buffered events.
func (q *Queue) Len() int { return len(q.events) }

// Run delivers events until ctx is done, then flushes the buffer with a
// context that is no longer cancelled. It always returns nil so it can sit
// in an errgroup next to the HTTP server.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-q.events:
			q.deliver(ctx, ev)
		case <-ctx.Done():
			q.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case ev := <-q.events:
			q.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, ev workflow.Event) {
	q.depth(len(q.events))
	if err := q.sink.Emit(ctx, ev); err != nil {
		q.logger.WarnContext(ctx, "notification delivery failed",
			"request_id", ev.RequestID, "recipient_id", ev.RecipientID, "err", err)
	}
}
