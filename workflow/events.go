package workflow

import (
	"context"

	"github.com/warp/leave-workflow/timeoff"
)

// =============================================================================
// NOTIFICATION EVENTS - Emitted after a transition, best effort
// =============================================================================

type EventType string

const (
	EventSuccess EventType = "success"
	EventWarning EventType = "warning"
)

// Event is the payload handed to the notification collaborator.
type Event struct {
	RecipientID string           `json:"recipientId"`
	SenderID    string           `json:"senderId"`
	Type        EventType        `json:"type"`
	Message     string           `json:"message"`
	Link        string           `json:"link"`
	RequestID   string           `json:"requestId"`
	Outcome     timeoff.Decision `json:"outcome"`
	Step        timeoff.Step     `json:"step"`
}

// Emitter delivers events. The engine calls Emit after the transition is
// persisted and outside every lock; an error is logged and discarded.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

func (f EmitterFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

type discardEmitter struct{}

func (discardEmitter) Emit(context.Context, Event) error { return nil }

// =============================================================================
// RECORDER - Instrumentation hooks (see package metrics)
// =============================================================================

type Recorder interface {
	Submitted(kind timeoff.Kind, leaveType timeoff.LeaveType)
	SubmitFailed(kind string)
	Decided(step timeoff.Step, decision timeoff.Decision)
	DecideFailed(kind string)
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) Submitted(timeoff.Kind, timeoff.LeaveType) {}
func (nopRecorder) SubmitFailed(string)                       {}
func (nopRecorder) Decided(timeoff.Step, timeoff.Decision)    {}
func (nopRecorder) DecideFailed(string)                       {}
func (nopRecorder) NotificationFailed()                       {}
