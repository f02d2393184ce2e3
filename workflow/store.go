package workflow

import (
	"context"
	"errors"

	"github.com/warp/leave-workflow/timeoff"
)

// ErrDuplicateApproval is returned by a Store when an ApprovalRecord id
// already exists. The engine treats it as a replay of the same decision.
var ErrDuplicateApproval = errors.New("duplicate approval record")

// =============================================================================
// STORE - Requests and their approval records
// =============================================================================

// Store persists requests and the append-only approval log. Requests are
// never deleted; approval records are never updated.
type Store interface {
	CreateRequest(ctx context.Context, r *timeoff.TimeOffRequest) error

	// GetRequest returns a *timeoff.NotFoundError when id is unknown.
	GetRequest(ctx context.Context, id string) (*timeoff.TimeOffRequest, error)

	UpdateRequest(ctx context.Context, r *timeoff.TimeOffRequest) error

	ListRequests(ctx context.Context, f RequestFilter) ([]*timeoff.TimeOffRequest, error)

	// AppendApproval returns ErrDuplicateApproval if rec.ID exists.
	AppendApproval(ctx context.Context, rec timeoff.ApprovalRecord) error

	// Approvals returns the records of a request ordered by timestamp.
	Approvals(ctx context.Context, requestID string) ([]timeoff.ApprovalRecord, error)
}

// RequestFilter selects requests; zero fields match everything.
type RequestFilter struct {
	EmployeeID string
	Status     timeoff.Status
	Step       timeoff.Step
}

func (f RequestFilter) Match(r *timeoff.TimeOffRequest) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Step != timeoff.StepNone && r.CurrentStep != f.Step {
		return false
	}
	return true
}

// =============================================================================
// DIRECTORY - Identity collaborator
// =============================================================================

// Directory resolves an employee id to role and department. It is injected
// into the engine; the core keeps no process-wide identity state.
type Directory interface {
	// Lookup returns a *timeoff.NotFoundError when id is unknown.
	Lookup(ctx context.Context, id string) (timeoff.Employee, error)
}

// StaticDirectory is a fixed in-process directory.
type StaticDirectory map[string]timeoff.Employee

func NewStaticDirectory(employees ...timeoff.Employee) StaticDirectory {
	d := make(StaticDirectory, len(employees))
	for _, e := range employees {
		d[e.ID] = e
	}
	return d
}

func (d StaticDirectory) Lookup(_ context.Context, id string) (timeoff.Employee, error) {
	e, ok := d[id]
	if !ok {
		return timeoff.Employee{}, &timeoff.NotFoundError{Resource: "employee", ID: id}
	}
	return e, nil
}
