/*
Package workflow is the approval state machine for time-off requests.

PURPOSE:
  Accepts submissions, validates them against the balance ledger through the
  calendar, records approver decisions gated by the access policy, advances
  or terminates request state, appends approval records and emits
  notification events.

STATE MACHINE:
  ┌─────────┐ approve (manager) ┌──────────────────┐ approve (hr) ┌──────────┐
  │ pending │──────────────────▶│ manager-approved │─────────────▶│ approved │
  │ step:   │                   │ step: hr         │              │ step: -  │
  │ manager │                   └──────────────────┘              └──────────┘
  └─────────┘                            │
       │ decline (manager)               │ decline (hr)
       ▼                                 ▼
  ┌──────────────────────────────────────────┐
  │ declined (step: -)                        │
  └──────────────────────────────────────────┘

LEDGER EFFECTS:
  submit            reserve(days)           ref = request id
  manager approve   none
  any decline       release(reserved)       ref = approval record id
  hr approve        commit(reserved, days)  ref = approval record id

  Approval record ids are derived from (request id, step), so retrying the
  same decision after a partial failure replays the same ledger references
  and the same record id; nothing is charged twice.

ATOMICITY:
  Decide holds a per-request lock from load through save. Validation (load,
  finalized check, authority, day recomputation) happens before any write.
  The notification is emitted after the lock is released and its failure
  never rolls back the transition.

SEE ALSO:
  - balance/ledger.go: reserve, commit, release
  - calendar/calendar.go: chargeable day counts
  - access/access.go: step authority
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-workflow/access"
	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/calendar"
	"github.com/warp/leave-workflow/internal/keylock"
	"github.com/warp/leave-workflow/timeoff"
)

// approvalNamespace scopes the deterministic approval record ids.
var approvalNamespace = uuid.MustParse("7d1c2f8e-5b0a-4c3e-9f6d-2a8b4e1c9d07")

// =============================================================================
// ENGINE
// =============================================================================

// Deps are the collaborators of the engine. Store, Ledger, Holidays and
// Directory are required.
type Deps struct {
	Store     Store
	Ledger    *balance.Ledger
	Holidays  calendar.HolidaySource
	Directory Directory
	Emitter   Emitter
	Recorder  Recorder
	Logger    *slog.Logger
}

type Options struct {
	// Enforcement is applied to submissions that do not choose a mode.
	Enforcement balance.Mode
	// LinkPrefix is prepended to the request id in notification links.
	LinkPrefix string
	Now        func() time.Time
	NewID      func() string
}

type Engine struct {
	store     Store
	ledger    *balance.Ledger
	holidays  calendar.HolidaySource
	directory Directory
	emitter   Emitter
	recorder  Recorder
	logger    *slog.Logger

	enforcement balance.Mode
	linkPrefix  string
	now         func() time.Time
	newID       func() string

	locks keylock.Map[string]
}

func New(deps Deps, opts Options) *Engine {
	e := &Engine{
		store:       deps.Store,
		ledger:      deps.Ledger,
		holidays:    deps.Holidays,
		directory:   deps.Directory,
		emitter:     deps.Emitter,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		enforcement: opts.Enforcement,
		linkPrefix:  opts.LinkPrefix,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if e.emitter == nil {
		e.emitter = discardEmitter{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.linkPrefix == "" {
		e.linkPrefix = "/requests/"
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	EmployeeID   string
	Kind         timeoff.Kind      // defaults to leave
	LeaveType    timeoff.LeaveType // required for leave, empty for remote
	StartDate    timeoff.Date
	EndDate      timeoff.Date
	DurationType timeoff.DurationType // defaults to full-day
	Reason       string
	// Enforcement overrides the engine default when set.
	Enforcement *balance.Mode
}

func (in *SubmitInput) normalize() error {
	if in.Kind == "" {
		in.Kind = timeoff.KindLeave
	}
	if in.DurationType == "" {
		in.DurationType = timeoff.DurationFullDay
	}
	switch {
	case in.EmployeeID == "":
		return &timeoff.ValidationError{Field: "employeeId", Message: "required"}
	case !in.Kind.Valid():
		return &timeoff.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", in.Kind)}
	case in.Kind == timeoff.KindLeave && !in.LeaveType.Valid():
		return &timeoff.ValidationError{Field: "leaveType", Message: fmt.Sprintf("unknown leave type %q", in.LeaveType)}
	case in.Kind == timeoff.KindRemote && in.LeaveType != "":
		return &timeoff.ValidationError{Field: "leaveType", Message: "remote requests carry no leave type"}
	case !in.DurationType.Valid():
		return &timeoff.ValidationError{Field: "durationType", Message: fmt.Sprintf("unknown duration type %q", in.DurationType)}
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return &timeoff.ValidationError{Field: "startDate", Message: "start and end dates are required"}
	case in.StartDate.After(in.EndDate):
		return &timeoff.RangeError{Start: in.StartDate, End: in.EndDate}
	}
	return nil
}

// Submit validates a request, reserves its chargeable days and stores it as
// pending at the manager step.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*timeoff.TimeOffRequest, error) {
	r, err := e.submit(ctx, in)
	if err != nil {
		e.recorder.SubmitFailed(timeoff.KindOf(err))
		return nil, err
	}
	e.recorder.Submitted(r.Kind, r.LeaveType)
	e.logger.InfoContext(ctx, "time-off request submitted",
		"request_id", r.ID, "employee_id", r.EmployeeID, "kind", string(r.Kind),
		"leave_type", string(r.LeaveType), "days", r.ReservedDays.String())
	return r, nil
}

func (e *Engine) submit(ctx context.Context, in SubmitInput) (*timeoff.TimeOffRequest, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := e.directory.Lookup(ctx, in.EmployeeID); err != nil {
		return nil, fmt.Errorf("resolve employee: %w", err)
	}

	days, err := e.chargeableDays(ctx, in.StartDate, in.EndDate, in.DurationType)
	if err != nil {
		return nil, err
	}

	r := &timeoff.TimeOffRequest{
		ID:            e.newID(),
		EmployeeID:    in.EmployeeID,
		Kind:          in.Kind,
		LeaveType:     in.LeaveType,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		DurationType:  in.DurationType,
		Reason:        in.Reason,
		Status:        timeoff.StatusPending,
		CurrentStep:   timeoff.StepManager,
		ReservedDays:  decimal.Zero,
		SubmittedDate: e.now().UTC(),
	}

	if r.Charges() {
		mode := e.enforcement
		if in.Enforcement != nil {
			mode = *in.Enforcement
		}
		if err := e.ledger.Reserve(ctx, ledgerKey(r), days, mode, r.ID); err != nil {
			return nil, err
		}
		r.ReservedDays = days
	}

	if err := e.store.CreateRequest(ctx, r); err != nil {
		if r.Charges() {
			if relErr := e.ledger.Release(ctx, ledgerKey(r), days, "submit-failed:"+r.ID); relErr != nil {
				e.logger.ErrorContext(ctx, "release after failed submit", "request_id", r.ID, "err", relErr)
			}
		}
		return nil, fmt.Errorf("store request: %w", err)
	}
	return r.Clone(), nil
}

// =============================================================================
// DECIDE
// =============================================================================

type DecideInput struct {
	RequestID    string
	ApproverID   string
	ApproverRole timeoff.Role
	Decision     timeoff.Decision
	Comments     string
}

// transition is one row of the transition table.
type transition struct {
	status timeoff.Status
	step   timeoff.Step
	effect ledgerEffect
}

type ledgerEffect int

const (
	effectNone ledgerEffect = iota
	effectCommit
	effectRelease
)

// next applies the transition table to (status, step, decision).
func next(status timeoff.Status, step timeoff.Step, d timeoff.Decision) (transition, bool) {
	switch {
	case status == timeoff.StatusPending && step == timeoff.StepManager && d == timeoff.DecisionApprove:
		return transition{timeoff.StatusManagerApproved, timeoff.StepHR, effectNone}, true
	case status == timeoff.StatusPending && step == timeoff.StepManager && d == timeoff.DecisionDecline:
		return transition{timeoff.StatusDeclined, timeoff.StepNone, effectRelease}, true
	case status == timeoff.StatusManagerApproved && step == timeoff.StepHR && d == timeoff.DecisionApprove:
		return transition{timeoff.StatusApproved, timeoff.StepNone, effectCommit}, true
	case status == timeoff.StatusManagerApproved && step == timeoff.StepHR && d == timeoff.DecisionDecline:
		return transition{timeoff.StatusDeclined, timeoff.StepNone, effectRelease}, true
	}
	return transition{}, false
}

// Decide records an approver's decision on the request's current step.
func (e *Engine) Decide(ctx context.Context, in DecideInput) (*timeoff.TimeOffRequest, error) {
	r, ev, err := e.decide(ctx, in)
	if err != nil {
		e.recorder.DecideFailed(timeoff.KindOf(err))
		if ev.RequestID != "" {
			e.emit(ctx, ev)
		}
		return nil, err
	}
	e.recorder.Decided(ev.Step, in.Decision)
	e.logger.InfoContext(ctx, "time-off decision recorded",
		"request_id", r.ID, "approver_id", in.ApproverID, "role", string(in.ApproverRole),
		"step", ev.Step.String(), "decision", string(in.Decision), "status", string(r.Status))

	e.emit(ctx, ev)
	return r, nil
}

func (e *Engine) decide(ctx context.Context, in DecideInput) (*timeoff.TimeOffRequest, Event, error) {
	if in.RequestID == "" {
		return nil, Event{}, &timeoff.ValidationError{Field: "requestId", Message: "required"}
	}
	if !in.Decision.Valid() {
		return nil, Event{}, &timeoff.ValidationError{RequestID: in.RequestID, Field: "decision", Message: fmt.Sprintf("unknown decision %q", in.Decision)}
	}
	if _, err := timeoff.ParseRole(string(in.ApproverRole)); err != nil {
		return nil, Event{}, err
	}
	// Roles without approval authority are rejected whatever the request state.
	if !access.AuthorityFor(in.ApproverRole).Has(access.PermDecide) {
		return nil, Event{}, &timeoff.UnauthorizedError{
			ActorID: in.ApproverID, Role: in.ApproverRole, RequestID: in.RequestID,
			Reason: "role has no approval authority",
		}
	}

	unlock := e.locks.Lock(in.RequestID)
	defer unlock()

	// 1. Load
	r, err := e.store.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, Event{}, err
	}

	// 2. Finalized and authority checks
	if r.Status.Terminal() {
		return nil, Event{}, &timeoff.FinalizedError{RequestID: r.ID, Status: r.Status}
	}
	actor, err := e.resolveApprover(ctx, in)
	if err != nil {
		return nil, Event{}, err
	}
	subject, err := e.resolveSubject(ctx, r.EmployeeID)
	if err != nil {
		return nil, Event{}, err
	}
	if err := access.Authorize(actor, r.CurrentStep, subject, r.ID); err != nil {
		return nil, Event{}, err
	}
	t, ok := next(r.Status, r.CurrentStep, in.Decision)
	if !ok {
		return nil, Event{}, fmt.Errorf("request %s: no transition from %s at step %s", r.ID, r.Status, r.CurrentStep)
	}

	// 3. Recompute against the current holiday calendar
	days, err := e.chargeableDays(ctx, r.StartDate, r.EndDate, r.DurationType)
	if err != nil {
		return nil, Event{}, err
	}

	// 4. Apply
	prior := r.CurrentStep
	now := e.now().UTC()
	rec := timeoff.ApprovalRecord{
		ID:           approvalID(r.ID, string(prior)),
		RequestID:    r.ID,
		ApproverID:   actor.ID,
		ApproverRole: actor.Role,
		Step:         prior,
		Decision:     in.Decision,
		Comments:     in.Comments,
		Timestamp:    now,
	}
	logged, err := e.loggedRecord(ctx, r)
	if err != nil {
		return nil, Event{}, err
	}
	if logged != nil {
		if logged.ID != rec.ID || logged.Decision != in.Decision {
			ev, err := e.completeLogged(ctx, r, *logged, days)
			if err != nil {
				return nil, Event{}, err
			}
			return nil, ev, loggedConflict(r, *logged)
		}
		rec = *logged
	}
	if err := e.applyLedger(ctx, r, t.effect, days, rec.ID); err != nil {
		return nil, Event{}, err
	}
	if err := e.appendApproval(ctx, rec); err != nil {
		return nil, Event{}, err
	}
	if err := e.settle(ctx, r, t, rec); err != nil {
		return nil, Event{}, err
	}

	return r.Clone(), e.decisionEvent(r, rec.ApproverID, prior, rec.Decision, days), nil
}

// loggedRecord returns the approval record an earlier attempt wrote for the
// request's current step, or for its withdrawal, without persisting the
// request state. It returns nil when there is none.
func (e *Engine) loggedRecord(ctx context.Context, r *timeoff.TimeOffRequest) (*timeoff.ApprovalRecord, error) {
	recs, err := e.store.Approvals(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load approvals of %s: %w", r.ID, err)
	}
	stepID := approvalID(r.ID, string(r.CurrentStep))
	withdrawID := approvalID(r.ID, withdrawal)
	for i := range recs {
		if recs[i].ID == stepID || recs[i].ID == withdrawID {
			return &recs[i], nil
		}
	}
	return nil, nil
}

// completeLogged finishes the transition of a logged record. Its ledger
// effect was written before the record, so the ledger call is a replay.
func (e *Engine) completeLogged(ctx context.Context, r *timeoff.TimeOffRequest, rec timeoff.ApprovalRecord, days decimal.Decimal) (Event, error) {
	t, ok := next(r.Status, r.CurrentStep, rec.Decision)
	if !ok {
		return Event{}, fmt.Errorf("request %s: no transition from %s at step %s", r.ID, r.Status, r.CurrentStep)
	}
	if err := e.applyLedger(ctx, r, t.effect, days, rec.ID); err != nil {
		return Event{}, err
	}
	if err := e.settle(ctx, r, t, rec); err != nil {
		return Event{}, err
	}
	e.logger.WarnContext(ctx, "completed previously logged transition",
		"request_id", r.ID, "step", rec.Step.String(), "decision", string(rec.Decision),
		"approver_id", rec.ApproverID, "status", string(r.Status))
	if rec.ID == approvalID(r.ID, withdrawal) {
		return Event{}, nil
	}
	return e.decisionEvent(r, rec.ApproverID, rec.Step, rec.Decision, days), nil
}

func loggedConflict(r *timeoff.TimeOffRequest, rec timeoff.ApprovalRecord) error {
	if r.Status.Terminal() {
		return &timeoff.FinalizedError{RequestID: r.ID, Status: r.Status}
	}
	return &timeoff.StepDecidedError{RequestID: r.ID, Step: rec.Step, Decision: rec.Decision}
}

// settle moves the request to the transition's state and persists it.
func (e *Engine) settle(ctx context.Context, r *timeoff.TimeOffRequest, t transition, rec timeoff.ApprovalRecord) error {
	reviewed := rec.Timestamp
	r.Status = t.status
	r.CurrentStep = t.step
	r.ReviewedBy = rec.ApproverID
	r.ReviewDate = &reviewed
	r.Comments = rec.Comments
	if t.status.Terminal() {
		r.ReservedDays = decimal.Zero
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := e.store.UpdateRequest(ctx, r); err != nil {
		return fmt.Errorf("store request %s: %w", r.ID, err)
	}
	return nil
}

// resolveApprover loads the approver from the directory and checks that the
// claimed role is the directory's role.
func (e *Engine) resolveApprover(ctx context.Context, in DecideInput) (access.Actor, error) {
	emp, err := e.directory.Lookup(ctx, in.ApproverID)
	if err != nil {
		if errors.Is(err, timeoff.ErrNotFound) {
			return access.Actor{}, &timeoff.UnauthorizedError{
				ActorID: in.ApproverID, Role: in.ApproverRole, RequestID: in.RequestID, Reason: "unknown approver",
			}
		}
		return access.Actor{}, fmt.Errorf("resolve approver: %w", err)
	}
	if emp.Role != in.ApproverRole {
		return access.Actor{}, &timeoff.UnauthorizedError{
			ActorID: in.ApproverID, Role: in.ApproverRole, RequestID: in.RequestID,
			Reason: fmt.Sprintf("directory role is %s", emp.Role),
		}
	}
	return access.ActorOf(emp), nil
}

// resolveSubject returns the requesting employee. An employee removed from
// the directory keeps an empty department, which only admins can act on.
func (e *Engine) resolveSubject(ctx context.Context, id string) (timeoff.Employee, error) {
	emp, err := e.directory.Lookup(ctx, id)
	if errors.Is(err, timeoff.ErrNotFound) {
		return timeoff.Employee{ID: id}, nil
	}
	if err != nil {
		return timeoff.Employee{}, fmt.Errorf("resolve employee: %w", err)
	}
	return emp, nil
}

func (e *Engine) applyLedger(ctx context.Context, r *timeoff.TimeOffRequest, effect ledgerEffect, days decimal.Decimal, ref string) error {
	if !r.Charges() || effect == effectNone {
		return nil
	}
	key := ledgerKey(r)
	switch effect {
	case effectCommit:
		if !days.Equal(r.ReservedDays) {
			e.logger.WarnContext(ctx, "chargeable days changed since submission",
				"request_id", r.ID, "reserved", r.ReservedDays.String(), "charged", days.String())
		}
		return e.ledger.Commit(ctx, key, r.ReservedDays, days, ref)
	case effectRelease:
		return e.ledger.Release(ctx, key, r.ReservedDays, ref)
	}
	return nil
}

func (e *Engine) appendApproval(ctx context.Context, rec timeoff.ApprovalRecord) error {
	err := e.store.AppendApproval(ctx, rec)
	if errors.Is(err, ErrDuplicateApproval) {
		e.logger.DebugContext(ctx, "approval record replayed", "approval_id", rec.ID, "request_id", rec.RequestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("append approval %s: %w", rec.ID, err)
	}
	return nil
}

// =============================================================================
// WITHDRAW
// =============================================================================

// Withdraw lets the requesting employee pull back a request that is not yet
// final. The request ends declined, its reservation is released and the
// withdrawal is recorded in the approval log.
func (e *Engine) Withdraw(ctx context.Context, requestID, employeeID, reason string) (*timeoff.TimeOffRequest, error) {
	r, ev, err := e.withdraw(ctx, requestID, employeeID, reason)
	if ev.RequestID != "" {
		e.emit(ctx, ev)
	}
	return r, err
}

func (e *Engine) withdraw(ctx context.Context, requestID, employeeID, reason string) (*timeoff.TimeOffRequest, Event, error) {
	unlock := e.locks.Lock(requestID)
	defer unlock()

	r, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, Event{}, err
	}
	if r.Status.Terminal() {
		return nil, Event{}, &timeoff.FinalizedError{RequestID: r.ID, Status: r.Status}
	}
	emp, err := e.directory.Lookup(ctx, employeeID)
	if err != nil {
		if errors.Is(err, timeoff.ErrNotFound) {
			return nil, Event{}, &timeoff.UnauthorizedError{ActorID: employeeID, RequestID: requestID, Reason: "unknown employee"}
		}
		return nil, Event{}, fmt.Errorf("resolve employee: %w", err)
	}
	actor := access.ActorOf(emp)
	if err := access.CanWithdraw(actor, r); err != nil {
		return nil, Event{}, err
	}

	rec := timeoff.ApprovalRecord{
		ID:           approvalID(r.ID, withdrawal),
		RequestID:    r.ID,
		ApproverID:   actor.ID,
		ApproverRole: actor.Role,
		Step:         r.CurrentStep,
		Decision:     timeoff.DecisionDecline,
		Comments:     reason,
		Timestamp:    e.now().UTC(),
	}
	// A decision logged by a failed attempt is completed first; the
	// withdrawal then applies to whatever state it leaves.
	var ev Event
	logged, err := e.loggedRecord(ctx, r)
	if err != nil {
		return nil, Event{}, err
	}
	if logged != nil && logged.ID != rec.ID {
		if ev, err = e.completeLogged(ctx, r, *logged, r.ReservedDays); err != nil {
			return nil, Event{}, err
		}
		if r.Status.Terminal() {
			return nil, ev, &timeoff.FinalizedError{RequestID: r.ID, Status: r.Status}
		}
		if logged, err = e.loggedRecord(ctx, r); err != nil {
			return nil, ev, err
		}
		rec.Step = r.CurrentStep
	}
	if logged != nil && logged.ID == rec.ID {
		rec = *logged
	}

	prior := r.CurrentStep
	if err := e.applyLedger(ctx, r, effectRelease, r.ReservedDays, rec.ID); err != nil {
		return nil, ev, err
	}
	if err := e.appendApproval(ctx, rec); err != nil {
		return nil, ev, err
	}
	withdrawn := transition{timeoff.StatusDeclined, timeoff.StepNone, effectRelease}
	if err := e.settle(ctx, r, withdrawn, rec); err != nil {
		return nil, ev, err
	}
	e.logger.InfoContext(ctx, "time-off request withdrawn", "request_id", r.ID, "employee_id", rec.ApproverID, "step", prior.String())
	return r.Clone(), ev, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) Get(ctx context.Context, id string) (*timeoff.TimeOffRequest, error) {
	return e.store.GetRequest(ctx, id)
}

func (e *Engine) ListForEmployee(ctx context.Context, employeeID string) ([]*timeoff.TimeOffRequest, error) {
	return e.store.ListRequests(ctx, RequestFilter{EmployeeID: employeeID})
}

// ListAwaiting returns the requests currently waiting at step.
func (e *Engine) ListAwaiting(ctx context.Context, step timeoff.Step) ([]*timeoff.TimeOffRequest, error) {
	if step != timeoff.StepManager && step != timeoff.StepHR {
		return nil, &timeoff.ValidationError{Field: "step", Message: fmt.Sprintf("unknown step %q", step)}
	}
	return e.store.ListRequests(ctx, RequestFilter{Step: step})
}

// ApprovalHistory is the audit export of a request: its approval records in
// timestamp order.
func (e *Engine) ApprovalHistory(ctx context.Context, requestID string) ([]timeoff.ApprovalRecord, error) {
	if _, err := e.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.store.Approvals(ctx, requestID)
}

// ChargeableDays recomputes the charge of an existing request against the
// current holiday calendar.
func (e *Engine) ChargeableDays(ctx context.Context, r *timeoff.TimeOffRequest) (decimal.Decimal, error) {
	return e.chargeableDays(ctx, r.StartDate, r.EndDate, r.DurationType)
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) chargeableDays(ctx context.Context, start, end timeoff.Date, duration timeoff.DurationType) (decimal.Decimal, error) {
	holidays, err := e.holidays.Holidays(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load holidays: %w", err)
	}
	return calendar.CountChargeableDays(start, end, duration, holidays)
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if err := e.emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
		e.recorder.NotificationFailed()
		e.logger.WarnContext(ctx, "notification emit failed",
			"request_id", ev.RequestID, "recipient_id", ev.RecipientID, "err", err)
	}
}

func (e *Engine) decisionEvent(r *timeoff.TimeOffRequest, senderID string, step timeoff.Step, d timeoff.Decision, days decimal.Decimal) Event {
	ev := Event{
		RecipientID: r.EmployeeID,
		SenderID:    senderID,
		Type:        EventSuccess,
		Link:        e.linkPrefix + r.ID,
		RequestID:   r.ID,
		Outcome:     d,
		Step:        step,
	}
	what := describe(r)
	switch {
	case d == timeoff.DecisionDecline:
		ev.Type = EventWarning
		ev.Message = fmt.Sprintf("Your %s was declined at the %s step.", what, step)
	case r.Status == timeoff.StatusManagerApproved:
		ev.Message = fmt.Sprintf("Your %s was approved by your manager and awaits HR review.", what)
	default:
		ev.Message = fmt.Sprintf("Your %s was approved (%s days).", what, days.String())
	}
	if r.Comments != "" {
		ev.Message += " Comment: " + r.Comments
	}
	return ev
}

func describe(r *timeoff.TimeOffRequest) string {
	label := "remote work request"
	if r.Kind == timeoff.KindLeave {
		label = string(r.LeaveType) + " leave request"
	}
	if r.StartDate.Equal(r.EndDate) {
		return fmt.Sprintf("%s for %s", label, r.StartDate)
	}
	return fmt.Sprintf("%s from %s to %s", label, r.StartDate, r.EndDate)
}

func ledgerKey(r *timeoff.TimeOffRequest) balance.Key {
	return balance.Key{EmployeeID: r.EmployeeID, LeaveType: r.LeaveType, Year: r.Year()}
}

// withdrawal names the approval record of a withdrawn request.
const withdrawal = "withdraw"

func approvalID(requestID, step string) string {
	return uuid.NewSHA1(approvalNamespace, []byte(requestID+":"+step)).String()
}
