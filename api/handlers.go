/*
handlers.go - HTTP API handlers for the time-off approval workflow

PURPOSE:
  Exposes the workflow engine, balance ledger and holiday calendar via REST
  API. Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Requests:
    POST   /api/requests                   Submit leave or remote-work request
    GET    /api/requests?step=manager|hr   Requests awaiting a step
    GET    /api/requests/{id}              Get request
    POST   /api/requests/{id}/decisions    Approve or decline the current step
    POST   /api/requests/{id}/withdraw     Withdraw own request
    GET    /api/requests/{id}/approvals    Audit export

  Employees:
    GET    /api/employees/{id}/requests                Requests of an employee
    GET    /api/employees/{id}/balances/{leaveType}    Balance (?year=)

  Admin:
    POST   /api/allocations                Grant allocated days
    POST   /api/holidays                   Create or replace holiday
    DELETE /api/holidays/{id}              Delete holiday

  Calendar:
    GET    /api/holidays                   List holidays (?year= expands recurring)
    POST   /api/calendar/chargeable-days   Count chargeable days of a span
    GET    /api/calendar/working-day       Next/previous working day

ACTOR:
  Callers identify themselves with the X-Actor-ID header. The handler
  resolves it through the directory and checks the access rules; it does
  not authenticate. Calendar endpoints need no actor.

REQUEST FLOW:
  1. Resolve actor
  2. Parse and validate input
  3. Call domain logic (engine, ledger, calendar)
  4. Serialize response
  5. Map errors with fail()

ERROR HANDLING:
  Errors are returned as ErrorResponse with the status of their kind:
  - 400: InvalidRange, Validation
  - 403: Unauthorized
  - 404: NotFound
  - 409: RequestAlreadyFinalized
  - 422: InsufficientBalance, NoWorkingDayFound
  - 500: Internal errors (message withheld, logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - workflow/engine.go: State machine
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/warp/leave-workflow/access"
	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/calendar"
	"github.com/warp/leave-workflow/timeoff"
	"github.com/warp/leave-workflow/workflow"
)

// ActorHeader carries the employee ID of the caller.
const ActorHeader = "X-Actor-ID"

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *workflow.Engine
	Ledger    *balance.Ledger
	Holidays  calendar.HolidayStore
	Directory workflow.Directory
	Logger    *slog.Logger

	// Health is pinged by /healthz when set.
	Health Pinger

	now   func() time.Time
	newID func() string
}

// NewHandler creates a handler over the given engine, ledger and stores.
func NewHandler(engine *workflow.Engine, ledger *balance.Ledger, holidays calendar.HolidayStore, dir workflow.Directory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:    engine,
		Ledger:    ledger,
		Holidays:  holidays,
		Directory: dir,
		Logger:    logger.With("component", "api"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// SubmitRequest creates a pending request at the manager step. Only admins
// may file for someone else or override the enforcement mode.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = actor.ID
	}
	if err := access.Require(actor, access.PermSubmit); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.EmployeeID != actor.ID && !access.AuthorityFor(actor.Role).IsAdmin {
		h.fail(w, r, &timeoff.UnauthorizedError{ActorID: actor.ID, Role: actor.Role, Reason: "cannot submit on behalf of " + req.EmployeeID})
		return
	}

	in := workflow.SubmitInput{
		EmployeeID:   req.EmployeeID,
		Kind:         timeoff.Kind(req.Kind),
		LeaveType:    timeoff.LeaveType(req.LeaveType),
		DurationType: timeoff.DurationType(req.DurationType),
		Reason:       req.Reason,
	}
	if in.StartDate, err = parseDate("start_date", req.StartDate); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.EndDate, err = parseDate("end_date", req.EndDate); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Enforcement != "" {
		if !access.AuthorityFor(actor.Role).IsAdmin {
			h.fail(w, r, &timeoff.UnauthorizedError{ActorID: actor.ID, Role: actor.Role, Reason: "enforcement override requires admin"})
			return
		}
		mode, err := balance.ParseMode(req.Enforcement)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		in.Enforcement = &mode
	}

	created, err := h.Engine.Submit(ctx, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// GetRequest returns one request.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.viewableRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListAwaiting returns the requests waiting at a step that the caller may
// decide on.
// GET /api/requests?step=manager|hr
func (h *Handler) ListAwaiting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := access.Require(actor, access.PermDecide); err != nil {
		h.fail(w, r, err)
		return
	}

	step := timeoff.Step(r.URL.Query().Get("step"))
	if step == "" {
		step = timeoff.StepManager
	}
	reqs, err := h.Engine.ListAwaiting(ctx, step)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	subjects := make(map[string]timeoff.Employee)
	visible := make([]*timeoff.TimeOffRequest, 0, len(reqs))
	for _, req := range reqs {
		subject, seen := subjects[req.EmployeeID]
		if !seen {
			if subject, err = h.subject(ctx, req.EmployeeID); err != nil {
				h.fail(w, r, err)
				return
			}
			subjects[req.EmployeeID] = subject
		}
		if access.CanView(actor, subject) {
			visible = append(visible, req)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"step": string(step), "requests": toRequestDTOs(visible)})
}

// DecideRequest records the caller's decision on the current step.
// POST /api/requests/{id}/decisions
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role := timeoff.Role(req.Role)
	if role == "" {
		role = actor.Role
	}

	updated, err := h.Engine.Decide(r.Context(), workflow.DecideInput{
		RequestID:    chi.URLParam(r, "id"),
		ApproverID:   actor.ID,
		ApproverRole: role,
		Decision:     timeoff.Decision(req.Decision),
		Comments:     req.Comments,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

// WithdrawRequest lets the requester pull back a request that is not final.
// POST /api/requests/{id}/withdraw
func (h *Handler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req WithdrawRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		h.fail(w, r, err)
		return
	}

	updated, err := h.Engine.Withdraw(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

// ListApprovals returns the audit trail of a request in timestamp order.
// GET /api/requests/{id}/approvals
func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	req, ok := h.viewableRequest(w, r)
	if !ok {
		return
	}
	recs, err := h.Engine.ApprovalHistory(r.Context(), req.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": req.ID, "approvals": toApprovalDTOs(recs)})
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// ListEmployeeRequests returns all requests of an employee.
// GET /api/employees/{id}/requests
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID := chi.URLParam(r, "id")
	if _, err := h.authorizeView(r, employeeID); err != nil {
		h.fail(w, r, err)
		return
	}

	reqs, err := h.Engine.ListForEmployee(ctx, employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee_id": employeeID, "requests": toRequestDTOs(reqs)})
}

// GetBalance returns the balance of one leave type for a year (default:
// the current year).
// GET /api/employees/{id}/balances/{leaveType}?year=
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID := chi.URLParam(r, "id")
	if _, err := h.authorizeView(r, employeeID); err != nil {
		h.fail(w, r, err)
		return
	}

	leaveType := timeoff.LeaveType(chi.URLParam(r, "leaveType"))
	if !leaveType.Valid() {
		h.fail(w, r, &timeoff.ValidationError{Field: "leave_type", Message: fmt.Sprintf("unknown leave type %q", leaveType)})
		return
	}
	year := h.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.fail(w, r, &timeoff.ValidationError{Field: "year", Message: fmt.Sprintf("invalid year %q", raw)})
			return
		}
		year = parsed
	}

	b, err := h.Ledger.Balance(ctx, balance.Key{EmployeeID: employeeID, LeaveType: leaveType, Year: year})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// CreateAllocation grants allocated days to an employee.
// POST /api/allocations
func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := access.Require(actor, access.PermManageAllocations); err != nil {
		h.fail(w, r, err)
		return
	}

	var req AllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	leaveType := timeoff.LeaveType(req.LeaveType)
	switch {
	case req.EmployeeID == "":
		h.fail(w, r, &timeoff.ValidationError{Field: "employee_id", Message: "required"})
		return
	case !leaveType.Valid():
		h.fail(w, r, &timeoff.ValidationError{Field: "leave_type", Message: fmt.Sprintf("unknown leave type %q", req.LeaveType)})
		return
	case req.Year < 1:
		h.fail(w, r, &timeoff.ValidationError{Field: "year", Message: "required"})
		return
	}
	if _, err := h.Directory.Lookup(ctx, req.EmployeeID); err != nil {
		h.fail(w, r, err)
		return
	}

	ref := req.Reference
	if ref == "" {
		ref = h.newID()
	}
	b, err := h.Ledger.Allocate(ctx, balance.Key{EmployeeID: req.EmployeeID, LeaveType: leaveType, Year: req.Year}, req.Days, ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.InfoContext(ctx, "allocation granted",
		"actor_id", actor.ID, "employee_id", req.EmployeeID, "leave_type", req.LeaveType,
		"year", req.Year, "days", req.Days.String(), "reference", ref)
	writeJSON(w, http.StatusCreated, toBalanceDTO(b))
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns all holidays. With ?year= recurring holidays are
// placed in that year and fixed holidays of other years are left out.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Holidays.Holidays(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 {
			h.fail(w, r, &timeoff.ValidationError{Field: "year", Message: fmt.Sprintf("invalid year %q", raw)})
			return
		}
		holidays = calendar.New(holidays).Holidays(year)
	}
	if holidays == nil {
		holidays = []timeoff.Holiday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": holidays})
}

// CreateHoliday creates or replaces a holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := access.Require(actor, access.PermManageHolidays); err != nil {
		h.fail(w, r, err)
		return
	}

	var req HolidayRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.fail(w, r, &timeoff.ValidationError{Field: "name", Message: "required"})
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	holiday := timeoff.Holiday{
		ID:        req.ID,
		Name:      req.Name,
		Date:      date,
		Type:      timeoff.HolidayType(req.Type),
		Recurring: req.Recurring,
	}
	if holiday.Type == "" {
		holiday.Type = timeoff.HolidayCompany
	}
	if !holiday.Type.Valid() {
		h.fail(w, r, &timeoff.ValidationError{Field: "type", Message: fmt.Sprintf("unknown holiday type %q", req.Type)})
		return
	}
	if holiday.ID == "" {
		holiday.ID = "holiday-" + h.newID()
	}

	if err := h.Holidays.SaveHoliday(ctx, holiday); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.InfoContext(ctx, "holiday saved", "actor_id", actor.ID, "holiday_id", holiday.ID, "date", holiday.Date.String())
	writeJSON(w, http.StatusCreated, holiday)
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := access.Require(actor, access.PermManageHolidays); err != nil {
		h.fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Holidays.DeleteHoliday(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.InfoContext(ctx, "holiday deleted", "actor_id", actor.ID, "holiday_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// CALENDAR ENDPOINTS
// =============================================================================

// ChargeableDays counts the days a span would be charged against the
// current holiday calendar.
// POST /api/calendar/chargeable-days
func (h *Handler) ChargeableDays(w http.ResponseWriter, r *http.Request) {
	var req ChargeableDaysRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	duration := timeoff.DurationType(req.DurationType)
	if duration == "" {
		duration = timeoff.DurationFullDay
	}

	cal, err := h.calendar(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	days, err := cal.CountChargeableDays(start, end, duration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChargeableDaysDTO{
		StartDate:    start.String(),
		EndDate:      end.String(),
		DurationType: string(duration),
		Days:         days.InexactFloat64(),
	})
}

// WorkingDay returns the closest working day strictly after (next) or
// before (previous) the given date.
// GET /api/calendar/working-day?date=&direction=next|previous
func (h *Handler) WorkingDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate("date", q.Get("date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cal, err := h.calendar(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	direction := q.Get("direction")
	var found timeoff.Date
	switch direction {
	case "", "next":
		direction = "next"
		found, err = cal.NextWorkingDay(from)
	case "previous":
		found, err = cal.PreviousWorkingDay(from)
	default:
		err = &timeoff.ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", direction)}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WorkingDayDTO{From: from.String(), Direction: direction, Date: found.String()})
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Healthz reports whether the store is reachable.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.Logger.ErrorContext(r.Context(), "health check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// actor resolves the caller named by ActorHeader.
func (h *Handler) actor(r *http.Request) (access.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return access.Actor{}, &timeoff.UnauthorizedError{Reason: "missing " + ActorHeader + " header"}
	}
	emp, err := h.Directory.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, timeoff.ErrNotFound) {
			return access.Actor{}, &timeoff.UnauthorizedError{ActorID: id, Reason: "unknown actor"}
		}
		return access.Actor{}, fmt.Errorf("resolve actor %s: %w", id, err)
	}
	return access.ActorOf(emp), nil
}

// subject looks up the employee a request belongs to. Employees missing
// from the directory are visible to admins only.
func (h *Handler) subject(ctx context.Context, id string) (timeoff.Employee, error) {
	emp, err := h.Directory.Lookup(ctx, id)
	if errors.Is(err, timeoff.ErrNotFound) {
		return timeoff.Employee{ID: id}, nil
	}
	return emp, err
}

// authorizeView resolves the caller and checks it may read employeeID's data.
func (h *Handler) authorizeView(r *http.Request, employeeID string) (access.Actor, error) {
	actor, err := h.actor(r)
	if err != nil {
		return access.Actor{}, err
	}
	subject, err := h.subject(r.Context(), employeeID)
	if err != nil {
		return access.Actor{}, err
	}
	if !access.CanView(actor, subject) {
		return access.Actor{}, &timeoff.UnauthorizedError{ActorID: actor.ID, Role: actor.Role, Reason: "cannot view requests of " + employeeID}
	}
	return actor, nil
}

// viewableRequest loads the {id} request and checks the caller may see it.
// It writes the error response itself and reports whether to continue.
func (h *Handler) viewableRequest(w http.ResponseWriter, r *http.Request) (*timeoff.TimeOffRequest, bool) {
	if _, err := h.actor(r); err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	req, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if _, err := h.authorizeView(r, req.EmployeeID); err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return req, true
}

func (h *Handler) calendar(ctx context.Context) (*calendar.Calendar, error) {
	holidays, err := h.Holidays.Holidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return calendar.New(holidays), nil
}

func parseDate(field, s string) (timeoff.Date, error) {
	if s == "" {
		return timeoff.Date{}, &timeoff.ValidationError{Field: field, Message: "required"}
	}
	d, err := timeoff.ParseDate(s)
	if err != nil {
		return timeoff.Date{}, &timeoff.ValidationError{Field: field, Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return d, nil
}

var errEmptyBody = &timeoff.ValidationError{Field: "body", Message: "empty request body"}

// decodeJSON reads a bounded JSON body into v. An empty body yields
// errEmptyBody so callers with optional bodies can tell it apart.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return &timeoff.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch timeoff.KindOf(err) {
	case "InvalidRange", "Validation":
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "RequestAlreadyFinalized":
		return http.StatusConflict
	case "InsufficientBalance", "NoWorkingDayFound":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse. Internal errors are logged and their
// message is withheld from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Kind: timeoff.KindOf(err)}

	var (
		verr   *timeoff.ValidationError
		nf     *timeoff.NotFoundError
		fin    *timeoff.FinalizedError
		unauth *timeoff.UnauthorizedError
		ins    *timeoff.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &verr):
		resp.Field, resp.RequestID = verr.Field, verr.RequestID
	case errors.As(err, &nf):
		resp.Field = nf.Field
		if nf.Resource == "request" {
			resp.RequestID = nf.ID
		}
	case errors.As(err, &fin):
		resp.RequestID = fin.RequestID
		resp.Details = map[string]any{"status": string(fin.Status)}
	case errors.As(err, &unauth):
		resp.RequestID = unauth.RequestID
	case errors.As(err, &ins):
		resp.Details = map[string]any{
			"available": ins.Available.InexactFloat64(),
			"requested": ins.Requested.InexactFloat64(),
			"shortfall": ins.Shortfall().InexactFloat64(),
		}
	}

	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "trace_id", middleware.GetReqID(r.Context()), "err", err)
		resp.Error = "internal error"
		resp.Details = nil
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
