/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the workflow domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Requests:
    SubmitRequest, DecisionRequest, WithdrawRequest, RequestDTO, ApprovalDTO

  Balances:
    AllocationRequest, BalanceDTO

  Calendar:
    ChargeableDaysRequest, ChargeableDaysDTO, WorkingDayDTO, HolidayRequest

  Errors:
    ErrorResponse

DAY AMOUNTS:
  Day counts are decimals internally. Responses carry them as JSON numbers;
  every value the engine produces is a multiple of 0.25 and is exact as a
  float64. AllocationRequest.Days accepts a number or a numeric string.

VALIDATION:
  Validation is done in handlers and the workflow engine, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - timeoff/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-workflow/timeoff"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitRequest is the body of POST /api/requests. EmployeeID defaults to
// the calling actor.
type SubmitRequest struct {
	EmployeeID   string `json:"employee_id"`
	Kind         string `json:"kind"`
	LeaveType    string `json:"leave_type"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	DurationType string `json:"duration_type"`
	Reason       string `json:"reason"`
	Enforcement  string `json:"enforcement,omitempty"`
}

// DecisionRequest is the body of POST /api/requests/{id}/decisions. Role
// defaults to the directory role of the caller.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Role     string `json:"role,omitempty"`
	Comments string `json:"comments"`
}

type WithdrawRequest struct {
	Reason string `json:"reason"`
}

// AllocationRequest grants (or with negative days, revokes) allocated days.
// Reference makes the grant idempotent; a random one is used when empty.
type AllocationRequest struct {
	EmployeeID string          `json:"employee_id"`
	LeaveType  string          `json:"leave_type"`
	Year       int             `json:"year"`
	Days       decimal.Decimal `json:"days"`
	Reference  string          `json:"reference,omitempty"`
}

type ChargeableDaysRequest struct {
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	DurationType string `json:"duration_type"`
}

// HolidayRequest creates or replaces a holiday. ID is generated when empty.
type HolidayRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RequestDTO represents a time-off request in API responses.
type RequestDTO struct {
	ID            string  `json:"id"`
	EmployeeID    string  `json:"employee_id"`
	Kind          string  `json:"kind"`
	LeaveType     string  `json:"leave_type,omitempty"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	DurationType  string  `json:"duration_type"`
	Reason        string  `json:"reason,omitempty"`
	Status        string  `json:"status"`
	CurrentStep   string  `json:"current_step"`
	ReservedDays  float64 `json:"reserved_days"`
	SubmittedDate string  `json:"submitted_date"`
	ReviewedBy    string  `json:"reviewed_by,omitempty"`
	ReviewDate    *string `json:"review_date,omitempty"`
	Comments      string  `json:"comments,omitempty"`
}

// ApprovalDTO is one entry of the audit export.
type ApprovalDTO struct {
	ID           string `json:"id"`
	RequestID    string `json:"request_id"`
	ApproverID   string `json:"approver_id"`
	ApproverRole string `json:"approver_role"`
	Step         string `json:"step"`
	Decision     string `json:"decision"`
	Comments     string `json:"comments,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// BalanceDTO is a leave balance with its derived figures.
type BalanceDTO struct {
	EmployeeID  string  `json:"employee_id"`
	LeaveType   string  `json:"leave_type"`
	Year        int     `json:"year"`
	Allocated   float64 `json:"allocated"`
	Used        float64 `json:"used"`
	Pending     float64 `json:"pending"`
	Available   float64 `json:"available"`
	Utilization float64 `json:"utilization"`
}

type ChargeableDaysDTO struct {
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	DurationType string  `json:"duration_type"`
	Days         float64 `json:"days"`
}

type WorkingDayDTO struct {
	From      string `json:"from"`
	Direction string `json:"direction"`
	Date      string `json:"date"`
}

// ErrorResponse is the body of every non-2xx response. Kind names the
// error taxonomy entry (see timeoff.KindOf).
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Field     string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestDTO(r *timeoff.TimeOffRequest) RequestDTO {
	dto := RequestDTO{
		ID:            r.ID,
		EmployeeID:    r.EmployeeID,
		Kind:          string(r.Kind),
		LeaveType:     string(r.LeaveType),
		StartDate:     r.StartDate.String(),
		EndDate:       r.EndDate.String(),
		DurationType:  string(r.DurationType),
		Reason:        r.Reason,
		Status:        string(r.Status),
		CurrentStep:   r.CurrentStep.String(),
		ReservedDays:  r.ReservedDays.InexactFloat64(),
		SubmittedDate: r.SubmittedDate.UTC().Format(time.RFC3339),
		ReviewedBy:    r.ReviewedBy,
		Comments:      r.Comments,
	}
	if r.ReviewDate != nil {
		s := r.ReviewDate.UTC().Format(time.RFC3339)
		dto.ReviewDate = &s
	}
	return dto
}

func toRequestDTOs(rs []*timeoff.TimeOffRequest) []RequestDTO {
	dtos := make([]RequestDTO, 0, len(rs))
	for _, r := range rs {
		dtos = append(dtos, toRequestDTO(r))
	}
	return dtos
}

func toApprovalDTOs(recs []timeoff.ApprovalRecord) []ApprovalDTO {
	dtos := make([]ApprovalDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, ApprovalDTO{
			ID:           rec.ID,
			RequestID:    rec.RequestID,
			ApproverID:   rec.ApproverID,
			ApproverRole: string(rec.ApproverRole),
			Step:         rec.Step.String(),
			Decision:     string(rec.Decision),
			Comments:     rec.Comments,
			Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return dtos
}

func toBalanceDTO(b timeoff.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:  b.EmployeeID,
		LeaveType:   string(b.LeaveType),
		Year:        b.Year,
		Allocated:   b.Allocated.InexactFloat64(),
		Used:        b.Used.InexactFloat64(),
		Pending:     b.Pending.InexactFloat64(),
		Available:   b.Available().InexactFloat64(),
		Utilization: b.Utilization().InexactFloat64(),
	}
}
