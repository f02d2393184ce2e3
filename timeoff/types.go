/*
Package timeoff holds the domain vocabulary shared by the approval workflow.

PURPOSE:
  Every other package (calendar, balance, access, workflow, the stores and
  the HTTP layer) speaks in these types. Keeping them in one leaf package
  avoids import cycles and gives the error taxonomy a single home.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeOffRequest: one leave or remote-work submission
  - ApprovalRecord: one immutable approver decision
  - LeaveBalance: allocated/used/pending days per employee, type and year
  - Holiday: a non-working day, optionally recurring every year
  - Closed enums: Kind, LeaveType, DurationType, Status, Step, Role, Decision

STATE INVARIANT:
  CurrentStep == StepNone  <=>  Status is terminal (approved or declined)

SEE ALSO:
  - date.go: Date type (day granularity)
  - errors.go: Error taxonomy
*/
package timeoff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST KIND AND LEAVE TYPE
// =============================================================================

type Kind string

const (
	KindLeave  Kind = "leave"
	KindRemote Kind = "remote"
)

func (k Kind) Valid() bool { return k == KindLeave || k == KindRemote }

type LeaveType string

const (
	LeaveVacation    LeaveType = "vacation"
	LeaveSick        LeaveType = "sick"
	LeavePersonal    LeaveType = "personal"
	LeaveMaternity   LeaveType = "maternity"
	LeavePaternity   LeaveType = "paternity"
	LeaveBereavement LeaveType = "bereavement"
)

// LeaveTypes lists every leave type in display order.
var LeaveTypes = []LeaveType{
	LeaveVacation, LeaveSick, LeavePersonal, LeaveMaternity, LeavePaternity, LeaveBereavement,
}

func (lt LeaveType) Valid() bool {
	for _, known := range LeaveTypes {
		if lt == known {
			return true
		}
	}
	return false
}

// =============================================================================
// DURATION TYPE - Fraction of each working day that is charged
// =============================================================================

type DurationType string

const (
	DurationFullDay          DurationType = "full-day"
	DurationHalfDayMorning   DurationType = "half-day-morning"
	DurationHalfDayAfternoon DurationType = "half-day-afternoon"
	DurationQuarterDay1      DurationType = "quarter-day-1"
	DurationQuarterDay2      DurationType = "quarter-day-2"
	DurationQuarterDay3      DurationType = "quarter-day-3"
	DurationQuarterDay4      DurationType = "quarter-day-4"
)

var (
	half    = decimal.NewFromFloat(0.5)
	quarter = decimal.NewFromFloat(0.25)
)

// Multiplier returns the charge per working day. The second result is false
// for unknown duration types.
func (dt DurationType) Multiplier() (decimal.Decimal, bool) {
	switch dt {
	case DurationFullDay:
		return decimal.NewFromInt(1), true
	case DurationHalfDayMorning, DurationHalfDayAfternoon:
		return half, true
	case DurationQuarterDay1, DurationQuarterDay2, DurationQuarterDay3, DurationQuarterDay4:
		return quarter, true
	default:
		return decimal.Zero, false
	}
}

func (dt DurationType) Valid() bool {
	_, ok := dt.Multiplier()
	return ok
}

// =============================================================================
// WORKFLOW STATE
// =============================================================================

type Status string

const (
	StatusPending         Status = "pending"
	StatusManagerApproved Status = "manager-approved"
	StatusApproved        Status = "approved"
	StatusDeclined        Status = "declined"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusDeclined }

// Step is the role-scoped stage currently authorized to decide a request.
type Step string

const (
	StepNone    Step = ""
	StepManager Step = "manager"
	StepHR      Step = "hr"
)

func (s Step) String() string {
	if s == StepNone {
		return "none"
	}
	return string(s)
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

func (d Decision) Valid() bool { return d == DecisionApprove || d == DecisionDecline }

// =============================================================================
// ROLES - Closed set, authority lives in the access package
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// ParseRole rejects anything outside the closed role set.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return r, nil
	default:
		return "", &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
	}
}

// Employee is what the identity directory knows about a person.
type Employee struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Role       Role   `json:"role" yaml:"role"`
	Department string `json:"department" yaml:"department"`
}

// =============================================================================
// TIME-OFF REQUEST
// =============================================================================

// TimeOffRequest is one leave or remote-work submission. It is created by
// Submit and mutated only by the workflow engine.
type TimeOffRequest struct {
	ID           string
	EmployeeID   string
	Kind         Kind
	LeaveType    LeaveType // empty for remote requests
	StartDate    Date
	EndDate      Date
	DurationType DurationType
	Reason       string
	Status       Status
	CurrentStep  Step

	// ReservedDays is what the balance ledger currently holds in pending for
	// this request. Zero for remote requests and after a terminal decision.
	ReservedDays decimal.Decimal

	SubmittedDate time.Time
	ReviewedBy    string
	ReviewDate    *time.Time
	Comments      string
}

// Year is the ledger year the request is charged to.
func (r *TimeOffRequest) Year() int { return r.StartDate.Year() }

// Charges reports whether the request consumes a leave balance.
func (r *TimeOffRequest) Charges() bool { return r.Kind == KindLeave }

// Validate checks the structural invariants of a request.
func (r *TimeOffRequest) Validate() error {
	if r.EndDate.Before(r.StartDate) {
		return &RangeError{RequestID: r.ID, Start: r.StartDate, End: r.EndDate}
	}
	switch r.Status {
	case StatusPending, StatusManagerApproved, StatusApproved, StatusDeclined:
	default:
		return &ValidationError{RequestID: r.ID, Field: "status", Message: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.Status.Terminal() != (r.CurrentStep == StepNone) {
		return &ValidationError{
			RequestID: r.ID,
			Field:     "currentStep",
			Message:   fmt.Sprintf("step %s inconsistent with status %s", r.CurrentStep, r.Status),
		}
	}
	return nil
}

// Clone returns a copy that shares no pointers with r.
func (r *TimeOffRequest) Clone() *TimeOffRequest {
	c := *r
	if r.ReviewDate != nil {
		t := *r.ReviewDate
		c.ReviewDate = &t
	}
	return &c
}

// =============================================================================
// APPROVAL RECORD - Append-only audit of decisions
// =============================================================================

// ApprovalRecord is immutable once created. Ordered by Timestamp, the records
// of a request reconstruct its full transition history.
type ApprovalRecord struct {
	ID           string
	RequestID    string
	ApproverID   string
	ApproverRole Role
	Step         Step
	Decision     Decision
	Comments     string
	Timestamp    time.Time
}

// =============================================================================
// LEAVE BALANCE
// =============================================================================

type LeaveBalance struct {
	EmployeeID string
	LeaveType  LeaveType
	Year       int
	Allocated  decimal.Decimal
	Used       decimal.Decimal
	Pending    decimal.Decimal
}

// Available is always derived, never stored.
func (b LeaveBalance) Available() decimal.Decimal {
	return b.Allocated.Sub(b.Used).Sub(b.Pending)
}

// Utilization is used/allocated as a percentage, 0 when nothing is allocated.
func (b LeaveBalance) Utilization() decimal.Decimal {
	if !b.Allocated.IsPositive() {
		return decimal.Zero
	}
	return b.Used.Div(b.Allocated).Mul(decimal.NewFromInt(100)).Round(2)
}

// =============================================================================
// HOLIDAY
// =============================================================================

type HolidayType string

const (
	HolidayNational  HolidayType = "national"
	HolidayCompany   HolidayType = "company"
	HolidayReligious HolidayType = "religious"
)

func (ht HolidayType) Valid() bool {
	return ht == HolidayNational || ht == HolidayCompany || ht == HolidayReligious
}

// Holiday is a non-working day. When Recurring is set only the month and day
// of Date are significant.
type Holiday struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	Date      Date        `json:"date" yaml:"date"`
	Type      HolidayType `json:"type" yaml:"type"`
	Recurring bool        `json:"recurring" yaml:"recurring"`
}
