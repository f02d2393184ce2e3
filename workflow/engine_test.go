package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/store/memory"
	"github.com/warp/leave-workflow/timeoff"
	"github.com/warp/leave-workflow/workflow"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	alice = timeoff.Employee{ID: "alice", Name: "Alice", Role: timeoff.RoleEmployee, Department: "eng"}
	bob   = timeoff.Employee{ID: "bob", Name: "Bob", Role: timeoff.RoleEmployee, Department: "eng"}
	mia   = timeoff.Employee{ID: "mia", Name: "Mia", Role: timeoff.RoleManager, Department: "eng"}
	sam   = timeoff.Employee{ID: "sam", Name: "Sam", Role: timeoff.RoleManager, Department: "sales"}
	hana  = timeoff.Employee{ID: "hana", Name: "Hana", Role: timeoff.RoleAdmin, Department: "hr"}
	omar  = timeoff.Employee{ID: "omar", Name: "Omar", Role: timeoff.RoleAdmin, Department: "hr"}
)

// Monday 3 March 2025 to Friday 7 March 2025: five working days.
var (
	monday = timeoff.MustParseDate("2025-03-03")
	friday = timeoff.MustParseDate("2025-03-07")
)

type harness struct {
	store  *memory.Store
	ledger *balance.Ledger
	engine *workflow.Engine

	mu     sync.Mutex
	events []workflow.Event
	clock  time.Time
}

type harnessOption func(*harness, *workflow.Deps, *workflow.Options)

func withEmitter(em workflow.Emitter) harnessOption {
	return func(_ *harness, d *workflow.Deps, _ *workflow.Options) { d.Emitter = em }
}

func withEnforcement(m balance.Mode) harnessOption {
	return func(_ *harness, _ *workflow.Deps, o *workflow.Options) { o.Enforcement = m }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		store: memory.New(),
		clock: time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, e := range []timeoff.Employee{alice, bob, mia, sam, hana, omar} {
		require.NoError(t, h.store.SaveEmployee(ctx, e))
	}
	h.ledger = balance.New(h.store)

	deps := workflow.Deps{
		Store:     h.store,
		Ledger:    h.ledger,
		Holidays:  h.store,
		Directory: h.store,
		Emitter: workflow.EmitterFunc(func(_ context.Context, ev workflow.Event) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
			return nil
		}),
	}
	options := workflow.Options{Enforcement: balance.Hard, Now: h.now}
	for _, opt := range opts {
		opt(h, &deps, &options)
	}
	h.engine = workflow.New(deps, options)
	return h
}

// now advances one minute per call so approval records have distinct,
// increasing timestamps.
func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(time.Minute)
	return h.clock
}

func (h *harness) allocate(t *testing.T, employeeID string, n int64) {
	t.Helper()
	_, err := h.ledger.Allocate(context.Background(), vacationKey(employeeID), decimal.NewFromInt(n), "seed")
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, employeeID string) timeoff.LeaveBalance {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), vacationKey(employeeID))
	require.NoError(t, err)
	return b
}

func (h *harness) submitVacation(t *testing.T, employeeID string, start, end timeoff.Date) *timeoff.TimeOffRequest {
	t.Helper()
	r, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID: employeeID,
		LeaveType:  timeoff.LeaveVacation,
		StartDate:  start,
		EndDate:    end,
	})
	require.NoError(t, err)
	return r
}

func (h *harness) decide(requestID string, approver timeoff.Employee, d timeoff.Decision) (*timeoff.TimeOffRequest, error) {
	return h.engine.Decide(context.Background(), workflow.DecideInput{
		RequestID:    requestID,
		ApproverID:   approver.ID,
		ApproverRole: approver.Role,
		Decision:     d,
		Comments:     fmt.Sprintf("%s by %s", d, approver.ID),
	})
}

func (h *harness) recordedEvents() []workflow.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]workflow.Event(nil), h.events...)
}

func vacationKey(employeeID string) balance.Key {
	return balance.Key{EmployeeID: employeeID, LeaveType: timeoff.LeaveVacation, Year: 2025}
}

func assertDays(t *testing.T, want int64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "%s: want %d, got %s", msg, want, got)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_ReservesChargeableDays(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)

	r := h.submitVacation(t, "alice", monday, friday)

	assert.Equal(t, timeoff.StatusPending, r.Status)
	assert.Equal(t, timeoff.StepManager, r.CurrentStep)
	assert.Equal(t, timeoff.DurationFullDay, r.DurationType)
	assertDays(t, 5, r.ReservedDays, "reserved")
	assertDays(t, 5, h.balance(t, "alice").Pending, "pending")
	assert.NotEmpty(t, r.ID)
}

func TestSubmit_InvalidRange(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID: "alice",
		LeaveType:  timeoff.LeaveVacation,
		StartDate:  friday,
		EndDate:    monday,
	})
	assert.ErrorIs(t, err, timeoff.ErrInvalidRange)
}

func TestSubmit_HardEnforcementRejectsOverdraw(t *testing.T) {
	// GIVEN: 5 days available
	// WHEN: submitting a 10 working day request under hard enforcement
	// THEN: InsufficientBalance and nothing is reserved
	h := newHarness(t)
	h.allocate(t, "alice", 5)

	_, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID: "alice",
		LeaveType:  timeoff.LeaveVacation,
		StartDate:  monday,
		EndDate:    timeoff.MustParseDate("2025-03-13"),
	})
	require.ErrorIs(t, err, timeoff.ErrInsufficientBalance)

	var shortage *timeoff.InsufficientBalanceError
	require.ErrorAs(t, err, &shortage)
	assertDays(t, 10, shortage.Requested, "requested")
	assertDays(t, 0, h.balance(t, "alice").Pending, "pending")

	all, err := h.engine.ListForEmployee(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmit_SoftEnforcementProceeds(t *testing.T) {
	h := newHarness(t, withEnforcement(balance.Soft))
	h.allocate(t, "alice", 5)

	r := h.submitVacation(t, "alice", monday, timeoff.MustParseDate("2025-03-13"))

	assertDays(t, 10, r.ReservedDays, "reserved")
	assertDays(t, -5, h.balance(t, "alice").Available(), "available")
}

func TestSubmit_PerRequestEnforcementOverride(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 1)

	soft := balance.Soft
	_, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID:  "alice",
		LeaveType:   timeoff.LeaveVacation,
		StartDate:   monday,
		EndDate:     friday,
		Enforcement: &soft,
	})
	require.NoError(t, err)
}

func TestSubmit_HalfDayRange(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 10)

	r, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID:   "alice",
		LeaveType:    timeoff.LeaveVacation,
		StartDate:    monday,
		EndDate:      friday,
		DurationType: timeoff.DurationHalfDayMorning,
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(2.5).Equal(r.ReservedDays), "got %s", r.ReservedDays)
}

func TestSubmit_ValidationFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]workflow.SubmitInput{
		"missing employee": {LeaveType: timeoff.LeaveVacation, StartDate: monday, EndDate: friday},
		"unknown leave":    {EmployeeID: "alice", LeaveType: "sabbatical", StartDate: monday, EndDate: friday},
		"unknown duration": {EmployeeID: "alice", LeaveType: timeoff.LeaveVacation, StartDate: monday, EndDate: friday, DurationType: "eighth"},
		"remote with type": {EmployeeID: "alice", Kind: timeoff.KindRemote, LeaveType: timeoff.LeaveSick, StartDate: monday, EndDate: friday},
		"missing dates":    {EmployeeID: "alice", LeaveType: timeoff.LeaveVacation},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.Submit(ctx, in)
			assert.ErrorIs(t, err, timeoff.ErrValidation)
		})
	}
}

func TestSubmit_UnknownEmployee(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Submit(context.Background(), workflow.SubmitInput{
		EmployeeID: "ghost", LeaveType: timeoff.LeaveVacation, StartDate: monday, EndDate: friday,
	})
	assert.ErrorIs(t, err, timeoff.ErrNotFound)
}

// =============================================================================
// DECIDE - Transition table
// =============================================================================

func TestDecide_ManagerDeclineRestoresPending(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	before := h.balance(t, "alice")

	r := h.submitVacation(t, "alice", monday, friday)
	got, err := h.decide(r.ID, mia, timeoff.DecisionDecline)
	require.NoError(t, err)

	assert.Equal(t, timeoff.StatusDeclined, got.Status)
	assert.Equal(t, timeoff.StepNone, got.CurrentStep)
	assert.True(t, got.ReservedDays.IsZero())
	assert.Equal(t, "mia", got.ReviewedBy)
	require.NotNil(t, got.ReviewDate)

	after := h.balance(t, "alice")
	assert.True(t, before.Pending.Equal(after.Pending))
	assert.True(t, before.Used.Equal(after.Used))
}

func TestDecide_FullApprovalChargesUsed(t *testing.T) {
	// GIVEN: a 5 day request
	// WHEN: the manager approves and then HR approves
	// THEN: used grows by 5, pending is back to its prior value, and the
	//       approval log holds exactly two records in order
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	mid, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusManagerApproved, mid.Status)
	assert.Equal(t, timeoff.StepHR, mid.CurrentStep)
	assertDays(t, 5, h.balance(t, "alice").Pending, "pending after manager")

	final, err := h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, final.Status)
	assert.Equal(t, timeoff.StepNone, final.CurrentStep)

	b := h.balance(t, "alice")
	assertDays(t, 5, b.Used, "used")
	assertDays(t, 0, b.Pending, "pending")
	assertDays(t, 15, b.Available(), "available")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, timeoff.StepManager, records[0].Step)
	assert.Equal(t, "mia", records[0].ApproverID)
	assert.Equal(t, timeoff.StepHR, records[1].Step)
	assert.Equal(t, "hana", records[1].ApproverID)
	assert.True(t, records[0].Timestamp.Before(records[1].Timestamp))
}

func TestDecide_HRDeclineReleases(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	got, err := h.decide(r.ID, hana, timeoff.DecisionDecline)
	require.NoError(t, err)

	assert.Equal(t, timeoff.StatusDeclined, got.Status)
	b := h.balance(t, "alice")
	assertDays(t, 0, b.Pending, "pending")
	assertDays(t, 0, b.Used, "used")
}

func TestDecide_AdminCanActAtManagerStep(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	got, err := h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusManagerApproved, got.Status)
}

func TestDecide_InvariantHoldsAtEveryStep(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	check := func(r *timeoff.TimeOffRequest) {
		t.Helper()
		require.NoError(t, r.Validate())
		assert.Equal(t, r.Status.Terminal(), r.CurrentStep == timeoff.StepNone)
		b := h.balance(t, "alice")
		assert.True(t, b.Available().Equal(b.Allocated.Sub(b.Used).Sub(b.Pending)))
	}
	check(r)

	mid, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	check(mid)

	final, err := h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	check(final)
}

// =============================================================================
// DECIDE - Rejections
// =============================================================================

func TestDecide_EmployeeAlwaysUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, bob, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)

	// Still unauthorized once the request is final.
	_, err = h.decide(r.ID, mia, timeoff.DecisionDecline)
	require.NoError(t, err)
	_, err = h.decide(r.ID, bob, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)

	// And for an unknown request.
	_, err = h.decide("no-such-request", alice, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)
}

func TestDecide_FinalizedRequestRejected(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, mia, timeoff.DecisionDecline)
	require.NoError(t, err)

	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.ErrorIs(t, err, timeoff.ErrRequestAlreadyFinalized)

	var finalized *timeoff.FinalizedError
	require.ErrorAs(t, err, &finalized)
	assert.Equal(t, timeoff.StatusDeclined, finalized.Status)

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDecide_ManagerOutsideDepartmentUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, sam, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)

	got, err := h.engine.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusPending, got.Status)
}

func TestDecide_ManagerCannotActAtHRStep(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)
	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)

	_, err = h.decide(r.ID, mia, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)
}

func TestDecide_ClaimedRoleMustMatchDirectory(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.engine.Decide(context.Background(), workflow.DecideInput{
		RequestID:    r.ID,
		ApproverID:   mia.ID,
		ApproverRole: timeoff.RoleAdmin,
		Decision:     timeoff.DecisionApprove,
	})
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)
}

func TestDecide_UnknownRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.decide("no-such-request", mia, timeoff.DecisionApprove)
	assert.ErrorIs(t, err, timeoff.ErrNotFound)
}

func TestDecide_UnknownDecision(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, mia, "maybe")
	assert.ErrorIs(t, err, timeoff.ErrValidation)
}

// =============================================================================
// DECIDE - Recomputation, notification and replay
// =============================================================================

func TestDecide_RecomputesAgainstCurrentHolidays(t *testing.T) {
	// GIVEN: a 5 day request reserved before a company holiday is declared
	// WHEN: HR approves after the holiday exists
	// THEN: 4 days are charged and nothing stays pending
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	require.NoError(t, h.store.SaveHoliday(context.Background(), timeoff.Holiday{
		ID: "offsite", Name: "Company offsite", Date: timeoff.MustParseDate("2025-03-05"), Type: timeoff.HolidayCompany,
	}))

	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)

	b := h.balance(t, "alice")
	assertDays(t, 4, b.Used, "used")
	assertDays(t, 0, b.Pending, "pending")
}

func TestDecide_NotificationFailureDoesNotRollBack(t *testing.T) {
	failing := workflow.EmitterFunc(func(context.Context, workflow.Event) error {
		return errors.New("mail relay down")
	})
	h := newHarness(t, withEmitter(failing))
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	got, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusManagerApproved, got.Status)

	stored, err := h.engine.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusManagerApproved, stored.Status)
}

func TestDecide_EmitsEvents(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	_, err = h.decide(r.ID, hana, timeoff.DecisionDecline)
	require.NoError(t, err)

	events := h.recordedEvents()
	require.Len(t, events, 2)

	assert.Equal(t, "alice", events[0].RecipientID)
	assert.Equal(t, "mia", events[0].SenderID)
	assert.Equal(t, workflow.EventSuccess, events[0].Type)
	assert.Equal(t, "/requests/"+r.ID, events[0].Link)
	assert.Equal(t, timeoff.StepManager, events[0].Step)
	assert.Contains(t, events[0].Message, "awaits HR review")

	assert.Equal(t, workflow.EventWarning, events[1].Type)
	assert.Equal(t, timeoff.DecisionDecline, events[1].Outcome)
	assert.Equal(t, timeoff.StepHR, events[1].Step)
	assert.Contains(t, events[1].Message, "declined")
}

// flakyStore fails the next UpdateRequest, leaving the ledger and approval
// log written but the request state unchanged.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failNext bool
}

func (s *flakyStore) UpdateRequest(ctx context.Context, r *timeoff.TimeOffRequest) error {
	s.mu.Lock()
	fail := s.failNext
	s.failNext = false
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Store.UpdateRequest(ctx, r)
}

func TestDecide_ReplayAfterPartialFailureChargesOnce(t *testing.T) {
	// GIVEN: an HR approval whose final state write fails
	// WHEN: the same decision is retried
	// THEN: days are charged once and the log holds one record per step
	flaky := &flakyStore{}
	h := newHarness(t, func(h *harness, d *workflow.Deps, _ *workflow.Options) {
		flaky.Store = h.store
		d.Store = flaky
	})

	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)
	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)

	flaky.mu.Lock()
	flaky.failNext = true
	flaky.mu.Unlock()

	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.Error(t, err)

	got, err := h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)

	b := h.balance(t, "alice")
	assertDays(t, 5, b.Used, "used charged once")
	assertDays(t, 0, b.Pending, "pending")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func (s *flakyStore) failNextUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func newFlakyHarness(t *testing.T) (*harness, *flakyStore) {
	t.Helper()
	flaky := &flakyStore{}
	h := newHarness(t, func(h *harness, d *workflow.Deps, _ *workflow.Options) {
		flaky.Store = h.store
		d.Store = flaky
	})
	return h, flaky
}

var (
	nextMonday = timeoff.MustParseDate("2025-03-10")
	nextFriday = timeoff.MustParseDate("2025-03-14")
)

func TestDecide_ConflictingRetryKeepsLoggedDecision(t *testing.T) {
	// GIVEN: two 5-day requests; the HR approval of the first is logged
	//        and charged but its state write fails
	// WHEN: HR retries the first request with a decline
	// THEN: the logged approval is completed, the decline is refused, and
	//       the second request keeps its reservation
	h, flaky := newFlakyHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)
	other := h.submitVacation(t, "alice", nextMonday, nextFriday)
	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)

	flaky.failNextUpdate()
	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.Error(t, err)

	_, err = h.decide(r.ID, omar, timeoff.DecisionDecline)
	require.Error(t, err)
	assert.ErrorIs(t, err, timeoff.ErrRequestAlreadyFinalized)

	got, err := h.engine.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)
	assert.Equal(t, "hana", got.ReviewedBy)

	b := h.balance(t, "alice")
	assertDays(t, 5, b.Used, "used")
	assertDays(t, 5, b.Pending, "second request still reserved")

	pending, err := h.engine.Get(context.Background(), other.ID)
	require.NoError(t, err)
	assertDays(t, 5, pending.ReservedDays, "reserved")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, timeoff.StepHR, records[1].Step)
	assert.Equal(t, timeoff.DecisionApprove, records[1].Decision)

	events := h.recordedEvents()
	require.Len(t, events, 2, "manager approval and the completed HR approval")
	assert.Equal(t, timeoff.StepHR, events[1].Step)
	assert.Equal(t, timeoff.DecisionApprove, events[1].Outcome)
}

func TestDecide_ConflictingRetryAtManagerStep(t *testing.T) {
	// GIVEN: a manager approval that is logged but not persisted
	// WHEN: the manager retries with a decline
	// THEN: the request moves on to HR and the decline is refused
	h, flaky := newFlakyHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	flaky.failNextUpdate()
	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.Error(t, err)

	_, err = h.decide(r.ID, mia, timeoff.DecisionDecline)
	var decided *timeoff.StepDecidedError
	require.ErrorAs(t, err, &decided)
	assert.Equal(t, timeoff.StepManager, decided.Step)
	assert.Equal(t, timeoff.DecisionApprove, decided.Decision)
	assert.Equal(t, "RequestAlreadyFinalized", timeoff.KindOf(err))

	got, err := h.engine.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusManagerApproved, got.Status)
	assert.Equal(t, timeoff.StepHR, got.CurrentStep)
	assertDays(t, 5, h.balance(t, "alice").Pending, "reservation held for HR")

	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	assertDays(t, 5, h.balance(t, "alice").Used, "used")
}

func TestWithdraw_CompletesLoggedApprovalFirst(t *testing.T) {
	// GIVEN: an HR approval that is charged and logged but not persisted
	// WHEN: the employee withdraws the request
	// THEN: the approval stands and the reservation of another request is
	//       left alone
	h, flaky := newFlakyHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)
	h.submitVacation(t, "alice", nextMonday, nextFriday)
	_, err := h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)

	flaky.failNextUpdate()
	_, err = h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.Error(t, err)

	_, err = h.engine.Withdraw(context.Background(), r.ID, "alice", "plans changed")
	assert.ErrorIs(t, err, timeoff.ErrRequestAlreadyFinalized)

	got, err := h.engine.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)

	b := h.balance(t, "alice")
	assertDays(t, 5, b.Used, "used")
	assertDays(t, 5, b.Pending, "pending")
}

func TestDecide_AfterLoggedWithdrawal(t *testing.T) {
	// GIVEN: a withdrawal that released the reservation but was not persisted
	// WHEN: the manager approves the request
	// THEN: the withdrawal is completed and the approval refused
	h, flaky := newFlakyHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	flaky.failNextUpdate()
	_, err := h.engine.Withdraw(context.Background(), r.ID, "alice", "plans changed")
	require.Error(t, err)

	_, err = h.decide(r.ID, mia, timeoff.DecisionApprove)
	var finalized *timeoff.FinalizedError
	require.ErrorAs(t, err, &finalized)
	assert.Equal(t, timeoff.StatusDeclined, finalized.Status)

	b := h.balance(t, "alice")
	assertDays(t, 0, b.Used, "used")
	assertDays(t, 0, b.Pending, "pending")
	assert.Empty(t, h.recordedEvents(), "withdrawals are not announced")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, timeoff.RoleEmployee, records[0].ApproverRole)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestDecide_ConcurrentDecisionsResolveSequentially(t *testing.T) {
	// GIVEN: one pending request
	// WHEN: five admins approve it at the same time
	// THEN: exactly two succeed (manager then HR step), the rest see a
	//       finalized request, and days are charged once
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		finalized int
	)
	for i := 0; i < 5; i++ {
		approver := hana
		if i%2 == 1 {
			approver = omar
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.decide(r.ID, approver, timeoff.DecisionApprove)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, timeoff.ErrRequestAlreadyFinalized):
				finalized++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 3, finalized)

	b := h.balance(t, "alice")
	assertDays(t, 5, b.Used, "used")
	assertDays(t, 0, b.Pending, "pending")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, timeoff.StepManager, records[0].Step)
	assert.Equal(t, timeoff.StepHR, records[1].Step)
}

// =============================================================================
// REMOTE WORK
// =============================================================================

func TestRemoteRequest_NeverTouchesLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.engine.Submit(ctx, workflow.SubmitInput{
		EmployeeID: "alice",
		Kind:       timeoff.KindRemote,
		StartDate:  monday,
		EndDate:    friday,
		Reason:     "moving house",
	})
	require.NoError(t, err)
	assert.True(t, r.ReservedDays.IsZero())

	_, err = h.decide(r.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)
	got, err := h.decide(r.ID, hana, timeoff.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, got.Status)

	history, err := h.ledger.History(ctx, vacationKey("alice"))
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// WITHDRAW AND QUERIES
// =============================================================================

func TestWithdraw_ReleasesAndRecords(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	r := h.submitVacation(t, "alice", monday, friday)

	_, err := h.engine.Withdraw(context.Background(), r.ID, "bob", "not mine")
	assert.ErrorIs(t, err, timeoff.ErrUnauthorized)

	got, err := h.engine.Withdraw(context.Background(), r.ID, "alice", "plans changed")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusDeclined, got.Status)
	assert.Equal(t, timeoff.StepNone, got.CurrentStep)
	assertDays(t, 0, h.balance(t, "alice").Pending, "pending")

	records, err := h.engine.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, timeoff.RoleEmployee, records[0].ApproverRole)
	assert.Equal(t, timeoff.DecisionDecline, records[0].Decision)

	_, err = h.engine.Withdraw(context.Background(), r.ID, "alice", "again")
	assert.ErrorIs(t, err, timeoff.ErrRequestAlreadyFinalized)
}

func TestListAwaiting(t *testing.T) {
	h := newHarness(t)
	h.allocate(t, "alice", 20)
	h.allocate(t, "bob", 20)
	ctx := context.Background()

	first := h.submitVacation(t, "alice", monday, friday)
	second := h.submitVacation(t, "bob", monday, friday)
	_, err := h.decide(first.ID, mia, timeoff.DecisionApprove)
	require.NoError(t, err)

	atManager, err := h.engine.ListAwaiting(ctx, timeoff.StepManager)
	require.NoError(t, err)
	require.Len(t, atManager, 1)
	assert.Equal(t, second.ID, atManager[0].ID)

	atHR, err := h.engine.ListAwaiting(ctx, timeoff.StepHR)
	require.NoError(t, err)
	require.Len(t, atHR, 1)
	assert.Equal(t, first.ID, atHR[0].ID)

	_, err = h.engine.ListAwaiting(ctx, timeoff.StepNone)
	assert.ErrorIs(t, err, timeoff.ErrValidation)
}

func TestApprovalHistory_UnknownRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.ApprovalHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, timeoff.ErrNotFound)
}
