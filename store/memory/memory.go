// Package memory provides in-memory implementations of every store contract
// (ledger entries, requests, approvals, holidays, directory) for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/calendar"
	"github.com/warp/leave-workflow/timeoff"
	"github.com/warp/leave-workflow/workflow"
)

// Compile-time checks
var (
	_ balance.Store         = (*Store)(nil)
	_ workflow.Store        = (*Store)(nil)
	_ workflow.Directory    = (*Store)(nil)
	_ calendar.HolidayStore = (*Store)(nil)
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	entries     map[balance.Key][]balance.Entry
	idempotency map[string]bool

	requests    map[string]*timeoff.TimeOffRequest
	order       []string // request ids in creation order
	approvals   map[string][]timeoff.ApprovalRecord
	approvalIDs map[string]bool

	holidays  map[string]timeoff.Holiday
	employees map[string]timeoff.Employee
}

func New() *Store {
	return &Store{
		entries:     make(map[balance.Key][]balance.Entry),
		idempotency: make(map[string]bool),
		requests:    make(map[string]*timeoff.TimeOffRequest),
		approvals:   make(map[string][]timeoff.ApprovalRecord),
		approvalIDs: make(map[string]bool),
		holidays:    make(map[string]timeoff.Holiday),
		employees:   make(map[string]timeoff.Employee),
	}
}

// =============================================================================
// LEDGER ENTRIES (balance.Store)
// =============================================================================

func (m *Store) AppendEntry(_ context.Context, e balance.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return balance.ErrDuplicateEntry
	}
	m.entries[e.Key] = append(m.entries[e.Key], e)
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (m *Store) Entries(_ context.Context, key balance.Key) ([]balance.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]balance.Entry, len(m.entries[key]))
	copy(result, m.entries[key])
	return result, nil
}

func (m *Store) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// REQUESTS AND APPROVALS (workflow.Store)
// =============================================================================

func (m *Store) CreateRequest(_ context.Context, r *timeoff.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[r.ID]; ok {
		return &timeoff.ValidationError{RequestID: r.ID, Field: "id", Message: "request already exists"}
	}
	m.requests[r.ID] = r.Clone()
	m.order = append(m.order, r.ID)
	return nil
}

func (m *Store) GetRequest(_ context.Context, id string) (*timeoff.TimeOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, &timeoff.NotFoundError{Resource: "request", ID: id, Field: "requestId"}
	}
	return r.Clone(), nil
}

func (m *Store) UpdateRequest(_ context.Context, r *timeoff.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[r.ID]; !ok {
		return &timeoff.NotFoundError{Resource: "request", ID: r.ID, Field: "requestId"}
	}
	m.requests[r.ID] = r.Clone()
	return nil
}

func (m *Store) ListRequests(_ context.Context, f workflow.RequestFilter) ([]*timeoff.TimeOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*timeoff.TimeOffRequest
	for _, id := range m.order {
		if r := m.requests[id]; f.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *Store) AppendApproval(_ context.Context, rec timeoff.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.approvalIDs[rec.ID] {
		return workflow.ErrDuplicateApproval
	}
	m.approvalIDs[rec.ID] = true
	m.approvals[rec.RequestID] = append(m.approvals[rec.RequestID], rec)
	return nil
}

func (m *Store) Approvals(_ context.Context, requestID string) ([]timeoff.ApprovalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]timeoff.ApprovalRecord, len(m.approvals[requestID]))
	copy(result, m.approvals[requestID])
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// =============================================================================
// HOLIDAYS (calendar.HolidayStore)
// =============================================================================

func (m *Store) SaveHoliday(_ context.Context, h timeoff.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Store) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holidays[id]; !ok {
		return &timeoff.NotFoundError{Resource: "holiday", ID: id, Field: "id"}
	}
	delete(m.holidays, id)
	return nil
}

// Holidays returns a snapshot ordered by date.
func (m *Store) Holidays(_ context.Context) ([]timeoff.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]timeoff.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// =============================================================================
// DIRECTORY (workflow.Directory)
// =============================================================================

func (m *Store) SaveEmployee(_ context.Context, e timeoff.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Store) Lookup(_ context.Context, id string) (timeoff.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[id]
	if !ok {
		return timeoff.Employee{}, &timeoff.NotFoundError{Resource: "employee", ID: id, Field: "employeeId"}
	}
	return e, nil
}
