/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract of the workflow using SQLite. The
  same statements run on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  balance.Store:         Ledger entries (append-only)
  workflow.Store:        Requests and approval records
  workflow.Directory:    Employee lookup
  calendar.HolidayStore: Holiday calendar

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries or approvals
  - ledger_entries.idempotency_key is UNIQUE; a replay surfaces as
    balance.ErrDuplicateEntry
  - approvals.id is the deterministic approval id; a replay surfaces as
    workflow.ErrDuplicateApproval

KEY TABLES:
  ledger_entries: Balance movements per (employee, leave type, year)
  requests:       Time-off requests, current state only
  approvals:      Immutable approver decisions
  holidays:       Fixed and recurring non-working days
  employees:      Identity directory

WAL MODE:
  File databases are opened with WAL so readers do not block the writer.
  ":memory:" databases are pinned to one connection, otherwise every pooled
  connection would see its own empty database.

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - store/memory: In-memory implementation for tests
  - balance/ledger.go, workflow/store.go: Contracts
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

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

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		allocated TEXT NOT NULL,
		used TEXT NOT NULL,
		pending TEXT NOT NULL,
		reference TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Balance fold (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_key
		ON ledger_entries(employee_id, leave_type, year, seq);

	-- Requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		leave_type TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		duration_type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_step TEXT NOT NULL DEFAULT '',
		reserved_days TEXT NOT NULL DEFAULT '0',
		submitted_at TEXT NOT NULL,
		reviewed_by TEXT NOT NULL DEFAULT '',
		review_date TEXT,
		comments TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_step
		ON requests(current_step) WHERE current_step != '';

	-- Approval records (append-only)
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES requests(id),
		approver_id TEXT NOT NULL,
		approver_role TEXT NOT NULL,
		step TEXT NOT NULL,
		decision TEXT NOT NULL,
		comments TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_request
		ON approvals(request_id, timestamp);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);

	-- Employees (identity directory)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER ENTRIES (balance.Store interface)
// =============================================================================

// AppendEntry adds an entry to the ledger.
func (s *Store) AppendEntry(ctx context.Context, e balance.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ledger_entries
		(id, employee_id, leave_type, year, entry_type, allocated, used, pending,
		 reference, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Key.EmployeeID,
		string(e.Key.LeaveType),
		e.Key.Year,
		string(e.Type),
		e.Allocated.String(),
		e.Used.String(),
		e.Pending.String(),
		e.Reference,
		e.IdempotencyKey,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return balance.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// Entries returns the entries of key in append order.
func (s *Store) Entries(ctx context.Context, key balance.Key) ([]balance.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, entry_type, allocated, used, pending, reference, idempotency_key, created_at
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type = ? AND year = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, key.EmployeeID, string(key.LeaveType), key.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []balance.Entry
	for rows.Next() {
		var (
			e                        balance.Entry
			entryType                string
			allocated, used, pending string
			createdAt                string
		)
		if err := rows.Scan(&e.ID, &entryType, &allocated, &used, &pending,
			&e.Reference, &e.IdempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Key = key
		e.Type = balance.EntryType(entryType)
		if e.Allocated, err = decimal.NewFromString(allocated); err != nil {
			return nil, fmt.Errorf("ledger entry %s: allocated: %w", e.ID, err)
		}
		if e.Used, err = decimal.NewFromString(used); err != nil {
			return nil, fmt.Errorf("ledger entry %s: used: %w", e.ID, err)
		}
		if e.Pending, err = decimal.NewFromString(pending); err != nil {
			return nil, fmt.Errorf("ledger entry %s: pending: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("ledger entry %s: created at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// EntryExists checks if an idempotency key exists.
func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// =============================================================================
// REQUESTS (workflow.Store interface)
// =============================================================================

const requestColumns = `
	id, employee_id, kind, leave_type, start_date, end_date, duration_type, reason,
	status, current_step, reserved_days, submitted_at, reviewed_by, review_date, comments
`

func (s *Store) CreateRequest(ctx context.Context, r *timeoff.TimeOffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO requests (` + requestColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.EmployeeID, string(r.Kind), string(r.LeaveType),
		r.StartDate.String(), r.EndDate.String(), string(r.DurationType), r.Reason,
		string(r.Status), string(r.CurrentStep), r.ReservedDays.String(),
		formatTime(r.SubmittedDate), r.ReviewedBy, nullTime(r.ReviewDate), r.Comments,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &timeoff.ValidationError{RequestID: r.ID, Field: "id", Message: "request already exists"}
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*timeoff.TimeOffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &timeoff.NotFoundError{Resource: "request", ID: id, Field: "requestId"}
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRequest overwrites the mutable state of a request.
func (s *Store) UpdateRequest(ctx context.Context, r *timeoff.TimeOffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE requests SET
			status = ?, current_step = ?, reserved_days = ?,
			reviewed_by = ?, review_date = ?, comments = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(r.Status), string(r.CurrentStep), r.ReservedDays.String(),
		r.ReviewedBy, nullTime(r.ReviewDate), r.Comments, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &timeoff.NotFoundError{Resource: "request", ID: r.ID, Field: "requestId"}
	}
	return nil
}

// ListRequests returns matching requests in submission order.
func (s *Store) ListRequests(ctx context.Context, f workflow.RequestFilter) ([]*timeoff.TimeOffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Step != timeoff.StepNone {
		where = append(where, "current_step = ?")
		args = append(args, string(f.Step))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*timeoff.TimeOffRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*timeoff.TimeOffRequest, error) {
	var (
		r                             timeoff.TimeOffRequest
		kind, leaveType, durationType string
		startDate, endDate            string
		status, step, reserved        string
		submittedAt                   string
		reviewDate                    sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &kind, &leaveType, &startDate, &endDate, &durationType, &r.Reason,
		&status, &step, &reserved, &submittedAt, &r.ReviewedBy, &reviewDate, &r.Comments,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	r.Kind = timeoff.Kind(kind)
	r.LeaveType = timeoff.LeaveType(leaveType)
	r.DurationType = timeoff.DurationType(durationType)
	r.Status = timeoff.Status(status)
	r.CurrentStep = timeoff.Step(step)
	if r.StartDate, err = timeoff.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("request %s: start date: %w", r.ID, err)
	}
	if r.EndDate, err = timeoff.ParseDate(endDate); err != nil {
		return nil, fmt.Errorf("request %s: end date: %w", r.ID, err)
	}
	if r.ReservedDays, err = decimal.NewFromString(reserved); err != nil {
		return nil, fmt.Errorf("request %s: reserved days: %w", r.ID, err)
	}
	if r.SubmittedDate, err = parseTime(submittedAt); err != nil {
		return nil, fmt.Errorf("request %s: submitted at: %w", r.ID, err)
	}
	if reviewDate.Valid {
		t, err := parseTime(reviewDate.String)
		if err != nil {
			return nil, fmt.Errorf("request %s: review date: %w", r.ID, err)
		}
		r.ReviewDate = &t
	}

	return &r, nil
}

// =============================================================================
// APPROVALS (workflow.Store interface)
// =============================================================================

// AppendApproval adds an immutable approval record.
func (s *Store) AppendApproval(ctx context.Context, rec timeoff.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO approvals (id, request_id, approver_id, approver_role, step, decision, comments, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.ApproverID, string(rec.ApproverRole),
		string(rec.Step), string(rec.Decision), rec.Comments, formatTime(rec.Timestamp),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return workflow.ErrDuplicateApproval
		}
		return fmt.Errorf("failed to append approval: %w", err)
	}
	return nil
}

// Approvals returns the records of a request ordered by timestamp.
func (s *Store) Approvals(ctx context.Context, requestID string) ([]timeoff.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, request_id, approver_id, approver_role, step, decision, comments, timestamp
		FROM approvals
		WHERE request_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var out []timeoff.ApprovalRecord
	for rows.Next() {
		var (
			rec                      timeoff.ApprovalRecord
			role, step, decision, ts string
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.ApproverID, &role, &step,
			&decision, &rec.Comments, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		rec.ApproverRole = timeoff.Role(role)
		rec.Step = timeoff.Step(step)
		rec.Decision = timeoff.Decision(decision)
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("approval %s: timestamp: %w", rec.ID, err)
		}
		rec.Timestamp = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAYS (calendar.HolidayStore interface)
// =============================================================================

// SaveHoliday inserts or replaces a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h timeoff.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, name, date, type, recurring)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			date = excluded.date,
			type = excluded.type,
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query, h.ID, h.Name, h.Date.String(), string(h.Type), h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &timeoff.NotFoundError{Resource: "holiday", ID: id, Field: "id"}
	}
	return nil
}

// Holidays returns every holiday ordered by date.
func (s *Store) Holidays(ctx context.Context) ([]timeoff.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, date, type, recurring FROM holidays ORDER BY date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []timeoff.Holiday
	for rows.Next() {
		var (
			h          timeoff.Holiday
			date, kind string
		)
		if err := rows.Scan(&h.ID, &h.Name, &date, &kind, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = timeoff.ParseDate(date); err != nil {
			return nil, fmt.Errorf("holiday %s: %w", h.ID, err)
		}
		h.Type = timeoff.HolidayType(kind)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEES (workflow.Directory interface)
// =============================================================================

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, e timeoff.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, role, department)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			department = excluded.department
	`

	_, err := s.db.ExecContext(ctx, query, e.ID, e.Name, string(e.Role), e.Department)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// Lookup returns the employee with id.
func (s *Store) Lookup(ctx context.Context, id string) (timeoff.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e    timeoff.Employee
		role string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, department FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &role, &e.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return timeoff.Employee{}, &timeoff.NotFoundError{Resource: "employee", ID: id, Field: "employeeId"}
	}
	if err != nil {
		return timeoff.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}
	e.Role = timeoff.Role(role)
	return e, nil
}

// Helper functions

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
