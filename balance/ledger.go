/*
Package balance implements the leave balance ledger.

PURPOSE:
  Tracks allocated, used and pending days per (employee, leave type, year)
  and answers availability and utilization queries. The workflow engine is
  the only caller of the mutating operations.

APPEND-ONLY:
  Balances are never stored. Every change is an Entry carrying deltas for
  allocated/used/pending, and a balance is the fold of a key's entries.
  Corrections are new entries, never edits.

    allocate  allocated += d
    reserve   pending   += d            (submission)
    commit    pending   -= held, used += charged   (final approval)
    release   pending   -= held         (decline, withdrawal)

IDEMPOTENCY:
  Each mutation carries a reference. The ledger derives the entry's
  idempotency key from (operation, key, reference); a replay with the same
  reference is a no-op. The engine passes the ApprovalRecord id to commit
  and release, so a retried decision never double-charges.

CONCURRENCY:
  Mutations of one Key are serialized by a per-key mutex around the
  read-check-append sequence. Different keys never contend.

SEE ALSO:
  - store/memory, store/sqlite: Store implementations
  - workflow/engine.go: Calls Reserve, Commit and Release
*/
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-workflow/internal/keylock"
	"github.com/warp/leave-workflow/timeoff"
)

// ErrDuplicateEntry is returned by a Store when an idempotency key already
// exists. The ledger treats it as a successful replay.
var ErrDuplicateEntry = errors.New("duplicate ledger entry")

// ErrAlreadySettled is returned when a reservation is committed after it was
// released under the same reference, or the other way round.
var ErrAlreadySettled = errors.New("reservation already settled")

// =============================================================================
// KEY AND ENTRY
// =============================================================================

type Key struct {
	EmployeeID string
	LeaveType  timeoff.LeaveType
	Year       int
}

func (k Key) String() string { return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveType, k.Year) }

type EntryType string

const (
	EntryAllocate EntryType = "allocate"
	EntryReserve  EntryType = "reserve"
	EntryCommit   EntryType = "commit"
	EntryRelease  EntryType = "release"
)

// Entry is one immutable balance movement.
type Entry struct {
	ID             string
	Key            Key
	Type           EntryType
	Allocated      decimal.Decimal
	Used           decimal.Decimal
	Pending        decimal.Decimal
	Reference      string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Fold replays entries into a balance.
func Fold(key Key, entries []Entry) timeoff.LeaveBalance {
	b := timeoff.LeaveBalance{
		EmployeeID: key.EmployeeID,
		LeaveType:  key.LeaveType,
		Year:       key.Year,
		Allocated:  decimal.Zero,
		Used:       decimal.Zero,
		Pending:    decimal.Zero,
	}
	for _, e := range entries {
		b.Allocated = b.Allocated.Add(e.Allocated)
		b.Used = b.Used.Add(e.Used)
		b.Pending = b.Pending.Add(e.Pending)
	}
	return b
}

// Store persists entries. It is append-only: there is no update or delete.
type Store interface {
	// AppendEntry returns ErrDuplicateEntry if the idempotency key exists.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns the entries of key in append order.
	Entries(ctx context.Context, key Key) ([]Entry, error)

	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// LEDGER
// =============================================================================

// Mode selects how Reserve treats a reservation that would breach the floor.
type Mode int

const (
	// Hard rejects with InsufficientBalanceError.
	Hard Mode = iota
	// Soft logs a warning and reserves anyway.
	Soft
)

func (m Mode) String() string {
	if m == Soft {
		return "soft"
	}
	return "hard"
}

// ParseMode accepts "hard" and "soft".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "hard", "":
		return Hard, nil
	case "soft":
		return Soft, nil
	}
	return Hard, &timeoff.ValidationError{Field: "enforcement", Message: fmt.Sprintf("unknown mode %q", s)}
}

type Ledger struct {
	store  Store
	floor  decimal.Decimal
	logger *slog.Logger
	now    func() time.Time
	locks  keylock.Map[Key]
}

type Option func(*Ledger)

// WithFloor sets the lowest available balance a new reservation may leave.
func WithFloor(floor decimal.Decimal) Option { return func(l *Ledger) { l.floor = floor } }

func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		floor:  decimal.Zero,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Floor() decimal.Decimal { return l.floor }

// Balance returns the folded balance of key. A key with no entries yields a
// zero allocation, never a fabricated allowance.
func (l *Ledger) Balance(ctx context.Context, key Key) (timeoff.LeaveBalance, error) {
	entries, err := l.store.Entries(ctx, key)
	if err != nil {
		return timeoff.LeaveBalance{}, fmt.Errorf("load ledger %s: %w", key, err)
	}
	return Fold(key, entries), nil
}

func (l *Ledger) Utilization(ctx context.Context, key Key) (decimal.Decimal, error) {
	b, err := l.Balance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Utilization(), nil
}

func (l *Ledger) History(ctx context.Context, key Key) ([]Entry, error) {
	return l.store.Entries(ctx, key)
}

// Allocate adds days to the allocation of key. Negative days reduce it, but
// never below zero.
func (l *Ledger) Allocate(ctx context.Context, key Key, days decimal.Decimal, ref string) (timeoff.LeaveBalance, error) {
	var out timeoff.LeaveBalance
	err := l.mutate(ctx, key, EntryAllocate, ref, func(b timeoff.LeaveBalance) (*Entry, error) {
		if b.Allocated.Add(days).IsNegative() {
			return nil, &timeoff.ValidationError{Field: "allocated", Message: fmt.Sprintf("allocation for %s cannot go below zero", key)}
		}
		out = b
		out.Allocated = b.Allocated.Add(days)
		return &Entry{Allocated: days}, nil
	})
	if err != nil {
		return timeoff.LeaveBalance{}, err
	}
	if out.EmployeeID == "" {
		// replay: report the current state
		return l.Balance(ctx, key)
	}
	return out, nil
}

// Reserve moves days into pending for a submission. In Hard mode it fails
// when available minus days would drop below the floor; existing
// commitments are never re-checked.
func (l *Ledger) Reserve(ctx context.Context, key Key, days decimal.Decimal, mode Mode, ref string) error {
	if err := requireNonNegative("days", days); err != nil {
		return err
	}
	return l.mutate(ctx, key, EntryReserve, ref, func(b timeoff.LeaveBalance) (*Entry, error) {
		after := b.Available().Sub(days)
		if days.IsPositive() && after.LessThan(l.floor) {
			shortage := &timeoff.InsufficientBalanceError{
				EmployeeID: key.EmployeeID,
				LeaveType:  key.LeaveType,
				Year:       key.Year,
				Available:  b.Available(),
				Requested:  days,
				Floor:      l.floor,
			}
			if mode == Hard {
				return nil, shortage
			}
			l.logger.WarnContext(ctx, "reserving beyond available balance",
				"key", key.String(), "available", b.Available().String(),
				"requested", days.String(), "shortfall", shortage.Shortfall().String(), "ref", ref)
		}
		return &Entry{Pending: days}, nil
	})
}

// Commit converts a held reservation into usage: pending -= held and
// used += charged. held and charged differ only when the holiday calendar
// changed between submission and approval.
func (l *Ledger) Commit(ctx context.Context, key Key, held, charged decimal.Decimal, ref string) error {
	if err := requireNonNegative("held", held); err != nil {
		return err
	}
	if err := requireNonNegative("charged", charged); err != nil {
		return err
	}
	return l.mutate(ctx, key, EntryCommit, ref, func(b timeoff.LeaveBalance) (*Entry, error) {
		return &Entry{Pending: l.pendingDecrement(ctx, key, b, held, ref).Neg(), Used: charged}, nil
	})
}

// Release drops a held reservation from pending without touching used.
func (l *Ledger) Release(ctx context.Context, key Key, held decimal.Decimal, ref string) error {
	if err := requireNonNegative("held", held); err != nil {
		return err
	}
	return l.mutate(ctx, key, EntryRelease, ref, func(b timeoff.LeaveBalance) (*Entry, error) {
		return &Entry{Pending: l.pendingDecrement(ctx, key, b, held, ref).Neg()}, nil
	})
}

// pendingDecrement clamps a decrement so pending never goes below zero.
func (l *Ledger) pendingDecrement(ctx context.Context, key Key, b timeoff.LeaveBalance, held decimal.Decimal, ref string) decimal.Decimal {
	if held.GreaterThan(b.Pending) {
		l.logger.WarnContext(ctx, "release exceeds pending, clamping",
			"key", key.String(), "pending", b.Pending.String(), "held", held.String(), "ref", ref)
		return b.Pending
	}
	return held
}

// mutate runs the read-check-append sequence of one operation under the
// key's lock. build receives the current balance and returns the deltas.
func (l *Ledger) mutate(ctx context.Context, key Key, typ EntryType, ref string, build func(timeoff.LeaveBalance) (*Entry, error)) error {
	if ref == "" {
		return &timeoff.ValidationError{Field: "reference", Message: "ledger mutations require a reference"}
	}
	idem := idempotencyKey(typ, key, ref)

	unlock := l.locks.Lock(key)
	defer unlock()

	exists, err := l.store.EntryExists(ctx, idem)
	if err != nil {
		return fmt.Errorf("check idempotency %s: %w", idem, err)
	}
	if exists {
		l.logger.DebugContext(ctx, "ledger replay ignored", "op", string(typ), "key", key.String(), "ref", ref)
		return nil
	}
	if other, ok := settlementCounterpart(typ); ok {
		settled, err := l.store.EntryExists(ctx, idempotencyKey(other, key, ref))
		if err != nil {
			return fmt.Errorf("check settlement %s: %w", ref, err)
		}
		if settled {
			return fmt.Errorf("%s %s for %s: %w by %s", typ, ref, key, ErrAlreadySettled, other)
		}
	}

	current, err := l.Balance(ctx, key)
	if err != nil {
		return err
	}
	entry, err := build(current)
	if err != nil {
		return err
	}
	entry.ID = uuid.NewString()
	entry.Key = key
	entry.Type = typ
	entry.Reference = ref
	entry.IdempotencyKey = idem
	entry.CreatedAt = l.now().UTC()

	if err := l.store.AppendEntry(ctx, *entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil
		}
		return fmt.Errorf("append %s entry for %s: %w", typ, key, err)
	}
	l.logger.DebugContext(ctx, "ledger entry appended",
		"op", string(typ), "key", key.String(), "ref", ref,
		"allocated", entry.Allocated.String(), "used", entry.Used.String(), "pending", entry.Pending.String())
	return nil
}

// settlementCounterpart pairs commit and release, which are exclusive for
// one reference.
func settlementCounterpart(typ EntryType) (EntryType, bool) {
	switch typ {
	case EntryCommit:
		return EntryRelease, true
	case EntryRelease:
		return EntryCommit, true
	}
	return "", false
}

func idempotencyKey(typ EntryType, key Key, ref string) string {
	return fmt.Sprintf("%s:%s:%s", typ, key, ref)
}

func requireNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &timeoff.ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}
