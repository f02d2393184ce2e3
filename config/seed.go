package config

import (
	"context"
	"fmt"

	"github.com/warp/leave-workflow/balance"
	"github.com/warp/leave-workflow/timeoff"
)

// SeedTarget is the store side of seeding. Both store/memory and
// store/sqlite satisfy it.
type SeedTarget interface {
	SaveEmployee(ctx context.Context, e timeoff.Employee) error
	SaveHoliday(ctx context.Context, h timeoff.Holiday) error
}

// Apply writes the seed into target and ledger. Employees and holidays are
// upserted; each allocation is recorded once per (employee, type, year), so
// restarting with the same file changes nothing.
func (s Seed) Apply(ctx context.Context, target SeedTarget, ledger *balance.Ledger) error {
	for _, e := range s.Employees {
		if err := target.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}
	for _, h := range s.Holidays {
		if err := target.SaveHoliday(ctx, h); err != nil {
			return fmt.Errorf("seed holiday %s: %w", h.ID, err)
		}
	}
	for _, a := range s.Allocations {
		key := balance.Key{EmployeeID: a.EmployeeID, LeaveType: a.LeaveType, Year: a.Year}
		if _, err := ledger.Allocate(ctx, key, a.Days, "seed"); err != nil {
			return fmt.Errorf("seed allocation %s: %w", key, err)
		}
	}
	return nil
}
