/*
Package calendar resolves working days and chargeable day counts.

PURPOSE:
  Pure functions over an immutable holiday snapshot. Nothing here performs
  I/O or keeps state between calls, so the workflow engine can call it while
  holding locks.

WORKING DAY RULE:
  A date is a working day unless it is a Sunday or matches a holiday.
  Recurring holidays match on month and day in any year; fixed holidays
  match on the full date.

CHARGEABLE DAYS:
  countChargeable(start, end, duration) = businessDays(start..end) x multiplier
    full-day     x 1
    half-day-*   x 0.5
    quarter-day-* x 0.25
  The multiplier scales the whole range, including multi-day ranges.

SEE ALSO:
  - timeoff/types.go: Holiday, DurationType
  - workflow/engine.go: Recomputes counts on submit and on every decision
*/
package calendar

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-workflow/timeoff"
)

// MaxWalk bounds NextWorkingDay and PreviousWorkingDay.
const MaxWalk = 366

// =============================================================================
// CALENDAR - Indexed holiday snapshot
// =============================================================================

// Calendar indexes a holiday snapshot for O(1) lookups. Build one per
// snapshot with New; the zero value has no holidays.
type Calendar struct {
	holidays  []timeoff.Holiday
	fixed     map[timeoff.Date]struct{}
	recurring map[timeoff.MonthDay]struct{}
}

func New(holidays []timeoff.Holiday) *Calendar {
	c := &Calendar{
		holidays:  append([]timeoff.Holiday(nil), holidays...),
		fixed:     make(map[timeoff.Date]struct{}, len(holidays)),
		recurring: make(map[timeoff.MonthDay]struct{}),
	}
	for _, h := range holidays {
		if h.Recurring {
			c.recurring[h.Date.MonthDay()] = struct{}{}
			continue
		}
		c.fixed[h.Date] = struct{}{}
	}
	return c
}

// IsHoliday reports whether date matches a holiday after expanding recurring
// holidays to date's year.
func (c *Calendar) IsHoliday(date timeoff.Date) bool {
	if c == nil {
		return false
	}
	if _, ok := c.fixed[date]; ok {
		return true
	}
	_, ok := c.recurring[date.MonthDay()]
	return ok
}

func (c *Calendar) IsWorkingDay(date timeoff.Date) bool {
	if date.Weekday() == time.Sunday {
		return false
	}
	return !c.IsHoliday(date)
}

// BusinessDays counts working days in [start, end] inclusive.
func (c *Calendar) BusinessDays(start, end timeoff.Date) (int, error) {
	if start.After(end) {
		return 0, &timeoff.RangeError{Start: start, End: end}
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDays(1) {
		if c.IsWorkingDay(d) {
			n++
		}
	}
	return n, nil
}

func (c *Calendar) CountChargeableDays(start, end timeoff.Date, duration timeoff.DurationType) (decimal.Decimal, error) {
	mult, ok := duration.Multiplier()
	if !ok {
		return decimal.Zero, &timeoff.ValidationError{Field: "durationType", Message: "unknown duration type " + string(duration)}
	}
	n, err := c.BusinessDays(start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(n)).Mul(mult), nil
}

func (c *Calendar) NextWorkingDay(date timeoff.Date) (timeoff.Date, error) {
	return c.walk(date, 1, "next")
}

func (c *Calendar) PreviousWorkingDay(date timeoff.Date) (timeoff.Date, error) {
	return c.walk(date, -1, "previous")
}

// walk steps one calendar day at a time, excluding the starting date.
func (c *Calendar) walk(from timeoff.Date, step int, direction string) (timeoff.Date, error) {
	d := from
	for i := 0; i < MaxWalk; i++ {
		d = d.AddDays(step)
		if c.IsWorkingDay(d) {
			return d, nil
		}
	}
	return timeoff.Date{}, &timeoff.NoWorkingDayError{From: from, Direction: direction, Steps: MaxWalk}
}

// Holidays returns the snapshot with recurring holidays placed in year.
// Fixed holidays from other years are omitted.
func (c *Calendar) Holidays(year int) []timeoff.Holiday {
	if c == nil {
		return nil
	}
	var out []timeoff.Holiday
	for _, h := range c.holidays {
		switch {
		case h.Recurring:
			md := h.Date.MonthDay()
			if h.Date = md.In(year); h.Date.MonthDay() != md {
				// Feb 29 outside leap years
				continue
			}
		case h.Date.Year() != year:
			continue
		}
		out = append(out, h)
	}
	return out
}

// =============================================================================
// PACKAGE FUNCTIONS - One-shot calls over a holiday slice
// =============================================================================

func IsWorkingDay(date timeoff.Date, holidays []timeoff.Holiday) bool {
	return New(holidays).IsWorkingDay(date)
}

func CountChargeableDays(start, end timeoff.Date, duration timeoff.DurationType, holidays []timeoff.Holiday) (decimal.Decimal, error) {
	return New(holidays).CountChargeableDays(start, end, duration)
}

func NextWorkingDay(date timeoff.Date, holidays []timeoff.Holiday) (timeoff.Date, error) {
	return New(holidays).NextWorkingDay(date)
}

func PreviousWorkingDay(date timeoff.Date, holidays []timeoff.Holiday) (timeoff.Date, error) {
	return New(holidays).PreviousWorkingDay(date)
}

// =============================================================================
// HOLIDAY SOURCE - Read-only snapshot supplier
// =============================================================================

// HolidaySource supplies the holiday snapshot used for one call.
type HolidaySource interface {
	Holidays(ctx context.Context) ([]timeoff.Holiday, error)
}

// HolidayStore is a HolidaySource that can be edited by the holiday
// management surface.
type HolidayStore interface {
	HolidaySource
	SaveHoliday(ctx context.Context, h timeoff.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

// Static is a fixed in-process holiday set.
type Static []timeoff.Holiday

func (s Static) Holidays(context.Context) ([]timeoff.Holiday, error) {
	return append([]timeoff.Holiday(nil), s...), nil
}
