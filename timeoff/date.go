package timeoff

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - Calendar date at day granularity
// =============================================================================

// Date is a calendar day. The wrapped time is always UTC midnight so two
// Dates for the same day compare equal with == and can be used as map keys.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals; it panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time.AddDate(0, 0, n)) }

// Properties
func (d Date) Year() int               { return d.Time.Year() }
func (d Date) Month() time.Month       { return d.Time.Month() }
func (d Date) Day() int                { return d.Time.Day() }
func (d Date) Weekday() time.Weekday   { return d.Time.Weekday() }
func (d Date) IsZero() bool            { return d.Time.IsZero() }
func (d Date) MonthDay() MonthDay      { return MonthDay{Month: d.Month(), Day: d.Day()} }
func (d Date) String() string          { return d.Time.Format(DateLayout) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthDay is the year-less part of a date, the match key of recurring holidays.
type MonthDay struct {
	Month time.Month
	Day   int
}

// In places the month-day in the given year. Feb 29 in a non-leap year
// normalizes to Mar 1, as time.Date does.
func (md MonthDay) In(year int) Date { return NewDate(year, md.Month, md.Day) }

// DaysInRange returns the number of calendar days in [start, end], or 0 when
// end is before start.
func DaysInRange(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Time.Sub(start.Time).Hours()/24) + 1
}
