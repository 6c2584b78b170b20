/*
Package workdays provides working-day and holiday calculations.

PURPOSE:
  Answers two questions for the rest of the system:
  - IsWorkingDay: does a given date count against leave?
  - WorkingDays: how many working days are in a date range?

KEY CONCEPTS IN THIS FILE (date.go):
  - Date: A calendar date with day granularity (no time-of-day, always UTC)
  - Holiday: A company holiday, optionally recurring yearly

DESIGN PRINCIPLES:
  1. Day granularity: leave is booked in whole calendar days; Date never
     carries a time-of-day component.
  2. No ambient state: the Calculator (calculator.go) is constructed and
     injected, never reached through a package-level singleton.

SEE ALSO:
  - calculator.go: Calculator with TTL-cached holiday lookups
*/
package workdays

import (
	"time"
)

// =============================================================================
// DATE - Calendar date, day granularity
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return FromTime(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return FromTime(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.normalize().AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns the number of whole days from `from` to `to`.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// HOLIDAY - Company holiday
// =============================================================================

type Holiday struct {
	ID        string
	Date      Date
	Name      string
	Recurring bool // true = same month/day every year
}

// Matches reports whether the holiday falls on the given date.
func (h Holiday) Matches(d Date) bool {
	if h.Recurring {
		return h.Date.Month() == d.Month() && h.Date.Day() == d.Day()
	}
	return h.Date.Equal(d)
}
