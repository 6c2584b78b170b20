/*
calculator.go - Working-day calculator with TTL-cached holiday lookups

PURPOSE:
  Computes working days (weekends and company holidays excluded) for
  leave-duration math. Holidays are loaded from a HolidaySource and cached
  with an explicit TTL so repeated range calculations don't hammer the store.

CACHING:
  The holiday list is re-read from the source once the TTL expires (default
  1 hour). The cache is advisory only - staleness within the TTL window is
  acceptable for holiday data, which changes at most a few times a year.

USAGE:
  calc := workdays.NewCalculator(store, time.Hour)
  n, err := calc.WorkingDays(ctx, start, end)

SEE ALSO:
  - date.go: Date and Holiday types
*/
package workdays

import (
	"context"
	"sync"
	"time"
)

// HolidaySource provides the holiday list, typically backed by the database.
type HolidaySource interface {
	ListHolidays(ctx context.Context) ([]Holiday, error)
}

// DefaultCacheTTL is used when NewCalculator is given a non-positive TTL.
const DefaultCacheTTL = time.Hour

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator answers working-day questions. Safe for concurrent use.
type Calculator struct {
	source   HolidaySource
	cacheTTL time.Duration

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	holidays []Holiday
	loadedAt time.Time
}

func NewCalculator(source HolidaySource, cacheTTL time.Duration) *Calculator {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Calculator{source: source, cacheTTL: cacheTTL}
}

func (c *Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// loadHolidays returns the holiday list, refreshing from the source when the
// cache has expired. A failed refresh falls back to the previous list.
func (c *Calculator) loadHolidays(ctx context.Context) ([]Holiday, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loadedAt.IsZero() || c.now().Sub(c.loadedAt) >= c.cacheTTL {
		holidays, err := c.source.ListHolidays(ctx)
		if err != nil {
			if c.loadedAt.IsZero() {
				return nil, err
			}
			return c.holidays, nil
		}
		c.holidays = holidays
		c.loadedAt = c.now()
	}
	return c.holidays, nil
}

// Invalidate drops the cached holiday list. Called after admin holiday edits.
func (c *Calculator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
	c.holidays = nil
}

// IsWorkingDay reports whether d is a working day (not a weekend or holiday).
func (c *Calculator) IsWorkingDay(ctx context.Context, d Date) (bool, error) {
	if d.IsWeekend() {
		return false, nil
	}
	holidays, err := c.loadHolidays(ctx)
	if err != nil {
		return false, err
	}
	for _, h := range holidays {
		if h.Matches(d) {
			return false, nil
		}
	}
	return true, nil
}

// WorkingDays counts working days in [start, end], inclusive on both ends.
// Returns 0 when end is before start.
func (c *Calculator) WorkingDays(ctx context.Context, start, end Date) (int, error) {
	if end.Before(start) {
		return 0, nil
	}
	count := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		working, err := c.IsWorkingDay(ctx, d)
		if err != nil {
			return 0, err
		}
		if working {
			count++
		}
	}
	return count, nil
}
