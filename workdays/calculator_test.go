package workdays_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/workdays"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeSource counts loads and can be made to fail, to exercise the cache.
type fakeSource struct {
	calls    int
	holidays []workdays.Holiday
	err      error
}

func (f *fakeSource) ListHolidays(_ context.Context) ([]workdays.Holiday, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.holidays, nil
}

func holiday(y int, m time.Month, d int, recurring bool) workdays.Holiday {
	return workdays.Holiday{ID: "hol", Date: workdays.NewDate(y, m, d), Name: "Holiday", Recurring: recurring}
}

// =============================================================================
// DATE TESTS
// =============================================================================

func TestDate_ParseAndFormat(t *testing.T) {
	d, err := workdays.ParseDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, workdays.NewDate(2026, time.March, 2), d)
	assert.Equal(t, "2026-03-02", d.String())

	_, err = workdays.ParseDate("02/03/2026")
	assert.Error(t, err)
}

func TestDate_Arithmetic(t *testing.T) {
	// Month boundary crossing.
	d := workdays.NewDate(2026, time.February, 27)
	assert.Equal(t, workdays.NewDate(2026, time.March, 1), d.AddDays(2))

	assert.Equal(t, 2, workdays.DaysBetween(d, workdays.NewDate(2026, time.March, 1)))
	assert.Equal(t, 0, workdays.DaysBetween(d, d))
}

func TestDate_Weekend(t *testing.T) {
	assert.False(t, workdays.NewDate(2026, time.March, 2).IsWeekend()) // Monday
	assert.True(t, workdays.NewDate(2026, time.March, 7).IsWeekend())  // Saturday
	assert.True(t, workdays.NewDate(2026, time.March, 8).IsWeekend())  // Sunday
}

// =============================================================================
// WORKING DAYS
// =============================================================================

func TestWorkingDays_SkipsWeekends(t *testing.T) {
	// GIVEN: A full calendar week, Mon Mar 2 through Sun Mar 8
	// WHEN: Counting working days
	// THEN: 5; Saturday and Sunday never count

	calc := workdays.NewCalculator(&fakeSource{}, time.Hour)

	n, err := calc.WorkingDays(context.Background(), workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 8))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWorkingDays_SkipsHolidays(t *testing.T) {
	// GIVEN: A holiday on Wednesday Mar 4
	// WHEN: Counting Mon-Fri
	// THEN: 4

	src := &fakeSource{holidays: []workdays.Holiday{holiday(2026, time.March, 4, false)}}
	calc := workdays.NewCalculator(src, time.Hour)

	n, err := calc.WorkingDays(context.Background(), workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 6))

	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWorkingDays_EndBeforeStart_Zero(t *testing.T) {
	calc := workdays.NewCalculator(&fakeSource{}, time.Hour)

	n, err := calc.WorkingDays(context.Background(), workdays.NewDate(2026, 3, 4), workdays.NewDate(2026, 3, 2))

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecurringHoliday_MatchesEveryYear(t *testing.T) {
	// GIVEN: New Year's Day recorded for 2020, marked recurring
	// WHEN: Checking Jan 1 2026 (a Thursday)
	// THEN: Not a working day

	src := &fakeSource{holidays: []workdays.Holiday{holiday(2020, time.January, 1, true)}}
	calc := workdays.NewCalculator(src, time.Hour)

	working, err := calc.IsWorkingDay(context.Background(), workdays.NewDate(2026, time.January, 1))
	require.NoError(t, err)
	assert.False(t, working)

	// A non-recurring holiday only blocks its own year.
	src.holidays = []workdays.Holiday{holiday(2020, time.January, 1, false)}
	calc.Invalidate()
	working, err = calc.IsWorkingDay(context.Background(), workdays.NewDate(2026, time.January, 1))
	require.NoError(t, err)
	assert.True(t, working)
}

// =============================================================================
// HOLIDAY CACHE
// =============================================================================

func TestHolidayCache_LoadsOncePerTTL(t *testing.T) {
	// GIVEN: A one-hour TTL and a controllable clock
	// WHEN: Asking twice within the TTL, then again after it expires
	// THEN: The source is hit once, then once more

	src := &fakeSource{}
	calc := workdays.NewCalculator(src, time.Hour)
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	calc.Now = func() time.Time { return now }

	monday := workdays.NewDate(2026, 3, 2)
	_, err := calc.IsWorkingDay(context.Background(), monday)
	require.NoError(t, err)
	_, err = calc.IsWorkingDay(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Hour)
	_, err = calc.IsWorkingDay(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestHolidayCache_InvalidateForcesReload(t *testing.T) {
	src := &fakeSource{}
	calc := workdays.NewCalculator(src, time.Hour)

	monday := workdays.NewDate(2026, 3, 2)
	_, err := calc.IsWorkingDay(context.Background(), monday)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	calc.Invalidate()
	_, err = calc.IsWorkingDay(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestHolidayCache_FallsBackToStaleListOnError(t *testing.T) {
	// GIVEN: A loaded holiday list and a source that starts failing
	// WHEN: The TTL expires and the refresh fails
	// THEN: The stale list keeps serving; holiday data ages gracefully

	src := &fakeSource{holidays: []workdays.Holiday{holiday(2026, time.March, 4, false)}}
	calc := workdays.NewCalculator(src, time.Hour)
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	calc.Now = func() time.Time { return now }

	working, err := calc.IsWorkingDay(context.Background(), workdays.NewDate(2026, 3, 4))
	require.NoError(t, err)
	require.False(t, working)

	src.err = errors.New("database gone")
	now = now.Add(2 * time.Hour)

	working, err = calc.IsWorkingDay(context.Background(), workdays.NewDate(2026, 3, 4))
	require.NoError(t, err)
	assert.False(t, working, "stale holiday list should still apply")
}

func TestHolidayCache_FirstLoadErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("database gone")}
	calc := workdays.NewCalculator(src, time.Hour)

	_, err := calc.IsWorkingDay(context.Background(), workdays.NewDate(2026, 3, 2))

	assert.Error(t, err)
}
