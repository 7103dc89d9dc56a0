// Package calendar resolves named windows to concrete date ranges.
// Month and year shifts follow time.AddDate normalisation and are applied
// one at a time, so 2024-03-31 minus one month is 2024-03-02.
package calendar

import (
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
)

// Windows returns the date range of every named window for the given day.
func Windows(today time.Time, weekStart time.Weekday) map[Window]DateRange {
	t := types.DateOf(today)
	year := yearStart(t)
	month := monthStart(t)
	week := WeekStart(t, weekStart)

	windows := map[Window]DateRange{
		Y0: {days(year, -1), t},
		Y1: {days(years(year, -1), -1), days(year, -1)},
		Y2: {days(years(year, -2), -1), days(years(year, -1), -1)},

		M0:   {days(month, -1), t},
		M1:   {days(months(month, -1), -1), days(month, -1)},
		M0Y1: {days(years(month, -1), -1), days(months(month, -11), -1)},

		W0:   {days(week, -1), t},
		W1:   {days(week, -8), days(week, -1)},
		W0Y1: {days(years(week, -1), -1), days(years(week, -1), 7)},

		R1Y:   {years(t, -1), days(t, -1)},
		R2Y1Y: {years(t, -2), days(years(t, -1), -1)},
		R1M:   {months(t, -1), days(t, -1)},
		R2M1M: {months(t, -2), days(months(t, -1), -1)},
		R1MY1: {years(months(t, -1), -1), days(years(t, -1), -1)},
		R1MY2: {years(months(t, -1), -2), days(years(t, -2), -1)},
		R1W:   {days(t, -7), days(t, -1)},
		R2W1W: {days(t, -14), days(days(t, -7), -1)},
		R1WY1: {years(days(t, -7), -1), days(years(t, -1), -1)},
		R1WY2: {years(days(t, -7), -2), days(years(t, -2), -1)},

		M0Conversion: {month, t},
		M1Conversion: {months(month, -1), days(month, -1)},
	}
	for n := 1; n <= 7; n++ {
		windows[DayWindow(n)] = DateRange{days(t, -(n + 1)), days(t, -n)}
	}
	return windows
}

// DayOf returns the single day the n-th day window reports on.
func DayOf(today time.Time, n int) time.Time {
	return days(types.DateOf(today), -n)
}

// ThresholdMonths returns the first day of the current and previous months,
// the dates thresholds are stored under.
func ThresholdMonths(today time.Time) (current, previous time.Time) {
	current = monthStart(types.DateOf(today))
	return current, months(current, -1)
}

// WeekStart returns the most recent day falling on first, today included.
func WeekStart(today time.Time, first time.Weekday) time.Time {
	t := types.DateOf(today)
	offset := (int(t.Weekday()) - int(first) + 7) % 7
	return days(t, -offset)
}

// yearStart returns January 1st of the year of t
func yearStart(t time.Time) time.Time {
	return types.Date(t.Year(), time.January, 1)
}

// monthStart returns the first day of the month of t
func monthStart(t time.Time) time.Time {
	return types.Date(t.Year(), t.Month(), 1)
}

func days(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func months(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}

func years(t time.Time, n int) time.Time {
	return t.AddDate(n, 0, 0)
}
