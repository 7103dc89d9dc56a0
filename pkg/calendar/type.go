package calendar

import (
	"fmt"
	"time"
)

// Window names a calendar-relative date range, relative to the run day T.
type Window string

const (
	Y0   Window = "Y0"   // this year
	Y1   Window = "Y1"   // last year
	Y2   Window = "Y2"   // two years ago
	M0   Window = "M0"   // this month
	M1   Window = "M1"   // last month
	M0Y1 Window = "M0Y1" // this month, last year
	W0   Window = "W0"   // this week
	W1   Window = "W1"   // last week
	W0Y1 Window = "W0Y1" // this week, last year
	D1   Window = "D1"
	D2   Window = "D2"
	D3   Window = "D3"
	D4   Window = "D4"
	D5   Window = "D5"
	D6   Window = "D6"
	D7   Window = "D7"

	R1Y   Window = "R1Y"
	R2Y1Y Window = "R2Y1Y"
	R1M   Window = "R1M"
	R2M1M Window = "R2M1M"
	R1MY1 Window = "R1MY1"
	R1MY2 Window = "R1MY2"
	R1W   Window = "R1W"
	R2W1W Window = "R2W1W"
	R1WY1 Window = "R1WY1"
	R1WY2 Window = "R1WY2"

	// Ranges the conversion factor of the threshold comparison is taken over.
	M0Conversion Window = "M0_CONVERSION"
	M1Conversion Window = "M1_CONVERSION"
)

// ConsumptionWindows lists every window a delta consumption is computed for.
var ConsumptionWindows = []Window{
	Y0, Y1, Y2, M0, M1, M0Y1, W0, W1, W0Y1,
	D1, D2, D3, D4, D5, D6, D7,
	R1Y, R2Y1Y, R1M, R2M1M, R1MY1, R1MY2, R1W, R2W1W, R1WY1, R1WY2,
}

var DayWindows = []Window{D1, D2, D3, D4, D5, D6, D7}

// DayWindow returns the window of the n-th day before T, 1 <= n <= 7.
func DayWindow(n int) Window {
	return Window(fmt.Sprintf("D%d", n))
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(day time.Time) bool {
	return !day.Before(r.Start) && !day.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}
