package meterdb

import "time"

// SeriesStats summarizes the stored measures of one kind.
type SeriesStats struct {
	Rows      int
	Pces      int
	FirstDate *time.Time
	LastDate  *time.Time
}

const measureColumns = "pce, type, date, period_start, period_end, start_index, end_index, " +
	"volume, volume_gross, energy, energy_gross, temperature, conversion, price, is_delta_index"

const datetimeLayout = "2006-01-02 15:04:05"
