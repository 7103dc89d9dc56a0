package types

import "time"

type MeasureKind string

const (
	// Frequent, provisional daily readings.
	Informative MeasureKind = "informative"
	// Settled readings covering several days.
	Published MeasureKind = "published"
)

func (k MeasureKind) IsKnown() bool {
	return k == Informative || k == Published
}

// Measure is one normalized metering record of a meter point.
// Nil pointers mean the portal did not provide the value.
type Measure struct {
	PceID            string      `db:"pce"`
	Kind             MeasureKind `db:"type"`
	StartDateTime    *time.Time  `db:"period_start"`
	EndDateTime      *time.Time  `db:"period_end"`
	GasDate          *time.Time  `db:"date"`
	StartIndex       *int64      `db:"start_index"`
	EndIndex         *int64      `db:"end_index"`
	Volume           *int64      `db:"volume"`
	VolumeGross      *float64    `db:"volume_gross"`
	Energy           *int64      `db:"energy"`
	EnergyGross      *float64    `db:"energy_gross"`
	Temperature      *float64    `db:"temperature"`
	ConversionFactor *float64    `db:"conversion"`
	Price            *float64    `db:"price"`
	IsDeltaIndex     bool        `db:"is_delta_index"`

	// Volume as reported by the portal before reconciliation. Not persisted.
	VolumeInitial *int64 `db:"-"`
}

// IsValid reports whether the measure carries every field needed for
// aggregation and storage.
func (m Measure) IsValid() bool {
	if m.Volume == nil && m.VolumeGross == nil {
		return false
	}
	return m.Energy != nil &&
		m.StartIndex != nil &&
		m.EndIndex != nil &&
		m.GasDate != nil
}

// Threshold is a monthly energy ceiling configured on the portal.
type Threshold struct {
	PceID  string     `db:"pce"`
	Year   *int       `db:"-"`
	Month  *int       `db:"-"`
	Date   *time.Time `db:"date"`
	Energy *int64     `db:"energy"`
}

func (t Threshold) IsValid() bool {
	return t.Date != nil && t.Energy != nil
}
