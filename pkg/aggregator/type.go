package aggregator

import (
	"maps"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/calendar"
	"github.com/NotCoffee418/gazpar_bridge/pkg/threshold"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
)

// AggregateSnapshot holds every figure computed for one pce and kind at a
// given moment. It is read-only once built.
type AggregateSnapshot struct {
	pceID       string
	kind        types.MeasureKind
	asOf        time.Time
	ranges      map[calendar.Window]calendar.DateRange
	consumption map[calendar.Window]int64
	gross       map[calendar.Window]float64
	thisMonth   threshold.Comparison
	lastMonth   threshold.Comparison
}

// Figures are the raw values a snapshot is built from.
type Figures struct {
	Ranges      map[calendar.Window]calendar.DateRange
	Consumption map[calendar.Window]int64
	Gross       map[calendar.Window]float64
	ThisMonth   threshold.Comparison
	LastMonth   threshold.Comparison
}

// NewSnapshot copies f into a new snapshot.
func NewSnapshot(pce string, kind types.MeasureKind, asOf time.Time, f Figures) *AggregateSnapshot {
	return &AggregateSnapshot{
		pceID:       pce,
		kind:        kind,
		asOf:        asOf,
		ranges:      maps.Clone(f.Ranges),
		consumption: maps.Clone(f.Consumption),
		gross:       maps.Clone(f.Gross),
		thisMonth:   f.ThisMonth,
		lastMonth:   f.LastMonth,
	}
}

func (s *AggregateSnapshot) PceID() string {
	return s.pceID
}

func (s *AggregateSnapshot) Kind() types.MeasureKind {
	return s.kind
}

// AsOf is the day every window was resolved against.
func (s *AggregateSnapshot) AsOf() time.Time {
	return s.asOf
}

// Consumption returns the delta consumption in m³ of a window, 0 if unknown.
func (s *AggregateSnapshot) Consumption(w calendar.Window) int64 {
	return s.consumption[w]
}

// Gross returns the gross volume of a day window (D1..D7).
func (s *AggregateSnapshot) Gross(w calendar.Window) float64 {
	return s.gross[w]
}

func (s *AggregateSnapshot) Range(w calendar.Window) (calendar.DateRange, bool) {
	r, ok := s.ranges[w]
	return r, ok
}

func (s *AggregateSnapshot) ThisMonth() threshold.Comparison {
	return s.thisMonth
}

func (s *AggregateSnapshot) LastMonth() threshold.Comparison {
	return s.lastMonth
}
