// Package aggregator computes consumption figures over calendar windows from
// the stored measure series.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/calendar"
	"github.com/NotCoffee418/gazpar_bridge/pkg/threshold"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	log "github.com/sirupsen/logrus"
)

// Series is the read side of the measure store.
type Series interface {
	threshold.Source
	MeasuresBetween(ctx context.Context, pce string, kind types.MeasureKind, from, to time.Time) ([]types.Measure, error)
	MeasureOn(ctx context.Context, pce string, kind types.MeasureKind, date time.Time) (*types.Measure, error)
}

type Aggregator struct {
	series    Series
	weekStart time.Weekday
	warnPct   int
}

func New(series Series, weekStart time.Weekday, warnPct int) *Aggregator {
	return &Aggregator{
		series:    series,
		weekStart: weekStart,
		warnPct:   warnPct,
	}
}

// DeltaConsumption returns max(endIndex) - min(endIndex) over the valid
// measures within r. Fewer than two measures or a negative delta give 0.
func (a *Aggregator) DeltaConsumption(ctx context.Context, pce string, kind types.MeasureKind, r calendar.DateRange) (int64, error) {
	measures, err := a.validBetween(ctx, pce, kind, r)
	if err != nil {
		return 0, err
	}
	if len(measures) < 2 {
		log.WithFields(log.Fields{"pce": pce, "kind": kind, "range": r.String()}).
			Debug("Not enough measures for a delta")
		return 0, nil
	}

	lowest, highest := *measures[0].EndIndex, *measures[0].EndIndex
	for _, m := range measures[1:] {
		lowest = min(lowest, *m.EndIndex)
		highest = max(highest, *m.EndIndex)
	}

	delta := highest - lowest
	if delta < 0 {
		log.WithFields(log.Fields{"pce": pce, "kind": kind, "range": r.String(), "delta": delta}).
			Warn("Delta consumption is negative, ignored")
		return 0, nil
	}
	return delta, nil
}

// GrossConsumption returns the gross volume measured on date, 0 when absent.
func (a *Aggregator) GrossConsumption(ctx context.Context, pce string, kind types.MeasureKind, date time.Time) (float64, error) {
	m, err := a.series.MeasureOn(ctx, pce, kind, date)
	if err != nil {
		return 0, err
	}
	if m == nil || !m.IsValid() || m.VolumeGross == nil {
		return 0, nil
	}
	return *m.VolumeGross, nil
}

// ConversionFactor returns the highest conversion factor within r, nil when
// no valid measure carries one.
func (a *Aggregator) ConversionFactor(ctx context.Context, pce string, kind types.MeasureKind, r calendar.DateRange) (*float64, error) {
	measures, err := a.validBetween(ctx, pce, kind, r)
	if err != nil {
		return nil, err
	}
	var factor *float64
	for _, m := range measures {
		if m.ConversionFactor == nil || *m.ConversionFactor < 0 {
			continue
		}
		if factor == nil || *m.ConversionFactor > *factor {
			factor = types.Ptr(*m.ConversionFactor)
		}
	}
	return factor, nil
}

// Snapshot resolves every window against now and computes all figures once.
func (a *Aggregator) Snapshot(ctx context.Context, pce string, kind types.MeasureKind, now time.Time) (*AggregateSnapshot, error) {
	today := types.DateOf(now)
	ranges := calendar.Windows(today, a.weekStart)

	figures := Figures{
		Ranges:      ranges,
		Consumption: make(map[calendar.Window]int64, len(calendar.ConsumptionWindows)),
		Gross:       make(map[calendar.Window]float64, len(calendar.DayWindows)),
	}

	for _, w := range calendar.ConsumptionWindows {
		value, err := a.DeltaConsumption(ctx, pce, kind, ranges[w])
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		figures.Consumption[w] = value
	}

	for n, w := range calendar.DayWindows {
		value, err := a.GrossConsumption(ctx, pce, kind, calendar.DayOf(today, n+1))
		if err != nil {
			return nil, fmt.Errorf("gross %s: %w", w, err)
		}
		figures.Gross[w] = value
	}

	currentMonth, previousMonth := calendar.ThresholdMonths(today)
	var err error
	figures.ThisMonth, err = a.compareMonth(ctx, pce, kind, currentMonth,
		figures.Consumption[calendar.M0], ranges[calendar.M0Conversion])
	if err != nil {
		return nil, err
	}
	figures.LastMonth, err = a.compareMonth(ctx, pce, kind, previousMonth,
		figures.Consumption[calendar.M1], ranges[calendar.M1Conversion])
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"pce":  pce,
		"kind": kind,
		"Y0":   figures.Consumption[calendar.Y0],
		"M0":   figures.Consumption[calendar.M0],
		"D1":   figures.Consumption[calendar.D1],
	}).Debug("Snapshot computed")
	return NewSnapshot(pce, kind, today, figures), nil
}

func (a *Aggregator) compareMonth(ctx context.Context, pce string, kind types.MeasureKind, monthStart time.Time, consumed int64, conversion calendar.DateRange) (threshold.Comparison, error) {
	energy, err := threshold.Lookup(ctx, a.series, pce, monthStart)
	if err != nil {
		return threshold.Comparison{}, fmt.Errorf("threshold %s: %w", types.FormatDate(monthStart), err)
	}
	factor, err := a.ConversionFactor(ctx, pce, kind, conversion)
	if err != nil {
		return threshold.Comparison{}, fmt.Errorf("conversion %s: %w", conversion, err)
	}
	return threshold.Compare(consumed, factor, energy, a.warnPct), nil
}

func (a *Aggregator) validBetween(ctx context.Context, pce string, kind types.MeasureKind, r calendar.DateRange) ([]types.Measure, error) {
	measures, err := a.series.MeasuresBetween(ctx, pce, kind, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	valid := make([]types.Measure, 0, len(measures))
	for _, m := range measures {
		if m.IsValid() {
			valid = append(valid, m)
		}
	}
	return valid, nil
}
