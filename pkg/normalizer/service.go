// Package normalizer turns raw portal records into domain entities.
// It performs no I/O.
package normalizer

import (
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/NotCoffee418/gazpar_bridge/pkg/units"
	log "github.com/sirupsen/logrus"
)

// Portal timestamps come as 2024-01-01T06:00:00+01:00, the zone is ignored.
const portalDateTimeLayout = "2006-01-02T15:04:05"

// Measure builds a normalized measure from a raw record.
func Measure(pceID string, kind types.MeasureKind, raw RawMeasure) (types.Measure, error) {
	m := types.Measure{
		PceID: pceID,
		Kind:  kind,
	}

	var err error
	if m.StartDateTime, err = parseDateTime("dateDebutReleve", raw.StartDateTime); err != nil {
		return m, err
	}
	if m.EndDateTime, err = parseDateTime("dateFinReleve", raw.EndDateTime); err != nil {
		return m, err
	}
	if raw.GasDate != nil {
		gasDate, err := types.ParseDate(*raw.GasDate)
		if err != nil {
			return m, &FieldError{Field: "journeeGaziere", Value: *raw.GasDate, Err: err}
		}
		m.GasDate = &gasDate
	} else if m.StartDateTime != nil {
		m.GasDate = types.Ptr(types.DateOf(*m.StartDateTime))
	}

	m.StartIndex = truncate(raw.StartIndex)
	m.EndIndex = truncate(raw.EndIndex)
	m.Energy = truncate(raw.Energy)
	m.Temperature = raw.Temperature
	m.ConversionFactor = raw.ConversionFactor

	if raw.VolumeGross != nil {
		m.VolumeGross = raw.VolumeGross
		m.Volume = truncate(raw.VolumeGross)
	} else {
		m.Volume = truncate(raw.VolumeConverted)
	}
	if m.VolumeGross != nil && m.ConversionFactor != nil {
		m.EnergyGross = types.Ptr(units.GrossVolumeToEnergy(*m.VolumeGross, *m.ConversionFactor))
	}

	reconcile(&m)
	return m, nil
}

// reconcile makes the index delta authoritative over the reported volume.
func reconcile(m *types.Measure) {
	if !m.IsValid() || m.Volume == nil {
		return
	}
	delta := *m.EndIndex - *m.StartIndex
	if delta == *m.Volume {
		return
	}

	log.WithFields(log.Fields{
		"pce":      m.PceID,
		"kind":     m.Kind,
		"date":     types.FormatDate(*m.GasDate),
		"reported": *m.Volume,
		"delta":    delta,
	}).Debug("Volume replaced by index delta")

	m.VolumeInitial = m.Volume
	m.Volume = types.Ptr(delta)
	m.IsDeltaIndex = true
	if m.ConversionFactor != nil {
		m.Energy = types.Ptr(units.VolumeToEnergy(delta, *m.ConversionFactor))
	}
}

// Threshold builds a monthly threshold dated on the first of its month.
func Threshold(pceID string, raw RawThreshold) types.Threshold {
	t := types.Threshold{
		PceID:  pceID,
		Year:   raw.Year,
		Month:  raw.Month,
		Energy: truncate(raw.Energy),
	}
	if t.Year != nil && t.Month != nil && *t.Month >= 1 && *t.Month <= 12 {
		t.Date = types.Ptr(types.Date(*t.Year, time.Month(*t.Month), 1))
	}
	return t
}

func MeterPoint(raw RawMeterPoint) (types.MeterPoint, error) {
	p := types.MeterPoint{
		ID:         deref(raw.ID),
		Alias:      deref(raw.Alias),
		Frequency:  deref(raw.Frequency),
		State:      deref(raw.State),
		OwnerName:  deref(raw.OwnerName),
		PostalCode: deref(raw.PostalCode),
	}
	if p.ID == "" {
		return p, &MissingFieldError{Record: "pce", Field: "pce"}
	}
	activation, err := parseDateTime("dateActivation", raw.ActivationDate)
	if err != nil {
		return p, err
	}
	p.ActivationDate = activation
	return p, nil
}

func parseDateTime(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	s := *value
	if len(s) > len(portalDateTimeLayout) {
		s = s[:len(portalDateTimeLayout)]
	}
	t, err := time.ParseInLocation(portalDateTimeLayout, s, time.UTC)
	if err != nil {
		return nil, &FieldError{Field: field, Value: *value, Err: err}
	}
	return &t, nil
}

func truncate(v *float64) *int64 {
	if v == nil {
		return nil
	}
	return types.Ptr(int64(*v))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
