package meterdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	log "github.com/sirupsen/logrus"
)

func (s *Store) UpsertMeterPoint(ctx context.Context, p types.MeterPoint) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO pces "+
			"(pce, alias, activation_date, frequency, state, owner_name, postal_code) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.ID,
		p.Alias,
		nullDateTime(p.ActivationDate),
		p.Frequency,
		p.State,
		p.OwnerName,
		p.PostalCode,
	)
	if err != nil {
		return fmt.Errorf("upsert pce %s: %w", p.ID, err)
	}
	return nil
}

// UpsertMeasures writes valid measures in one transaction and returns how
// many were stored. Invalid measures and unknown kinds are skipped.
func (s *Store) UpsertMeasures(ctx context.Context, measures []types.Measure) (int, error) {
	stored := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO measures ("+measureColumns+") "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range measures {
			if !m.IsValid() || !m.Kind.IsKnown() {
				continue
			}
			_, err := stmt.ExecContext(ctx,
				m.PceID,
				string(m.Kind),
				types.FormatDate(*m.GasDate),
				nullDateTime(m.StartDateTime),
				nullDateTime(m.EndDateTime),
				*m.StartIndex,
				*m.EndIndex,
				nullInt(m.Volume),
				nullFloat(m.VolumeGross),
				*m.Energy,
				nullFloat(m.EnergyGross),
				nullFloat(m.Temperature),
				nullFloat(m.ConversionFactor),
				nullFloat(m.Price),
				m.IsDeltaIndex,
			)
			if err != nil {
				return fmt.Errorf("upsert measure %s %s: %w", m.PceID, types.FormatDate(*m.GasDate), err)
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

func (s *Store) UpsertThresholds(ctx context.Context, thresholds []types.Threshold) (int, error) {
	stored := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range thresholds {
			if !t.IsValid() {
				continue
			}
			_, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO thresholds (pce, date, energy) VALUES (?, ?, ?)",
				t.PceID,
				types.FormatDate(*t.Date),
				*t.Energy,
			)
			if err != nil {
				return fmt.Errorf("upsert threshold %s: %w", t.PceID, err)
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetConfig returns ok=false when the key was never set.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, true, nil
}

// MeasuresBetween returns the measures of a pce and kind whose gas date is
// within [from, to], ordered by date.
func (s *Store) MeasuresBetween(ctx context.Context, pce string, kind types.MeasureKind, from, to time.Time) ([]types.Measure, error) {
	return s.queryMeasures(ctx,
		"SELECT "+measureColumns+" FROM measures "+
			"WHERE pce = ? AND type = ? AND date BETWEEN ? AND ? ORDER BY date",
		pce, string(kind), types.FormatDate(from), types.FormatDate(to))
}

// MeasureOn returns nil when no measure is stored for that date.
func (s *Store) MeasureOn(ctx context.Context, pce string, kind types.MeasureKind, date time.Time) (*types.Measure, error) {
	measures, err := s.queryMeasures(ctx,
		"SELECT "+measureColumns+" FROM measures WHERE pce = ? AND type = ? AND date = ?",
		pce, string(kind), types.FormatDate(date))
	if err != nil || len(measures) == 0 {
		return nil, err
	}
	return &measures[0], nil
}

// Measures returns every stored measure of a pce, both kinds, ordered by date.
func (s *Store) Measures(ctx context.Context, pce string) ([]types.Measure, error) {
	return s.queryMeasures(ctx,
		"SELECT "+measureColumns+" FROM measures WHERE pce = ? ORDER BY type, date", pce)
}

func (s *Store) ThresholdOn(ctx context.Context, pce string, date time.Time) (*types.Threshold, error) {
	thresholds, err := s.queryThresholds(ctx,
		"SELECT pce, date, energy FROM thresholds WHERE pce = ? AND date = ?",
		pce, types.FormatDate(date))
	if err != nil || len(thresholds) == 0 {
		return nil, err
	}
	return &thresholds[0], nil
}

func (s *Store) Thresholds(ctx context.Context, pce string) ([]types.Threshold, error) {
	return s.queryThresholds(ctx,
		"SELECT pce, date, energy FROM thresholds WHERE pce = ? ORDER BY date", pce)
}

// UpdatePrices writes the price of each measure in one transaction.
func (s *Store) UpdatePrices(ctx context.Context, measures []types.Measure) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range measures {
			if m.GasDate == nil {
				continue
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE measures SET price = ? WHERE pce = ? AND type = ? AND date = ?",
				nullFloat(m.Price),
				m.PceID,
				string(m.Kind),
				types.FormatDate(*m.GasDate),
			)
			if err != nil {
				return fmt.Errorf("update price %s %s: %w", m.PceID, types.FormatDate(*m.GasDate), err)
			}
		}
		return nil
	})
}

// LoadAll returns every stored pce with its measures and thresholds.
func (s *Store) LoadAll(ctx context.Context) ([]types.MeterPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT pce, alias, activation_date, frequency, state, owner_name, postal_code "+
			"FROM pces ORDER BY pce")
	if err != nil {
		return nil, err
	}
	var points []types.MeterPoint
	for rows.Next() {
		var (
			p                                             types.MeterPoint
			alias, activation, freq, state, owner, postal sql.NullString
		)
		if err := rows.Scan(&p.ID, &alias, &activation, &freq, &state, &owner, &postal); err != nil {
			rows.Close()
			return nil, err
		}
		p.Alias = alias.String
		p.Frequency = freq.String
		p.State = state.String
		p.OwnerName = owner.String
		p.PostalCode = postal.String
		if p.ActivationDate, err = parseDateTime(activation); err != nil {
			rows.Close()
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	for i := range points {
		if points[i].Measures, err = s.Measures(ctx, points[i].ID); err != nil {
			return nil, err
		}
		if points[i].Thresholds, err = s.Thresholds(ctx, points[i].ID); err != nil {
			return nil, err
		}
	}
	return points, nil
}

func (s *Store) Stats(ctx context.Context, kind types.MeasureKind) (SeriesStats, error) {
	var (
		stats       SeriesStats
		first, last sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT pce), MIN(date), MAX(date) FROM measures WHERE type = ?",
		string(kind),
	).Scan(&stats.Rows, &stats.Pces, &first, &last)
	if err != nil {
		return stats, err
	}
	if stats.FirstDate, err = parseDate(first); err != nil {
		return stats, err
	}
	if stats.LastDate, err = parseDate(last); err != nil {
		return stats, err
	}
	log.WithFields(log.Fields{
		"kind": kind,
		"rows": stats.Rows,
		"pces": stats.Pces,
	}).Debug("Series stats")
	return stats, nil
}

func (s *Store) queryMeasures(ctx context.Context, query string, args ...any) ([]types.Measure, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var measures []types.Measure
	for rows.Next() {
		var (
			m                      types.Measure
			kind, date             string
			periodStart, periodEnd sql.NullString
		)
		err := rows.Scan(
			&m.PceID,
			&kind,
			&date,
			&periodStart,
			&periodEnd,
			&m.StartIndex,
			&m.EndIndex,
			&m.Volume,
			&m.VolumeGross,
			&m.Energy,
			&m.EnergyGross,
			&m.Temperature,
			&m.ConversionFactor,
			&m.Price,
			&m.IsDeltaIndex,
		)
		if err != nil {
			return nil, err
		}
		m.Kind = types.MeasureKind(kind)
		if m.GasDate, err = parseDate(sql.NullString{String: date, Valid: true}); err != nil {
			return nil, err
		}
		if m.StartDateTime, err = parseDateTime(periodStart); err != nil {
			return nil, err
		}
		if m.EndDateTime, err = parseDateTime(periodEnd); err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	return measures, rows.Err()
}

func (s *Store) queryThresholds(ctx context.Context, query string, args ...any) ([]types.Threshold, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []types.Threshold
	for rows.Next() {
		var (
			t    types.Threshold
			date string
		)
		if err := rows.Scan(&t.PceID, &date, &t.Energy); err != nil {
			return nil, err
		}
		if t.Date, err = parseDate(sql.NullString{String: date, Valid: true}); err != nil {
			return nil, err
		}
		t.Year = types.Ptr(t.Date.Year())
		t.Month = types.Ptr(int(t.Date.Month()))
		thresholds = append(thresholds, t)
	}
	return thresholds, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDateTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.Format(datetimeLayout)
}

func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := types.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDateTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(datetimeLayout, v.String, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
