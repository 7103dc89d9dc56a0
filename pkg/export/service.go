// Package export writes the stored history to a spreadsheet.
package export

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/xuri/excelize/v2"
)

const (
	PceSheet       = "pces"
	MeasureSheet   = "measures"
	ThresholdSheet = "thresholds"
)

var (
	pceHeader       = []any{"pce", "alias", "state", "frequency", "activation_date", "owner_name", "postal_code"}
	measureHeader   = []any{"pce", "type", "date", "period_start", "period_end", "start_index", "end_index", "volume", "volume_gross", "energy", "energy_gross", "temperature", "conversion", "price", "is_delta_index"}
	thresholdHeader = []any{"pce", "date", "energy"}
)

// Workbook builds one sheet per record type. The caller closes the file.
func Workbook(points []types.MeterPoint) (*excelize.File, error) {
	f := excelize.NewFile()
	for _, sheet := range []string{PceSheet, MeasureSheet, ThresholdSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}

	pceRows := [][]any{pceHeader}
	measureRows := [][]any{measureHeader}
	thresholdRows := [][]any{thresholdHeader}
	for _, p := range points {
		pceRows = append(pceRows, []any{p.ID, p.Alias, p.State, p.Frequency, dateTime(p.ActivationDate), p.OwnerName, p.PostalCode})
		for _, m := range p.Measures {
			measureRows = append(measureRows, []any{
				m.PceID, string(m.Kind), date(m.GasDate), dateTime(m.StartDateTime), dateTime(m.EndDateTime),
				cell(m.StartIndex), cell(m.EndIndex), cell(m.Volume), cell(m.VolumeGross),
				cell(m.Energy), cell(m.EnergyGross), cell(m.Temperature), cell(m.ConversionFactor),
				cell(m.Price), m.IsDeltaIndex,
			})
		}
		for _, t := range p.Thresholds {
			thresholdRows = append(thresholdRows, []any{t.PceID, date(t.Date), cell(t.Energy)})
		}
	}

	for sheet, rows := range map[string][][]any{
		PceSheet:       pceRows,
		MeasureSheet:   measureRows,
		ThresholdSheet: thresholdRows,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cell turns a nil pointer into an empty cell.
func cell[T int64 | float64](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func date(t *time.Time) any {
	if t == nil {
		return nil
	}
	return types.FormatDate(*t)
}

func dateTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02 15:04:05")
}
