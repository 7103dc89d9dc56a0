package mqttpub

import (
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/aggregator"
	"github.com/NotCoffee418/gazpar_bridge/pkg/calendar"
	"github.com/NotCoffee418/gazpar_bridge/pkg/threshold"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder map[string]string

func (r recorder) Publish(topic string, payload any) error {
	if value, ok := Format(payload); ok {
		r[topic] = value
	}
	return nil
}

func testReport() Report {
	now := time.Date(2024, 2, 15, 7, 30, 0, 0, time.UTC)
	last := types.Measure{
		PceID:            "GI1",
		Kind:             types.Informative,
		GasDate:          types.Ptr(types.Date(2024, 2, 14)),
		EndIndex:         types.Ptr(int64(1310)),
		Volume:           types.Ptr(int64(10)),
		Energy:           types.Ptr(int64(112)),
		ConversionFactor: types.Ptr(11.2),
	}
	snapshot := aggregator.NewSnapshot("GI1", types.Informative, types.DateOf(now), aggregator.Figures{
		Consumption: map[calendar.Window]int64{
			calendar.Y0: 450,
			calendar.M1: 300,
			calendar.D1: 10,
		},
		ThisMonth: threshold.Comparison{Threshold: 900, Percentage: 62},
		LastMonth: threshold.Comparison{Threshold: 1000, Percentage: 336, Warning: true},
	})
	return Report{
		Point:           types.MeterPoint{ID: "GI1", Alias: "Maison"},
		LastInformative: &last,
		Snapshot:        snapshot,
		Now:             now,
	}
}

func TestPublishStandalone(t *testing.T) {
	rec := recorder{}
	require.NoError(t, PublishStandalone(rec, "gazpar", testReport()))

	assert.Equal(t, "2024-02-14", rec["gazpar/GI1/last/date"])
	assert.Equal(t, "1310", rec["gazpar/GI1/last/index"])
	assert.Equal(t, "11.2", rec["gazpar/GI1/last/conversion_Factor"])
	assert.Equal(t, "450", rec["gazpar/GI1/histo/current_year_gas"])
	assert.Equal(t, "300", rec["gazpar/GI1/histo/previous_month_gas"])
	assert.Equal(t, "10", rec["gazpar/GI1/histo/day-1_gas"])
	assert.Equal(t, "0", rec["gazpar/GI1/histo/rolling_week_gas"])
	assert.Equal(t, "62", rec["gazpar/GI1/threshold/current_month_threshold_percentage"])
	assert.Equal(t, "ON", rec["gazpar/GI1/threshold/previous_month_threshold_warning"])
	assert.Equal(t, "ON", rec["gazpar/GI1/status/connectivity"])
	assert.Equal(t, "2024-02-15 07:30:00", rec["gazpar/GI1/status/date"])

	_, ok := rec["gazpar/GI1/published/index"]
	assert.False(t, ok)
}

func TestPublishStandaloneWithoutMeasures(t *testing.T) {
	rec := recorder{}
	r := testReport()
	r.LastInformative = nil
	r.Snapshot = nil

	require.NoError(t, PublishStandalone(rec, "gazpar", r))

	assert.Len(t, rec, 2)
	assert.Equal(t, "OFF", rec["gazpar/GI1/status/connectivity"])
}
