package threshold

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		consumed  int64
		factor    *float64
		threshold int64
		warnPct   int
		wantPct   int
		wantWarn  string
	}{
		{"above warning", 50, types.Ptr(10.0), 400, 80, 125, WarningOn},
		{"below warning", 20, types.Ptr(10.0), 400, 80, 50, WarningOff},
		{"exactly at warning", 32, types.Ptr(10.0), 400, 80, 80, WarningOff},
		{"zero threshold", 50, types.Ptr(10.0), 0, 80, 0, WarningOff},
		{"unknown factor", 50, nil, 400, 80, 0, WarningOff},
		{"nothing consumed", 0, types.Ptr(10.0), 400, 80, 0, WarningOff},
		{"warning disabled", 50, types.Ptr(10.0), 400, 0, 0, WarningOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(tt.consumed, tt.factor, tt.threshold, tt.warnPct)
			assert.Equal(t, tt.wantPct, c.Percentage)
			assert.Equal(t, tt.wantWarn, c.WarningState())
			assert.Equal(t, tt.threshold, c.Threshold)
		})
	}
}

type fakeSource map[string]*types.Threshold

func (f fakeSource) ThresholdOn(_ context.Context, pce string, date time.Time) (*types.Threshold, error) {
	if pce == "broken" {
		return nil, errors.New("database is locked")
	}
	return f[pce+types.FormatDate(date)], nil
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	source := fakeSource{
		"GI12024-02-01": {Date: types.Ptr(types.Date(2024, 2, 1)), Energy: types.Ptr(int64(900))},
	}

	energy, err := Lookup(ctx, source, "GI1", types.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(900), energy)

	energy, err = Lookup(ctx, source, "GI1", types.Date(2024, 3, 1))
	require.NoError(t, err)
	assert.Zero(t, energy)

	_, err = Lookup(ctx, source, "broken", types.Date(2024, 3, 1))
	assert.Error(t, err)
}
