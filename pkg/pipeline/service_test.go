package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/config"
	"github.com/NotCoffee418/gazpar_bridge/pkg/meterdb"
	"github.com/NotCoffee418/gazpar_bridge/pkg/mqttpub"
	"github.com/NotCoffee418/gazpar_bridge/pkg/normalizer"
	"github.com/NotCoffee418/gazpar_bridge/pkg/portal"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pricing"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

type fakeSession struct {
	loginOK bool
}

func (f *fakeSession) Login(_ context.Context, _, _ string) (bool, error) {
	return f.loginOK, nil
}

func (f *fakeSession) Whoami(_ context.Context) (*types.Account, error) {
	return &types.Account{ID: 42, Email: "jane@example.org"}, nil
}

func (f *fakeSession) MeterPoints(_ context.Context) ([]types.MeterPoint, error) {
	return []types.MeterPoint{
		{ID: "GI1", Alias: "home", State: "Active"},
		{ID: "GI2", Alias: "barn", State: "Active"},
	}, nil
}

func (f *fakeSession) Measures(_ context.Context, pceID string, kind types.MeasureKind, _, _ time.Time) ([]normalizer.RawMeasure, error) {
	if pceID == "GI2" {
		return nil, portal.ErrMalformed
	}
	if kind == types.Published {
		return nil, nil
	}
	var raws []normalizer.RawMeasure
	for day := 1; day <= 31; day++ {
		end := float64(1000 + 10*day)
		raws = append(raws, normalizer.RawMeasure{
			StartDateTime:    types.Ptr(fmt.Sprintf("2024-01-%02dT06:00:00+01:00", day)),
			EndDateTime:      types.Ptr(fmt.Sprintf("2024-01-%02dT06:00:00+01:00", day+1)),
			GasDate:          types.Ptr(fmt.Sprintf("2024-01-%02d", day)),
			StartIndex:       types.Ptr(end - 10),
			EndIndex:         types.Ptr(end),
			VolumeGross:      types.Ptr(10.4),
			Energy:           types.Ptr(116.0),
			ConversionFactor: types.Ptr(11.2),
		})
	}
	// Rejected by the quality gate.
	raws = append(raws, normalizer.RawMeasure{GasDate: types.Ptr("2024-01-31")})
	return raws, nil
}

func (f *fakeSession) Thresholds(_ context.Context, _ string) ([]normalizer.RawThreshold, error) {
	return []normalizer.RawThreshold{
		{Energy: types.Ptr(3000.0), Year: types.Ptr(2024), Month: types.Ptr(1)},
		{Energy: types.Ptr(1000.0), Year: types.Ptr(2024), Month: types.Ptr(2)},
		{Year: types.Ptr(2024), Month: types.Ptr(3)},
	}, nil
}

type recorder map[string]string

func (r recorder) Publish(topic string, payload any) error {
	if value, ok := mqttpub.Format(payload); ok {
		r[topic] = value
	}
	return nil
}

type fakeStatistics struct {
	imported, deleted []types.MeterPoint
}

func (f *fakeStatistics) Import(_ context.Context, points []types.MeterPoint) error {
	f.imported = points
	return nil
}

func (f *fakeStatistics) Delete(_ context.Context, points []types.MeterPoint) error {
	f.deleted = points
	return nil
}

type fakeTimeSeries struct {
	pces     []string
	measures int
}

func (f *fakeTimeSeries) WritePce(_ context.Context, p types.MeterPoint) error {
	f.pces = append(f.pces, p.ID)
	return nil
}

func (f *fakeTimeSeries) WritePrices(_ context.Context, _ types.MeterPoint, _ *pricing.Book, _ time.Time) (int, error) {
	return 1, nil
}

func (f *fakeTimeSeries) WriteMeasures(_ context.Context, p types.MeterPoint) (int, error) {
	f.measures += len(p.Measures)
	return len(p.Measures), nil
}

func (f *fakeTimeSeries) WriteThresholds(_ context.Context, p types.MeterPoint) (int, error) {
	if len(p.Thresholds) == 0 {
		return 0, errors.New("nothing to write")
	}
	return len(p.Thresholds), nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Portal.Username = "jane@example.org"
	cfg.Portal.Password = "secret"
	cfg.Publish.Standalone = true
	cfg.Publish.Discovery = true
	return cfg
}

func openStore(t *testing.T) *meterdb.Store {
	t.Helper()
	store, err := meterdb.Open(filepath.Join(t.TempDir(), "gazpar.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	book, err := pricing.NewBook(nil, pricing.Rates{KwhPrice: 0.1, FixPrice: 0.5})
	require.NoError(t, err)

	rec := recorder{}
	stats := &fakeStatistics{}
	series := &fakeTimeSeries{}
	runner := New(testConfig(), &fakeSession{loginOK: true}, store, book,
		WithPublisher(rec),
		WithStatistics(stats),
		WithTimeSeries(series),
		WithClock(func() time.Time { return testNow }),
		WithRetry(1, time.Millisecond),
	)

	status, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, status.ID)
	assert.Equal(t, 2, status.Pces)
	assert.Equal(t, 1, status.Failed)

	// Store
	measures, err := store.Measures(ctx, "GI1")
	require.NoError(t, err)
	require.Len(t, measures, 31)
	require.NotNil(t, measures[0].Price)
	assert.InDelta(t, 10.4*11.2*0.1+0.5, *measures[0].Price, 1e-4)

	thresholds, err := store.Thresholds(ctx, "GI1")
	require.NoError(t, err)
	assert.Len(t, thresholds, 2)

	whoami, ok, err := store.GetConfig(ctx, whoamiKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, whoami, `"id":42`)

	// Standalone
	assert.Equal(t, "300", rec["gazpar/GI1/histo/previous_month_gas"])
	assert.Equal(t, "10", rec["gazpar/GI1/histo/day-1_gas"])
	assert.Equal(t, "1310", rec["gazpar/GI1/last/index"])
	assert.Equal(t, "112", rec["gazpar/GI1/threshold/previous_month_threshold_percentage"])
	assert.Equal(t, "ON", rec["gazpar/GI1/threshold/previous_month_threshold_warning"])
	assert.Equal(t, "OFF", rec["gazpar/GI1/threshold/current_month_threshold_warning"])
	assert.Equal(t, "ON", rec["gazpar/GI1/status/connectivity"])
	assert.Equal(t, "OFF", rec["gazpar/GI2/status/connectivity"])

	// Discovery
	assert.Equal(t, "300", rec["homeassistant/sensor/gazpar_GI1/previous_month_gas/state"])
	assert.Equal(t, "OFF", rec["homeassistant/binary_sensor/gazpar_GI2/connectivity/state"])

	// Exports
	require.Len(t, stats.imported, 2)
	assert.Empty(t, stats.deleted)
	assert.Equal(t, []string{"GI1", "GI2"}, series.pces)
	assert.Equal(t, 31, series.measures)
}

func TestRunDeletesStatistics(t *testing.T) {
	store := openStore(t)
	book, err := pricing.NewBook(nil, pricing.Rates{})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Hass.LtsDelete = true
	stats := &fakeStatistics{}
	runner := New(cfg, &fakeSession{loginOK: true}, store, book,
		WithStatistics(stats),
		WithClock(func() time.Time { return testNow }),
	)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats.deleted, 2)
	assert.Empty(t, stats.imported)
}

func TestRunLoginFailure(t *testing.T) {
	store := openStore(t)
	book, err := pricing.NewBook(nil, pricing.Rates{})
	require.NoError(t, err)

	rec := recorder{}
	runner := New(testConfig(), &fakeSession{loginOK: false}, store, book,
		WithPublisher(rec),
		WithRetry(2, time.Millisecond),
	)

	status, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, portal.ErrNotConnected)
	assert.Zero(t, status.Pces)
	assert.Empty(t, rec)
}

func TestRunRejectsBadWeekStart(t *testing.T) {
	cfg := testConfig()
	cfg.Run.WeekStart = "someday"
	book, err := pricing.NewBook(nil, pricing.Rates{})
	require.NoError(t, err)

	_, err = New(cfg, &fakeSession{loginOK: true}, openStore(t), book).Run(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidOption)
}
