package meterdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "meter.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dailyMeasure(pce string, day int, endIndex int64) types.Measure {
	return types.Measure{
		PceID:            pce,
		Kind:             types.Informative,
		GasDate:          types.Ptr(types.Date(2024, 1, day)),
		StartIndex:       types.Ptr(endIndex - 10),
		EndIndex:         types.Ptr(endIndex),
		Volume:           types.Ptr(int64(10)),
		VolumeGross:      types.Ptr(10.2),
		Energy:           types.Ptr(int64(113)),
		ConversionFactor: types.Ptr(11.3),
	}
}

func TestUpsertMeasuresSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	stored, err := store.UpsertMeasures(ctx, []types.Measure{
		dailyMeasure("GI1", 1, 1010),
		{PceID: "GI1", Kind: types.Informative, GasDate: types.Ptr(types.Date(2024, 1, 2))},
		dailyMeasure("GI1", 3, 1030),
		func() types.Measure { m := dailyMeasure("GI1", 4, 1040); m.Kind = "hourly"; return m }(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	measures, err := store.Measures(ctx, "GI1")
	require.NoError(t, err)
	assert.Len(t, measures, 2)
}

func TestUpsertMeasuresIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := dailyMeasure("GI1", 5, 1050)
	second := dailyMeasure("GI1", 5, 1050)
	second.Energy = types.Ptr(int64(120))

	_, err := store.UpsertMeasures(ctx, []types.Measure{first})
	require.NoError(t, err)
	_, err = store.UpsertMeasures(ctx, []types.Measure{second})
	require.NoError(t, err)

	measures, err := store.Measures(ctx, "GI1")
	require.NoError(t, err)
	require.Len(t, measures, 1)
	assert.Equal(t, int64(120), *measures[0].Energy)
}

func TestMeasuresBetweenAndOn(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	var measures []types.Measure
	for day := 1; day <= 10; day++ {
		measures = append(measures, dailyMeasure("GI1", day, 1000+int64(day)*10))
	}
	measures = append(measures, dailyMeasure("GI2", 4, 5000))
	_, err := store.UpsertMeasures(ctx, measures)
	require.NoError(t, err)

	between, err := store.MeasuresBetween(ctx, "GI1", types.Informative, types.Date(2024, 1, 3), types.Date(2024, 1, 5))
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, types.Date(2024, 1, 3), *between[0].GasDate)
	assert.Equal(t, int64(1050), *between[2].EndIndex)
	assert.InDelta(t, 11.3, *between[0].ConversionFactor, 1e-9)
	assert.Nil(t, between[0].Price)

	on, err := store.MeasureOn(ctx, "GI1", types.Informative, types.Date(2024, 1, 7))
	require.NoError(t, err)
	require.NotNil(t, on)
	assert.InDelta(t, 10.2, *on.VolumeGross, 1e-9)

	missing, err := store.MeasureOn(ctx, "GI1", types.Published, types.Date(2024, 1, 7))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestThresholds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	stored, err := store.UpsertThresholds(ctx, []types.Threshold{
		{PceID: "GI1", Date: types.Ptr(types.Date(2024, 2, 1)), Energy: types.Ptr(int64(900))},
		{PceID: "GI1", Date: types.Ptr(types.Date(2024, 3, 1))},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	th, err := store.ThresholdOn(ctx, "GI1", types.Date(2024, 2, 1))
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.Equal(t, int64(900), *th.Energy)
	assert.Equal(t, 2, *th.Month)

	none, err := store.ThresholdOn(ctx, "GI1", types.Date(2024, 3, 1))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpdatePricesAndLoadAll(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	point := types.MeterPoint{
		ID:             "GI1",
		Alias:          "Maison",
		ActivationDate: types.Ptr(types.Date(2019, 5, 2)),
		State:          "Active",
	}
	require.NoError(t, store.UpsertMeterPoint(ctx, point))

	m := dailyMeasure("GI1", 1, 1010)
	_, err := store.UpsertMeasures(ctx, []types.Measure{m})
	require.NoError(t, err)

	m.Price = types.Ptr(8.1234)
	require.NoError(t, store.UpdatePrices(ctx, []types.Measure{m}))

	points, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Maison", points[0].Alias)
	assert.Equal(t, types.Date(2019, 5, 2), *points[0].ActivationDate)
	require.Len(t, points[0].Measures, 1)
	assert.InDelta(t, 8.1234, *points[0].Measures[0].Price, 1e-9)
}

func TestConfigAndStats(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, ok, err := store.GetConfig(ctx, "whoami")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetConfig(ctx, "whoami", `{"id":1}`))
	value, ok, err := store.GetConfig(ctx, "whoami")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":1}`, value)

	_, err = store.UpsertMeasures(ctx, []types.Measure{
		dailyMeasure("GI1", 1, 1010),
		dailyMeasure("GI1", 2, 1020),
		dailyMeasure("GI2", 2, 2020),
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx, types.Informative)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 2, stats.Pces)
	assert.Equal(t, types.Date(2024, 1, 2), *stats.LastDate)
}

func TestOpenReinit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meter.db")

	store, err := Open(path, false)
	require.NoError(t, err)
	_, err = store.UpsertMeasures(ctx, []types.Measure{dailyMeasure("GI1", 1, 1010)})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path, true)
	require.NoError(t, err)
	defer store.Close()

	measures, err := store.Measures(ctx, "GI1")
	require.NoError(t, err)
	assert.Empty(t, measures)
}
