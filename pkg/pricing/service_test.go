package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = Rates{KwhPrice: 0.07, FixPrice: 0.9}

func TestPricePublished(t *testing.T) {
	m := types.Measure{
		Kind:          types.Published,
		StartDateTime: types.Ptr(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)),
		EndDateTime:   types.Ptr(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC)),
		EnergyGross:   types.Ptr(700.0),
	}

	price := Price(m, Rates{KwhPrice: 0.08, FixPrice: 0.5})
	require.NotNil(t, price)
	assert.Equal(t, 59.5, *price)
}

func TestPriceInformative(t *testing.T) {
	m := types.Measure{Kind: types.Informative, EnergyGross: types.Ptr(112.34567)}

	price := Price(m, Rates{KwhPrice: 0.1, FixPrice: 0.5})
	require.NotNil(t, price)
	assert.Equal(t, 11.7346, *price)
}

func TestPriceWithoutEnergy(t *testing.T) {
	assert.Nil(t, Price(types.Measure{Kind: types.Informative}, defaults))
	assert.Nil(t, Price(types.Measure{Kind: types.Published, EnergyGross: types.Ptr(10.0)}, defaults))
}

func TestResolveLastWins(t *testing.T) {
	book, err := NewBook([]Tariff{
		{PceID: "GI1", StartDate: "2024-01-01", EndDate: "2024-12-31", KwhPrice: 0.08, FixPrice: 0.5},
		{PceID: "GI1", StartDate: "2024-06-01", EndDate: "2024-06-30", KwhPrice: 0.09, FixPrice: 0.6},
		{PceID: "GI2", StartDate: "2024-01-01", EndDate: "2024-12-31", KwhPrice: 0.2, FixPrice: 1},
	}, defaults)
	require.NoError(t, err)

	rates, ok := book.Resolve("GI1", types.Date(2024, 6, 15))
	require.True(t, ok)
	assert.Equal(t, 0.09, rates.KwhPrice)

	rates, ok = book.Resolve("GI1", types.Date(2024, 12, 31))
	require.True(t, ok)
	assert.Equal(t, 0.08, rates.KwhPrice)

	_, ok = book.Resolve("GI1", types.Date(2025, 1, 1))
	assert.False(t, ok)
	assert.Len(t, book.Tariffs("GI1"), 2)
}

func TestNewBookRejectsBadDates(t *testing.T) {
	_, err := NewBook([]Tariff{{PceID: "GI1", StartDate: "01/01/2024", EndDate: "2024-12-31"}}, defaults)
	assert.ErrorIs(t, err, ErrInvalidTariff)

	_, err = NewBook([]Tariff{{PceID: "GI1", StartDate: "2024-12-31", EndDate: "2024-01-01"}}, defaults)
	assert.ErrorIs(t, err, ErrInvalidTariff)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	book, err := Load(dir, defaults)
	require.NoError(t, err)
	assert.Zero(t, book.Len())

	content := `
- pce: GI1
  start_date: 2024-01-01
  end_date: 2024-12-31
  kwh_price: 0.08
  fix_price: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	book, err = Load(dir, defaults)
	require.NoError(t, err)
	require.Equal(t, 1, book.Len())

	rates, ok := book.Resolve("GI1", types.Date(2024, 3, 1))
	require.True(t, ok)
	assert.Equal(t, Rates{KwhPrice: 0.08, FixPrice: 0.5}, rates)
}

type fakeStore struct {
	measures []types.Measure
	written  []types.Measure
}

func (f *fakeStore) Measures(_ context.Context, _ string) ([]types.Measure, error) {
	return f.measures, nil
}

func (f *fakeStore) UpdatePrices(_ context.Context, measures []types.Measure) error {
	f.written = measures
	return nil
}

func TestApply(t *testing.T) {
	book, err := NewBook([]Tariff{
		{PceID: "GI1", StartDate: "2024-01-01", EndDate: "2024-01-31", KwhPrice: 0.1, FixPrice: 1},
	}, defaults)
	require.NoError(t, err)

	store := &fakeStore{measures: []types.Measure{
		{PceID: "GI1", Kind: types.Informative, GasDate: types.Ptr(types.Date(2024, 1, 10)), EnergyGross: types.Ptr(100.0)},
		{PceID: "GI1", Kind: types.Informative, GasDate: types.Ptr(types.Date(2024, 2, 10)), EnergyGross: types.Ptr(100.0)},
		{PceID: "GI1", Kind: types.Informative, GasDate: types.Ptr(types.Date(2024, 2, 11))},
	}}

	result, err := book.Apply(context.Background(), store, "GI1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Tariffed)
	assert.Equal(t, 2, result.Defaulted)
	assert.Equal(t, 1, result.Unpriced)
	require.Len(t, store.written, 3)
	assert.Equal(t, 11.0, *store.written[0].Price)
	assert.Equal(t, 7.9, *store.written[1].Price)
	assert.Nil(t, store.written[2].Price)
}
