// Package pricing resolves the tariff of a pce for a day and prices measures.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalidTariff = errors.New("invalid tariff")

// Store is the part of the measure store pricing reads and writes.
type Store interface {
	Measures(ctx context.Context, pce string) ([]types.Measure, error)
	UpdatePrices(ctx context.Context, measures []types.Measure) error
}

type Book struct {
	tariffs  []Tariff
	defaults Rates
}

func NewBook(tariffs []Tariff, defaults Rates) (*Book, error) {
	for i := range tariffs {
		var err error
		if tariffs[i].start, err = types.ParseDate(tariffs[i].StartDate); err != nil {
			return nil, fmt.Errorf("%w: %s start date %q", ErrInvalidTariff, tariffs[i].PceID, tariffs[i].StartDate)
		}
		if tariffs[i].end, err = types.ParseDate(tariffs[i].EndDate); err != nil {
			return nil, fmt.Errorf("%w: %s end date %q", ErrInvalidTariff, tariffs[i].PceID, tariffs[i].EndDate)
		}
		if tariffs[i].end.Before(tariffs[i].start) {
			return nil, fmt.Errorf("%w: %s ends before it starts", ErrInvalidTariff, tariffs[i].PceID)
		}
	}
	return &Book{tariffs: tariffs, defaults: defaults}, nil
}

// Load reads prices.yaml from dir. A missing file gives an empty book.
func Load(dir string, defaults Rates) (*Book, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Info("No prices file, default rates apply")
		return NewBook(nil, defaults)
	}
	if err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}

	var tariffs []Tariff
	if err := yaml.Unmarshal(data, &tariffs); err != nil {
		return nil, fmt.Errorf("parse prices: %w", err)
	}
	log.WithField("count", len(tariffs)).Info("Tariffs loaded")
	return NewBook(tariffs, defaults)
}

func (b *Book) Defaults() Rates {
	return b.defaults
}

func (b *Book) Len() int {
	return len(b.tariffs)
}

// Tariffs returns the tariffs of a pce in file order.
func (b *Book) Tariffs(pce string) []Tariff {
	var found []Tariff
	for _, t := range b.tariffs {
		if t.PceID == pce {
			found = append(found, t)
		}
	}
	return found
}

// Resolve returns the rates of the tariff covering day. When tariffs
// overlap the last one in file order wins.
func (b *Book) Resolve(pce string, day time.Time) (Rates, bool) {
	day = types.DateOf(day)
	for i := len(b.tariffs) - 1; i >= 0; i-- {
		t := b.tariffs[i]
		if t.PceID == pce && t.Covers(day) {
			return t.Rates(), true
		}
	}
	return Rates{}, false
}

// Price computes the cost of a measure rounded to 4 decimals.
// Informative: energy * kwh + fix. Published: energy * kwh + days * fix,
// days being the length of the measure period.
// Nil when the gross energy or the period of a published measure is unknown.
func Price(m types.Measure, rates Rates) *float64 {
	if m.EnergyGross == nil {
		return nil
	}
	kwh := decimal.NewFromFloat(rates.KwhPrice)
	fix := decimal.NewFromFloat(rates.FixPrice)
	price := decimal.NewFromFloat(*m.EnergyGross).Mul(kwh)

	switch m.Kind {
	case types.Published:
		if m.StartDateTime == nil || m.EndDateTime == nil {
			return nil
		}
		hours := decimal.NewFromFloat(m.EndDateTime.Sub(*m.StartDateTime).Hours())
		days := hours.Div(decimal.NewFromInt(24))
		price = price.Add(days.Mul(fix))
	default:
		price = price.Add(fix)
	}
	return types.Ptr(price.Round(4).InexactFloat64())
}

// Apply prices every stored measure of a pce and writes the prices back in
// one transaction.
func (b *Book) Apply(ctx context.Context, store Store, pce string) (ApplyResult, error) {
	var result ApplyResult
	measures, err := store.Measures(ctx, pce)
	if err != nil {
		return result, fmt.Errorf("load measures: %w", err)
	}

	for i := range measures {
		m := &measures[i]
		if m.GasDate == nil {
			continue
		}
		rates, ok := b.Resolve(pce, *m.GasDate)
		if ok {
			result.Tariffed++
		} else {
			rates = b.defaults
			result.Defaulted++
		}
		m.Price = Price(*m, rates)
		if m.Price == nil {
			result.Unpriced++
		}
	}
	if result.Defaulted > 0 {
		log.WithFields(log.Fields{
			"pce":      pce,
			"measures": result.Defaulted,
			"kwh":      b.defaults.KwhPrice,
			"fix":      b.defaults.FixPrice,
		}).Warn("No tariff found, default rates used")
	}

	if err := store.UpdatePrices(ctx, measures); err != nil {
		return result, fmt.Errorf("write prices: %w", err)
	}
	result.Measures = measures
	return result, nil
}
