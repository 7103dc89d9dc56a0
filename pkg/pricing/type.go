package pricing

import (
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
)

const FileName = "prices.yaml"

// Rates is a variable price per kWh and a fixed price per day, in euros.
type Rates struct {
	KwhPrice float64
	FixPrice float64
}

// Tariff applies Rates to a pce between two days, both inclusive.
type Tariff struct {
	PceID     string  `yaml:"pce"`
	StartDate string  `yaml:"start_date"`
	EndDate   string  `yaml:"end_date"`
	KwhPrice  float64 `yaml:"kwh_price"`
	FixPrice  float64 `yaml:"fix_price"`

	start time.Time
	end   time.Time
}

func (t Tariff) Rates() Rates {
	return Rates{KwhPrice: t.KwhPrice, FixPrice: t.FixPrice}
}

func (t Tariff) Covers(day time.Time) bool {
	return !day.Before(t.start) && !day.After(t.end)
}

// ApplyResult counts how the measures of a pce were priced.
type ApplyResult struct {
	Tariffed  int
	Defaulted int
	Unpriced  int
	Measures  []types.Measure
}
