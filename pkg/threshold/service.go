// Package threshold compares monthly consumption with the energy ceiling
// configured on the portal.
package threshold

import (
	"context"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/NotCoffee418/gazpar_bridge/pkg/units"
)

const (
	WarningOn  = "ON"
	WarningOff = "OFF"
)

// Source finds the threshold stored for a pce on a given first-of-month.
type Source interface {
	ThresholdOn(ctx context.Context, pce string, date time.Time) (*types.Threshold, error)
}

// Comparison is the outcome of comparing one month against its threshold.
type Comparison struct {
	Threshold  int64
	Percentage int
	Warning    bool
}

// WarningState renders the warning as a binary sensor state.
func (c Comparison) WarningState() string {
	if c.Warning {
		return WarningOn
	}
	return WarningOff
}

// Lookup returns the threshold energy dated exactly on monthStart, 0 when
// none is stored.
func Lookup(ctx context.Context, source Source, pce string, monthStart time.Time) (int64, error) {
	t, err := source.ThresholdOn(ctx, pce, monthStart)
	if err != nil {
		return 0, err
	}
	if t == nil || t.Energy == nil || *t.Energy < 0 {
		return 0, nil
	}
	return *t.Energy, nil
}

// Compare converts the consumed volume to energy and expresses it as a
// percentage of the threshold. The warning is raised strictly above warnPct.
// Missing or zero inputs leave the comparison at 0 and OFF.
func Compare(consumed int64, factor *float64, thresholdEnergy int64, warnPct int) Comparison {
	c := Comparison{Threshold: thresholdEnergy}
	if consumed == 0 || factor == nil || *factor == 0 || warnPct == 0 || thresholdEnergy <= 0 {
		return c
	}
	c.Percentage = units.Percent(float64(consumed)*(*factor), float64(thresholdEnergy))
	c.Warning = c.Percentage > warnPct
	return c
}
