package normalizer

import (
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/NotCoffee418/gazpar_bridge/pkg/units"
)

// Accuracy counts valid measures of a kind against all measures of that kind.
// pct is 0 when there is no measure at all.
func Accuracy(measures []types.Measure, kind types.MeasureKind) (valid, total, pct int) {
	for _, m := range measures {
		if m.Kind != kind {
			continue
		}
		total++
		if m.IsValid() {
			valid++
		}
	}
	return valid, total, units.Percent(float64(valid), float64(total))
}

// LastValid returns the most recent valid measure of a kind in slice order.
func LastValid(measures []types.Measure, kind types.MeasureKind) (types.Measure, bool) {
	for i := len(measures) - 1; i >= 0; i-- {
		if measures[i].Kind == kind && measures[i].IsValid() {
			return measures[i], true
		}
	}
	return types.Measure{}, false
}

func ValidThresholds(thresholds []types.Threshold) []types.Threshold {
	valid := make([]types.Threshold, 0, len(thresholds))
	for _, t := range thresholds {
		if t.IsValid() {
			valid = append(valid, t)
		}
	}
	return valid
}
