package mqttpub

import (
	"errors"
	"fmt"

	"github.com/NotCoffee418/gazpar_bridge/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

// Topic names under <topic>/<pce>/histo/
var histoTopics = []struct {
	name   string
	window calendar.Window
}{
	{"current_year_gas", calendar.Y0},
	{"previous_year_gas", calendar.Y1},
	{"current_month_gas", calendar.M0},
	{"previous_month_gas", calendar.M1},
	{"current_month_previous_year_gas", calendar.M0Y1},
	{"current_week_gas", calendar.W0},
	{"previous_week_gas", calendar.W1},
	{"current_week_previous_year-gas", calendar.W0Y1},
	{"day-1_gas", calendar.D1},
	{"day-2_gas", calendar.D2},
	{"day-3_gas", calendar.D3},
	{"day-4_gas", calendar.D4},
	{"day-5_gas", calendar.D5},
	{"day-6_gas", calendar.D6},
	{"day-7_gas", calendar.D7},
	{"rolling_year_gas", calendar.R1Y},
	{"rolling_year_last_year_gas", calendar.R2Y1Y},
	{"rolling_month_gas", calendar.R1M},
	{"rolling_month_last_month_gas", calendar.R2M1M},
	{"rolling_month_last_year_gas", calendar.R1MY1},
	{"rolling_month_last_2_year_gas", calendar.R1MY2},
	{"rolling_week_gas", calendar.R1W},
	{"rolling_week_last_week_gas", calendar.R2W1W},
	{"rolling_week_last_year_gas", calendar.R1WY1},
	{"rolling_week_last_2_year_gas", calendar.R1WY2},
}

// PublishStandalone publishes a report as plain topics under
// <topic>/<pce>/. It keeps going on errors and returns them joined.
func PublishStandalone(p Publisher, topic string, r Report) error {
	prefix := fmt.Sprintf("%s/%s/", topic, r.Point.ID)
	status := prefix + "status/"
	log.WithField("topic", prefix+"#").Info("Publishing standalone values")

	var errs []error
	pub := func(t string, payload any) {
		if err := p.Publish(t, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if !r.Ok() {
		pub(status+"date", r.Now)
		pub(status+"connectivity", "OFF")
		return errors.Join(errs...)
	}

	last := prefix + "last/"
	if m := r.LastInformative; m != nil {
		pub(last+"date", m.GasDate)
		pub(last+"energy", m.Energy)
		pub(last+"gas", m.Volume)
		pub(last+"index", m.EndIndex)
		pub(last+"conversion_Factor", m.ConversionFactor)
	}

	published := prefix + "published/"
	if m := r.LastPublished; m != nil {
		pub(published+"start_date", m.StartDateTime)
		pub(published+"end_date", m.EndDateTime)
		pub(published+"energy", m.Energy)
		pub(published+"gas", m.Volume)
		pub(published+"index", m.EndIndex)
		pub(published+"conversion_Factor", m.ConversionFactor)
	} else {
		log.WithField("pce", r.Point.ID).Warn("No valid published measure to publish")
	}

	histo := prefix + "histo/"
	for _, h := range histoTopics {
		pub(histo+h.name, r.Snapshot.Consumption(h.window))
	}

	// Thresholds only when the portal has one for this month
	if this := r.Snapshot.ThisMonth(); this.Threshold != 0 {
		prev := r.Snapshot.LastMonth()
		tsh := prefix + "threshold/"
		pub(tsh+"current_month_threshold", this.Threshold)
		pub(tsh+"current_month_threshold_percentage", this.Percentage)
		pub(tsh+"current_month_threshold_warning", this.WarningState())
		pub(tsh+"previous_month_threshold", prev.Threshold)
		pub(tsh+"previous_month_threshold_percentage", prev.Percentage)
		pub(tsh+"previous_month_threshold_warning", prev.WarningState())
	}

	pub(status+"date", r.Now)
	pub(status+"connectivity", "ON")
	return errors.Join(errs...)
}
