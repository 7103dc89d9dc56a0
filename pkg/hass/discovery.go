// Package hass talks to Home Assistant: MQTT discovery entities and long
// term statistics.
package hass

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NotCoffee418/gazpar_bridge/pkg/calendar"
	"github.com/NotCoffee418/gazpar_bridge/pkg/mqttpub"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	log "github.com/sirupsen/logrus"
)

// Device groups the entities of one pce.
type Device struct {
	prefix   string
	id       string
	name     string
	pceID    string
	entities []*Entity
}

type Entity struct {
	Component   string
	ID          string
	Name        string
	DeviceClass string
	StateClass  string
	Unit        string
	Value       any
	Attributes  map[string]any

	device *Device
}

func NewDevice(prefix, deviceName string, p types.MeterPoint) *Device {
	return &Device{
		prefix: prefix,
		id:     strings.ReplaceAll(deviceName, " ", "_") + "_" + p.ID,
		name:   deviceName + " " + p.Alias,
		pceID:  p.ID,
	}
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) Entities() []*Entity {
	return d.entities
}

// Entity returns the entity with the given id, nil when absent.
func (d *Device) Entity(id string) *Entity {
	for _, e := range d.entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (d *Device) Info() DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{d.id},
		Name:         d.name,
		Model:        d.pceID,
		Manufacturer: Manufacturer,
	}
}

func (d *Device) add(component, id, name, class, stateClass, unit string, value any) *Entity {
	e := &Entity{
		Component:   component,
		ID:          id,
		Name:        name,
		DeviceClass: class,
		StateClass:  stateClass,
		Unit:        unit,
		Value:       value,
		device:      d,
	}
	d.entities = append(d.entities, e)
	return e
}

func (e *Entity) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", e.device.prefix, e.Component, e.device.id, e.ID, suffix)
}

func (e *Entity) ConfigTopic() string     { return e.topic("config") }
func (e *Entity) StateTopic() string      { return e.topic("state") }
func (e *Entity) AttributesTopic() string { return e.topic("attributes") }

func (e *Entity) Config() EntityConfig {
	return EntityConfig{
		DeviceClass:     e.DeviceClass,
		StateClass:      e.StateClass,
		Unit:            e.Unit,
		Name:            e.Name,
		UniqueID:        e.device.id + "_" + e.ID,
		StateTopic:      e.StateTopic(),
		AttributesTopic: e.AttributesTopic(),
		Device:          e.device.Info(),
	}
}

// Messages lists config, state and attributes payloads of every entity.
// States without a value and empty attributes are left out.
func (d *Device) Messages() ([]Message, error) {
	var msgs []Message
	for _, e := range d.entities {
		cfg, err := json.Marshal(e.Config())
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		msgs = append(msgs, Message{Topic: e.ConfigTopic(), Payload: json.RawMessage(cfg)})
		if _, ok := mqttpub.Format(e.Value); ok {
			msgs = append(msgs, Message{Topic: e.StateTopic(), Payload: e.Value})
		}
		if len(e.Attributes) > 0 {
			msgs = append(msgs, Message{Topic: e.AttributesTopic(), Payload: e.Attributes})
		}
	}
	return msgs, nil
}

// Entity ids of the calendar windows, in publication order.
var windowEntities = []struct {
	id         string
	name       string
	window     calendar.Window
	increasing bool
}{
	{"current_year_gas", "current year gas", calendar.Y0, true},
	{"previous_year_gas", "previous year gas", calendar.Y1, false},
	{"previous_2_year_gas", "previous 2 years gas", calendar.Y2, false},
	{"current_month_gas", "current month gas", calendar.M0, false},
	{"previous_month_gas", "previous month gas", calendar.M1, false},
	{"current_month_last_year_gas", "current month of last year gas", calendar.M0Y1, true},
	{"current_week_gas", "current week gas", calendar.W0, true},
	{"previous_week_gas", "previous week gas", calendar.W1, false},
	{"current_week_last_year_gas", "current week of last year gas", calendar.W0Y1, false},
	{"rolling_year_gas", "rolling year gas", calendar.R1Y, false},
	{"rolling_year_last_year_gas", "rolling year of last year gas", calendar.R2Y1Y, false},
	{"rolling_month_gas", "rolling month gas", calendar.R1M, false},
	{"rolling_month_last_month_gas", "rolling month of last month gas", calendar.R2M1M, false},
	{"rolling_month_last_year_gas", "rolling month of last year gas", calendar.R1MY1, false},
	{"rolling_month_last_2_year_gas", "rolling month of last 2 years gas", calendar.R1MY2, false},
	{"rolling_week_gas", "rolling week gas", calendar.R1W, false},
	{"rolling_week_last_week_gas", "rolling week of last week gas", calendar.R2W1W, false},
	{"rolling_week_last_year_gas", "rolling week of last year", calendar.R1WY1, false},
	{"rolling_week_last_2_year_gas", "rolling week of last 2 years", calendar.R1WY2, false},
}

// BuildDevice creates the discovery entities of a pce report.
func BuildDevice(prefix, deviceName string, r mqttpub.Report) *Device {
	d := NewDevice(prefix, deviceName, r.Point)

	state := d.add(Sensor, "pce_state", "pce_state", "", "", "", r.Point.State)
	state.Attributes = map[string]any{
		"pce_alias":       r.Point.Alias,
		"pce_id":          r.Point.ID,
		"frequency":       r.Point.Frequency,
		"activation_date": r.Point.ActivationDate,
		"owner_name":      r.Point.OwnerName,
		"postal_code":     r.Point.PostalCode,
	}

	if !r.Ok() {
		d.add(Binary, "connectivity", "connectivity", ClassConnectivity, "", "", "OFF")
		return d
	}

	if m := r.LastInformative; m != nil {
		d.add(Sensor, "index", "index", ClassGas, StateTotalIncreasing, "m³", m.EndIndex)
		d.add(Sensor, "conversion_factor", "conversion factor", "", "", "kWh/m³", m.ConversionFactor)
		d.add(Sensor, "gas", "gas", ClassGas, StateTotal, "m³", m.Volume)
		d.add(Sensor, "energy", "energy", ClassEnergy, StateTotal, "kWh", m.Energy)
		d.add(Sensor, "consumption_date", "consumption date", "", "", "", m.GasDate)
	}

	if m := r.LastPublished; m != nil {
		d.add(Sensor, "published_index", "published index", ClassGas, StateTotalIncreasing, "m³", m.EndIndex)
		d.add(Sensor, "published_conversion_factor", "published conversion factor", "", "", "kWh/m³", m.ConversionFactor)
		d.add(Sensor, "published_gas", "published gas", ClassGas, StateTotal, "m³", m.Volume)
		d.add(Sensor, "published_energy", "published energy", ClassEnergy, StateTotal, "kWh", m.Energy)
		d.add(Sensor, "published_consumption_start_date", "published consumption start date", "", "", "", m.StartDateTime)
		d.add(Sensor, "published_consumption_end_date", "published consumption end date", "", "", "", m.EndDateTime)
	} else {
		log.WithField("pce", r.Point.ID).Warn("No valid published measure for discovery")
	}

	s := r.Snapshot
	for _, w := range windowEntities {
		stateClass := StateTotal
		if w.increasing {
			stateClass = StateTotalIncreasing
		}
		d.add(Sensor, w.id, w.name, ClassGas, stateClass, "m³", s.Consumption(w.window))
	}
	for n := 1; n <= 7; n++ {
		w := calendar.DayWindow(n)
		d.add(Sensor, fmt.Sprintf("day_%d_gas", n), fmt.Sprintf("day-%d gas", n), ClassGas, StateTotal, "m³", s.Consumption(w))
	}
	for n := 1; n <= 7; n++ {
		w := calendar.DayWindow(n)
		d.add(Sensor, fmt.Sprintf("day_%d_gas_gross", n), fmt.Sprintf("day-%d gas gross", n), ClassGas, StateTotal, "m³", s.Gross(w))
	}

	this, prev := s.ThisMonth(), s.LastMonth()
	d.add(Sensor, "current_month_threshold", "threshold of current month", ClassEnergy, StateTotal, "kWh", this.Threshold)
	d.add(Sensor, "current_month_threshold_percentage", "threshold of current month percentage", "", StateMeasurement, "%", this.Percentage)
	d.add(Binary, "current_month_threshold_problem", "threshold of current month problem", ClassProblem, "", "", this.WarningState())
	d.add(Sensor, "previous_month_threshold", "threshold of previous month", ClassEnergy, StateTotal, "kWh", prev.Threshold)
	d.add(Sensor, "previous_month_threshold_percentage", "threshold of previous month percentage", "", StateMeasurement, "%", prev.Percentage)
	d.add(Binary, "previous_month_threshold_problem", "threshold of previous month problem", ClassProblem, "", "", prev.WarningState())

	d.add(Binary, "connectivity", "connectivity", ClassConnectivity, "", "", "ON")
	return d
}

// PublishDiscovery builds the device of a report and publishes all its
// messages. Errors are collected and joined.
func PublishDiscovery(p mqttpub.Publisher, prefix, deviceName string, r mqttpub.Report) error {
	d := BuildDevice(prefix, deviceName, r)
	msgs, err := d.Messages()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"pce":      r.Point.ID,
		"entities": len(d.entities),
		"topic":    fmt.Sprintf("%s/+/%s/#", prefix, d.id),
	}).Info("Publishing discovery device")

	var errs []error
	for _, m := range msgs {
		if err := p.Publish(m.Topic, m.Payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
