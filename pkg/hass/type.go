package hass

import (
	"encoding/json"
	"errors"
	"time"
)

// Components
const (
	Sensor = "sensor"
	Binary = "binary_sensor"
)

// Device classes
const (
	ClassGas          = "gas"
	ClassEnergy       = "energy"
	ClassConnectivity = "connectivity"
	ClassProblem      = "problem"
	ClassMonetary     = "monetary"
)

// State classes
const (
	StateMeasurement     = "measurement"
	StateTotal           = "total"
	StateTotalIncreasing = "total_increasing"
)

const Manufacturer = "GRDF"

var (
	ErrAuthFailed = errors.New("home assistant authentication failed")
	ErrRejected   = errors.New("home assistant rejected the command")
)

type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// EntityConfig is the discovery payload of one entity.
type EntityConfig struct {
	DeviceClass     string     `json:"device_class,omitempty"`
	StateClass      string     `json:"state_class,omitempty"`
	Unit            string     `json:"unit_of_measurement,omitempty"`
	Name            string     `json:"name"`
	UniqueID        string     `json:"unique_id"`
	StateTopic      string     `json:"state_topic"`
	AttributesTopic string     `json:"json_attributes_topic"`
	Device          DeviceInfo `json:"device"`
}

// Message is one topic and the payload to publish on it.
type Message struct {
	Topic   string
	Payload any
}

// StatisticMetadata describes a long term statistic series.
type StatisticMetadata struct {
	HasMean     bool   `json:"has_mean"`
	HasSum      bool   `json:"has_sum"`
	Name        string `json:"name,omitempty"`
	StatisticID string `json:"statistic_id"`
	Unit        string `json:"unit_of_measurement"`
	Source      string `json:"source"`
}

const statisticLayout = "2006-01-02T15:04:05-0700"

// Statistic is one row of a long term statistic series.
type Statistic struct {
	Start time.Time
	State float64
	Sum   float64
}

func (s Statistic) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string  `json:"start"`
		State float64 `json:"state"`
		Sum   float64 `json:"sum"`
	}{s.Start.UTC().Format(statisticLayout), s.State, s.Sum})
}

// Series is a statistic id with its rows, oldest first.
type Series struct {
	Metadata StatisticMetadata
	Stats    []Statistic
}

// wsResponse is any frame received from the websocket API.
type wsResponse struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *wsError        `json:"error"`
	Message string          `json:"message"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
