package mqttpub

import (
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/aggregator"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
)

// Publisher sends one payload to a topic. Nil payloads are not sent.
type Publisher interface {
	Publish(topic string, payload any) error
}

type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	Qos      int
	Retain   bool
	Ssl      bool
	Timeout  time.Duration
}

// Report gathers what is published about one pce after a run.
type Report struct {
	Point           types.MeterPoint
	LastInformative *types.Measure
	LastPublished   *types.Measure
	// Computed from informative measures, nil when the pce had no valid one.
	Snapshot *aggregator.AggregateSnapshot
	Now      time.Time
}

// Ok reports whether the pce delivered at least one valid informative measure.
func (r Report) Ok() bool {
	return r.LastInformative != nil && r.Snapshot != nil
}
