package types

import (
	"encoding/json"
	"time"
)

// MeterPoint (PCE) is one physical gas delivery point.
type MeterPoint struct {
	ID             string     `db:"pce"`
	Alias          string     `db:"alias"`
	ActivationDate *time.Time `db:"activation_date"`
	Frequency      string     `db:"frequency"`
	State          string     `db:"state"`
	OwnerName      string     `db:"owner_name"`
	PostalCode     string     `db:"postal_code"`

	Measures   []Measure   `db:"-"`
	Thresholds []Threshold `db:"-"`
}

func (p *MeterPoint) AddMeasure(m Measure) {
	p.Measures = append(p.Measures, m)
}

func (p *MeterPoint) AddThreshold(t Threshold) {
	p.Thresholds = append(p.Thresholds, t)
}

// CountMeasures counts measures of a kind. An empty kind counts all of them.
func (p *MeterPoint) CountMeasures(kind MeasureKind) int {
	if kind == "" {
		return len(p.Measures)
	}
	count := 0
	for _, m := range p.Measures {
		if m.Kind == kind {
			count++
		}
	}
	return count
}

// Account holds the portal "whoami" answer.
type Account struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Raw       json.RawMessage `json:"-"`
}
