// Package influx writes meter points, prices, measures and thresholds to an
// InfluxDB v2 bucket.
package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/pricing"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxErrors is the number of consecutive failed writes tolerated in a
// series before the rest of it is skipped.
const DefaultMaxErrors = 10

// PointWriter is satisfied by the blocking write API of the client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Writer struct {
	client    influxdb2.Client
	api       PointWriter
	maxErrors int
}

// New connects to url. maxErrors <= 0 uses DefaultMaxErrors.
func New(url, token, org, bucket string, maxErrors int) *Writer {
	client := influxdb2.NewClient(url, token)
	w := NewWithAPI(client.WriteAPIBlocking(org, bucket), maxErrors)
	w.client = client
	return w
}

// NewWithAPI writes through api, without owning a client.
func NewWithAPI(api PointWriter, maxErrors int) *Writer {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Writer{api: api, maxErrors: maxErrors}
}

// Ping checks that the server answers.
func (w *Writer) Ping(ctx context.Context) error {
	if w.client == nil {
		return nil
	}
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb did not answer ping")
	}
	return nil
}

func (w *Writer) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

func (w *Writer) WritePce(ctx context.Context, p types.MeterPoint) error {
	fields := map[string]any{
		"state":       p.State,
		"frequency":   p.Frequency,
		"owner_name":  p.OwnerName,
		"postal_code": p.PostalCode,
	}
	if p.ActivationDate != nil {
		fields["activation_date"] = types.FormatDate(*p.ActivationDate)
	}
	point := influxdb2.NewPoint("pce", map[string]string{"pce_id": p.ID, "alias": p.Alias}, fields, time.Now())
	return w.api.WritePoint(ctx, point)
}

// WritePrices writes the tariffs of a pce covering today, or the default
// rates when none does. It returns the number of points written.
func (w *Writer) WritePrices(ctx context.Context, p types.MeterPoint, book *pricing.Book, now time.Time) (int, error) {
	today := types.DateOf(now)
	var points []*write.Point
	for _, t := range book.Tariffs(p.ID) {
		if t.Covers(today) {
			points = append(points, pricePoint(p, t.Rates(), false, now))
		}
	}
	if len(points) == 0 {
		log.WithField("pce", p.ID).Warn("No tariff covers today, writing default price")
		points = append(points, pricePoint(p, book.Defaults(), true, now))
	}
	return w.writeSeries(ctx, p.ID, "price", points)
}

func pricePoint(p types.MeterPoint, r pricing.Rates, isDefault bool, now time.Time) *write.Point {
	return influxdb2.NewPoint("price",
		map[string]string{"pce_id": p.ID, "alias": p.Alias},
		map[string]any{"kwh_price": r.KwhPrice, "fix_price": r.FixPrice, "default": isDefault},
		now)
}

// WriteMeasures writes the informative measures of a pce.
func (w *Writer) WriteMeasures(ctx context.Context, p types.MeterPoint) (int, error) {
	var points []*write.Point
	for _, m := range p.Measures {
		if m.Kind != types.Informative || m.GasDate == nil {
			continue
		}
		points = append(points, measurePoint(p, m))
	}
	return w.writeSeries(ctx, p.ID, "measure", points)
}

func measurePoint(p types.MeterPoint, m types.Measure) *write.Point {
	fields := map[string]any{}
	setInt(fields, "start_index", m.StartIndex)
	setInt(fields, "end_index", m.EndIndex)
	setInt(fields, "volume", m.Volume)
	setFloat(fields, "volume_gross", m.VolumeGross)
	setInt(fields, "energy", m.Energy)
	setFloat(fields, "energy_gross", m.EnergyGross)
	setFloat(fields, "temperature", m.Temperature)
	setFloat(fields, "conversion", m.ConversionFactor)
	setFloat(fields, "price", m.Price)
	return influxdb2.NewPoint("measure",
		map[string]string{"pce_id": p.ID, "alias": p.Alias, "type": string(m.Kind)},
		fields, *m.GasDate)
}

func (w *Writer) WriteThresholds(ctx context.Context, p types.MeterPoint) (int, error) {
	var points []*write.Point
	for _, t := range p.Thresholds {
		if !t.IsValid() {
			continue
		}
		points = append(points, influxdb2.NewPoint("threshold",
			map[string]string{"pce_id": p.ID, "alias": p.Alias},
			map[string]any{"energy": *t.Energy},
			*t.Date))
	}
	return w.writeSeries(ctx, p.ID, "threshold", points)
}

// writeSeries writes points one by one and gives up once more than
// maxErrors writes failed in a row.
func (w *Writer) writeSeries(ctx context.Context, pce, name string, points []*write.Point) (int, error) {
	written, failed, consecutive := 0, 0, 0
	var lastErr error
	for _, point := range points {
		if err := w.api.WritePoint(ctx, point); err != nil {
			failed++
			consecutive++
			lastErr = err
			log.WithError(err).WithField("pce", pce).Debugf("Unable to write %s", name)
			if consecutive > w.maxErrors {
				log.WithField("pce", pce).Warnf("Writing %s stopped after %d errors in a row", name, consecutive)
				return written, fmt.Errorf("write %s: %w", name, lastErr)
			}
			continue
		}
		consecutive = 0
		written++
	}
	log.WithField("pce", pce).Infof("%d %s point(s) written", written, name)
	if failed > 0 {
		return written, fmt.Errorf("write %s: %d failed: %w", name, failed, lastErr)
	}
	return written, nil
}

func setInt(fields map[string]any, key string, v *int64) {
	if v != nil {
		fields[key] = *v
	}
}

func setFloat(fields map[string]any, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}
