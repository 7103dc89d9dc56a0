package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
)

const (
	statisticSource = "gazpar"
	restTimeout     = 30 * time.Second
)

// Statistic id suffixes
const (
	SuffixVolume          = "consumption_stat"
	SuffixEnergy          = "consumption_kwh_stat"
	SuffixCost            = "consumption_cost_stat"
	SuffixPublishedVolume = "consumption_pub_stat"
	SuffixPublishedEnergy = "consumption_kwh_pub_stat"
	SuffixPublishedCost   = "consumption_pub_cost_stat"
)

// StatisticsClient is the subset of the websocket API used for statistics.
type StatisticsClient interface {
	ImportStatistics(ctx context.Context, s Series) error
	ListStatisticIDs(ctx context.Context) ([]string, error)
	ClearStatistics(ctx context.Context, ids []string) error
	Close() error
}

type LTSConfig struct {
	Host          string
	Token         string
	StatisticsURI string
	DeviceName    string
	WS            WSOptions
}

// LTS writes the stored measures as Home Assistant long term statistics.
type LTS struct {
	cfg  LTSConfig
	dial func(ctx context.Context) (StatisticsClient, error)
	http *http.Client
}

func NewLTS(cfg LTSConfig) *LTS {
	l := &LTS{cfg: cfg, http: &http.Client{Timeout: restTimeout}}
	l.dial = func(ctx context.Context) (StatisticsClient, error) {
		return DialWS(ctx, WebsocketURL(cfg.Host, cfg.WS.Ssl), cfg.Token, cfg.WS)
	}
	return l
}

// StatisticID builds the external statistic id of a pce series.
func StatisticID(deviceName, alias, suffix string) string {
	return fmt.Sprintf("%s:%s_%s_%s", statisticSource, underscore(deviceName), underscore(alias), suffix)
}

func underscore(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "_")
}

// BuildSeries turns the measures of a pce into cumulative series: volume,
// energy and cost, for both kinds. Measures without a gas date are skipped,
// missing values count as 0.
func BuildSeries(deviceName string, p types.MeterPoint) []Series {
	measures := make([]types.Measure, 0, len(p.Measures))
	for _, m := range p.Measures {
		if m.GasDate != nil {
			measures = append(measures, m)
		}
	}
	slices.SortStableFunc(measures, func(a, b types.Measure) int {
		return a.GasDate.Compare(*b.GasDate)
	})

	build := func(kind types.MeasureKind, suffix, unit, name string, value func(types.Measure) float64) Series {
		s := Series{Metadata: StatisticMetadata{
			HasSum:      true,
			Name:        strings.TrimSpace(p.Alias + " " + name),
			StatisticID: StatisticID(deviceName, p.Alias, suffix),
			Unit:        unit,
			Source:      statisticSource,
		}}
		sum := 0.0
		for _, m := range measures {
			if m.Kind != kind {
				continue
			}
			v := value(m)
			sum += v
			s.Stats = append(s.Stats, Statistic{Start: *m.GasDate, State: v, Sum: sum})
		}
		return s
	}

	return []Series{
		build(types.Informative, SuffixVolume, "m³", "gas", grossVolume),
		build(types.Informative, SuffixEnergy, "kWh", "energy", grossEnergy),
		build(types.Informative, SuffixCost, "EUR", "cost", price),
		build(types.Published, SuffixPublishedVolume, "m³", "published gas", grossVolume),
		build(types.Published, SuffixPublishedEnergy, "kWh", "published energy", grossEnergy),
		build(types.Published, SuffixPublishedCost, "EUR", "published cost", price),
	}
}

func grossVolume(m types.Measure) float64 { return valueOr(m.VolumeGross) }
func grossEnergy(m types.Measure) float64 { return valueOr(m.EnergyGross) }
func price(m types.Measure) float64       { return valueOr(m.Price) }

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// StatisticIDs lists every id BuildSeries produces for a pce.
func StatisticIDs(deviceName, alias string) []string {
	suffixes := []string{SuffixVolume, SuffixEnergy, SuffixCost, SuffixPublishedVolume, SuffixPublishedEnergy, SuffixPublishedCost}
	ids := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		ids = append(ids, StatisticID(deviceName, alias, s))
	}
	return ids
}

// Import sends the series of every pce over the websocket. When the
// websocket fails, the volume series are posted to the REST service instead.
func (l *LTS) Import(ctx context.Context, points []types.MeterPoint) error {
	err := l.importWS(ctx, points)
	if err == nil {
		return nil
	}
	log.WithError(err).Error("Unable to import statistics over websocket, retrying with the REST API")
	if restErr := l.importREST(ctx, points); restErr != nil {
		return errors.Join(err, restErr)
	}
	return nil
}

func (l *LTS) importWS(ctx context.Context, points []types.MeterPoint) error {
	client, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, p := range points {
		for _, s := range BuildSeries(l.cfg.DeviceName, p) {
			log.WithFields(log.Fields{
				"pce":          p.ID,
				"statistic_id": s.Metadata.StatisticID,
				"rows":         len(s.Stats),
			}).Debug("Importing statistics")
			if err := client.ImportStatistics(ctx, s); err != nil {
				return fmt.Errorf("import %s: %w", s.Metadata.StatisticID, err)
			}
		}
		log.WithField("pce", p.ID).Info("Long term statistics imported")
	}
	return nil
}

type restPayload struct {
	StatisticMetadata
	Stats []Statistic `json:"stats"`
}

// The REST service only receives volumes, summed as the meter index.
func (l *LTS) importREST(ctx context.Context, points []types.MeterPoint) error {
	var errs []error
	for _, p := range points {
		for _, kind := range []types.MeasureKind{types.Informative, types.Published} {
			suffix := SuffixVolume
			if kind == types.Published {
				suffix = SuffixPublishedVolume
			}
			payload := restPayload{StatisticMetadata: StatisticMetadata{
				HasSum:      true,
				StatisticID: StatisticID(l.cfg.DeviceName, p.Alias, suffix),
				Unit:        "m³",
				Source:      statisticSource,
			}, Stats: []Statistic{}}
			for _, m := range p.Measures {
				if m.Kind != kind || m.GasDate == nil || m.EndIndex == nil {
					continue
				}
				payload.Stats = append(payload.Stats, Statistic{
					Start: *m.GasDate,
					State: valueOr(m.VolumeGross),
					Sum:   float64(*m.EndIndex),
				})
			}
			if err := l.post(ctx, payload); err != nil {
				errs = append(errs, fmt.Errorf("post %s: %w", payload.StatisticID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (l *LTS) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	apiURL := strings.TrimSuffix(l.cfg.Host, "/") + l.cfg.StatisticsURI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Delete clears every statistic of the given pces that the recorder knows.
func (l *LTS) Delete(ctx context.Context, points []types.MeterPoint) error {
	client, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	known, err := client.ListStatisticIDs(ctx)
	if err != nil {
		return fmt.Errorf("list statistics: %w", err)
	}

	var ids []string
	for _, p := range points {
		for _, id := range StatisticIDs(l.cfg.DeviceName, p.Alias) {
			if slices.Contains(known, id) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		log.Info("No long term statistics to delete")
		return nil
	}
	for _, id := range ids {
		log.WithField("statistic_id", id).Info("Deleting long term statistics")
	}
	return client.ClearStatistics(ctx, ids)
}
