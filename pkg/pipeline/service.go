// Package pipeline runs one collection pass: portal, store, aggregates,
// prices and every publication target.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/aggregator"
	"github.com/NotCoffee418/gazpar_bridge/pkg/config"
	"github.com/NotCoffee418/gazpar_bridge/pkg/hass"
	"github.com/NotCoffee418/gazpar_bridge/pkg/logging"
	"github.com/NotCoffee418/gazpar_bridge/pkg/meterdb"
	"github.com/NotCoffee418/gazpar_bridge/pkg/metrics"
	"github.com/NotCoffee418/gazpar_bridge/pkg/mqttpub"
	"github.com/NotCoffee418/gazpar_bridge/pkg/normalizer"
	"github.com/NotCoffee418/gazpar_bridge/pkg/portal"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pricing"
	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const whoamiKey = "whoami"

// Statistics receives the whole store as long term statistics.
type Statistics interface {
	Import(ctx context.Context, points []types.MeterPoint) error
	Delete(ctx context.Context, points []types.MeterPoint) error
}

// TimeSeries receives the whole store as time series points.
type TimeSeries interface {
	WritePce(ctx context.Context, p types.MeterPoint) error
	WritePrices(ctx context.Context, p types.MeterPoint, book *pricing.Book, now time.Time) (int, error)
	WriteMeasures(ctx context.Context, p types.MeterPoint) (int, error)
	WriteThresholds(ctx context.Context, p types.MeterPoint) (int, error)
}

type Runner struct {
	cfg       *config.Config
	session   portal.Session
	store     *meterdb.Store
	book      *pricing.Book
	publisher mqttpub.Publisher
	lts       Statistics
	series    TimeSeries
	now       func() time.Time
	maxTries  int
	retryBase time.Duration
}

type Option func(*Runner)

// WithPublisher enables the standalone and discovery publications.
func WithPublisher(p mqttpub.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithStatistics(s Statistics) Option {
	return func(r *Runner) { r.lts = s }
}

func WithTimeSeries(ts TimeSeries) Option {
	return func(r *Runner) { r.series = ts }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithRetry(maxTries int, base time.Duration) Option {
	return func(r *Runner) {
		r.maxTries = maxTries
		r.retryBase = base
	}
}

func New(cfg *config.Config, session portal.Session, store *meterdb.Store, book *pricing.Book, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		session:   session,
		store:     store,
		book:      book,
		now:       time.Now,
		maxTries:  portal.DefaultMaxTries,
		retryBase: portal.DefaultRetryBase,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass. A failing pce is logged and counted, the others
// go on. The returned error is set when the pass could not start or when
// every pce failed.
func (r *Runner) Run(ctx context.Context) (status metrics.RunStatus, err error) {
	status = metrics.RunStatus{ID: uuid.NewString(), Started: r.now()}
	logger := log.WithField("run", status.ID)
	defer func() {
		status.Result = metrics.ResultSuccess
		if err != nil {
			status.Result = metrics.ResultError
		}
		duration := r.now().Sub(status.Started)
		metrics.ObserveRun(status, duration)
		logger.WithFields(log.Fields{
			"result":   status.Result,
			"pces":     status.Pces,
			"failed":   status.Failed,
			"duration": duration,
		}).Info("Run finished")
	}()

	weekStart, err := r.cfg.WeekStart()
	if err != nil {
		return status, err
	}
	startDate, err := types.ParseDate(r.cfg.Portal.StartDate)
	if err != nil {
		return status, fmt.Errorf("%w: portal start date %q", config.ErrInvalidOption, r.cfg.Portal.StartDate)
	}

	r.logStoreStats(ctx, logger)

	logging.Banner("Portal connection")
	creds := portal.Credentials{Username: r.cfg.Portal.Username, Password: r.cfg.Portal.Password}
	account, err := portal.LoginWithRetry(ctx, r.session, creds, r.maxTries, r.retryBase)
	if err != nil {
		return status, fmt.Errorf("portal login: %w", err)
	}
	if data, err := json.Marshal(account); err == nil {
		if err := r.store.SetConfig(ctx, whoamiKey, string(data)); err != nil {
			logger.WithError(err).Warn("Unable to store account")
		}
	}

	points, err := r.session.MeterPoints(ctx)
	if err != nil {
		return status, fmt.Errorf("list pces: %w", err)
	}
	status.Pces = len(points)
	logger.WithField("count", len(points)).Info("Pces found")

	agg := aggregator.New(r.store, weekStart, r.cfg.Run.ThresholdPercentage)
	for _, p := range points {
		plog := logger.WithFields(log.Fields{"pce": p.ID, "alias": p.Alias})
		logging.Banner(fmt.Sprintf("Pce %s (%s)", p.ID, p.Alias))

		report, err := r.collect(ctx, plog, agg, p, startDate)
		if err != nil {
			status.Failed++
			plog.WithError(err).Error("Unable to collect pce")
			report = mqttpub.Report{Point: p, Now: r.now()}
		}
		r.publish(plog, report)
	}

	r.exportStore(ctx, logger)

	if status.Pces > 0 && status.Failed == status.Pces {
		return status, errors.New("every pce failed")
	}
	return status, nil
}

// collect fetches, stores, prices and aggregates one pce.
func (r *Runner) collect(ctx context.Context, logger *log.Entry, agg *aggregator.Aggregator, p types.MeterPoint, startDate time.Time) (mqttpub.Report, error) {
	now := r.now()
	report := mqttpub.Report{Point: p, Now: now}

	if err := r.store.UpsertMeterPoint(ctx, p); err != nil {
		return report, fmt.Errorf("store pce: %w", err)
	}

	start, end := portal.FetchRange(startDate, now)
	logger.WithField("range", fmt.Sprintf("%s..%s", types.FormatDate(start), types.FormatDate(end))).Info("Fetching measures")

	for _, kind := range []types.MeasureKind{types.Informative, types.Published} {
		last, err := r.collectMeasures(ctx, logger, p.ID, kind, start, end)
		if err != nil {
			if kind == types.Informative {
				return report, err
			}
			logger.WithError(err).Warn("Unable to collect published measures")
			continue
		}
		if kind == types.Informative {
			report.LastInformative = last
		} else {
			report.LastPublished = last
		}
	}

	if err := r.collectThresholds(ctx, logger, p.ID); err != nil {
		logger.WithError(err).Warn("Unable to collect thresholds")
	}

	result, err := r.book.Apply(ctx, r.store, p.ID)
	if err != nil {
		logger.WithError(err).Warn("Unable to price measures")
	} else {
		logger.WithFields(log.Fields{
			"tariffed":  result.Tariffed,
			"defaulted": result.Defaulted,
			"unpriced":  result.Unpriced,
		}).Info("Measures priced")
	}

	if report.LastInformative == nil {
		logger.Warn("No valid informative measure, aggregates skipped")
		return report, nil
	}
	snapshot, err := agg.Snapshot(ctx, p.ID, types.Informative, now)
	if err != nil {
		return report, fmt.Errorf("aggregate: %w", err)
	}
	report.Snapshot = snapshot
	return report, nil
}

// collectMeasures returns the last valid measure of the fetched range.
func (r *Runner) collectMeasures(ctx context.Context, logger *log.Entry, pce string, kind types.MeasureKind, start, end time.Time) (*types.Measure, error) {
	raws, err := r.session.Measures(ctx, pce, kind, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s measures: %w", kind, err)
	}

	measures := make([]types.Measure, 0, len(raws))
	for _, raw := range raws {
		m, err := normalizer.Measure(pce, kind, raw)
		if err != nil {
			logger.WithError(err).Warn("Measure skipped")
			continue
		}
		measures = append(measures, m)
	}

	valid, total, pct := normalizer.Accuracy(measures, kind)
	metrics.SetAccuracy(pce, string(kind), pct)
	logger.WithFields(log.Fields{
		"kind":     kind,
		"valid":    valid,
		"total":    total,
		"accuracy": pct,
	}).Info("Measures fetched")

	stored, err := r.store.UpsertMeasures(ctx, measures)
	if err != nil {
		return nil, fmt.Errorf("store %s measures: %w", kind, err)
	}
	metrics.AddStored(string(kind), stored)

	last, ok := normalizer.LastValid(measures, kind)
	if !ok {
		return nil, nil
	}
	return &last, nil
}

func (r *Runner) collectThresholds(ctx context.Context, logger *log.Entry, pce string) error {
	raws, err := r.session.Thresholds(ctx, pce)
	if err != nil {
		return fmt.Errorf("fetch thresholds: %w", err)
	}
	thresholds := make([]types.Threshold, 0, len(raws))
	for _, raw := range raws {
		thresholds = append(thresholds, normalizer.Threshold(pce, raw))
	}
	valid := normalizer.ValidThresholds(thresholds)
	if len(valid) < len(thresholds) {
		logger.WithField("skipped", len(thresholds)-len(valid)).Warn("Invalid thresholds skipped")
	}
	stored, err := r.store.UpsertThresholds(ctx, valid)
	if err != nil {
		return fmt.Errorf("store thresholds: %w", err)
	}
	logger.WithField("count", stored).Info("Thresholds stored")
	return nil
}

func (r *Runner) publish(logger *log.Entry, report mqttpub.Report) {
	if r.publisher == nil {
		return
	}
	if r.cfg.Publish.Standalone {
		err := mqttpub.PublishStandalone(r.publisher, r.cfg.Mqtt.Topic, report)
		metrics.ObservePublish("standalone", err)
		if err != nil {
			logger.WithError(err).Error("Standalone publication failed")
		}
	}
	if r.cfg.Publish.Discovery {
		err := hass.PublishDiscovery(r.publisher, r.cfg.Publish.DiscoveryPrefix, r.cfg.Publish.DeviceName, report)
		metrics.ObservePublish("discovery", err)
		if err != nil {
			logger.WithError(err).Error("Discovery publication failed")
		}
	}
}

// exportStore sends the stored history to the statistics and time series
// targets.
func (r *Runner) exportStore(ctx context.Context, logger *log.Entry) {
	if r.lts == nil && r.series == nil {
		return
	}
	points, err := r.store.LoadAll(ctx)
	if err != nil {
		logger.WithError(err).Error("Unable to load store for export")
		return
	}

	if r.lts != nil {
		var err error
		if r.cfg.Hass.LtsDelete {
			logging.Banner("Delete Home Assistant long term statistics")
			err = r.lts.Delete(ctx, points)
		} else {
			logging.Banner("Home Assistant long term statistics")
			err = r.lts.Import(ctx, points)
		}
		metrics.ObservePublish("lts", err)
		if err != nil {
			logger.WithError(err).Error("Long term statistics failed")
		}
	}

	if r.series != nil {
		logging.Banner("InfluxDB")
		for _, p := range points {
			err := r.writeSeries(ctx, p)
			metrics.ObservePublish("influx", err)
			if err != nil {
				logger.WithError(err).WithField("pce", p.ID).Error("InfluxDB write failed")
			}
		}
	}
}

func (r *Runner) writeSeries(ctx context.Context, p types.MeterPoint) error {
	var errs []error
	if err := r.series.WritePce(ctx, p); err != nil {
		errs = append(errs, fmt.Errorf("pce: %w", err))
	}
	if _, err := r.series.WritePrices(ctx, p, r.book, r.now()); err != nil {
		errs = append(errs, fmt.Errorf("prices: %w", err))
	}
	if _, err := r.series.WriteMeasures(ctx, p); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.series.WriteThresholds(ctx, p); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) logStoreStats(ctx context.Context, logger *log.Entry) {
	for _, kind := range []types.MeasureKind{types.Informative, types.Published} {
		stats, err := r.store.Stats(ctx, kind)
		if err != nil {
			logger.WithError(err).Warn("Unable to read store statistics")
			return
		}
		fields := log.Fields{"kind": kind, "rows": stats.Rows, "pces": stats.Pces}
		if stats.FirstDate != nil && stats.LastDate != nil {
			fields["from"] = types.FormatDate(*stats.FirstDate)
			fields["to"] = types.FormatDate(*stats.LastDate)
		}
		logger.WithFields(fields).Info("Stored measures")
	}
}
