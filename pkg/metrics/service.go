package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	metricPrefix = "gazpar_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	measureAccuracy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricPrefix + "measure_accuracy_percent",
			Help: "Share of valid measures returned by the portal",
		},
		[]string{"pce", "kind"},
	)
	measuresStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "measures_stored_total",
			Help: "Measures written to the store by kind",
		},
		[]string{"kind"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "runs_total",
			Help: "Completed runs by result",
		},
		[]string{"result"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	lastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		},
	)
	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "publish_total",
			Help: "Publications by target and result",
		},
		[]string{"target", "result"},
	)

	lastRunMu sync.RWMutex
	lastRun   RunStatus
)

// RunStatus describes the last completed run for the status endpoint.
type RunStatus struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Result   string    `json:"result"`
	Pces     int       `json:"pces"`
	Failed   int       `json:"failed"`
}

// Init registers the collectors once, plus gauges reading the store.
// db may be nil.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			measureAccuracy,
			measuresStored,
			runsTotal,
			runDuration,
			lastRunTimestamp,
			publishTotal,
		)
		if db != nil {
			registerDBMetrics(db)
		}
	})
}

func registerDBMetrics(db *sql.DB) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_measures",
			Help: "Measures held in the store",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM measures")
		},
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_pces",
			Help: "Meter points held in the store",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM pces")
		},
	))
}

func queryCount(db *sql.DB, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		log.WithError(err).Debug("Metrics query failed")
		return 0
	}
	return float64(count)
}

func SetAccuracy(pce, kind string, pct int) {
	measureAccuracy.WithLabelValues(pce, kind).Set(float64(pct))
}

func AddStored(kind string, n int) {
	measuresStored.WithLabelValues(kind).Add(float64(n))
}

func ObservePublish(target string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	publishTotal.WithLabelValues(target, result).Inc()
}

func ObserveRun(status RunStatus, duration time.Duration) {
	runsTotal.WithLabelValues(status.Result).Inc()
	runDuration.Observe(duration.Seconds())
	lastRunTimestamp.Set(float64(status.Started.Add(duration).Unix()))

	status.Duration = duration.Round(time.Millisecond).String()
	lastRunMu.Lock()
	lastRun = status
	lastRunMu.Unlock()
}

// LastRun returns ok=false before the first run completed.
func LastRun() (RunStatus, bool) {
	lastRunMu.RLock()
	defer lastRunMu.RUnlock()
	return lastRun, lastRun.ID != ""
}
