// Gazpar bridge collects gas meter readings from the GRDF portal, stores
// them and publishes them to MQTT, Home Assistant and InfluxDB.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/gazpar_bridge/pkg/config"
	"github.com/NotCoffee418/gazpar_bridge/pkg/hass"
	"github.com/NotCoffee418/gazpar_bridge/pkg/influx"
	"github.com/NotCoffee418/gazpar_bridge/pkg/logging"
	"github.com/NotCoffee418/gazpar_bridge/pkg/meterdb"
	"github.com/NotCoffee418/gazpar_bridge/pkg/metrics"
	"github.com/NotCoffee418/gazpar_bridge/pkg/mqttpub"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pathing"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pipeline"
	"github.com/NotCoffee418/gazpar_bridge/pkg/portal"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pricing"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path of the TOML config file")
	once := flag.Bool("once", false, "run once and exit, even when a schedule is set")
	flag.Parse()

	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Run.Debug)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).WithField("config", *cfgPath).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	store, err := meterdb.Open(cfg.Database.Path, cfg.Database.Reinit)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer store.Close()

	metrics.Init(store.DB())
	if cfg.Run.MetricsAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Run.MetricsAddress); err != nil {
				log.WithError(err).Error("Metrics listener stopped")
			}
		}()
	}

	book, err := pricing.Load(cfg.Prices.Path, pricing.Rates{
		KwhPrice: cfg.Prices.KwhDefault,
		FixPrice: cfg.Prices.FixDefault,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to load prices")
	}

	session, err := portal.NewHTTPSession()
	if err != nil {
		log.WithError(err).Fatal("Failed to create portal session")
	}

	var opts []pipeline.Option

	// Publication targets are optional, a dead broker only disables them.
	if cfg.Publish.Standalone || cfg.Publish.Discovery {
		client, err := mqttpub.Connect(mqttpub.Options{
			Host:     cfg.Mqtt.Host,
			Port:     cfg.Mqtt.Port,
			ClientID: cfg.Mqtt.ClientID,
			Username: cfg.Mqtt.Username,
			Password: cfg.Mqtt.Password,
			Qos:      cfg.Mqtt.Qos,
			Retain:   cfg.Mqtt.Retain,
			Ssl:      cfg.Mqtt.Ssl,
		})
		if err != nil {
			log.WithError(err).WithField("broker", cfg.MqttBroker()).Error("MQTT unavailable, publications disabled")
		} else {
			defer client.Close()
			opts = append(opts, pipeline.WithPublisher(client))
		}
	}

	if cfg.Hass.Lts || cfg.Hass.LtsDelete {
		opts = append(opts, pipeline.WithStatistics(hass.NewLTS(hass.LTSConfig{
			Host:          cfg.Hass.Host,
			Token:         cfg.Hass.Token,
			StatisticsURI: cfg.Hass.StatisticsURI,
			DeviceName:    cfg.Publish.DeviceName,
			WS: hass.WSOptions{
				Ssl:        cfg.Hass.Ssl,
				SslGateway: cfg.Hass.SslGateway,
				CertFile:   cfg.Hass.SslCertfile,
				KeyFile:    cfg.Hass.SslKeyfile,
			},
		})))
	}

	if cfg.Influx.Enable {
		writer := influx.New(cfg.InfluxURL(), cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, cfg.Influx.MaxErrors)
		defer writer.Close()
		if err := writer.Ping(ctx); err != nil {
			log.WithError(err).WithField("url", cfg.InfluxURL()).Warn("InfluxDB does not answer")
		}
		opts = append(opts, pipeline.WithTimeSeries(writer))
	}

	runner := pipeline.New(cfg, session, store, book, opts...)
	run := func(ctx context.Context) {
		if _, err := runner.Run(ctx); err != nil {
			log.WithError(err).Error("Run failed")
		}
	}

	run(ctx)
	if *once || cfg.Run.ScheduleTime == "" {
		return
	}
	if err := pipeline.Daily(ctx, cfg.Run.ScheduleTime, run); err != nil {
		log.WithError(err).Error("Scheduler stopped")
	}
	log.Info("Shutting down")
}
