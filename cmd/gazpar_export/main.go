// Gazpar export dumps the stored meter points, measures and thresholds to
// an xlsx workbook.
package main

import (
	"context"
	"flag"

	"github.com/NotCoffee418/gazpar_bridge/pkg/config"
	"github.com/NotCoffee418/gazpar_bridge/pkg/export"
	"github.com/NotCoffee418/gazpar_bridge/pkg/logging"
	"github.com/NotCoffee418/gazpar_bridge/pkg/meterdb"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path of the TOML config file")
	out := flag.String("out", "gazpar.xlsx", "workbook to write")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Run.Debug)

	store, err := meterdb.Open(cfg.Database.Path, false)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer store.Close()

	points, err := store.LoadAll(context.Background())
	if err != nil {
		log.WithError(err).Fatal("Failed to load stored data")
	}

	f, err := export.Workbook(points)
	if err != nil {
		log.WithError(err).Fatal("Failed to build workbook")
	}
	defer f.Close()

	if err := f.SaveAs(*out); err != nil {
		log.WithError(err).WithField("path", *out).Fatal("Failed to save workbook")
	}
	log.WithFields(log.Fields{"path": *out, "pces": len(points)}).Info("Export written")
}
