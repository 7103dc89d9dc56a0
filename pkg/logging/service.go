// Logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup must be called once on startup, before anything logs.
func Setup(debug bool) {
	SetupWithOutput(os.Stdout, debug)
}

func SetupWithOutput(out io.Writer, debug bool) {
	log.SetOutput(out)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.InfoLevel)
}

// Banner logs a step title the way every run step is announced.
func Banner(title string) {
	log.Info("-----------------------------------------------------------")
	log.Infof("# %s", title)
	log.Info("-----------------------------------------------------------")
}
