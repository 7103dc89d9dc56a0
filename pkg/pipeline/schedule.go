package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const scheduleLayout = "15:04"

// NextRun returns the next occurrence of the daily HH:MM time after now,
// in the location of now.
func NextRun(now time.Time, hhmm string) (time.Time, error) {
	at, err := time.Parse(scheduleLayout, hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule time %q: %w", hhmm, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// Daily calls run every day at hhmm until ctx is done.
func Daily(ctx context.Context, hhmm string, run func(context.Context)) error {
	for {
		next, err := NextRun(time.Now(), hhmm)
		if err != nil {
			return err
		}
		log.WithField("at", next.Format("2006-01-02 15:04")).Info("Next run scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			run(ctx)
		}
	}
}
