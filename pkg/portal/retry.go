package portal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxTries  = 14
	DefaultRetryBase = 20 * time.Second
)

// RetryWait is the pause after the given failed try: base * try^2.5.
func RetryWait(base time.Duration, try int) time.Duration {
	return time.Duration(float64(base) * math.Pow(float64(try), 2.5))
}

// LoginWithRetry logs in and checks the account, retrying with a growing
// pause until maxTries is reached.
func LoginWithRetry(ctx context.Context, session Session, creds Credentials, maxTries int, base time.Duration) (*types.Account, error) {
	var errs []error
	for try := 1; try <= maxTries; try++ {
		account, err := login(ctx, session, creds)
		if err == nil {
			log.WithField("try", try).Info("Logged in to portal")
			return account, nil
		}
		errs = append(errs, fmt.Errorf("try %d: %w", try, err))
		if try == maxTries {
			break
		}

		wait := RetryWait(base, try)
		log.WithError(err).WithFields(log.Fields{
			"try":  try,
			"max":  maxTries,
			"wait": wait,
		}).Warn("Portal login failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(append(errs, ctx.Err())...)
		case <-timer.C:
		}
	}
	return nil, errors.Join(append([]error{ErrNotConnected}, errs...)...)
}

func login(ctx context.Context, session Session, creds Credentials) (*types.Account, error) {
	ok, err := session.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("credentials refused")
	}
	return session.Whoami(ctx)
}

// FetchRange returns the days to request measures for: from the configured
// start date, no further back than the portal history, up to today.
func FetchRange(startDate time.Time, now time.Time) (time.Time, time.Time) {
	today := types.DateOf(now)
	oldest := types.DateOf(today.AddDate(-3, 0, 0))
	start := types.DateOf(startDate)
	if start.Before(oldest) {
		start = oldest
	}
	return start, today
}
