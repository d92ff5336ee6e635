package internal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Retry runs op with exponential backoff until it succeeds, returns a
// permanent error, ctx ends, or maxElapsed passes.
func Retry[T any](ctx context.Context, maxElapsed time.Duration, log logrus.FieldLogger, op func() (T, error)) (T, error) {
	if maxElapsed <= 0 {
		maxElapsed = 5 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxInterval = maxElapsed / 2
	b.MaxElapsedTime = maxElapsed
	return backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		log.WithError(err).WithField("retry_in", d).Warn("upstream fetch failed, backing off")
	})
}
