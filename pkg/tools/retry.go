package tools

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds retries of network-bound commands (clones, pulls,
// script downloads).
type RetryPolicy struct {
	// Attempts is the total number of tries. Zero or one disables retries.
	Attempts uint `yaml:"attempts" json:"attempts"`

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
}

// DefaultRetryPolicy retries three times starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialInterval: 2 * time.Second}
}

// NoRetry runs operations exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

func (p RetryPolicy) do(ctx context.Context, what string, op func() error) error {
	if p.Attempts <= 1 {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msgf("%s failed, retrying", what)
		}),
	)
	return err
}
