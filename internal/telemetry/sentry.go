package telemetry

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// SetupSentry initialises error reporting. An empty DSN leaves the SDK
// disabled and the returned flush is a no-op.
func SetupSentry(cfg SentryConfig) (func(time.Duration), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return func(time.Duration) {}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	}); err != nil {
		return nil, err
	}

	return func(timeout time.Duration) { sentry.Flush(timeout) }, nil
}
