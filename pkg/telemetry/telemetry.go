// Package telemetry sets up logging, tracing, and error reporting for a sledgehammer
// process.
package telemetry

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Telemetry struct {
	Logger   zerolog.Logger
	Tracer   trace.Tracer
	Reporter *sentry.Reporter

	serviceName string
	shutdown    func(context.Context) error
}

// New reads the environment, applies opts on top, and starts telemetry. Without a release,
// reports use <service>@<version>. Call Shutdown to flush traces and error reports.
func New(opts Options) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load telemetry config")
	}

	options := config.toOptions()
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}
	if options.SentryOptions.Release == "" && options.ServiceVersion != "" {
		options.SentryOptions.Release = options.ServiceName + "@" + options.ServiceVersion
	}

	ctx := context.Background()
	logger := newLogger(options, os.Stdout)
	tr, err := newTracing(ctx, options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to set up tracing")
	}
	reportLog := logger.With().Str("component", options.ServiceName+".exceptions").Logger()
	reporter, err := sentry.NewReporter(reportLog, options.SentryOptions)
	if err != nil {
		return Telemetry{}, errors.Join(err, tr.shutdown(ctx))
	}

	return Telemetry{
		Logger:      logger,
		Tracer:      tr.tracer,
		Reporter:    reporter,
		serviceName: options.ServiceName,
		shutdown:    tr.shutdown,
	}, nil
}

// Shutdown flushes pending error reports and stops the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.Reporter != nil {
		t.Reporter.Flush(ctx, 2*time.Second)
	}
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}
