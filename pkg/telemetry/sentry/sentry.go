// Package sentry reports failures recovered by the engine. A Reporter always logs; it also
// sends to Sentry when it was created with a DSN.
package sentry

import (
	"context"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Dsn         string
	Environment string
	Release     string

	// Tags are attached to every report, under the per-failure tags.
	Tags map[string]string
}

// Reporter is the exception sink for a running engine. Each failure is tagged with the reason
// it was reported for and with the module, command or event it came from.
type Reporter struct {
	log zerolog.Logger
	hub *sentrygo.Hub // nil when Sentry is disabled
}

var _ logsink.ExceptionSink = (*Reporter)(nil)

// NewReporter creates a reporter. An empty DSN gives one that only logs.
func NewReporter(log zerolog.Logger, opt Options) (*Reporter, error) {
	if opt.Dsn == "" {
		return &Reporter{log: log}, nil
	}
	return newReporter(log, sentrygo.ClientOptions{
		Dsn:         opt.Dsn,
		Environment: opt.Environment,
		Release:     opt.Release,
		Tags:        opt.Tags,
	})
}

func newReporter(log zerolog.Logger, opts sentrygo.ClientOptions) (*Reporter, error) {
	client, err := sentrygo.NewClient(opts)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize sentry")
	}
	return &Reporter{log: log, hub: sentrygo.NewHub(client, sentrygo.NewScope())}, nil
}

// Enabled reports whether failures are sent to Sentry.
func (r *Reporter) Enabled() bool { return r.hub != nil }

func (r *Reporter) OnException(reason string, err error) {
	r.Capture(context.Background(), reason, err)
}

// Capture logs err and sends it with reason and the tags attached by logsink.WithTag. A span
// in ctx adds its trace and span IDs.
func (r *Reporter) Capture(ctx context.Context, reason string, err error) {
	if err == nil {
		return
	}
	tags := logsink.Tags(err)
	tags["reason"] = reason
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		tags["trace_id"] = spanCtx.TraceID().String()
		tags["span_id"] = spanCtx.SpanID().String()
	}

	ev := r.log.Error()
	for key, value := range tags {
		ev = ev.Str(key, value)
	}
	ev.Str("stack", eris.ToString(err, true)).Msg("exception")

	if r.hub == nil {
		return
	}
	r.hub.WithScope(func(scope *sentrygo.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// RecoverAndFlush reports a panic in progress and flushes buffered events. It must be called
// directly by defer. With repanic the panic continues after the flush.
func (r *Reporter) RecoverAndFlush(repanic bool) {
	if r.hub == nil {
		return
	}
	if p := recover(); p != nil {
		r.hub.Recover(p)
		r.hub.Flush(5 * time.Second)
		if repanic {
			panic(p)
		}
		return
	}
	r.hub.Flush(5 * time.Second)
}

// Flush waits for buffered events until ctx ends or timeout passes, whichever is first.
func (r *Reporter) Flush(ctx context.Context, timeout time.Duration) {
	if r.hub == nil {
		return
	}
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	r.hub.Flush(timeout)
}
