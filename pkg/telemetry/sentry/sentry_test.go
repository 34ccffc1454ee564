package sentry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// newCapturingReporter returns a reporter whose events are kept in memory instead of sent.
func newCapturingReporter(t *testing.T, log zerolog.Logger) (*Reporter, *[]*sentrygo.Event) {
	t.Helper()
	var events []*sentrygo.Event
	r, err := newReporter(log, sentrygo.ClientOptions{
		Dsn:     "https://public@sentry.example.com/1",
		Release: "sledgehammer@1.2.3",
		Tags:    map[string]string{"region": "eu"},
		BeforeSend: func(ev *sentrygo.Event, _ *sentrygo.EventHint) *sentrygo.Event {
			events = append(events, ev)
			return nil
		},
	})
	require.NoError(t, err)
	return r, &events
}

func TestReporter_LogsWithoutSentry(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r, err := NewReporter(zerolog.New(&buf), Options{})
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.OnException("module update failed", logsink.WithTag(errors.New("boom"), logsink.TagModule, "chat"))
	r.OnException("ignored", nil)
	r.Flush(context.Background(), time.Second)

	out := buf.String()
	assert.Contains(t, out, `"reason":"module update failed"`)
	assert.Contains(t, out, `"module":"chat"`)
	assert.Contains(t, out, "boom")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestReporter_TagsEvents(t *testing.T) {
	t.Parallel()
	r, events := newCapturingReporter(t, zerolog.Nop())
	require.True(t, r.Enabled())

	err := logsink.WithTag(errors.New("boom"), logsink.TagCommand, "kick")
	r.OnException("command handler failed", err)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, "command handler failed", ev.Tags["reason"])
	assert.Equal(t, "kick", ev.Tags[logsink.TagCommand])
	assert.Equal(t, "eu", ev.Tags["region"])
	assert.Equal(t, "sledgehammer@1.2.3", ev.Release)
	assert.NotContains(t, ev.Tags, "trace_id")
}

func TestReporter_TagsTraceFromContext(t *testing.T) {
	t.Parallel()
	r, events := newCapturingReporter(t, zerolog.Nop())

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	r.Capture(ctx, "endpoint handler panicked", errors.New("boom"))

	require.Len(t, *events, 1)
	assert.Equal(t, spanCtx.TraceID().String(), (*events)[0].Tags["trace_id"])
	assert.Equal(t, spanCtx.SpanID().String(), (*events)[0].Tags["span_id"])
}

func TestReporter_ScopesDoNotLeak(t *testing.T) {
	t.Parallel()
	r, events := newCapturingReporter(t, zerolog.Nop())

	r.OnException("module load failed", logsink.WithTag(errors.New("a"), logsink.TagModule, "chat"))
	r.OnException("event handler failed", logsink.WithTag(errors.New("b"), logsink.TagEvent, "chat"))

	require.Len(t, *events, 2)
	assert.NotContains(t, (*events)[1].Tags, logsink.TagModule)
	assert.Equal(t, "event handler failed", (*events)[1].Tags["reason"])
}
