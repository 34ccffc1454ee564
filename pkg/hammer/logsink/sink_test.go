package logsink_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	records []logsink.Record
}

func (r *recorder) OnLogEntry(rec logsink.Record) {
	r.records = append(r.records, rec)
}

type panicky struct{}

func (panicky) OnLogEntry(logsink.Record) { panic("sink exploded") }

type exceptionRecorder struct {
	reasons []string
	errs    []error
}

func (e *exceptionRecorder) OnException(reason string, err error) {
	e.reasons = append(e.reasons, reason)
	e.errs = append(e.errs, err)
}

func TestFanout_DeliversInOrderAndDedupes(t *testing.T) {
	t.Parallel()

	f := logsink.NewFanout(nil)
	a, b := &recorder{}, &recorder{}

	assert.True(t, f.Register(a))
	assert.True(t, f.Register(b))
	assert.False(t, f.Register(a), "duplicate registration must be rejected")
	assert.False(t, f.Register(nil))
	assert.Equal(t, 2, f.Len())

	rec := logsink.NewRecord(logsink.KindCommand, "ban", "banned user1")
	f.OnLogEntry(rec)

	require.Len(t, a.records, 1)
	require.Len(t, b.records, 1)
	assert.Equal(t, rec.ID, a.records[0].ID)

	assert.True(t, f.Unregister(a))
	assert.False(t, f.Unregister(a))
	f.OnLogEntry(rec)
	assert.Len(t, a.records, 1)
	assert.Len(t, b.records, 2)
}

func TestFanout_IsolatesPanickingSink(t *testing.T) {
	t.Parallel()

	exceptions := &exceptionRecorder{}
	f := logsink.NewFanout(exceptions)
	after := &recorder{}
	f.Register(&panicky{})
	f.Register(after)

	f.OnLogEntry(logsink.NewRecord(logsink.KindEvent, "chat", "hello"))

	assert.Len(t, after.records, 1, "sinks after a panicking sink still receive the record")
	require.Len(t, exceptions.errs, 1)
	assert.Contains(t, exceptions.errs[0].Error(), "sink exploded")
}

func TestExceptions_Fanout(t *testing.T) {
	t.Parallel()

	var fallback bytes.Buffer
	e := logsink.NewExceptions(zerolog.New(&fallback))
	first, second := &exceptionRecorder{}, &exceptionRecorder{}
	e.Register(first)
	e.Register(second)
	assert.False(t, e.Register(first))

	cause := errors.New("handler failed")
	e.OnException("command handler failed", cause)

	assert.Equal(t, []string{"command handler failed"}, first.reasons)
	assert.Equal(t, []error{cause}, second.errs)
	assert.Empty(t, fallback.String())

	assert.True(t, e.Unregister(first))
	e.OnException("again", cause)
	assert.Len(t, first.reasons, 1)
	assert.Len(t, second.reasons, 2)
}

func TestLogger_WritesStructuredEntries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := logsink.NewLogger(zerolog.New(&buf))

	rec := logsink.NewRecord(logsink.KindCommand, "kick", "kicked griefer")
	rec.Actor = "admin"
	rec.Category = logsink.CategoryStaff
	rec.Important = true
	sink.OnLogEntry(rec)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "kick", line["type"])
	assert.Equal(t, "staff", line["category"])
	assert.Equal(t, "kicked griefer", line["message"])
}

func TestCategory_TextRoundTrip(t *testing.T) {
	t.Parallel()

	rec := logsink.NewRecord(logsink.KindEvent, "cheat", "speed hack")
	rec.Category = logsink.CategoryCheat

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"category":"cheat"`)

	var decoded logsink.Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, logsink.CategoryCheat, decoded.Category)
	assert.Equal(t, rec.ID, decoded.ID)

	_, err = logsink.ParseCategory("gossip")
	assert.Error(t, err)
}
