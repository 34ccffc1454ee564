package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/argus-labs/sledgehammer/pkg/hammer/event"
	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/argus-labs/sledgehammer/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHandler struct {
	name     string
	types    []string
	priority event.Priority
	action   func(ev event.Event) error
	calls    *[]string
}

func (h *testHandler) Types() []string          { return h.types }
func (h *testHandler) Priority() event.Priority { return h.priority }

func (h *testHandler) OnEvent(_ context.Context, ev event.Event) error {
	*h.calls = append(*h.calls, h.name)
	if h.action != nil {
		return h.action(ev)
	}
	return nil
}

type recorder struct {
	records []logsink.Record
}

func (r *recorder) OnLogEntry(rec logsink.Record) { r.records = append(r.records, rec) }

type exceptionRecorder struct {
	errs []error
}

func (e *exceptionRecorder) OnException(_ string, err error) { e.errs = append(e.errs, err) }

func handle(ev event.Event) error { ev.SetHandled(true); return nil }

func cancel(ev event.Event) error { ev.Cancel(); return nil }

func newDispatcher(t *testing.T) (*event.Dispatcher, *recorder, *exceptionRecorder) {
	t.Helper()
	sink, exceptions := &recorder{}, &exceptionRecorder{}
	d := event.NewDispatcher(event.WithSink(sink), event.WithExceptionSink(exceptions))
	return d, sink, exceptions
}

func TestDispatch_HandledStopsTierButCoreRuns(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	for _, h := range []*testHandler{
		{name: "a", calls: &calls},
		{name: "b", calls: &calls, action: handle},
		{name: "c", calls: &calls},
		{name: "late", calls: &calls, priority: event.PriorityLate},
	} {
		require.NoError(t, d.Register(event.TypeChat, h))
	}
	d.SetCore(&testHandler{name: "core", calls: &calls})

	ev := d.Dispatch(context.Background(), event.NewChat("alice", "global", "hi"), true)

	assert.Equal(t, []string{"a", "b", "late", "core"}, calls)
	assert.True(t, ev.Handled())
	require.Len(t, sink.records, 1)
	assert.Equal(t, "[global] alice: hi", sink.records[0].Message)
	assert.Equal(t, "alice", sink.records[0].Actor)
	assert.Equal(t, logsink.KindEvent, sink.records[0].Kind)
}

func TestDispatch_CancelShortCircuits(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	require.NoError(t, d.Register(event.TypeKill, &testHandler{name: "a", calls: &calls, action: cancel}))
	require.NoError(t, d.Register(event.TypeKill, &testHandler{name: "b", calls: &calls}))
	d.SetCore(&testHandler{name: "core", calls: &calls})

	ev := d.Dispatch(context.Background(), event.NewKill("bob", "carol", "axe"), true)

	assert.Equal(t, []string{"a"}, calls)
	assert.True(t, ev.Cancelled())
	assert.Empty(t, sink.records, "cancelled events are never logged")
}

func TestDispatch_CoreCancelSuppressesLog(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	d.SetCore(&testHandler{name: "core", calls: &calls, action: cancel})

	d.Dispatch(context.Background(), event.NewConnect("dave", "10.0.0.1"), true)

	assert.Equal(t, []string{"core"}, calls)
	assert.Empty(t, sink.records)
}

func TestDispatch_IgnoreCore(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	d.SetCore(&testHandler{name: "core", calls: &calls})

	ev := event.NewDisconnect("erin", "timeout")
	ev.SetIgnoreCore(true)
	d.Dispatch(context.Background(), ev, true)

	assert.Empty(t, calls)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "erin disconnected (timeout)", sink.records[0].Message)
}

func TestDispatch_LoggingDisabled(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	d.Dispatch(context.Background(), event.NewCheat("mallory", "speed"), false)
	assert.Empty(t, sink.records)

	d.Dispatch(context.Background(), event.NewCheat("mallory", "speed"), true)
	require.Len(t, sink.records, 1)
	assert.Equal(t, logsink.CategoryCheat, sink.records[0].Category)
	assert.True(t, sink.records[0].Important)
}

func TestDispatch_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	d, sink, exceptions := newDispatcher(t)
	var calls []string
	boom := errors.New("boom")
	require.NoError(t, d.Register(event.TypeChat, &testHandler{name: "panics", calls: &calls,
		action: func(event.Event) error { panic("handler bug") }}))
	require.NoError(t, d.Register(event.TypeChat, &testHandler{name: "errors", calls: &calls,
		action: func(event.Event) error { return boom }}))
	require.NoError(t, d.Register(event.TypeChat, &testHandler{name: "ok", calls: &calls}))

	d.Dispatch(context.Background(), event.NewChat("frank", "local", "hello"), true)

	assert.Equal(t, []string{"panics", "errors", "ok"}, calls)
	require.Len(t, exceptions.errs, 2)
	assert.Contains(t, exceptions.errs[0].Error(), "handler bug")
	assert.ErrorIs(t, exceptions.errs[1], boom)
	assert.Equal(t, event.TypeChat, logsink.Tags(exceptions.errs[1])[logsink.TagEvent])
	assert.Len(t, sink.records, 1, "failures do not prevent the log record")
}

func TestDispatch_WildcardRunsAfterTypedHandlers(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher(t)
	var calls []string
	require.NoError(t, d.Register(event.TypeAll, &testHandler{name: "all", calls: &calls}))
	require.NoError(t, d.Register(event.TypeChat, &testHandler{name: "chat", calls: &calls}))

	d.Dispatch(context.Background(), event.NewChat("gina", "global", "yo"), false)
	d.Dispatch(context.Background(), event.NewGeneric("weather", "rain starts"), false)

	assert.Equal(t, []string{"chat", "all", "all"}, calls)
}

func TestDispatch_WildcardAndTypedRunsOnce(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher(t)
	var calls []string
	both := &testHandler{name: "both", calls: &calls}
	require.NoError(t, d.Register(event.TypeChat, both))
	require.NoError(t, d.Register(event.TypeAll, &testHandler{name: "all", calls: &calls}))
	require.NoError(t, d.Register(event.TypeAll, both))

	d.Dispatch(context.Background(), event.NewChat("hana", "global", "hey"), false)
	assert.Equal(t, []string{"both", "all"}, calls)

	calls = nil
	d.Dispatch(context.Background(), event.NewGeneric("weather", "fog"), false)
	assert.Equal(t, []string{"all", "both"}, calls)
}

type routerFunc func(ctx context.Context, ev event.Event, logEnabled bool)

type router struct{ fn routerFunc }

func (r *router) Route(ctx context.Context, ev event.Event, logEnabled bool) { r.fn(ctx, ev, logEnabled) }

func TestDispatch_Router(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	require.NoError(t, d.Register("command", &testHandler{name: "shadowed", calls: &calls}))

	var routed []bool
	r := &router{fn: func(_ context.Context, ev event.Event, logEnabled bool) {
		routed = append(routed, logEnabled)
		ev.SetHandled(true)
	}}
	d.Route("command", r)

	ev := d.Dispatch(context.Background(), event.NewGeneric("command", "/help"), true)
	assert.True(t, ev.Handled())
	assert.Equal(t, []bool{true}, routed)
	assert.Empty(t, calls, "routed types bypass the handler lists")
	assert.Empty(t, sink.records, "the router owns logging for its type")

	d.Route("command", nil)
	d.Dispatch(context.Background(), event.NewGeneric("command", "/help"), false)
	assert.Equal(t, []string{"shadowed"}, calls)
}

func TestRegistration(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher(t)
	var calls []string

	err := d.RegisterHandler(&testHandler{name: "empty", calls: &calls})
	require.Error(t, err)
	assert.True(t, eris.Is(err, event.ErrInvalidRegistration))

	err = d.Register("  ", &testHandler{name: "blank", calls: &calls})
	assert.True(t, eris.Is(err, event.ErrInvalidRegistration))

	h := &testHandler{name: "multi", calls: &calls, types: []string{event.TypeChat, event.TypeKill}}
	require.NoError(t, d.RegisterHandler(h))
	assert.Equal(t, []string{event.TypeChat, event.TypeKill}, d.Types())

	err = d.Register(event.TypeChat, h)
	assert.True(t, eris.Is(err, event.ErrInvalidRegistration), "duplicates are rejected")

	assert.True(t, d.Unregister(event.TypeChat, h))
	assert.False(t, d.Unregister(event.TypeChat, h))
	assert.Equal(t, []string{event.TypeKill}, d.Types())

	assert.Equal(t, 1, d.UnregisterHandler(h))
	assert.Empty(t, d.Types())
}

// funcHandler has a func dynamic type, which cannot be compared for identity.
type funcHandler func(ctx context.Context, ev event.Event) error

func (funcHandler) Types() []string                                     { return []string{event.TypeChat} }
func (f funcHandler) OnEvent(ctx context.Context, ev event.Event) error { return f(ctx, ev) }

func TestRegistration_RejectsUncomparableHandlers(t *testing.T) {
	t.Parallel()

	d, _, _ := newDispatcher(t)
	h := funcHandler(func(context.Context, event.Event) error { return nil })

	var err error
	require.NotPanics(t, func() { err = d.Register(event.TypeChat, h) })
	assert.True(t, eris.Is(err, event.ErrInvalidRegistration))

	require.NotPanics(t, func() { err = d.RegisterHandler(h) })
	assert.True(t, eris.Is(err, event.ErrInvalidRegistration))

	require.NotPanics(t, func() {
		assert.False(t, d.Unregister(event.TypeChat, h))
		assert.Zero(t, d.UnregisterHandler(h))
	})
	assert.Empty(t, d.Types())
}

func TestDispatch_ReentrantHandlers(t *testing.T) {
	t.Parallel()

	d, sink, _ := newDispatcher(t)
	var calls []string
	late := &testHandler{name: "added", calls: &calls}
	require.NoError(t, d.Register(event.TypeConnect, &testHandler{name: "nests", calls: &calls,
		action: func(ev event.Event) error {
			// Registering and dispatching from inside a handler must not deadlock.
			if err := d.Register(event.TypeConnect, late); err != nil {
				return err
			}
			d.Dispatch(context.Background(), event.NewChat("server", "global", ev.Actor()+" joined"), true)
			return nil
		}}))

	d.Dispatch(context.Background(), event.NewConnect("hank", "10.0.0.2"), true)
	assert.Equal(t, []string{"nests"}, calls, "handlers added mid-dispatch wait for the next event")
	assert.Len(t, sink.records, 2)

	d.Dispatch(context.Background(), event.NewConnect("ivy", "10.0.0.3"), false)
	assert.Equal(t, []string{"nests", "nests", "added"}, calls)
}

func TestDispatch_StampsTime(t *testing.T) {
	t.Parallel()

	d, _, exceptions := newDispatcher(t)
	ev := &event.Generic{Name: "custom", Message: "zero value base"}
	assert.True(t, ev.Time().IsZero())
	d.Dispatch(context.Background(), ev, false)
	assert.False(t, ev.Time().IsZero())

	assert.Nil(t, d.Dispatch(context.Background(), nil, true))
	assert.Len(t, exceptions.errs, 1)
}

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing of delivery order
// -------------------------------------------------------------------------------------------------
// Random handler chains with random behaviours are dispatched and the sequence of invoked
// handlers is compared against a straightforward model of the delivery rules.
// -------------------------------------------------------------------------------------------------

const (
	behaveNothing = "nothing"
	behaveHandle  = "handle"
	behaveCancel  = "cancel"
	behavePanic   = "panic"
)

func TestDispatch_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	weights := testutils.RandOpWeights(prng, []string{behaveNothing, behaveHandle, behaveCancel, behavePanic})

	for range 512 {
		type handlerPlan struct {
			name     string
			behave   string
			priority event.Priority
		}
		var plans []handlerPlan
		for i := range prng.IntN(8) {
			plans = append(plans, handlerPlan{
				name:     testutils.RandString(prng, 6) + string(rune('a'+i)),
				behave:   testutils.RandWeightedOp(prng, weights),
				priority: event.Priority(prng.IntN(2)),
			})
		}
		coreBehave := testutils.RandWeightedOp(prng, weights)
		ignoreCore := prng.IntN(4) == 0

		d, sink, _ := newDispatcher(t)
		var calls []string
		act := func(behave string) func(event.Event) error {
			return func(ev event.Event) error {
				switch behave {
				case behaveHandle:
					ev.SetHandled(true)
				case behaveCancel:
					ev.Cancel()
				case behavePanic:
					panic("fuzz")
				}
				return nil
			}
		}
		for _, s := range plans {
			require.NoError(t, d.Register(event.TypeChat,
				&testHandler{name: s.name, calls: &calls, priority: s.priority, action: act(s.behave)}))
		}
		d.SetCore(&testHandler{name: "core", calls: &calls, action: act(coreBehave)})

		ev := event.NewChat("fuzz", "global", "msg")
		ev.SetIgnoreCore(ignoreCore)
		d.Dispatch(context.Background(), ev, true)

		// Model.
		var want []string
		handled, cancelled := false, false
	tiers:
		for _, tier := range []event.Priority{event.PriorityNormal, event.PriorityLate} {
			wasHandled := handled
			for _, s := range plans {
				if s.priority != tier {
					continue
				}
				want = append(want, s.name)
				switch s.behave {
				case behaveHandle:
					handled = true
				case behaveCancel:
					cancelled = true
					break tiers
				}
				if !wasHandled && handled {
					break
				}
			}
		}
		if !cancelled && !ignoreCore {
			want = append(want, "core")
			cancelled = coreBehave == behaveCancel
		}

		require.Equal(t, want, calls)
		assert.Equal(t, cancelled, ev.Cancelled())
		if cancelled {
			assert.Empty(t, sink.records)
		} else {
			assert.Len(t, sink.records, 1)
		}
	}
}
